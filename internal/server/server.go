// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/console"
	"github.com/hearthhq/hearth/internal/eventbus"
	"github.com/hearthhq/hearth/internal/handler"
	"github.com/hearthhq/hearth/internal/store"
)

// Config holds server configuration.
type Config struct {
	Port  int
	Store store.Store
	Bus   *eventbus.Bus
}

// Router builds the full route table. Split out of Run so tests can mount
// it on httptest servers.
func Router(cfg Config) http.Handler {
	r := chi.NewRouter()

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	sh := handler.NewSettingsHandler(cfg.Store, cfg.Bus)
	r.Get("/v1/settings", sh.HandleGetSettings)
	r.Put("/v1/settings", sh.HandlePutSettings)
	r.Get("/v1/household", sh.HandleGetHousehold)
	r.Put("/v1/household", sh.HandlePutHousehold)

	eh := handler.NewEntitiesHandler(cfg.Store, cfg.Bus)
	r.Get("/v1/entities", eh.HandleListEntities)
	r.Post("/v1/entities/{entity_id}/state", eh.HandleUpdateEntityState)

	stream := handler.NewEventStream()
	cfg.Bus.Subscribe("event-stream", stream)
	r.Get("/v1/events", stream.ServeHTTP)

	r.Get("/v1/console", console.NewHandler(cfg.Store, cfg.Bus).ServeHTTP)

	return handler.Recovery(handler.Logging(r))
}

// Run starts the HTTP server with all routes registered.
func Run(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("starting server on %s", addr)

	server := &http.Server{
		Addr:    addr,
		Handler: Router(cfg),
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
