package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hearthhq/hearth/internal/eventbus"
	"github.com/hearthhq/hearth/internal/seed"
	"github.com/hearthhq/hearth/internal/server"
	"github.com/hearthhq/hearth/internal/store"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "file:hearth.db?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	st := store.NewSQLiteStore(db)
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("running schema migration: %v", err)
	}
	log.Println("database migrated successfully")

	if err := seed.Documents(ctx, st); err != nil {
		log.Fatalf("seeding documents: %v", err)
	}
	if os.Getenv("HEARTH_DEMO_ENTITIES") != "" {
		if err := seed.DemoEntities(ctx, st); err != nil {
			log.Fatalf("seeding demo entities: %v", err)
		}
	}

	bus := eventbus.New(256)
	bus.Subscribe("log", eventbus.NewLogConsumer())
	bus.Start(ctx)
	defer bus.Stop()

	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	if err := server.Run(ctx, server.Config{
		Port:  port,
		Store: st,
		Bus:   bus,
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
