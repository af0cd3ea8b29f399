package handler

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hearthhq/hearth/internal/event"
)

// EventStream fans bus events out to connected websocket clients. It is
// both an eventbus.Handler and an http.Handler.
type EventStream struct {
	mu   sync.Mutex
	subs map[chan event.DomainEvent]struct{}
}

// NewEventStream creates an empty EventStream.
func NewEventStream() *EventStream {
	return &EventStream{subs: make(map[chan event.DomainEvent]struct{})}
}

// HandleEvent delivers one event to every connected client. A client that
// cannot keep up loses events rather than stalling the bus.
func (s *EventStream) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// ServeHTTP upgrades to WebSocket and streams events until the client
// disconnects.
// GET /v1/events
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("events: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	// The stream is write-only; CloseRead surfaces the client going away.
	ctx := conn.CloseRead(r.Context())

	ch := make(chan event.DomainEvent, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}()

	for {
		select {
		case evt := <-ch:
			if err := wsjson.Write(ctx, conn, evt); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
