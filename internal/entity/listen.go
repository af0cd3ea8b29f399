package entity

import (
	"context"
	"encoding/json"
	"log"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hearthhq/hearth/internal/event"
)

// Listen subscribes to the backend's event stream and patches cached
// entity states as they change. It blocks until the context is cancelled
// or the connection drops; the caller decides whether to redial.
func (r *Resolver) Listen(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	for {
		var evt event.DomainEvent
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if evt.EventType != "entity_state_changed" {
			continue
		}
		var p event.EntityStateChangedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			log.Printf("resolver: bad state event payload: %v", err)
			continue
		}
		r.UpdateState(p.EntityID, p.State)
	}
}
