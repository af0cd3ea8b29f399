// Package event defines the domain events flowing between the backend and
// connected editor sessions.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// EntityStateChangedPayload carries event-specific data for EntityStateChanged.
type EntityStateChangedPayload struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// NewEntityStateChanged records a state transition of a catalog entity.
func NewEntityStateChanged(entityID, state string) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "entity_state_changed",
		OccurredAt: time.Now(),
		Summary:    fmt.Sprintf("%s is now %s", entityID, state),
		Payload:    mustJSON(EntityStateChangedPayload{EntityID: entityID, State: state}),
	}
}

// SettingsSavedPayload carries event-specific data for SettingsSaved.
type SettingsSavedPayload struct {
	Document        string `json:"document"`
	RestartRequired bool   `json:"restart_required"`
}

// NewSettingsSaved records a successful document save.
func NewSettingsSaved(document string, restartRequired bool) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  "settings_saved",
		OccurredAt: time.Now(),
		Summary:    fmt.Sprintf("document %s saved", document),
		Payload:    mustJSON(SettingsSavedPayload{Document: document, RestartRequired: restartRequired}),
	}
}
