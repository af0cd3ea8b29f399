package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/entity"
	"github.com/hearthhq/hearth/internal/event"
	"github.com/hearthhq/hearth/internal/eventbus"
	"github.com/hearthhq/hearth/internal/store"
)

// EntitiesHandler serves the entity catalog and state updates.
type EntitiesHandler struct {
	store store.Store
	bus   *eventbus.Bus
}

// NewEntitiesHandler creates a new EntitiesHandler.
func NewEntitiesHandler(st store.Store, bus *eventbus.Bus) *EntitiesHandler {
	return &EntitiesHandler{store: st, bus: bus}
}

// HandleListEntities returns the flat entity catalog.
// GET /v1/entities
func (h *EntitiesHandler) HandleListEntities(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListEntities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	if records == nil {
		records = []entity.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": records})
}

// HandleUpdateEntityState records a state transition and publishes it to
// connected sessions.
// POST /v1/entities/{entity_id}/state with body {"state": "..."}
func (h *EntitiesHandler) HandleUpdateEntityState(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entity_id")
	var body struct {
		State string `json:"state"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "body must be {\"state\": ...}")
		return
	}

	ok, err := h.store.UpdateEntityState(r.Context(), entityID, body.State)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "UPDATE_FAILED", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown entity "+entityID)
		return
	}
	h.bus.Publish(r.Context(), event.NewEntityStateChanged(entityID, body.State))

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
