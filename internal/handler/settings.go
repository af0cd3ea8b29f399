package handler

import (
	"encoding/json"
	"net/http"
	"reflect"

	"github.com/hearthhq/hearth/internal/event"
	"github.com/hearthhq/hearth/internal/eventbus"
	"github.com/hearthhq/hearth/internal/settings"
	"github.com/hearthhq/hearth/internal/store"
)

// serverOwnedPaths are subtrees the backend maintains itself. Clients
// strip them before saving; anything that slips through is discarded and
// the server's own values are re-grafted onto the stored document.
var serverOwnedPaths = []string{
	"runtime",
	"system.versions",
	"entities",
}

// restartPaths are the keys whose change requires a dependent subsystem
// restart, flagged in the save response.
var restartPaths = []string{
	"presence.engine",
	"patterns.engine",
	"speech.wake_word",
	"system.locale",
}

// SettingsHandler implements HTTP handlers for both persisted documents.
type SettingsHandler struct {
	store store.Store
	bus   *eventbus.Bus
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(st store.Store, bus *eventbus.Bus) *SettingsHandler {
	return &SettingsHandler{store: st, bus: bus}
}

// HandleGetSettings returns the full settings document.
// GET /v1/settings
func (h *SettingsHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	h.getDocument(w, r, store.DocSettings)
}

// HandleGetHousehold returns the household document.
// GET /v1/household
func (h *SettingsHandler) HandleGetHousehold(w http.ResponseWriter, r *http.Request) {
	h.getDocument(w, r, store.DocHousehold)
}

func (h *SettingsHandler) getDocument(w http.ResponseWriter, r *http.Request, name string) {
	doc, ok, err := h.store.LoadDocument(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LOAD_FAILED", err.Error())
		return
	}
	if !ok {
		// Boot seeding guarantees both documents; an absent one is a bug.
		writeError(w, http.StatusNotFound, "NOT_FOUND", name+" document missing")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandlePutSettings replaces the settings document wholesale.
// PUT /v1/settings with body {"settings": {...}}
func (h *SettingsHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	incoming, ok := h.decodeDocument(w, r, "settings")
	if !ok {
		return
	}

	current, _, err := h.store.LoadDocument(r.Context(), store.DocSettings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LOAD_FAILED", err.Error())
		return
	}

	// Server-owned subtrees survive the replace untouched.
	for _, p := range serverOwnedPaths {
		settings.Delete(incoming, p)
		if v, ok := settings.Get(current, p); ok {
			settings.ForceSet(incoming, p, v)
		}
	}

	restart := restartRequired(current, incoming)
	if err := h.store.SaveDocument(r.Context(), store.DocSettings, incoming); err != nil {
		writeError(w, http.StatusInternalServerError, "SAVE_FAILED", err.Error())
		return
	}
	h.bus.Publish(r.Context(), event.NewSettingsSaved(store.DocSettings, restart))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"restart_required": restart,
	})
}

// HandlePutHousehold replaces the household document.
// PUT /v1/household with body {"household": {...}}
func (h *SettingsHandler) HandlePutHousehold(w http.ResponseWriter, r *http.Request) {
	incoming, ok := h.decodeDocument(w, r, "household")
	if !ok {
		return
	}
	if err := h.store.SaveDocument(r.Context(), store.DocHousehold, incoming); err != nil {
		writeError(w, http.StatusInternalServerError, "SAVE_FAILED", err.Error())
		return
	}
	h.bus.Publish(r.Context(), event.NewSettingsSaved(store.DocHousehold, false))

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// decodeDocument extracts the wrapped document from a PUT body, emitting
// a structural rejection for anything that is not an object under the
// expected key. Rejections never touch the stored document.
func (h *SettingsHandler) decodeDocument(w http.ResponseWriter, r *http.Request, key string) (settings.Tree, bool) {
	var body map[string]json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		writeRejection(w, "request body is not a JSON object")
		return nil, false
	}
	raw, ok := body[key]
	if !ok {
		writeRejection(w, "missing "+key+" key")
		return nil, false
	}
	var doc settings.Tree
	if err := json.Unmarshal(raw, &doc); err != nil {
		writeRejection(w, key+" must be an object")
		return nil, false
	}
	if doc == nil {
		writeRejection(w, key+" must not be null")
		return nil, false
	}
	return doc, true
}

func restartRequired(current, incoming settings.Tree) bool {
	for _, p := range restartPaths {
		cur, _ := settings.Get(current, p)
		next, ok := settings.Get(incoming, p)
		if ok && !reflect.DeepEqual(cur, next) {
			return true
		}
	}
	return false
}
