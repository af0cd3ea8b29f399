package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthhq/hearth/internal/client"
	"github.com/hearthhq/hearth/internal/event"
	"github.com/hearthhq/hearth/internal/eventbus"
	"github.com/hearthhq/hearth/internal/seed"
	"github.com/hearthhq/hearth/internal/settings"
	"github.com/hearthhq/hearth/internal/store"
)

// newTestBackend brings up the full route table on an in-memory store
// seeded with the shipped defaults and demo entities.
func newTestBackend(t *testing.T) (*httptest.Server, *client.Client, store.Store) {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	require.NoError(t, seed.Documents(ctx, st))
	require.NoError(t, seed.DemoEntities(ctx, st))

	bus := eventbus.New(64)
	srv := httptest.NewServer(Router(Config{Store: st, Bus: bus}))
	t.Cleanup(srv.Close)

	busCtx, cancel := context.WithCancel(ctx)
	bus.Start(busCtx)
	t.Cleanup(cancel)

	return srv, client.New(srv.URL), st
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestBackend(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFetchAndSaveSettingsRoundTrip(t *testing.T) {
	_, c, _ := newTestBackend(t)
	ctx := context.Background()

	tree, err := c.FetchSettings(ctx)
	require.NoError(t, err)

	v, ok := settings.Get(tree, "speech.auto_night_whisper")
	require.True(t, ok)
	assert.Equal(t, false, v)

	require.NoError(t, settings.Set(tree, "speech.auto_night_whisper", true))
	_, err = c.SaveSettings(ctx, tree)
	require.NoError(t, err)

	got, err := c.FetchSettings(ctx)
	require.NoError(t, err)
	v, _ = settings.Get(got, "speech.auto_night_whisper")
	assert.Equal(t, true, v)
}

func TestSaveReportsRestartRequired(t *testing.T) {
	_, c, _ := newTestBackend(t)
	ctx := context.Background()

	tree, err := c.FetchSettings(ctx)
	require.NoError(t, err)

	// An unrelated edit does not trip the flag.
	require.NoError(t, settings.Set(tree, "climate.target", 22.5))
	res, err := c.SaveSettings(ctx, tree)
	require.NoError(t, err)
	assert.False(t, res.RestartRequired)

	// Changing the wake word does.
	require.NoError(t, settings.Set(tree, "speech.wake_word", "marvin"))
	res, err = c.SaveSettings(ctx, tree)
	require.NoError(t, err)
	assert.True(t, res.RestartRequired)
}

func TestServerOwnedSubtreesSurviveSave(t *testing.T) {
	_, c, st := newTestBackend(t)
	ctx := context.Background()

	before, _, err := st.LoadDocument(ctx, store.DocSettings)
	require.NoError(t, err)
	wantRuntime, ok := settings.Get(before, "runtime")
	require.True(t, ok)

	// Even a save that tries to overwrite runtime state loses to the
	// server's own values.
	tree, err := c.FetchSettings(ctx)
	require.NoError(t, err)
	settings.ForceSet(tree, "runtime.healthy", false)
	_, err = c.SaveSettings(ctx, tree)
	require.NoError(t, err)

	after, _, err := st.LoadDocument(ctx, store.DocSettings)
	require.NoError(t, err)
	gotRuntime, ok := settings.Get(after, "runtime")
	require.True(t, ok)
	assert.Equal(t, wantRuntime, gotRuntime)
}

func TestStructuralRejectionLeavesDocumentUntouched(t *testing.T) {
	srv, _, st := newTestBackend(t)
	ctx := context.Background()

	before, _, err := st.LoadDocument(ctx, store.DocSettings)
	require.NoError(t, err)

	cases := map[string]string{
		"not an object":  `[1, 2, 3]`,
		"missing key":    `{"config": {}}`,
		"null document":  `{"settings": null}`,
		"scalar payload": `{"settings": 42}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/settings", strings.NewReader(body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			// Rejections ride a 200 with success=false.
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var reply struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
			assert.False(t, reply.Success)
			assert.NotEmpty(t, reply.Message)
		})
	}

	after, _, err := st.LoadDocument(ctx, store.DocSettings)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHouseholdDocumentRoundTrip(t *testing.T) {
	_, c, _ := newTestBackend(t)
	ctx := context.Background()

	household, err := c.FetchAuxiliary(ctx)
	require.NoError(t, err)
	require.Contains(t, household, "rooms")

	require.NoError(t, settings.Set(household, "home_zone_radius_m", float64(150)))
	_, err = c.SaveAuxiliary(ctx, household)
	require.NoError(t, err)

	got, err := c.FetchAuxiliary(ctx)
	require.NoError(t, err)
	v, _ := settings.Get(got, "home_zone_radius_m")
	assert.Equal(t, float64(150), v)
}

func TestEntityCatalogAndStateUpdate(t *testing.T) {
	srv, c, _ := newTestBackend(t)
	ctx := context.Background()

	records, err := c.FetchCatalog(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	resp, err := http.Post(srv.URL+"/v1/entities/light.kitchen/state", "application/json",
		strings.NewReader(`{"state": "on"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	records, err = c.FetchCatalog(ctx)
	require.NoError(t, err)
	var state string
	for _, rec := range records {
		if rec.EntityID == "light.kitchen" {
			state = rec.State
		}
	}
	assert.Equal(t, "on", state)
}

func TestUnknownEntityStateUpdateIs404(t *testing.T) {
	srv, _, _ := newTestBackend(t)

	resp, err := http.Post(srv.URL+"/v1/entities/light.nope/state", "application/json",
		strings.NewReader(`{"state": "on"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventStreamDeliversStateChanges(t *testing.T) {
	srv, c, _ := newTestBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, c.EventsURL(), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// Give the subscriber channel a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(srv.URL+"/v1/entities/light.kitchen/state", "application/json",
		strings.NewReader(`{"state": "on"}`))
	require.NoError(t, err)
	resp.Body.Close()

	for {
		var evt event.DomainEvent
		err := wsjson.Read(ctx, conn, &evt)
		if errors.Is(err, context.DeadlineExceeded) {
			t.Fatal("no entity_state_changed event before timeout")
		}
		require.NoError(t, err)
		if evt.EventType != "entity_state_changed" {
			continue
		}
		var payload event.EntityStateChangedPayload
		require.NoError(t, json.Unmarshal(evt.Payload, &payload))
		assert.Equal(t, "light.kitchen", payload.EntityID)
		assert.Equal(t, "on", payload.State)
		return
	}
}
