package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthhq/hearth/internal/client"
	"github.com/hearthhq/hearth/internal/form"
	"github.com/hearthhq/hearth/internal/settings"
)

const testDebounce = 40 * time.Millisecond

type fakeSaver struct {
	mu      sync.Mutex
	primary []settings.Tree
	aux     []settings.Tree
	order   []string
	err     error
	restart bool

	started chan struct{} // signaled when a settings save begins
	release chan struct{} // when set, settings saves block until closed
	notify  chan string   // receives "settings"/"aux" when a save settles
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{notify: make(chan string, 16)}
}

func (f *fakeSaver) SaveSettings(_ context.Context, tree settings.Tree) (client.SaveResult, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	err := f.err
	if err == nil {
		f.primary = append(f.primary, tree)
		f.order = append(f.order, "settings")
	}
	f.mu.Unlock()
	f.notify <- "settings"
	if err != nil {
		return client.SaveResult{}, err
	}
	return client.SaveResult{RestartRequired: f.restart}, nil
}

func (f *fakeSaver) SaveAuxiliary(_ context.Context, tree settings.Tree) (client.SaveResult, error) {
	f.mu.Lock()
	err := f.err
	if err == nil {
		f.aux = append(f.aux, tree)
		f.order = append(f.order, "aux")
	}
	f.mu.Unlock()
	f.notify <- "aux"
	return client.SaveResult{}, err
}

func (f *fakeSaver) settingsSaves() []settings.Tree {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]settings.Tree(nil), f.primary...)
}

func waitNotify(t *testing.T, f *fakeSaver, want string) {
	t.Helper()
	select {
	case got := <-f.notify:
		if got != want {
			t.Fatalf("save settled on %q document, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s save", want)
	}
}

func assertNoMoreSaves(t *testing.T, f *fakeSaver) {
	t.Helper()
	select {
	case got := <-f.notify:
		t.Fatalf("unexpected extra %s save", got)
	case <-time.After(4 * testDebounce):
	}
}

func TestBurstOfEditsProducesOneCumulativeSave(t *testing.T) {
	saver := newFakeSaver()
	s := New(Config{Saver: saver, Debounce: testDebounce})
	defer s.Close()

	for i := 0; i < 5; i++ {
		err := s.SetPath(form.DocPrimary, fmt.Sprintf("speech.slot_%d", i), int64(i))
		require.NoError(t, err)
	}

	waitNotify(t, saver, "settings")
	assertNoMoreSaves(t, saver)

	saves := saver.settingsSaves()
	require.Len(t, saves, 1, "a burst inside the debounce window is one save")
	for i := 0; i < 5; i++ {
		v, ok := settings.Get(saves[0], fmt.Sprintf("speech.slot_%d", i))
		require.True(t, ok, "save payload missing slot_%d", i)
		assert.Equal(t, int64(i), v)
	}
}

func TestEditDuringSaveIncludedInExactlyOneFollowUp(t *testing.T) {
	saver := newFakeSaver()
	saver.started = make(chan struct{}, 2)
	saver.release = make(chan struct{})
	s := New(Config{Saver: saver, Debounce: testDebounce})
	defer s.Close()

	require.NoError(t, s.SetPath(form.DocPrimary, "speech.voice", "nova"))

	// Wait for the first save to start, then edit while it is in flight.
	select {
	case <-saver.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first save never started")
	}
	require.NoError(t, s.SetPath(form.DocPrimary, "speech.volume", float64(0.7)))
	close(saver.release)

	waitNotify(t, saver, "settings")
	waitNotify(t, saver, "settings")
	assertNoMoreSaves(t, saver)

	saves := saver.settingsSaves()
	require.Len(t, saves, 2, "mid-save edit triggers exactly one follow-up save")
	if _, ok := settings.Get(saves[0], "speech.volume"); ok {
		t.Error("first payload already contains the mid-save edit")
	}
	v, ok := settings.Get(saves[1], "speech.volume")
	require.True(t, ok, "follow-up payload missing the mid-save edit")
	assert.Equal(t, float64(0.7), v)
}

func TestFailedSaveLeavesTreeUnchangedAndDoesNotRetry(t *testing.T) {
	saver := newFakeSaver()
	saver.err = fmt.Errorf("backend unreachable")
	errs := make(chan error, 1)
	s := New(Config{
		Primary:  settings.Tree{"speech": settings.Tree{"voice": "nova"}},
		Saver:    saver,
		Debounce: testDebounce,
		OnError:  func(err error) { errs <- err },
	})
	defer s.Close()

	require.NoError(t, s.SetPath(form.DocPrimary, "speech.volume", float64(0.4)))
	before := s.Snapshot(form.DocPrimary)

	waitNotify(t, saver, "settings")
	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "backend unreachable")
	case <-time.After(2 * time.Second):
		t.Fatal("save failure never surfaced")
	}
	assertNoMoreSaves(t, saver)

	if diff := cmp.Diff(before, s.Snapshot(form.DocPrimary)); diff != "" {
		t.Errorf("canonical tree changed across failed save (-before +after):\n%s", diff)
	}
}

func TestToggleSurvivesTabSwitchBeforeDebounce(t *testing.T) {
	saver := newFakeSaver()
	s := New(Config{
		Primary: settings.Tree{"speech": settings.Tree{"auto_night_whisper": false}},
		Saver:   saver, Debounce: testDebounce,
	})
	defer s.Close()

	toggle := &form.Widget{Checked: false}
	s.MountTab("speech", func(string, settings.Tree, settings.Tree) []form.Field {
		return []form.Field{{Path: "speech.auto_night_whisper", Kind: form.Toggle, Widget: toggle}}
	})

	// User flips the toggle; the new value sits in the widget.
	toggle.Checked = true
	s.Edited(form.DocPrimary)

	// Switch tabs before the debounce fires.
	var seenAtRender any
	s.SwitchTab("general", func(_ string, primary, _ settings.Tree) []form.Field {
		seenAtRender, _ = settings.Get(primary, "speech.auto_night_whisper")
		return nil
	})
	assert.Equal(t, true, seenAtRender, "incoming tab must render the flipped toggle")

	waitNotify(t, saver, "settings")
	saves := saver.settingsSaves()
	require.Len(t, saves, 1)
	v, _ := settings.Get(saves[0], "speech.auto_night_whisper")
	assert.Equal(t, true, v, "save payload must carry the flipped toggle")
}

func TestAppendToListIsIdempotent(t *testing.T) {
	saver := newFakeSaver()
	s := New(Config{Saver: saver, Debounce: time.Hour})
	defer func() { s.mu.Lock(); s.timer.Stop(); s.mu.Unlock() }()

	// Two list-bound widgets on the same path both add the same entity.
	require.NoError(t, s.AppendToList(form.DocPrimary, "lights.wake", "light.kitchen"))
	require.NoError(t, s.AppendToList(form.DocPrimary, "lights.wake", "light.kitchen"))

	v, ok := s.Value(form.DocPrimary, "lights.wake")
	require.True(t, ok)
	assert.Equal(t, []any{"light.kitchen"}, v)
}

func TestListIntentsHandleTreeValuedItems(t *testing.T) {
	s := New(Config{Saver: newFakeSaver(), Debounce: time.Hour})
	defer func() { s.mu.Lock(); s.timer.Stop(); s.mu.Unlock() }()

	member := settings.Tree{"name": "Ada", "tracker": "device_tracker.ada_phone"}
	require.NoError(t, s.AppendToList(form.DocAuxiliary, "members", member))
	require.NoError(t, s.AppendToList(form.DocAuxiliary, "members", settings.Tree{
		"name": "Ada", "tracker": "device_tracker.ada_phone",
	}))

	v, _ := s.Value(form.DocAuxiliary, "members")
	require.Len(t, v, 1, "structurally equal records collapse to one entry")

	require.NoError(t, s.RemoveFromList(form.DocAuxiliary, "members", member))
	v, _ = s.Value(form.DocAuxiliary, "members")
	assert.Empty(t, v)
}

func TestRemoveFromList(t *testing.T) {
	s := New(Config{
		Primary: settings.Tree{"lights": settings.Tree{"wake": []any{"light.kitchen", "light.hall"}}},
		Saver:   newFakeSaver(), Debounce: time.Hour,
	})

	require.NoError(t, s.RemoveFromList(form.DocPrimary, "lights.wake", "light.kitchen"))
	require.NoError(t, s.RemoveFromList(form.DocPrimary, "lights.wake", "light.missing"))

	v, _ := s.Value(form.DocPrimary, "lights.wake")
	assert.Equal(t, []any{"light.hall"}, v)
}

func TestSetMapEntryCreatesMap(t *testing.T) {
	s := New(Config{Saver: newFakeSaver(), Debounce: time.Hour})

	require.NoError(t, s.SetMapEntry(form.DocPrimary, "climate.room_sensors", "kitchen", "sensor.kitchen_temp"))
	require.NoError(t, s.SetMapEntry(form.DocPrimary, "climate.room_sensors", "attic", "sensor.attic_temp"))

	v, _ := s.Value(form.DocPrimary, "climate.room_sensors")
	assert.Equal(t, settings.Tree{
		"kitchen": "sensor.kitchen_temp",
		"attic":   "sensor.attic_temp",
	}, v)
}

func TestSetPathConflictSchedulesNothing(t *testing.T) {
	saver := newFakeSaver()
	s := New(Config{
		Primary: settings.Tree{"speech": settings.Tree{"voice": "nova"}},
		Saver:   saver, Debounce: testDebounce,
	})
	defer s.Close()

	err := s.SetPath(form.DocPrimary, "speech.voice.pitch", float64(1.1))
	require.Error(t, err)
	assertNoMoreSaves(t, saver)
}

func TestAuxiliaryDocumentSavesIndependently(t *testing.T) {
	saver := newFakeSaver()
	s := New(Config{Saver: saver, Debounce: testDebounce})
	defer s.Close()

	// Only the household document is touched: no settings PUT at all.
	require.NoError(t, s.SetPath(form.DocAuxiliary, "rooms", []any{"kitchen", "bedroom"}))
	waitNotify(t, saver, "aux")
	assertNoMoreSaves(t, saver)

	// Both touched: primary first, auxiliary after it settles.
	require.NoError(t, s.SetPath(form.DocPrimary, "speech.voice", "atlas"))
	require.NoError(t, s.SetPath(form.DocAuxiliary, "rooms", []any{"kitchen"}))
	waitNotify(t, saver, "settings")
	waitNotify(t, saver, "aux")

	saver.mu.Lock()
	order := append([]string(nil), saver.order...)
	saver.mu.Unlock()
	assert.Equal(t, []string{"aux", "settings", "aux"}, order)
}

func TestFlushSavesWithoutWaitingForDebounce(t *testing.T) {
	saver := newFakeSaver()
	s := New(Config{Saver: saver, Debounce: time.Hour})

	require.NoError(t, s.SetPath(form.DocPrimary, "speech.voice", "nova"))
	s.Flush()

	saves := saver.settingsSaves()
	require.Len(t, saves, 1, "Flush must persist pending edits synchronously")
	v, _ := settings.Get(saves[0], "speech.voice")
	assert.Equal(t, "nova", v)
}

func TestSavedResultSurfacesRestartFlag(t *testing.T) {
	saver := newFakeSaver()
	saver.restart = true
	results := make(chan client.SaveResult, 1)
	s := New(Config{
		Saver: saver, Debounce: testDebounce,
		OnSaved: func(r client.SaveResult) { results <- r },
	})
	defer s.Close()

	require.NoError(t, s.SetPath(form.DocPrimary, "presence.engine", "bayesian"))
	waitNotify(t, saver, "settings")

	select {
	case r := <-results:
		assert.True(t, r.RestartRequired)
	case <-time.After(2 * time.Second):
		t.Fatal("OnSaved never called")
	}
}
