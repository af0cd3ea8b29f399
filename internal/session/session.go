// Package session owns the canonical settings document for one editing
// session. Every component reads and writes the session's trees through
// it: intent-backed widgets apply their edits the instant the user acts,
// native inputs are collected from the mounted tab on every tab switch
// and save, and the autosave scheduler decides when the result is
// persisted.
package session

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthhq/hearth/internal/client"
	"github.com/hearthhq/hearth/internal/form"
	"github.com/hearthhq/hearth/internal/settings"
)

// DefaultDebounce is the quiet period after the last edit before a save
// is scheduled.
const DefaultDebounce = 1200 * time.Millisecond

// Saver persists the session's documents. *client.Client satisfies it.
type Saver interface {
	SaveSettings(ctx context.Context, tree settings.Tree) (client.SaveResult, error)
	SaveAuxiliary(ctx context.Context, tree settings.Tree) (client.SaveResult, error)
}

// RenderFunc builds the mounted fields for a tab from the canonical
// trees. It is invoked with the session lock held and must not call back
// into the session.
type RenderFunc func(tab string, primary, auxiliary settings.Tree) []form.Field

// Config holds session construction parameters.
type Config struct {
	Primary   settings.Tree // initial settings document; nil means empty
	Auxiliary settings.Tree // initial household document; nil means empty
	Saver     Saver
	Debounce  time.Duration // 0 means DefaultDebounce
	OnError   func(error)   // save failures; default logs
	OnSaved   func(client.SaveResult)
}

// Session is the single owner of the canonical trees. One logical writer
// is assumed; the mutex exists because the debounce timer and save
// completions arrive on their own goroutines.
type Session struct {
	ID string

	saver    Saver
	debounce time.Duration
	onError  func(error)
	onSaved  func(client.SaveResult)

	mu        sync.Mutex
	primary   settings.Tree
	auxiliary settings.Tree
	activeTab string
	fields    []form.Field

	state      saveState
	timer      *time.Timer
	dirtyPrim  bool
	dirtyAux   bool
	saveSettle chan struct{} // closed when the current save round settles; tests and Flush wait on it
}

// New creates a Session around the given documents.
func New(cfg Config) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		saver:     cfg.Saver,
		debounce:  cfg.Debounce,
		onError:   cfg.OnError,
		onSaved:   cfg.OnSaved,
		primary:   cfg.Primary,
		auxiliary: cfg.Auxiliary,
	}
	if s.primary == nil {
		s.primary = settings.Tree{}
	}
	if s.auxiliary == nil {
		s.auxiliary = settings.Tree{}
	}
	if s.debounce == 0 {
		s.debounce = DefaultDebounce
	}
	if s.onError == nil {
		s.onError = func(err error) { log.Printf("session: save failed: %v", err) }
	}
	if s.onSaved == nil {
		s.onSaved = func(client.SaveResult) {}
	}
	return s
}

// MountTab renders a tab without collecting anything first. Used for the
// initial mount, where there is no outgoing tab.
func (s *Session) MountTab(tab string, render RenderFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTab = tab
	s.fields = render(tab, s.primary, s.auxiliary)
}

// SwitchTab collects the outgoing tab, merges it into the canonical
// trees, switches, and re-renders the incoming tab from canonical state.
// Nothing else keeps unmounted tabs correct: their values survive only
// because they were merged here before their widgets disappeared.
func (s *Session) SwitchTab(tab string, render RenderFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectLocked()
	s.activeTab = tab
	s.fields = render(tab, s.primary, s.auxiliary)
}

// ActiveTab returns the currently mounted tab name.
func (s *Session) ActiveTab() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTab
}

// Value reads the canonical value at path in the given document.
func (s *Session) Value(doc form.Doc, path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return settings.Get(s.treeLocked(doc), path)
}

// Snapshot returns a deep copy of a canonical document.
func (s *Session) Snapshot(doc form.Doc) settings.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return settings.Clone(s.treeLocked(doc))
}

// Edited notifies the scheduler that a native input bound to the given
// document changed. The value itself stays in the widget until the next
// collection; only the debounce clock starts here.
func (s *Session) Edited(doc form.Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDirtyLocked(doc)
	s.pokeLocked()
}

// SetPath applies an intent-style scalar write to the canonical tree
// immediately. A path conflict is returned and nothing is scheduled.
func (s *Session) SetPath(doc form.Doc, path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := settings.Set(s.treeLocked(doc), path, value); err != nil {
		return err
	}
	s.markDirtyLocked(doc)
	s.pokeLocked()
	return nil
}

// AppendToList adds item to the list at path with set semantics: an item
// already present is a no-op and schedules nothing. Items compare
// structurally, so tree-valued entries are handled like scalars.
func (s *Session) AppendToList(doc form.Doc, path string, item any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree := s.treeLocked(doc)

	var list []any
	if v, ok := settings.Get(tree, path); ok {
		l, ok := v.([]any)
		if !ok {
			return fmt.Errorf("session: %q does not hold a list", path)
		}
		list = l
	}
	for _, e := range list {
		if reflect.DeepEqual(e, item) {
			return nil
		}
	}
	if err := settings.Set(tree, path, append(list, item)); err != nil {
		return err
	}
	s.markDirtyLocked(doc)
	s.pokeLocked()
	return nil
}

// RemoveFromList filters item out of the list at path. Removing an absent
// item is a no-op.
func (s *Session) RemoveFromList(doc form.Doc, path string, item any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree := s.treeLocked(doc)

	v, ok := settings.Get(tree, path)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("session: %q does not hold a list", path)
	}
	kept := make([]any, 0, len(list))
	for _, e := range list {
		if !reflect.DeepEqual(e, item) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	if err := settings.Set(tree, path, kept); err != nil {
		return err
	}
	s.markDirtyLocked(doc)
	s.pokeLocked()
	return nil
}

// SetMapEntry assigns map[key] = value at path, creating the map if the
// path is empty.
func (s *Session) SetMapEntry(doc form.Doc, path, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree := s.treeLocked(doc)

	v, ok := settings.Get(tree, path)
	if !ok {
		m := settings.Tree{}
		if err := settings.Set(tree, path, m); err != nil {
			return err
		}
		v = m
	}
	m, ok := v.(settings.Tree)
	if !ok {
		return fmt.Errorf("session: %q does not hold a map", path)
	}
	m[key] = value
	s.markDirtyLocked(doc)
	s.pokeLocked()
	return nil
}

func (s *Session) treeLocked(doc form.Doc) settings.Tree {
	if doc == form.DocAuxiliary {
		return s.auxiliary
	}
	return s.primary
}

func (s *Session) markDirtyLocked(doc form.Doc) {
	if doc == form.DocAuxiliary {
		s.dirtyAux = true
	} else {
		s.dirtyPrim = true
	}
}

// collectLocked folds the mounted tab into the canonical trees. Called
// on every tab switch and at the start of every save.
func (s *Session) collectLocked() {
	pp, ap := form.Collect(s.fields, s.primary, s.auxiliary)
	settings.Merge(s.primary, pp)
	settings.Merge(s.auxiliary, ap)
}
