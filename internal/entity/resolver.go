// Package entity resolves references to external smart-home entities: a
// session-cached catalog, filtered autocomplete, and the write-back modes
// that route a selection into the settings document.
package entity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hearthhq/hearth/internal/form"
)

// Record is one externally sourced catalog entity. Read-only for the
// lifetime of the session, except for live state updates.
type Record struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	State    string `json:"state"`
}

// CatalogSource fetches the flat entity catalog from the backend.
type CatalogSource interface {
	FetchCatalog(ctx context.Context) ([]Record, error)
}

// Editor is the intent surface a selection is routed into. The editing
// session implements it.
type Editor interface {
	SetPath(doc form.Doc, path string, value any) error
	AppendToList(doc form.Doc, path string, item any) error
	RemoveFromList(doc form.Doc, path string, item any) error
	SetMapEntry(doc form.Doc, path, key string, value any) error
}

// Resolver caches the entity catalog for the session and routes entity
// selections into the document. Safe for concurrent use.
type Resolver struct {
	source CatalogSource

	mu       sync.Mutex
	records  []Record
	fetched  bool
	fetchErr error
	inflight chan struct{}
}

// NewResolver creates a Resolver backed by the given catalog source.
func NewResolver(source CatalogSource) *Resolver {
	return &Resolver{source: source}
}

// Catalog returns the cached catalog, fetching it on first use. Concurrent
// callers before the first resolution share one in-flight request. A failed
// fetch is not cached: the next call issues a fresh request. The returned
// slice is a snapshot; later state updates do not touch it.
func (r *Resolver) Catalog(ctx context.Context) ([]Record, error) {
	r.mu.Lock()
	if r.fetched {
		records := r.recordsLocked()
		r.mu.Unlock()
		return records, nil
	}
	if r.inflight != nil {
		done := r.inflight
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		r.mu.Lock()
		records, err := r.recordsLocked(), r.fetchErr
		r.mu.Unlock()
		return records, err
	}
	done := make(chan struct{})
	r.inflight = done
	r.mu.Unlock()

	records, err := r.source.FetchCatalog(ctx)

	r.mu.Lock()
	r.inflight = nil
	r.fetchErr = err
	if err == nil {
		r.records = records
		r.fetched = true
		records = r.recordsLocked()
	}
	close(done)
	r.mu.Unlock()
	return records, err
}

// recordsLocked copies the cached records so callers never share the
// backing array the state listener mutates.
func (r *Resolver) recordsLocked() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Filter returns the cached entities whose id or name contains query
// (case-insensitive), restricted to the given domain allow-list. An empty
// domain list allows every domain. Filter does not trigger a fetch; before
// the catalog resolves it returns nothing.
func (r *Resolver) Filter(query string, domains []string) []Record {
	r.mu.Lock()
	records := r.recordsLocked()
	r.mu.Unlock()

	q := strings.ToLower(query)
	var matched []Record
	for _, rec := range records {
		if len(domains) > 0 && !containsString(domains, rec.Domain) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(rec.EntityID), q) &&
			!strings.Contains(strings.ToLower(rec.Name), q) {
			continue
		}
		matched = append(matched, rec)
	}
	return matched
}

// Select routes an entity selection into the document through one of three
// write-back modes, chosen by the invoking widget's kind: scalar overwrite,
// list append (set semantics), or per-room map assignment. room is only
// consulted in map mode.
func (r *Resolver) Select(ed Editor, f form.Field, entityID, room string) error {
	switch f.Kind {
	case form.EntitySingle:
		return ed.SetPath(f.Doc, f.Path, entityID)
	case form.EntityList:
		return ed.AppendToList(f.Doc, f.Path, entityID)
	case form.RoomEntityMap:
		if room == "" {
			return fmt.Errorf("entity: selection for %s requires a room", f.Path)
		}
		return ed.SetMapEntry(f.Doc, f.Path, room, entityID)
	default:
		return fmt.Errorf("entity: widget kind %d cannot accept an entity selection", f.Kind)
	}
}

// Remove filters entityID out of the list at the field's path. Only the
// list write-back mode supports removal.
func (r *Resolver) Remove(ed Editor, f form.Field, entityID string) error {
	if f.Kind != form.EntityList {
		return fmt.Errorf("entity: widget kind %d does not support removal", f.Kind)
	}
	return ed.RemoveFromList(f.Doc, f.Path, entityID)
}

// UpdateState patches the cached state of one entity in place. Used by the
// event stream listener; a state change never alters id, name, or domain.
func (r *Resolver) UpdateState(entityID, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].EntityID == entityID {
			r.records[i].State = state
			return
		}
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
