package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hearthhq/hearth/internal/entity"
	"github.com/hearthhq/hearth/internal/settings"
)

// MemoryStore implements Store using in-memory maps.
// Intended for demos and testing — no SQLite required.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]settings.Tree
	entities  map[string]entity.Record
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]settings.Tree),
		entities:  make(map[string]entity.Record),
	}
}

func (s *MemoryStore) LoadDocument(_ context.Context, name string) (settings.Tree, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[name]
	if !ok {
		return nil, false, nil
	}
	return settings.Clone(doc), true, nil
}

func (s *MemoryStore) SaveDocument(_ context.Context, name string, doc settings.Tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[name] = settings.Clone(doc)
	return nil
}

func (s *MemoryStore) ListEntities(_ context.Context) ([]entity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Record, 0, len(s.entities))
	for _, rec := range s.entities {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (s *MemoryStore) UpsertEntity(_ context.Context, rec entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[rec.EntityID] = rec
	return nil
}

func (s *MemoryStore) UpdateEntityState(_ context.Context, entityID, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entities[entityID]
	if !ok {
		return false, nil
	}
	rec.State = state
	s.entities[entityID] = rec
	return true, nil
}
