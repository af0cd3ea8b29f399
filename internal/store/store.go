// Package store persists the backend's documents and entity catalog.
package store

import (
	"context"

	"github.com/hearthhq/hearth/internal/entity"
	"github.com/hearthhq/hearth/internal/settings"
)

// Document names used by the backend.
const (
	DocSettings  = "settings"
	DocHousehold = "household"
)

// Store is the persistence surface of the backend.
type Store interface {
	// LoadDocument returns the named document, or ok=false when it has
	// never been saved.
	LoadDocument(ctx context.Context, name string) (doc settings.Tree, ok bool, err error)
	SaveDocument(ctx context.Context, name string, doc settings.Tree) error

	ListEntities(ctx context.Context) ([]entity.Record, error)
	UpsertEntity(ctx context.Context, rec entity.Record) error
	// UpdateEntityState sets the state of one entity; ok=false when the
	// entity is unknown.
	UpdateEntityState(ctx context.Context, entityID, state string) (ok bool, err error)
}
