package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthhq/hearth/internal/entity"
	"github.com/hearthhq/hearth/internal/settings"
)

// SQLiteStore implements Store on a SQLite database. Documents are stored
// as JSON text rows keyed by name; the entity catalog gets its own table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS entities (
	entity_id TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	domain    TEXT NOT NULL,
	state     TEXT NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadDocument(ctx context.Context, name string) (settings.Tree, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, name).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading document %q: %w", name, err)
	}
	var doc settings.Tree
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, false, fmt.Errorf("decoding document %q: %w", name, err)
	}
	return doc, true, nil
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, name string, doc settings.Tree) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document %q: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		name, string(body), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving document %q: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context) ([]entity.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id, name, domain, state FROM entities ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var out []entity.Record
	for rows.Next() {
		var rec entity.Record
		if err := rows.Scan(&rec.EntityID, &rec.Name, &rec.Domain, &rec.State); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertEntity(ctx context.Context, rec entity.Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO entities (entity_id, name, domain, state) VALUES (?, ?, ?, ?)
ON CONFLICT(entity_id) DO UPDATE SET name = excluded.name, domain = excluded.domain, state = excluded.state`,
		rec.EntityID, rec.Name, rec.Domain, rec.State)
	if err != nil {
		return fmt.Errorf("upserting entity %q: %w", rec.EntityID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateEntityState(ctx context.Context, entityID, state string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE entities SET state = ? WHERE entity_id = ?`, state, entityID)
	if err != nil {
		return false, fmt.Errorf("updating entity %q: %w", entityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
