package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
)

// SQLiteOntologyRepository implements OntologyRepository using SQLite.
type SQLiteOntologyRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteOntologyRepository creates an ontology repository on an open SQLite handle.
func NewSQLiteOntologyRepository(db *sql.DB) *SQLiteOntologyRepository {
	return &SQLiteOntologyRepository{db: db}
}

// ListByType returns the current snapshot for one entity type.
func (r *SQLiteOntologyRepository) ListByType(ctx context.Context, t model.EntityType) ([]model.OntologyEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, parent_id, name, extra
		FROM ontology WHERE type = ? ORDER BY entity_id`, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to list ontology entities: %w", err)
	}
	defer rows.Close()

	var entities []model.OntologyEntity
	for rows.Next() {
		var (
			entity   model.OntologyEntity
			parentID sql.NullInt64
			extra    sql.NullString
		)
		if err := rows.Scan(&entity.EntityID, &parentID, &entity.Name, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan ontology entity: %w", err)
		}
		entity.Type = t
		if parentID.Valid {
			entity.ParentID = &parentID.Int64
		}
		if extra.Valid && extra.String != "" {
			entity.Extra = json.RawMessage(extra.String)
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

// IDSet returns the entity ids currently mirrored for a type.
func (r *SQLiteOntologyRepository) IDSet(ctx context.Context, t model.EntityType) (map[int64]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT entity_id FROM ontology WHERE type = ?`, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to list ontology ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Replace swaps the full snapshot for a type in one transaction and records
// the fetch timestamp.
func (r *SQLiteOntologyRepository) Replace(ctx context.Context, t model.EntityType, entities []model.OntologyEntity, fetchedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ontology replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ontology WHERE type = ?`, string(t)); err != nil {
		return fmt.Errorf("failed to clear ontology snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ontology (type, entity_id, parent_id, name, extra)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ontology insert: %w", err)
	}
	defer stmt.Close()

	for _, entity := range entities {
		var extra interface{}
		if len(entity.Extra) > 0 {
			extra = string(entity.Extra)
		}
		if _, err := stmt.ExecContext(ctx, string(t), entity.EntityID,
			intPtr(entity.ParentID), entity.Name, extra); err != nil {
			return fmt.Errorf("failed to insert ontology entity %d: %w", entity.EntityID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ontology_versions (type, fetched_at) VALUES (?, ?)
		ON CONFLICT(type) DO UPDATE SET fetched_at = excluded.fetched_at`,
		string(t), fetchedAt.UTC()); err != nil {
		return fmt.Errorf("failed to record ontology version: %w", err)
	}

	return tx.Commit()
}

// Version returns the snapshot's fetch timestamp, nil if never fetched.
func (r *SQLiteOntologyRepository) Version(ctx context.Context, t model.EntityType) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fetchedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM ontology_versions WHERE type = ?`, string(t)).Scan(&fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ontology version: %w", err)
	}
	return &fetchedAt, nil
}

// Ensure SQLiteOntologyRepository implements OntologyRepository
var _ OntologyRepository = (*SQLiteOntologyRepository)(nil)
