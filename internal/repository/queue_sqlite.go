package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
)

const queueColumns = `local_id, status, error, jittered_title, mutated_thumbnail, relist_count, enqueued_at`

// SQLiteQueueRepository implements QueueRepository using SQLite.
type SQLiteQueueRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteQueueRepository creates a queue repository on an open SQLite handle.
func NewSQLiteQueueRepository(db *sql.DB) *SQLiteQueueRepository {
	return &SQLiteQueueRepository{db: db}
}

// Get retrieves the entry for an item, (nil, nil) if absent.
func (r *SQLiteQueueRepository) Get(ctx context.Context, localID int64) (*model.RelistQueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM relist_queue WHERE local_id = ?", queueColumns)
	return scanQueueEntry(r.db.QueryRowContext(ctx, query, localID))
}

// List returns all entries in enqueue order.
func (r *SQLiteQueueRepository) List(ctx context.Context) ([]model.RelistQueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM relist_queue ORDER BY enqueued_at, local_id", queueColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list relist queue: %w", err)
	}
	defer rows.Close()

	var entries []model.RelistQueueEntry
	for rows.Next() {
		entry, err := scanQueueEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Insert stores a new entry.
func (r *SQLiteQueueRepository) Insert(ctx context.Context, entry *model.RelistQueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO relist_queue (local_id, status, error, jittered_title, mutated_thumbnail, relist_count, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.LocalID, string(entry.Status), entry.Error, entry.JitteredTitle,
		entry.MutatedThumbnail, entry.RelistCount, entry.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}
	return nil
}

// NextPending returns the oldest pending entry, (nil, nil) if none.
func (r *SQLiteQueueRepository) NextPending(ctx context.Context) (*model.RelistQueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT %s FROM relist_queue WHERE status = ? ORDER BY enqueued_at, local_id LIMIT 1",
		queueColumns)
	return scanQueueEntry(r.db.QueryRowContext(ctx, query, string(model.QueuePending)))
}

// UpdateStatus transitions an entry, recording an error message for the error state.
func (r *SQLiteQueueRepository) UpdateStatus(ctx context.Context, localID int64, status model.QueueStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx,
		`UPDATE relist_queue SET status = ?, error = ? WHERE local_id = ?`,
		string(status), errMsg, localID)
	if err != nil {
		return fmt.Errorf("failed to update queue entry status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateMutation records the jittered title and mutated thumbnail produced in
// the mutating step.
func (r *SQLiteQueueRepository) UpdateMutation(ctx context.Context, localID int64, jitteredTitle, thumbnail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx,
		`UPDATE relist_queue SET jittered_title = ?, mutated_thumbnail = ? WHERE local_id = ?`,
		jitteredTitle, thumbnail, localID)
	if err != nil {
		return fmt.Errorf("failed to update queue entry mutation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Claim atomically moves a pending entry to mutating. Returns false when
// the entry is gone or no longer pending, in which case the relist must not
// proceed.
func (r *SQLiteQueueRepository) Claim(ctx context.Context, localID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx,
		`UPDATE relist_queue SET status = ?, error = '' WHERE local_id = ? AND status = ?`,
		string(model.QueueMutating), localID, string(model.QueuePending))
	if err != nil {
		return false, fmt.Errorf("failed to claim queue entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteIfPending removes an entry only while it is still pending. Returns
// false when the entry is gone or already in flight.
func (r *SQLiteQueueRepository) DeleteIfPending(ctx context.Context, localID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM relist_queue WHERE local_id = ? AND status = ?`,
		localID, string(model.QueuePending))
	if err != nil {
		return false, fmt.Errorf("failed to delete pending queue entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Delete removes an entry regardless of state.
func (r *SQLiteQueueRepository) Delete(ctx context.Context, localID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `DELETE FROM relist_queue WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

// DeletePending removes all pending entries and reports how many.
func (r *SQLiteQueueRepository) DeletePending(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM relist_queue WHERE status = ?`, string(model.QueuePending))
	if err != nil {
		return 0, fmt.Errorf("failed to clear pending queue entries: %w", err)
	}
	return result.RowsAffected()
}

// ResetInFlight reclassifies mutating/uploading rows as error with the given
// message.
func (r *SQLiteQueueRepository) ResetInFlight(ctx context.Context, errMsg string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx,
		`UPDATE relist_queue SET status = ?, error = ? WHERE status IN (?, ?)`,
		string(model.QueueError), errMsg,
		string(model.QueueMutating), string(model.QueueUploading))
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-flight queue entries: %w", err)
	}
	return result.RowsAffected()
}

func scanQueueEntry(row *sql.Row) (*model.RelistQueueEntry, error) {
	entry, err := scanQueueFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

func scanQueueEntryRows(rows *sql.Rows) (*model.RelistQueueEntry, error) {
	return scanQueueFrom(rows)
}

func scanQueueFrom(s rowScanner) (*model.RelistQueueEntry, error) {
	var (
		entry  model.RelistQueueEntry
		status string
	)
	err := s.Scan(&entry.LocalID, &status, &entry.Error, &entry.JitteredTitle,
		&entry.MutatedThumbnail, &entry.RelistCount, &entry.EnqueuedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan queue entry: %w", err)
	}
	entry.Status = model.QueueStatus(status)
	return &entry, nil
}

// Ensure SQLiteQueueRepository implements QueueRepository
var _ QueueRepository = (*SQLiteQueueRepository)(nil)
