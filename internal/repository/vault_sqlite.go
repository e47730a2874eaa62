package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
)

const itemColumns = `local_id, remote_id, status, discrepancy_reason, title, description,
	price, currency, category_id, brand_id, color_ids, size_id, condition_id,
	package_size_id, attributes, images, relist_count, detail_hydrated_at,
	created_at, updated_at`

// SQLiteVaultRepository implements VaultRepository using SQLite.
type SQLiteVaultRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteVaultRepository creates a vault repository on an open database.
func NewSQLiteVaultRepository(db *sql.DB) *SQLiteVaultRepository {
	return &SQLiteVaultRepository{db: db}
}

// Get retrieves an item by local id.
func (r *SQLiteVaultRepository) Get(ctx context.Context, localID int64) (*model.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := fmt.Sprintf(`SELECT %s FROM vault_items WHERE local_id = ?`, itemColumns)
	return scanItem(r.db.QueryRowContext(ctx, query, localID))
}

// GetByRemoteID retrieves the item linked to a remote listing.
func (r *SQLiteVaultRepository) GetByRemoteID(ctx context.Context, remoteID int64) (*model.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := fmt.Sprintf(`SELECT %s FROM vault_items WHERE remote_id = ?`, itemColumns)
	return scanItem(r.db.QueryRowContext(ctx, query, remoteID))
}

// List returns items matching the filter, newest first.
func (r *SQLiteVaultRepository) List(ctx context.Context, filter model.ItemFilter) ([]model.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := fmt.Sprintf(`SELECT %s FROM vault_items`, itemColumns)
	var (
		clauses []string
		args    []interface{}
	)
	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if len(filter.CategoryIn) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.CategoryIn)), ",")
		clauses = append(clauses, fmt.Sprintf("category_id IN (%s)", placeholders))
		for _, id := range filter.CategoryIn {
			args = append(args, id)
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY local_id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault items: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		item, err := scanItemRows(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Insert stores a new item and returns its local id.
func (r *SQLiteVaultRepository) Insert(ctx context.Context, item *model.InventoryItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	args, err := itemArgs(item)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	args = append(args, now, now)

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO vault_items (remote_id, status, discrepancy_reason, title, description,
			price, currency, category_id, brand_id, color_ids, size_id, condition_id,
			package_size_id, attributes, images, relist_count, detail_hydrated_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicateRemoteID
		}
		return 0, fmt.Errorf("failed to insert vault item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	item.LocalID = id
	item.CreatedAt = now
	item.UpdatedAt = now
	return id, nil
}

// Update overwrites an existing item's row.
func (r *SQLiteVaultRepository) Update(ctx context.Context, item *model.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	args, err := itemArgs(item)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	args = append(args, now, item.LocalID)

	result, err := r.db.ExecContext(ctx, `
		UPDATE vault_items SET remote_id = ?, status = ?, discrepancy_reason = ?,
			title = ?, description = ?, price = ?, currency = ?, category_id = ?,
			brand_id = ?, color_ids = ?, size_id = ?, condition_id = ?,
			package_size_id = ?, attributes = ?, images = ?, relist_count = ?,
			detail_hydrated_at = ?, updated_at = ?
		WHERE local_id = ?`, args...)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateRemoteID
		}
		return fmt.Errorf("failed to update vault item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	item.UpdatedAt = now
	return nil
}

// Delete removes an item's row.
func (r *SQLiteVaultRepository) Delete(ctx context.Context, localID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `DELETE FROM vault_items WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete vault item: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *SQLiteVaultRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*model.InventoryItem, error) {
	item, err := scanItemRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func scanItemRows(row rowScanner) (*model.InventoryItem, error) {
	var r itemRow
	err := row.Scan(
		&r.localID, &r.remoteID, &r.status, &r.discrepancyReason, &r.title,
		&r.description, &r.price, &r.currency, &r.categoryID, &r.brandID,
		&r.colorIDs, &r.sizeID, &r.conditionID, &r.packageSizeID,
		&r.attributes, &r.images, &r.relistCount, &r.detailHydratedAt,
		&r.createdAt, &r.updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r.toItem()
}

func isDuplicate(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "Duplicate entry") // mysql
}

// Ensure SQLiteVaultRepository implements VaultRepository
var _ VaultRepository = (*SQLiteVaultRepository)(nil)
