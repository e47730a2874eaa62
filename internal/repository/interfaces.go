package repository

import (
	"context"
	"errors"
	"time"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
)

// ErrDuplicateRemoteID is returned when an insert or update would link two
// vault items to the same remote listing.
var ErrDuplicateRemoteID = errors.New("remote id already linked to another item")

// VaultRepository defines vault item data access methods. Lookups return
// (nil, nil) when no row matches.
type VaultRepository interface {
	// Get retrieves an item by local id.
	Get(ctx context.Context, localID int64) (*model.InventoryItem, error)

	// GetByRemoteID retrieves the item linked to a remote listing.
	GetByRemoteID(ctx context.Context, remoteID int64) (*model.InventoryItem, error)

	// List returns items matching the filter, newest first.
	List(ctx context.Context, filter model.ItemFilter) ([]model.InventoryItem, error)

	// Insert stores a new item and returns its local id.
	Insert(ctx context.Context, item *model.InventoryItem) (int64, error)

	// Update overwrites an existing item's row.
	Update(ctx context.Context, item *model.InventoryItem) error

	// Delete removes an item's row.
	Delete(ctx context.Context, localID int64) error

	// Close closes the repository connection.
	Close() error
}

// QueueRepository defines relist queue data access methods. The queue holds
// at most one live row per local id; iteration order is enqueue order.
type QueueRepository interface {
	// Get retrieves the entry for an item, (nil, nil) if absent.
	Get(ctx context.Context, localID int64) (*model.RelistQueueEntry, error)

	// List returns all entries in enqueue order.
	List(ctx context.Context) ([]model.RelistQueueEntry, error)

	// Insert stores a new entry.
	Insert(ctx context.Context, entry *model.RelistQueueEntry) error

	// NextPending returns the oldest pending entry, (nil, nil) if none.
	NextPending(ctx context.Context) (*model.RelistQueueEntry, error)

	// UpdateStatus transitions an entry, recording an error message for
	// the error state.
	UpdateStatus(ctx context.Context, localID int64, status model.QueueStatus, errMsg string) error

	// UpdateMutation records the jittered title and mutated thumbnail
	// produced in the mutating step.
	UpdateMutation(ctx context.Context, localID int64, jitteredTitle, thumbnail string) error

	// Claim atomically moves a pending entry to mutating, false when the
	// entry is gone or no longer pending.
	Claim(ctx context.Context, localID int64) (bool, error)

	// Delete removes an entry regardless of state.
	Delete(ctx context.Context, localID int64) error

	// DeleteIfPending removes an entry only while it is still pending,
	// false when the entry is gone or already in flight.
	DeleteIfPending(ctx context.Context, localID int64) (bool, error)

	// DeletePending removes all pending entries and reports how many.
	DeletePending(ctx context.Context) (int64, error)

	// ResetInFlight reclassifies mutating/uploading rows as error with the
	// given message. Called once at startup: an entry caught mid-flight
	// cannot be trusted to have completed exactly once.
	ResetInFlight(ctx context.Context, errMsg string) (int64, error)
}

// OntologyRepository defines taxonomy mirror data access methods. The mirror
// is versioned per entity type and replaced wholesale on refresh.
type OntologyRepository interface {
	// ListByType returns the current snapshot for one entity type.
	ListByType(ctx context.Context, t model.EntityType) ([]model.OntologyEntity, error)

	// IDSet returns the entity ids currently mirrored for a type.
	IDSet(ctx context.Context, t model.EntityType) (map[int64]struct{}, error)

	// Replace swaps the full snapshot for a type in one transaction and
	// records the fetch timestamp.
	Replace(ctx context.Context, t model.EntityType, entities []model.OntologyEntity, fetchedAt time.Time) error

	// Version returns the snapshot's fetch timestamp, nil if never fetched.
	Version(ctx context.Context, t model.EntityType) (*time.Time, error)
}
