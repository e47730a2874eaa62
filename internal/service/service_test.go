package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/cache"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/events"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/gateway"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/repository"
)

// fakeGateway is an in-memory Gateway for service tests. Every outbound call
// is recorded so tests can assert on what reached the marketplace.
type fakeGateway struct {
	mu sync.Mutex

	wardrobe    []gateway.RemoteListing
	wardrobeErr error
	// wardrobeGate, when set, blocks FetchWardrobe until closed.
	wardrobeGate chan struct{}

	details     map[int64]*gateway.RemoteDetail
	detailErr   error
	detailCalls int

	taxonomy    map[model.EntityType][]model.OntologyEntity
	taxonomyErr error

	nextRemoteID int64
	createErr    error
	created      []gateway.ListingDraft
	updateErr    error
	updated      map[int64]gateway.ListingDraft
	deleted      []int64
	visibility   map[int64]bool

	relistID  int64
	relistErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		details:      make(map[int64]*gateway.RemoteDetail),
		taxonomy:     make(map[model.EntityType][]model.OntologyEntity),
		updated:      make(map[int64]gateway.ListingDraft),
		visibility:   make(map[int64]bool),
		nextRemoteID: 9000,
	}
}

func (f *fakeGateway) FetchWardrobe(ctx context.Context) ([]gateway.RemoteListing, error) {
	f.mu.Lock()
	gate := f.wardrobeGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wardrobeErr != nil {
		return nil, f.wardrobeErr
	}
	out := make([]gateway.RemoteListing, len(f.wardrobe))
	copy(out, f.wardrobe)
	return out, nil
}

func (f *fakeGateway) FetchDetail(ctx context.Context, remoteID int64) (*gateway.RemoteDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	detail, ok := f.details[remoteID]
	if !ok {
		return nil, &gateway.Error{Code: gateway.CodeParseError, Message: "no such item"}
	}
	copied := *detail
	return &copied, nil
}

func (f *fakeGateway) CreateListing(ctx context.Context, draft gateway.ListingDraft) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, draft)
	f.nextRemoteID++
	return f.nextRemoteID, nil
}

func (f *fakeGateway) UpdateListing(ctx context.Context, remoteID int64, draft gateway.ListingDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated[remoteID] = draft
	return nil
}

func (f *fakeGateway) DeleteListing(ctx context.Context, remoteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, remoteID)
	return nil
}

func (f *fakeGateway) SetVisibility(ctx context.Context, remoteID int64, hidden bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visibility[remoteID] = hidden
	return nil
}

func (f *fakeGateway) UploadImage(ctx context.Context, sessionID, path string) (int64, error) {
	return 0, errors.New("not supported in service tests")
}

func (f *fakeGateway) Relist(ctx context.Context, oldRemoteID int64, draft gateway.ListingDraft, imagePaths []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.relistErr != nil {
		return 0, f.relistErr
	}
	f.deleted = append(f.deleted, oldRemoteID)
	return f.relistID, nil
}

func (f *fakeGateway) FetchTaxonomy(ctx context.Context, t model.EntityType) ([]model.OntologyEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taxonomyErr != nil {
		return nil, f.taxonomyErr
	}
	return f.taxonomy[t], nil
}

var _ gateway.Gateway = (*fakeGateway)(nil)

// testEnv wires real repositories on an in-memory database to the fake
// gateway.
type testEnv struct {
	db        *sql.DB
	vaultRepo *repository.SQLiteVaultRepository
	queueRepo *repository.SQLiteQueueRepository
	ontRepo   *repository.SQLiteOntologyRepository
	gw        *fakeGateway
	bus       *events.Bus
	locks     *repository.ItemLocks

	vault     *VaultService
	ontology  *OntologyService
	reconcile *ReconcileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := repository.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:        db,
		vaultRepo: repository.NewSQLiteVaultRepository(db),
		queueRepo: repository.NewSQLiteQueueRepository(db),
		ontRepo:   repository.NewSQLiteOntologyRepository(db),
		gw:        newFakeGateway(),
		bus:       events.NewBus(zerolog.Nop()),
	}
	t.Cleanup(env.bus.Close)

	env.locks = repository.NewItemLocks()
	env.ontology = NewOntologyService(env.ontRepo, env.vaultRepo, env.gw, env.bus, zerolog.Nop())
	env.vault = NewVaultService(env.vaultRepo, env.queueRepo, cache.NewMemoryCache(), env.gw,
		env.ontology, env.locks, time.Hour, zerolog.Nop())
	env.reconcile = NewReconcileService(env.vaultRepo, env.queueRepo, env.gw, env.bus, env.locks, zerolog.Nop())
	return env
}

// seedCategories loads a three-level category tree: Women > Clothes > Dresses,
// where only Dresses (id 3) is a leaf.
func (env *testEnv) seedCategories(t *testing.T) {
	t.Helper()
	entities := []model.OntologyEntity{
		{EntityID: 1, Type: model.EntityCategory, Name: "Women"},
		{EntityID: 2, Type: model.EntityCategory, ParentID: int64Ptr(1), Name: "Clothes"},
		{EntityID: 3, Type: model.EntityCategory, ParentID: int64Ptr(2), Name: "Dresses"},
	}
	require.NoError(t, env.ontRepo.Replace(context.Background(), model.EntityCategory, entities, time.Now().UTC()))
}

// seedItem inserts a publishable item linked to the given remote id (zero
// for unlinked).
func (env *testEnv) seedItem(t *testing.T, title string, remoteID int64) *model.InventoryItem {
	t.Helper()
	item := &model.InventoryItem{
		Status:      model.StatusLocalOnly,
		Title:       title,
		Description: "well loved",
		Price:       mustDecimal("15.00"),
		Currency:    "GBP",
		CategoryID:  int64Ptr(3),
		ConditionID: int64Ptr(2),
	}
	if remoteID != 0 {
		item.RemoteID = &remoteID
		item.Status = model.StatusLive
	}
	_, err := env.vaultRepo.Insert(context.Background(), item)
	require.NoError(t, err)
	return item
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }

func mustDecimal(s string) decimal.Decimal { return decimal.RequireFromString(s) }
