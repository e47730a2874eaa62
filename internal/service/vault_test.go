package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/gateway"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/apierror"
)

func TestUpsertCreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item, err := env.vault.Upsert(ctx, model.ItemPatch{
		Title: strPtr("Wool scarf"),
		Price: decimalPtr("8.00"),
	})
	require.NoError(t, err)
	assert.NotZero(t, item.LocalID)
	assert.Equal(t, model.StatusLocalOnly, item.Status)
	assert.Equal(t, "GBP", item.Currency)
	assert.Nil(t, item.RemoteID)
}

func TestUpsertCreateNonLocalNeedsRemoteID(t *testing.T) {
	env := newTestEnv(t)
	status := model.StatusLive

	_, err := env.vault.Upsert(context.Background(), model.ItemPatch{
		Title:  strPtr("orphan"),
		Status: &status,
	})
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BAD_REQUEST", apiErr.Code)
}

func TestUpsertMergeNeverClearsOmittedFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.vault.Upsert(ctx, model.ItemPatch{
		Title:       strPtr("Summer dress"),
		Description: strPtr("floral print"),
		CategoryID:  int64Ptr(3),
	})
	require.NoError(t, err)

	// A patch that only touches the title leaves everything else alone.
	updated, err := env.vault.Upsert(ctx, model.ItemPatch{
		LocalID: &created.LocalID,
		Title:   strPtr("Summer dress, size M"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Summer dress, size M", updated.Title)
	assert.Equal(t, "floral print", updated.Description)
	require.NotNil(t, updated.CategoryID)
	assert.Equal(t, int64(3), *updated.CategoryID)

	// An explicit empty value does clear.
	cleared, err := env.vault.Upsert(ctx, model.ItemPatch{
		LocalID:     &created.LocalID,
		Description: strPtr(""),
	})
	require.NoError(t, err)
	assert.Empty(t, cleared.Description)
	assert.Equal(t, "Summer dress, size M", cleared.Title)
}

func TestUpsertUnknownLocalID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.vault.Upsert(context.Background(), model.ItemPatch{
		LocalID: int64Ptr(404),
		Title:   strPtr("nope"),
	})
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestUpsertDuplicateRemoteLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedItem(t, "holder", 500)
	status := model.StatusLive

	_, err := env.vault.Upsert(ctx, model.ItemPatch{
		Title:    strPtr("pretender"),
		Status:   &status,
		RemoteID: int64Ptr(500),
	})
	assert.True(t, apierror.IsConflict(err))
}

func TestDeleteBlockedByActiveQueueEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.seedItem(t, "queued", 600)
	require.NoError(t, env.queueRepo.Insert(ctx, &model.RelistQueueEntry{
		LocalID: item.LocalID,
		Status:  model.QueuePending,
	}))

	err := env.vault.Delete(ctx, item.LocalID)
	assert.True(t, apierror.IsConflict(err))

	// The item and its entry are untouched.
	got, err := env.vaultRepo.Get(ctx, item.LocalID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDeleteCascadesTerminalQueueEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.seedItem(t, "failed relist", 601)
	require.NoError(t, env.queueRepo.Insert(ctx, &model.RelistQueueEntry{
		LocalID: item.LocalID,
		Status:  model.QueueError,
		Error:   "upload failed",
	}))

	require.NoError(t, env.vault.Delete(ctx, item.LocalID))

	got, err := env.vaultRepo.Get(ctx, item.LocalID)
	require.NoError(t, err)
	assert.Nil(t, got)
	entry, err := env.queueRepo.Get(ctx, item.LocalID)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestPushValidationFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t)
	ctx := context.Background()

	item, err := env.vault.Upsert(ctx, model.ItemPatch{Title: strPtr("")})
	require.NoError(t, err)

	_, err = env.vault.Push(ctx, item.LocalID)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)

	fields := make(map[string]bool)
	for _, d := range apiErr.Details {
		fields[d.Field] = true
	}
	assert.True(t, fields["title"])
	assert.True(t, fields["price"])
	assert.True(t, fields["condition_id"])
	assert.True(t, fields["category_id"])

	// Nothing reached the marketplace.
	assert.Empty(t, env.gw.created)
	assert.Empty(t, env.gw.updated)
}

func TestPushRejectsNonLeafCategory(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t)
	ctx := context.Background()

	item, err := env.vault.Upsert(ctx, model.ItemPatch{
		Title:       strPtr("Coat"),
		Price:       decimalPtr("30.00"),
		ConditionID: int64Ptr(2),
		CategoryID:  int64Ptr(2), // Clothes, has children
	})
	require.NoError(t, err)

	_, err = env.vault.Push(ctx, item.LocalID)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Len(t, apiErr.Details, 1)
	assert.Equal(t, "category_id", apiErr.Details[0].Field)
}

func TestPushRejectsCategoryOutsideMirror(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t)
	ctx := context.Background()

	item, err := env.vault.Upsert(ctx, model.ItemPatch{
		Title:       strPtr("Coat"),
		Price:       decimalPtr("30.00"),
		ConditionID: int64Ptr(2),
		CategoryID:  int64Ptr(999),
	})
	require.NoError(t, err)

	_, err = env.vault.Push(ctx, item.LocalID)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Len(t, apiErr.Details, 1)
	assert.Contains(t, apiErr.Details[0].Message, "not in the taxonomy mirror")
}

func TestPushCreatesUnlinkedItem(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t)
	ctx := context.Background()

	item := env.seedItem(t, "Silk blouse", 0)
	pushed, err := env.vault.Push(ctx, item.LocalID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusLive, pushed.Status)
	require.NotNil(t, pushed.RemoteID)
	require.Len(t, env.gw.created, 1)
	assert.Equal(t, "Silk blouse", env.gw.created[0].Title)
	assert.Equal(t, int64(3), env.gw.created[0].CategoryID)
}

func TestPushUpdateFailureFlagsDiscrepancy(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t)
	ctx := context.Background()

	item := env.seedItem(t, "Leather belt", 700)
	env.gw.updateErr = &gateway.Error{Code: gateway.CodeHTTPError, Message: "HTTP 500", StatusCode: 500}

	_, err := env.vault.Push(ctx, item.LocalID)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UPSTREAM_ERROR", apiErr.Code)

	got, err := env.vaultRepo.Get(ctx, item.LocalID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDiscrepancy, got.Status)
	require.NotNil(t, got.DiscrepancyReason)
	assert.Equal(t, model.ReasonFailedPush, *got.DiscrepancyReason)
}

func TestPushSoldItemConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.seedItem(t, "gone", 701)
	item.Status = model.StatusSold
	require.NoError(t, env.vaultRepo.Update(ctx, item))

	_, err := env.vault.Push(ctx, item.LocalID)
	assert.True(t, apierror.IsConflict(err))
}

func TestPushResolvesDiscrepancy(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategories(t)
	ctx := context.Background()

	item := env.seedItem(t, "flagged", 702)
	reason := model.ReasonExternalChange
	item.Status = model.StatusDiscrepancy
	item.DiscrepancyReason = &reason
	require.NoError(t, env.vaultRepo.Update(ctx, item))

	pushed, err := env.vault.Push(ctx, item.LocalID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLive, pushed.Status)
	assert.Nil(t, pushed.DiscrepancyReason)
	assert.Contains(t, env.gw.updated, int64(702))
}

func TestPullOverwritesLocalState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.seedItem(t, "stale local title", 800)
	reason := model.ReasonExternalChange
	item.Status = model.StatusDiscrepancy
	item.DiscrepancyReason = &reason
	require.NoError(t, env.vaultRepo.Update(ctx, item))

	env.gw.details[800] = &gateway.RemoteDetail{
		RemoteListing: gateway.RemoteListing{
			ID:       800,
			Title:    "Fresh remote title",
			Price:    mustDecimal("22.00"),
			Currency: "GBP",
		},
		Description: "remote description",
		ColorIDs:    []int64{4},
		ConditionID: int64Ptr(2),
		PhotoURLs:   []string{"https://cdn.example/1.jpg"},
	}

	pulled, err := env.vault.Pull(ctx, item.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "Fresh remote title", pulled.Title)
	assert.Equal(t, "remote description", pulled.Description)
	assert.True(t, pulled.Price.Equal(mustDecimal("22.00")))
	assert.Equal(t, model.StatusLive, pulled.Status)
	assert.Nil(t, pulled.DiscrepancyReason)
	require.Len(t, pulled.Images, 1)
	assert.Equal(t, "https://cdn.example/1.jpg", pulled.Images[0].URL)
	assert.NotNil(t, pulled.DetailHydratedAt)
}

func TestPullReservedListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.seedItem(t, "reserved upstream", 801)
	env.gw.details[801] = &gateway.RemoteDetail{
		RemoteListing: gateway.RemoteListing{
			ID:         801,
			Title:      "reserved upstream",
			Price:      mustDecimal("15.00"),
			IsReserved: true,
		},
	}

	pulled, err := env.vault.Pull(ctx, item.LocalID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, pulled.Status)
}

func TestPullUnlinkedItem(t *testing.T) {
	env := newTestEnv(t)

	item := env.seedItem(t, "local only", 0)
	_, err := env.vault.Pull(context.Background(), item.LocalID)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BAD_REQUEST", apiErr.Code)
}

func TestSetVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.seedItem(t, "now you see me", 900)

	hidden, err := env.vault.SetVisibility(ctx, item.LocalID, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusHidden, hidden.Status)
	assert.True(t, env.gw.visibility[900])

	visible, err := env.vault.SetVisibility(ctx, item.LocalID, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLive, visible.Status)
	assert.False(t, env.gw.visibility[900])
}

func TestGetItemDetailCaches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gw.details[910] = &gateway.RemoteDetail{
		RemoteListing: gateway.RemoteListing{ID: 910, Title: "cached", Price: mustDecimal("5.00")},
	}

	first, err := env.vault.GetItemDetail(ctx, 910)
	require.NoError(t, err)
	assert.Equal(t, "cached", first.Title)

	_, err = env.vault.GetItemDetail(ctx, 910)
	require.NoError(t, err)
	assert.Equal(t, 1, env.gw.detailCalls, "second read should come from the cache")

	// Pull forces a refetch through the same cache key.
	item := env.seedItem(t, "cached", 910)
	_, err = env.vault.Pull(ctx, item.LocalID)
	require.NoError(t, err)
	assert.Equal(t, 2, env.gw.detailCalls)
}

func TestGetCompleteness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item, err := env.vault.Upsert(ctx, model.ItemPatch{Title: strPtr("bare")})
	require.NoError(t, err)

	report, err := env.vault.GetCompleteness(ctx, item.LocalID)
	require.NoError(t, err)
	assert.False(t, report.Complete)
	assert.False(t, report.Fresh)
	assert.ElementsMatch(t, []string{"category_id", "condition_id", "description"}, report.Missing)
}

func TestCompletenessFreshnessWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	env.vault.now = func() time.Time { return now }

	item := env.seedItem(t, "complete", 920)
	hydratedAt := now.Add(-30 * time.Minute)
	item.DetailHydratedAt = &hydratedAt
	require.NoError(t, env.vaultRepo.Update(ctx, item))

	report, err := env.vault.GetCompleteness(ctx, item.LocalID)
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.True(t, report.Fresh, "hydrated 30m ago with a 1h TTL")

	// Past the TTL the detail goes stale.
	env.vault.now = func() time.Time { return now.Add(time.Hour) }
	report, err = env.vault.GetCompleteness(ctx, item.LocalID)
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.False(t, report.Fresh)
}

func TestHydrateSoftFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.seedItem(t, "unreachable", 930)
	env.gw.detailErr = errors.New("network down")

	ok := env.vault.Hydrate(ctx, item, true)
	assert.False(t, ok)

	// The stored row kept its previous state.
	got, err := env.vaultRepo.Get(ctx, item.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "unreachable", got.Title)
	assert.Nil(t, got.DetailHydratedAt)
}

func TestHydrateSkipsFreshDetail(t *testing.T) {
	env := newTestEnv(t)

	now := time.Now().UTC()
	env.vault.now = func() time.Time { return now }

	item := env.seedItem(t, "fresh", 940)
	hydratedAt := now.Add(-time.Minute)
	item.DetailHydratedAt = &hydratedAt

	ok := env.vault.Hydrate(context.Background(), item, false)
	assert.True(t, ok)
	assert.Zero(t, env.gw.detailCalls)
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
