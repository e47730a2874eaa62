package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/cache"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/gateway"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/repository"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/apierror"
)

// VaultService owns the local item inventory: the vault is the source of
// truth and the marketplace is a projection of it.
type VaultService struct {
	vault    repository.VaultRepository
	queue    repository.QueueRepository
	cache    cache.Cache
	gw       gateway.Gateway
	ontology *OntologyService
	log      zerolog.Logger

	hydrationTTL time.Duration
	locks        *repository.ItemLocks
	now          func() time.Time
}

// NewVaultService creates a vault service. The lock set is shared with the
// reconciliation engine and the relist scheduler so every writer serializes
// on the same per-item mutex.
func NewVaultService(
	vault repository.VaultRepository,
	queue repository.QueueRepository,
	detailCache cache.Cache,
	gw gateway.Gateway,
	ontology *OntologyService,
	locks *repository.ItemLocks,
	hydrationTTL time.Duration,
	log zerolog.Logger,
) *VaultService {
	return &VaultService{
		vault:        vault,
		queue:        queue,
		cache:        detailCache,
		gw:           gw,
		ontology:     ontology,
		hydrationTTL: hydrationTTL,
		locks:        locks,
		log:          log.With().Str("component", "vault").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// List returns vault items matching the filter.
func (s *VaultService) List(ctx context.Context, filter model.ItemFilter) ([]model.InventoryItem, error) {
	return s.vault.List(ctx, filter)
}

// Get returns one item by local id.
func (s *VaultService) Get(ctx context.Context, localID int64) (*model.InventoryItem, error) {
	item, err := s.vault.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apierror.NotFound(fmt.Sprintf("item %d not found", localID))
	}
	return item, nil
}

// Upsert creates an item from the patch, or merges the patch into the item
// the patch's local id names. Fields absent from the patch are never touched:
// a partial payload cannot erase known data.
func (s *VaultService) Upsert(ctx context.Context, patch model.ItemPatch) (*model.InventoryItem, error) {
	if patch.LocalID == nil {
		return s.create(ctx, patch)
	}

	unlock := s.locks.Lock(*patch.LocalID)
	defer unlock()

	item, err := s.Get(ctx, *patch.LocalID)
	if err != nil {
		return nil, err
	}

	patch.Apply(item)
	if !item.Status.Valid() {
		return nil, apierror.BadRequest(fmt.Sprintf("unknown status %q", item.Status))
	}
	if err := s.vault.Update(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateRemoteID) {
			return nil, apierror.Conflict(fmt.Sprintf("remote id %d already linked to another item", *item.RemoteID))
		}
		return nil, err
	}
	return item, nil
}

func (s *VaultService) create(ctx context.Context, patch model.ItemPatch) (*model.InventoryItem, error) {
	item := &model.InventoryItem{
		Status:   model.StatusLocalOnly,
		Currency: "GBP",
	}
	patch.Apply(item)
	if !item.Status.Valid() {
		return nil, apierror.BadRequest(fmt.Sprintf("unknown status %q", item.Status))
	}
	if item.RemoteID == nil && item.Status.RequiresRemoteID() {
		return nil, apierror.BadRequest(fmt.Sprintf("status %q requires a remote id", item.Status))
	}

	if _, err := s.vault.Insert(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateRemoteID) {
			return nil, apierror.Conflict(fmt.Sprintf("remote id %d already linked to another item", *item.RemoteID))
		}
		return nil, err
	}
	return item, nil
}

// Delete removes an item. An item claimed by a pending or in-flight queue
// entry cannot be deleted; a terminal error entry is cascaded away.
func (s *VaultService) Delete(ctx context.Context, localID int64) error {
	unlock := s.locks.Lock(localID)
	defer unlock()

	item, err := s.Get(ctx, localID)
	if err != nil {
		return err
	}

	entry, err := s.queue.Get(ctx, localID)
	if err != nil {
		return err
	}
	if entry != nil {
		if entry.Status.Active() {
			return apierror.Conflict(fmt.Sprintf("item %d has a %s relist entry", localID, entry.Status))
		}
		if err := s.queue.Delete(ctx, localID); err != nil {
			return err
		}
	}

	if err := s.vault.Delete(ctx, localID); err != nil {
		return err
	}
	if item.RemoteID != nil {
		_ = s.cache.Delete(ctx, detailCacheKey(*item.RemoteID))
	}
	s.log.Info().Int64("local_id", localID).Msg("item deleted")
	return nil
}

// Push publishes the item's local state to the marketplace: a create for
// unlinked items, an update for linked ones. Validation fails closed before
// any network traffic.
func (s *VaultService) Push(ctx context.Context, localID int64) (*model.InventoryItem, error) {
	unlock := s.locks.Lock(localID)
	defer unlock()

	item, err := s.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if item.Status == model.StatusSold {
		return nil, apierror.Conflict(fmt.Sprintf("item %d is sold", localID))
	}

	if err := s.validateForPush(ctx, item); err != nil {
		return nil, err
	}

	draft := draftFromItem(item)
	if item.RemoteID == nil {
		remoteID, err := s.gw.CreateListing(ctx, draft)
		if err != nil {
			// Never published, so nothing can have diverged.
			return nil, upstreamError(err)
		}
		item.RemoteID = &remoteID
	} else {
		if err := s.gw.UpdateListing(ctx, *item.RemoteID, draft); err != nil {
			reason := model.ReasonFailedPush
			item.Status = model.StatusDiscrepancy
			item.DiscrepancyReason = &reason
			if updateErr := s.vault.Update(ctx, item); updateErr != nil {
				return nil, updateErr
			}
			return nil, upstreamError(err)
		}
	}

	item.Status = model.StatusLive
	item.DiscrepancyReason = nil
	if err := s.vault.Update(ctx, item); err != nil {
		return nil, err
	}
	s.log.Info().Int64("local_id", localID).Int64("remote_id", *item.RemoteID).Msg("pushed to marketplace")
	return item, nil
}

// EditLive merges the patch into the item and immediately pushes the result
// to the live listing. A failed push leaves the local edit applied and flags
// the divergence.
func (s *VaultService) EditLive(ctx context.Context, localID int64, patch model.ItemPatch) (*model.InventoryItem, error) {
	patch.LocalID = &localID
	if _, err := s.Upsert(ctx, patch); err != nil {
		return nil, err
	}
	return s.Push(ctx, localID)
}

// Pull overwrites the item's local fields with the live listing's current
// state. This is the accept-remote arm of discrepancy resolution.
func (s *VaultService) Pull(ctx context.Context, localID int64) (*model.InventoryItem, error) {
	unlock := s.locks.Lock(localID)
	defer unlock()

	item, err := s.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if item.RemoteID == nil {
		return nil, apierror.BadRequest(fmt.Sprintf("item %d has no linked listing", localID))
	}

	detail, err := s.fetchDetail(ctx, *item.RemoteID, true)
	if err != nil {
		return nil, upstreamError(err)
	}

	applyDetail(item, detail, s.now())
	item.Status = statusFromLifecycle(detail.IsHidden, detail.IsReserved, detail.IsClosed)
	item.DiscrepancyReason = nil
	if err := s.vault.Update(ctx, item); err != nil {
		return nil, err
	}
	s.log.Info().Int64("local_id", localID).Msg("pulled live state into vault")
	return item, nil
}

// SetVisibility hides or unhides the live listing and mirrors the result
// locally.
func (s *VaultService) SetVisibility(ctx context.Context, localID int64, hidden bool) (*model.InventoryItem, error) {
	unlock := s.locks.Lock(localID)
	defer unlock()

	item, err := s.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if item.RemoteID == nil {
		return nil, apierror.BadRequest(fmt.Sprintf("item %d has no linked listing", localID))
	}

	if err := s.gw.SetVisibility(ctx, *item.RemoteID, hidden); err != nil {
		return nil, upstreamError(err)
	}

	if hidden {
		item.Status = model.StatusHidden
	} else {
		item.Status = model.StatusLive
	}
	if err := s.vault.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetItemDetail returns the full detail of a listing, served from the
// hydration cache when fresh.
func (s *VaultService) GetItemDetail(ctx context.Context, remoteID int64) (*gateway.RemoteDetail, error) {
	detail, err := s.fetchDetail(ctx, remoteID, false)
	if err != nil {
		return nil, upstreamError(err)
	}
	return detail, nil
}

// Completeness reports whether the item's cached detail could back a relist
// without another fetch.
type Completeness struct {
	Complete   bool       `json:"complete"`
	Fresh      bool       `json:"fresh"`
	Missing    []string   `json:"missing,omitempty"`
	HydratedAt *time.Time `json:"hydrated_at,omitempty"`
}

// GetCompleteness reports the item's detail completeness and freshness.
func (s *VaultService) GetCompleteness(ctx context.Context, localID int64) (*Completeness, error) {
	item, err := s.Get(ctx, localID)
	if err != nil {
		return nil, err
	}

	report := &Completeness{
		Complete:   item.DetailComplete(),
		Fresh:      item.DetailFresh(s.hydrationTTL, s.now()),
		HydratedAt: item.DetailHydratedAt,
	}
	if item.CategoryID == nil {
		report.Missing = append(report.Missing, "category_id")
	}
	if item.ConditionID == nil {
		report.Missing = append(report.Missing, "condition_id")
	}
	if item.Description == "" {
		report.Missing = append(report.Missing, "description")
	}
	return report, nil
}

// Hydrate fills the item's detail fields from the marketplace unless the
// cached detail is still fresh. Failures are soft: the item keeps whatever
// it had and the caller gets ok=false.
func (s *VaultService) Hydrate(ctx context.Context, item *model.InventoryItem, force bool) bool {
	if item.RemoteID == nil {
		return false
	}
	if !force && item.DetailFresh(s.hydrationTTL, s.now()) {
		return true
	}

	detail, err := s.fetchDetail(ctx, *item.RemoteID, force)
	if err != nil {
		s.log.Warn().Err(err).Int64("local_id", item.LocalID).Msg("detail hydration failed")
		return false
	}

	applyDetail(item, detail, s.now())
	if err := s.vault.Update(ctx, item); err != nil {
		s.log.Error().Err(err).Int64("local_id", item.LocalID).Msg("failed to persist hydrated detail")
		return false
	}
	return true
}

// HydrationResult reports one hydrate attempt. Hydrated is false when the
// fetch failed softly; the item still carries its last known fields.
type HydrationResult struct {
	Item     *model.InventoryItem `json:"item"`
	Hydrated bool                 `json:"hydrated"`
}

// HydrateItem hydrates one item by local id, typically when an editor opens
// it. Unlinked items are rejected; a failed fetch is reported, not an error.
func (s *VaultService) HydrateItem(ctx context.Context, localID int64, force bool) (*HydrationResult, error) {
	unlock := s.locks.Lock(localID)
	defer unlock()

	item, err := s.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if item.RemoteID == nil {
		return nil, apierror.BadRequest(fmt.Sprintf("item %d has no linked listing to hydrate from", localID))
	}

	return &HydrationResult{Item: item, Hydrated: s.Hydrate(ctx, item, force)}, nil
}

// fetchDetail reads a listing's detail through the hydration cache.
func (s *VaultService) fetchDetail(ctx context.Context, remoteID int64, force bool) (*gateway.RemoteDetail, error) {
	key := detailCacheKey(remoteID)
	if force {
		_ = s.cache.Delete(ctx, key)
	}

	data, err := s.cache.GetOrSet(ctx, key, s.hydrationTTL, func() ([]byte, error) {
		detail, err := s.gw.FetchDetail(ctx, remoteID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(detail)
	})
	if err != nil {
		return nil, err
	}

	var detail gateway.RemoteDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// validateForPush is the fail-closed gate in front of every outbound
// create/update. A malformed listing must never reach the marketplace.
func (s *VaultService) validateForPush(ctx context.Context, item *model.InventoryItem) error {
	var details []apierror.FieldError
	if item.Title == "" {
		details = append(details, apierror.FieldError{Field: "title", Message: "title is required"})
	}
	if !item.Price.IsPositive() {
		details = append(details, apierror.FieldError{Field: "price", Message: "price must be greater than zero"})
	}
	if item.ConditionID == nil {
		details = append(details, apierror.FieldError{Field: "condition_id", Message: "condition is required"})
	}

	if item.CategoryID == nil {
		details = append(details, apierror.FieldError{Field: "category_id", Message: "category is required"})
	} else {
		inMirror, err := s.ontology.InMirror(ctx, *item.CategoryID)
		if err != nil {
			return err
		}
		if !inMirror {
			details = append(details, apierror.FieldError{
				Field:   "category_id",
				Message: fmt.Sprintf("category %d is not in the taxonomy mirror", *item.CategoryID),
			})
		} else {
			leaf, err := s.ontology.IsLeaf(ctx, *item.CategoryID)
			if err != nil {
				return err
			}
			if !leaf {
				details = append(details, apierror.FieldError{
					Field:   "category_id",
					Message: fmt.Sprintf("category %d is not a leaf category", *item.CategoryID),
				})
			}
		}
	}

	if len(details) > 0 {
		return apierror.ValidationError("item is not publishable", details...)
	}
	return nil
}

// draftFromItem maps a vault item onto the outbound listing shape.
func draftFromItem(item *model.InventoryItem) gateway.ListingDraft {
	draft := gateway.ListingDraft{
		Title:         item.Title,
		Description:   item.Description,
		Price:         item.Price,
		Currency:      item.Currency,
		BrandID:       item.BrandID,
		ColorIDs:      item.ColorIDs,
		SizeID:        item.SizeID,
		ConditionID:   item.ConditionID,
		PackageSizeID: item.PackageSizeID,
	}
	if item.CategoryID != nil {
		draft.CategoryID = *item.CategoryID
	}
	return draft
}

// applyDetail overwrites the item's detail fields from a hydrated listing.
func applyDetail(item *model.InventoryItem, detail *gateway.RemoteDetail, now time.Time) {
	item.Title = detail.Title
	item.Description = detail.Description
	if !detail.Price.IsZero() {
		item.Price = detail.Price
	}
	if detail.Currency != "" {
		item.Currency = detail.Currency
	}
	if detail.CategoryID != nil {
		item.CategoryID = detail.CategoryID
	}
	if detail.BrandID != nil {
		item.BrandID = detail.BrandID
	}
	if len(detail.ColorIDs) > 0 {
		item.ColorIDs = detail.ColorIDs
	}
	if detail.SizeID != nil {
		item.SizeID = detail.SizeID
	}
	if detail.ConditionID != nil {
		item.ConditionID = detail.ConditionID
	}
	if detail.PackageSizeID != nil {
		item.PackageSizeID = detail.PackageSizeID
	}
	if len(detail.PhotoURLs) > 0 {
		images := make([]model.Image, 0, len(detail.PhotoURLs))
		for _, url := range detail.PhotoURLs {
			images = append(images, model.Image{URL: url})
		}
		item.Images = images
	}
	hydratedAt := now
	item.DetailHydratedAt = &hydratedAt
}

// statusFromLifecycle maps remote lifecycle flags onto a vault status.
// Closed wins over reserved, reserved over hidden.
func statusFromLifecycle(hidden, reserved, closed bool) model.ItemStatus {
	switch {
	case closed:
		return model.StatusSold
	case reserved:
		return model.StatusReserved
	case hidden:
		return model.StatusHidden
	default:
		return model.StatusLive
	}
}

func detailCacheKey(remoteID int64) string {
	return fmt.Sprintf("item:%d", remoteID)
}
