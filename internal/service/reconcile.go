package service

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/events"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/gateway"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/repository"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/apierror"
)

// SyncReport summarizes one reconciliation run.
type SyncReport struct {
	Total         int `json:"total"`
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Discrepancies int `json:"discrepancies"`
	MarkedSold    int `json:"marked_sold"`
	Errors        int `json:"errors"`
}

// ReconcileService aligns the vault with a wardrobe snapshot from the
// marketplace. Runs are serialized: a second call while one is in progress
// is rejected, never queued.
type ReconcileService struct {
	vault   repository.VaultRepository
	queue   repository.QueueRepository
	gw      gateway.Gateway
	bus     *events.Bus
	locks   *repository.ItemLocks
	log     zerolog.Logger
	running atomic.Bool
}

// NewReconcileService creates a reconciliation service. It shares the
// per-item lock set with the vault service: every write re-reads the row
// under the item's lock, so a manual edit landing mid-run is never reverted
// by a stale snapshot row.
func NewReconcileService(vault repository.VaultRepository, queue repository.QueueRepository, gw gateway.Gateway, bus *events.Bus, locks *repository.ItemLocks, log zerolog.Logger) *ReconcileService {
	return &ReconcileService{
		vault: vault,
		queue: queue,
		gw:    gw,
		bus:   bus,
		locks: locks,
		log:   log.With().Str("component", "reconcile").Logger(),
	}
}

// Running reports whether a reconciliation is in progress.
func (s *ReconcileService) Running() bool {
	return s.running.Load()
}

// Run fetches the full wardrobe snapshot and reconciles every vault item
// against it. One failing item never aborts the run; it is logged, counted,
// and skipped.
func (s *ReconcileService) Run(ctx context.Context) (*SyncReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, apierror.Conflict("reconciliation already in progress")
	}
	defer s.running.Store(false)

	s.bus.Publish(model.EventSyncProgress, model.SyncProgressEvent{Stage: model.SyncStarting})

	snapshot, err := s.gw.FetchWardrobe(ctx)
	if err != nil {
		s.bus.Publish(model.EventSyncProgress, model.SyncProgressEvent{Stage: model.SyncDone})
		return nil, upstreamError(err)
	}

	locals, err := s.vault.List(ctx, model.ItemFilter{})
	if err != nil {
		return nil, err
	}
	byRemote := make(map[int64]*model.InventoryItem, len(locals))
	for i := range locals {
		if locals[i].RemoteID != nil {
			byRemote[*locals[i].RemoteID] = &locals[i]
		}
	}

	report := &SyncReport{Total: len(snapshot)}
	seen := make(map[int64]struct{}, len(snapshot))

	for i, listing := range snapshot {
		seen[listing.ID] = struct{}{}
		s.bus.Publish(model.EventSyncProgress, model.SyncProgressEvent{
			Stage:   model.SyncProgress,
			Current: i + 1,
			Total:   len(snapshot),
		})

		if err := s.reconcileListing(ctx, listing, byRemote[listing.ID], report); err != nil {
			report.Errors++
			s.log.Error().Err(err).Int64("remote_id", listing.ID).Msg("failed to reconcile listing")
		}
	}

	// Linked items absent from the snapshot were sold or deleted upstream,
	// unless our own relist pipeline currently holds them.
	for i := range locals {
		item := &locals[i]
		if item.RemoteID == nil {
			continue
		}
		if _, present := seen[*item.RemoteID]; present {
			continue
		}

		marked, err := s.markSold(ctx, item.LocalID, *item.RemoteID)
		if err != nil {
			report.Errors++
			s.log.Error().Err(err).Int64("local_id", item.LocalID).Msg("failed to mark item sold")
			continue
		}
		if marked {
			report.MarkedSold++
			s.log.Info().Int64("local_id", item.LocalID).Msg("listing gone upstream, marked sold")
		}
	}

	s.bus.Publish(model.EventSyncProgress, model.SyncProgressEvent{Stage: model.SyncDone})
	s.log.Info().
		Int("total", report.Total).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("discrepancies", report.Discrepancies).
		Int("marked_sold", report.MarkedSold).
		Int("errors", report.Errors).
		Msg("reconciliation complete")
	return report, nil
}

func (s *ReconcileService) reconcileListing(ctx context.Context, listing gateway.RemoteListing, item *model.InventoryItem, report *SyncReport) error {
	if item == nil {
		return s.adoptListing(ctx, listing, report)
	}

	unlock := s.locks.Lock(item.LocalID)
	defer unlock()

	// The snapshot row may be stale by the time this listing's turn comes
	// around; decide against the current row, not the one List returned.
	item, err := s.vault.Get(ctx, item.LocalID)
	if err != nil {
		return err
	}
	if item == nil || item.RemoteID == nil || *item.RemoteID != listing.ID {
		return nil
	}

	// Items awaiting operator resolution are left exactly as they are.
	if item.Status == model.StatusDiscrepancy || item.Status == model.StatusActionRequired {
		return nil
	}

	if diverged(item, listing) {
		reason := model.ReasonExternalChange
		item.Status = model.StatusDiscrepancy
		item.DiscrepancyReason = &reason
		if err := s.vault.Update(ctx, item); err != nil {
			return err
		}
		report.Discrepancies++
		s.log.Warn().Int64("local_id", item.LocalID).Msg("listing changed outside the vault")
		return nil
	}

	status := statusFromLifecycle(listing.IsHidden, listing.IsReserved, listing.IsClosed)
	if item.Status != status {
		item.Status = status
		if err := s.vault.Update(ctx, item); err != nil {
			return err
		}
		report.Updated++
	}
	return nil
}

// markSold marks a linked item sold after its listing vanished upstream.
// All conditions are re-checked on a fresh row under the item lock: the
// item may have been edited, relinked, or enqueued since the snapshot read.
func (s *ReconcileService) markSold(ctx context.Context, localID, remoteID int64) (bool, error) {
	unlock := s.locks.Lock(localID)
	defer unlock()

	item, err := s.vault.Get(ctx, localID)
	if err != nil {
		return false, err
	}
	if item == nil || item.RemoteID == nil || *item.RemoteID != remoteID {
		return false, nil
	}
	if item.Status == model.StatusDiscrepancy || item.Status == model.StatusActionRequired ||
		item.Status == model.StatusSold {
		return false, nil
	}

	entry, err := s.queue.Get(ctx, localID)
	if err != nil {
		return false, err
	}
	if entry != nil && entry.Status.Active() {
		return false, nil
	}

	item.Status = model.StatusSold
	if err := s.vault.Update(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}

// adoptListing creates a vault item for a listing published outside the
// vault. Only summary fields are known; detail hydration fills the rest on
// demand.
func (s *ReconcileService) adoptListing(ctx context.Context, listing gateway.RemoteListing, report *SyncReport) error {
	remoteID := listing.ID
	item := &model.InventoryItem{
		RemoteID:   &remoteID,
		Status:     statusFromLifecycle(listing.IsHidden, listing.IsReserved, listing.IsClosed),
		Title:      listing.Title,
		Price:      listing.Price,
		Currency:   listing.Currency,
		CategoryID: listing.CategoryID,
		BrandID:    listing.BrandID,
	}
	if item.Currency == "" {
		item.Currency = "GBP"
	}

	if _, err := s.vault.Insert(ctx, item); err != nil {
		return err
	}
	report.Created++
	s.log.Info().Int64("remote_id", remoteID).Int64("local_id", item.LocalID).Msg("adopted unknown listing")
	return nil
}

// diverged compares the fields the wardrobe snapshot is authoritative for.
// Category is only compared when the snapshot carries one.
func diverged(item *model.InventoryItem, listing gateway.RemoteListing) bool {
	if item.Title != listing.Title {
		return true
	}
	if !item.Price.Equal(listing.Price) {
		return true
	}
	if listing.CategoryID != nil {
		if item.CategoryID == nil || *item.CategoryID != *listing.CategoryID {
			return true
		}
	}
	return false
}
