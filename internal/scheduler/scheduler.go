// Package scheduler drains the relist queue one entry at a time with a
// randomized pause between entries.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/config"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/events"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/gateway"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/repository"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/apierror"
)

// Scheduler owns the relist pipeline: at most one entry is in flight at any
// time, and a fresh random countdown separates consecutive entries. The loop
// starts on the first enqueue and stops itself when the queue drains.
type Scheduler struct {
	queue repository.QueueRepository
	vault repository.VaultRepository
	gw    gateway.Gateway
	bus   *events.Bus
	locks *repository.ItemLocks
	log   zerolog.Logger

	minDelay     time.Duration
	maxDelay     time.Duration
	tick         time.Duration
	thumbnailDir string

	countdown  atomic.Int64
	processing atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a scheduler and reclassifies any entry caught mid-flight by
// the previous run: an interrupted relist cannot be trusted to have
// completed exactly once, so it lands in error and waits for an explicit
// re-enqueue.
func New(queue repository.QueueRepository, vault repository.VaultRepository, gw gateway.Gateway, bus *events.Bus, locks *repository.ItemLocks, cfg config.SchedulerConfig, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		queue:        queue,
		vault:        vault,
		gw:           gw,
		bus:          bus,
		locks:        locks,
		minDelay:     cfg.MinDelay,
		maxDelay:     cfg.MaxDelay,
		tick:         cfg.Tick,
		thumbnailDir: cfg.ThumbnailDir,
		log:          log.With().Str("component", "scheduler").Logger(),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	reset, err := queue.ResetInFlight(context.Background(), "interrupted by restart")
	if err != nil {
		return nil, fmt.Errorf("failed to reset in-flight queue entries: %w", err)
	}
	if reset > 0 {
		s.log.Warn().Int64("entries", reset).Msg("reclassified interrupted relist entries")
	}
	return s, nil
}

// Enqueue adds items to the relist queue. An item already pending or in
// flight is left alone; an item whose previous attempt errored gets a fresh
// pending entry. Unknown or unlinked items reject the whole batch before
// anything is inserted.
func (s *Scheduler) Enqueue(ctx context.Context, localIDs []int64) (*model.QueueUpdate, error) {
	items := make(map[int64]*model.InventoryItem, len(localIDs))
	for _, localID := range localIDs {
		item, err := s.vault.Get(ctx, localID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, apierror.NotFound(fmt.Sprintf("item %d not found", localID))
		}
		if item.RemoteID == nil {
			return nil, apierror.BadRequest(fmt.Sprintf("item %d has no live listing to relist", localID))
		}
		items[localID] = item
	}

	for _, localID := range localIDs {
		item := items[localID]

		entry, err := s.queue.Get(ctx, localID)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			if entry.Status.Active() {
				continue
			}
			if err := s.queue.Delete(ctx, localID); err != nil {
				return nil, err
			}
		}

		fresh := &model.RelistQueueEntry{
			LocalID:       localID,
			Status:        model.QueuePending,
			JitteredTitle: JitterText(item.Title, item.RelistCount),
			RelistCount:   item.RelistCount,
		}
		if err := s.queue.Insert(ctx, fresh); err != nil {
			return nil, err
		}
		s.log.Info().Int64("local_id", localID).Msg("enqueued for relist")
	}

	s.ensureRunning()
	return s.publishQueueUpdate(ctx)
}

// Dequeue removes one entry. Only pending entries may be removed; an entry
// being worked on right now cannot be recalled.
func (s *Scheduler) Dequeue(ctx context.Context, localID int64) (*model.QueueUpdate, error) {
	entry, err := s.queue.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apierror.NotFound(fmt.Sprintf("no relist entry for item %d", localID))
	}
	if entry.Status != model.QueuePending {
		return nil, apierror.Conflict(fmt.Sprintf("relist entry for item %d is %s", localID, entry.Status))
	}

	// The delete is conditional on the row still being pending: the drain
	// loop may have claimed it since the read above, and an entry in flight
	// cannot be recalled.
	deleted, err := s.queue.DeleteIfPending(ctx, localID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, apierror.Conflict(fmt.Sprintf("relist entry for item %d is already in flight", localID))
	}
	return s.publishQueueUpdate(ctx)
}

// Clear removes all pending entries. In-flight and error entries stay.
func (s *Scheduler) Clear(ctx context.Context) (*model.QueueUpdate, error) {
	removed, err := s.queue.DeletePending(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("removed", removed).Msg("cleared pending relist entries")
	return s.publishQueueUpdate(ctx)
}

// Snapshot returns the queue with the live countdown and processing flag.
func (s *Scheduler) Snapshot(ctx context.Context) (*model.QueueUpdate, error) {
	entries, err := s.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	return &model.QueueUpdate{
		Queue:      entries,
		Countdown:  int(s.countdown.Load()),
		Processing: s.processing.Load(),
	}, nil
}

// Stop halts the drain loop. Pending entries stay in the queue for the next
// start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

// ensureRunning starts the drain loop if it is not already running.
func (s *Scheduler) ensureRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.countdown.Store(int64(s.randomDelay() / time.Second))
	go s.loop(s.stopCh)
	s.log.Info().Msg("drain loop started")
}

// stopIfDrained re-checks the queue under the scheduler mutex before the
// loop exits. Enqueue inserts its row before taking the same mutex, so an
// entry added in the race window is either seen by the re-check here or
// restarts the loop itself through ensureRunning.
func (s *Scheduler) stopIfDrained(ctx context.Context, stopCh chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.queue.NextPending(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to re-check queue before stopping")
		return false
	}
	if entry != nil {
		return false
	}
	if s.running && s.stopCh == stopCh {
		s.running = false
	}
	s.countdown.Store(0)
	return true
}

func (s *Scheduler) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if s.processing.Load() {
				continue
			}
			remaining := s.countdown.Add(-1)
			ctx := context.Background()
			if remaining > 0 {
				if _, err := s.publishQueueUpdate(ctx); err != nil {
					s.log.Error().Err(err).Msg("failed to publish queue update")
				}
				continue
			}

			entry, err := s.queue.NextPending(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("failed to read next pending entry")
				continue
			}
			if entry == nil {
				if !s.stopIfDrained(ctx, stopCh) {
					continue
				}
				if _, err := s.publishQueueUpdate(ctx); err != nil {
					s.log.Error().Err(err).Msg("failed to publish queue update")
				}
				s.log.Info().Msg("queue drained, drain loop stopped")
				return
			}

			s.process(ctx, entry)
			s.countdown.Store(int64(s.randomDelay() / time.Second))
		}
	}
}

// process runs one full relist: mutate fingerprints, then replace the live
// listing. A failure at any step parks the entry in error; it is never
// retried automatically.
func (s *Scheduler) process(ctx context.Context, entry *model.RelistQueueEntry) {
	s.processing.Store(true)
	defer s.processing.Store(false)

	fail := func(msg string) {
		if err := s.queue.UpdateStatus(ctx, entry.LocalID, model.QueueError, msg); err != nil {
			s.log.Error().Err(err).Int64("local_id", entry.LocalID).Msg("failed to record relist error")
		}
		s.log.Error().Int64("local_id", entry.LocalID).Str("reason", msg).Msg("relist failed")
		if _, err := s.publishQueueUpdate(ctx); err != nil {
			s.log.Error().Err(err).Msg("failed to publish queue update")
		}
	}

	// Atomic pending-to-mutating claim: losing it means the entry was
	// dequeued after NextPending returned it, and the relist must not run.
	claimed, err := s.queue.Claim(ctx, entry.LocalID)
	if err != nil {
		s.log.Error().Err(err).Int64("local_id", entry.LocalID).Msg("failed to claim queue entry")
		return
	}
	if !claimed {
		s.log.Info().Int64("local_id", entry.LocalID).Msg("entry dequeued before processing started")
		return
	}
	if _, err := s.publishQueueUpdate(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to publish queue update")
	}

	item, err := s.vault.Get(ctx, entry.LocalID)
	if err != nil || item == nil {
		fail("item no longer exists")
		return
	}
	if item.RemoteID == nil {
		fail("item has no live listing")
		return
	}

	jitteredTitle := JitterText(item.Title, item.RelistCount)
	jitteredDescription := JitterText(item.Description, item.RelistCount)

	var imagePaths []string
	thumbnail := ""
	for _, img := range item.Images {
		if img.LocalPath == "" {
			continue
		}
		s.rngMu.Lock()
		mutated, err := MutateImageFile(img.LocalPath, s.thumbnailDir, s.rng)
		s.rngMu.Unlock()
		if err != nil {
			fail(fmt.Sprintf("image mutation failed: %v", err))
			return
		}
		imagePaths = append(imagePaths, mutated)
		if thumbnail == "" {
			thumbnail = mutated
		}
	}
	if len(imagePaths) == 0 {
		fail("no locally cached images to upload")
		return
	}

	if err := s.queue.UpdateMutation(ctx, entry.LocalID, jitteredTitle, thumbnail); err != nil {
		s.log.Error().Err(err).Int64("local_id", entry.LocalID).Msg("failed to record mutation")
	}
	if err := s.queue.UpdateStatus(ctx, entry.LocalID, model.QueueUploading, ""); err != nil {
		s.log.Error().Err(err).Int64("local_id", entry.LocalID).Msg("failed to mark entry uploading")
	}
	if _, err := s.publishQueueUpdate(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to publish queue update")
	}

	draft := gateway.ListingDraft{
		Title:         jitteredTitle,
		Description:   jitteredDescription,
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

	newRemoteID, err := s.gw.Relist(ctx, *item.RemoteID, draft, imagePaths)
	if err != nil {
		fail(err.Error())
		return
	}

	// The upload can take minutes; the item may have been edited while it
	// ran. Re-read under the item lock and rewrite only the fields the
	// relist owns, so a concurrent edit survives.
	relistCount, err := s.persistRelist(ctx, entry.LocalID, newRemoteID)
	if err != nil {
		fail(fmt.Sprintf("relisted as %d but failed to persist: %v", newRemoteID, err))
		return
	}

	if err := s.queue.UpdateStatus(ctx, entry.LocalID, model.QueueDone, ""); err != nil {
		s.log.Error().Err(err).Int64("local_id", entry.LocalID).Msg("failed to mark entry done")
	}
	if err := s.queue.Delete(ctx, entry.LocalID); err != nil {
		s.log.Error().Err(err).Int64("local_id", entry.LocalID).Msg("failed to remove finished entry")
	}

	s.log.Info().
		Int64("local_id", entry.LocalID).
		Int64("new_remote_id", newRemoteID).
		Int("relist_count", relistCount).
		Msg("relist complete")
	if _, err := s.publishQueueUpdate(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to publish queue update")
	}
}

// persistRelist links the item to its replacement listing. Returns the new
// relist count.
func (s *Scheduler) persistRelist(ctx context.Context, localID, newRemoteID int64) (int, error) {
	unlock := s.locks.Lock(localID)
	defer unlock()

	item, err := s.vault.Get(ctx, localID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, fmt.Errorf("item %d vanished during relist", localID)
	}

	item.RemoteID = &newRemoteID
	item.RelistCount++
	item.Status = model.StatusLive
	item.DiscrepancyReason = nil
	if err := s.vault.Update(ctx, item); err != nil {
		return 0, err
	}
	return item.RelistCount, nil
}

func (s *Scheduler) publishQueueUpdate(ctx context.Context) (*model.QueueUpdate, error) {
	update, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(model.EventQueueUpdate, update)
	return update, nil
}

// randomDelay returns a uniform random duration in [minDelay, maxDelay].
func (s *Scheduler) randomDelay() time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if s.maxDelay <= s.minDelay {
		return s.minDelay
	}
	return s.minDelay + time.Duration(s.rng.Int63n(int64(s.maxDelay-s.minDelay)+1))
}
