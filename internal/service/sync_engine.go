// Package service contains the two engines at the core of the loyalty
// system: the batch tier synchronization engine and the checkout discount
// engine. Both depend on narrow interfaces so they can be exercised against
// fakes; the repositories and the runstore satisfy them in production.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nestwork/loyalty-discount-service/internal/model"
	"github.com/nestwork/loyalty-discount-service/internal/queue"
	"github.com/nestwork/loyalty-discount-service/internal/runstore"
)

// ErrSyncInProgress is returned by RunFullSync when another non-stale run
// holds the single-flight lock. It is a no-op condition, not a failure.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// SpendAggregateProvider supplies per-customer spend totals from completed
// orders, paginated in customer-id order.
type SpendAggregateProvider interface {
	CountCandidates(ctx context.Context) (int, error)
	FetchBatch(ctx context.Context, offset, limit int) ([]model.SpendAggregate, error)
	FetchCustomer(ctx context.Context, customerID uint64) (model.SpendAggregate, error)
}

// AttributeStore reads and writes the externally persisted loyalty fields of
// a customer.
type AttributeStore interface {
	Get(ctx context.Context, customerID uint64) (model.CustomerAttributes, error)
	GetTier(ctx context.Context, customerID uint64) (model.Tier, error)
	SetSpend(ctx context.Context, customerID uint64, yearly, lifetime decimal.Decimal) error
	SetTier(ctx context.Context, customerID uint64, tier model.Tier, syncedAt time.Time) error
}

// SettingsSource supplies the current engine settings. The threshold table
// is read once at the start of a full run and reused for every comparison in
// that run.
type SettingsSource interface {
	Load(ctx context.Context) (model.Settings, error)
}

// EventPublisher emits tier-change events. Publishing is best-effort: a
// broker failure must never fail a sync.
type EventPublisher interface {
	PublishTierChanged(ctx context.Context, ev queue.TierChangedEvent) error
}

// SyncEngineConfig carries the timing knobs of a full run.
type SyncEngineConfig struct {
	LockLease    time.Duration // lease on the single-flight lock, renewed per batch
	StaleTimeout time.Duration // heartbeat age after which a run is stale
	BatchPause   time.Duration // pause between batches to bound backend load
}

// SyncEngine recomputes spend aggregates and tier assignments for the whole
// customer population. Single batches are user-paced and lock-free; full
// runs take the single-flight lock and publish progress after every batch.
// All per-record updates are idempotent, so interleaving the two paths is
// harmless.
type SyncEngine struct {
	spend     SpendAggregateProvider
	attrs     AttributeStore
	settings  SettingsSource
	progress  runstore.ProgressStore
	lock      runstore.LockService
	publisher EventPublisher
	cfg       SyncEngineConfig
	log       *zap.Logger

	now func() time.Time
}

// NewSyncEngine wires a SyncEngine. publisher may be nil when no broker is
// configured.
func NewSyncEngine(
	spend SpendAggregateProvider,
	attrs AttributeStore,
	settings SettingsSource,
	progress runstore.ProgressStore,
	lock runstore.LockService,
	publisher EventPublisher,
	cfg SyncEngineConfig,
	log *zap.Logger,
) *SyncEngine {
	if cfg.LockLease <= 0 {
		cfg.LockLease = 5 * time.Minute
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = 15 * time.Minute
	}
	return &SyncEngine{
		spend:     spend,
		attrs:     attrs,
		settings:  settings,
		progress:  progress,
		lock:      lock,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (e *SyncEngine) SetClock(now func() time.Time) { e.now = now }

// RunSingleBatch processes one bounded slice of the customer population.
// This is the operator-paced path: it does not take the single-flight lock,
// because each call is short-lived and the per-record updates converge to
// the same result no matter how calls interleave.
func (e *SyncEngine) RunSingleBatch(ctx context.Context, source model.SyncSource, offset, batchSize int) (model.BatchStats, error) {
	settings, err := e.settings.Load(ctx)
	if err != nil {
		return model.BatchStats{}, fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Thresholds.Validate(); err != nil {
		return model.BatchStats{}, err
	}
	if batchSize < 1 {
		batchSize = settings.BatchSize
	}
	if batchSize > 100 {
		batchSize = 100
	}
	if offset < 0 {
		offset = 0
	}

	total, err := e.spend.CountCandidates(ctx)
	if err != nil {
		return model.BatchStats{}, fmt.Errorf("count candidates: %w", err)
	}

	stats, err := e.processBatch(ctx, source, settings.Thresholds, offset, batchSize, total)
	if err != nil {
		return model.BatchStats{}, err
	}
	return stats, nil
}

// processBatch fetches one batch and applies the per-record update. The
// thresholds are passed in so a full run uses one table for its whole
// lifetime. A failing record is counted and skipped over, never fatal.
func (e *SyncEngine) processBatch(ctx context.Context, source model.SyncSource, thresholds model.ThresholdTable, offset, batchSize, total int) (model.BatchStats, error) {
	stats := model.BatchStats{Total: total}

	batch, err := e.spend.FetchBatch(ctx, offset, batchSize)
	if err != nil {
		return stats, fmt.Errorf("fetch batch at offset %d: %w", offset, err)
	}
	for _, agg := range batch {
		updated, skipped, err := e.syncRecord(ctx, source, thresholds, agg)
		stats.Processed++
		switch {
		case err != nil:
			stats.Errored++
			e.log.Warn("record sync failed",
				zap.Uint64("customer_id", agg.CustomerID),
				zap.Error(err))
		case skipped:
			stats.Skipped++
		case updated:
			stats.Updated++
		}
	}
	stats.IsComplete = len(batch) == 0 || offset+stats.Processed >= total
	return stats, nil
}

// syncRecord applies the idempotent per-customer update: spend attributes
// are written unconditionally; the tier is recomputed and written only when
// it differs and no manual override is set.
func (e *SyncEngine) syncRecord(ctx context.Context, source model.SyncSource, thresholds model.ThresholdTable, agg model.SpendAggregate) (updated, skipped bool, err error) {
	if err := e.attrs.SetSpend(ctx, agg.CustomerID, agg.YearlySpend, agg.LifetimeSpend); err != nil {
		return false, false, fmt.Errorf("write spend: %w", err)
	}

	current, err := e.attrs.Get(ctx, agg.CustomerID)
	if err != nil {
		return false, false, fmt.Errorf("read attributes: %w", err)
	}
	if current.ManualOverride {
		return false, true, nil
	}

	newTier := thresholds.TierFor(agg.YearlySpend)
	if newTier == current.Tier {
		return false, false, nil
	}

	syncedAt := e.now().UTC()
	if err := e.attrs.SetTier(ctx, agg.CustomerID, newTier, syncedAt); err != nil {
		return false, false, fmt.Errorf("write tier: %w", err)
	}
	e.log.Info("tier updated",
		zap.Uint64("customer_id", agg.CustomerID),
		zap.String("old_tier", current.Tier.String()),
		zap.String("new_tier", newTier.String()),
		zap.String("yearly_spend", agg.YearlySpend.StringFixed(2)))
	e.publishTierChanged(ctx, source, agg, current.Tier, newTier, syncedAt)
	return true, false, nil
}

// publishTierChanged emits the event without ever failing the caller.
func (e *SyncEngine) publishTierChanged(ctx context.Context, source model.SyncSource, agg model.SpendAggregate, oldTier, newTier model.Tier, at time.Time) {
	if e.publisher == nil {
		return
	}
	ev := queue.TierChangedEvent{
		CustomerID:    agg.CustomerID,
		OldTier:       oldTier.String(),
		NewTier:       newTier.String(),
		YearlySpend:   agg.YearlySpend.StringFixed(2),
		LifetimeSpend: agg.LifetimeSpend.StringFixed(2),
		Source:        string(source),
		ChangedAt:     at.Format(time.RFC3339),
	}
	if err := e.publisher.PublishTierChanged(ctx, ev); err != nil {
		e.log.Warn("publish tier change failed", zap.Uint64("customer_id", agg.CustomerID), zap.Error(err))
	}
}

// RunFullSync traverses the entire population batch by batch under the
// single-flight lock, persisting cumulative progress after every batch for
// external pollers. A stale previous run is force-reset first; a live one
// makes this call a no-op with ErrSyncInProgress.
func (e *SyncEngine) RunFullSync(ctx context.Context, source model.SyncSource) (model.RunProgress, error) {
	ownerID := runstore.NewOwnerID()

	if err := e.reclaimStaleRun(ctx); err != nil {
		return model.RunProgress{}, err
	}
	if err := e.lock.Acquire(ctx, ownerID, e.cfg.LockLease); err != nil {
		if errors.Is(err, runstore.ErrLockHeld) {
			e.log.Info("full sync skipped, another run is in progress", zap.String("source", string(source)))
			return model.RunProgress{}, ErrSyncInProgress
		}
		return model.RunProgress{}, fmt.Errorf("acquire sync lock: %w", err)
	}
	defer func() {
		if err := e.lock.Release(ctx, ownerID); err != nil && !errors.Is(err, runstore.ErrNotOwner) {
			e.log.Warn("release sync lock failed", zap.Error(err))
		}
	}()

	run, err := e.runLocked(ctx, source, ownerID)
	if err != nil {
		// Terminal failure: the run must never stay marked running.
		now := e.now().UTC()
		run.IsRunning = false
		run.Error = true
		run.ErrorMessage = err.Error()
		run.FinishedAt = &now
		if saveErr := e.progress.Save(ctx, run); saveErr != nil {
			e.log.Error("persist failed run state", zap.Error(saveErr))
		}
		e.log.Error("full sync failed", zap.String("source", string(source)), zap.Error(err))
		return run, err
	}
	return run, nil
}

// runLocked is the body of a full run; the caller holds the lock.
func (e *SyncEngine) runLocked(ctx context.Context, source model.SyncSource, ownerID string) (model.RunProgress, error) {
	started := e.now().UTC()
	run := model.RunProgress{
		Source:        source,
		OwnerID:       ownerID,
		StartedAt:     started,
		LastHeartbeat: started,
		IsRunning:     true,
	}

	settings, err := e.settings.Load(ctx)
	if err != nil {
		return run, fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Thresholds.Validate(); err != nil {
		return run, err
	}
	run.BatchSize = settings.BatchSize

	total, err := e.spend.CountCandidates(ctx)
	if err != nil {
		return run, fmt.Errorf("count candidates: %w", err)
	}
	run.Total = total
	if err := e.progress.Save(ctx, run); err != nil {
		return run, fmt.Errorf("persist run start: %w", err)
	}
	e.log.Info("full sync started",
		zap.String("source", string(source)),
		zap.Int("total", total),
		zap.Int("batch_size", run.BatchSize),
		zap.String("owner", ownerID))

	for run.Offset < run.Total {
		if err := ctx.Err(); err != nil {
			return run, err
		}

		stats, err := e.processBatch(ctx, source, settings.Thresholds, run.Offset, run.BatchSize, run.Total)
		if err != nil {
			return run, err
		}
		if stats.Processed == 0 {
			// Population shrank under us; treat as complete.
			break
		}

		run.Offset += stats.Processed
		run.Processed += stats.Processed
		run.Updated += stats.Updated
		run.Skipped += stats.Skipped
		run.Errored += stats.Errored
		run.LastHeartbeat = e.now().UTC()

		if err := e.lock.Renew(ctx, ownerID, e.cfg.LockLease); err != nil {
			return run, fmt.Errorf("renew sync lease: %w", err)
		}
		if err := e.progress.Save(ctx, run); err != nil {
			return run, fmt.Errorf("persist run progress: %w", err)
		}

		if stats.IsComplete {
			break
		}
		if e.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return run, ctx.Err()
			case <-time.After(e.cfg.BatchPause):
			}
		}
	}

	finished := e.now().UTC()
	run.IsRunning = false
	run.FinishedAt = &finished
	run.LastHeartbeat = finished
	run.ExecutionTimeSeconds = finished.Sub(started).Seconds()
	run.Summary = fmt.Sprintf("Synced %d of %d customers in %.2fs (%d updated, %d skipped, %d errored)",
		run.Processed, run.Total, run.ExecutionTimeSeconds, run.Updated, run.Skipped, run.Errored)
	if err := e.progress.Save(ctx, run); err != nil {
		return run, fmt.Errorf("persist run completion: %w", err)
	}
	e.log.Info("full sync completed",
		zap.Int("processed", run.Processed),
		zap.Int("updated", run.Updated),
		zap.Int("skipped", run.Skipped),
		zap.Int("errored", run.Errored),
		zap.Float64("seconds", run.ExecutionTimeSeconds))
	return run, nil
}

// reclaimStaleRun resets a run that is still marked running but has not
// heartbeat within the stale timeout and whose owner cannot be verified
// alive. The lock is force-released so the new run can take over.
func (e *SyncEngine) reclaimStaleRun(ctx context.Context) error {
	prev, err := e.progress.Load(ctx)
	if errors.Is(err, runstore.ErrNoProgress) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load previous run: %w", err)
	}
	if !prev.Stale(e.now(), e.cfg.StaleTimeout) {
		return nil
	}
	if ownerIsThisProcess(prev.OwnerID) {
		// Our own process would still be heartbeating if the run were alive,
		// but never steal from a run we can see.
		return nil
	}

	e.log.Warn("reclaiming stale sync run",
		zap.String("owner", prev.OwnerID),
		zap.Time("last_heartbeat", prev.LastHeartbeat))
	prev.IsRunning = false
	prev.Error = true
	prev.ErrorMessage = "run went stale and was reclaimed"
	if err := e.progress.Save(ctx, prev); err != nil {
		return fmt.Errorf("reset stale run: %w", err)
	}
	return e.lock.ForceRelease(ctx)
}

// ownerIsThisProcess reports whether an owner ID ("host:pid:suffix") was
// issued by the current process. That is the only liveness we can verify;
// anything else is judged by heartbeat age alone.
func ownerIsThisProcess(ownerID string) bool {
	parts := strings.SplitN(ownerID, ":", 3)
	if len(parts) < 2 {
		return false
	}
	host, err := os.Hostname()
	if err != nil || parts[0] != host {
		return false
	}
	pid, err := strconv.Atoi(parts[1])
	return err == nil && pid == os.Getpid()
}

// SyncCustomer recomputes the aggregates and tier of one customer, the path
// taken when an order completes. It runs outside any lock; the update is the
// same idempotent write the batch paths use.
func (e *SyncEngine) SyncCustomer(ctx context.Context, customerID uint64) error {
	settings, err := e.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Thresholds.Validate(); err != nil {
		return err
	}
	agg, err := e.spend.FetchCustomer(ctx, customerID)
	if err != nil {
		return fmt.Errorf("fetch customer %d: %w", customerID, err)
	}
	_, _, err = e.syncRecord(ctx, model.SyncSourceOrder, settings.Thresholds, agg)
	return err
}

// Progress exposes the stored run progress to the status endpoint.
func (e *SyncEngine) Progress(ctx context.Context) (model.RunProgress, error) {
	return e.progress.Load(ctx)
}
