package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nestwork/loyalty-discount-service/internal/model"
	"github.com/nestwork/loyalty-discount-service/internal/queue"
	"github.com/nestwork/loyalty-discount-service/internal/runstore"
)

// ----- fakes -----

type fakeSpend struct {
	aggs       []model.SpendAggregate
	fetchCalls int
	countErr   error
}

func (f *fakeSpend) CountCandidates(context.Context) (int, error) {
	return len(f.aggs), f.countErr
}

func (f *fakeSpend) FetchBatch(_ context.Context, offset, limit int) ([]model.SpendAggregate, error) {
	f.fetchCalls++
	if offset >= len(f.aggs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.aggs) {
		end = len(f.aggs)
	}
	return f.aggs[offset:end], nil
}

func (f *fakeSpend) FetchCustomer(_ context.Context, customerID uint64) (model.SpendAggregate, error) {
	for _, a := range f.aggs {
		if a.CustomerID == customerID {
			return a, nil
		}
	}
	return model.SpendAggregate{CustomerID: customerID}, nil
}

type fakeAttrs struct {
	recs map[uint64]*model.CustomerAttributes

	spendWrites int
	tierWrites  int
	failSpend   map[uint64]bool
}

func newFakeAttrs() *fakeAttrs {
	return &fakeAttrs{recs: make(map[uint64]*model.CustomerAttributes)}
}

func (f *fakeAttrs) rec(id uint64) *model.CustomerAttributes {
	r, ok := f.recs[id]
	if !ok {
		r = &model.CustomerAttributes{CustomerID: id}
		f.recs[id] = r
	}
	return r
}

func (f *fakeAttrs) Get(_ context.Context, id uint64) (model.CustomerAttributes, error) {
	return *f.rec(id), nil
}

func (f *fakeAttrs) GetTier(_ context.Context, id uint64) (model.Tier, error) {
	return f.rec(id).Tier, nil
}

func (f *fakeAttrs) SetSpend(_ context.Context, id uint64, yearly, lifetime decimal.Decimal) error {
	if f.failSpend[id] {
		return errors.New("write refused")
	}
	f.spendWrites++
	r := f.rec(id)
	r.YearlySpend = yearly
	r.LifetimeSpend = lifetime
	return nil
}

func (f *fakeAttrs) SetTier(_ context.Context, id uint64, tier model.Tier, at time.Time) error {
	f.tierWrites++
	r := f.rec(id)
	r.Tier = tier
	r.LastSyncedAt = &at
	return nil
}

type fakeSettings struct {
	s   model.Settings
	err error
}

func (f *fakeSettings) Load(context.Context) (model.Settings, error) { return f.s, f.err }

type fakePublisher struct {
	events []queue.TierChangedEvent
	err    error
}

func (f *fakePublisher) PublishTierChanged(_ context.Context, ev queue.TierChangedEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

// ----- helpers -----

func agg(id uint64, yearly int64) model.SpendAggregate {
	return model.SpendAggregate{
		CustomerID:    id,
		YearlySpend:   decimal.NewFromInt(yearly),
		LifetimeSpend: decimal.NewFromInt(yearly * 2),
	}
}

func testEngine(spend *fakeSpend, attrs *fakeAttrs, settings *fakeSettings, pub *fakePublisher) (*SyncEngine, *runstore.MemoryStore) {
	store := runstore.NewMemoryStore()
	cfg := SyncEngineConfig{LockLease: 5 * time.Minute, StaleTimeout: 15 * time.Minute}
	var p EventPublisher
	if pub != nil {
		p = pub
	}
	return NewSyncEngine(spend, attrs, settings, store, store, p, cfg, zap.NewNop()), store
}

func defaultFakeSettings() *fakeSettings {
	return &fakeSettings{s: model.DefaultSettings()}
}

// ----- full runs -----

func TestRunFullSyncAssignsTiers(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{
		agg(1, 0), agg(2, 600), agg(3, 1200), agg(4, 6000), agg(5, 20000),
	}}
	attrs := newFakeAttrs()
	pub := &fakePublisher{}
	engine, _ := testEngine(spend, attrs, defaultFakeSettings(), pub)

	run, err := engine.RunFullSync(context.Background(), model.SyncSourceManual)
	require.NoError(t, err)

	assert.Equal(t, 5, run.Processed)
	assert.Equal(t, 4, run.Updated) // customer 1 stays at None
	assert.Equal(t, 0, run.Skipped)
	assert.Equal(t, 0, run.Errored)
	assert.False(t, run.IsRunning)
	require.NotNil(t, run.FinishedAt)
	assert.Contains(t, run.Summary, "Synced 5 of 5 customers")

	assert.Equal(t, model.TierNone, attrs.recs[1].Tier)
	assert.Equal(t, model.TierBronze, attrs.recs[2].Tier)
	assert.Equal(t, model.TierSilver, attrs.recs[3].Tier)
	assert.Equal(t, model.TierGold, attrs.recs[4].Tier)
	assert.Equal(t, model.TierPlatinum, attrs.recs[5].Tier)

	// One event per real tier change, carrying old and new labels.
	require.Len(t, pub.events, 4)
	assert.Equal(t, "None", pub.events[0].OldTier)
	assert.Equal(t, "Bronze", pub.events[0].NewTier)
	assert.Equal(t, "manual", pub.events[0].Source)
}

func TestRunFullSyncIsIdempotent(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{agg(1, 600), agg(2, 1200)}}
	attrs := newFakeAttrs()
	engine, _ := testEngine(spend, attrs, defaultFakeSettings(), nil)

	first, err := engine.RunFullSync(context.Background(), model.SyncSourceManual)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Updated)

	second, err := engine.RunFullSync(context.Background(), model.SyncSourceManual)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Processed)
	assert.Equal(t, 0, second.Updated) // nothing changed, nothing written
}

func TestRunFullSyncPaginates(t *testing.T) {
	var aggs []model.SpendAggregate
	for id := uint64(1); id <= 50; id++ {
		aggs = append(aggs, agg(id, 2000))
	}
	spend := &fakeSpend{aggs: aggs}
	settings := defaultFakeSettings()
	settings.s.BatchSize = 10
	engine, _ := testEngine(spend, newFakeAttrs(), settings, nil)

	run, err := engine.RunFullSync(context.Background(), model.SyncSourceScheduled)
	require.NoError(t, err)

	assert.Equal(t, 50, run.Processed)
	assert.Equal(t, 50, run.Updated)
	assert.Equal(t, 5, spend.fetchCalls)
}

func TestManualOverrideFreezesTierButNotSpend(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{agg(1, 200)}}
	attrs := newFakeAttrs()
	attrs.recs[1] = &model.CustomerAttributes{
		CustomerID:     1,
		Tier:           model.TierGold,
		ManualOverride: true,
	}
	engine, _ := testEngine(spend, attrs, defaultFakeSettings(), nil)

	run, err := engine.RunFullSync(context.Background(), model.SyncSourceManual)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 0, run.Updated)

	// Tier untouched, spend still refreshed.
	assert.Equal(t, model.TierGold, attrs.recs[1].Tier)
	assert.True(t, attrs.recs[1].YearlySpend.Equal(decimal.NewFromInt(200)))
}

func TestRunFullSyncSingleFlight(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{agg(1, 600)}}
	engine, store := testEngine(spend, newFakeAttrs(), defaultFakeSettings(), nil)

	require.NoError(t, store.Acquire(context.Background(), "otherhost:999:aaaa", time.Hour))

	_, err := engine.RunFullSync(context.Background(), model.SyncSourceManual)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Equal(t, 0, spend.fetchCalls) // true no-op
}

func TestStaleRunIsReclaimed(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{agg(1, 600)}}
	engine, store := testEngine(spend, newFakeAttrs(), defaultFakeSettings(), nil)

	ctx := context.Background()
	require.NoError(t, store.Acquire(ctx, "otherhost:999:aaaa", time.Hour))
	require.NoError(t, store.Save(ctx, model.RunProgress{
		OwnerID:       "otherhost:999:aaaa",
		IsRunning:     true,
		LastHeartbeat: time.Now().UTC().Add(-20 * time.Minute),
	}))

	run, err := engine.RunFullSync(ctx, model.SyncSourceManual)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.False(t, run.IsRunning)
}

func TestLiveRunIsNotReclaimed(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{agg(1, 600)}}
	engine, store := testEngine(spend, newFakeAttrs(), defaultFakeSettings(), nil)

	ctx := context.Background()
	require.NoError(t, store.Acquire(ctx, "otherhost:999:aaaa", time.Hour))
	require.NoError(t, store.Save(ctx, model.RunProgress{
		OwnerID:       "otherhost:999:aaaa",
		IsRunning:     true,
		LastHeartbeat: time.Now().UTC().Add(-1 * time.Minute),
	}))

	_, err := engine.RunFullSync(ctx, model.SyncSourceManual)
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestRecordFailureIsCountedNotFatal(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{agg(1, 600), agg(2, 1200), agg(3, 6000)}}
	attrs := newFakeAttrs()
	attrs.failSpend = map[uint64]bool{2: true}
	engine, _ := testEngine(spend, attrs, defaultFakeSettings(), nil)

	run, err := engine.RunFullSync(context.Background(), model.SyncSourceManual)
	require.NoError(t, err)

	assert.Equal(t, 3, run.Processed)
	assert.Equal(t, 2, run.Updated)
	assert.Equal(t, 1, run.Errored)
	assert.Equal(t, model.TierBronze, attrs.recs[1].Tier)
	assert.Equal(t, model.TierGold, attrs.recs[3].Tier)
}

func TestInvalidThresholdsAbortBeforeAnyWrite(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{agg(1, 600)}}
	attrs := newFakeAttrs()
	settings := &fakeSettings{s: model.Settings{Thresholds: model.ThresholdTable{}, BatchSize: 20}}
	engine, store := testEngine(spend, attrs, settings, nil)

	_, err := engine.RunFullSync(context.Background(), model.SyncSourceManual)
	assert.ErrorIs(t, err, model.ErrEmptyThresholds)
	assert.Equal(t, 0, attrs.spendWrites)

	// The failure is recorded as the run's terminal state.
	prog, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, prog.Error)
	assert.False(t, prog.IsRunning)
}

// ----- single batches -----

func TestRunSingleBatch(t *testing.T) {
	var aggs []model.SpendAggregate
	for id := uint64(1); id <= 25; id++ {
		aggs = append(aggs, agg(id, 2000))
	}
	spend := &fakeSpend{aggs: aggs}
	engine, _ := testEngine(spend, newFakeAttrs(), defaultFakeSettings(), nil)

	stats, err := engine.RunSingleBatch(context.Background(), model.SyncSourceManual, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Processed)
	assert.Equal(t, 25, stats.Total)
	assert.False(t, stats.IsComplete)

	stats, err = engine.RunSingleBatch(context.Background(), model.SyncSourceManual, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Processed)
	assert.True(t, stats.IsComplete)
}

func TestRunSingleBatchClampsSize(t *testing.T) {
	var aggs []model.SpendAggregate
	for id := uint64(1); id <= 150; id++ {
		aggs = append(aggs, agg(id, 2000))
	}
	spend := &fakeSpend{aggs: aggs}
	engine, _ := testEngine(spend, newFakeAttrs(), defaultFakeSettings(), nil)

	stats, err := engine.RunSingleBatch(context.Background(), model.SyncSourceManual, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, stats.Processed)

	// Zero falls back to the configured default of 20.
	stats, err = engine.RunSingleBatch(context.Background(), model.SyncSourceManual, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Processed)
}

// ----- per-customer resync -----

func TestSyncCustomer(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{agg(7, 11000)}}
	attrs := newFakeAttrs()
	pub := &fakePublisher{}
	engine, _ := testEngine(spend, attrs, defaultFakeSettings(), pub)

	require.NoError(t, engine.SyncCustomer(context.Background(), 7))
	assert.Equal(t, model.TierPlatinum, attrs.recs[7].Tier)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "order", pub.events[0].Source)
}

func TestPublisherFailureDoesNotFailSync(t *testing.T) {
	spend := &fakeSpend{aggs: []model.SpendAggregate{agg(1, 600)}}
	attrs := newFakeAttrs()
	pub := &fakePublisher{err: errors.New("broker down")}
	engine, _ := testEngine(spend, attrs, defaultFakeSettings(), pub)

	run, err := engine.RunFullSync(context.Background(), model.SyncSourceManual)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, model.TierBronze, attrs.recs[1].Tier)
}
