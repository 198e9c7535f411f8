// Package scheduler fires the recurring full-sync runs. It polls the
// operator settings every tick, so enabling auto-sync or changing its
// frequency takes effect without a restart.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nestwork/loyalty-discount-service/internal/model"
	"github.com/nestwork/loyalty-discount-service/internal/service"
)

// checkInterval is how often the scheduler re-reads settings and decides
// whether a run is due. It bounds how quickly a frequency change is noticed.
const checkInterval = 30 * time.Second

// Interval maps a configured frequency to its duration.
func Interval(f model.AutoSyncFrequency) time.Duration {
	switch f {
	case model.FrequencyTwoMinutes:
		return 2 * time.Minute
	case model.FrequencyFiveMinutes:
		return 5 * time.Minute
	case model.FrequencyHourly:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Scheduler drives RunFullSync on the configured cadence. The single-flight
// lock inside the engine makes a tick racing a manual run a harmless no-op.
type Scheduler struct {
	engine   *service.SyncEngine
	settings service.SettingsSource
	log      *zap.Logger

	lastRun time.Time
	now     func() time.Time
}

// New returns a Scheduler.
func New(engine *service.SyncEngine, settings service.SettingsSource, log *zap.Logger) *Scheduler {
	return &Scheduler{engine: engine, settings: settings, log: log, now: time.Now}
}

// Run blocks until ctx is cancelled, firing a full sync whenever auto-sync
// is enabled and the configured interval has elapsed since the last attempt.
// Intended to be started in its own goroutine from main.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		s.log.Warn("scheduler could not load settings", zap.Error(err))
		return
	}
	if !settings.AutoSyncEnabled {
		return
	}
	if !s.Due(settings.AutoSyncFreq) {
		return
	}

	s.lastRun = s.now()
	if _, err := s.engine.RunFullSync(ctx, model.SyncSourceScheduled); err != nil {
		if errors.Is(err, service.ErrSyncInProgress) {
			s.log.Info("scheduled sync skipped, run already in progress")
			return
		}
		s.log.Error("scheduled sync failed", zap.Error(err))
	}
}

// Due reports whether the configured interval has elapsed since the last
// attempted run.
func (s *Scheduler) Due(f model.AutoSyncFrequency) bool {
	return s.now().Sub(s.lastRun) >= Interval(f)
}
