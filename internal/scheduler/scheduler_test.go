package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nestwork/loyalty-discount-service/internal/model"
)

func TestInterval(t *testing.T) {
	assert.Equal(t, 2*time.Minute, Interval(model.FrequencyTwoMinutes))
	assert.Equal(t, 5*time.Minute, Interval(model.FrequencyFiveMinutes))
	assert.Equal(t, time.Hour, Interval(model.FrequencyHourly))
	assert.Equal(t, 24*time.Hour, Interval(model.FrequencyDaily))
	assert.Equal(t, 24*time.Hour, Interval(model.AutoSyncFrequency("weekly")))
}

func TestDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &Scheduler{now: func() time.Time { return now }}

	// Never run before: due immediately.
	assert.True(t, s.Due(model.FrequencyHourly))

	s.lastRun = now.Add(-30 * time.Minute)
	assert.False(t, s.Due(model.FrequencyHourly))
	assert.True(t, s.Due(model.FrequencyFiveMinutes))

	s.lastRun = now.Add(-time.Hour)
	assert.True(t, s.Due(model.FrequencyHourly))
}
