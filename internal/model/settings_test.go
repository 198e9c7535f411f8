package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeClampsBatchSize(t *testing.T) {
	s := Settings{BatchSize: 0}
	s.Normalize()
	assert.Equal(t, 20, s.BatchSize)

	s = Settings{BatchSize: -5}
	s.Normalize()
	assert.Equal(t, 1, s.BatchSize)

	s = Settings{BatchSize: 500}
	s.Normalize()
	assert.Equal(t, 100, s.BatchSize)
}

func TestNormalizeFrequencyAndThresholds(t *testing.T) {
	s := Settings{AutoSyncFreq: "weekly"}
	s.Normalize()
	assert.Equal(t, FrequencyDaily, s.AutoSyncFreq)
	assert.NotNil(t, s.Thresholds)

	s = Settings{AutoSyncFreq: FrequencyTwoMinutes}
	s.Normalize()
	assert.Equal(t, FrequencyTwoMinutes, s.AutoSyncFreq)
}

func TestRunProgressPercentAndStale(t *testing.T) {
	p := RunProgress{Total: 200, Processed: 50}
	assert.Equal(t, 25.0, p.Percent())

	p = RunProgress{Total: 0}
	assert.Equal(t, 0.0, p.Percent())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p = RunProgress{IsRunning: true, LastHeartbeat: now.Add(-20 * time.Minute)}
	assert.True(t, p.Stale(now, 15*time.Minute))
	assert.False(t, p.Stale(now, 30*time.Minute))

	p.IsRunning = false
	assert.False(t, p.Stale(now, 15*time.Minute))
}
