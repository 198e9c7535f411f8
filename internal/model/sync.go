package model

import "time"

// SyncSource identifies what triggered a sync operation. It is recorded in
// run state and in emitted events so operators can tell scheduled runs from
// manual ones.
type SyncSource string

const (
	SyncSourceManual    SyncSource = "manual"
	SyncSourceScheduled SyncSource = "scheduled"
	SyncSourceOrder     SyncSource = "order"
)

// BatchStats summarizes a single batch of a sync. Skipped records (manual
// override) also count toward Processed: they were visited and their spend
// attributes were refreshed. Updated counts only real tier changes.
type BatchStats struct {
	Processed  int  `json:"processed"`
	Updated    int  `json:"updated"`
	Skipped    int  `json:"skipped"`
	Errored    int  `json:"errored"`
	Total      int  `json:"total"`
	IsComplete bool `json:"is_complete"`
}

// RunProgress is the externally pollable state of a full sync run. It is
// persisted after every batch so that an observer sees movement while the
// run is alive, and it carries the terminal outcome afterwards.
//
// A run whose IsRunning flag is still true but whose LastHeartbeatAt is
// older than the stale timeout is eligible for takeover by a later run.
type RunProgress struct {
	Source        SyncSource `json:"source"`
	Offset        int        `json:"offset"`
	BatchSize     int        `json:"batch_size"`
	Total         int        `json:"total"`
	Processed     int        `json:"processed"`
	Updated       int        `json:"updated"`
	Skipped       int        `json:"skipped"`
	Errored       int        `json:"errored"`
	IsRunning     bool       `json:"is_running"`
	Error         bool       `json:"error"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	OwnerID       string     `json:"owner_id"`
	StartedAt     time.Time  `json:"started_at"`
	LastHeartbeat time.Time  `json:"last_heartbeat_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`

	// Filled on completion only.
	ExecutionTimeSeconds float64 `json:"execution_time_seconds,omitempty"`
	Summary              string  `json:"summary,omitempty"`
}

// Percent returns the completion percentage rounded to two decimals.
func (p RunProgress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Processed) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return float64(int(pct*100+0.5)) / 100
}

// Stale reports whether the run should be considered abandoned: still marked
// running, but silent for longer than the given timeout.
func (p RunProgress) Stale(now time.Time, timeout time.Duration) bool {
	return p.IsRunning && now.Sub(p.LastHeartbeat) > timeout
}
