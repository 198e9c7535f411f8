// Package runstore holds the shared state of batch sync runs: a
// single-flight lock with a bounded lease, and the progress record polled by
// operators. Both have a Redis implementation for real deployments and an
// in-memory one for tests and single-instance setups without Redis.
package runstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nestwork/loyalty-discount-service/internal/model"
)

// ErrLockHeld is returned by Acquire when another owner currently holds the
// lock. It is not a failure: the caller logs it and no-ops.
var ErrLockHeld = errors.New("sync lock held by another run")

// ErrNotOwner is returned by Renew and Release when the lock exists but
// belongs to someone else, which means this run's lease expired and another
// run took over.
var ErrNotOwner = errors.New("sync lock not owned by this run")

// ErrNoProgress is returned by Load when no run has ever been recorded.
var ErrNoProgress = errors.New("no sync progress recorded")

// LockService is the single-flight lock around full sync runs. Acquire
// either succeeds, establishing a lease of the given TTL for ownerID, or
// fails with ErrLockHeld. Renew extends the lease and doubles as the run's
// heartbeat. ForceRelease removes the lock regardless of owner and is used
// only after a run has been declared stale.
type LockService interface {
	Acquire(ctx context.Context, ownerID string, ttl time.Duration) error
	Renew(ctx context.Context, ownerID string, ttl time.Duration) error
	Release(ctx context.Context, ownerID string) error
	ForceRelease(ctx context.Context) error
}

// ProgressStore persists the pollable state of the most recent run. Save
// overwrites the record wholesale; the engine is the only writer while it
// holds the lock, so no partial updates are needed.
type ProgressStore interface {
	Save(ctx context.Context, p model.RunProgress) error
	Load(ctx context.Context) (model.RunProgress, error)
	Clear(ctx context.Context) error
}

// NewOwnerID builds the identity recorded as a run's owning process:
// hostname, pid and a random suffix so two runs in one process remain
// distinguishable.
func NewOwnerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8])
}
