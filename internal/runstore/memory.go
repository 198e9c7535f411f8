package runstore

import (
	"context"
	"sync"
	"time"

	"github.com/nestwork/loyalty-discount-service/internal/model"
)

// MemoryStore is an in-process LockService and ProgressStore. It mirrors the
// Redis semantics, including lease expiry, but only guards against
// concurrent runs inside one process. The server falls back to it when no
// Redis is reachable; tests use it directly.
type MemoryStore struct {
	mu sync.Mutex

	lockOwner   string
	lockExpires time.Time

	progress    model.RunProgress
	hasProgress bool

	// now is swappable so tests can drive lease expiry.
	now func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// SetClock replaces the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) lockHeld() bool {
	return s.lockOwner != "" && s.now().Before(s.lockExpires)
}

// Acquire takes the lock unless a non-expired lease exists.
func (s *MemoryStore) Acquire(_ context.Context, ownerID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockHeld() {
		return ErrLockHeld
	}
	s.lockOwner = ownerID
	s.lockExpires = s.now().Add(ttl)
	return nil
}

// Renew extends the lease when ownerID still holds the lock.
func (s *MemoryStore) Renew(_ context.Context, ownerID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lockHeld() || s.lockOwner != ownerID {
		return ErrNotOwner
	}
	s.lockExpires = s.now().Add(ttl)
	return nil
}

// Release clears the lock when ownerID still holds it.
func (s *MemoryStore) Release(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lockHeld() || s.lockOwner != ownerID {
		return ErrNotOwner
	}
	s.lockOwner = ""
	return nil
}

// ForceRelease clears the lock regardless of owner.
func (s *MemoryStore) ForceRelease(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockOwner = ""
	return nil
}

// Save overwrites the progress record.
func (s *MemoryStore) Save(_ context.Context, p model.RunProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
	s.hasProgress = true
	return nil
}

// Load returns the last saved progress record.
func (s *MemoryStore) Load(_ context.Context) (model.RunProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasProgress {
		return model.RunProgress{}, ErrNoProgress
	}
	return s.progress, nil
}

// Clear removes the progress record.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = model.RunProgress{}
	s.hasProgress = false
	return nil
}
