package runstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nestwork/loyalty-discount-service/internal/model"
)

const (
	lockKey     = "loyalty:sync:lock"
	progressKey = "loyalty:sync:progress"

	// Progress records outlive their run so operators can inspect the last
	// outcome, but they do not live forever.
	progressTTL = 7 * 24 * time.Hour
)

// renewScript extends the lease only when the stored owner matches, so a
// run whose lease already expired cannot stomp on its successor.
var renewScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
		return 1
	else
		return 0
	end
`)

// releaseScript deletes the lock only when the stored owner matches.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		redis.call('DEL', KEYS[1])
		return 1
	else
		return 0
	end
`)

// RedisStore implements LockService and ProgressStore on a shared Redis
// instance, which is what makes the single-flight guarantee hold across
// multiple service processes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Acquire takes the lock with SET NX and the lease as expiry.
func (s *RedisStore) Acquire(ctx context.Context, ownerID string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, lockKey, ownerID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Renew extends the lease when this run still owns the lock.
func (s *RedisStore) Renew(ctx context.Context, ownerID string, ttl time.Duration) error {
	res, err := renewScript.Run(ctx, s.client, []string{lockKey}, ownerID, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return ErrNotOwner
	}
	return nil
}

// Release removes the lock when this run still owns it.
func (s *RedisStore) Release(ctx context.Context, ownerID string) error {
	res, err := releaseScript.Run(ctx, s.client, []string{lockKey}, ownerID).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return ErrNotOwner
	}
	return nil
}

// ForceRelease deletes the lock unconditionally. Only used after a stale
// run has been detected and reset.
func (s *RedisStore) ForceRelease(ctx context.Context) error {
	return s.client.Del(ctx, lockKey).Err()
}

// Save stores the progress record as JSON.
func (s *RedisStore) Save(ctx context.Context, p model.RunProgress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, progressKey, raw, progressTTL).Err()
}

// Load retrieves the most recent progress record.
func (s *RedisStore) Load(ctx context.Context) (model.RunProgress, error) {
	raw, err := s.client.Get(ctx, progressKey).Bytes()
	if err == redis.Nil {
		return model.RunProgress{}, ErrNoProgress
	}
	if err != nil {
		return model.RunProgress{}, err
	}
	var p model.RunProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.RunProgress{}, err
	}
	return p, nil
}

// Clear removes the progress record.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, progressKey).Err()
}
