package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("schedule lock not acquired")
)

const acquireRetryInterval = 25 * time.Millisecond

// ScheduleLocker guards the booking critical section per (business, staff)
// key across nodes. It satisfies the engine's Locker interface.
type ScheduleLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewScheduleLocker creates a locker that uses a per schedule-key Redis key.
func NewScheduleLocker(client *redis.Client, ttl time.Duration) *ScheduleLocker {
	return &ScheduleLocker{
		client: client,
		ttl:    ttl,
	}
}

// WithLock runs fn while holding the lock for key. Acquisition is retried
// until the lock TTL elapses, so a caller racing a short critical section
// waits instead of failing spuriously; if the holder outlives the TTL the
// waiter gets ErrLockNotAcquired.
func (l *ScheduleLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := fmt.Sprintf("lock:schedule:%s", key)
	token := uuid.NewString()

	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire schedule lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquireRetryInterval):
		}
	}

	defer func() {
		_ = l.release(ctx, lockKey, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *ScheduleLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release schedule lock: %w", err)
	}
	return nil
}
