package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// DefaultKey is the Redis key guarding pipeline runs
const DefaultKey = "weather_warehouse:run_lock"

// ErrLockLost is returned by Unlock when the lock expired or was taken over
// before release.
var ErrLockLost = errors.New("run lock lost before release")

// Unlock releases a held run lock
type Unlock func(ctx context.Context) error

// Locker serializes pipeline runs
type Locker interface {
	// TryLock takes the run lock without waiting. A held lock yields
	// warehouse.ErrRunInProgress.
	TryLock(ctx context.Context) (Unlock, error)
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a run lock shared by every process using the same Redis
type RedisLocker struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisLocker creates a new Redis run lock. The TTL bounds how long a
// crashed run can block the next one.
func NewRedisLocker(redisClient *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = DefaultKey
	}
	return &RedisLocker{redis: redisClient, key: key, ttl: ttl}
}

// TryLock sets the lock key with a fresh token if it is absent
func (l *RedisLocker) TryLock(ctx context.Context) (Unlock, error) {
	token := uuid.NewString()

	ok, err := l.redis.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, warehouse.ErrRunInProgress
	}

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.redis, []string{l.key}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release run lock: %w", err)
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}, nil
}

// MutexLocker is an in-process run lock
type MutexLocker struct {
	mu sync.Mutex
}

// NewMutexLocker creates a new in-process run lock
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{}
}

// TryLock takes the mutex if it is free
func (l *MutexLocker) TryLock(ctx context.Context) (Unlock, error) {
	if !l.mu.TryLock() {
		return nil, warehouse.ErrRunInProgress
	}

	var once sync.Once
	return func(ctx context.Context) error {
		released := false
		once.Do(func() {
			l.mu.Unlock()
			released = true
		})
		if !released {
			return ErrLockLost
		}
		return nil
	}, nil
}
