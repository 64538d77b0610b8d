package winback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when another run holds the lock.
var ErrRunInProgress = errors.New("winback: run already in progress")

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RunLock serializes runs across worker replicas.
type RunLock struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRunLock creates a lock whose hold expires after ttl.
func NewRunLock(redisClient *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RunLock{redis: redisClient, ttl: ttl}
}

// Acquire takes the named lock, returning a release func. It fails with
// ErrRunInProgress when the lock is held.
func (l *RunLock) Acquire(ctx context.Context, name string) (func(), error) {
	key := "winback:lock:" + name
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("winback: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		// the caller's ctx may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.redis, []string{key}, token).Err()
	}, nil
}
