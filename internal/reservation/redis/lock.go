package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const sweepLockKey = "reaper:sweep_lock"

// Deletes the lock only if this instance still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock is a SET NX lease shared by every reaper instance.
type SweepLock struct {
	Client *redis.Client
	TTL    time.Duration
	owner  string
}

func NewSweepLock(client *redis.Client, ttl time.Duration) *SweepLock {
	return &SweepLock{Client: client, TTL: ttl, owner: uuid.NewString()}
}

func (l *SweepLock) Acquire(ctx context.Context) (bool, error) {
	return l.Client.SetNX(ctx, sweepLockKey, l.owner, l.TTL).Result()
}

func (l *SweepLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.Client, []string{sweepLockKey}, l.owner).Err()
}
