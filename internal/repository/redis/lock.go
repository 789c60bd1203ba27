package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release deletes the lock only while we still own it.
const luaReleaseLock = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// JobLock keeps a scheduler job from running on two instances at once.
type JobLock struct {
	rdb     redis.UniversalClient
	release *redis.Script
}

func NewJobLock(rdb redis.UniversalClient) *JobLock {
	return &JobLock{rdb: rdb, release: redis.NewScript(luaReleaseLock)}
}

// TryLock returns an unlock func when the lock was taken, nil when another
// owner holds it.
func (l *JobLock) TryLock(ctx context.Context, job string, ttl time.Duration) (func(context.Context) error, error) {
	key := KeyJobLock(job)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, err
	}

	return func(ctx context.Context) error {
		return l.release.Run(ctx, l.rdb, []string{key}, token).Err()
	}, nil
}
