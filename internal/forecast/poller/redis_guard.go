package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still names the caller's job.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares the single-flight rule across replicas. Keys expire after
// ttl so a crashed holder cannot block a session forever.
type RedisGuard struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *RedisGuard {
	if prefix == "" {
		prefix = "kivo:inflight:"
	}
	if ttl <= 0 {
		ttl = 11 * time.Minute
	}
	return &RedisGuard{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) key(sessionKey string) string { return g.prefix + sessionKey }

func (g *RedisGuard) Acquire(ctx context.Context, sessionKey, jobRef string) error {
	key := g.key(sessionKey)
	ok, err := g.rdb.SetNX(ctx, key, jobRef, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire in-flight guard: %w", err)
	}
	if ok {
		return nil
	}
	cur, err := g.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		// Expired between SETNX and GET.
		return g.Acquire(ctx, sessionKey, jobRef)
	}
	if err != nil {
		return fmt.Errorf("read in-flight guard: %w", err)
	}
	if cur != jobRef {
		return ErrJobAlreadyInFlight
	}
	if err := g.rdb.PExpire(ctx, key, g.ttl).Err(); err != nil {
		return fmt.Errorf("refresh in-flight guard: %w", err)
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, sessionKey, jobRef string) error {
	if err := releaseScript.Run(ctx, g.rdb, []string{g.key(sessionKey)}, jobRef).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("release in-flight guard: %w", err)
	}
	return nil
}
