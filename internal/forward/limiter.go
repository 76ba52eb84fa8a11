package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const inflightKeyPrefix = "webhook:forward:inflight:"

// Limiter caps how many forwards run at once for a service.
type Limiter interface {
	// Acquire takes a slot or returns ErrThrottled. release must be called once.
	Acquire(ctx context.Context, service string) (release func(), err error)
}

var acquireScript = redis.NewScript(`
-- KEYS[1] = counter key
-- ARGV[1] = limit (int)
-- ARGV[2] = ttl_ms (int)
--
-- Returns:
--  1 if acquired
--  0 if rejected (limit reached)
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
else
  -- Keep a TTL even if the key was created without one
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
  end
end

if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var releaseScript = redis.NewScript(`
-- KEYS[1] = counter key
-- Decrement, and delete if <= 0
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// RedisLimiter shares the per-service cap across every API replica.
//
// The counter key carries a TTL so a crashed process cannot hold slots
// forever. If Redis is unreachable the forward proceeds uncapped.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
	log   *slog.Logger
}

// NewRedisLimiter caps each service at limit concurrent forwards. ttl should
// comfortably exceed the outbound timeout.
func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration, log *slog.Logger) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl, log: log}, nil
}

func inflightKey(service string) string {
	return inflightKeyPrefix + service
}

func (l *RedisLimiter) Acquire(ctx context.Context, service string) (func(), error) {
	key := inflightKey(service)
	res, err := acquireScript.Run(ctx, l.rdb, []string{key}, l.limit, l.ttl.Milliseconds()).Int()
	if err != nil {
		l.log.Warn("forward cap unavailable, proceeding uncapped", "service", service, "err", err)
		return func() {}, nil
	}
	if res != 1 {
		return nil, ErrThrottled
	}

	return func() {
		// The caller's context may already be done when the forward finishes.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{key}).Err(); err != nil {
			l.log.Warn("forward cap release failed", "service", service, "err", err)
		}
	}, nil
}
