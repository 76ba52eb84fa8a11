package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"webhook-recorder/internal/calls"
	"webhook-recorder/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "webhook:call:"

// Cached puts a Redis read-through cache in front of FindOne.
//
// Records never change after insert, so a cached copy is valid until it
// expires. Redis faults are logged and the backend is used instead; the
// cache never turns a successful lookup into a failure.
type Cached struct {
	next Store
	rdb  *redis.Client
	ttl  time.Duration
	log  *slog.Logger
}

func NewCached(next Store, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(service, id string) string {
	return cacheKeyPrefix + service + ":" + id
}

func (c *Cached) Open(ctx context.Context) (Session, error) {
	sess, err := c.next.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &cachedSession{Session: sess, c: c}, nil
}

type cachedSession struct {
	Session
	c *Cached
}

// cacheEntry carries the captured body bytes next to the record, since the
// record's JSON form only has the readable view.
type cacheEntry struct {
	Record  calls.Record `json:"record"`
	RawBody []byte       `json:"rawBody,omitempty"`
}

func decodeCacheEntry(raw []byte) (calls.Record, error) {
	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return calls.Record{}, err
	}
	if err := e.Record.Validate(); err != nil {
		return calls.Record{}, err
	}
	return withRawBody(e.Record, e.RawBody)
}

// FindOne counts every lookup under exactly one of hit, miss or error.
func (s *cachedSession) FindOne(ctx context.Context, service, id string) (calls.Record, bool, error) {
	key := cacheKey(service, id)

	result := "miss"
	raw, err := s.c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		rec, derr := decodeCacheEntry(raw)
		if derr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return rec, true, nil
		}
		result = "error"
		s.c.log.Warn("record cache entry unreadable", "key", key, "err", derr)
	case errors.Is(err, redis.Nil):
	default:
		result = "error"
		s.c.log.Warn("record cache get failed", "key", key, "err", err)
	}
	metrics.CacheLookups.WithLabelValues(result).Inc()

	rec, found, err := s.Session.FindOne(ctx, service, id)
	if err != nil || !found {
		return rec, found, err
	}
	if enc, merr := json.Marshal(cacheEntry{Record: rec, RawBody: rec.Body.Raw}); merr == nil {
		if serr := s.c.rdb.Set(ctx, key, enc, s.c.ttl).Err(); serr != nil {
			s.c.log.Warn("record cache set failed", "key", key, "err", serr)
		}
	}
	return rec, true, nil
}
