package store

import (
	"context"
	"testing"
	"time"

	"webhook-recorder/internal/calls"
	"webhook-recorder/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance and client for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestCached_FindOneServesRepeatLookupsFromRedis(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	backend := NewMemory()
	ctx := context.Background()

	var id string
	require.NoError(t, WithSession(ctx, backend, func(s Session) error {
		var err error
		id, err = s.Insert(ctx, sampleRecord("github"))
		return err
	}))

	cached := NewCached(backend, client, time.Minute, nil)

	t.Run("miss populates the cache", func(t *testing.T) {
		err := WithSession(ctx, cached, func(s Session) error {
			rec, found, err := s.FindOne(ctx, "github", id)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, id, rec.ID)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, mr.Exists(cacheKey("github", id)))
		assert.Equal(t, time.Minute, mr.TTL(cacheKey("github", id)))
	})

	t.Run("hit survives backend read failures", func(t *testing.T) {
		backend.FindErr = assert.AnError
		defer func() { backend.FindErr = nil }()

		err := WithSession(ctx, cached, func(s Session) error {
			rec, found, err := s.FindOne(ctx, "github", id)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "github", rec.Service)
			assert.Equal(t, []string{"a", "b"}, rec.Headers["x-dup"])
			assert.JSONEq(t, `{"event":"push"}`, string(rec.Body.Value))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("not found is not cached", func(t *testing.T) {
		err := WithSession(ctx, cached, func(s Session) error {
			_, found, err := s.FindOne(ctx, "github", "missing")
			require.NoError(t, err)
			assert.False(t, found)
			return nil
		})
		require.NoError(t, err)
		assert.False(t, mr.Exists(cacheKey("github", "missing")))
	})

	opened, closed := backend.Sessions()
	assert.Equal(t, opened, closed)
}

func TestCached_RedisDownFallsBackToBackend(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer client.Close()

	backend := NewMemory()
	ctx := context.Background()
	var id string
	require.NoError(t, WithSession(ctx, backend, func(s Session) error {
		var err error
		id, err = s.Insert(ctx, sampleRecord("github"))
		return err
	}))

	mr.Close()

	cached := NewCached(backend, client, time.Minute, nil)
	err := WithSession(ctx, cached, func(s Session) error {
		rec, found, err := s.FindOne(ctx, "github", id)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, id, rec.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestCached_KeepsCapturedBodyBytes(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	backend := NewMemory()
	ctx := context.Background()

	captured := []byte(`{"b": "<tag>", "a": 12345678901234567890}` + "\n")
	rec := sampleRecord("github")
	rec.Body = calls.ParseBody("application/json", captured)

	var id string
	require.NoError(t, WithSession(ctx, backend, func(s Session) error {
		var err error
		id, err = s.Insert(ctx, rec)
		return err
	}))

	cached := NewCached(backend, client, time.Minute, nil)
	find := func() calls.Record {
		var got calls.Record
		require.NoError(t, WithSession(ctx, cached, func(s Session) error {
			var (
				found bool
				err   error
			)
			got, found, err = s.FindOne(ctx, "github", id)
			require.True(t, found)
			return err
		}))
		return got
	}

	find()
	backend.FindErr = assert.AnError
	defer func() { backend.FindErr = nil }()

	fromCache := find()
	replay, err := fromCache.Body.Payload()
	require.NoError(t, err)
	assert.Equal(t, captured, replay)
	assert.Equal(t, `{"b": "<tag>", "a": 12345678901234567890}`, string(fromCache.Body.Value))
}

func TestCached_CountsEachLookupOnce(t *testing.T) {
	lookups := func() (hit, miss, errs float64) {
		return testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")),
			testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss")),
			testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("error"))
	}
	findOne := func(t *testing.T, st Store, id string) {
		t.Helper()
		require.NoError(t, WithSession(context.Background(), st, func(s Session) error {
			_, found, err := s.FindOne(context.Background(), "github", id)
			assert.True(t, found)
			return err
		}))
	}

	tests := []struct {
		name                string
		setup               func(mr *miniredis.Miniredis, id string)
		redisDown           bool
		hit, miss, errCount float64
	}{
		{
			name:  "cold key is a miss",
			setup: func(*miniredis.Miniredis, string) {},
			miss:  1,
		},
		{
			name: "unreadable entry is an error",
			setup: func(mr *miniredis.Miniredis, id string) {
				require.NoError(t, mr.Set(cacheKey("github", id), "{not json"))
			},
			errCount: 1,
		},
		{
			name: "entry without a record is an error",
			setup: func(mr *miniredis.Miniredis, id string) {
				require.NoError(t, mr.Set(cacheKey("github", id), `{"service":"github"}`))
			},
			errCount: 1,
		},
		{
			name:      "redis down is an error",
			setup:     func(*miniredis.Miniredis, string) {},
			redisDown: true,
			errCount:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, client := setupTestRedis(t)
			defer client.Close()

			backend := NewMemory()
			var id string
			require.NoError(t, WithSession(context.Background(), backend, func(s Session) error {
				var err error
				id, err = s.Insert(context.Background(), sampleRecord("github"))
				return err
			}))
			tt.setup(mr, id)
			if tt.redisDown {
				mr.Close()
			} else {
				defer mr.Close()
			}

			hit0, miss0, err0 := lookups()
			findOne(t, NewCached(backend, client, time.Minute, nil), id)
			hit1, miss1, err1 := lookups()

			assert.Equal(t, tt.hit, hit1-hit0)
			assert.Equal(t, tt.miss, miss1-miss0)
			assert.Equal(t, tt.errCount, err1-err0)
		})
	}
}
