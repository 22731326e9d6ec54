package redis

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w4u-wizard-api/internal/domain/entity"
)

// 需要真实 Redis：W4U_TEST_REDIS_ADDR=localhost:6379
func newTestClient(t *testing.T) *Client {
	t.Helper()

	addr := os.Getenv("W4U_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("W4U_TEST_REDIS_ADDR not set")
	}

	client := NewClientWithRedis(redis.NewClient(&redis.Options{Addr: addr}))
	require.NoError(t, client.Ping(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// unreachableClient 指向没有监听的端口，所有命令立即失败
func unreachableClient(t *testing.T) *Client {
	t.Helper()
	client := NewClientWithRedis(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func countingLoader(job *entity.AIRequest, calls *atomic.Int32) func(context.Context) (*entity.AIRequest, error) {
	return func(context.Context) (*entity.AIRequest, error) {
		calls.Add(1)
		cp := *job
		return &cp, nil
	}
}

func newJob(status entity.AIRequestStatus) *entity.AIRequest {
	job := entity.NewAIRequest(uuid.NewString(), "", "interview", []byte(`{"action":"interview"}`))
	job.ID = uuid.NewString()
	job.Status = status
	return job
}

func TestJobSnapshotCache_OnlyTerminalJobsAreCached(t *testing.T) {
	client := newTestClient(t)
	snapshots := NewJobSnapshotCache(NewCache(client), time.Minute)
	ctx := context.Background()

	t.Run("pending job is reloaded every time", func(t *testing.T) {
		job := newJob(entity.AIRequestStatusPending)
		t.Cleanup(func() { client.Redis().Del(ctx, BuildJobSnapshotKey(job.ID)) })

		var calls atomic.Int32
		for n := 0; n < 2; n++ {
			got, err := snapshots.GetOrLoad(ctx, job.ID, countingLoader(job, &calls))
			require.NoError(t, err)
			assert.Equal(t, entity.AIRequestStatusPending, got.Status)
		}
		assert.Equal(t, int32(2), calls.Load())

		n, err := client.Redis().Exists(ctx, BuildJobSnapshotKey(job.ID)).Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("completed job is served from cache", func(t *testing.T) {
		job := newJob(entity.AIRequestStatusCompleted)
		job.ResponseData = []byte(`{"outline":["a"]}`)
		t.Cleanup(func() { client.Redis().Del(ctx, BuildJobSnapshotKey(job.ID)) })

		var calls atomic.Int32
		for n := 0; n < 2; n++ {
			got, err := snapshots.GetOrLoad(ctx, job.ID, countingLoader(job, &calls))
			require.NoError(t, err)
			assert.Equal(t, entity.AIRequestStatusCompleted, got.Status)
			assert.JSONEq(t, `{"outline":["a"]}`, string(got.ResponseData))
		}
		assert.Equal(t, int32(1), calls.Load())

		ttl, err := client.Redis().TTL(ctx, BuildJobSnapshotKey(job.ID)).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("missing job is not cached", func(t *testing.T) {
		id := uuid.NewString()
		var calls atomic.Int32
		load := func(context.Context) (*entity.AIRequest, error) {
			calls.Add(1)
			return nil, nil
		}
		for n := 0; n < 2; n++ {
			got, err := snapshots.GetOrLoad(ctx, id, load)
			require.NoError(t, err)
			assert.Nil(t, got)
		}
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("loader error is returned", func(t *testing.T) {
		boom := errors.New("db down")
		_, err := snapshots.GetOrLoad(ctx, uuid.NewString(), func(context.Context) (*entity.AIRequest, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestJobSnapshotCache_FallsBackWhenRedisIsDown(t *testing.T) {
	snapshots := NewJobSnapshotCache(NewCache(unreachableClient(t)), time.Minute)
	job := newJob(entity.AIRequestStatusCompleted)

	var calls atomic.Int32
	got, err := snapshots.GetOrLoad(context.Background(), job.ID, countingLoader(job, &calls))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, int32(1), calls.Load())

	boom := errors.New("db down")
	_, err = snapshots.GetOrLoad(context.Background(), job.ID, func(context.Context) (*entity.AIRequest, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRateLimiter_Allow(t *testing.T) {
	client := newTestClient(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()

	key := BuildUserRateLimitKey(uuid.NewString(), "ai-agent")
	other := BuildUserRateLimitKey(uuid.NewString(), "ai-agent")
	t.Cleanup(func() { client.Redis().Del(ctx, key, other) })

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, key, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, err := limiter.Allow(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, other, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	client := newTestClient(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()

	key := BuildUserRateLimitKey(uuid.NewString(), "export")
	t.Cleanup(func() { client.Redis().Del(ctx, key) })

	ok, err := limiter.Allow(ctx, key, 1, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(ctx, key, 1, 200*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(250 * time.Millisecond)
	ok, err = limiter.Allow(ctx, key, 1, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_RedisDown(t *testing.T) {
	limiter := NewRateLimiter(unreachableClient(t))
	_, err := limiter.Allow(context.Background(), "ratelimit:u:x", 1, time.Second)
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	assert.NoError(t, newTestClient(t).HealthCheck(context.Background()))
}
