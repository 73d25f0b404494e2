package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/infra/cache"
)

func newStore(t *testing.T, ttl time.Duration) (*cache.StatusStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewStatusStore(rdb, ttl, zap.NewNop()), mr
}

func testJob() jobs.Job {
	return jobs.First(jobs.Job{ID: "job-1", OwnerID: "owner-1", Tier: jobs.TierStandard})
}

func TestStatusRoundTripWithTTL(t *testing.T) {
	store, mr := newStore(t, time.Hour)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	got, err := store.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.SetStatus(ctx, "job-1", jobs.NewStatus(testJob(), jobs.StatusRunning, 10, now)))

	got, err = store.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, jobs.StatusRunning, got.Status)
	assert.Equal(t, 1, got.Step)
	assert.Equal(t, 4, got.TotalSteps)
	assert.Equal(t, "Extracting text", got.StepName)

	assert.Equal(t, time.Hour, mr.TTL("job:job-1:status"))
	assert.Equal(t, time.Hour, mr.TTL("job:job-1:state"))

	mr.FastForward(time.Hour + time.Second)
	got, err = store.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailedStatusIsTerminal(t *testing.T) {
	store, _ := newStore(t, time.Hour)
	ctx := context.Background()
	now := time.Now()

	failed := jobs.NewStatus(testJob(), jobs.StatusFailed, 10, now)
	failed.Error = "boom"
	require.NoError(t, store.SetStatus(ctx, "job-1", failed))

	err := store.SetStatus(ctx, "job-1", jobs.NewStatus(testJob(), jobs.StatusCompleted, 100, now))
	assert.ErrorIs(t, err, jobs.ErrJobFailed)

	got, err := store.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestResultsAndCleanup(t *testing.T) {
	store, mr := newStore(t, 30*time.Minute)
	ctx := context.Background()

	type payload struct {
		Words int    `json:"words"`
		Text  string `json:"text"`
	}
	require.NoError(t, store.SetResult(ctx, "job-1", 1, payload{Words: 3, Text: "a b c"}))
	require.NoError(t, store.SetResult(ctx, "job-1", 2, []int{1, 2}))
	require.NoError(t, store.SetResult(ctx, "job-2", 1, payload{Words: 1}))
	require.NoError(t, store.SetStatus(ctx, "job-1", jobs.NewStatus(testJob(), jobs.StatusCompleted, 100, time.Now())))
	assert.Equal(t, 30*time.Minute, mr.TTL("job:job-1:result:1"))

	var p payload
	ok, err := store.GetResult(ctx, "job-1", 1, &p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload{Words: 3, Text: "a b c"}, p)

	ok, err = store.GetResult(ctx, "job-1", 4, &p)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Cleanup(ctx, "job-1"))
	assert.False(t, mr.Exists("job:job-1:status"))
	assert.False(t, mr.Exists("job:job-1:state"))
	assert.False(t, mr.Exists("job:job-1:result:1"))
	assert.False(t, mr.Exists("job:job-1:result:2"))
	assert.True(t, mr.Exists("job:job-2:result:1"))

	// a cleaned job can be written again, it is not a failed one
	require.NoError(t, store.SetStatus(ctx, "job-1", jobs.NewStatus(testJob(), jobs.StatusRunning, 0, time.Now())))
}

func TestStoreErrorsWhenRedisIsDown(t *testing.T) {
	store, mr := newStore(t, time.Hour)
	mr.Close()

	err := store.SetStatus(context.Background(), "job-1", jobs.NewStatus(testJob(), jobs.StatusRunning, 0, time.Now()))
	require.Error(t, err)
	assert.NotErrorIs(t, err, jobs.ErrJobFailed)

	_, err = store.GetStatus(context.Background(), "job-1")
	assert.Error(t, err)
}
