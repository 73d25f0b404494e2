package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	r "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

func newTestQueue(t *testing.T) (*RedisQ, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := r.NewClient(&r.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Hour, zap.NewNop()), mr
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "https://api.example/stages/extract", []byte(`{"job_id":"j1"}`), jobs.RetryPolicy{
		Retries:         3,
		Timeout:         time.Minute,
		Callback:        "https://api.example/queue/callback",
		FailureCallback: "https://api.example/queue/failure",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msg, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, 4, msg.MaxAttempts)
	assert.Equal(t, 0, msg.Attempt)
	assert.Equal(t, time.Minute, msg.Timeout)
	assert.JSONEq(t, `{"job_id":"j1"}`, string(msg.Body))
	assert.Equal(t, "https://api.example/queue/failure", msg.FailureCallback)
}

func TestEnqueueDeduplicates(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	p := jobs.RetryPolicy{Retries: 3, DeduplicationID: "j1:2"}

	first, err := q.Enqueue(ctx, "https://api.example/stages/pre-analyze", []byte(`{}`), p)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "https://api.example/stages/pre-analyze", []byte(`{}`), p)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth.Ready)
}

func TestEnqueueWhenRedisDown(t *testing.T) {
	q, mr := newTestQueue(t)
	mr.Close()

	_, err := q.Enqueue(context.Background(), "https://api.example/stages/extract", []byte(`{}`), jobs.RetryPolicy{DeduplicationID: "j1:1"})
	assert.ErrorIs(t, err, jobs.ErrQueueUnavailable)
}

func TestDequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t)
	msg, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestReturnGoesAheadOfWaitingMessages(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "https://api.example/stages/extract", []byte(`{"job_id":"j1"}`), jobs.RetryPolicy{Retries: 1})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "https://api.example/stages/extract", []byte(`{"job_id":"j2"}`), jobs.RetryPolicy{Retries: 1})
	require.NoError(t, err)

	msg, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, first, msg.ID)

	require.NoError(t, q.Return(ctx, *msg))

	again, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first, again.ID)
	assert.Equal(t, 0, again.Attempt)
}

func TestScheduleAndMoveDue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.Schedule(ctx, Message{ID: "m1", URL: "u"}, now.Add(time.Second)))
	require.NoError(t, q.Schedule(ctx, Message{ID: "m2", URL: "u"}, now.Add(time.Minute)))

	n, err := q.MoveDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = q.MoveDue(ctx, now.Add(2*time.Second), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, Depth{Ready: 1, Delayed: 1}, depth)

	msg, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "m1", msg.ID)
}

func TestDeadLettersAndRequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.DeadLetter(ctx, Message{ID: "m1", URL: "u", Attempt: 4, MaxAttempts: 4, LastError: "status 500"}))
	require.NoError(t, q.DeadLetter(ctx, Message{ID: "m2", URL: "u", Attempt: 1, MaxAttempts: 4}))

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, "m2", dead[0].ID)

	ok, err := q.RequeueDead(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.RequeueDead(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	msg, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, 0, msg.Attempt)
	assert.Empty(t, msg.LastError)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth.Dead)
}
