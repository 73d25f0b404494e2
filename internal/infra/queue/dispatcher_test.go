package queue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

type endpoint struct {
	mu        sync.Mutex
	status    int
	hits      int
	retried   []string
	badSig    int
	callbacks []jobs.DeliveryReport
	failures  []jobs.DeliveryReport
}

func newEndpoint(t *testing.T, signer *Signer, status int) (*endpoint, *httptest.Server) {
	t.Helper()
	e := &endpoint{status: status}
	mux := http.NewServeMux()
	mux.HandleFunc("/stages/extract", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		e.mu.Lock()
		defer e.mu.Unlock()
		e.hits++
		e.retried = append(e.retried, req.Header.Get(jobs.HeaderRetried))
		if !signer.Verify(req.Header.Get(jobs.HeaderSignature), req.URL.Path, body) {
			e.badSig++
		}
		w.WriteHeader(e.status)
		_, _ = w.Write([]byte(`{"error":"document too short"}`))
	})
	report := func(dst *[]jobs.DeliveryReport) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			body, _ := io.ReadAll(req.Body)
			var rep jobs.DeliveryReport
			_ = json.Unmarshal(body, &rep)
			e.mu.Lock()
			defer e.mu.Unlock()
			if !signer.Verify(req.Header.Get(jobs.HeaderSignature), req.URL.Path, body) {
				e.badSig++
			}
			*dst = append(*dst, rep)
			w.WriteHeader(http.StatusOK)
		}
	}
	mux.HandleFunc("/queue/callback", report(&e.callbacks))
	mux.HandleFunc("/queue/failure", report(&e.failures))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return e, srv
}

func newTestDispatcher(t *testing.T, status int) (*Dispatcher, *RedisQ, *endpoint, string) {
	t.Helper()
	q, _ := newTestQueue(t)
	signer, err := NewSigner("secret", "")
	require.NoError(t, err)
	e, srv := newEndpoint(t, signer, status)
	d := &Dispatcher{
		Broker:  q,
		Signer:  signer,
		Client:  srv.Client(),
		Backoff: Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2},
		Logger:  zap.NewNop(),
	}
	return d, q, e, srv.URL
}

func enqueueStage(t *testing.T, q *RedisQ, base string, retries int) *Message {
	t.Helper()
	ctx := context.Background()
	_, err := q.Enqueue(ctx, base+"/stages/extract", []byte(`{"job_id":"j1"}`), jobs.RetryPolicy{
		Retries:         retries,
		Timeout:         5 * time.Second,
		Callback:        base + "/queue/callback",
		FailureCallback: base + "/queue/failure",
	})
	require.NoError(t, err)
	msg, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func TestDeliverSuccessPostsCallback(t *testing.T) {
	d, q, e, base := newTestDispatcher(t, http.StatusOK)
	msg := enqueueStage(t, q, base, 3)

	d.Deliver(context.Background(), *msg)

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Equal(t, 1, e.hits)
	assert.Equal(t, []string{"0"}, e.retried)
	assert.Zero(t, e.badSig)
	require.Len(t, e.callbacks, 1)
	assert.Equal(t, msg.ID, e.callbacks[0].MessageID)
	assert.Equal(t, http.StatusOK, e.callbacks[0].Status)
	assert.Equal(t, 1, e.callbacks[0].Attempts)
	assert.Empty(t, e.failures)
}

func TestDeliverRetriesThenDeadLetters(t *testing.T) {
	d, q, e, base := newTestDispatcher(t, http.StatusServiceUnavailable)
	ctx := context.Background()
	msg := enqueueStage(t, q, base, 1)

	d.Deliver(ctx, *msg)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, Depth{Delayed: 1}, depth)

	n, err := q.MoveDue(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	retry, err := q.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, retry)
	assert.Equal(t, 1, retry.Attempt)

	d.Deliver(ctx, *retry)

	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, Depth{Dead: 1}, depth)

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Equal(t, []string{"0", "1"}, e.retried)
	assert.Empty(t, e.callbacks)
	require.Len(t, e.failures, 1)
	assert.Equal(t, 2, e.failures[0].Attempts)
	assert.Equal(t, "status 503: document too short", e.failures[0].Error)
	assert.JSONEq(t, `{"job_id":"j1"}`, string(e.failures[0].Body))
}

func TestDeliverBusinessFailureIsNotRetried(t *testing.T) {
	d, q, e, base := newTestDispatcher(t, http.StatusUnprocessableEntity)
	ctx := context.Background()
	msg := enqueueStage(t, q, base, 3)

	d.Deliver(ctx, *msg)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, Depth{Dead: 1}, depth)

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Equal(t, 1, e.hits)
	require.Len(t, e.failures, 1)
	assert.Equal(t, http.StatusUnprocessableEntity, e.failures[0].Status)
}

func TestDeliverTransportErrorRetries(t *testing.T) {
	d, q, _, _ := newTestDispatcher(t, http.StatusOK)
	ctx := context.Background()
	msg := enqueueStage(t, q, "http://127.0.0.1:1", 2)

	d.Deliver(ctx, *msg)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth.Delayed)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 800*time.Millisecond, b.Delay(4))
	assert.Equal(t, time.Second, b.Delay(10))
	assert.Equal(t, 100*time.Millisecond, Backoff{}.Delay(1))
}

func TestRunStopsOnCancel(t *testing.T) {
	d, q, e, base := newTestDispatcher(t, http.StatusOK)
	d.Workers = 2
	d.Poll = 20 * time.Millisecond

	_, err := q.Enqueue(context.Background(), base+"/stages/extract", []byte(`{}`), jobs.RetryPolicy{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.hits == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestShutdownReturnsInFlightMessage(t *testing.T) {
	q, _ := newTestQueue(t)
	signer, err := NewSigner("secret", "")
	require.NoError(t, err)

	started := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		once.Do(func() { close(started) })
		<-req.Context().Done()
	}))
	t.Cleanup(srv.Close)

	d := &Dispatcher{
		Broker:  q,
		Signer:  signer,
		Client:  srv.Client(),
		Workers: 1,
		Poll:    20 * time.Millisecond,
		Logger:  zap.NewNop(),
	}
	bg := context.Background()
	id, err := q.Enqueue(bg, srv.URL+"/stages/extract", []byte(`{"job_id":"j1"}`), jobs.RetryPolicy{
		Retries: 3,
		Timeout: time.Minute,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(bg)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never started")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	depth, err := q.Depth(bg)
	require.NoError(t, err)
	assert.Equal(t, Depth{Ready: 1}, depth)

	msg, err := q.Dequeue(bg, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)
	assert.Zero(t, msg.Attempt, "an interrupted delivery is not an attempt")
	assert.Equal(t, 4, msg.MaxAttempts)
}
