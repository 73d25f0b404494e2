package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/telemetry"
)

const (
	defaultWorkers      = 4
	defaultPoll         = 2 * time.Second
	defaultTimeout      = 60 * time.Second
	defaultPromoteBatch = 100
	maxResponseBody     = 64 << 10
	maxCallbackAttempts = 3
	callbackTimeout     = 15 * time.Second
)

// Backoff configures the delay before the next delivery attempt.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff 100ms doubling up to 30s.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 100 * time.Millisecond, Max: 30 * time.Second, Multiplier: 2.0}
}

// Delay for the given attempt, counting from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		b = DefaultBackoff()
	}
	if b.Multiplier <= 0 {
		b.Multiplier = 2.0
	}
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(max(attempt-1, 0)))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// Broker is the part of RedisQ the dispatcher uses.
type Broker interface {
	Dequeue(ctx context.Context, block time.Duration) (*Message, error)
	Return(ctx context.Context, msg Message) error
	Schedule(ctx context.Context, msg Message, at time.Time) error
	MoveDue(ctx context.Context, now time.Time, batch int64) (int, error)
	DeadLetter(ctx context.Context, msg Message) error
	Depth(ctx context.Context) (Depth, error)
}

// Dispatcher delivers queued messages over HTTP.
type Dispatcher struct {
	Broker  Broker
	Signer  *Signer
	Client  *http.Client
	Workers int
	Poll    time.Duration
	Backoff Backoff
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
	Now     func() time.Time
}

// Run blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	workers := d.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	d.log().Info("dispatcher started", zap.Int("workers", workers))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	g.Go(func() error {
		d.promote(ctx)
		return nil
	})
	err := g.Wait()
	d.log().Info("dispatcher stopped")
	return err
}

func (d *Dispatcher) work(ctx context.Context) {
	for ctx.Err() == nil {
		// A BRPOP cut short by cancellation can pop a message whose reply is
		// never read, so the pop itself only stops at the poll timeout.
		msg, err := d.Broker.Dequeue(context.WithoutCancel(ctx), d.poll())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log().Error("dequeue failed", zap.Error(err))
			sleep(ctx, d.poll())
			continue
		}
		if msg == nil {
			continue
		}
		d.Deliver(ctx, *msg)
	}
}

func (d *Dispatcher) promote(ctx context.Context) {
	t := time.NewTicker(d.poll())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if n, err := d.Broker.MoveDue(ctx, d.now(), defaultPromoteBatch); err != nil {
			d.log().Warn("promote delayed failed", zap.Error(err))
		} else if n > 0 {
			d.log().Debug("promoted delayed messages", zap.Int("count", n))
		}
		if depth, err := d.Broker.Depth(ctx); err == nil {
			d.Metrics.SetQueueDepth("ready", depth.Ready)
			d.Metrics.SetQueueDepth("delayed", depth.Delayed)
			d.Metrics.SetQueueDepth("dead", depth.Dead)
		}
	}
}

// Deliver makes one delivery attempt and settles its outcome: completion
// callback, a delayed retry, or a dead letter plus failure callback. A
// delivery interrupted by shutdown goes back to the ready list uncounted.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) {
	log := d.log().With(zap.String("message_id", msg.ID), zap.String("url", msg.URL), zap.Int("attempt", msg.Attempt+1))
	status, body, err := d.post(ctx, msg)
	if err != nil && ctx.Err() != nil {
		d.release(ctx, msg, log)
		return
	}
	// Settling must survive shutdown once the attempt has an outcome.
	ctx = context.WithoutCancel(ctx)
	attempts := msg.Attempt + 1
	report := jobs.DeliveryReport{MessageID: msg.ID, URL: msg.URL, Status: status, Body: msg.Body, Attempts: attempts}

	switch {
	case err == nil && status >= 200 && status < 300:
		d.Metrics.Delivery("delivered")
		log.Debug("delivered", zap.Int("status", status))
		if msg.Callback != "" {
			d.notify(ctx, msg.Callback, report)
		}
		return

	case err != nil || retryable(status):
		reason := describe(status, body, err)
		msg.LastError = reason
		if attempts < msg.MaxAttempts {
			msg.Attempt = attempts
			at := d.now().Add(d.Backoff.Delay(attempts))
			if serr := d.Broker.Schedule(ctx, msg, at); serr != nil {
				log.Error("schedule retry failed", zap.Error(serr))
			}
			d.Metrics.Delivery("retried")
			log.Warn("delivery failed, retrying", zap.String("reason", reason), zap.Time("next_at", at))
			return
		}
		report.Error = reason
		log.Error("delivery retries exhausted", zap.String("reason", reason))

	default:
		report.Error = describe(status, body, nil)
		msg.LastError = report.Error
		log.Warn("delivery rejected", zap.Int("status", status))
	}

	msg.Attempt = attempts
	if err := d.Broker.DeadLetter(ctx, msg); err != nil {
		log.Error("dead letter failed", zap.Error(err))
	}
	d.Metrics.Delivery("dead")
	if msg.FailureCallback != "" {
		d.notify(ctx, msg.FailureCallback, report)
	}
}

func (d *Dispatcher) release(ctx context.Context, msg Message, log *zap.Logger) {
	if err := d.Broker.Return(context.WithoutCancel(ctx), msg); err != nil {
		log.Error("return interrupted message failed", zap.Error(err))
		return
	}
	d.Metrics.Delivery("returned")
	log.Info("delivery interrupted by shutdown, message returned")
}

func (d *Dispatcher) post(ctx context.Context, msg Message) (int, []byte, error) {
	timeout := msg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.send(ctx, msg.URL, msg.ID, msg.Attempt, msg.Body)
}

func (d *Dispatcher) send(ctx context.Context, url, id string, retried int, body []byte) (int, []byte, error) {
	sig, err := d.Signer.Sign(url, id, body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(jobs.HeaderSignature, sig)
	req.Header.Set(jobs.HeaderMessageID, id)
	req.Header.Set(jobs.HeaderRetried, strconv.Itoa(retried))

	resp, err := d.client().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, out, nil
}

// notify posts a delivery report, retrying transport errors and 5xx a few times.
func (d *Dispatcher) notify(ctx context.Context, url string, report jobs.DeliveryReport) {
	raw, err := json.Marshal(report)
	if err != nil {
		d.log().Error("encode delivery report", zap.Error(err))
		return
	}
	for attempt := 1; attempt <= maxCallbackAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, callbackTimeout)
		status, _, err := d.send(cctx, url, report.MessageID, attempt-1, raw)
		cancel()
		if err == nil && status < 500 {
			if status >= 300 {
				d.log().Warn("callback rejected", zap.String("url", url), zap.Int("status", status))
			}
			return
		}
		if attempt == maxCallbackAttempts || !sleep(ctx, d.Backoff.Delay(attempt)) {
			d.log().Error("callback failed", zap.String("url", url), zap.String("message_id", report.MessageID), zap.String("reason", describe(status, nil, err)))
			return
		}
	}
}

// retryable statuses are the ones a later attempt may turn into success.
func retryable(status int) bool {
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500
}

func describe(status int, body []byte, err error) string {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "delivery timed out"
		}
		return err.Error()
	}
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Sprintf("status %d: %s", status, e.Error)
	}
	return fmt.Sprintf("status %d", status)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (d *Dispatcher) client() *http.Client {
	if d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

func (d *Dispatcher) poll() time.Duration {
	if d.Poll <= 0 {
		return defaultPoll
	}
	return d.Poll
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *Dispatcher) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
