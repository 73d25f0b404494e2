package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

const (
	readyKey   = "queue:ready"
	delayedKey = "queue:delayed"
	deadKey    = "queue:dead"
	dedupeKey  = "queue:dedupe:"
)

// Message is one queued delivery. Attempt counts deliveries already made.
type Message struct {
	ID              string        `json:"id"`
	URL             string        `json:"url"`
	Body            []byte        `json:"body"`
	Attempt         int           `json:"attempt"`
	MaxAttempts     int           `json:"max_attempts"`
	Timeout         time.Duration `json:"timeout"`
	Callback        string        `json:"callback,omitempty"`
	FailureCallback string        `json:"failure_callback,omitempty"`
	DeduplicationID string        `json:"deduplication_id,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// RedisQ is the broker: a ready list, a delayed set scored by due time and a
// dead letter list.
type RedisQ struct {
	rdb       *r.Client
	dedupeTTL time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func New(rdb *r.Client, dedupeTTL time.Duration, logger *zap.Logger) *RedisQ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQ{rdb: rdb, dedupeTTL: dedupeTTL, logger: logger, now: time.Now}
}

// Enqueue implements jobs.Queue. A repeated deduplication id returns the
// message id of the first enqueue without queuing again.
func (q *RedisQ) Enqueue(ctx context.Context, url string, payload []byte, p jobs.RetryPolicy) (string, error) {
	msg := Message{
		ID:              uuid.New().String(),
		URL:             url,
		Body:            payload,
		MaxAttempts:     1 + max(p.Retries, 0),
		Timeout:         p.Timeout,
		Callback:        p.Callback,
		FailureCallback: p.FailureCallback,
		DeduplicationID: p.DeduplicationID,
		CreatedAt:       q.now().UTC(),
	}

	if p.DeduplicationID != "" {
		ok, err := q.rdb.SetNX(ctx, dedupeKey+p.DeduplicationID, msg.ID, q.dedupeTTL).Result()
		if err != nil {
			return "", fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
		}
		if !ok {
			prev, err := q.rdb.Get(ctx, dedupeKey+p.DeduplicationID).Result()
			if err != nil {
				return "", fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
			}
			q.logger.Debug("duplicate enqueue", zap.String("dedupe_id", p.DeduplicationID), zap.String("message_id", prev))
			return prev, nil
		}
	}

	if err := q.push(ctx, msg); err != nil {
		if p.DeduplicationID != "" {
			_ = q.rdb.Del(ctx, dedupeKey+p.DeduplicationID).Err()
		}
		return "", fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	return msg.ID, nil
}

func (q *RedisQ) push(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, readyKey, raw).Err()
}

// Return puts a message back at the head of the ready list, ahead of
// everything waiting. The attempt count is left as is.
func (q *RedisQ) Return(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, readyKey, raw).Err()
}

// Dequeue blocks up to block for the next ready message. It returns nil when
// nothing arrived.
func (q *RedisQ) Dequeue(ctx context.Context, block time.Duration) (*Message, error) {
	res, err := q.rdb.BRPop(ctx, block, readyKey).Result()
	if errors.Is(err, r.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, nil
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		q.logger.Error("undecodable message dropped to dead letters", zap.Error(err))
		_ = q.rdb.LPush(ctx, deadKey, res[1]).Err()
		return nil, nil
	}
	return &msg, nil
}

// Schedule parks msg until at.
func (q *RedisQ) Schedule(ctx context.Context, msg Message, at time.Time) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, delayedKey, r.Z{Score: float64(at.UnixMilli()), Member: raw}).Err()
}

// MoveDue promotes delayed messages whose time has come.
func (q *RedisQ) MoveDue(ctx context.Context, now time.Time, batch int64) (int, error) {
	due, err := q.rdb.ZRangeByScore(ctx, delayedKey, &r.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: batch,
	}).Result()
	if err != nil || len(due) == 0 {
		return 0, err
	}
	pipe := q.rdb.TxPipeline()
	for _, m := range due {
		pipe.LPush(ctx, readyKey, m)
		pipe.ZRem(ctx, delayedKey, m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(due), nil
}

// DeadLetter stores a message that will not be delivered again.
func (q *RedisQ) DeadLetter(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, deadKey, raw).Err()
}

// DeadLetters lists up to limit dead messages, newest first.
func (q *RedisQ) DeadLetters(ctx context.Context, limit int64) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := q.rdb.LRange(ctx, deadKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// RequeueDead moves a dead message back to ready with a fresh attempt count.
func (q *RedisQ) RequeueDead(ctx context.Context, id string) (bool, error) {
	raws, err := q.rdb.LRange(ctx, deadKey, 0, -1).Result()
	if err != nil {
		return false, err
	}
	for _, raw := range raws {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil || m.ID != id {
			continue
		}
		m.Attempt = 0
		m.LastError = ""
		fresh, err := json.Marshal(m)
		if err != nil {
			return false, err
		}
		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, deadKey, 1, raw)
		pipe.LPush(ctx, readyKey, fresh)
		if _, err := pipe.Exec(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Depth is the size of each list.
type Depth struct {
	Ready   int64 `json:"ready"`
	Delayed int64 `json:"delayed"`
	Dead    int64 `json:"dead"`
}

func (q *RedisQ) Depth(ctx context.Context) (Depth, error) {
	pipe := q.rdb.Pipeline()
	ready := pipe.LLen(ctx, readyKey)
	delayed := pipe.ZCard(ctx, delayedKey)
	dead := pipe.LLen(ctx, deadKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Depth{}, err
	}
	return Depth{Ready: ready.Val(), Delayed: delayed.Val(), Dead: dead.Val()}, nil
}

// Ping is used by the readiness check.
func (q *RedisQ) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
