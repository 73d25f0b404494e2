package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

// DefaultTTL must outlive the whole chain including every redelivery.
const DefaultTTL = 2 * time.Hour

const cleanupBatch = 100

// setStatus writes the status record and the bare state string together.
// A failed state is never overwritten. Returns 0 when refused.
var setStatus = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur == 'failed' then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'EX', ARGV[3])
return 1
`)

// StatusStore implements jobs.StatusStore on Redis. Every key expires.
type StatusStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewStatusStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *StatusStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusStore{rdb: rdb, ttl: ttl, logger: logger}
}

func statusKey(id string) string           { return "job:" + id + ":status" }
func stateKey(id string) string            { return "job:" + id + ":state" }
func resultKey(id string, slot int) string { return fmt.Sprintf("job:%s:result:%d", id, slot) }

func (s *StatusStore) ttlSeconds() int64 {
	sec := int64(s.ttl / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}

func (s *StatusStore) SetStatus(ctx context.Context, jobID string, st jobs.JobStatus) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	ok, err := setStatus.Run(ctx, s.rdb, []string{statusKey(jobID), stateKey(jobID)},
		string(raw), string(st.Status), s.ttlSeconds()).Int()
	if err != nil {
		return fmt.Errorf("set status %s: %w", jobID, err)
	}
	if ok == 0 {
		return jobs.ErrJobFailed
	}
	return nil
}

func (s *StatusStore) GetStatus(ctx context.Context, jobID string) (*jobs.JobStatus, error) {
	raw, err := s.rdb.Get(ctx, statusKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get status %s: %w", jobID, err)
	}
	var st jobs.JobStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode status %s: %w", jobID, err)
	}
	return &st, nil
}

func (s *StatusStore) SetResult(ctx context.Context, jobID string, slot int, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := s.rdb.Set(ctx, resultKey(jobID, slot), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set result %s/%d: %w", jobID, slot, err)
	}
	return nil
}

func (s *StatusStore) GetResult(ctx context.Context, jobID string, slot int, dst any) (bool, error) {
	raw, err := s.rdb.Get(ctx, resultKey(jobID, slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get result %s/%d: %w", jobID, slot, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode result %s/%d: %w", jobID, slot, err)
	}
	return true, nil
}

// Cleanup removes every key of the job.
func (s *StatusStore) Cleanup(ctx context.Context, jobID string) error {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, "job:"+jobID+":*", cleanupBatch).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", jobID, err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete %s: %w", jobID, err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.logger.Debug("status store cleaned", zap.String("job_id", jobID), zap.Int("keys", deleted))
	return nil
}

// Ping is used by the readiness check.
func (s *StatusStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
