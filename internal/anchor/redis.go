package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/model"
)

// RedisStore keeps anchors in Redis. Entries expire a grace period after the
// session's end time so stale anchors clean themselves up.
type RedisStore struct {
	rdb   redis.UniversalClient
	grace time.Duration
	now   func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient, grace time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, grace: grace, now: time.Now}
}

func (r *RedisStore) Load(ctx context.Context, studentID, testID int64) (*model.TestSession, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.AttemptAnchorKey(studentID, testID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load anchor: %w", err)
	}

	var s model.TestSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode anchor: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s model.TestSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode anchor: %w", err)
	}

	ttl := s.Remaining(r.now()) + r.grace
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := r.rdb.Set(ctx, config.CacheKey.AttemptAnchorKey(s.StudentID, s.TestID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("save anchor: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, studentID, testID int64) error {
	if err := r.rdb.Del(ctx, config.CacheKey.AttemptAnchorKey(studentID, testID)).Err(); err != nil {
		return fmt.Errorf("delete anchor: %w", err)
	}
	return nil
}
