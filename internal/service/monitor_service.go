package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/model"
	ws "github.com/stemsi/examflow/internal/websocket"
)

// MonitorService fans attempt events out to teachers over Redis Pub/Sub.
type MonitorService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewMonitorService creates a new MonitorService. rdb may be nil, which turns
// publishing into a no-op.
func NewMonitorService(rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		rdb: rdb,
		log: log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish sends ev to the test's channel. Failures are logged, never returned:
// monitoring must not fail a student's request.
func (s *MonitorService) Publish(ctx context.Context, ev model.MonitorEvent) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(ws.AttemptMessage{Event: ws.EventAttempt, Attempt: ev})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode monitor event")
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(ev.TestID), payload).Err(); err != nil {
		s.log.Warn().
			Err(err).
			Int64("test_id", ev.TestID).
			Str("event", string(ev.Type)).
			Msg("Failed to publish monitor event")
	}
}

// Subscribe opens a subscription to a test's channel. Callers close it.
func (s *MonitorService) Subscribe(ctx context.Context, testID int64) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.TestMonitorChannel(testID))
}

// Enabled reports whether live monitoring is available.
func (s *MonitorService) Enabled() bool {
	return s.rdb != nil
}
