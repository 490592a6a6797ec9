package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	countSuffix    = ":count"
	durationSuffix = ":ms"
)

// StatsService counts retrieval outcomes. Counters live in a Redis hash so
// replicas share them; an in-memory map takes over when Redis is absent or
// failing.
type StatsService struct {
	client *redis.Client
	key    string
	logger *logrus.Logger

	memStats map[string]int64
	memMutex sync.RWMutex
}

// OutcomeStats aggregates the retrievals that ended in one outcome kind
type OutcomeStats struct {
	Count         int64 `json:"count"`
	TotalMillis   int64 `json:"total_ms"`
	AverageMillis int64 `json:"avg_ms"`
}

// NewStatsService creates a new stats service. client may be nil.
func NewStatsService(client *redis.Client, prefix string, logger *logrus.Logger) *StatsService {
	if prefix == "" {
		prefix = "recibo"
	}
	return &StatsService{
		client:   client,
		key:      prefix + ":outcomes",
		logger:   logger,
		memStats: make(map[string]int64),
	}
}

// Record counts one outcome
func (s *StatsService) Record(ctx context.Context, kind string, duration time.Duration) {
	ms := duration.Milliseconds()

	if s.client != nil {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, s.key, kind+countSuffix, 1)
			pipe.HIncrBy(ctx, s.key, kind+durationSuffix, ms)
			return nil
		})
		if err == nil {
			return
		}
		s.logger.WithFields(logrus.Fields{
			"kind":  kind,
			"error": err.Error(),
		}).Warn("Redis stats error, falling back to memory")
	}

	s.memMutex.Lock()
	s.memStats[kind+countSuffix]++
	s.memStats[kind+durationSuffix] += ms
	s.memMutex.Unlock()
}

// Snapshot returns the counters per outcome kind
func (s *StatsService) Snapshot(ctx context.Context) (map[string]int64, error) {
	detailed, err := s.Detailed(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(detailed))
	for kind, st := range detailed {
		counts[kind] = st.Count
	}
	return counts, nil
}

// Detailed returns counts and durations per outcome kind. Counters kept in
// memory while Redis was failing are merged in.
func (s *StatsService) Detailed(ctx context.Context) (map[string]OutcomeStats, error) {
	raw := make(map[string]int64)

	if s.client != nil {
		fields, err := s.client.HGetAll(ctx, s.key).Result()
		if err != nil {
			s.logger.WithError(err).Warn("Redis stats read error, using memory counters")
		}
		for field, value := range fields {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				continue
			}
			raw[field] += n
		}
	}

	s.memMutex.RLock()
	for field, n := range s.memStats {
		raw[field] += n
	}
	s.memMutex.RUnlock()

	out := make(map[string]OutcomeStats)
	for field, n := range raw {
		switch {
		case strings.HasSuffix(field, countSuffix):
			kind := strings.TrimSuffix(field, countSuffix)
			st := out[kind]
			st.Count = n
			out[kind] = st
		case strings.HasSuffix(field, durationSuffix):
			kind := strings.TrimSuffix(field, durationSuffix)
			st := out[kind]
			st.TotalMillis = n
			out[kind] = st
		}
	}
	for kind, st := range out {
		if st.Count > 0 {
			st.AverageMillis = st.TotalMillis / st.Count
			out[kind] = st
		}
	}
	return out, nil
}

// Health returns stats service health status
func (s *StatsService) Health() map[string]interface{} {
	health := map[string]interface{}{
		"status": "healthy",
	}

	if s.client == nil {
		health["backend"] = "memory"
		return health
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		health["status"] = "degraded"
		health["backend"] = "memory"
		health["error"] = err.Error()
		return health
	}
	health["backend"] = "redis"
	return health
}
