package records

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	leaderboardKey = "leaderboard:list"
	matchesKey     = "matches:list"
)

// RedisStore keeps both collections as capped redis lists.
type RedisStore struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewRedisStore(client redis.UniversalClient, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) PushLeaderboard(ctx context.Context, entry LeaderboardEntry) error {
	return s.push(ctx, leaderboardKey, entry, LeaderboardCap)
}

func (s *RedisStore) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	return readList[LeaderboardEntry](ctx, s, leaderboardKey, limit)
}

func (s *RedisStore) PushMatch(ctx context.Context, record MatchRecord) error {
	return s.push(ctx, matchesKey, record, MatchesCap)
}

func (s *RedisStore) Matches(ctx context.Context, limit int) ([]MatchRecord, error) {
	return readList[MatchRecord](ctx, s, matchesKey, limit)
}

func (s *RedisStore) push(ctx context.Context, key string, v any, cap int) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s item: %w", key, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(cap-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

// readList skips items that fail to decode.
func readList[T any](ctx context.Context, s *RedisStore, key string, limit int) ([]T, error) {
	items, err := s.client.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			s.logger.Debug("skipping undecodable record", zap.String("key", key), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
