package records

import (
	"context"

	"go.uber.org/zap"
)

// FallbackStore reads and writes through primary and switches to secondary
// for any call the primary fails.
type FallbackStore struct {
	primary   Store
	secondary Store
	logger    *zap.Logger
}

func NewFallbackStore(primary, secondary Store, logger *zap.Logger) *FallbackStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackStore{primary: primary, secondary: secondary, logger: logger}
}

func (s *FallbackStore) PushLeaderboard(ctx context.Context, entry LeaderboardEntry) error {
	if err := s.primary.PushLeaderboard(ctx, entry); err != nil {
		s.logger.Warn("leaderboard write failed, falling back to file", zap.Error(err))
		return s.secondary.PushLeaderboard(ctx, entry)
	}
	return nil
}

func (s *FallbackStore) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	entries, err := s.primary.Leaderboard(ctx, limit)
	if err != nil {
		s.logger.Warn("leaderboard read failed, falling back to file", zap.Error(err))
		return s.secondary.Leaderboard(ctx, limit)
	}
	return entries, nil
}

func (s *FallbackStore) PushMatch(ctx context.Context, record MatchRecord) error {
	if err := s.primary.PushMatch(ctx, record); err != nil {
		s.logger.Warn("match write failed, falling back to file", zap.Error(err))
		return s.secondary.PushMatch(ctx, record)
	}
	return nil
}

func (s *FallbackStore) Matches(ctx context.Context, limit int) ([]MatchRecord, error) {
	records, err := s.primary.Matches(ctx, limit)
	if err != nil {
		s.logger.Warn("match read failed, falling back to file", zap.Error(err))
		return s.secondary.Matches(ctx, limit)
	}
	return records, nil
}
