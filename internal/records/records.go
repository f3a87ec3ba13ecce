package records

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"spacedrift/internal/net"
)

const (
	LeaderboardCap = 1000
	MatchesCap     = 2000

	TopScoresLimit     = 100
	RecentMatchesLimit = 200

	MaxScore        = 1e9
	MaxMatchPlayers = 64
)

var (
	ErrMissingFields  = errors.New("missing fields")
	ErrInvalidScore   = errors.New("invalid score")
	ErrInvalidMatch   = errors.New("invalid match payload")
	ErrInvalidPlayers = errors.New("invalid players array")
	ErrNoValidPlayers = errors.New("no valid players")
)

type LeaderboardEntry struct {
	PlayerID  string  `json:"playerId"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Timestamp int64   `json:"timestamp"`
}

type MatchPlayer struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
}

type MatchRecord struct {
	MatchID   string        `json:"matchId"`
	Players   []MatchPlayer `json:"players"`
	WinnerID  string        `json:"winnerId,omitempty"`
	Duration  float64       `json:"duration"`
	GameMode  string        `json:"gameMode,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// Store persists leaderboard entries and match records, newest first.
type Store interface {
	PushLeaderboard(ctx context.Context, entry LeaderboardEntry) error
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	PushMatch(ctx context.Context, record MatchRecord) error
	Matches(ctx context.Context, limit int) ([]MatchRecord, error)
}

// ScoreSubmission is the POST /leaderboard body. Score is a pointer so a
// missing value can be told apart from zero.
type ScoreSubmission struct {
	PlayerID string   `json:"playerId"`
	Name     string   `json:"name"`
	Score    *float64 `json:"score"`
}

type MatchPlayerSubmission struct {
	PlayerID string   `json:"playerId"`
	Name     string   `json:"name"`
	Kills    *float64 `json:"kills"`
	Deaths   *float64 `json:"deaths"`
}

// MatchSubmission is the POST /matches body.
type MatchSubmission struct {
	MatchID  string                   `json:"matchId"`
	Players  []*MatchPlayerSubmission `json:"players"`
	WinnerID string                   `json:"winnerId"`
	Duration float64                  `json:"duration"`
	GameMode string                   `json:"gameMode"`
}

// Service validates submissions and shapes listings on top of a Store.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

func (s *Service) SubmitScore(ctx context.Context, sub ScoreSubmission) (LeaderboardEntry, error) {
	if sub.PlayerID == "" || sub.Score == nil {
		return LeaderboardEntry{}, ErrMissingFields
	}
	score := *sub.Score
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > MaxScore {
		return LeaderboardEntry{}, ErrInvalidScore
	}

	entry := LeaderboardEntry{
		PlayerID:  sub.PlayerID,
		Name:      net.DisplayName(sub.Name),
		Score:     score,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.store.PushLeaderboard(ctx, entry); err != nil {
		return LeaderboardEntry{}, err
	}
	return entry, nil
}

// TopScores returns the best recent entries, highest score first.
func (s *Service) TopScores(ctx context.Context) ([]LeaderboardEntry, error) {
	entries, err := s.store.Leaderboard(ctx, TopScoresLimit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > TopScoresLimit {
		entries = entries[:TopScoresLimit]
	}
	return entries, nil
}

func (s *Service) SubmitMatch(ctx context.Context, sub MatchSubmission) (MatchRecord, error) {
	if sub.MatchID == "" || sub.Players == nil {
		return MatchRecord{}, ErrInvalidMatch
	}
	if len(sub.Players) == 0 || len(sub.Players) > MaxMatchPlayers {
		return MatchRecord{}, ErrInvalidPlayers
	}

	players := make([]MatchPlayer, 0, len(sub.Players))
	for _, p := range sub.Players {
		if p == nil || p.PlayerID == "" {
			continue
		}
		players = append(players, MatchPlayer{
			PlayerID: p.PlayerID,
			Name:     net.DisplayName(p.Name),
			Kills:    count(p.Kills),
			Deaths:   count(p.Deaths),
		})
	}
	if len(players) == 0 {
		return MatchRecord{}, ErrNoValidPlayers
	}

	duration := sub.Duration
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		duration = 0
	}
	record := MatchRecord{
		MatchID:   sub.MatchID,
		Players:   players,
		WinnerID:  sub.WinnerID,
		Duration:  duration,
		GameMode:  sub.GameMode,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.store.PushMatch(ctx, record); err != nil {
		return MatchRecord{}, err
	}
	s.logger.Info("match recorded", zap.String("match", record.MatchID), zap.Int("players", len(players)))
	return record, nil
}

// RecentMatches returns the latest records, newest first.
func (s *Service) RecentMatches(ctx context.Context) ([]MatchRecord, error) {
	records, err := s.store.Matches(ctx, RecentMatchesLimit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp > records[j].Timestamp })
	if len(records) > RecentMatchesLimit {
		records = records[:RecentMatchesLimit]
	}
	return records, nil
}

func count(v *float64) int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return 0
	}
	if *v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(*v))
}
