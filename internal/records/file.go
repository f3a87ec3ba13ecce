package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps each collection as a JSON array in dir, newest first.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) PushLeaderboard(_ context.Context, entry LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return prepend(s.path("leaderboard.json"), entry, LeaderboardCap)
}

func (s *FileStore) Leaderboard(_ context.Context, limit int) ([]LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load[LeaderboardEntry](s.path("leaderboard.json"), limit)
}

func (s *FileStore) PushMatch(_ context.Context, record MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return prepend(s.path("matches.json"), record, MatchesCap)
}

func (s *FileStore) Matches(_ context.Context, limit int) ([]MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load[MatchRecord](s.path("matches.json"), limit)
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// load treats a missing or corrupt file as empty.
func load[T any](path string, limit int) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return []T{}, nil
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func prepend[T any](path string, item T, cap int) error {
	items, err := load[T](path, 0)
	if err != nil {
		return err
	}
	items = append([]T{item}, items...)
	if len(items) > cap {
		items = items[:cap]
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
