package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the backing counter storage of a Limiter.
type Store interface {
	// Incr bumps the counter for key and returns the count inside the
	// current window. The window starts at the first increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// SetNX claims key for ttl. It reports false when the key is still held.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type entry struct {
	count   int64
	expires time.Time
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || !now.Before(e.expires) {
		s.entries[key] = &entry{count: 1, expires: now.Add(window)}
		return 1, nil
	}
	e.count++
	return e.count, nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		return false, nil
	}
	s.entries[key] = &entry{count: 1, expires: now.Add(ttl)}
	return true, nil
}

// Sweep drops expired keys and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RedisStore shares counters between hub processes.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "rl:"}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := s.prefix + key
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("incr %s: %w", k, err)
	}
	// A counter without an expiry would never reset, so repair it on any hit.
	if ttl.Val() < 0 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, fmt.Errorf("pexpire %s: %w", k, err)
		}
	}
	return incr.Val(), nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k := s.prefix + key
	ok, err := s.client.SetNX(ctx, k, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", k, err)
	}
	return ok, nil
}
