package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Limiter answers admission questions against a primary Store. Errors from
// the primary fail open to an in-memory fallback.
type Limiter struct {
	primary  Store
	fallback *MemoryStore
	logger   *zap.Logger
}

// New returns a limiter backed by primary. A nil primary means memory only.
func New(primary Store, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := NewMemoryStore()
	if primary == nil {
		primary = fallback
	}
	return &Limiter{primary: primary, fallback: fallback, logger: logger}
}

// Check allows at most max calls per key inside window.
func (l *Limiter) Check(ctx context.Context, key string, max int, window time.Duration) bool {
	n, err := l.primary.Incr(ctx, key, window)
	if err != nil {
		l.logger.Warn("rate limit store failed, using memory", zap.String("key", key), zap.Error(err))
		n, _ = l.fallback.Incr(ctx, key, window)
	}
	return n <= int64(max)
}

// CheckOnce allows a single call per key until window elapses.
func (l *Limiter) CheckOnce(ctx context.Context, key string, window time.Duration) bool {
	ok, err := l.primary.SetNX(ctx, key, window)
	if err != nil {
		l.logger.Warn("rate limit store failed, using memory", zap.String("key", key), zap.Error(err))
		ok, _ = l.fallback.SetNX(ctx, key, window)
	}
	return ok
}

// Run sweeps expired in-memory keys until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.fallback.Sweep()
			if mem, ok := l.primary.(*MemoryStore); ok && mem != l.fallback {
				removed += mem.Sweep()
			}
			if removed > 0 {
				l.logger.Debug("rate limit sweep", zap.Int("removed", removed))
			}
		}
	}
}
