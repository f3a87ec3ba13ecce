package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"spacedrift/internal/config"
	"spacedrift/internal/ratelimit"
	"spacedrift/internal/records"
)

const (
	redisPingTimeout = 2 * time.Second
	sweepInterval    = time.Minute
)

type redisClient_Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Logger    *zap.Logger
}

// redisClient returns nil when REDIS_URL is unset. Everything that takes a
// client treats nil as "memory and files only".
func redisClient(params redisClient_Params) (redis.UniversalClient, error) {
	if params.Config.RedisURL == "" {
		params.Logger.Info("REDIS_URL not set, using in-memory rate limits and file records")
		return nil, nil
	}
	opts, err := redis.ParseURL(params.Config.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
			defer cancel()
			if err := client.Ping(ctx).Err(); err != nil {
				params.Logger.Warn("redis unreachable, falling back until it recovers", zap.Error(err))
				return nil
			}
			params.Logger.Info("redis connected", zap.String("addr", opts.Addr))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

type limiter_Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Redis     redis.UniversalClient
	Logger    *zap.Logger
}

func limiter(params limiter_Params) *ratelimit.Limiter {
	var store ratelimit.Store
	if params.Redis != nil {
		store = ratelimit.NewRedisStore(params.Redis)
	}
	l := ratelimit.New(store, params.Logger.Named("ratelimit"))

	ctx, cancel := context.WithCancel(context.Background())
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go l.Run(ctx, sweepInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return l
}

type recordStore_Params struct {
	fx.In

	Config config.Config
	Redis  redis.UniversalClient
	Logger *zap.Logger
}

func recordStore(params recordStore_Params) records.Store {
	logger := params.Logger.Named("records")
	file := records.NewFileStore(params.Config.DataDir)
	if params.Redis == nil {
		return file
	}
	return records.NewFallbackStore(records.NewRedisStore(params.Redis, logger), file, logger)
}

func recordService(store records.Store, logger *zap.Logger) *records.Service {
	return records.NewService(store, logger.Named("records"))
}

var StorageModule = fx.Module("storage", fx.Provide(
	redisClient,
	limiter,
	recordStore,
	recordService,
))
