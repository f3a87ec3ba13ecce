package service

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"spacedrift/internal/config"
	"spacedrift/internal/ratelimit"
	"spacedrift/internal/server"
)

type hub_Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Limiter   *ratelimit.Limiter
	Logger    *zap.Logger
}

func hub(params hub_Params) *server.Hub {
	h := server.NewHub(params.Config, params.Limiter, params.Logger.Named("hub"))

	ctx, cancel := context.WithCancel(context.Background())
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go h.RunLiveness(ctx, params.Config.PingInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			h.Shutdown()
			return nil
		},
	})
	return h
}

var ConfigModule = fx.Module("config", fx.Provide(
	config.Load,
))

var HubModule = fx.Module("hub", fx.Provide(
	hub,
	AsHttpController(server.NewHubController),
	AsHttpController(server.NewRecordsController),
))
