package service

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"spacedrift/internal/logging"
)

const serviceName = "spacedrift-hub"

type logger_Params struct {
	fx.In

	Lifecycle fx.Lifecycle
}

func logger(params logger_Params) (*zap.Logger, error) {
	log, err := logging.New(logging.FromEnv(serviceName))
	if err != nil {
		return nil, err
	}
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// Sync fails on non-file stdout; nothing to do about it.
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

var LoggerModule = fx.Module("logger", fx.Provide(
	logger,
))

// FxLogger routes fx's own lifecycle events through zap.
var FxLogger = fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log.Named("fx")}
})
