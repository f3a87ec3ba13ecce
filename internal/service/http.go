package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"spacedrift/internal/config"
	"spacedrift/internal/server"
)

const httpControllerTag = `group:"http.controller"`

// AsHttpController provides f's result as a route group for the HTTP server.
func AsHttpController(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(server.HttpResolvable)),
		fx.ResultTags(httpControllerTag),
	)
}

type httpServer_Params struct {
	fx.In

	Lifecycle   fx.Lifecycle
	Shutdowner  fx.Shutdowner
	Controllers []server.HttpResolvable `group:"http.controller"`
	Config      config.Config
	Logger      *zap.Logger
}

func httpServer(params httpServer_Params) error {
	logger := params.Logger.Named("http")
	router := server.NewRouter(logger)

	for _, controller := range params.Controllers {
		if err := controller.Resolve(router); err != nil {
			return fmt.Errorf("resolve controller: %w", err)
		}
	}

	addr := fmt.Sprintf(":%s", params.Config.Port)
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("listening", zap.String("addr", addr))
				if err := router.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
					_ = params.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return router.Shutdown(ctx)
		},
	})
	return nil
}

var HttpModule = fx.Module("http", fx.Invoke(httpServer))
