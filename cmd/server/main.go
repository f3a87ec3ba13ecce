package main

import (
	"go.uber.org/fx"

	"spacedrift/internal/service"
)

func main() {
	fx.New(
		service.FxLogger,

		service.LoggerModule,
		service.ConfigModule,
		service.StorageModule,
		service.HubModule,
		service.HttpModule,
	).Run()
}
