package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"streampay-controlplane/pkg/config"
	"streampay-controlplane/pkg/db"
	"streampay-controlplane/pkg/health"
	"streampay-controlplane/pkg/logger"
	"streampay-controlplane/pkg/redis"
	"streampay-controlplane/pkg/sequence"
	"streampay-controlplane/pkg/server"
	"streampay-controlplane/pkg/task"
	"streampay-controlplane/services/catalog"
	"streampay-controlplane/services/funding"
	"streampay-controlplane/services/ledger"
	"streampay-controlplane/services/settlement"
	"streampay-controlplane/services/viewing"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		ledger.Module,
		catalog.Module,
		viewing.Module,
		funding.Module,
		settlement.Module,
		server.ProvideHTTPServer,
		health.Module,
		ledger.Routes,
		catalog.Routes,
		viewing.Routes,
		funding.Routes,
		settlement.Routes,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
