package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"streampay-controlplane/pkg/config"
	"streampay-controlplane/pkg/db"
	"streampay-controlplane/pkg/logger"
	"streampay-controlplane/pkg/redis"
	"streampay-controlplane/pkg/sequence"
	"streampay-controlplane/pkg/task"
	"streampay-controlplane/pkg/taskname"
	"streampay-controlplane/services/catalog"
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
		task.Server,
		sequence.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		ledger.Module,
		catalog.Module,
		viewing.Module,
		viewing.Worker,
		settlement.Module,
		settlement.Worker,
		fx.Invoke(registerHandlers),
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

func registerHandlers(mux *asynq.ServeMux, viewingTask *viewing.Task, settlementTask *settlement.Task) {
	mux.HandleFunc(taskname.ViewingSweepStale, viewingTask.HandleSweepStale)
	mux.HandleFunc(taskname.SettlementProcessPending, settlementTask.HandleProcessPending)
}

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
