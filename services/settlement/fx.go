package settlement

import (
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(NewService),
)

var Routes = fx.Module("settlement.routes",
	fx.Invoke(RegisterRoutes),
)

// Worker wires the dispatch side: the payout agent client, the processor, its
// asynq handler, and the interval scheduler.
var Worker = fx.Module("settlement.worker",
	fx.Provide(
		NewHTTPPayoutAgent,
		NewProcessor,
		NewTask,
		NewScheduler,
	),
	fx.Invoke(StartScheduler),
)
