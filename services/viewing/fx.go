package viewing

import (
	"go.uber.org/fx"
)

var Module = fx.Module("viewing.service",
	fx.Provide(
		NewService,
		NewTask,
	),
)

var Routes = fx.Module("viewing.routes",
	fx.Invoke(RegisterRoutes),
)

// Worker wires the sweep side: the asynq handler plus its interval scheduler.
var Worker = fx.Module("viewing.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)
