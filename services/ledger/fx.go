package ledger

import (
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
)

var Routes = fx.Module("ledger.routes",
	fx.Invoke(RegisterRoutes),
)
