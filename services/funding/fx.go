package funding

import (
	"go.uber.org/fx"
)

var Module = fx.Module("funding.service",
	fx.Provide(
		NewHTTPOracle,
		NewService,
	),
)

var Routes = fx.Module("funding.routes",
	fx.Invoke(RegisterRoutes),
)
