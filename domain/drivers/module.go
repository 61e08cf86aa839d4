package drivers

import (
	"go.uber.org/fx"
)

// Module provides the driver reconciliation service.
var Module = fx.Module("drivers",
	fx.Provide(NewService),
)
