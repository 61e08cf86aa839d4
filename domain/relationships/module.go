package relationships

import (
	"go.uber.org/fx"
)

// Module provides the all-pairs relationship enforcer.
var Module = fx.Module("relationships",
	fx.Provide(NewService),
)
