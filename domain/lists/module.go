package lists

import (
	"go.uber.org/fx"
)

// Module provides the tier-chain builder.
var Module = fx.Module("lists",
	fx.Provide(NewService),
)
