package taxonomy

import (
	"go.uber.org/fx"
)

// Module provides the group-part exclusivity auditor.
var Module = fx.Module("taxonomy",
	fx.Provide(NewService),
)
