package graphstore

import (
	"go.uber.org/fx"
)

// Module provides the graph store.
var Module = fx.Module("graphstore",
	fx.Provide(
		NewRepository,
		// Bind the Store interface for the domain services.
		func(r *Repository) Store { return r },
	),
)
