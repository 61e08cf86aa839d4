// Package main runs the metagraph sweeper: the long-lived process that keeps
// the property graph's driver edges, default relationships and taxonomy
// claims consistent via periodic sweeps.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/modelcurator/metagraph/domain/drivers"
	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/domain/lists"
	"github.com/modelcurator/metagraph/domain/relationships"
	"github.com/modelcurator/metagraph/domain/scheduler"
	"github.com/modelcurator/metagraph/domain/taxonomy"
	"github.com/modelcurator/metagraph/internal/config"
	"github.com/modelcurator/metagraph/internal/database"
	"github.com/modelcurator/metagraph/pkg/logger"
)

func main() {
	// Load() won't overwrite existing vars, Overload() will.
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure
		logger.Module,
		config.Module,
		database.Module,
		graphstore.Module,

		// Domain
		drivers.Module,
		relationships.Module,
		lists.Module,
		taxonomy.Module,
		scheduler.Module,
	).Run()
}
