package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/modelcurator/metagraph/domain/drivers"
	"github.com/modelcurator/metagraph/domain/relationships"
	"github.com/modelcurator/metagraph/domain/taxonomy"
	"github.com/modelcurator/metagraph/internal/config"
)

// Module provides the periodic sweep scheduler.
var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains the dependencies of the scheduled sweeps.
type TaskParams struct {
	fx.In
	Scheduler     *Scheduler
	Drivers       *drivers.Service
	Relationships *relationships.Service
	Taxonomy      *taxonomy.Service
	Log           *slog.Logger
	Cfg           *config.Config
}

// RegisterTasks registers all periodic sweeps.
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Sweep.Enabled {
		p.Log.Info("sweeps disabled, skipping task registration")
		return nil
	}

	allPairs := NewAllPairsAuditTask(p.Relationships, p.Log)
	if err := p.Scheduler.AddIntervalTask("all_pairs_audit",
		p.Cfg.Sweep.AllPairsInterval, allPairs.Run); err != nil {
		return err
	}

	groups := NewGroupExclusivityTask(p.Taxonomy, p.Log)
	if err := p.Scheduler.AddIntervalTask("group_exclusivity_audit",
		p.Cfg.Sweep.GroupAuditInterval, groups.Run); err != nil {
		return err
	}

	sentinels := NewSentinelCleanupTask(p.Drivers, p.Log)
	if err := p.Scheduler.AddIntervalTask("sentinel_cleanup",
		p.Cfg.Sweep.SentinelCleanupInterval, sentinels.Run); err != nil {
		return err
	}

	p.Log.Info("registered sweeps", slog.Any("tasks", p.Scheduler.ListTasks()))
	return nil
}

// RegisterSchedulerLifecycle ties the scheduler to the fx lifecycle.
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *config.Config) {
	if !cfg.Sweep.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
