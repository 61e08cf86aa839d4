package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcurator/metagraph/domain/drivers"
	"github.com/modelcurator/metagraph/domain/relationships"
	"github.com/modelcurator/metagraph/domain/taxonomy"
	"github.com/modelcurator/metagraph/pkg/logger"
)

// AllPairsAuditTask sweeps the object population and repairs the default
// relationship mesh.
type AllPairsAuditTask struct {
	svc *relationships.Service
	log *slog.Logger
}

func NewAllPairsAuditTask(svc *relationships.Service, log *slog.Logger) *AllPairsAuditTask {
	return &AllPairsAuditTask{
		svc: svc,
		log: log.With(logger.Scope("scheduler.all_pairs")),
	}
}

func (t *AllPairsAuditTask) Run(ctx context.Context) error {
	start := time.Now()

	report, err := t.svc.AuditAllPairsRelationships(ctx, nil)
	if err != nil {
		return err
	}
	t.log.Info("all-pairs sweep finished",
		slog.Int("created", report.Created),
		slog.Int("normalized", report.Normalized),
		slog.Int("removed", report.Removed),
		slog.Int("failed", len(report.Errors)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// GroupExclusivityTask repairs groups claimed by more than one part.
type GroupExclusivityTask struct {
	svc *taxonomy.Service
	log *slog.Logger
}

func NewGroupExclusivityTask(svc *taxonomy.Service, log *slog.Logger) *GroupExclusivityTask {
	return &GroupExclusivityTask{
		svc: svc,
		log: log.With(logger.Scope("scheduler.group_exclusivity")),
	}
}

func (t *GroupExclusivityTask) Run(ctx context.Context) error {
	start := time.Now()

	report, err := t.svc.AuditGroupPartExclusivity(ctx)
	if err != nil {
		return err
	}
	t.log.Info("group exclusivity sweep finished",
		slog.Int("checked", report.Checked),
		slog.Int("repaired", report.Repaired),
		slog.Int("removed", report.Removed),
		slog.Int("failed", len(report.Errors)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// SentinelCleanupTask removes literal wildcard nodes left behind by older
// writers that persisted the selector sentinel.
type SentinelCleanupTask struct {
	svc *drivers.Service
	log *slog.Logger
}

func NewSentinelCleanupTask(svc *drivers.Service, log *slog.Logger) *SentinelCleanupTask {
	return &SentinelCleanupTask{
		svc: svc,
		log: log.With(logger.Scope("scheduler.sentinel_cleanup")),
	}
}

func (t *SentinelCleanupTask) Run(ctx context.Context) error {
	deleted, err := t.svc.CleanupWildcardSentinels(ctx)
	if err != nil {
		return err
	}
	if deleted > 0 {
		t.log.Info("removed persisted wildcard sentinels", slog.Int("deleted", deleted))
	}
	return nil
}
