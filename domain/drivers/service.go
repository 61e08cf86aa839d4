package drivers

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/pkg/apperror"
	"github.com/modelcurator/metagraph/pkg/logger"
	"github.com/modelcurator/metagraph/pkg/metrics"
)

// Service reconciles driver edges against selector strings. The same
// diff/apply runs for Objects, Variables and Lists; only the entity label
// differs.
type Service struct {
	store graphstore.Store
	log   *slog.Logger
	locks keyedMutex
}

// NewService creates a new drivers service.
func NewService(store graphstore.Store, log *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With(logger.Scope("drivers.svc")),
	}
}

// ReconcileResult reports the writes one reconciliation performed.
type ReconcileResult struct {
	Created int `json:"created"`
	Deleted int `json:"deleted"`
}

// BatchResult is the partial-success summary of a backfill run.
type BatchResult struct {
	Processed int                 `json:"processed"`
	Created   int                 `json:"created"`
	Deleted   int                 `json:"deleted"`
	Errors    []apperror.ItemError `json:"errors,omitempty"`
}

// ReconcileDriverEdges makes the realized driver-edge set of an entity equal
// to what its selector string demands, per category, with the minimal
// add/remove set. The parse happens before any write; the diff and apply for
// all four categories share one transaction and a per-entity lock, so a
// concurrent reconcile of the same entity cannot interleave stale deletes
// with fresh creates. A repeat call with an unchanged selector performs zero
// writes.
//
// The policy decides what a selector name with no node means: entity CRUD
// passes PolicyUpsert and mints the node, repair sweeps pass
// PolicyRequireExisting and get NotFoundError carrying the missing names,
// with no writes applied for the entity.
func (s *Service) ReconcileDriverEdges(ctx context.Context, entityID uuid.UUID, kind EntityKind, selector string, policy ResolvePolicy) (ReconcileResult, error) {
	var res ReconcileResult

	if !kind.Valid() {
		return res, apperror.ErrValidation.WithMessagef("unknown entity kind %q", kind)
	}

	sel, err := ParseSelector(selector)
	if err != nil {
		return res, err
	}

	unlock := s.locks.lock(entityID)
	defer unlock()

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx graphstore.Store) error {
		entity, err := tx.GetNode(ctx, entityID)
		if err != nil {
			return err
		}
		if entity.Label != kind.Label() {
			return apperror.ErrValidation.WithMessagef(
				"entity %s is a %s, not a %s", entityID, entity.Label, kind)
		}

		for _, cat := range Categories() {
			created, deleted, err := s.reconcileCategory(ctx, tx, entity, cat, sel.Field(cat), policy)
			if err != nil {
				return err
			}
			res.Created += created
			res.Deleted += deleted
		}

		// Persist the raw selector only once every category reconciled.
		return tx.UpdateNodeProps(ctx, entityID, map[string]any{SelectorProp: selector})
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	metrics.DriverEdgesCreated.Add(float64(res.Created))
	metrics.DriverEdgesDeleted.Add(float64(res.Deleted))

	s.log.Debug("reconciled driver edges",
		slog.String("entity_id", entityID.String()),
		slog.String("kind", string(kind)),
		slog.Int("created", res.Created),
		slog.Int("deleted", res.Deleted))

	return res, nil
}

// reconcileCategory diffs expected vs. actual for one category and applies
// the difference.
func (s *Service) reconcileCategory(ctx context.Context, tx graphstore.Store, entity *graphstore.Node, cat Category, field Field, policy ResolvePolicy) (created, deleted int, err error) {
	expected, missing, err := ResolveExpected(ctx, tx, cat, field, policy)
	if err != nil {
		return 0, 0, err
	}
	if len(missing) > 0 {
		return 0, 0, apperror.ErrNotFound.
			WithMessagef("%s driver values have no node: %s", cat, strings.Join(missing, ", ")).
			WithDetails(map[string]any{"category": string(cat), "missing": missing})
	}

	expectedByID := make(map[uuid.UUID]bool, len(expected))
	for _, node := range expected {
		expectedByID[node.ID] = true
	}

	actual, err := tx.MatchEdges(ctx, graphstore.EdgePattern{
		Type:  cat.EdgeType(),
		DstID: &entity.ID,
	})
	if err != nil {
		return 0, 0, err
	}

	actualBySrc := make(map[uuid.UUID]*graphstore.Edge, len(actual))
	for _, edge := range actual {
		actualBySrc[edge.SrcID] = edge
	}

	for srcID, edge := range actualBySrc {
		if expectedByID[srcID] {
			continue
		}
		if err := tx.DeleteEdge(ctx, edge.ID); err != nil {
			return created, deleted, err
		}
		deleted++
	}

	for _, node := range expected {
		if _, ok := actualBySrc[node.ID]; ok {
			continue
		}
		if _, err := tx.CreateEdge(ctx, cat.EdgeType(), node.ID, entity.ID, nil); err != nil {
			return created, deleted, err
		}
		created++
	}

	return created, deleted, nil
}

// ReconcileTarget names one entity of a backfill batch.
type ReconcileTarget struct {
	EntityID uuid.UUID
	Kind     EntityKind
	Selector string
}

// ReconcileAll backfills driver edges for a batch of entities, strictly
// sequentially. A failing entity is recorded and the batch continues; the
// summary always comes back with counts and the per-item error list. Repair
// sweeps pass PolicyRequireExisting, so an entity whose selector names a
// value with no node is reported not_found instead of minting the node.
func (s *Service) ReconcileAll(ctx context.Context, targets []ReconcileTarget, policy ResolvePolicy) (BatchResult, error) {
	var res BatchResult

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		r, err := s.ReconcileDriverEdges(ctx, target.EntityID, target.Kind, target.Selector, policy)
		res.Processed++
		if err != nil {
			metrics.SweepFailures.WithLabelValues("driver_backfill").Inc()
			res.Errors = append(res.Errors, apperror.ItemError{
				ItemID: target.EntityID.String(),
				Cause:  err.Error(),
			})
			s.log.Warn("driver backfill item failed",
				slog.String("entity_id", target.EntityID.String()),
				logger.Error(err))
			continue
		}
		res.Created += r.Created
		res.Deleted += r.Deleted
	}

	return res, nil
}

// CleanupWildcardSentinels deletes driver nodes literally named "ALL" that
// legacy writers materialized. Their edges go away with them; affected
// entities converge on the next reconcile.
func (s *Service) CleanupWildcardSentinels(ctx context.Context) (int, error) {
	removed := 0
	for _, cat := range Categories() {
		nodes, err := s.store.MatchNodes(ctx, graphstore.NodeFilter{
			Label: cat.Label(),
			Keys:  []string{graphstore.WildcardSentinel},
		})
		if err != nil {
			return removed, err
		}
		for _, node := range nodes {
			if err := s.store.DeleteNode(ctx, node.ID); err != nil {
				return removed, err
			}
			removed++
			s.log.Info("removed persisted wildcard sentinel",
				slog.String("category", string(cat)),
				slog.String("node_id", node.ID.String()))
		}
	}
	return removed, nil
}

// keyedMutex serializes reconciliations per entity.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func (m *keyedMutex) lock(id uuid.UUID) (unlock func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[uuid.UUID]*entityLock)
	}
	l, ok := m.locks[id]
	if !ok {
		l = &entityLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}
