package relationships

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/internal/config"
	"github.com/modelcurator/metagraph/pkg/apperror"
	"github.com/modelcurator/metagraph/pkg/logger"
	"github.com/modelcurator/metagraph/pkg/metrics"
)

// Service maintains the all-pairs relationship invariant: every ordered pair
// of Objects, self-pairs included, carries exactly one default edge whose
// role is the source object's name.
type Service struct {
	store       graphstore.Store
	log         *slog.Logger
	pageSize    int
	concurrency int
}

// NewService creates a new relationships service.
func NewService(store graphstore.Store, log *slog.Logger, cfg *config.Config) *Service {
	return &Service{
		store:       store,
		log:         log.With(logger.Scope("relationships.svc")),
		pageSize:    cfg.Sweep.PageSize,
		concurrency: cfg.Sweep.PairConcurrency,
	}
}

// Report summarizes an enforcement or audit run. Per-pair failures are
// collected, never fatal: the sweep always finishes and reports what it saw.
type Report struct {
	Created    int                  `json:"created"`
	Normalized int                  `json:"normalized"`
	Removed    int                  `json:"removed"`
	Errors     []apperror.ItemError `json:"errors,omitempty"`
}

// EnsureAllPairsRelationships runs at object-creation time: it creates the
// default edge from the new object to every object (itself included) and from
// every existing object back to the new one. Pairs that already have their
// default edge are skipped, so re-running for an existing object is a no-op.
func (s *Service) EnsureAllPairsRelationships(ctx context.Context, newObjectID uuid.UUID, newObjectName string) (Report, error) {
	var report Report

	newObj, err := s.store.GetNode(ctx, newObjectID)
	if err != nil {
		return report, err
	}
	if newObj.Label != ObjectLabel {
		return report, apperror.ErrValidation.WithMessagef("entity %s is not an Object", newObjectID)
	}
	if newObj.Name != newObjectName {
		// Stale caller snapshot; trust the store.
		newObjectName = newObj.Name
	}

	var mu sync.Mutex
	for offset := 0; ; offset += s.pageSize {
		page, err := s.store.MatchNodes(ctx, graphstore.NodeFilter{
			Label:  ObjectLabel,
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			return report, err
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for _, other := range page {
			other := other
			g.Go(func() error {
				created, errs := s.ensurePairBothWays(gctx, newObj, other)
				mu.Lock()
				report.Created += created
				report.Errors = append(report.Errors, errs...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}
	}

	metrics.RelationshipEdgesCreated.Add(float64(report.Created))
	s.log.Info("ensured all-pairs relationships",
		slog.String("object", newObjectName),
		slog.Int("created", report.Created),
		slog.Int("failed", len(report.Errors)))

	return report, nil
}

// ensurePairBothWays creates the missing default edges newObj->other and
// other->newObj. For the self pair only one edge exists.
func (s *Service) ensurePairBothWays(ctx context.Context, newObj, other *graphstore.Node) (int, []apperror.ItemError) {
	created := 0
	var errs []apperror.ItemError

	pairs := [][2]*graphstore.Node{{newObj, other}}
	if other.ID != newObj.ID {
		pairs = append(pairs, [2]*graphstore.Node{other, newObj})
	}

	for _, pair := range pairs {
		src, dst := pair[0], pair[1]
		_, err := s.store.CreateEdge(ctx, EdgeType, src.ID, dst.ID, defaultProps(src, dst))
		if errors.Is(err, apperror.ErrDuplicate) {
			continue
		}
		if err != nil {
			metrics.SweepFailures.WithLabelValues("all_pairs_ensure").Inc()
			errs = append(errs, apperror.ItemError{
				ItemID: src.ID.String() + "->" + dst.ID.String(),
				Cause:  err.Error(),
			})
			continue
		}
		created++
	}
	return created, errs
}

// AuditAllPairsRelationships repairs the invariant over the given objects, or
// over every object when ids is empty. Per ordered pair it creates the
// missing default edge, removes duplicate default-role edges keeping the
// oldest, and normalizes the survivor's kind/frequency/target snapshot.
// Edges with non-default roles are user data and are left untouched.
func (s *Service) AuditAllPairsRelationships(ctx context.Context, ids []uuid.UUID) (Report, error) {
	var report Report

	objects, err := s.loadObjects(ctx, ids)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	for _, src := range objects {
		src := src

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for _, dst := range objects {
			dst := dst
			g.Go(func() error {
				created, normalized, removed, err := s.repairPair(gctx, src, dst)
				mu.Lock()
				defer mu.Unlock()
				report.Created += created
				report.Normalized += normalized
				report.Removed += removed
				if err != nil {
					metrics.SweepFailures.WithLabelValues("all_pairs_audit").Inc()
					report.Errors = append(report.Errors, apperror.ItemError{
						ItemID: src.ID.String() + "->" + dst.ID.String(),
						Cause:  err.Error(),
					})
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}
	}

	metrics.RelationshipEdgesCreated.Add(float64(report.Created))
	metrics.RelationshipEdgesNormalized.Add(float64(report.Normalized))
	metrics.RelationshipEdgesRemoved.Add(float64(report.Removed))

	s.log.Info("audited all-pairs relationships",
		slog.Int("objects", len(objects)),
		slog.Int("created", report.Created),
		slog.Int("normalized", report.Normalized),
		slog.Int("removed", report.Removed),
		slog.Int("failed", len(report.Errors)))

	return report, nil
}

// repairPair enforces "exactly one default edge" for the ordered pair
// (src, dst).
func (s *Service) repairPair(ctx context.Context, src, dst *graphstore.Node) (created, normalized, removed int, err error) {
	edges, err := s.store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:  EdgeType,
		SrcID: &src.ID,
		DstID: &dst.ID,
		PropEquals: map[string]string{
			PropRole: src.Name,
		},
	})
	if err != nil {
		return 0, 0, 0, err
	}

	if len(edges) == 0 {
		_, err := s.store.CreateEdge(ctx, EdgeType, src.ID, dst.ID, defaultProps(src, dst))
		if err != nil && !errors.Is(err, apperror.ErrDuplicate) {
			return 0, 0, 0, err
		}
		if err == nil {
			created++
		}
		return created, 0, 0, nil
	}

	// MatchEdges orders by creation time: edges[0] is the oldest and wins.
	keeper := edges[0]
	for _, extra := range edges[1:] {
		if err := s.store.DeleteEdge(ctx, extra.ID); err != nil {
			return created, normalized, removed, err
		}
		removed++
	}

	want := defaultProps(src, dst)
	if keeper.PropString(PropKind) != want[PropKind] ||
		keeper.PropString(PropFrequency) != want[PropFrequency] ||
		keeper.PropString(PropTargetName) != want[PropTargetName] {
		if err := s.store.UpdateEdgeProps(ctx, keeper.ID, want); err != nil {
			return created, normalized, removed, err
		}
		normalized++
	}

	return created, normalized, removed, nil
}

// RetypeEdgesToTarget bulk-updates kind/frequency on relationship edges
// pointing at a target. Edges whose role equals the source object's own name
// are default edges and are never modified.
func (s *Service) RetypeEdgesToTarget(ctx context.Context, targetID uuid.UUID, newKind, newFrequency string) (updated, skipped int, err error) {
	switch newKind {
	case KindInterTable, KindIntraTable, KindBlood:
	default:
		return 0, 0, apperror.ErrValidation.WithMessagef("unknown relationship kind %q", newKind)
	}

	edges, err := s.store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:  EdgeType,
		DstID: &targetID,
	})
	if err != nil {
		return 0, 0, err
	}

	for _, edge := range edges {
		src, err := s.store.GetNode(ctx, edge.SrcID)
		if err != nil {
			return updated, skipped, err
		}
		if edge.Role() == src.Name {
			skipped++
			continue
		}
		err = s.store.UpdateEdgeProps(ctx, edge.ID, map[string]any{
			PropKind:      newKind,
			PropFrequency: newFrequency,
		})
		if err != nil {
			return updated, skipped, err
		}
		updated++
	}
	return updated, skipped, nil
}

// CreateRelationship adds a user relationship with an explicit role. A second
// edge for a satisfied (source, target, role) triple is rejected with
// DuplicateError rather than silently stacked.
func (s *Service) CreateRelationship(ctx context.Context, srcID, dstID uuid.UUID, role, kind, frequency string) (*graphstore.Edge, error) {
	if role == "" {
		return nil, apperror.ErrValidation.WithMessage("relationship role is required")
	}
	dst, err := s.store.GetNode(ctx, dstID)
	if err != nil {
		return nil, err
	}
	return s.store.CreateEdge(ctx, EdgeType, srcID, dstID, map[string]any{
		PropRole:       role,
		PropKind:       kind,
		PropFrequency:  frequency,
		PropTargetName: dst.Name,
	})
}

// loadObjects pages through the object set (or resolves explicit ids).
func (s *Service) loadObjects(ctx context.Context, ids []uuid.UUID) ([]*graphstore.Node, error) {
	if len(ids) > 0 {
		objects := make([]*graphstore.Node, 0, len(ids))
		for _, id := range ids {
			node, err := s.store.GetNode(ctx, id)
			if err != nil {
				return nil, err
			}
			if node.Label != ObjectLabel {
				return nil, apperror.ErrValidation.WithMessagef("entity %s is not an Object", id)
			}
			objects = append(objects, node)
		}
		return objects, nil
	}

	var objects []*graphstore.Node
	for offset := 0; ; offset += s.pageSize {
		page, err := s.store.MatchNodes(ctx, graphstore.NodeFilter{
			Label:  ObjectLabel,
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		objects = append(objects, page...)
		if len(page) < s.pageSize {
			break
		}
	}
	return objects, nil
}
