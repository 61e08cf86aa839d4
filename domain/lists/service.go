// Package lists maintains tiered list structures: the HAS_TIER_n edges that
// define a list's nesting, the per-list value chains linking a tier's values
// to their parents one tier up, and the driver mirroring that keeps child
// tier lists aligned with their parent.
package lists

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/modelcurator/metagraph/domain/drivers"
	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/pkg/apperror"
	"github.com/modelcurator/metagraph/pkg/logger"
	"github.com/modelcurator/metagraph/pkg/metrics"
)

type Service struct {
	store   graphstore.Store
	log     *slog.Logger
	drivers *drivers.Service
}

func NewService(store graphstore.Store, log *slog.Logger, driverSvc *drivers.Service) *Service {
	return &Service{
		store:   store,
		log:     log.With(logger.Scope("lists.svc")),
		drivers: driverSvc,
	}
}

// SetTierStructure makes the list's tier structure match tierNames: one child
// list per name, tagged with its tier number and scoped to the parent, linked
// by HAS_TIER_1..HAS_TIER_n in the given order. Tiers no longer present are
// torn down: their chain edges go away and values left without an inbound
// chain edge are deleted with them.
func (s *Service) SetTierStructure(ctx context.Context, listID uuid.UUID, tierNames []string) ([]uuid.UUID, error) {
	if len(tierNames) > MaxTiers {
		return nil, apperror.ErrValidation.WithMessagef("a list supports at most %d tiers, got %d", MaxTiers, len(tierNames))
	}
	seen := make(map[string]struct{}, len(tierNames))
	for _, name := range tierNames {
		if name == "" {
			return nil, apperror.ErrValidation.WithMessage("tier names must not be empty")
		}
		if _, dup := seen[name]; dup {
			return nil, apperror.ErrValidation.WithMessagef("duplicate tier name %q", name)
		}
		seen[name] = struct{}{}
	}

	ids := make([]uuid.UUID, 0, len(tierNames))
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx graphstore.Store) error {
		parent, err := tx.GetNode(ctx, listID)
		if err != nil {
			return err
		}
		if parent.Label != ListLabel {
			return apperror.ErrValidation.WithMessagef("entity %s is not a List", listID)
		}

		existing, err := tx.MatchEdges(ctx, graphstore.EdgePattern{
			TypePrefix: TierEdgePrefix,
			SrcID:      &parent.ID,
		})
		if err != nil {
			return err
		}
		byTier := make(map[int]*graphstore.Edge, len(existing))
		for _, e := range existing {
			if n, ok := TierFromEdgeType(e.Type); ok {
				byTier[n] = e
			}
		}

		tornDown := false
		for i, name := range tierNames {
			tier := i + 1
			child, err := tx.UpsertNode(ctx, ListLabel, tierListKey(parent.Key, name), name, map[string]any{
				PropTier:     tier,
				PropParent:   parent.Name,
				PropListType: TypeSingle,
			})
			if err != nil {
				return err
			}
			ids = append(ids, child.ID)

			if old, ok := byTier[tier]; ok {
				delete(byTier, tier)
				if old.DstID == child.ID {
					continue
				}
				// Tier renamed: the old child list is gone from the
				// structure, tear it down like a removed tier.
				if err := tx.DeleteEdge(ctx, old.ID); err != nil {
					return err
				}
				if err := s.removeTierList(ctx, tx, parent, old.DstID, tier); err != nil {
					return err
				}
				tornDown = true
			}
			if _, err := tx.CreateEdge(ctx, TierEdgeType(tier), parent.ID, child.ID, nil); err != nil &&
				!errors.Is(err, apperror.ErrDuplicate) {
				return err
			}
		}

		// Shallower tiers first so cascade deletes orphan the deeper ones
		// before their own pass.
		removed := make([]int, 0, len(byTier))
		for tier := range byTier {
			removed = append(removed, tier)
		}
		sort.Ints(removed)
		for _, tier := range removed {
			e := byTier[tier]
			if err := tx.DeleteEdge(ctx, e.ID); err != nil {
				return err
			}
			if err := s.removeTierList(ctx, tx, parent, e.DstID, tier); err != nil {
				return err
			}
			tornDown = true
		}

		if tornDown {
			// A teardown strips the chain edges into the next tier's kept
			// values too. Sweep the kept deeper tiers shallow to deep so an
			// orphaned value's own cascade is seen by the tier below it.
			for i := 1; i < len(ids); i++ {
				if err := s.pruneOrphanValues(ctx, tx, parent, ids[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("set tier structure",
		slog.String("list_id", listID.String()),
		slog.Int("tiers", len(tierNames)))
	return ids, nil
}

// removeTierList tears down one tier: drops its chain-edge type, deletes its
// values that keep no inbound chain edge, then the tier list node itself.
func (s *Service) removeTierList(ctx context.Context, tx graphstore.Store, parent *graphstore.Node, childID uuid.UUID, tier int) error {
	if _, err := tx.DeleteEdges(ctx, graphstore.EdgePattern{Type: ChainEdgeType(parent.Name, tier)}); err != nil {
		return err
	}

	if err := s.pruneOrphanValues(ctx, tx, parent, childID); err != nil {
		return err
	}
	return tx.DeleteNode(ctx, childID)
}

// pruneOrphanValues deletes the tier list's member values that keep no
// inbound chain edge. Tier-1 lists never qualify; their values have no
// inbound chain edges while they are still part of the structure, so callers
// only pass tier lists at depth 2 and below, or lists already torn out.
func (s *Service) pruneOrphanValues(ctx context.Context, tx graphstore.Store, parent *graphstore.Node, tierListID uuid.UUID) error {
	members, err := tx.MatchEdges(ctx, graphstore.EdgePattern{
		Type:  MembershipEdgeType,
		DstID: &tierListID,
	})
	if err != nil {
		return err
	}
	for _, m := range members {
		valueID := m.SrcID
		inbound, err := tx.MatchEdges(ctx, graphstore.EdgePattern{
			TypePrefix: ChainEdgePrefix(parent.Name),
			DstID:      &valueID,
		})
		if err != nil {
			return err
		}
		if len(inbound) == 0 {
			if err := tx.DeleteNode(ctx, valueID); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetTierValues merges value chains into the list's tier structure. Each key
// of valuesByTier1 is a tier-1 value; each inner slice under it is one chain
// of values for tiers 2..n, linked value-to-value by the list's chain-edge
// types. A chain entry whose parent value cannot be verified fails that
// tier-1 entry instead of writing a disconnected node. Entries fail
// independently; the call always completes and reports per-entry failures.
func (s *Service) SetTierValues(ctx context.Context, listID uuid.UUID, tierListIDs []uuid.UUID, valuesByTier1 map[string][][]string) (int, error) {
	if len(tierListIDs) == 0 {
		return 0, apperror.ErrValidation.WithMessage("list has no tier structure")
	}

	parent, err := s.store.GetNode(ctx, listID)
	if err != nil {
		return 0, err
	}
	if parent.Label != ListLabel {
		return 0, apperror.ErrValidation.WithMessagef("entity %s is not a List", listID)
	}
	tiers := make([]*graphstore.Node, len(tierListIDs))
	for i, id := range tierListIDs {
		tl, err := s.store.GetNode(ctx, id)
		if err != nil {
			return 0, err
		}
		if tl.Label != ListLabel {
			return 0, apperror.ErrValidation.WithMessagef("entity %s is not a List", id)
		}
		tiers[i] = tl
	}

	topValues := make([]string, 0, len(valuesByTier1))
	for v := range valuesByTier1 {
		topValues = append(topValues, v)
	}
	sort.Strings(topValues)

	created := 0
	var items []apperror.ItemError
	for _, top := range topValues {
		n, err := s.setValueChains(ctx, parent, tiers, top, valuesByTier1[top])
		created += n
		if err != nil {
			items = append(items, apperror.ItemError{ItemID: top, Cause: err.Error()})
		}
	}

	metrics.TierValuesCreated.Add(float64(created))
	s.log.Info("set tier values",
		slog.String("list_id", listID.String()),
		slog.Int("created", created),
		slog.Int("failed", len(items)))

	if len(items) > 0 {
		return created, apperror.Partial(items)
	}
	return created, nil
}

// setValueChains writes one tier-1 value and its chains in a single
// transaction, so a failed chain never leaves a partial path behind.
func (s *Service) setValueChains(ctx context.Context, parent *graphstore.Node, tiers []*graphstore.Node, top string, chains [][]string) (int, error) {
	if top == "" {
		return 0, apperror.ErrValidation.WithMessage("tier-1 value must not be empty")
	}

	created := 0
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx graphstore.Store) error {
		topID, n, err := s.mergeValue(ctx, tx, tiers[0], 1, top)
		if err != nil {
			return err
		}
		created += n

		for _, chain := range chains {
			if len(chain) > len(tiers)-1 {
				return apperror.ErrValidation.WithMessagef("chain under %q is %d values deep but the list has %d tiers", top, len(chain), len(tiers))
			}
			prevID, prevValue := topID, top
			for j, value := range chain {
				tier := j + 2
				if value == "" {
					return apperror.ErrValidation.WithMessagef("empty value at tier %d under %q", tier, top)
				}
				// The parent value must already be in the graph before a
				// deeper value can hang off it.
				if _, err := tx.GetNode(ctx, prevID); err != nil {
					if errors.Is(err, apperror.ErrNotFound) {
						return apperror.ErrNotFound.WithMessagef("tier %d value %q is missing its tier %d parent %q", tier, value, tier-1, prevValue)
					}
					return err
				}

				id, n, err := s.mergeValue(ctx, tx, tiers[tier-1], tier, value)
				if err != nil {
					return err
				}
				created += n
				if _, err := tx.CreateEdge(ctx, ChainEdgeType(parent.Name, tier), prevID, id, nil); err != nil &&
					!errors.Is(err, apperror.ErrDuplicate) {
					return err
				}
				prevID, prevValue = id, value
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// mergeValue upserts a value node on its tier list and its membership edge,
// reporting whether the node is new.
func (s *Service) mergeValue(ctx context.Context, tx graphstore.Store, tierList *graphstore.Node, tier int, value string) (uuid.UUID, int, error) {
	key := valueKey(tierList.Key, value)
	created := 0
	if _, err := tx.FindNode(ctx, ValueLabel, key); errors.Is(err, apperror.ErrNotFound) {
		created = 1
	} else if err != nil {
		return uuid.Nil, 0, err
	}

	node, err := tx.UpsertNode(ctx, ValueLabel, key, value, map[string]any{
		PropValue:    value,
		PropTier:     tier,
		PropListName: tierList.Name,
	})
	if err != nil {
		return uuid.Nil, 0, err
	}
	if _, err := tx.CreateEdge(ctx, MembershipEdgeType, node.ID, tierList.ID, nil); err != nil &&
		!errors.Is(err, apperror.ErrDuplicate) {
		return uuid.Nil, 0, err
	}
	return node.ID, created, nil
}

// CascadeToChildren pushes the parent list's driver selector and shared
// metadata down to every child tier list. Child tier lists never carry an
// independent driver identity.
func (s *Service) CascadeToChildren(ctx context.Context, listID uuid.UUID) (int, error) {
	parent, err := s.store.GetNode(ctx, listID)
	if err != nil {
		return 0, err
	}
	if parent.Label != ListLabel {
		return 0, apperror.ErrValidation.WithMessagef("entity %s is not a List", listID)
	}

	selector := parent.PropString(drivers.SelectorProp)
	meta := make(map[string]any)
	for _, k := range []string{PropSet, PropGrouping} {
		if v, ok := parent.Properties[k]; ok {
			meta[k] = v
		}
	}

	edges, err := s.store.MatchEdges(ctx, graphstore.EdgePattern{
		TypePrefix: TierEdgePrefix,
		SrcID:      &parent.ID,
	})
	if err != nil {
		return 0, err
	}

	updated := 0
	var items []apperror.ItemError
	for _, e := range edges {
		if _, ok := TierFromEdgeType(e.Type); !ok {
			continue
		}
		if selector != "" {
			if _, err := s.drivers.ReconcileDriverEdges(ctx, e.DstID, drivers.KindList, selector, drivers.PolicyUpsert); err != nil {
				items = append(items, apperror.ItemError{ItemID: e.DstID.String(), Cause: err.Error()})
				continue
			}
		}
		if len(meta) > 0 {
			if err := s.store.UpdateNodeProps(ctx, e.DstID, meta); err != nil {
				items = append(items, apperror.ItemError{ItemID: e.DstID.String(), Cause: err.Error()})
				continue
			}
		}
		updated++
	}

	s.log.Info("cascaded list drivers to children",
		slog.String("list_id", listID.String()),
		slog.Int("updated", updated),
		slog.Int("failed", len(items)))

	if len(items) > 0 {
		return updated, apperror.Partial(items)
	}
	return updated, nil
}

// SetListType switches a list between Single and Multi-Level. Dropping to
// Single tears down the whole tier structure, chain edges included, while
// values attached directly to the list itself stay put.
func (s *Service) SetListType(ctx context.Context, listID uuid.UUID, listType string) error {
	switch listType {
	case TypeSingle, TypeMultiLevel:
	default:
		return apperror.ErrValidation.WithMessagef("unknown list type %q", listType)
	}

	return s.store.RunInTx(ctx, func(ctx context.Context, tx graphstore.Store) error {
		parent, err := tx.GetNode(ctx, listID)
		if err != nil {
			return err
		}
		if parent.Label != ListLabel {
			return apperror.ErrValidation.WithMessagef("entity %s is not a List", listID)
		}

		if listType == TypeSingle && parent.PropString(PropListType) == TypeMultiLevel {
			edges, err := tx.MatchEdges(ctx, graphstore.EdgePattern{
				TypePrefix: TierEdgePrefix,
				SrcID:      &parent.ID,
			})
			if err != nil {
				return err
			}
			tiers := make(map[int]*graphstore.Edge, len(edges))
			order := make([]int, 0, len(edges))
			for _, e := range edges {
				if n, ok := TierFromEdgeType(e.Type); ok {
					tiers[n] = e
					order = append(order, n)
				}
			}
			sort.Ints(order)
			for _, tier := range order {
				e := tiers[tier]
				if err := tx.DeleteEdge(ctx, e.ID); err != nil {
					return err
				}
				if err := s.removeTierList(ctx, tx, parent, e.DstID, tier); err != nil {
					return err
				}
			}
		}

		return tx.UpdateNodeProps(ctx, parent.ID, map[string]any{PropListType: listType})
	})
}
