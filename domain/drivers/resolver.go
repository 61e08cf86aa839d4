package drivers

import (
	"context"
	"errors"

	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/pkg/apperror"
)

// ResolvePolicy controls what happens when a selector names a driver value
// with no corresponding node.
type ResolvePolicy int

const (
	// PolicyUpsert creates missing driver nodes by name. Entity create and
	// update paths use this.
	PolicyUpsert ResolvePolicy = iota

	// PolicyRequireExisting reports missing values instead of creating them.
	// Repair sweeps use this so a typo never mints a new driver node.
	PolicyRequireExisting
)

// ResolveExpected computes the exact set of driver nodes the field demands
// for one category. The wildcard resolves against the universe as it exists
// right now, a snapshot rather than a live view; nodes added afterward are not
// picked up until the next reconcile. Under PolicyRequireExisting, names with
// no node are returned in missing rather than created.
func ResolveExpected(ctx context.Context, store graphstore.Store, cat Category, f Field, policy ResolvePolicy) (nodes []*graphstore.Node, missing []string, err error) {
	if f.All {
		nodes, err = store.MatchNodes(ctx, graphstore.NodeFilter{
			Label: cat.Label(),
			// Legacy writers materialized the sentinel; never expand to it.
			ExcludeNames: []string{graphstore.WildcardSentinel},
		})
		if err != nil {
			return nil, nil, err
		}
		return nodes, nil, nil
	}

	for _, name := range f.Values {
		switch policy {
		case PolicyUpsert:
			node, err := store.UpsertNode(ctx, cat.Label(), name, name, nil)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, node)
		case PolicyRequireExisting:
			node, err := store.FindNode(ctx, cat.Label(), name)
			if errors.Is(err, apperror.ErrNotFound) {
				missing = append(missing, name)
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, node)
		}
	}
	return nodes, missing, nil
}
