package lists

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// ListLabel and ValueLabel are the graph labels of a list container and
	// a single list value.
	ListLabel  = "List"
	ValueLabel = "ListValue"

	// MaxTiers is the deepest nesting a tiered list supports.
	MaxTiers = 10

	// MembershipEdgeType links a value to the list it belongs to
	// (ListValue -> List).
	MembershipEdgeType = "IN_LIST"

	// TierEdgePrefix prefixes the structural List -> List edges
	// HAS_TIER_1..HAS_TIER_10.
	TierEdgePrefix = "HAS_TIER_"
)

// List types persisted on the container node.
const (
	TypeSingle     = "Single"
	TypeMultiLevel = "Multi-Level"
)

// Node property names.
const (
	PropTier     = "tier"
	PropValue    = "value"
	PropListName = "list"
	PropListType = "list_type"
	PropParent   = "parent_list"
	PropSet      = "set"
	PropGrouping = "grouping"
)

// TierEdgeType returns the structural edge type for tier n.
func TierEdgeType(n int) string {
	return fmt.Sprintf("%s%d", TierEdgePrefix, n)
}

// TierFromEdgeType extracts n from a HAS_TIER_n edge type. The second return
// is false for types outside HAS_TIER_1..HAS_TIER_10.
func TierFromEdgeType(typ string) (int, bool) {
	suffix, ok := strings.CutPrefix(typ, TierEdgePrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 || n > MaxTiers {
		return 0, false
	}
	return n, true
}

// ChainEdgeType returns the per-list value-chain edge type linking a tier n-1
// value to a tier n value, e.g. US_REGIONS_TIER_2 for list "US Regions".
func ChainEdgeType(listName string, tier int) string {
	return fmt.Sprintf("%s_TIER_%d", sanitizeListName(listName), tier)
}

// ChainEdgePrefix returns the prefix shared by every chain-edge type of a
// list, for prefix matching across tiers.
func ChainEdgePrefix(listName string) string {
	return sanitizeListName(listName) + "_TIER_"
}

// sanitizeListName folds a list name into an edge-type-safe token: uppercase,
// runs of anything outside [A-Z0-9] collapse to a single underscore.
func sanitizeListName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// tierListKey scopes a tier list to its parent so two parents can both have a
// "State" tier without colliding.
func tierListKey(parentKey, tierName string) string {
	return parentKey + ":" + tierName
}

// valueKey scopes a value to the list that holds it.
func valueKey(listKey, value string) string {
	return listKey + "=" + value
}
