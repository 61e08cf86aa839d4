package relationships

import (
	"github.com/modelcurator/metagraph/domain/graphstore"
)

// EdgeType is the object-to-object relationship edge type. Multiple edges may
// exist between the same ordered pair, distinguished by their role property;
// at most one edge per (source, target, role) triple.
const EdgeType = "RELATES_TO"

// Relationship kinds.
const (
	KindInterTable = "Inter-Table"
	KindIntraTable = "Intra-Table"
	KindBlood      = "Blood"
)

// DefaultFrequency is the frequency every default edge carries.
const DefaultFrequency = "Possible"

// Edge property names.
const (
	PropRole       = "role"
	PropKind       = "kind"
	PropFrequency  = "frequency"
	PropTargetName = "target_name"
)

// ObjectLabel is the node label relationships run between.
const ObjectLabel = "Object"

// defaultKind returns the kind the default edge between src and dst must
// carry: Intra-Table for self-pairs, Inter-Table otherwise.
func defaultKind(src, dst *graphstore.Node) string {
	if src.ID == dst.ID {
		return KindIntraTable
	}
	return KindInterTable
}

// defaultProps builds the property set of the default edge src -> dst. The
// role is always the source object's own name; that is what distinguishes the
// mandatory edge from user-created ones.
func defaultProps(src, dst *graphstore.Node) map[string]any {
	return map[string]any{
		PropRole:       src.Name,
		PropKind:       defaultKind(src, dst),
		PropFrequency:  DefaultFrequency,
		PropTargetName: dst.Name,
	}
}
