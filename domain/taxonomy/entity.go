package taxonomy

import (
	"sort"

	"github.com/google/uuid"

	"github.com/modelcurator/metagraph/pkg/apperror"
)

const (
	GroupLabel    = "Group"
	PartLabel     = "Part"
	VariableLabel = "Variable"

	// HasGroupEdgeType links a Part to a Group it claims. At most one Part
	// may hold this edge to any given Group.
	HasGroupEdgeType = "HAS_GROUP"

	// HasVariableEdgeType links a Part or Group to a Variable under it.
	HasVariableEdgeType = "HAS_VARIABLE"
)

// FlagInvariantViolation marks a repair that had to fall back to the name
// tie-break with no variable counts to go on.
const FlagInvariantViolation = "invariant_violation"

// Candidate is one Part contending for ownership of a Group, with the number
// of Variables reachable through its path to the Group.
type Candidate struct {
	PartID        uuid.UUID `json:"part_id"`
	PartName      string    `json:"part_name"`
	VariableCount int       `json:"variable_count"`
}

// ChooseOwner picks the winning Part: highest variable count, ties broken by
// part name ascending. The function is pure; it never touches the store.
func ChooseOwner(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, apperror.ErrValidation.WithMessage("no candidate parts")
	}
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].VariableCount != ranked[j].VariableCount {
			return ranked[i].VariableCount > ranked[j].VariableCount
		}
		return ranked[i].PartName < ranked[j].PartName
	})
	return ranked[0], nil
}
