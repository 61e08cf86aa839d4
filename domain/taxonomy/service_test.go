package taxonomy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/internal/testutil"
)

func newService(t *testing.T, store *graphstore.MemoryStore) *Service {
	t.Helper()
	return NewService(store, testutil.NewLogger(t), testutil.NewConfig(t))
}

func link(t *testing.T, store graphstore.Store, typ string, src, dst uuid.UUID) {
	t.Helper()
	_, err := store.CreateEdge(t.Context(), typ, src, dst, nil)
	require.NoError(t, err)
}

func TestChooseOwner(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		want       string
	}{
		{
			name: "highest count wins",
			candidates: []Candidate{
				{PartName: "Y", VariableCount: 1},
				{PartName: "X", VariableCount: 3},
			},
			want: "X",
		},
		{
			name: "tie broken by name ascending",
			candidates: []Candidate{
				{PartName: "Zeta", VariableCount: 2},
				{PartName: "Alpha", VariableCount: 2},
			},
			want: "Alpha",
		},
		{
			name: "all zero still resolves by name",
			candidates: []Candidate{
				{PartName: "B"},
				{PartName: "A"},
			},
			want: "A",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChooseOwner(tt.candidates)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.PartName)
		})
	}

	_, err := ChooseOwner(nil)
	assert.Error(t, err)
}

func TestAuditGroupPartExclusivity_MajorityWins(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	group := testutil.SeedNode(t, store, GroupLabel, "G")
	partX := testutil.SeedNode(t, store, PartLabel, "X")
	partY := testutil.SeedNode(t, store, PartLabel, "Y")

	link(t, store, HasGroupEdgeType, partX.ID, group.ID)
	link(t, store, HasGroupEdgeType, partY.ID, group.ID)

	// X reaches three of the group's variables, Y one.
	for _, name := range []string{"v1", "v2", "v3", "v4"} {
		v := testutil.SeedNode(t, store, VariableLabel, name)
		link(t, store, HasVariableEdgeType, group.ID, v.ID)
		if name == "v4" {
			link(t, store, HasVariableEdgeType, partY.ID, v.ID)
		} else {
			link(t, store, HasVariableEdgeType, partX.ID, v.ID)
		}
	}

	report, err := svc.AuditGroupPartExclusivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, 1, report.Removed)
	require.Len(t, report.Groups, 1)

	repair := report.Groups[0]
	assert.Equal(t, "X", repair.ChosenPart)
	assert.Equal(t, []string{"Y"}, repair.RemovedParts)
	assert.Equal(t, map[string]int{"X": 3, "Y": 1}, repair.Counts)
	assert.Empty(t, repair.Flag)

	claims, err := store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:  HasGroupEdgeType,
		DstID: &group.ID,
	})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, partX.ID, claims[0].SrcID)

	// Variables are untouched: severing the claim moves nothing.
	yVars, err := store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:  HasVariableEdgeType,
		SrcID: &partY.ID,
	})
	require.NoError(t, err)
	assert.Len(t, yVars, 1)
}

func TestAuditGroupPartExclusivity_ExclusiveGroupsUntouched(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	group := testutil.SeedNode(t, store, GroupLabel, "G")
	part := testutil.SeedNode(t, store, PartLabel, "X")
	link(t, store, HasGroupEdgeType, part.ID, group.ID)

	report, err := svc.AuditGroupPartExclusivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 0, report.Repaired)
	assert.Empty(t, report.Groups)
}

func TestAuditGroupPartExclusivity_ZeroSignalFlagged(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	group := testutil.SeedNode(t, store, GroupLabel, "G")
	partA := testutil.SeedNode(t, store, PartLabel, "A")
	partB := testutil.SeedNode(t, store, PartLabel, "B")
	link(t, store, HasGroupEdgeType, partA.ID, group.ID)
	link(t, store, HasGroupEdgeType, partB.ID, group.ID)

	report, err := svc.AuditGroupPartExclusivity(ctx)
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)

	repair := report.Groups[0]
	assert.Equal(t, "A", repair.ChosenPart, "zero tie falls back to name order")
	assert.Equal(t, FlagInvariantViolation, repair.Flag)
	assert.Equal(t, []string{"B"}, repair.RemovedParts)
}

func TestAuditGroupPartExclusivity_Paging(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	// More groups than one page; two of them conflicted.
	for i := 0; i < 25; i++ {
		testutil.SeedNode(t, store, GroupLabel, groupName(i))
	}
	partA := testutil.SeedNode(t, store, PartLabel, "A")
	partB := testutil.SeedNode(t, store, PartLabel, "B")
	for _, name := range []string{groupName(3), groupName(17)} {
		g, err := store.FindNode(ctx, GroupLabel, name)
		require.NoError(t, err)
		link(t, store, HasGroupEdgeType, partA.ID, g.ID)
		link(t, store, HasGroupEdgeType, partB.ID, g.ID)
	}

	report, err := svc.AuditGroupPartExclusivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, report.Checked)
	assert.Equal(t, 2, report.Repaired)
	assert.Equal(t, 2, report.Removed)
}

func groupName(i int) string {
	return string(rune('a'+i/10)) + string(rune('0'+i%10))
}
