package relationships

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/internal/testutil"
	"github.com/modelcurator/metagraph/pkg/apperror"
)

func newService(t *testing.T, store *graphstore.MemoryStore) *Service {
	t.Helper()
	return NewService(store, testutil.NewLogger(t), testutil.NewConfig(t))
}

func allRelationshipEdges(t *testing.T, store graphstore.Store) []*graphstore.Edge {
	t.Helper()
	edges, err := store.MatchEdges(context.Background(), graphstore.EdgePattern{Type: EdgeType})
	require.NoError(t, err)
	return edges
}

func TestEnsureAllPairsRelationships_Invariant(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	names := []string{"Account", "Customer", "Order"}
	nodes := make([]*graphstore.Node, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, testutil.SeedNode(t, store, ObjectLabel, name))
	}

	// Run enforcement in creation order, as the CRUD layer would.
	for _, node := range nodes {
		report, err := svc.EnsureAllPairsRelationships(ctx, node.ID, node.Name)
		require.NoError(t, err)
		assert.Empty(t, report.Errors)
	}

	edges := allRelationshipEdges(t, store)
	assert.Len(t, edges, 9, "N objects must yield N^2 default edges")

	intra := 0
	byID := map[uuid.UUID]*graphstore.Node{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, e := range edges {
		src := byID[e.SrcID]
		require.NotNil(t, src)
		assert.Equal(t, src.Name, e.Role(), "default edge role is the source's name")
		assert.Equal(t, DefaultFrequency, e.PropString(PropFrequency))
		if e.SrcID == e.DstID {
			intra++
			assert.Equal(t, KindIntraTable, e.PropString(PropKind))
		} else {
			assert.Equal(t, KindInterTable, e.PropString(PropKind))
		}
	}
	assert.Equal(t, 3, intra, "exactly one Intra-Table self edge per object")
}

func TestEnsureAllPairsRelationships_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	a := testutil.SeedNode(t, store, ObjectLabel, "A")
	b := testutil.SeedNode(t, store, ObjectLabel, "B")

	for _, n := range []*graphstore.Node{a, b} {
		_, err := svc.EnsureAllPairsRelationships(ctx, n.ID, n.Name)
		require.NoError(t, err)
	}

	report, err := svc.EnsureAllPairsRelationships(ctx, a.ID, a.Name)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Len(t, allRelationshipEdges(t, store), 4)
}

func TestEnsureAllPairsRelationships_NotAnObject(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	list := testutil.SeedNode(t, store, "List", "Regions")

	_, err := svc.EnsureAllPairsRelationships(ctx, list.ID, list.Name)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestAuditAllPairsRelationships_CreatesMissing(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	testutil.SeedNode(t, store, ObjectLabel, "A")
	testutil.SeedNode(t, store, ObjectLabel, "B")

	report, err := svc.AuditAllPairsRelationships(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Created)
	assert.Empty(t, report.Errors)

	// Second audit finds nothing to do.
	report, err = svc.AuditAllPairsRelationships(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created+report.Normalized+report.Removed)
}

func TestAuditAllPairsRelationships_NormalizesProperties(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	a := testutil.SeedNode(t, store, ObjectLabel, "A")
	b := testutil.SeedNode(t, store, ObjectLabel, "B")

	// A default-role edge written with the wrong kind and frequency.
	_, err := store.CreateEdge(ctx, EdgeType, a.ID, b.ID, map[string]any{
		PropRole:       "A",
		PropKind:       KindBlood,
		PropFrequency:  "Critical",
		PropTargetName: "B",
	})
	require.NoError(t, err)

	report, err := svc.AuditAllPairsRelationships(ctx, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Normalized)

	edges, err := store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:       EdgeType,
		SrcID:      &a.ID,
		DstID:      &b.ID,
		PropEquals: map[string]string{PropRole: "A"},
	})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, KindInterTable, edges[0].PropString(PropKind))
	assert.Equal(t, DefaultFrequency, edges[0].PropString(PropFrequency))
}

func TestAuditAllPairsRelationships_RemovesLegacyDuplicates(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	a := testutil.SeedNode(t, store, ObjectLabel, "A")
	b := testutil.SeedNode(t, store, ObjectLabel, "B")

	// Two copies of the same default edge, as written by stores predating
	// the uniqueness index.
	for i := 0; i < 2; i++ {
		store.LoadEdge(&graphstore.Edge{
			Type:  EdgeType,
			SrcID: a.ID,
			DstID: b.ID,
			Properties: map[string]any{
				PropRole:       "A",
				PropKind:       KindInterTable,
				PropFrequency:  DefaultFrequency,
				PropTargetName: "B",
			},
		})
	}

	report, err := svc.AuditAllPairsRelationships(ctx, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)

	edges, err := store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:       EdgeType,
		SrcID:      &a.ID,
		DstID:      &b.ID,
		PropEquals: map[string]string{PropRole: "A"},
	})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestAuditAllPairsRelationships_LeavesUserRolesAlone(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	a := testutil.SeedNode(t, store, ObjectLabel, "A")
	b := testutil.SeedNode(t, store, ObjectLabel, "B")

	_, err := svc.CreateRelationship(ctx, a.ID, b.ID, "references", KindBlood, "Critical")
	require.NoError(t, err)

	_, err = svc.AuditAllPairsRelationships(ctx, nil)
	require.NoError(t, err)

	edges, err := store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:       EdgeType,
		PropEquals: map[string]string{PropRole: "references"},
	})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, KindBlood, edges[0].PropString(PropKind))
	assert.Equal(t, "Critical", edges[0].PropString(PropFrequency))
}

func TestRetypeEdgesToTarget_NeverTouchesDefaults(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	a := testutil.SeedNode(t, store, ObjectLabel, "A")
	b := testutil.SeedNode(t, store, ObjectLabel, "B")
	for _, n := range []*graphstore.Node{a, b} {
		_, err := svc.EnsureAllPairsRelationships(ctx, n.ID, n.Name)
		require.NoError(t, err)
	}

	_, err := svc.CreateRelationship(ctx, a.ID, b.ID, "foreign_key", KindInterTable, "Critical")
	require.NoError(t, err)

	updated, skipped, err := svc.RetypeEdgesToTarget(ctx, b.ID, KindBlood, "Critical")
	require.NoError(t, err)
	assert.Equal(t, 1, updated, "only the user-role edge is retyped")
	assert.Equal(t, 2, skipped, "defaults from A and from B's self edge are skipped")

	// The default edge A->B survives untouched even though its target
	// matched the update criteria.
	defaults, err := store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:       EdgeType,
		SrcID:      &a.ID,
		DstID:      &b.ID,
		PropEquals: map[string]string{PropRole: "A"},
	})
	require.NoError(t, err)
	require.Len(t, defaults, 1)
	assert.Equal(t, KindInterTable, defaults[0].PropString(PropKind))
	assert.Equal(t, DefaultFrequency, defaults[0].PropString(PropFrequency))
}

func TestCreateRelationship_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := newService(t, store)

	a := testutil.SeedNode(t, store, ObjectLabel, "A")
	b := testutil.SeedNode(t, store, ObjectLabel, "B")

	_, err := svc.CreateRelationship(ctx, a.ID, b.ID, "references", KindInterTable, "Possible")
	require.NoError(t, err)

	_, err = svc.CreateRelationship(ctx, a.ID, b.ID, "references", KindInterTable, "Possible")
	assert.True(t, errors.Is(err, apperror.ErrDuplicate))
}
