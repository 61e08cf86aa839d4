package drivers

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

func driverEdges(t *testing.T, store graphstore.Store, cat Category, entityID uuid.UUID) []*graphstore.Edge {
	t.Helper()
	edges, err := store.MatchEdges(context.Background(), graphstore.EdgePattern{
		Type:  cat.EdgeType(),
		DstID: &entityID,
	})
	require.NoError(t, err)
	return edges
}

func TestReconcileDriverEdges_CreatesConcreteEdges(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	obj := testutil.SeedNode(t, store, "Object", "Customer")

	res, err := svc.ReconcileDriverEdges(ctx, obj.ID, KindObject, "Tech, Domain1, Country1, ClarifierX", PolicyUpsert)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)
	assert.Equal(t, 0, res.Deleted)

	assert.Len(t, driverEdges(t, store, CategorySector, obj.ID), 1)
	assert.Len(t, driverEdges(t, store, CategoryDomain, obj.ID), 1)
	assert.Len(t, driverEdges(t, store, CategoryCountry, obj.ID), 1)
	assert.Len(t, driverEdges(t, store, CategoryClarifier, obj.ID), 1)

	// Driver nodes were upserted by name.
	_, err = store.FindNode(ctx, "Sector", "Tech")
	assert.NoError(t, err)

	// The raw selector was persisted on the entity.
	node, err := store.GetNode(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tech, Domain1, Country1, ClarifierX", node.PropString(SelectorProp))
}

func TestReconcileDriverEdges_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	obj := testutil.SeedNode(t, store, "Object", "Customer")

	_, err := svc.ReconcileDriverEdges(ctx, obj.ID, KindObject, "Tech,Finance, Domain1, ALL, None", PolicyUpsert)
	require.NoError(t, err)

	// Second call with an unchanged selector performs zero writes.
	res, err := svc.ReconcileDriverEdges(ctx, obj.ID, KindObject, "Tech,Finance, Domain1, ALL, None", PolicyUpsert)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 0, res.Deleted)
}

func TestReconcileDriverEdges_WildcardSnapshotSemantics(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	for _, name := range []string{"A", "B", "C"} {
		testutil.SeedNode(t, store, "Sector", name)
	}
	obj := testutil.SeedNode(t, store, "Object", "Customer")

	res, err := svc.ReconcileDriverEdges(ctx, obj.ID, KindObject, "ALL, None, None, None", PolicyUpsert)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.Len(t, driverEdges(t, store, CategorySector, obj.ID), 3)

	// Adding a sector afterward does not retroactively link the entity; the
	// wildcard is a snapshot taken at reconcile time.
	testutil.SeedNode(t, store, "Sector", "D")
	assert.Len(t, driverEdges(t, store, CategorySector, obj.ID), 3)

	// The next reconcile picks it up.
	res, err = svc.ReconcileDriverEdges(ctx, obj.ID, KindObject, "ALL, None, None, None", PolicyUpsert)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Len(t, driverEdges(t, store, CategorySector, obj.ID), 4)
}

func TestReconcileDriverEdges_SelectorChangeAppliesMinimalDiff(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	obj := testutil.SeedNode(t, store, "Variable", "Revenue")

	_, err := svc.ReconcileDriverEdges(ctx, obj.ID, KindVariable, "Tech,Finance, Domain1, Country1, None", PolicyUpsert)
	require.NoError(t, err)

	// Finance -> Retail: one delete, one create in the sector category only.
	res, err := svc.ReconcileDriverEdges(ctx, obj.ID, KindVariable, "Tech,Retail, Domain1, Country1, None", PolicyUpsert)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Deleted)

	edges := driverEdges(t, store, CategorySector, obj.ID)
	names := map[string]bool{}
	for _, e := range edges {
		src, err := store.GetNode(ctx, e.SrcID)
		require.NoError(t, err)
		names[src.Name] = true
	}
	assert.Equal(t, map[string]bool{"Tech": true, "Retail": true}, names)
}

func TestReconcileDriverEdges_ParseFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	obj := testutil.SeedNode(t, store, "Object", "Customer")

	_, err := svc.ReconcileDriverEdges(ctx, obj.ID, KindObject, "   ", PolicyUpsert)
	assert.True(t, errors.Is(err, apperror.ErrParse))

	nodes, err := store.MatchNodes(ctx, graphstore.NodeFilter{Label: "Sector"})
	require.NoError(t, err)
	assert.Empty(t, nodes, "a parse failure must reject before any writes")
}

func TestReconcileDriverEdges_KindMismatch(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	obj := testutil.SeedNode(t, store, "List", "Regions")

	_, err := svc.ReconcileDriverEdges(ctx, obj.ID, KindObject, "Tech, Domain1, Country1, None", PolicyUpsert)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestReconcileDriverEdges_UnknownEntity(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	_, err := svc.ReconcileDriverEdges(ctx, uuid.New(), KindObject, "Tech, Domain1, Country1, None", PolicyUpsert)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestReconcileAll_BestEffort(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	a := testutil.SeedNode(t, store, "Object", "A")
	b := testutil.SeedNode(t, store, "Object", "B")

	res, err := svc.ReconcileAll(ctx, []ReconcileTarget{
		{EntityID: a.ID, Kind: KindObject, Selector: "Tech, Domain1, Country1, None"},
		{EntityID: uuid.New(), Kind: KindObject, Selector: "Tech, Domain1, Country1, None"},
		{EntityID: b.ID, Kind: KindObject, Selector: "Retail, Domain1, Country1, None"},
	}, PolicyUpsert)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 6, res.Created)
	require.Len(t, res.Errors, 1, "the missing entity is reported, not fatal")
	assert.Contains(t, res.Errors[0].Cause, "not_found")

	// The failure did not abort the batch: B got its edges.
	assert.Len(t, driverEdges(t, store, CategorySector, b.ID), 1)
}

func TestReconcileDriverEdges_RequireExistingReportsMissing(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	testutil.SeedNode(t, store, "Sector", "Tech")
	obj := testutil.SeedNode(t, store, "Object", "Customer")

	_, err := svc.ReconcileDriverEdges(ctx, obj.ID, KindObject, "Tech, Domain1, Country1, None", PolicyRequireExisting)
	require.True(t, errors.Is(err, apperror.ErrNotFound))

	// Nothing was written: no node minted for the unknown names, and not
	// even the resolvable sector edge landed.
	_, err = store.FindNode(ctx, "Domain", "Domain1")
	assert.Error(t, err)
	assert.Empty(t, driverEdges(t, store, CategorySector, obj.ID))

	node, err := store.GetNode(ctx, obj.ID)
	require.NoError(t, err)
	assert.Empty(t, node.PropString(SelectorProp), "a failed reconcile must not persist the selector")
}

func TestReconcileAll_RequireExisting(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	for _, seed := range []struct{ label, name string }{
		{"Sector", "Tech"}, {"Domain", "Domain1"}, {"Country", "Country1"},
	} {
		testutil.SeedNode(t, store, seed.label, seed.name)
	}
	a := testutil.SeedNode(t, store, "Object", "A")
	b := testutil.SeedNode(t, store, "Object", "B")

	res, err := svc.ReconcileAll(ctx, []ReconcileTarget{
		{EntityID: a.ID, Kind: KindObject, Selector: "Tech, Domain1, Country1, None"},
		{EntityID: b.ID, Kind: KindObject, Selector: "Tceh, Domain1, Country1, None"},
	}, PolicyRequireExisting)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 3, res.Created)
	require.Len(t, res.Errors, 1, "the typo entity is reported, not repaired by minting")
	assert.Equal(t, b.ID.String(), res.Errors[0].ItemID)
	assert.Contains(t, res.Errors[0].Cause, "Tceh")

	// The sweep never created a node for the typo.
	_, err = store.FindNode(ctx, "Sector", "Tceh")
	assert.Error(t, err)
	assert.Empty(t, driverEdges(t, store, CategorySector, b.ID))
}

func TestCleanupWildcardSentinels(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	svc := NewService(store, testutil.NewLogger(t))

	// Simulate a legacy literal-ALL node slipping in underneath the guard.
	testutil.SeedRawNode(t, store, "Sector", "ALL", "ALL")
	testutil.SeedNode(t, store, "Sector", "Tech")

	removed, err := svc.CleanupWildcardSentinels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	nodes, err := store.MatchNodes(ctx, graphstore.NodeFilter{Label: "Sector"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Tech", nodes[0].Name)
}

func TestResolveExpected_RequireExisting(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)

	testutil.SeedNode(t, store, "Country", "Country1")

	nodes, missing, err := ResolveExpected(ctx, store, CategoryCountry,
		Field{Values: []string{"Country1", "Atlantis"}}, PolicyRequireExisting)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Country1", nodes[0].Name)
	assert.Equal(t, []string{"Atlantis"}, missing)

	// No node was minted for the unknown name.
	_, err = store.FindNode(ctx, "Country", "Atlantis")
	assert.Error(t, err)
}
