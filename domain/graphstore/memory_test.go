package graphstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelcurator/metagraph/pkg/apperror"
)

func TestMemoryStore_UpsertNode(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.UpsertNode(ctx, "Sector", "Tech", "Tech", nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	// Second upsert with the same identity returns the same node and merges
	// properties instead of creating a sibling.
	updated, err := store.UpsertNode(ctx, "Sector", "Tech", "Tech", map[string]any{"source": "import"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "import", updated.PropString("source"))

	nodes, err := store.MatchNodes(ctx, NodeFilter{Label: "Sector"})
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestMemoryStore_UpsertNode_RejectsWildcardSentinel(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.UpsertNode(ctx, "Sector", "ALL", "ALL", nil)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestMemoryStore_MatchNodes_Paging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, name := range []string{"Charlie", "Alpha", "Bravo", "Delta"} {
		_, err := store.UpsertNode(ctx, "Object", name, name, nil)
		require.NoError(t, err)
	}

	page, err := store.MatchNodes(ctx, NodeFilter{Label: "Object", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Bravo", page[0].Name)
	assert.Equal(t, "Charlie", page[1].Name)
}

func TestMemoryStore_CreateEdge_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, err := store.UpsertNode(ctx, "Object", "A", "A", nil)
	require.NoError(t, err)
	b, err := store.UpsertNode(ctx, "Object", "B", "B", nil)
	require.NoError(t, err)

	_, err = store.CreateEdge(ctx, "RELATES_TO", a.ID, b.ID, map[string]any{"role": "A"})
	require.NoError(t, err)

	// Same (type, src, dst, role) triple is a duplicate.
	_, err = store.CreateEdge(ctx, "RELATES_TO", a.ID, b.ID, map[string]any{"role": "A"})
	assert.True(t, errors.Is(err, apperror.ErrDuplicate))

	// A different role is a distinct edge.
	_, err = store.CreateEdge(ctx, "RELATES_TO", a.ID, b.ID, map[string]any{"role": "custom"})
	assert.NoError(t, err)
}

func TestMemoryStore_CreateEdge_MissingEndpoint(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, err := store.UpsertNode(ctx, "Object", "A", "A", nil)
	require.NoError(t, err)

	_, err = store.CreateEdge(ctx, "RELATES_TO", a.ID, uuid.New(), nil)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestMemoryStore_DeleteNode_CascadesEdges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _ := store.UpsertNode(ctx, "Object", "A", "A", nil)
	b, _ := store.UpsertNode(ctx, "Object", "B", "B", nil)
	_, err := store.CreateEdge(ctx, "RELATES_TO", a.ID, b.ID, nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteNode(ctx, b.ID))

	edges, err := store.MatchEdges(ctx, EdgePattern{Type: "RELATES_TO"})
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestMemoryStore_DeleteEdges_RefusesUnbounded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.DeleteEdges(ctx, EdgePattern{})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestMemoryStore_MatchEdges_PropEquals(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _ := store.UpsertNode(ctx, "Object", "A", "A", nil)
	b, _ := store.UpsertNode(ctx, "Object", "B", "B", nil)
	_, err := store.CreateEdge(ctx, "RELATES_TO", a.ID, b.ID, map[string]any{"role": "A", "kind": "Inter-Table"})
	require.NoError(t, err)
	_, err = store.CreateEdge(ctx, "RELATES_TO", a.ID, b.ID, map[string]any{"role": "other", "kind": "Blood"})
	require.NoError(t, err)

	edges, err := store.MatchEdges(ctx, EdgePattern{Type: "RELATES_TO", PropEquals: map[string]string{"role": "A"}})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "Inter-Table", edges[0].PropString("kind"))
}

func TestMemoryStore_RunInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.UpsertNode(ctx, "Object", "A", "A", nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.FindNode(ctx, "Object", "A")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "rollback must discard the upsert")
}

func TestMemoryStore_RunInTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		a, err := tx.UpsertNode(ctx, "Object", "A", "A", nil)
		if err != nil {
			return err
		}
		b, err := tx.UpsertNode(ctx, "Object", "B", "B", nil)
		if err != nil {
			return err
		}
		_, err = tx.CreateEdge(ctx, "RELATES_TO", a.ID, b.ID, nil)
		return err
	})
	require.NoError(t, err)

	edges, err := store.MatchEdges(ctx, EdgePattern{Type: "RELATES_TO"})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}
