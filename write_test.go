package neomap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idRef(v int64) *int64 { return &v }

func TestWriteContextStaging(t *testing.T) {
	wctx := NewWriteContext()
	first := &owner{Name: "Ada"}
	second := &pet{Name: "Rex"}

	wctx.RegisterNew("_0", first)
	wctx.RegisterNew("_1", second)
	// Restaging keeps the original variable.
	wctx.RegisterNew("_2", first)

	assert.Equal(t, []string{"_0", "_1"}, wctx.Variables())
	assert.Same(t, first, wctx.NewObject("_0"))
	assert.Nil(t, wctx.NewObject("_2"))

	variable, ok := wctx.VariableOf(first)
	require.True(t, ok)
	assert.Equal(t, "_0", variable)
	_, ok = wctx.VariableOf(&owner{})
	assert.False(t, ok)

	wctx.RegisterTransientRelationship(TransientRelationship{
		Start: VariableRef("_0"),
		Type:  "OWNS",
		End:   VariableRef("_1"),
	})
	require.Len(t, wctx.TransientLog(), 1)
	assert.Equal(t, "OWNS", wctx.TransientLog()[0].Type)
}

func TestCreateNodesAssignsIdentities(t *testing.T) {
	s, runner := newTestSession(t, eagerResult([]string{"_0", "_1"}, []any{int64(100), int64(101)}))
	ada := &owner{Name: "Ada"}
	rex := &pet{Name: "Rex"}

	require.NoError(t, s.CreateNodes(context.Background(), ada, rex))

	require.Len(t, runner.queries, 1)
	assert.Equal(t,
		"CREATE (_0:Owner $_0_props), (_1:Pet $_1_props) RETURN id(_0) AS _0, id(_1) AS _1",
		runner.queries[0])
	assert.Equal(t, map[string]any{"name": "Ada"}, runner.params[0]["_0_props"])
	assert.Equal(t, map[string]any{"name": "Rex"}, runner.params[0]["_1_props"])

	require.NotNil(t, ada.ID)
	assert.Equal(t, int64(100), *ada.ID)
	require.NotNil(t, rex.ID)
	assert.Equal(t, int64(101), *rex.ID)

	// Created entities join the session registry.
	assert.Same(t, ada, s.Context().NodeEntity(100))
	assert.Same(t, rex, s.Context().NodeEntity(101))
}

func TestCreateNodesSkipsPersistedEntities(t *testing.T) {
	s, runner := newTestSession(t, eagerResult([]string{"_0"}, []any{int64(100)}))
	saved := &owner{ID: idRef(5), Name: "Ada"}
	fresh := &pet{Name: "Rex"}

	require.NoError(t, s.CreateNodes(context.Background(), saved, fresh))

	require.Len(t, runner.queries, 1)
	assert.Equal(t, "CREATE (_0:Pet $_0_props) RETURN id(_0) AS _0", runner.queries[0])
	assert.Equal(t, int64(5), *saved.ID)
}

func TestCreateNodesNothingToDo(t *testing.T) {
	s, runner := newTestSession(t)

	require.NoError(t, s.CreateNodes(context.Background(), &owner{ID: idRef(5)}))
	assert.Empty(t, runner.queries)
}

func TestCreateNodesDedupesPointers(t *testing.T) {
	s, runner := newTestSession(t, eagerResult([]string{"_0"}, []any{int64(100)}))
	ada := &owner{Name: "Ada"}

	require.NoError(t, s.CreateNodes(context.Background(), ada, ada))
	assert.Equal(t, "CREATE (_0:Owner $_0_props) RETURN id(_0) AS _0", runner.queries[0])
}

func TestCreateNodesRejectsRelationshipEntity(t *testing.T) {
	s, _ := newTestSession(t)

	err := s.CreateNodes(context.Background(), &role{Character: "Neo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use Relate")
}

func TestCreateNodesRejectsUnregisteredType(t *testing.T) {
	s, _ := newTestSession(t)

	type stranger struct {
		ID *int64 `graph:"id"`
	}
	err := s.CreateNodes(context.Background(), &stranger{})
	require.Error(t, err)
}

func TestCreateNodesBadIdentityColumn(t *testing.T) {
	s, _ := newTestSession(t, eagerResult([]string{"_0"}, []any{"oops"}))

	err := s.CreateNodes(context.Background(), &owner{Name: "Ada"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an identity")
}

func TestRelateCreatesRelationship(t *testing.T) {
	s, runner := newTestSession(t, eagerResult([]string{"r"}, []any{int64(55)}))
	ada := &owner{ID: idRef(1), Name: "Ada"}
	rex := &pet{ID: idRef(2), Name: "Rex"}

	relID, err := s.Relate(context.Background(), ada, rex, "OWNS", map[string]any{"since": int64(2020)})
	require.NoError(t, err)
	assert.Equal(t, int64(55), relID)

	require.Len(t, runner.queries, 1)
	assert.Equal(t,
		"MATCH (a), (b) WHERE id(a) = $from AND id(b) = $to CREATE (a)-[r:OWNS $props]->(b) RETURN id(r) AS r",
		runner.queries[0])
	assert.Equal(t, int64(1), runner.params[0]["from"])
	assert.Equal(t, int64(2), runner.params[0]["to"])
	assert.Equal(t, map[string]any{"since": int64(2020)}, runner.params[0]["props"])

	// The triple is recorded so a later hydration does not reprocess it, but
	// the relationship keeps no identity of its own: nothing maps OWNS as an
	// entity.
	assert.True(t, s.Context().HasRelationship(1, "OWNS", 2))
	rels := s.Context().MappedRelationships()
	require.Len(t, rels, 1)
	assert.Nil(t, rels[0].RelationshipID)
}

func TestRelateKeepsIdentityForRelationshipEntities(t *testing.T) {
	s, _ := newTestSession(t, eagerResult([]string{"r"}, []any{int64(55)}))
	keanu := &actor{ID: idRef(1)}
	matrix := &movie{ID: idRef(2)}
	s.Context().RegisterRelationshipEntity(55, &role{ID: idRef(55), Character: "Neo"})

	_, err := s.Relate(context.Background(), keanu, matrix, "ACTS_IN", nil)
	require.NoError(t, err)

	rels := s.Context().MappedRelationships()
	require.Len(t, rels, 1)
	require.NotNil(t, rels[0].RelationshipID)
	assert.Equal(t, int64(55), *rels[0].RelationshipID)
}

func TestRelateRequiresPersistedEndpoints(t *testing.T) {
	s, _ := newTestSession(t)
	saved := &owner{ID: idRef(1)}

	_, err := s.Relate(context.Background(), saved, &pet{}, "OWNS", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no graph identity")

	_, err = s.Relate(context.Background(), &owner{}, &pet{ID: idRef(2)}, "OWNS", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no graph identity")
}

func TestRelateNoMatchingNodes(t *testing.T) {
	// The runner yields an empty result, as Neo4j does when MATCH finds
	// neither endpoint.
	s, _ := newTestSession(t)

	_, err := s.Relate(context.Background(), &owner{ID: idRef(1)}, &pet{ID: idRef(2)}, "OWNS", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matched no nodes")
}

func TestDeleteNode(t *testing.T) {
	s, runner := newTestSession(t)
	ada := &owner{ID: idRef(5), Name: "Ada"}
	s.Context().RegisterNodeEntity(5, ada)
	s.Context().RegisterRelationship(MappedRelationship{StartNodeID: 5, Type: "OWNS", EndNodeID: 9})

	require.NoError(t, s.Delete(context.Background(), ada))

	require.Len(t, runner.queries, 1)
	assert.Equal(t, "MATCH (n) WHERE id(n) = $id DETACH DELETE n", runner.queries[0])
	assert.Equal(t, map[string]any{"id": int64(5)}, runner.params[0])

	// The session forgets the node and every relationship touching it.
	assert.Nil(t, s.Context().NodeEntity(5))
	assert.False(t, s.Context().HasRelationship(5, "OWNS", 9))
}

func TestDeleteRelationshipEntity(t *testing.T) {
	s, runner := newTestSession(t)
	neo := &role{ID: idRef(10), Character: "Neo"}
	s.Context().RegisterRelationshipEntity(10, neo)

	require.NoError(t, s.Delete(context.Background(), neo))

	assert.Equal(t, "MATCH ()-[r]->() WHERE id(r) = $id DELETE r", runner.queries[0])
	assert.Equal(t, map[string]any{"id": int64(10)}, runner.params[0])
	assert.Nil(t, s.Context().RelationshipEntity(10))
}

func TestDeleteRequiresIdentity(t *testing.T) {
	s, _ := newTestSession(t)

	err := s.Delete(context.Background(), &owner{Name: "Ada"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no graph identity")
}

func TestReconcileRowsBackfillsIdentities(t *testing.T) {
	s, _ := newTestSession(t)
	wctx := NewWriteContext()
	first := &actor{Name: "Keanu Reeves"}
	second := &actor{Name: "Carrie-Anne Moss"}
	third := &movie{Title: "The Matrix"}
	wctx.RegisterNew("a", first)
	wctx.RegisterNew("b", second)
	wctx.RegisterNew("c", third)

	refs, err := s.reconcileRows(wctx, []string{"a", "b", "c"}, [][]any{
		{int64(100), int64(101), int64(102)},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 100, "b": 101, "c": 102}, refs)

	require.NotNil(t, first.ID)
	assert.Equal(t, int64(100), *first.ID)
	require.NotNil(t, second.ID)
	assert.Equal(t, int64(101), *second.ID)
	require.NotNil(t, third.ID)
	assert.Equal(t, int64(102), *third.ID)

	assert.Same(t, first, s.Context().NodeEntity(100))
	assert.Same(t, second, s.Context().NodeEntity(101))
	assert.Same(t, third, s.Context().NodeEntity(102))
}
