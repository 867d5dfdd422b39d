package neomap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeInstanceFirstRegisteredLabelWins(t *testing.T) {
	f := entityFactory{meta: newTestMeta(t)}

	entity, info, err := f.nodeInstance(&NodeRecord{
		ID:     1,
		Labels: []string{"Ghost", "Actor"},
	})
	require.NoError(t, err)
	require.IsType(t, &actor{}, entity)
	assert.Equal(t, "actor", info.Name())
}

func TestNodeInstanceUnregisteredLabels(t *testing.T) {
	f := entityFactory{meta: newTestMeta(t)}

	_, _, err := f.nodeInstance(&NodeRecord{ID: 1, Labels: []string{"Ghost", "Phantom"}})
	require.Error(t, err)

	var unregistered *UnregisteredTypeError
	require.True(t, errors.As(err, &unregistered))
	assert.Equal(t, []string{"Ghost", "Phantom"}, unregistered.Labels)
}

func TestNodeInstanceReturnsFreshObjects(t *testing.T) {
	f := entityFactory{meta: newTestMeta(t)}
	record := &NodeRecord{ID: 1, Labels: []string{"Actor"}}

	first, _, err := f.nodeInstance(record)
	require.NoError(t, err)
	second, _, err := f.nodeInstance(record)
	require.NoError(t, err)

	// Deduplication is the mapping context's job, not the factory's.
	assert.NotSame(t, first, second)
}

func TestRelationshipInstance(t *testing.T) {
	f := entityFactory{meta: newTestMeta(t)}

	entity, info, err := f.relationshipInstance(&RelationshipRecord{
		ID:   10,
		Type: "ACTS_IN",
	})
	require.NoError(t, err)
	require.IsType(t, &role{}, entity)
	assert.True(t, info.IsRelationshipEntity())
}

func TestRelationshipInstancePlainType(t *testing.T) {
	f := entityFactory{meta: newTestMeta(t)}

	_, _, err := f.relationshipInstance(&RelationshipRecord{ID: 10, Type: "DIRECTED"})
	require.Error(t, err)

	var unregistered *UnregisteredTypeError
	assert.True(t, errors.As(err, &unregistered))
}
