package session

import (
	"testing"

	"github.com/duskproto/session/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTableAssignsMonotonicIds(t *testing.T) {
	table := NewClientTable()
	first := table.NextId()
	second := table.NextId()
	assert.Equal(t, wire.ClientId(1), first)
	assert.Equal(t, wire.ClientId(2), second)
}

func TestClientTableRejectsDuplicateSecret(t *testing.T) {
	table := NewClientTable()
	require.NoError(t, table.Add(NewClientRecord(wire.ClientId(1), 0xAAAA, 2048)))

	err := table.Add(NewClientRecord(wire.ClientId(2), 0xAAAA, 2048))
	assert.ErrorIs(t, err, ErrDuplicateSecret)
}

func TestClientTableOrderedIdsPreservesAdmissionOrder(t *testing.T) {
	table := NewClientTable()
	require.NoError(t, table.Add(NewClientRecord(wire.ClientId(3), 1, 2048)))
	require.NoError(t, table.Add(NewClientRecord(wire.ClientId(1), 2, 2048)))
	require.NoError(t, table.Add(NewClientRecord(wire.ClientId(2), 3, 2048)))

	assert.Equal(t, []wire.ClientId{3, 1, 2}, table.OrderedIds())
}

func TestClientTableRemove(t *testing.T) {
	table := NewClientTable()
	require.NoError(t, table.Add(NewClientRecord(wire.ClientId(1), 1, 2048)))
	table.Remove(wire.ClientId(1))

	_, ok := table.Get(wire.ClientId(1))
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.OrderedIds())
}
