package spawn

import (
	"testing"

	"github.com/duskproto/session/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const typeTagWidget TypeTag = 2

func newTestRegistry(t *testing.T) *TypeRegistry {
	reg := NewTypeRegistry()
	require.NoError(t, reg.Register(typeTagWidget, func() interface{} { return "widget" }))
	return reg
}

func TestTypeRegistryRejectsReservedTag(t *testing.T) {
	reg := NewTypeRegistry()
	err := reg.Register(TypeTagNone, func() interface{} { return nil })
	assert.ErrorIs(t, err, ErrReservedTag)
}

func TestTypeRegistryRejectsDuplicateTag(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.Register(typeTagWidget, func() interface{} { return nil })
	assert.ErrorIs(t, err, ErrTagTaken)
}

func TestSpawnAllocatesMonotonicIds(t *testing.T) {
	reg := newTestRegistry(t)
	s := NewSpawner(reg, true)

	obj1, msg1, err := s.Spawn(typeTagWidget, wire.ClientId(1))
	require.NoError(t, err)
	obj2, msg2, err := s.Spawn(typeTagWidget, wire.ClientId(1))
	require.NoError(t, err)

	assert.Equal(t, wire.NetworkId(1), obj1.Id)
	assert.Equal(t, wire.NetworkId(2), obj2.Id)
	assert.Equal(t, msg1.Id, obj1.Id)
	assert.Equal(t, msg2.Id, obj2.Id)
}

func TestNonAuthorityCannotSpawn(t *testing.T) {
	reg := newTestRegistry(t)
	s := NewSpawner(reg, false)

	_, _, err := s.Spawn(typeTagWidget, wire.ClientId(1))
	assert.ErrorIs(t, err, ErrNotAuthority)
}

func TestDespawnRemovesObject(t *testing.T) {
	reg := newTestRegistry(t)
	s := NewSpawner(reg, true)

	obj, _, err := s.Spawn(typeTagWidget, wire.ClientId(1))
	require.NoError(t, err)

	msg, err := s.Despawn(obj.Id)
	require.NoError(t, err)
	assert.Equal(t, obj.Id, msg.Id)

	_, ok := s.Get(obj.Id)
	assert.False(t, ok)
}

func TestApplyRemoteSpawnAdvancesLocalCounter(t *testing.T) {
	reg := newTestRegistry(t)
	s := NewSpawner(reg, false)

	obj, err := s.ApplyRemoteSpawn(SpawnMessage{TypeTag: typeTagWidget, Id: wire.NetworkId(5), Owner: wire.ClientId(2)})
	require.NoError(t, err)
	assert.Equal(t, wire.NetworkId(5), obj.Id)

	// promoted authority must not reissue id 5 or lower
	s.PromoteToAuthority()
	_, msg, err := s.Spawn(typeTagWidget, wire.ClientId(3))
	require.NoError(t, err)
	assert.Equal(t, wire.NetworkId(6), msg.Id)
}

func TestSnapshotListsLiveObjectsInIdOrder(t *testing.T) {
	reg := newTestRegistry(t)
	s := NewSpawner(reg, true)

	first, _, _ := s.Spawn(typeTagWidget, wire.ClientId(1))
	second, _, _ := s.Spawn(typeTagWidget, wire.ClientId(1))
	_, err := s.Despawn(first.Id)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, second.Id, snap[0].Id)
}

func TestPendingLookupResolvesAndDrains(t *testing.T) {
	pending := NewPendingLookup()
	var resolved *NetworkObject
	pending.Add(wire.NetworkId(3), func(obj *NetworkObject) { resolved = obj })

	target := &NetworkObject{Id: wire.NetworkId(3)}
	pending.DispatchPass(func(key interface{}) (*NetworkObject, bool) {
		if key == wire.NetworkId(3) {
			return target, true
		}
		return nil, false
	})

	assert.Equal(t, target, resolved)
	assert.Equal(t, 0, pending.Len())
}

func TestPendingLookupCarriesOverUnresolvedEntries(t *testing.T) {
	pending := NewPendingLookup()
	fired := false
	pending.Add(wire.NetworkId(4), func(*NetworkObject) { fired = true })

	pending.DispatchPass(func(key interface{}) (*NetworkObject, bool) { return nil, false })

	assert.False(t, fired)
	assert.Equal(t, 1, pending.Len())
}
