package spawn

import (
	"errors"
	"sync"

	"github.com/duskproto/session/wire"
)

// SpawnMessage is the outbound control message payload produced by a
// spawn: `{typeTag : u8, id : NetworkId}`.
type SpawnMessage struct {
	TypeTag TypeTag
	Id      wire.NetworkId
	Owner   wire.ClientId
}

// DespawnMessage is the outbound control message payload produced by
// a despawn: `{id : NetworkId}`.
type DespawnMessage struct {
	Id wire.NetworkId
}

var (
	ErrNotAuthority = errors.New("spawn: only the authority may spawn or despawn")
	ErrUnknownObject = errors.New("spawn: no object with that id")
)

// Spawner owns the live NetworkId -> NetworkObject map for one
// endpoint. The authoritative endpoint allocates ids from a monotonic
// counter; non-authoritative endpoints only ever mirror spawns and
// despawns that arrive over the wire.
type Spawner struct {
	mu          sync.Mutex
	registry    *TypeRegistry
	objects     map[wire.NetworkId]*NetworkObject
	nextId      wire.NetworkId
	isAuthority bool
}

// NewSpawner returns a Spawner backed by registry. isAuthority must
// match the role of the endpoint that owns this Spawner; a relay
// flips it on host migration by calling PromoteToAuthority.
func NewSpawner(registry *TypeRegistry, isAuthority bool) *Spawner {
	return &Spawner{
		registry:    registry,
		objects:     make(map[wire.NetworkId]*NetworkObject),
		nextId:      1,
		isAuthority: isAuthority,
	}
}

// PromoteToAuthority makes this Spawner authoritative, used when host
// migration hands this endpoint the authority role.
func (s *Spawner) PromoteToAuthority() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isAuthority = true
}

// Spawn allocates a new object of the given type, owned by owner.
// Only the authority may call this.
func (s *Spawner) Spawn(tag TypeTag, owner wire.ClientId) (*NetworkObject, SpawnMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isAuthority {
		return nil, SpawnMessage{}, ErrNotAuthority
	}

	payload, err := s.registry.Construct(tag)
	if err != nil {
		return nil, SpawnMessage{}, err
	}

	id := s.nextId
	s.nextId++

	obj := &NetworkObject{
		Id:              id,
		IsActive:        true,
		TypeTag:         tag,
		OwnerConnection: owner,
		Payload:         payload,
	}
	s.objects[id] = obj

	return obj, SpawnMessage{TypeTag: tag, Id: id, Owner: owner}, nil
}

// Despawn removes an object by id. Only the authority may call this.
func (s *Spawner) Despawn(id wire.NetworkId) (DespawnMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isAuthority {
		return DespawnMessage{}, ErrNotAuthority
	}
	obj, ok := s.objects[id]
	if !ok {
		return DespawnMessage{}, ErrUnknownObject
	}
	obj.IsActive = false
	delete(s.objects, id)

	return DespawnMessage{Id: id}, nil
}

// ApplyRemoteSpawn mirrors a spawn received from the authority. It
// advances the local id counter past msg.Id when necessary, so that a
// promoted authority never reissues an id a previous authority
// already used.
func (s *Spawner) ApplyRemoteSpawn(msg SpawnMessage) (*NetworkObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.registry.Construct(msg.TypeTag)
	if err != nil {
		return nil, err
	}

	obj := &NetworkObject{
		Id:              msg.Id,
		IsActive:        true,
		TypeTag:         msg.TypeTag,
		OwnerConnection: msg.Owner,
		Payload:         payload,
	}
	s.objects[msg.Id] = obj

	if msg.Id >= s.nextId {
		s.nextId = msg.Id + 1
	}
	return obj, nil
}

// ApplyRemoteDespawn mirrors a despawn received from the authority.
func (s *Spawner) ApplyRemoteDespawn(msg DespawnMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[msg.Id]
	if !ok {
		return ErrUnknownObject
	}
	obj.IsActive = false
	delete(s.objects, msg.Id)
	return nil
}

// Get returns the live object for id, if any.
func (s *Spawner) Get(id wire.NetworkId) (*NetworkObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	return obj, ok
}

// Snapshot returns a SpawnMessage for every currently live object, in
// ascending id order, for replay to a newly admitted client.
func (s *Spawner) Snapshot() []SpawnMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]SpawnMessage, 0, len(s.objects))
	for id := wire.NetworkId(1); id < s.nextId; id++ {
		if obj, ok := s.objects[id]; ok {
			msgs = append(msgs, SpawnMessage{TypeTag: obj.TypeTag, Id: obj.Id, Owner: obj.OwnerConnection})
		}
	}
	return msgs
}
