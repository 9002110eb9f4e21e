// Package spawn implements the replicated-object spawner: id
// allocation, spawn/despawn control messages, and late-join
// reconciliation, grounded on the id-set bookkeeping the teacher uses
// to track live active-object ids across a relayed identity swap.
package spawn

import (
	"errors"

	"github.com/duskproto/session/wire"
)

// TypeTag identifies a user-registered NetworkObject constructor.
// TypeTagNone is reserved and never assigned to a real object;
// TypeTagBase names the base NetworkObject with no user payload; user
// types start at 2.
type TypeTag uint8

const (
	TypeTagNone TypeTag = 0
	TypeTagBase TypeTag = 1
)

// NetworkObject is the proxy instance the spawner hands back for
// every replicated object, whether spawned locally by the authority
// or created here to mirror a remote spawn.
type NetworkObject struct {
	Id              wire.NetworkId
	IsActive        bool
	TypeTag         TypeTag
	OwnerConnection wire.ClientId
	// Payload is the user value the TypeRegistry constructed for
	// TypeTag; nil for TypeTagBase.
	Payload interface{}
}

// Constructor builds a fresh payload value for a registered TypeTag.
// The Spawner wraps whatever the constructor returns in a
// *NetworkObject and fills in owner and id.
type Constructor func() interface{}

// TypeRegistry maps user types to a wire tag and back, replacing the
// polymorphic constructor dispatch a reflection-based spawner would
// otherwise need.
type TypeRegistry struct {
	byTag map[TypeTag]Constructor
}

// NewTypeRegistry returns a TypeRegistry with only TypeTagBase
// pre-registered (constructing a nil payload).
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byTag: map[TypeTag]Constructor{
			TypeTagBase: func() interface{} { return nil },
		},
	}
}

var (
	ErrReservedTag  = errors.New("spawn: type tag 0 is reserved")
	ErrTagTaken     = errors.New("spawn: type tag already registered")
	ErrUnknownTag   = errors.New("spawn: no constructor registered for type tag")
)

// Register binds tag to constructor. tag must not be TypeTagNone and
// must not already be registered.
func (t *TypeRegistry) Register(tag TypeTag, constructor Constructor) error {
	if tag == TypeTagNone {
		return ErrReservedTag
	}
	if _, exists := t.byTag[tag]; exists {
		return ErrTagTaken
	}
	t.byTag[tag] = constructor
	return nil
}

// Construct builds a fresh payload for tag.
func (t *TypeRegistry) Construct(tag TypeTag) (interface{}, error) {
	ctor, ok := t.byTag[tag]
	if !ok {
		return nil, ErrUnknownTag
	}
	return ctor(), nil
}
