package rpcproto

import (
	"errors"
	"io"

	"github.com/duskproto/session/wire"
)

// NoInjection marks an argument position that is not recovered from
// packet header/meta.
const NoInjection = -1

// Definition is one row of a Registry: everything needed to encode
// and decode a single RPC's arguments without runtime type
// inspection, replacing the reflection-driven approach the runtime
// otherwise inherits from a dynamically typed argument array.
type Definition struct {
	Permission Permission
	// ArgFactories returns a fresh, zero-valued Encodable for each
	// declared argument position, in order.
	ArgFactories []func() wire.Encodable
	// CallerInjectionIndex and CalleeInjectionIndex name argument
	// positions that are never written to or read from the wire;
	// the dispatcher fills them in from the RPC header instead.
	CallerInjectionIndex int
	CalleeInjectionIndex int
}

func (d Definition) isInjected(i int) bool {
	return i == d.CallerInjectionIndex || i == d.CalleeInjectionIndex
}

// Registry is the ProtocolRegistry collaborator: a static table
// mapping each RpcId to its Definition. Dispatch is a map lookup plus
// an indexed argument walk, never a scan of a value's runtime type.
type Registry struct {
	defs map[wire.RpcId]Definition
}

// NewRegistry returns a Registry pre-loaded with the fixed control-
// message table (see RegisterControlMessages); an application then
// Registers its own user RPCs on top of it, starting at
// wire.RpcIdReservedCeiling.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[wire.RpcId]Definition)}
	RegisterControlMessages(r)
	return r
}

// Register adds or replaces the Definition for id.
func (r *Registry) Register(id wire.RpcId, def Definition) {
	r.defs[id] = def
}

// Lookup returns the Definition registered for id.
func (r *Registry) Lookup(id wire.RpcId) (Definition, bool) {
	def, ok := r.defs[id]
	return def, ok
}

var (
	ErrUnknownRpc    = errors.New("rpcproto: unknown rpc id")
	ErrArgCountMismatch = errors.New("rpcproto: argument count does not match registry definition")
)

// EncodeArgs writes non-injected args from args, in declared order.
// args must have one entry per ArgFactories position; entries at
// injected positions are ignored and may be nil.
func (r *Registry) EncodeArgs(id wire.RpcId, args []wire.Encodable, w io.Writer) error {
	def, ok := r.Lookup(id)
	if !ok {
		return ErrUnknownRpc
	}
	if len(args) != len(def.ArgFactories) {
		return ErrArgCountMismatch
	}
	for i, a := range args {
		if def.isInjected(i) {
			continue
		}
		if err := a.Write(w); err != nil {
			return err
		}
	}
	return nil
}

// DecodeArgs reads non-injected args from r using id's registered
// factories. Injected positions are left as the factory's freshly
// constructed zero value; the caller is expected to overwrite them
// from the enclosing Header's CallerId/CalleeId.
func (r *Registry) DecodeArgs(id wire.RpcId, rd io.Reader) ([]wire.Encodable, error) {
	def, ok := r.Lookup(id)
	if !ok {
		return nil, ErrUnknownRpc
	}
	args := make([]wire.Encodable, len(def.ArgFactories))
	for i, factory := range def.ArgFactories {
		args[i] = factory()
		if def.isInjected(i) {
			continue
		}
		if err := args[i].Read(rd); err != nil {
			return nil, err
		}
	}
	return args, nil
}
