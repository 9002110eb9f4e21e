package session

import (
	"sync"

	"github.com/duskproto/session/rpcproto"
	"github.com/duskproto/session/wire"
)

// RelayBuffer implements Buffer for the relay role: admission
// identical to ServerBuffer, plus host selection and migration
// (section 4.5.3).
type RelayBuffer struct {
	*ServerBuffer

	mu               sync.Mutex
	authority        wire.ClientId
	hostAddrDeclared bool
	hostAddr         string
	hostLocked       bool
}

// NewRelayBuffer wraps a ServerBuffer with relay-specific host
// selection state. It overrides the embedded ServerBuffer's
// authorityOf/onClientGone/relayAction hooks: Go does not dispatch
// virtually through struct embedding, so without this, ServerBuffer's
// own internal calls to "the current authority" (or its default
// RelayPolicy) would never see this relay's overrides.
func NewRelayBuffer(server *ServerBuffer, cfg Config) *RelayBuffer {
	r := &RelayBuffer{
		ServerBuffer:     server,
		authority:        wire.ClientIdNone,
		hostAddrDeclared: cfg.HostAddr != "",
		hostAddr:         cfg.HostAddr,
	}

	_, migratable := ShouldShutdownWhenEmpty(cfg)
	server.authorityOf = r.Authority
	server.onClientGone = func(id wire.ClientId) {
		_, shutdown, _ := r.HandleAuthorityDisconnect(id, migratable)
		if shutdown {
			r.ServerBuffer.Disconnect()
		}
	}
	server.relayAction = func(def rpcproto.Definition, calleeArgIndex rpcproto.CalleeArgIndex, args []wire.Encodable) rpcproto.RelayAction {
		return stripLocalExecution(rpcproto.ResolveRelayAction(def.Permission, calleeArgIndex, args))
	}
	return r
}

// stripLocalExecution converts any disposition that would run a local
// handler into its forward-only equivalent, per section 4.5.3: "the
// relay does not execute application RPCs; for rpcId >= 30 it only
// inspects the header ... and forwards." ActionExecuteLocalOnly
// (ClientsToAuthority) becomes routing to the single callee the
// caller already addressed the RPC to (the real authority, reached
// through the relay rather than being the relay itself);
// ActionExecuteAndBroadcast (ClientsToAll/AnyToAll with no resolved
// callee) becomes a plain rebroadcast. The other two actions already
// never execute locally and pass through unchanged.
func stripLocalExecution(action rpcproto.RelayAction) rpcproto.RelayAction {
	switch action {
	case rpcproto.ActionExecuteLocalOnly:
		return rpcproto.ActionRouteToSingleCallee
	case rpcproto.ActionExecuteAndBroadcast:
		return rpcproto.ActionRebroadcastWithoutExecuting
	default:
		return action
	}
}

// EvaluateHostSelection implements section 4.5.3's host-selection
// rule: with a pre-declared hostAddr, only the first admission from
// that IP may become authority and admissions from other IPs are
// rejected until it has; without one, the first admitted client
// becomes authority.
func (r *RelayBuffer) EvaluateHostSelection(remoteIP string) (becomesAuthority bool, rejectOthers bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.authority != wire.ClientIdNone {
		return false, false
	}

	if r.hostAddrDeclared {
		if remoteIP == r.hostAddr {
			return true, false
		}
		return false, true
	}
	return true, false
}

// AssignAuthority records id as the new authority, called once the
// selected client's admission completes.
func (r *RelayBuffer) AssignAuthority(id wire.ClientId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authority = id
}

// Authority overrides ServerBuffer.Authority: a relay's authority is
// the host client, not always None.
func (r *RelayBuffer) Authority() wire.ClientId {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authority
}

// MigrateHost implements section 4.8: select a new authority (an
// explicit id, or the deterministic admission-order fallback),
// update local state, and enqueue a HostMigration broadcast for every
// admitted client; the next Send writes it to each client's stream
// socket.
func (r *RelayBuffer) MigrateHost(newHostId wire.ClientId) error {
	r.mu.Lock()
	previous := r.authority
	ordered := r.ServerBuffer.clients.OrderedIds()
	r.mu.Unlock()

	target, err := SelectMigrationTarget(newHostId, previous, ordered)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.authority = target
	r.mu.Unlock()

	msg, err := hostMigrationMessage(r.ServerBuffer.registry, target)
	if err != nil {
		return err
	}
	return r.ServerBuffer.Enqueue(msg)
}

// HandleAuthorityDisconnect implements the second migration trigger
// path of section 4.8: the current authority disconnecting. When the
// session is not migratable, the relay must shut down instead.
func (r *RelayBuffer) HandleAuthorityDisconnect(disconnected wire.ClientId, migratable bool) (migrated bool, shouldShutdown bool, err error) {
	r.mu.Lock()
	isAuthority := disconnected == r.authority
	r.mu.Unlock()

	if !isAuthority {
		return false, false, nil
	}
	if !migratable {
		return false, true, nil
	}
	if err := r.MigrateHost(wire.ClientIdNone); err != nil {
		return false, false, err
	}
	return true, false, nil
}

// ShouldShutdownWhenEmpty implements section 4.5.3's shutdown policy:
// shutdownWhenEmpty and migratable together decide whether the relay
// stays up with zero clients. If shutdownWhenEmpty is false,
// migratable is forced true (a relay that never shuts down when empty
// must also be able to reassign authority once someone reconnects).
func ShouldShutdownWhenEmpty(cfg Config) (shutdown bool, effectiveMigratable bool) {
	if !cfg.ShutdownWhenEmpty {
		return false, true
	}
	return true, cfg.Migratable
}

