package rpcproto

import "github.com/duskproto/session/wire"

// RelayAction is the server role's disposition for an RPC it has just
// received, per section 4.5.2's relay policy.
type RelayAction int

const (
	// ActionExecuteLocalOnly runs the RPC's local handler and never
	// relays it (ClientsToAuthority).
	ActionExecuteLocalOnly RelayAction = iota
	// ActionRebroadcastWithoutExecuting forwards the RPC to the
	// selected callees without running a local handler
	// (ClientsToClients).
	ActionRebroadcastWithoutExecuting
	// ActionRouteToSingleCallee forwards the RPC to exactly one
	// client and does not execute or broadcast it (ClientsToAll /
	// AnyToAll with a resolved non-None callee).
	ActionRouteToSingleCallee
	// ActionExecuteAndBroadcast runs the local handler, then relays
	// to every other client (ClientsToAll / AnyToAll with no resolved
	// callee).
	ActionExecuteAndBroadcast
)

// CalleeArgIndex names, per Definition, which argument position (if
// any) carries a callee ClientId used to resolve AnyToAll/ClientsToAll
// single-target routing. -1 means the RPC has no such argument.
type CalleeArgIndex int

const NoCalleeArg CalleeArgIndex = -1

// ResolveRelayAction decides what a server does with an inbound RPC,
// following section 4.5.2 and the AnyToAll callee-argument decision:
// a callee-typed argument that is present but wire.ClientIdNone means
// broadcast, exactly as if the argument were absent. Control RPC ids
// are never relayed and must be handled by the caller before this is
// reached.
func ResolveRelayAction(perm Permission, calleeArgIndex CalleeArgIndex, args []wire.Encodable) RelayAction {
	switch perm {
	case ClientsToAuthority:
		return ActionExecuteLocalOnly
	case ClientsToClients:
		return ActionRebroadcastWithoutExecuting
	case ClientsToAll, AnyToAll:
		if calleeArgIndex != NoCalleeArg && int(calleeArgIndex) < len(args) {
			if callee, ok := args[calleeArgIndex].(*wire.ClientId); ok && !callee.IsNone() {
				return ActionRouteToSingleCallee
			}
		}
		return ActionExecuteAndBroadcast
	default:
		return ActionExecuteAndBroadcast
	}
}
