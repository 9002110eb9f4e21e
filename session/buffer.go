package session

import (
	"github.com/duskproto/session/ping"
	"github.com/duskproto/session/wire"
)

// Message is a decoded, dispatch-ready unit handed to the caller's
// execute_queue or relayed further, per section 2's data flow.
type Message struct {
	RpcId    wire.RpcId
	CallerId wire.ClientId
	CalleeId wire.ClientId
	Target   wire.NetworkId
	Payload  []byte

	// Unreliable requests the datagram transport for a user RPC
	// (id >= wire.RpcIdReservedCeiling). Ignored for control ids,
	// which are always sent reliably.
	Unreliable bool
}

// Buffer is the common contract every role implements, per section
// 4.5.
type Buffer interface {
	// Receive drains both sockets non-blocking and returns any fully
	// decoded Messages ready for dispatch.
	Receive() ([]Message, error)
	// Send flushes every per-peer outbound Packet.
	Send() error
	// Enqueue appends msg to the outbound queue for delivery on the
	// next Send.
	Enqueue(msg Message) error
	// Disconnect closes every connection this Buffer owns.
	Disconnect() error
	// DisconnectClient closes a single client's connection. Servers
	// and relays only.
	DisconnectClient(id wire.ClientId) error
	// MigrateHost reassigns the authority role. Only meaningful for a
	// RelayBuffer; other roles return ErrNotMigratable.
	MigrateHost(newHostId wire.ClientId) error
	// Ping starts a round-trip latency measurement to target.
	Ping(target wire.ClientId) *ping.Request

	// LocalId is None for a server or relay, and the assigned id for
	// a client.
	LocalId() wire.ClientId
	// Authority is None for an unauthoritative server, or the client
	// id currently holding authority.
	Authority() wire.ClientId
}
