package session

import (
	"net"
	"time"

	"github.com/duskproto/session/packet"
	"github.com/duskproto/session/wire"
)

// ClientRecord is the server/relay's bookkeeping for one admitted
// client: its identity, its two transports, and its two per-peer
// Packets. Every inbound packet's senderSecret must match Secret or
// it is dropped.
type ClientRecord struct {
	Id     wire.ClientId
	Secret uint32

	TcpConn net.Conn
	UdpAddr net.Addr

	TcpPacket *packet.Packet
	UdpPacket *packet.Packet

	AdmittedAt time.Time
	IsAuthority bool
}

// NewClientRecord constructs a record with fresh reliable and
// unreliable Packets sized to bufferSize.
func NewClientRecord(id wire.ClientId, secret uint32, bufferSize int) *ClientRecord {
	return &ClientRecord{
		Id:        id,
		Secret:    secret,
		TcpPacket: packet.New(bufferSize, false),
		UdpPacket: packet.New(bufferSize, true),
	}
}

// pendingAdmission is one entry of the server/relay's pending-
// admission list: a UDP-verified request waiting for the matching
// TCP handshake.
type pendingAdmission struct {
	RemoteIP  string
	UdpAddr   net.Addr
	Request   ConnectionRequest
	Secret    uint32
	CreatedAt time.Time
}
