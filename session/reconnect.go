package session

import (
	"errors"
	"net"
	"strconv"

	"github.com/duskproto/session/wire"
)

var (
	ErrReconnectSameAddr    = errors.New("session: already connected to that address")
	ErrReconnectUnreachable = errors.New("session: new address unreachable")
)

// RegisterOnReconnectDone adds a subscriber notified after every
// Reconnect attempt on this client, success or failure, mirroring the
// teacher's RegisterOnRedirectDone idiom but scoped to one ClientBuffer
// instance rather than process-wide: two ClientBuffers in the same
// process must not cross-fire each other's reconnect callbacks.
func (c *ClientBuffer) RegisterOnReconnectDone(fn func(local wire.ClientId, newAddr string, success bool)) {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	c.onReconnectDone = append(c.onReconnectDone, fn)
}

func (c *ClientBuffer) fireReconnectDone(newAddr string, success bool) {
	c.reconnectMu.Lock()
	subs := append([]func(wire.ClientId, string, bool){}, c.onReconnectDone...)
	c.reconnectMu.Unlock()
	local := c.LocalId()
	for _, fn := range subs {
		fn(local, newAddr, success)
	}
}

// Reconnect tears down the client's current stream and datagram
// sockets and re-admits against a different server_addr/tcp_port,
// generalizing the teacher's Redirect (redirect.go) from a fixed
// Minetest-proxy hop list to an arbitrary re-parenting of the
// authority a client is admitted against. The ClientId-level
// application state (localId, pending pings) is not reset: only the
// transport and admission state are rebuilt.
//
// Reconnect does not itself replay ConnectionRequest/handshake; the
// caller drives that the same way it drove the initial admission,
// dialing the new stream socket itself (Reconnect leaves it nil).
func (c *ClientBuffer) Reconnect(addr string, tcpPort, udpPort int) (success bool, err error) {
	c.mu.Lock()
	current := c.remote
	c.mu.Unlock()

	if current != nil && current.String() == net.JoinHostPort(addr, strconv.Itoa(udpPort)) {
		c.fireReconnectDone(addr, false)
		return false, ErrReconnectSameAddr
	}

	newRemote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr, strconv.Itoa(udpPort)))
	if err != nil {
		c.fireReconnectDone(addr, false)
		return false, ErrReconnectUnreachable
	}

	newConn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		c.fireReconnectDone(addr, false)
		return false, err
	}

	c.mu.Lock()
	oldTcp := c.tcpConn
	oldUdp := c.udpConn
	c.tcpConn = nil
	c.udpConn = newConn
	c.remote = newRemote
	c.acceptedRequest = false
	c.remainingAttempts = c.cfg.ConnectionRequestLimit
	c.cfg.ServerAddr = addr
	c.cfg.TcpPort = tcpPort
	c.cfg.UdpPort = udpPort
	c.mu.Unlock()

	if oldTcp != nil {
		_ = oldTcp.Close()
	}
	if oldUdp != nil {
		_ = oldUdp.Close()
	}
	go c.readUdpLoop()

	c.fireReconnectDone(addr, true)
	return true, nil
}
