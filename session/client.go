package session

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/duskproto/session/packet"
	"github.com/duskproto/session/ping"
	"github.com/duskproto/session/rpcproto"
	"github.com/duskproto/session/spawn"
	"github.com/duskproto/session/transform"
	"github.com/duskproto/session/wire"
)

var (
	ErrAdmissionRejected  = errors.New("session: admission rejected by remote")
	ErrAdmissionExhausted = errors.New("session: connection request retry limit reached")
)

// ClientBuffer implements Buffer for the client role: localId is
// assigned on admission; authority starts at None (the server) and
// may later name a host client in a relayed session.
type ClientBuffer struct {
	cfg      Config
	pipeline *transform.Pipeline
	registry *rpcproto.Registry
	spawner  *spawn.Spawner

	tcpConn net.Conn
	udpConn net.PacketConn
	remote  net.Addr

	tcpPacket *packet.Packet
	udpPacket *packet.Packet

	pings *ping.List

	mu                sync.Mutex
	localId           wire.ClientId
	authority         wire.ClientId
	secret            uint32
	isHost            bool
	requestAsHost     bool
	lastRequestTime   time.Time
	remainingAttempts int
	acceptedRequest   bool

	outbox  []Message
	inbound chan Message

	reconnectMu     sync.Mutex
	onReconnectDone []func(local wire.ClientId, newAddr string, success bool)
}

// NewClientBuffer constructs a ClientBuffer that has not yet
// attempted admission.
func NewClientBuffer(cfg Config, pipeline *transform.Pipeline, registry *rpcproto.Registry, spawner *spawn.Spawner, pings *ping.List) *ClientBuffer {
	return &ClientBuffer{
		cfg:               cfg,
		pipeline:          pipeline,
		registry:          registry,
		spawner:           spawner,
		pings:             pings,
		tcpPacket:         packet.New(cfg.BufferSize, false),
		udpPacket:         packet.New(cfg.BufferSize, true),
		remainingAttempts: cfg.ConnectionRequestLimit,
		requestAsHost:     cfg.Role == RoleHost,
		inbound:           make(chan Message, 256),
	}
}

// Dial resolves the server/relay's UDP address and opens the local UDP
// admission socket. It does not open the stream socket (the caller
// dials it after admission and hands it to CompleteHandshake) and does
// not itself send the ConnectionRequest datagram (see
// BuildConnectionRequest and RecordAttempt).
func (c *ClientBuffer) Dial() error {
	addr := net.JoinHostPort(c.cfg.ServerAddr, strconv.Itoa(c.cfg.UdpPort))
	remote, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	c.remote = remote

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return err
	}
	c.udpConn = conn
	return nil
}

// UdpConn returns the admission-socket connection opened by Dial, so
// the caller driving the ConnectionRequest retry loop can reuse the
// same socket the server will bind this client's UDP address to
// (rather than racing a second, separately-read socket against
// readUdpLoop).
func (c *ClientBuffer) UdpConn() net.PacketConn { return c.udpConn }

// RemoteAddr returns the server/relay's UDP address resolved by Dial.
func (c *ClientBuffer) RemoteAddr() net.Addr { return c.remote }

// BuildConnectionRequest returns the current retry's admission
// datagram payload, per section 4.5.2's state fields.
func (c *ClientBuffer) BuildConnectionRequest() ConnectionRequest {
	return ConnectionRequest{
		AppId:     wire.StringId(c.cfg.AppId),
		SessionId: wire.StringId(c.cfg.SessionId),
		IsHost:    c.requestAsHost,
	}
}

// RecordAttempt marks that a ConnectionRequest was just sent,
// decrementing the retry budget. It reports ErrAdmissionExhausted
// once the limit is reached, per section 5's "connectionRequestLimit
// x connectionRequestRate" cancellation rule.
func (c *ClientBuffer) RecordAttempt(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remainingAttempts <= 0 {
		return ErrAdmissionExhausted
	}
	c.remainingAttempts--
	c.lastRequestTime = now
	return nil
}

// HandleAdmissionResponse applies the server/relay's UDP response
// code, per section 4.5.2's admission bullet: Accepted starts the
// stream handshake, Rejected gives up, HostAlreadyAssigned downgrades
// from host to regular client and lets the caller retry.
func (c *ClientBuffer) HandleAdmissionResponse(code ConnectionResponseCode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch code {
	case Accepted:
		c.acceptedRequest = true
		return nil
	case HostAlreadyAssigned:
		c.requestAsHost = false
		return nil
	default:
		return ErrAdmissionRejected
	}
}

// ReadAssignment blocks reading conn until the server's
// LocalClientConnected control message arrives and returns the
// ClientIdAssignment it carries. It is called once, immediately after
// the stream connects, before CompleteHandshake.
func (c *ClientBuffer) ReadAssignment(conn net.Conn) (ClientIdAssignment, error) {
	buf := make([]byte, c.cfg.BufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return ClientIdAssignment{}, err
		}

		offset := 0
		for offset < n {
			consumed, err := c.tcpPacket.Ingest(buf, offset)
			if err != nil {
				return ClientIdAssignment{}, err
			}
			offset += consumed
			if !c.tcpPacket.Complete() {
				if consumed == 0 {
					break
				}
				continue
			}

			raw := append([]byte(nil), c.tcpPacket.RawBytes()...)
			c.tcpPacket.ResetIngest()

			transformed, err := c.pipeline.ApplyReceive(raw)
			if err != nil {
				return ClientIdAssignment{}, err
			}
			_, msgs, err := packet.ParseMessages(transformed)
			if err != nil {
				return ClientIdAssignment{}, err
			}
			for _, m := range msgs {
				hdr, payload, err := parseRpcMessage(m)
				if err != nil {
					continue
				}
				if hdr.RpcId == wire.RpcLocalClientConnected {
					return decodeLocalClientConnected(c.registry, payload)
				}
			}
		}
	}
}

// CompleteHandshake finishes admission once the stream connects and
// LocalClientConnected has been decoded, applying host-role
// reconciliation from section 4.5.2, and starts the socket read
// loops that feed Receive.
func (c *ClientBuffer) CompleteHandshake(conn net.Conn, assignment ClientIdAssignment) {
	c.mu.Lock()
	c.tcpConn = conn
	c.localId = assignment.AssignedId
	c.authority = assignment.AuthorityId
	c.secret = assignment.ClientSecret
	c.isHost = assignment.AuthorityId == assignment.AssignedId
	c.mu.Unlock()

	go c.readTcpLoop()
	go c.readUdpLoop()
}

// ApplyHostMigration updates local authority state on receipt of a
// HostMigration broadcast, per section 4.8 step 3.
func (c *ClientBuffer) ApplyHostMigration(newAuthority wire.ClientId) MigrationOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := ApplyMigration(c.localId, c.isHost, newAuthority)
	c.authority = newAuthority
	c.isHost = outcome.PromotedToHost || (c.isHost && !outcome.DemotedFromHost)
	return outcome
}

func (c *ClientBuffer) Enqueue(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outbox = append(c.outbox, msg)
	return nil
}

func (c *ClientBuffer) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.tcpConn != nil {
		err = c.tcpConn.Close()
	}
	if c.udpConn != nil {
		c.udpConn.Close()
	}
	return err
}

// DisconnectClient is not meaningful for the client role: a client
// only ever disconnects itself.
func (c *ClientBuffer) DisconnectClient(wire.ClientId) error { return c.Disconnect() }

// MigrateHost is only meaningful for a relay's own authority.
func (c *ClientBuffer) MigrateHost(wire.ClientId) error { return ErrNotMigratable }

// Ping starts a round-trip measurement to target, encoding and
// enqueuing the RpcPing request leg unless it is a self-ping (which
// ping.List resolves without ever touching the wire).
func (c *ClientBuffer) Ping(target wire.ClientId) *ping.Request {
	c.mu.Lock()
	local := c.localId
	c.mu.Unlock()

	req := c.pings.Ping(local, target)
	if req.Source != req.Target {
		if msg, err := pingMessage(c.registry, *req); err == nil {
			c.Enqueue(msg)
		}
	}
	return req
}

func (c *ClientBuffer) LocalId() wire.ClientId {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localId
}

func (c *ClientBuffer) Authority() wire.ClientId {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authority
}

// IsHost reports whether this client currently holds the authority
// role, for a relayed session.
func (c *ClientBuffer) IsHost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isHost
}

// Send flushes the outbound queue: each Message is framed into
// tcpPacket or udpPacket depending on its transport, then both
// packets are emitted through the transform pipeline and written to
// their sockets.
func (c *ClientBuffer) Send() error {
	c.mu.Lock()
	msgs := c.outbox
	c.outbox = nil
	secret := c.secret
	c.mu.Unlock()

	for _, msg := range msgs {
		hdr := rpcproto.Header{RpcId: msg.RpcId, CallerId: msg.CallerId, CalleeId: msg.CalleeId, TargetNetworkId: msg.Target}
		pkt := c.tcpPacket
		if !reliableTransport(msg) {
			pkt = c.udpPacket
		}
		writeIntoPacket(pkt, hdr, msg.Payload)
	}

	if c.tcpConn != nil {
		c.flushPacket(c.tcpPacket, secret, c.tcpConn.Write)
	}
	if c.udpConn != nil && c.remote != nil {
		c.flushPacket(c.udpPacket, secret, func(b []byte) (int, error) {
			return c.udpConn.WriteTo(b, c.remote)
		})
	}
	return nil
}

func (c *ClientBuffer) flushPacket(pkt *packet.Packet, secret uint32, write func([]byte) (int, error)) {
	c.mu.Lock()
	localId := c.localId
	c.mu.Unlock()

	for !pkt.Empty() {
		pkt.Header.SenderClientID = uint32(localId)
		pkt.Header.SenderSecret = secret
		pkt.Header.ProtocolVersion = c.cfg.ProtocolVersion
		pkt.Header.AppVersion = c.cfg.AppVersion
		pkt.Header.TimestampMillis = time.Now().UnixMilli()

		raw := pkt.Emit()
		out, err := c.pipeline.ApplySend(raw)
		if err != nil {
			pkt.Reset()
			continue
		}
		write(out)
		pkt.Reset()
	}
}

// readTcpLoop drains the stream socket for the lifetime of the
// connection, pushing every decoded Message onto inbound.
func (c *ClientBuffer) readTcpLoop() {
	buf := make([]byte, c.cfg.BufferSize)
	for {
		n, err := c.tcpConn.Read(buf)
		if err != nil {
			return
		}
		ingestInto(c.tcpPacket, c.pipeline, buf[:n], c.validateHeader, func(hdr rpcproto.Header, payload []byte) error {
			c.pushInbound(Message{RpcId: hdr.RpcId, CallerId: hdr.CallerId, CalleeId: hdr.CalleeId, Target: hdr.TargetNetworkId, Payload: payload})
			return nil
		})
	}
}

// readUdpLoop drains the unreliable socket for the lifetime of the
// connection. Datagrams are only ever the admission response and,
// once admitted, unreliable-transport RPCs from the same remote.
func (c *ClientBuffer) readUdpLoop() {
	buf := make([]byte, 2048)
	for {
		n, _, err := c.udpConn.ReadFrom(buf)
		if err != nil {
			return
		}
		if c.LocalId().IsNone() {
			continue
		}
		ingestInto(c.udpPacket, c.pipeline, buf[:n], c.validateHeader, func(hdr rpcproto.Header, payload []byte) error {
			c.pushInbound(Message{RpcId: hdr.RpcId, CallerId: hdr.CallerId, CalleeId: hdr.CalleeId, Target: hdr.TargetNetworkId, Payload: payload})
			return nil
		})
	}
}

func (c *ClientBuffer) validateHeader(h packet.Header) bool {
	c.mu.Lock()
	secret := c.secret
	c.mu.Unlock()
	if h.SenderSecret != secret {
		return false
	}
	if c.cfg.MinProtocolVersion != 0 && h.ProtocolVersion < c.cfg.MinProtocolVersion {
		return false
	}
	if c.cfg.MinAppVersion != 0 && h.AppVersion < c.cfg.MinAppVersion {
		return false
	}
	return true
}

func (c *ClientBuffer) pushInbound(msg Message) {
	select {
	case c.inbound <- msg:
	default:
	}
}

// Receive returns every Message decoded since the last call, sweeping
// expired outstanding pings first.
func (c *ClientBuffer) Receive() ([]Message, error) {
	c.pings.SweepExpired()

	var out []Message
	for {
		select {
		case m := <-c.inbound:
			out = append(out, m)
		default:
			return out, nil
		}
	}
}
