package session

import (
	"crypto/rand"
	"encoding/binary"
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

// ServerBuffer implements Buffer for the authoritative server role:
// localId = None, authority = None (section 4.5's "local identity
// rules").
type ServerBuffer struct {
	cfg      Config
	tcpLn    net.Listener
	udpConn  net.PacketConn
	pipeline *transform.Pipeline
	registry *rpcproto.Registry
	spawner  *spawn.Spawner
	pings    *ping.List

	mu      sync.Mutex
	clients *ClientTable
	pending map[string]*pendingAdmission
	outbox  map[wire.ClientId][]Message
	bans    *banList

	inbound chan Message

	// authorityOf, onClientGone and relayAction let RelayBuffer
	// override behavior that ServerBuffer's own methods drive
	// internally. Go embedding does not dispatch virtually through an
	// outer type's method override, so RelayBuffer.Authority() (or a
	// RelayBuffer-specific RelayPolicy) would never be seen by code
	// running inside ServerBuffer.Receive/handleClientGone/
	// handleInboundUserRpc unless it is reached through one of these
	// injected hooks instead.
	authorityOf  func() wire.ClientId
	onClientGone func(id wire.ClientId)
	relayAction  func(def rpcproto.Definition, calleeArgIndex rpcproto.CalleeArgIndex, args []wire.Encodable) rpcproto.RelayAction
}

// NewServerBuffer constructs a ServerBuffer bound to the configured
// TCP/UDP ports. It does not start accepting connections; call
// ListenAndServe for that.
func NewServerBuffer(cfg Config, pipeline *transform.Pipeline, registry *rpcproto.Registry, spawner *spawn.Spawner, pings *ping.List) *ServerBuffer {
	return &ServerBuffer{
		cfg:         cfg,
		pipeline:    pipeline,
		registry:    registry,
		spawner:     spawner,
		pings:       pings,
		clients:     NewClientTable(),
		pending:     make(map[string]*pendingAdmission),
		outbox:      make(map[wire.ClientId][]Message),
		bans:        newBanList(),
		inbound:     make(chan Message, 1024),
		authorityOf: func() wire.ClientId { return wire.ClientIdNone },
	}
}

// ListenAndServe opens the TCP and UDP sockets and starts the UDP
// read loop; the TCP accept loop is caller-driven (see
// cmd/session-server) since accepting owns per-connection admission
// policy the generic buffer does not know about.
func (s *ServerBuffer) ListenAndServe() error {
	tcpAddr := net.JoinHostPort(s.cfg.ServerAddr, strconv.Itoa(s.cfg.TcpPort))
	ln, err := net.Listen("tcp", tcpAddr)
	if err != nil {
		return err
	}
	s.tcpLn = ln

	udpAddr := net.JoinHostPort(s.cfg.ServerAddr, strconv.Itoa(s.cfg.UdpPort))
	conn, err := net.ListenPacket("udp", udpAddr)
	if err != nil {
		ln.Close()
		return err
	}
	s.udpConn = conn

	go s.udpReadLoop()
	return nil
}

// udpReadLoop demultiplexes the shared UDP socket: datagrams from an
// address already bound to an admitted client are fed to that
// client's UdpPacket; anything else is tried as a ConnectionRequest
// admission datagram, per section 4.5.1's two-phase handshake.
func (s *ServerBuffer) udpReadLoop() {
	buf := make([]byte, 2048)
	for {
		n, remote, err := s.udpConn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := append([]byte(nil), buf[:n]...)

		if rec, ok := s.clients.ByAddr(remote.String()); ok {
			ingestInto(rec.UdpPacket, s.pipeline, data, s.validateHeader(rec), func(hdr rpcproto.Header, payload []byte) error {
				s.handleInbound(rec, hdr, payload)
				return nil
			})
			continue
		}

		req, err := DecodeConnectionRequest(data)
		if err != nil {
			continue
		}
		code := s.HandleConnectionRequest(req, remote)
		s.udpConn.WriteTo(EncodeConnectionResponse(code), remote)
	}
}

// readClientStream drains one admitted client's TCP connection until
// it errors or is closed, feeding every ingested packet through the
// same decode/dispatch path udpReadLoop uses for datagrams.
func (s *ServerBuffer) readClientStream(rec *ClientRecord) {
	buf := make([]byte, s.cfg.BufferSize)
	validate := s.validateHeader(rec)
	for {
		n, err := rec.TcpConn.Read(buf)
		if err != nil {
			s.handleClientGone(rec.Id)
			return
		}
		if err := ingestInto(rec.TcpPacket, s.pipeline, buf[:n], validate, func(hdr rpcproto.Header, payload []byte) error {
			s.handleInbound(rec, hdr, payload)
			return nil
		}); err != nil {
			s.handleClientGone(rec.Id)
			return
		}
	}
}

// validateHeader checks the packet-level fields section 4.5.1 says
// must gate acceptance: the sender secret must match the admitted
// client's, and the protocol/app version must clear the configured
// floor.
func (s *ServerBuffer) validateHeader(rec *ClientRecord) func(packet.Header) bool {
	return func(h packet.Header) bool {
		if h.SenderSecret != rec.Secret {
			return false
		}
		if s.cfg.MinProtocolVersion != 0 && h.ProtocolVersion < s.cfg.MinProtocolVersion {
			return false
		}
		if s.cfg.MinAppVersion != 0 && h.AppVersion < s.cfg.MinAppVersion {
			return false
		}
		return true
	}
}

// handleInbound routes one decoded RPC header + argument payload,
// splitting control ids (handled procedurally) from user RPCs (routed
// through the permission table and relay policy). Section 4.5.3
// requires validating caller == claimedCaller before any forwarding;
// a mismatch here means the sending socket forged CallerId as some
// other client (most usefully, the authority) and is dropped outright
// rather than reaching either dispatch path.
func (s *ServerBuffer) handleInbound(from *ClientRecord, hdr rpcproto.Header, payload []byte) {
	if hdr.CallerId != from.Id {
		return
	}
	if hdr.RpcId.IsControl() {
		s.handleInboundControl(from, hdr, payload)
		return
	}
	s.handleInboundUserRpc(from, hdr, payload)
}

// handleInboundControl implements the only control ids a client is
// ever allowed to originate: a Ping leg (forwarded verbatim to its
// addressee) and, for a relay, a Spawn/Despawn from the current
// authority (re-broadcast to every other client). Every other control
// id is server/relay-originated only and is dropped if it somehow
// arrives from a client.
func (s *ServerBuffer) handleInboundControl(from *ClientRecord, hdr rpcproto.Header, payload []byte) {
	switch hdr.RpcId {
	case wire.RpcPing:
		s.Enqueue(Message{RpcId: hdr.RpcId, CallerId: hdr.CallerId, CalleeId: hdr.CalleeId, Payload: payload})
	case wire.RpcSpawn:
		if from.Id == s.authorityOf() {
			if sm, err := decodeSpawn(s.registry, payload); err == nil {
				s.spawner.ApplyRemoteSpawn(sm)
			}
			s.forwardExcept(Message{RpcId: hdr.RpcId, CallerId: hdr.CallerId, CalleeId: wire.ClientIdNone, Payload: payload}, from.Id)
		}
	case wire.RpcDespawn:
		if from.Id == s.authorityOf() {
			if dm, err := decodeDespawn(s.registry, payload); err == nil {
				s.spawner.ApplyRemoteDespawn(dm)
			}
			s.forwardExcept(Message{RpcId: hdr.RpcId, CallerId: hdr.CallerId, CalleeId: wire.ClientIdNone, Payload: payload}, from.Id)
		}
	}
}

// handleInboundUserRpc enforces section 4.5.2's permission table and
// resolves the relay/local-execution disposition for one inbound
// application RPC (id >= wire.RpcIdReservedCeiling), per section
// 4.5.1's relay policy paragraph. A permission violation drops the
// message and corrects the caller with AuthorityChanged instead of
// ever reaching a remote handler.
func (s *ServerBuffer) handleInboundUserRpc(from *ClientRecord, hdr rpcproto.Header, payload []byte) {
	def, ok := s.registry.Lookup(hdr.RpcId)
	if !ok {
		return
	}

	authority := s.authorityOf()
	callerIsAuthority := hdr.CallerId == authority
	calleeIsAuthority := hdr.CalleeId == authority

	if err := rpcproto.Enforce(def.Permission, callerIsAuthority, calleeIsAuthority); err != nil {
		if amsg, aerr := authorityChangedMessage(s.registry, hdr.CallerId, authority); aerr == nil {
			s.Enqueue(amsg)
		}
		return
	}

	callee := hdr.CalleeId
	action := s.RelayPolicy(def, rpcproto.CalleeArgIndex(0), []wire.Encodable{&callee})
	msg := Message{RpcId: hdr.RpcId, CallerId: hdr.CallerId, CalleeId: hdr.CalleeId, Target: hdr.TargetNetworkId, Payload: payload}

	switch action {
	case rpcproto.ActionExecuteLocalOnly:
		s.pushInbound(msg)
	case rpcproto.ActionRebroadcastWithoutExecuting:
		s.forwardExcept(msg, from.Id)
	case rpcproto.ActionRouteToSingleCallee:
		s.Enqueue(msg)
	case rpcproto.ActionExecuteAndBroadcast:
		s.pushInbound(msg)
		s.forwardExcept(msg, from.Id)
	}
}

func (s *ServerBuffer) pushInbound(msg Message) {
	select {
	case s.inbound <- msg:
	default:
	}
}

// forwardExcept queues msg for every currently admitted client other
// than except, used for RPCs relayed to "every other client" rather
// than broadcast to all (Enqueue's CalleeId=None convention would
// also loop the message back to its own caller).
func (s *ServerBuffer) forwardExcept(msg Message, except wire.ClientId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.clients.OrderedIds() {
		if id == except {
			continue
		}
		s.outbox[id] = append(s.outbox[id], msg)
	}
}

// handleClientGone tears down one client after its socket errors:
// removes it from the table, broadcasts ClientDisconnected, and lets
// a relay react (authority migration or shutdown) through the
// onClientGone hook.
func (s *ServerBuffer) handleClientGone(id wire.ClientId) {
	if _, ok := s.clients.Get(id); !ok {
		return
	}
	s.DisconnectClient(id)
	if msg, err := clientDisconnectedMessage(s.registry, id); err == nil {
		s.Enqueue(msg)
	}
	if s.onClientGone != nil {
		s.onClientGone(id)
	}
}

// sweepPendingAdmissions drops pending entries older than
// connectionRequestTimeout, per section 4.5.1's "swept at the start
// of each receive pass".
func (s *ServerBuffer) sweepPendingAdmissions(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ip, p := range s.pending {
		if now.Sub(p.CreatedAt) >= s.cfg.ConnectionRequestTimeout() {
			delete(s.pending, ip)
		}
	}
}

// HandleConnectionRequest evaluates a UDP admission datagram and, on
// Accepted, records the pending admission keyed by remote IP.
func (s *ServerBuffer) HandleConnectionRequest(req ConnectionRequest, remote net.Addr) ConnectionResponseCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, banned := s.bans.isBannedIP(hostOf(remote)); banned {
		return Rejected
	}

	code := EvaluateAdmission(req, admissionParams{
		AppId:              wire.StringId(s.cfg.AppId),
		SessionId:          wire.StringId(s.cfg.SessionId),
		MaxClients:         s.cfg.MaxClients,
		CurrentClientCount: s.clients.Len(),
		PendingCount:       len(s.pending),
		HasWhitelist:       len(s.cfg.Whitelist) > 0,
		Whitelisted:        isWhitelisted(s.cfg.Whitelist, remote),
		IsRelay:            false,
	})

	if code == Accepted {
		ip := hostOf(remote)
		s.pending[ip] = &pendingAdmission{
			RemoteIP:  ip,
			UdpAddr:   remote,
			Request:   req,
			Secret:    randomSecret(),
			CreatedAt: time.Now(),
		}
	}
	return code
}

// AdmitStream completes phase two of admission: it looks up the
// pending entry by the TCP connection's remote IP, mints a ClientId,
// and returns the assignment to send back as LocalClientConnected.
// It returns ok=false when no pending admission matches conn's IP,
// per section 4.5.1's "unmatched addresses are closed". The caller
// must follow a successful AdmitStream with CompleteAdmission once it
// has finished any relay-specific authority assignment.
func (s *ServerBuffer) AdmitStream(conn net.Conn) (*ClientRecord, ClientIdAssignment, bool) {
	ip := hostOf(conn.RemoteAddr())

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[ip]
	if !ok {
		return nil, ClientIdAssignment{}, false
	}
	delete(s.pending, ip)

	id := s.clients.NextId()
	rec := NewClientRecord(id, p.Secret, s.cfg.BufferSize)
	rec.TcpConn = conn
	rec.UdpAddr = p.UdpAddr

	if err := s.clients.Add(rec); err != nil {
		return nil, ClientIdAssignment{}, false
	}

	assignment := ClientIdAssignment{
		AssignedId:   id,
		AuthorityId:  wire.ClientIdNone,
		ClientSecret: p.Secret,
		MaxClients:   s.cfg.MaxClients,
	}
	return rec, assignment, true
}

// CompleteAdmission finishes admission once the caller has resolved
// any relay-specific authority assignment on ClientIdAssignment: it
// sends LocalClientConnected to the new client, announces it to every
// other already-admitted client with ClientConnected, replays every
// currently live spawn (section 4.6's late-join rule), and starts the
// client's socket read loop.
func (s *ServerBuffer) CompleteAdmission(rec *ClientRecord, assignment ClientIdAssignment) error {
	local, err := localClientConnectedMessage(s.registry, assignment)
	if err != nil {
		return err
	}
	if err := s.Enqueue(local); err != nil {
		return err
	}

	if announce, err := clientConnectedMessage(s.registry, rec.Id); err == nil {
		s.forwardExcept(announce, rec.Id)
	}

	for _, sm := range s.spawner.Snapshot() {
		spawnMsg, err := spawnMessage(s.registry, sm)
		if err != nil {
			continue
		}
		spawnMsg.CalleeId = rec.Id
		s.Enqueue(spawnMsg)
	}

	go s.readClientStream(rec)
	return nil
}

// RelayPolicy resolves what a server does with an inbound
// application RPC, per section 4.5.1's relay policy paragraph. A
// RelayBuffer overrides this via the relayAction hook (see
// NewRelayBuffer) to never locally execute, per section 4.5.3.
func (s *ServerBuffer) RelayPolicy(def rpcproto.Definition, calleeArgIndex rpcproto.CalleeArgIndex, args []wire.Encodable) rpcproto.RelayAction {
	if s.relayAction != nil {
		return s.relayAction(def, calleeArgIndex, args)
	}
	return rpcproto.ResolveRelayAction(def.Permission, calleeArgIndex, args)
}

// Enqueue appends msg to the named client's outbound queue, or every
// client's queue when callee is None (used for broadcast control
// messages such as ClientConnected).
func (s *ServerBuffer) Enqueue(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.CalleeId.IsNone() {
		for _, id := range s.clients.OrderedIds() {
			s.outbox[id] = append(s.outbox[id], msg)
		}
		return nil
	}
	s.outbox[msg.CalleeId] = append(s.outbox[msg.CalleeId], msg)
	return nil
}

// DisconnectClient closes and removes a single client's connection,
// per section 4.5.1's per-client failure handling.
func (s *ServerBuffer) DisconnectClient(id wire.ClientId) error {
	s.mu.Lock()
	rec, ok := s.clients.Get(id)
	if !ok {
		s.mu.Unlock()
		return ErrUnknownClient
	}
	s.clients.Remove(id)
	delete(s.outbox, id)
	s.mu.Unlock()

	if rec.TcpConn != nil {
		return rec.TcpConn.Close()
	}
	return nil
}

// Disconnect closes every client connection and both listen sockets.
func (s *ServerBuffer) Disconnect() error {
	for _, id := range s.clients.OrderedIds() {
		s.DisconnectClient(id)
	}
	if s.tcpLn != nil {
		s.tcpLn.Close()
	}
	if s.udpConn != nil {
		s.udpConn.Close()
	}
	return nil
}

// MigrateHost is not meaningful for a plain server; only relay
// sessions migrate authority.
func (s *ServerBuffer) MigrateHost(wire.ClientId) error { return ErrNotMigratable }

// Ping starts a round-trip measurement from the server (localId =
// None) to target, encoding and enqueuing the RPcPing request leg
// unless it is a self-ping (which ping.List resolves without ever
// touching the wire).
func (s *ServerBuffer) Ping(target wire.ClientId) *ping.Request {
	req := s.pings.Ping(wire.ClientIdNone, target)
	if req.Source != req.Target {
		if msg, err := pingMessage(s.registry, *req); err == nil {
			s.Enqueue(msg)
		}
	}
	return req
}

// LocalId is always None for a server, per section 4.5.
func (s *ServerBuffer) LocalId() wire.ClientId { return wire.ClientIdNone }

// Authority is always None for a plain server: it is itself the
// authority and never delegates.
func (s *ServerBuffer) Authority() wire.ClientId { return wire.ClientIdNone }

// Send flushes every client's pending outbound Messages: each is
// framed into that client's TcpPacket or UdpPacket (control ids and
// reliable user RPCs go over TCP), run through the transform
// pipeline, and written to the matching socket.
func (s *ServerBuffer) Send() error {
	s.mu.Lock()
	pending := s.outbox
	s.outbox = make(map[wire.ClientId][]Message)
	s.mu.Unlock()

	for id, msgs := range pending {
		rec, ok := s.clients.Get(id)
		if !ok || len(msgs) == 0 {
			continue
		}
		for _, msg := range msgs {
			hdr := rpcproto.Header{RpcId: msg.RpcId, CallerId: msg.CallerId, CalleeId: msg.CalleeId, TargetNetworkId: msg.Target}
			pkt := rec.TcpPacket
			if !reliableTransport(msg) {
				pkt = rec.UdpPacket
			}
			writeIntoPacket(pkt, hdr, msg.Payload)
		}
		s.flushClient(rec)
	}
	return nil
}

func (s *ServerBuffer) flushClient(rec *ClientRecord) {
	s.flushPacket(rec.TcpPacket, rec.Secret, rec.TcpConn.Write)
	if s.udpConn != nil && rec.UdpAddr != nil {
		s.flushPacket(rec.UdpPacket, rec.Secret, func(b []byte) (int, error) {
			return s.udpConn.WriteTo(b, rec.UdpAddr)
		})
	}
}

func (s *ServerBuffer) flushPacket(pkt *packet.Packet, secret uint32, write func([]byte) (int, error)) {
	for !pkt.Empty() {
		pkt.Header.SenderClientID = 0
		pkt.Header.SenderSecret = secret
		pkt.Header.ProtocolVersion = s.cfg.ProtocolVersion
		pkt.Header.AppVersion = s.cfg.AppVersion
		pkt.Header.TimestampMillis = time.Now().UnixMilli()

		raw := pkt.Emit()
		out, err := s.pipeline.ApplySend(raw)
		if err != nil {
			pkt.Reset()
			continue
		}
		write(out)
		pkt.Reset()
	}
}

// Receive drains admitted-client sockets (read on dedicated
// goroutines feeding s.inbound) and returns every Message queued for
// local dispatch since the last call.
func (s *ServerBuffer) Receive() ([]Message, error) {
	s.sweepPendingAdmissions(time.Now())
	s.pings.SweepExpired()

	var out []Message
	for {
		select {
		case m := <-s.inbound:
			out = append(out, m)
		default:
			return out, nil
		}
	}
}

func randomSecret() uint32 {
	var buf [4]byte
	rand.Read(buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// Listener returns the accepted TCP listener, for a caller-driven
// accept loop (see cmd/session-server).
func (s *ServerBuffer) Listener() net.Listener { return s.tcpLn }

// ClientsSnapshot returns every currently admitted client's record,
// in admission order, for status views such as console.Admin.
func (s *ServerBuffer) ClientsSnapshot() []*ClientRecord {
	return s.clients.All()
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func isWhitelisted(whitelist []string, addr net.Addr) bool {
	host := hostOf(addr)
	for _, w := range whitelist {
		if w == host {
			return true
		}
	}
	return false
}
