package session

import (
	"errors"

	"github.com/duskproto/session/wire"
)

// AdminCommand names an operator-facing query or action, generalizing
// the teacher's joinRpc/doRpc/processRpc side channel (rpc.go) from an
// inter-server text command bus to typed queries against a single
// session's ClientTable. The reserved control id wire.RpcAdminCommand
// has a registry Definition, but no code encodes or decodes admin
// queries as RPC messages; HandleAdminQuery is called directly.
type AdminCommand uint8

const (
	AdminPeerCount AdminCommand = iota
	AdminIsOnline
	AdminKick
	AdminBan
)

var ErrUnknownAdminCommand = errors.New("session: unknown admin command")

// AdminQuery is one operator request, dispatched against a
// ServerBuffer by HandleAdminQuery. The console package does not build
// AdminQuery values; callers construct them directly.
type AdminQuery struct {
	Command AdminCommand
	Target  wire.ClientId
	Reason  string
}

// AdminResult is the outcome reported back to the console.
type AdminResult struct {
	PeerCount int
	Online    bool
	Err       error
}

// banList tracks operator-banned clients by id and by IP for the
// lifetime of the process. Only the IP list is consulted at admission
// (HandleConnectionRequest rejects a banned IP); the id list is
// recorded but never checked, since ids are not reused within a run
// anyway, per section 2's ClientId lifecycle.
type banList struct {
	ids map[wire.ClientId]string
	ips map[string]string
}

func newBanList() *banList {
	return &banList{ids: make(map[wire.ClientId]string), ips: make(map[string]string)}
}

func (b *banList) ban(id wire.ClientId, reason string) {
	b.ids[id] = reason
}

func (b *banList) banIP(ip, reason string) {
	b.ips[ip] = reason
}

func (b *banList) isBannedIP(ip string) (string, bool) {
	reason, ok := b.ips[ip]
	return reason, ok
}

// HandleAdminQuery executes an operator query against the server's
// client table, mirroring the teacher's GETPEERCNT/ISONLINE/BAN
// commands but against typed ClientIds instead of usernames.
func (s *ServerBuffer) HandleAdminQuery(q AdminQuery) AdminResult {
	switch q.Command {
	case AdminPeerCount:
		return AdminResult{PeerCount: s.clients.Len()}
	case AdminIsOnline:
		_, ok := s.clients.Get(q.Target)
		return AdminResult{Online: ok}
	case AdminKick:
		if err := s.DisconnectClient(q.Target); err != nil {
			return AdminResult{Err: err}
		}
		return AdminResult{}
	case AdminBan:
		s.bans.ban(q.Target, q.Reason)
		if rec, ok := s.clients.Get(q.Target); ok && rec.UdpAddr != nil {
			s.bans.banIP(hostOf(rec.UdpAddr), q.Reason)
		}
		if err := s.DisconnectClient(q.Target); err != nil && !errors.Is(err, ErrUnknownClient) {
			return AdminResult{Err: err}
		}
		return AdminResult{}
	default:
		return AdminResult{Err: ErrUnknownAdminCommand}
	}
}
