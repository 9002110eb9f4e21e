// Command session-relay runs the peer-hosted relay role: identical
// admission to session-server, plus host selection and migration
// (section 4.5.3/4.8), grounded on the teacher's root multiserver.go
// accept loop.
package main

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/duskproto/session/audit"
	"github.com/duskproto/session/console"
	"github.com/duskproto/session/huffman"
	"github.com/duskproto/session/logging"
	"github.com/duskproto/session/ping"
	"github.com/duskproto/session/rpcproto"
	"github.com/duskproto/session/session"
	"github.com/duskproto/session/spawn"
	"github.com/duskproto/session/transform"
	"github.com/duskproto/session/wire"

	"github.com/benbjohnson/clock"
)

func main() {
	cfgPath := "config/session-relay.yml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := session.LoadConfig(cfgPath)
	if err != nil {
		cfg = session.Defaults()
		cfg.Role = session.RoleRelay
	}

	logger, _, err := logging.New("log", zapcore.InfoLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	trail, err := audit.Open("session-relay")
	if err != nil {
		sugar.Fatal(err)
	}
	defer trail.Close()

	pipeline := transform.New()
	if cfg.MeasureBandwidth {
		bw := &transform.BandwidthRecorder{}
		pipeline.Add(bw.NewIncomingStep())
		pipeline.Add(bw.NewOutgoingStep())
	}
	if cfg.UseCompression {
		pipeline.Add(huffman.NewStep())
	}

	registry := rpcproto.NewRegistry()
	spawner := spawn.NewSpawner(spawn.NewTypeRegistry(), false)
	pings := ping.NewList(clock.New())

	server := session.NewServerBuffer(cfg, pipeline, registry, spawner, pings)
	if err := server.ListenAndServe(); err != nil {
		sugar.Fatal(err)
	}
	relay := session.NewRelayBuffer(server, cfg)
	sugar.Infof("relay listening on %s tcp=%d udp=%d", cfg.ServerAddr, cfg.TcpPort, cfg.UdpPort)

	conn := session.NewConnection(relay, cfg, registry, spawner, pings)
	sugar.Infow("session started", "run_id", conn.RunID.String())

	if err := conn.Start(context.Background(), nil); err != nil {
		sugar.Fatalw("connection worker failed", "error", err)
	}
	if !cfg.Threaded {
		go driveSynchronously(conn, cfg)
	}

	if cfg.AdminConsole {
		admin := console.NewAdmin(&relayStatusSource{relay: relay})
		admin.RegisterCommand(console.Command{
			Name: "migrate_host",
			Run: func(source console.StatusSource, arg string) string {
				var target uint32
				if arg != "" {
					n, err := strconv.Atoi(arg)
					if err != nil {
						return "invalid client id: " + arg
					}
					target = uint32(n)
				}
				if err := source.TriggerMigrateHost(target); err != nil {
					return "migration failed: " + err.Error()
				}
				return "migration requested"
			},
		})
		go admin.Run()
	}

	acceptLoop(server, relay, trail, sugar)
}

// driveSynchronously flushes and drains conn on a fixed tick when
// cfg.Threaded is false, since a standalone binary has no game-engine
// frame loop of its own to call Send/Receive from.
func driveSynchronously(conn *session.Connection, cfg session.Config) {
	interval := cfg.ThreadUpdateDelta()
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		conn.Receive()
		conn.Send()
	}
}

func acceptLoop(server *session.ServerBuffer, relay *session.RelayBuffer, trail *audit.Trail, sugar *zap.SugaredLogger) {
	tcpLn := server.Listener()
	for {
		conn, err := tcpLn.Accept()
		if err != nil {
			sugar.Warnw("accept failed", "error", err)
			continue
		}
		go handleStream(server, relay, trail, conn, sugar)
	}
}

func handleStream(server *session.ServerBuffer, relay *session.RelayBuffer, trail *audit.Trail, conn net.Conn, sugar *zap.SugaredLogger) {
	remoteIP := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(remoteIP)
	if err != nil {
		host = remoteIP
	}
	becomesAuthority, reject := relay.EvaluateHostSelection(host)
	if reject {
		conn.Close()
		return
	}

	rec, assignment, ok := server.AdmitStream(conn)
	if !ok {
		conn.Close()
		return
	}

	if becomesAuthority {
		relay.AssignAuthority(rec.Id)
		assignment.AuthorityId = rec.Id
	}

	if err := trail.Record(audit.EventAdmitted, uint32(rec.Id), remoteIP, ""); err != nil {
		sugar.Warnw("audit record failed", "error", err)
	}

	if err := server.CompleteAdmission(rec, assignment); err != nil {
		sugar.Warnw("admission failed", "client_id", uint32(rec.Id), "error", err)
		server.DisconnectClient(rec.Id)
	}
}

type relayStatusSource struct {
	relay *session.RelayBuffer
}

func (s *relayStatusSource) ClientRows() []console.ClientRow {
	authority := s.relay.Authority()
	var rows []console.ClientRow
	for _, rec := range s.relay.ClientsSnapshot() {
		rows = append(rows, console.ClientRow{
			Id:          uint32(rec.Id),
			RemoteAddr:  remoteAddrString(rec),
			IsAuthority: rec.Id == authority,
		})
	}
	return rows
}

func (s *relayStatusSource) AuthorityLabel() string {
	authority := s.relay.Authority()
	if authority.IsNone() {
		return "unassigned"
	}
	return strconv.FormatUint(uint64(authority), 10)
}

func (s *relayStatusSource) TriggerMigrateHost(targetId uint32) error {
	return s.relay.MigrateHost(wire.ClientId(targetId))
}

func (s *relayStatusSource) RunCommand(name, arg string) error {
	return nil
}

func remoteAddrString(rec *session.ClientRecord) string {
	if rec.UdpAddr != nil {
		return rec.UdpAddr.String()
	}
	return ""
}
