// Command session-server runs the authoritative server role,
// grounded on the teacher's root multiserver.go: load config, open
// the listen sockets, then loop accepting and admitting connections.
package main

import (
	"context"
	"net"
	"os"
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

	"github.com/benbjohnson/clock"
)

func main() {
	cfgPath := "config/session-server.yml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := session.LoadConfig(cfgPath)
	if err != nil {
		cfg = session.Defaults()
		cfg.Role = session.RoleServer
	}

	logger, _, err := logging.New("log", zapcore.InfoLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	trail, err := audit.Open("session-server")
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
	spawner := spawn.NewSpawner(spawn.NewTypeRegistry(), true)
	pings := ping.NewList(clock.New())

	server := session.NewServerBuffer(cfg, pipeline, registry, spawner, pings)
	if err := server.ListenAndServe(); err != nil {
		sugar.Fatal(err)
	}
	sugar.Infof("listening on %s tcp=%d udp=%d", cfg.ServerAddr, cfg.TcpPort, cfg.UdpPort)

	conn := session.NewConnection(server, cfg, registry, spawner, pings)
	sugar.Infow("session started", "run_id", conn.RunID.String())

	if err := conn.Start(context.Background(), nil); err != nil {
		sugar.Fatalw("connection worker failed", "error", err)
	}
	if !cfg.Threaded {
		go driveSynchronously(conn, cfg)
	}

	if cfg.AdminConsole {
		admin := console.NewAdmin(&serverStatusSource{server: server})
		go admin.Run()
	}

	acceptLoop(server, trail, sugar)
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

func acceptLoop(server *session.ServerBuffer, trail *audit.Trail, sugar *zap.SugaredLogger) {
	tcpLn := server.Listener()
	for {
		conn, err := tcpLn.Accept()
		if err != nil {
			sugar.Warnw("accept failed", "error", err)
			continue
		}
		go handleStream(server, trail, conn, sugar)
	}
}

func handleStream(server *session.ServerBuffer, trail *audit.Trail, conn net.Conn, sugar *zap.SugaredLogger) {
	rec, assignment, ok := server.AdmitStream(conn)
	if !ok {
		conn.Close()
		return
	}
	if err := trail.Record(audit.EventAdmitted, uint32(rec.Id), conn.RemoteAddr().String(), ""); err != nil {
		sugar.Warnw("audit record failed", "error", err)
	}
	if err := server.CompleteAdmission(rec, assignment); err != nil {
		sugar.Warnw("admission failed", "client_id", uint32(rec.Id), "error", err)
		server.DisconnectClient(rec.Id)
	}
}

type serverStatusSource struct {
	server *session.ServerBuffer
}

func (s *serverStatusSource) ClientRows() []console.ClientRow {
	var rows []console.ClientRow
	for _, rec := range s.server.ClientsSnapshot() {
		rows = append(rows, console.ClientRow{
			Id:         uint32(rec.Id),
			RemoteAddr: remoteAddrString(rec),
		})
	}
	return rows
}

func (s *serverStatusSource) AuthorityLabel() string { return "none (server)" }

func (s *serverStatusSource) TriggerMigrateHost(uint32) error {
	return session.ErrNotMigratable
}

func (s *serverStatusSource) RunCommand(name, arg string) error {
	return nil
}

func remoteAddrString(rec *session.ClientRecord) string {
	if rec.UdpAddr != nil {
		return rec.UdpAddr.String()
	}
	return ""
}
