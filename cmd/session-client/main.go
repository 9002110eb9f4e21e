// Command session-client drives the two-phase admission handshake
// from the client role: repeated UDP ConnectionRequest datagrams
// until Accepted or the retry budget is exhausted, then a TCP stream
// connect to complete admission, grounded on the teacher's root
// multiserver.go connect flow and session.ClientBuffer's retry state
// machine.
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
	cfgPath := "config/session-client.yml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := session.LoadConfig(cfgPath)
	if err != nil {
		cfg = session.Defaults()
		cfg.Role = session.RoleClient
	}

	logger, _, err := logging.New("log", zapcore.InfoLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	trail, err := audit.Open("session-client")
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
	client := session.NewClientBuffer(cfg, pipeline, registry, spawner, pings)

	if err := client.Dial(); err != nil {
		sugar.Fatalw("dial failed", "error", err)
	}

	assignment, err := admit(client, cfg, sugar)
	if err != nil {
		trail.Record(audit.EventRejected, 0, cfg.ServerAddr, err.Error())
		sugar.Fatalw("admission failed", "error", err)
	}

	conn := session.NewConnection(client, cfg, registry, spawner, pings)
	sugar.Infow("session started", "run_id", conn.RunID.String(), "assigned_id", assignment.AssignedId)
	trail.Record(audit.EventAdmitted, uint32(assignment.AssignedId), cfg.ServerAddr, "")

	if err := conn.Start(context.Background(), nil); err != nil {
		sugar.Fatalw("connection worker failed", "error", err)
	}
	if !cfg.Threaded {
		go driveSynchronously(conn, cfg)
	}

	select {}
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

// admit drives the UDP ConnectionRequest retry loop and then the TCP
// handshake, per section 4.5.2. It returns the assignment carried by
// LocalClientConnected once CompleteHandshake has been called.
func admit(client *session.ClientBuffer, cfg session.Config, sugar *zap.SugaredLogger) (session.ClientIdAssignment, error) {
	sock := client.UdpConn()
	remote := client.RemoteAddr()
	respBuf := make([]byte, 64)

	for {
		if err := client.RecordAttempt(time.Now()); err != nil {
			return session.ClientIdAssignment{}, err
		}

		payload, err := session.EncodeConnectionRequest(client.BuildConnectionRequest())
		if err != nil {
			return session.ClientIdAssignment{}, err
		}
		if _, err := sock.WriteTo(payload, remote); err != nil {
			return session.ClientIdAssignment{}, err
		}

		sock.SetReadDeadline(time.Now().Add(cfg.ConnectionRequestRate()))
		n, _, err := sock.ReadFrom(respBuf)
		if err != nil {
			sugar.Warnw("connection request timed out, retrying", "error", err)
			continue
		}

		code, err := session.DecodeConnectionResponse(respBuf[:n])
		if err != nil {
			return session.ClientIdAssignment{}, err
		}
		if err := client.HandleAdmissionResponse(code); err != nil {
			return session.ClientIdAssignment{}, err
		}
		if code == session.HostAlreadyAssigned {
			sugar.Infow("host slot taken, retrying as regular client")
			continue
		}
		break
	}
	sock.SetReadDeadline(time.Time{})

	tcpAddr := net.JoinHostPort(cfg.ServerAddr, strconv.Itoa(cfg.TcpPort))
	tcpConn, err := net.Dial("tcp", tcpAddr)
	if err != nil {
		return session.ClientIdAssignment{}, err
	}

	assignment, err := client.ReadAssignment(tcpConn)
	if err != nil {
		tcpConn.Close()
		return session.ClientIdAssignment{}, err
	}
	client.CompleteHandshake(tcpConn, assignment)
	return assignment, nil
}
