package session

import (
	"net"
	"testing"

	"github.com/duskproto/session/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAddr string

func (f fakeAddr) Network() string { return "tcp" }
func (f fakeAddr) String() string  { return string(f) }

type fakeConn struct {
	net.Conn
	remote net.Addr
}

func (f *fakeConn) RemoteAddr() net.Addr { return f.remote }

func TestHandleConnectionRequestHappyPathThenAdmitStream(t *testing.T) {
	server := newTestServerBuffer()

	remote := fakeAddr("203.0.113.5:40000")
	code := server.HandleConnectionRequest(ConnectionRequest{AppId: "APP", SessionId: "S1"}, remote)
	assert.Equal(t, Accepted, code)

	client, server2 := net.Pipe()
	defer client.Close()
	defer server2.Close()
	conn := &fakeConn{Conn: server2, remote: fakeAddr("203.0.113.5:40000")}

	rec, assignment, ok := server.AdmitStream(conn)
	require.True(t, ok)
	assert.Equal(t, wire.ClientId(1), rec.Id)
	assert.Equal(t, rec.Id, assignment.AssignedId)
	assert.True(t, assignment.AuthorityId.IsNone())
	assert.Equal(t, 4, assignment.MaxClients)
}

func TestAdmitStreamRejectsUnmatchedAddress(t *testing.T) {
	server := newTestServerBuffer()

	client, server2 := net.Pipe()
	defer client.Close()
	defer server2.Close()
	conn := &fakeConn{Conn: server2, remote: fakeAddr("198.51.100.9:1234")}

	_, _, ok := server.AdmitStream(conn)
	assert.False(t, ok)
}

func TestHandleConnectionRequestWrongApp(t *testing.T) {
	server := newTestServerBuffer()
	code := server.HandleConnectionRequest(ConnectionRequest{AppId: "WRONG", SessionId: "S1"}, fakeAddr("1.2.3.4:1"))
	assert.Equal(t, IncorrectAppId, code)
}
