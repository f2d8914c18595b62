package server

import (
	"context"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/history"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/dmitrijs2005/clipsync/internal/server/dispatch"
	"github.com/dmitrijs2005/clipsync/internal/server/models"
	"github.com/dmitrijs2005/clipsync/internal/server/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct{}

func (stubAuth) Register(ctx context.Context, username, password string) (*models.User, error) {
	return &models.User{ID: "acc-" + username, Active: true}, nil
}
func (stubAuth) ValidateCredentials(ctx context.Context, username, password string) (*models.User, error) {
	if password != "pw" {
		return nil, common.ErrorUnauthorized
	}
	return &models.User{ID: "acc-" + username, Active: true}, nil
}
func (stubAuth) ValidateApiKey(ctx context.Context, token string) (*models.User, error) {
	return nil, common.ErrorUnauthorized
}
func (stubAuth) ValidateResumeToken(ctx context.Context, token string) (*models.User, error) {
	return nil, common.ErrorUnauthorized
}
func (stubAuth) IssueResumeToken(accountID string) (string, error) { return "resume", nil }

func newTestServer(timeout time.Duration) *Server {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	engine := history.NewEngine(history.NewMemoryStore(0), 0)
	d := dispatch.New(engine, stubAuth{}, session.NewRegistry(), nil, 0, "test", logger)
	return NewServer("127.0.0.1:0", d, logger, timeout)
}

func send(t *testing.T, conn net.Conn, p protocol.Payload) {
	t.Helper()
	env := protocol.NewEnvelope(p)
	env.Seq = 1
	data, err := protocol.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(conn, env.Kind(), data))
}

func recv(t *testing.T, conn net.Conn) *protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := protocol.ReadFrame(conn)
	require.NoError(t, err)
	env, err := protocol.Unmarshal(kind, data)
	require.NoError(t, err)
	return env
}

func TestHandleConn_ConnectHeartbeatDisconnect(t *testing.T) {
	s := newTestServer(time.Second)
	clientEnd, serverEnd := net.Pipe()
	defer clientEnd.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleConn(context.Background(), serverEnd)
	}()

	send(t, clientEnd, &protocol.ConnectPayload{DeviceID: "d1", DeviceName: "laptop"})
	env := recv(t, clientEnd)
	require.Equal(t, protocol.KindConnectAck, env.Kind())

	send(t, clientEnd, &protocol.HeartbeatPayload{})
	env = recv(t, clientEnd)
	assert.Equal(t, protocol.KindHeartbeatAck, env.Kind())

	send(t, clientEnd, &protocol.DisconnectPayload{Reason: "done"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection loop did not exit after disconnect")
	}
}

func TestHandleConn_FirstMessageMustBeConnect(t *testing.T) {
	s := newTestServer(time.Second)
	clientEnd, serverEnd := net.Pipe()
	defer clientEnd.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleConn(context.Background(), serverEnd)
	}()

	send(t, clientEnd, &protocol.HeartbeatPayload{})
	env := recv(t, clientEnd)
	p, ok := env.Payload.(*protocol.ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeProtocol, p.Code)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection loop did not exit after protocol violation")
	}
}

func TestHandleConn_SilentPeerIsForceClosed(t *testing.T) {
	s := newTestServer(100 * time.Millisecond)
	clientEnd, serverEnd := net.Pipe()
	defer clientEnd.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleConn(context.Background(), serverEnd)
	}()

	send(t, clientEnd, &protocol.ConnectPayload{DeviceID: "d1", DeviceName: "laptop"})
	env := recv(t, clientEnd)
	require.Equal(t, protocol.KindConnectAck, env.Kind())

	// Go silent. The server must drop the connection once the liveness
	// deadline passes, without writing anything first.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection loop did not exit for a silent peer")
	}

	require.NoError(t, clientEnd.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := protocol.ReadFrame(clientEnd)
	assert.Error(t, err, "server must not send a frame before force-closing")
}

func TestHandleConn_EOFEndsLoop(t *testing.T) {
	s := newTestServer(time.Second)
	clientEnd, serverEnd := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleConn(context.Background(), serverEnd)
	}()

	clientEnd.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection loop did not exit on EOF")
	}
}
