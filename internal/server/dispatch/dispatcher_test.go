package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/history"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/dmitrijs2005/clipsync/internal/server/models"
	"github.com/dmitrijs2005/clipsync/internal/server/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct{}

func (f *fakeAuth) Register(ctx context.Context, username, password string) (*models.User, error) {
	if len(username) < 3 {
		return nil, fmt.Errorf("%w: username too short", common.ErrorValidation)
	}
	if username == "taken" {
		return nil, common.ErrUsernameTaken
	}
	return &models.User{ID: "acc-" + username, Username: username, Active: true}, nil
}

func (f *fakeAuth) ValidateCredentials(ctx context.Context, username, password string) (*models.User, error) {
	if password != "correct-password" {
		return nil, common.ErrorUnauthorized
	}
	return &models.User{ID: "acc-" + username, Username: username, Active: true}, nil
}

func (f *fakeAuth) ValidateApiKey(ctx context.Context, token string) (*models.User, error) {
	if !strings.HasPrefix(token, "csk") {
		return nil, common.ErrorUnauthorized
	}
	return &models.User{ID: "acc-key", Active: true}, nil
}

func (f *fakeAuth) ValidateResumeToken(ctx context.Context, token string) (*models.User, error) {
	id, ok := strings.CutPrefix(token, "resume-")
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return &models.User{ID: id, Active: true}, nil
}

func (f *fakeAuth) IssueResumeToken(accountID string) (string, error) {
	return "resume-" + accountID, nil
}

type testClient struct {
	sess *session.Session
	conn net.Conn
	in   chan *protocol.Envelope
}

// newClient wires a net.Pipe session with a reader goroutine draining
// server-to-client frames into a channel.
func newClient(t *testing.T) *testClient {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	tc := &testClient{
		sess: session.New(serverEnd),
		conn: clientEnd,
		in:   make(chan *protocol.Envelope, 16),
	}
	go func() {
		for {
			kind, data, err := protocol.ReadFrame(clientEnd)
			if err != nil {
				close(tc.in)
				return
			}
			env, err := protocol.Unmarshal(kind, data)
			if err != nil {
				close(tc.in)
				return
			}
			tc.in <- env
		}
	}()
	t.Cleanup(func() {
		tc.sess.Close()
		clientEnd.Close()
	})
	return tc
}

func (tc *testClient) recv(t *testing.T) *protocol.Envelope {
	t.Helper()
	select {
	case env, ok := <-tc.in:
		if !ok {
			t.Fatal("connection closed while waiting for a message")
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func (tc *testClient) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case env := <-tc.in:
		t.Fatalf("unexpected message: %s", env.Kind())
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	d      *Dispatcher
	store  *history.MemoryStore
	engine *history.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := history.NewMemoryStore(0)
	engine := history.NewEngine(store, 0)
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	d := New(engine, &fakeAuth{}, session.NewRegistry(), nil, 0, "test", logger)
	return &harness{d: d, store: store, engine: engine}
}

func (h *harness) dispatch(t *testing.T, tc *testClient, p protocol.Payload) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.d.Dispatch(context.Background(), tc.sess, protocol.NewEnvelope(p))
	}()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
		return nil
	}
}

func (h *harness) connect(t *testing.T, tc *testClient, deviceID string) {
	t.Helper()
	require.NoError(t, h.dispatch(t, tc, &protocol.ConnectPayload{
		ClientVersion: "test",
		DeviceID:      deviceID,
		DeviceName:    deviceID,
		Platform:      "test",
	}))
	env := tc.recv(t)
	require.Equal(t, protocol.KindConnectAck, env.Kind())
}

func (h *harness) login(t *testing.T, tc *testClient, username string) string {
	t.Helper()
	require.NoError(t, h.dispatch(t, tc, &protocol.AuthLoginPayload{
		Username: username,
		Password: "correct-password",
	}))
	env := tc.recv(t)
	resp, ok := env.Payload.(*protocol.AuthResponsePayload)
	require.True(t, ok, "want auth response, got %s", env.Kind())
	require.True(t, resp.Success)
	return resp.AccountID
}

func TestDispatcher_Handshake(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)

	require.NoError(t, h.dispatch(t, tc, &protocol.ConnectPayload{DeviceID: "d1"}))
	env := tc.recv(t)
	ack, ok := env.Payload.(*protocol.ConnectAckPayload)
	require.True(t, ok)
	assert.True(t, ack.AuthRequired)
	assert.Equal(t, "test", ack.ServerVersion)
	assert.Equal(t, session.StateConnected, tc.sess.State())
}

func TestDispatcher_MessageBeforeConnect(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)

	err := h.dispatch(t, tc, &protocol.HeartbeatPayload{})
	assert.ErrorIs(t, err, ErrCloseConnection)

	env := tc.recv(t)
	p, ok := env.Payload.(*protocol.ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeProtocol, p.Code)
}

func TestDispatcher_DuplicateConnect(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")

	err := h.dispatch(t, tc, &protocol.ConnectPayload{DeviceID: "d1"})
	assert.ErrorIs(t, err, ErrCloseConnection)
	tc.recv(t)
}

func TestDispatcher_Heartbeat(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")

	require.NoError(t, h.dispatch(t, tc, &protocol.HeartbeatPayload{}))
	env := tc.recv(t)
	assert.Equal(t, protocol.KindHeartbeatAck, env.Kind())
}

func TestDispatcher_PushBeforeAuth(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")

	err := h.dispatch(t, tc, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte("secret")},
	})
	require.NoError(t, err, "connection survives an unauthenticated push")

	env := tc.recv(t)
	p, ok := env.Payload.(*protocol.ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeAuth, p.Code)
	assert.Equal(t, 0, h.store.Len(), "nothing stored")
}

func TestDispatcher_LoginFailure(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")

	require.NoError(t, h.dispatch(t, tc, &protocol.AuthLoginPayload{Username: "alice", Password: "wrong"}))
	env := tc.recv(t)
	resp, ok := env.Payload.(*protocol.AuthResponsePayload)
	require.True(t, ok)
	assert.False(t, resp.Success)
	assert.Equal(t, protocol.CodeAuth, resp.Code)
	assert.Equal(t, session.StateConnected, tc.sess.State())
}

func TestDispatcher_RegisterValidationFailure(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")

	require.NoError(t, h.dispatch(t, tc, &protocol.AuthRegisterPayload{Username: "ab", Password: "p"}))
	resp := tc.recv(t).Payload.(*protocol.AuthResponsePayload)
	assert.False(t, resp.Success)
	assert.Equal(t, protocol.CodeValidation, resp.Code)
}

func TestDispatcher_LoginIssuesResumeToken(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")

	require.NoError(t, h.dispatch(t, tc, &protocol.AuthLoginPayload{Username: "alice", Password: "correct-password"}))
	resp := tc.recv(t).Payload.(*protocol.AuthResponsePayload)
	require.True(t, resp.Success)
	assert.Equal(t, "acc-alice", resp.AccountID)
	assert.Equal(t, "resume-acc-alice", resp.ResumeToken)
	assert.Equal(t, session.StateAuthenticated, tc.sess.State())

	// resume token works for a fresh connection
	tc2 := newClient(t)
	h.connect(t, tc2, "d2")
	require.NoError(t, h.dispatch(t, tc2, &protocol.AuthLoginPayload{ResumeToken: resp.ResumeToken}))
	resp2 := tc2.recv(t).Payload.(*protocol.AuthResponsePayload)
	require.True(t, resp2.Success)
	assert.Equal(t, "acc-alice", resp2.AccountID)
}

func TestDispatcher_PushAckAndDedup(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")
	h.login(t, tc, "alice")

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte("hello world")},
	}))
	ack := tc.recv(t).Payload.(*protocol.ClipboardPushAckPayload)
	assert.False(t, ack.Deduplicated)
	assert.NotEmpty(t, ack.Entry.ID)
	assert.NotEmpty(t, ack.Entry.ContentHash)
	assert.Equal(t, "hello world", ack.Entry.Preview)

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte("hello world")},
	}))
	ack2 := tc.recv(t).Payload.(*protocol.ClipboardPushAckPayload)
	assert.True(t, ack2.Deduplicated)
	assert.Equal(t, ack.Entry.ID, ack2.Entry.ID, "duplicate keeps the original identity")
	assert.Equal(t, 1, h.store.Len())
}

func TestDispatcher_PushEmptyContent(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")
	h.login(t, tc, "alice")

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindText},
	}))
	p := tc.recv(t).Payload.(*protocol.ErrorPayload)
	assert.Equal(t, protocol.CodeValidation, p.Code)
}

func TestDispatcher_BroadcastReachesSiblingsOnly(t *testing.T) {
	h := newHarness(t)

	d1 := newClient(t)
	h.connect(t, d1, "laptop")
	h.login(t, d1, "alice")

	d2 := newClient(t)
	h.connect(t, d2, "phone")
	h.login(t, d2, "alice")

	d3 := newClient(t)
	h.connect(t, d3, "other")
	h.login(t, d3, "bob")

	require.NoError(t, h.dispatch(t, d1, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte("shared")},
	}))

	ack := d1.recv(t)
	require.Equal(t, protocol.KindClipboardPushAck, ack.Kind())

	bcast := d2.recv(t)
	require.Equal(t, protocol.KindClipboardBroadcast, bcast.Kind())
	p := bcast.Payload.(*protocol.ClipboardBroadcastPayload)
	assert.Equal(t, "laptop", p.OriginDevice)
	assert.Equal(t, []byte("shared"), p.Entry.Content)

	d1.expectSilence(t)
	d3.expectSilence(t)
}

func TestDispatcher_PullPagination(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")
	h.login(t, tc, "alice")

	for i := 0; i < 5; i++ {
		require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPushPayload{
			Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte(fmt.Sprintf("item %d", i))},
		}))
		tc.recv(t)
	}

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPullPayload{Limit: 2}))
	hist := tc.recv(t).Payload.(*protocol.ClipboardHistoryPayload)
	assert.Len(t, hist.Entries, 2)
	assert.True(t, hist.HasMore)
	assert.Equal(t, uint32(5), hist.TotalCount)

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPullPayload{Limit: 2, Offset: 4}))
	hist = tc.recv(t).Payload.(*protocol.ClipboardHistoryPayload)
	assert.Len(t, hist.Entries, 1)
	assert.False(t, hist.HasMore)
}

func TestDispatcher_Search(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")
	h.login(t, tc, "alice")

	for _, text := range []string{"meeting notes", "shopping list", "NOTES backup"} {
		require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPushPayload{
			Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte(text)},
		}))
		tc.recv(t)
	}

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardSearchPayload{Query: "notes", Limit: 10}))
	res := tc.recv(t).Payload.(*protocol.ClipboardSearchResultPayload)
	assert.Equal(t, uint32(2), res.TotalMatches)
	assert.Len(t, res.Entries, 2)
}

func TestDispatcher_MoveToTopAndDelete(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")
	h.login(t, tc, "alice")

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte("x")},
	}))
	id := tc.recv(t).Payload.(*protocol.ClipboardPushAckPayload).Entry.ID

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardMoveToTopPayload{ID: id}))
	mv := tc.recv(t).Payload.(*protocol.ClipboardMoveToTopAckPayload)
	assert.Equal(t, id, mv.ID)
	assert.NotZero(t, mv.CreatedAtMillis)

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardDeletePayload{ID: id}))
	del := tc.recv(t).Payload.(*protocol.ClipboardDeleteAckPayload)
	assert.Equal(t, id, del.ID)

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardDeletePayload{ID: id}))
	e := tc.recv(t).Payload.(*protocol.ErrorPayload)
	assert.Equal(t, protocol.CodeNotFound, e.Code)
}

func TestDispatcher_LogoutStopsBroadcastsAndOps(t *testing.T) {
	h := newHarness(t)

	d1 := newClient(t)
	h.connect(t, d1, "laptop")
	h.login(t, d1, "alice")

	d2 := newClient(t)
	h.connect(t, d2, "phone")
	h.login(t, d2, "alice")

	require.NoError(t, h.dispatch(t, d2, &protocol.AuthLogoutPayload{}))
	assert.Equal(t, session.StateConnected, d2.sess.State())

	require.NoError(t, h.dispatch(t, d1, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte("post-logout")},
	}))
	d1.recv(t)
	d2.expectSilence(t)

	require.NoError(t, h.dispatch(t, d2, &protocol.ClipboardPullPayload{}))
	p := d2.recv(t).Payload.(*protocol.ErrorPayload)
	assert.Equal(t, protocol.CodeAuth, p.Code)
}

func TestDispatcher_ReleaseRemovesFromRegistry(t *testing.T) {
	h := newHarness(t)

	d1 := newClient(t)
	h.connect(t, d1, "laptop")
	h.login(t, d1, "alice")

	d2 := newClient(t)
	h.connect(t, d2, "phone")
	h.login(t, d2, "alice")

	h.d.Release(d2.sess)
	d2.sess.Close()

	require.NoError(t, h.dispatch(t, d1, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte("after release")},
	}))
	d1.recv(t)
}

func TestDispatcher_Disconnect(t *testing.T) {
	h := newHarness(t)
	tc := newClient(t)
	h.connect(t, tc, "d1")

	err := h.dispatch(t, tc, &protocol.DisconnectPayload{Reason: "bye"})
	assert.ErrorIs(t, err, ErrCloseConnection)
}
