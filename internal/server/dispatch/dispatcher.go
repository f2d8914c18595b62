// Package dispatch routes decoded protocol messages to the relay's
// services. It owns the state gate (which kinds a session may send in
// which lifecycle state) and the same-account broadcast fan-out.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/hashx"
	"github.com/dmitrijs2005/clipsync/internal/history"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/dmitrijs2005/clipsync/internal/server/blob"
	"github.com/dmitrijs2005/clipsync/internal/server/models"
	"github.com/dmitrijs2005/clipsync/internal/server/session"
)

// ErrCloseConnection tells the connection loop to stop reading and close.
// Returned after a fatal protocol violation or a clean disconnect.
var ErrCloseConnection = errors.New("close connection")

// Authenticator is the account service the dispatcher depends on.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	ValidateCredentials(ctx context.Context, username, password string) (*models.User, error)
	ValidateApiKey(ctx context.Context, token string) (*models.User, error)
	ValidateResumeToken(ctx context.Context, token string) (*models.User, error)
	IssueResumeToken(accountID string) (string, error)
}

// BlobStore offloads oversized entry content to object storage.
type BlobStore interface {
	Put(ctx context.Context, key string, content []byte) error
	PresignGet(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Dispatcher handles one decoded envelope at a time per session. Sends to
// sibling sessions happen on a snapshot, outside any registry lock.
type Dispatcher struct {
	engine   *history.Engine
	auth     Authenticator
	registry *session.Registry
	// blobs is optional; nil disables content offloading.
	blobs       BlobStore
	inlineLimit int
	version     string
	logger      logging.Logger
}

func New(engine *history.Engine, auth Authenticator, registry *session.Registry, blobs BlobStore, inlineLimit int, version string, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		engine:      engine,
		auth:        auth,
		registry:    registry,
		blobs:       blobs,
		inlineLimit: inlineLimit,
		version:     version,
		logger:      logger,
	}
}

// Dispatch processes one message. A non-nil error means the connection is
// beyond recovery and must be closed; recoverable failures are reported to
// the client in-band and return nil.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, env *protocol.Envelope) error {
	sess.Touch()

	kind := env.Kind()

	// The handshake must come first, exactly once.
	if sess.State() == session.StateUnconnected && kind != protocol.KindConnect {
		sess.Reply(&protocol.ErrorPayload{Code: protocol.CodeProtocol, Message: "expected connect"})
		return ErrCloseConnection
	}
	if sess.State() != session.StateUnconnected && kind == protocol.KindConnect {
		sess.Reply(&protocol.ErrorPayload{Code: protocol.CodeProtocol, Message: "already connected"})
		return ErrCloseConnection
	}

	switch p := env.Payload.(type) {
	case *protocol.ConnectPayload:
		return d.handleConnect(sess, p)
	case *protocol.DisconnectPayload:
		d.logger.Debug(ctx, "client disconnecting", "session", sess.ID(), "reason", p.Reason)
		return ErrCloseConnection
	case *protocol.HeartbeatPayload:
		return d.replyOrClose(sess, &protocol.HeartbeatAckPayload{})

	case *protocol.AuthRegisterPayload:
		return d.handleRegister(ctx, sess, p)
	case *protocol.AuthLoginPayload:
		return d.handleLogin(ctx, sess, p)
	case *protocol.AuthApiKeyPayload:
		return d.handleApiKey(ctx, sess, p)
	case *protocol.AuthLogoutPayload:
		d.handleLogout(sess)
		return nil

	case *protocol.ClipboardPushPayload:
		return d.withAccount(ctx, sess, func(accountID string) error {
			return d.handlePush(ctx, sess, accountID, p)
		})
	case *protocol.ClipboardPullPayload:
		return d.withAccount(ctx, sess, func(accountID string) error {
			return d.handlePull(ctx, sess, accountID, p)
		})
	case *protocol.ClipboardSearchPayload:
		return d.withAccount(ctx, sess, func(accountID string) error {
			return d.handleSearch(ctx, sess, accountID, p)
		})
	case *protocol.ClipboardMoveToTopPayload:
		return d.withAccount(ctx, sess, func(accountID string) error {
			return d.handleMoveToTop(ctx, sess, accountID, p)
		})
	case *protocol.ClipboardDeletePayload:
		return d.withAccount(ctx, sess, func(accountID string) error {
			return d.handleDelete(ctx, sess, accountID, p)
		})

	default:
		sess.Reply(&protocol.ErrorPayload{Code: protocol.CodeProtocol, Message: "unexpected message kind"})
		return ErrCloseConnection
	}
}

// Release detaches a closing session from the broadcast registry. The
// connection loop calls it exactly once on exit.
func (d *Dispatcher) Release(sess *session.Session) {
	if accountID := sess.AccountID(); accountID != "" {
		d.registry.Remove(accountID, sess)
	}
}

// withAccount gates clipboard operations on authentication. Unauthenticated
// attempts get an in-band auth error and keep the connection.
func (d *Dispatcher) withAccount(ctx context.Context, sess *session.Session, fn func(accountID string) error) error {
	if sess.State() != session.StateAuthenticated {
		return d.replyOrClose(sess, &protocol.ErrorPayload{Code: protocol.CodeAuth, Message: "authentication required"})
	}
	return fn(sess.AccountID())
}

func (d *Dispatcher) handleConnect(sess *session.Session, p *protocol.ConnectPayload) error {
	sess.Connect(p.DeviceID, p.DeviceName, p.Platform)
	return d.replyOrClose(sess, &protocol.ConnectAckPayload{
		ServerVersion: d.version,
		AuthRequired:  true,
	})
}

func (d *Dispatcher) handleRegister(ctx context.Context, sess *session.Session, p *protocol.AuthRegisterPayload) error {
	user, err := d.auth.Register(ctx, p.Username, p.Password)
	if err != nil {
		return d.replyAuthFailure(sess, err)
	}
	return d.finishAuth(ctx, sess, user)
}

func (d *Dispatcher) handleLogin(ctx context.Context, sess *session.Session, p *protocol.AuthLoginPayload) error {
	var (
		user *models.User
		err  error
	)
	if p.ResumeToken != "" {
		user, err = d.auth.ValidateResumeToken(ctx, p.ResumeToken)
	} else {
		user, err = d.auth.ValidateCredentials(ctx, p.Username, p.Password)
	}
	if err != nil {
		return d.replyAuthFailure(sess, err)
	}
	return d.finishAuth(ctx, sess, user)
}

func (d *Dispatcher) handleApiKey(ctx context.Context, sess *session.Session, p *protocol.AuthApiKeyPayload) error {
	user, err := d.auth.ValidateApiKey(ctx, p.Key)
	if err != nil {
		return d.replyAuthFailure(sess, err)
	}
	return d.finishAuth(ctx, sess, user)
}

// finishAuth binds the session to the account, registers it for broadcasts
// and replies with a resume token for fast reconnects.
func (d *Dispatcher) finishAuth(ctx context.Context, sess *session.Session, user *models.User) error {
	// Re-authentication replaces the previous binding.
	if prev := sess.AccountID(); prev != "" {
		d.registry.Remove(prev, sess)
	}

	sess.Authenticate(user.ID)
	d.registry.Add(sess)

	token, err := d.auth.IssueResumeToken(user.ID)
	if err != nil {
		d.logger.Error(ctx, "issue resume token", "error", err)
	}

	d.logger.Info(ctx, "session authenticated",
		"session", sess.ID(), "account", user.ID, "device", sess.DeviceID())

	return d.replyOrClose(sess, &protocol.AuthResponsePayload{
		Success:     true,
		AccountID:   user.ID,
		ResumeToken: token,
	})
}

func (d *Dispatcher) replyAuthFailure(sess *session.Session, err error) error {
	code := protocol.CodeAuth
	if errors.Is(err, common.ErrorValidation) || errors.Is(err, common.ErrUsernameTaken) {
		code = protocol.CodeValidation
	}
	return d.replyOrClose(sess, &protocol.AuthResponsePayload{
		Success: false,
		Code:    code,
		Message: err.Error(),
	})
}

func (d *Dispatcher) handleLogout(sess *session.Session) {
	if accountID := sess.AccountID(); accountID != "" {
		d.registry.Remove(accountID, sess)
	}
	sess.Logout()
}

func (d *Dispatcher) handlePush(ctx context.Context, sess *session.Session, accountID string, p *protocol.ClipboardPushPayload) error {
	entry := history.FromWire(&p.Entry, accountID)
	if entry.DeviceLabel == "" {
		entry.DeviceLabel = sess.DeviceName()
	}

	if err := d.offloadLarge(ctx, accountID, entry); err != nil {
		d.logger.Error(ctx, "content offload failed", "error", err)
		return d.replyOrClose(sess, &protocol.ErrorPayload{Code: protocol.CodeInternal, Message: "content offload failed"})
	}

	stored, deduplicated, err := d.engine.Push(ctx, entry)
	if err != nil {
		return d.replyOperationError(ctx, sess, err)
	}

	wire := d.toWire(ctx, stored)
	if err := d.replyOrClose(sess, &protocol.ClipboardPushAckPayload{
		Entry:        wire,
		Deduplicated: deduplicated,
	}); err != nil {
		return err
	}

	d.broadcast(ctx, sess, accountID, wire)
	return nil
}

// broadcast fans the stored entry out to the account's other devices. A
// failed send to one sibling never affects the others or the origin.
func (d *Dispatcher) broadcast(ctx context.Context, origin *session.Session, accountID string, entry protocol.Entry) {
	payload := &protocol.ClipboardBroadcastPayload{
		Entry:        entry,
		OriginDevice: origin.DeviceID(),
	}
	for _, sib := range d.registry.Siblings(accountID, origin) {
		if err := sib.Reply(payload); err != nil {
			d.logger.Debug(ctx, "broadcast send failed",
				"session", sib.ID(), "error", err)
		}
	}
}

func (d *Dispatcher) handlePull(ctx context.Context, sess *session.Session, accountID string, p *protocol.ClipboardPullPayload) error {
	var since time.Time
	if p.SinceMillis > 0 {
		since = time.UnixMilli(p.SinceMillis).UTC()
	}

	entries, hasMore, total, err := d.engine.Pull(ctx, accountID, int(p.Limit), int(p.Offset), since)
	if err != nil {
		return d.replyOperationError(ctx, sess, err)
	}

	return d.replyOrClose(sess, &protocol.ClipboardHistoryPayload{
		Entries:    d.toWireAll(ctx, entries),
		HasMore:    hasMore,
		TotalCount: uint32(total),
	})
}

func (d *Dispatcher) handleSearch(ctx context.Context, sess *session.Session, accountID string, p *protocol.ClipboardSearchPayload) error {
	entries, totalMatches, hasMore, err := d.engine.Search(ctx, accountID, p.Query, int(p.Limit))
	if err != nil {
		return d.replyOperationError(ctx, sess, err)
	}

	return d.replyOrClose(sess, &protocol.ClipboardSearchResultPayload{
		Entries:      d.toWireAll(ctx, entries),
		TotalMatches: uint32(totalMatches),
		HasMore:      hasMore,
	})
}

func (d *Dispatcher) handleMoveToTop(ctx context.Context, sess *session.Session, accountID string, p *protocol.ClipboardMoveToTopPayload) error {
	entry, err := d.engine.MoveToTop(ctx, accountID, p.ID)
	if err != nil {
		return d.replyOperationError(ctx, sess, err)
	}
	return d.replyOrClose(sess, &protocol.ClipboardMoveToTopAckPayload{
		ID:              entry.ID,
		CreatedAtMillis: entry.CreatedAt.UnixMilli(),
	})
}

func (d *Dispatcher) handleDelete(ctx context.Context, sess *session.Session, accountID string, p *protocol.ClipboardDeletePayload) error {
	if err := d.engine.Delete(ctx, accountID, p.ID); err != nil {
		return d.replyOperationError(ctx, sess, err)
	}
	return d.replyOrClose(sess, &protocol.ClipboardDeleteAckPayload{ID: p.ID})
}

// offloadLarge moves content above the inline threshold into object
// storage, leaving only the storage key on the entry. Hash and preview are
// derived first so identity is unaffected by the move.
func (d *Dispatcher) offloadLarge(ctx context.Context, accountID string, entry *history.Entry) error {
	if d.blobs == nil || d.inlineLimit <= 0 || len(entry.Content) <= d.inlineLimit {
		return nil
	}

	if entry.ContentHash == "" {
		entry.ContentHash = hashx.ContentHash(entry.Content)
	}
	if entry.Preview == "" {
		switch entry.Kind {
		case history.KindText:
			entry.Preview = hashx.TextPreview(entry.Content)
		case history.KindImage:
			entry.Preview = hashx.BinaryPreview("Image", len(entry.Content))
		default:
			entry.Preview = hashx.BinaryPreview("File", len(entry.Content))
		}
	}

	key := blob.RandomKey(accountID)
	if err := d.blobs.Put(ctx, key, entry.Content); err != nil {
		return err
	}
	entry.StorageKey = key
	entry.Content = nil
	return nil
}

// toWire converts a stored entry for the wire, attaching a presigned
// download URL when the content lives in object storage.
func (d *Dispatcher) toWire(ctx context.Context, e *history.Entry) protocol.Entry {
	w := history.ToWire(e)
	if e.StorageKey != "" && d.blobs != nil {
		url, err := d.blobs.PresignGet(ctx, e.StorageKey)
		if err != nil {
			d.logger.Error(ctx, "presign content url", "key", e.StorageKey, "error", err)
		} else {
			w.ContentURL = url
		}
	}
	return w
}

func (d *Dispatcher) toWireAll(ctx context.Context, entries []*history.Entry) []protocol.Entry {
	out := make([]protocol.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, d.toWire(ctx, e))
	}
	return out
}

// replyOperationError reports a failed clipboard operation in-band.
func (d *Dispatcher) replyOperationError(ctx context.Context, sess *session.Session, err error) error {
	code := protocol.CodeInternal
	switch {
	case errors.Is(err, common.ErrorValidation):
		code = protocol.CodeValidation
	case errors.Is(err, common.ErrorNotFound):
		code = protocol.CodeNotFound
	case errors.Is(err, common.ErrorUnauthorized):
		code = protocol.CodeAuth
	}
	if code == protocol.CodeInternal {
		d.logger.Error(ctx, "operation failed", "session", sess.ID(), "error", err)
	}
	return d.replyOrClose(sess, &protocol.ErrorPayload{Code: code, Message: err.Error()})
}

// replyOrClose sends a payload; a write failure makes the connection
// unusable, so the loop is told to close it.
func (d *Dispatcher) replyOrClose(sess *session.Session, p protocol.Payload) error {
	if err := sess.Reply(p); err != nil {
		return ErrCloseConnection
	}
	return nil
}
