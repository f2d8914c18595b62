// Package conn implements the device side of the relay protocol: the
// framed TCP connection, the connect handshake, request/response pairing,
// the heartbeat loop and broadcast delivery.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
)

// Device identifies this installation to the relay.
type Device struct {
	ID       string
	Name     string
	Platform string
}

// BroadcastHandler receives entries pushed by the account's other devices.
type BroadcastHandler func(p *protocol.ClipboardBroadcastPayload)

// Client is a connection to the relay. Requests are paired with responses
// one at a time; broadcasts and heartbeat acks are routed off the reply
// path, so they never break the pairing.
type Client struct {
	address string
	device  Device
	version string
	logger  logging.Logger

	heartbeatInterval time.Duration
	requestTimeout    time.Duration

	onBroadcast BroadcastHandler

	mu      sync.Mutex
	conn    net.Conn
	stop    chan struct{}
	replies chan *protocol.Envelope

	writeMu sync.Mutex
	seq     atomic.Uint64

	// reqMu serializes request/response exchanges.
	reqMu sync.Mutex

	authMu      sync.Mutex
	accountID   string
	resumeToken string
}

// Option configures a Client.
type Option func(*Client)

func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

func WithBroadcastHandler(h BroadcastHandler) Option {
	return func(c *Client) { c.onBroadcast = h }
}

func NewClient(address string, device Device, version string, logger logging.Logger, opts ...Option) *Client {
	c := &Client{
		address:           address,
		device:            device,
		version:           version,
		logger:            logger.With("module", "relay_client"),
		heartbeatInterval: protocol.HeartbeatInterval,
		requestTimeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects, performs the handshake and starts the read and heartbeat
// loops.
func (c *Client) Dial(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.address, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.stop = make(chan struct{})
	c.replies = make(chan *protocol.Envelope, 1)
	c.mu.Unlock()

	go c.readLoop(conn)

	env, err := c.request(ctx, &protocol.ConnectPayload{
		ClientVersion: c.version,
		DeviceID:      c.device.ID,
		DeviceName:    c.device.Name,
		Platform:      c.device.Platform,
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	ack, ok := env.Payload.(*protocol.ConnectAckPayload)
	if !ok {
		c.Close()
		return fmt.Errorf("handshake: unexpected reply %s", env.Kind())
	}

	c.logger.Info(ctx, "connected", "server_version", ack.ServerVersion)

	go c.heartbeatLoop(conn)
	return nil
}

// Reconnect redials and, when a resume token is held, re-authenticates
// without user credentials.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Close()
	if err := c.Dial(ctx); err != nil {
		return err
	}

	c.authMu.Lock()
	token := c.resumeToken
	c.authMu.Unlock()
	if token == "" {
		return nil
	}

	_, err := c.Login(ctx, &protocol.AuthLoginPayload{ResumeToken: token})
	return err
}

// Close tears down the connection. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	close(c.stop)
	err := c.conn.Close()
	c.conn = nil
	return err
}

// AccountID returns the authenticated account, if any.
func (c *Client) AccountID() string {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.accountID
}

func (c *Client) readLoop(conn net.Conn) {
	c.mu.Lock()
	stop, replies := c.stop, c.replies
	c.mu.Unlock()

	for {
		kind, data, err := protocol.ReadFrame(conn)
		if err != nil {
			select {
			case <-stop:
			default:
				c.logger.Warn(context.Background(), "connection lost", "error", err)
			}
			close(replies)
			return
		}

		env, err := protocol.Unmarshal(kind, data)
		if err != nil {
			c.logger.Warn(context.Background(), "undecodable frame", "kind", kind, "error", err)
			continue
		}

		switch p := env.Payload.(type) {
		case *protocol.HeartbeatAckPayload:
			// keeps the reply path clean
		case *protocol.ClipboardBroadcastPayload:
			if c.onBroadcast != nil {
				c.onBroadcast(p)
			}
		default:
			select {
			case replies <- env:
			case <-stop:
				return
			}
		}
	}
}

func (c *Client) heartbeatLoop(conn net.Conn) {
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.send(conn, protocol.NewEnvelope(&protocol.HeartbeatPayload{})); err != nil {
				return
			}
		}
	}
}

func (c *Client) send(conn net.Conn, env *protocol.Envelope) error {
	env.Seq = c.seq.Add(1)
	data, err := protocol.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Kind(), err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteFrame(conn, env.Kind(), data)
}

// request sends one payload and waits for the next reply.
func (c *Client) request(ctx context.Context, p protocol.Payload) (*protocol.Envelope, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	c.mu.Lock()
	conn, replies := c.conn, c.replies
	c.mu.Unlock()
	if conn == nil {
		return nil, net.ErrClosed
	}

	if err := c.send(conn, protocol.NewEnvelope(p)); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case env, ok := <-replies:
		if !ok {
			return nil, net.ErrClosed
		}
		if errPayload, isErr := env.Payload.(*protocol.ErrorPayload); isErr {
			return nil, remoteError(errPayload)
		}
		return env, nil
	case <-timer.C:
		return nil, errors.New("request timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// remoteError converts an in-band error payload to a sentinel-wrapped error
// so callers can match with errors.Is.
func remoteError(p *protocol.ErrorPayload) error {
	var base error
	switch p.Code {
	case protocol.CodeAuth:
		base = common.ErrorUnauthorized
	case protocol.CodeValidation:
		base = common.ErrorValidation
	case protocol.CodeNotFound:
		base = common.ErrorNotFound
	default:
		base = common.ErrorInternal
	}
	return fmt.Errorf("%w: %s", base, p.Message)
}

// Register creates an account and authenticates the connection.
func (c *Client) Register(ctx context.Context, username, password string) (*protocol.AuthResponsePayload, error) {
	return c.authRequest(ctx, &protocol.AuthRegisterPayload{Username: username, Password: password})
}

// Login authenticates with credentials or a resume token.
func (c *Client) Login(ctx context.Context, p *protocol.AuthLoginPayload) (*protocol.AuthResponsePayload, error) {
	return c.authRequest(ctx, p)
}

// LoginWithApiKey authenticates with an API key.
func (c *Client) LoginWithApiKey(ctx context.Context, key string) (*protocol.AuthResponsePayload, error) {
	return c.authRequest(ctx, &protocol.AuthApiKeyPayload{Key: key})
}

func (c *Client) authRequest(ctx context.Context, p protocol.Payload) (*protocol.AuthResponsePayload, error) {
	env, err := c.request(ctx, p)
	if err != nil {
		return nil, err
	}
	resp, ok := env.Payload.(*protocol.AuthResponsePayload)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %s", env.Kind())
	}
	if !resp.Success {
		return resp, fmt.Errorf("%w: %s", common.ErrorUnauthorized, resp.Message)
	}

	c.authMu.Lock()
	c.accountID = resp.AccountID
	c.resumeToken = resp.ResumeToken
	c.authMu.Unlock()
	return resp, nil
}

// Logout drops the account binding. The relay sends no reply.
func (c *Client) Logout() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}

	c.authMu.Lock()
	c.accountID = ""
	c.resumeToken = ""
	c.authMu.Unlock()

	return c.send(conn, protocol.NewEnvelope(&protocol.AuthLogoutPayload{}))
}

// Push uploads one clipboard entry.
func (c *Client) Push(ctx context.Context, entry protocol.Entry) (*protocol.ClipboardPushAckPayload, error) {
	env, err := c.request(ctx, &protocol.ClipboardPushPayload{Entry: entry})
	if err != nil {
		return nil, err
	}
	ack, ok := env.Payload.(*protocol.ClipboardPushAckPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %s", env.Kind())
	}
	return ack, nil
}

// Pull fetches a page of history.
func (c *Client) Pull(ctx context.Context, limit, offset uint32, since time.Time) (*protocol.ClipboardHistoryPayload, error) {
	p := &protocol.ClipboardPullPayload{Limit: limit, Offset: offset}
	if !since.IsZero() {
		p.SinceMillis = since.UnixMilli()
	}
	env, err := c.request(ctx, p)
	if err != nil {
		return nil, err
	}
	hist, ok := env.Payload.(*protocol.ClipboardHistoryPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %s", env.Kind())
	}
	return hist, nil
}

// Search matches text entries by preview substring.
func (c *Client) Search(ctx context.Context, query string, limit uint32) (*protocol.ClipboardSearchResultPayload, error) {
	env, err := c.request(ctx, &protocol.ClipboardSearchPayload{Query: query, Limit: limit})
	if err != nil {
		return nil, err
	}
	res, ok := env.Payload.(*protocol.ClipboardSearchResultPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %s", env.Kind())
	}
	return res, nil
}

// MoveToTop bumps an entry to the head of the history.
func (c *Client) MoveToTop(ctx context.Context, id string) (*protocol.ClipboardMoveToTopAckPayload, error) {
	env, err := c.request(ctx, &protocol.ClipboardMoveToTopPayload{ID: id})
	if err != nil {
		return nil, err
	}
	ack, ok := env.Payload.(*protocol.ClipboardMoveToTopAckPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %s", env.Kind())
	}
	return ack, nil
}

// Delete removes an entry permanently.
func (c *Client) Delete(ctx context.Context, id string) error {
	env, err := c.request(ctx, &protocol.ClipboardDeletePayload{ID: id})
	if err != nil {
		return err
	}
	if _, ok := env.Payload.(*protocol.ClipboardDeleteAckPayload); !ok {
		return fmt.Errorf("unexpected reply %s", env.Kind())
	}
	return nil
}

// Disconnect tells the relay the client is leaving, then closes.
func (c *Client) Disconnect(reason string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = c.send(conn, protocol.NewEnvelope(&protocol.DisconnectPayload{Reason: reason}))
	}
	return c.Close()
}
