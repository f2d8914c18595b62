// Package session tracks the per-connection protocol state on the relay:
// the lifecycle state machine, write serialization, outgoing sequence
// numbers and the registry used for same-account broadcast fan-out.
package session

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/google/uuid"
)

// State is the connection lifecycle state.
type State int32

const (
	StateUnconnected State = iota
	StateConnected
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one device connection. Writes are serialized by an internal
// mutex held only for the duration of a single frame write, so a reply to
// one message and a broadcast triggered by another never interleave.
type Session struct {
	id   string
	conn net.Conn

	state atomic.Int32
	seq   atomic.Uint64

	mu           sync.RWMutex
	accountID    string
	deviceID     string
	deviceName   string
	platform     string
	lastActivity time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func New(conn net.Conn) *Session {
	s := &Session{
		id:   uuid.NewString(),
		conn: conn,
	}
	s.state.Store(int32(StateUnconnected))
	s.Touch()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Conn() net.Conn { return s.conn }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) SetState(st State) { s.state.Store(int32(st)) }

// Connect records the device info from the handshake and moves the session
// to the connected state.
func (s *Session) Connect(deviceID, deviceName, platform string) {
	s.mu.Lock()
	s.deviceID = deviceID
	s.deviceName = deviceName
	s.platform = platform
	s.mu.Unlock()
	s.state.Store(int32(StateConnected))
}

// Authenticate binds the session to an account.
func (s *Session) Authenticate(accountID string) {
	s.mu.Lock()
	s.accountID = accountID
	s.mu.Unlock()
	s.state.Store(int32(StateAuthenticated))
}

// Logout drops the account binding and returns to the connected state.
func (s *Session) Logout() {
	s.mu.Lock()
	s.accountID = ""
	s.mu.Unlock()
	s.state.Store(int32(StateConnected))
}

func (s *Session) AccountID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountID
}

func (s *Session) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

func (s *Session) DeviceName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceName
}

// Touch records activity. Any inbound message counts, heartbeats included.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Send assigns the next outgoing sequence number, marshals the envelope and
// writes one frame. Safe for concurrent use.
func (s *Session) Send(env *protocol.Envelope) error {
	if s.State() == StateClosed {
		return net.ErrClosed
	}
	env.Seq = s.seq.Add(1)

	data, err := protocol.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Kind(), err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteFrame(s.conn, env.Kind(), data)
}

// Reply is shorthand for sending a freshly stamped payload.
func (s *Session) Reply(p protocol.Payload) error {
	return s.Send(protocol.NewEnvelope(p))
}

// Close moves the session to the closed state and closes the connection.
// Idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		err = s.conn.Close()
	})
	return err
}
