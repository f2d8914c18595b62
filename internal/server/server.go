// Package server runs the relay: a framed TCP listener that feeds decoded
// envelopes to the dispatcher, plus the retention cleanup loop.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/dmitrijs2005/clipsync/internal/server/dispatch"
	"github.com/dmitrijs2005/clipsync/internal/server/session"
)

// Server accepts device connections and runs one read loop per connection.
type Server struct {
	address    string
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger
	// timeout bounds the silence tolerated between inbound messages.
	// Heartbeats keep a healthy but idle connection under it.
	timeout time.Duration

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
}

func NewServer(address string, d *dispatch.Dispatcher, l logging.Logger, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = protocol.ConnectionTimeout
	}
	return &Server{
		address:    address,
		dispatcher: d,
		logger:     l.With("module", "tcp_server"),
		timeout:    timeout,
		sessions:   map[*session.Session]struct{}{},
	}
}

// Run listens and serves until ctx is cancelled, then closes the listener
// and every open session.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping TCP server...")
		listen.Close()
		s.closeAll()
	}()

	s.logger.Info(ctx, "Starting TCP server", "address", s.address)

	var wg sync.WaitGroup
	for {
		conn, err := listen.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error(ctx, "accept failed", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	wg.Wait()
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	sess := session.New(conn)
	s.track(sess)

	logger := s.logger.With("session", sess.ID(), "remote", conn.RemoteAddr().String())
	logger.Debug(ctx, "connection opened")

	defer func() {
		s.dispatcher.Release(sess)
		s.untrack(sess)
		sess.Close()
		logger.Debug(ctx, "connection closed")
	}()

	for {
		// Every inbound message, heartbeats included, pushes the deadline out.
		if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return
		}

		kind, data, err := protocol.ReadFrame(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
			case isTimeout(err):
				logger.Info(ctx, "connection timed out")
			default:
				logger.Warn(ctx, "read failed", "error", err)
				sess.Reply(&protocol.ErrorPayload{Code: protocol.CodeProtocol, Message: err.Error()})
			}
			return
		}

		env, err := protocol.Unmarshal(kind, data)
		if err != nil {
			logger.Warn(ctx, "undecodable frame", "kind", kind, "error", err)
			sess.Reply(&protocol.ErrorPayload{Code: protocol.CodeProtocol, Message: "undecodable frame"})
			return
		}

		if err := s.dispatcher.Dispatch(ctx, sess, env); err != nil {
			return
		}
	}
}

func (s *Server) track(sess *session.Session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.Close()
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
