// Package panellink implements a server for the TLink/ITv2 alarm-panel
// wire protocol.
//
// The server accepts one long-lived TCP connection per panel, negotiates
// an encrypted ITv2 session through the fixed handshake, and exchanges
// typed command and notification messages for the life of the
// connection.
//
// Example:
//
//	srv, err := panellink.NewServer(settings, func(id string, msg wire.Message) {
//	    log.Printf("panel %s: %T", id, msg)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.ListenAndServe(); err != nil {
//	    log.Fatal(err)
//	}
package panellink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/panellink/config"
	"github.com/opd-ai/panellink/session"
	"github.com/opd-ai/panellink/wire"
)

// handshakeTimeout bounds session establishment per connection.
const handshakeTimeout = 30 * time.Second

// NotificationHandler receives every unsolicited message a panel sends.
type NotificationHandler func(sessionID string, msg wire.Message)

// Server accepts panel connections and owns the session registry.
type Server struct {
	settings config.Settings
	handler  NotificationHandler
	registry *Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server from validated settings. handler may be nil
// when the embedding application only issues commands.
func NewServer(settings config.Settings, handler NotificationHandler) (*Server, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		settings: settings,
		handler:  handler,
		registry: NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Registry exposes the live session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Send routes a message to the panel registered under sessionID.
func (s *Server) Send(ctx context.Context, sessionID string, msg wire.Message) (wire.Message, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Send(ctx, msg)
}

// ListenAndServe listens on the configured port and accepts panel
// connections until Shutdown. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.settings.ListenPort))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.settings.ListenPort, err)
	}
	return s.Serve(listener)
}

// Serve accepts panel connections on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Server.Serve",
		"addr":     listener.Addr().String(),
	}).Info("accepting panel connections")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"function": "Server.Serve",
				"error":    err.Error(),
			}).Warn("accept failed")
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs the handshake and then pumps notifications to
// the handler until the session ends.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	log := logrus.WithFields(logrus.Fields{
		"function": "Server.handleConnection",
		"remote":   conn.RemoteAddr().String(),
	})

	ctx, cancel := context.WithTimeout(s.ctx, handshakeTimeout)
	sess, err := session.Create(ctx, conn, s.sessionConfig())
	cancel()
	if err != nil {
		log.WithField("error", err.Error()).Warn("handshake failed")
		return
	}

	if prev := s.registry.Add(sess); prev != nil {
		log.WithField("session_id", sess.SessionID()).Info("replacing stale session")
		prev.Dispose()
	}
	defer func() {
		s.registry.Remove(sess)
		sess.Dispose()
	}()

	for msg := range sess.Notifications() {
		if s.handler != nil {
			s.handler(sess.SessionID(), msg)
		}
	}
	log.WithField("session_id", sess.SessionID()).Info("session ended")
}

// sessionConfig maps the file settings onto the per-session knobs.
func (s *Server) sessionConfig() session.Config {
	return session.Config{
		Type1AccessCode:        []byte(s.settings.Type1AccessCode),
		Type2AccessCode:        []byte(s.settings.Type2AccessCode),
		QuietGate:              time.Duration(s.settings.QuietGateMillis) * time.Millisecond,
		HeartbeatInterval:      time.Duration(s.settings.HeartbeatSeconds) * time.Second,
		CommandResponseTimeout: time.Duration(s.settings.CommandResponseTimeoutSeconds) * time.Second,
	}
}

// Shutdown stops accepting, disposes every session, and waits for the
// connection handlers to drain or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	s.registry.Range(func(sess *session.Session) {
		sess.Dispose()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
