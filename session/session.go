// Package session implements the ITv2 session engine: the handshake
// state machine, sequence management, transaction correlation, the
// reconnection quiet-gate, heartbeat, and lifecycle.
//
// A session owns its transport, its encryption handler, and its pending
// receiver list. One receive pump feeds command correlation and the
// notification channel; sends are serialized through a single mutex
// covering sequence mutation and the wire write, with response awaits
// outside it.
package session

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/panellink/itv2"
	"github.com/opd-ai/panellink/message"
	"github.com/opd-ai/panellink/pcrypto"
	"github.com/opd-ai/panellink/perr"
	"github.com/opd-ai/panellink/tlink"
	"github.com/opd-ai/panellink/wire"
)

// State is the session lifecycle phase.
type State uint8

const (
	StateUninit State = iota
	StateWaitingForOpenSession
	StateWaitingForRequestAccess
	StateConnected
	StateClosed
)

// Config carries the per-session settings.
type Config struct {
	// Type1AccessCode seeds Type1 key derivation.
	Type1AccessCode []byte
	// Type2AccessCode seeds Type2 key derivation.
	Type2AccessCode []byte
	// QuietGate is the inbound silence window required before the first
	// outbound command.
	QuietGate time.Duration
	// HeartbeatInterval is the ConnectionPoll cadence. The panel drops
	// the link after 120s of silence.
	HeartbeatInterval time.Duration
	// CommandResponseTimeout bounds the wait for a transaction to
	// complete.
	CommandResponseTimeout time.Duration
	// Extractor overrides the TLink packet boundary policy. Defaults to
	// the delimiter-scanning codec.
	Extractor tlink.Extractor
}

func (c *Config) applyDefaults() {
	if c.QuietGate == 0 {
		c.QuietGate = 2 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 100 * time.Second
	}
	if c.CommandResponseTimeout == 0 {
		c.CommandResponseTimeout = 60 * time.Second
	}
	if c.Extractor == nil {
		c.Extractor = tlink.Codec{}
	}
}

// Session is one connected panel link.
type Session struct {
	cfg       Config
	transport io.ReadWriteCloser
	reader    *tlink.StreamReader

	sessionID string
	header    []byte // default TLink header, captured from the first inbound packet

	ctx    context.Context
	cancel context.CancelFunc

	crypto     pcrypto.Handler
	encryptOut bool
	encryptIn  bool

	sendMu   sync.Mutex // guards localSeq, cmdSeq, receiver registration, packet emission
	writeMu  sync.Mutex // guards the transport write itself
	localSeq byte
	cmdSeq   byte

	remoteSeq atomic.Uint32 // written by the handshake, then by the pump only

	receivers     *receiverList
	notifications chan wire.Message
	gate          *quietGate

	state       atomic.Uint32
	disposeOnce sync.Once
	pumpDone    chan struct{}
}

// Create performs the four-step handshake over transport and returns a
// connected session. On any deviation the transport is closed and the
// session discarded.
func Create(ctx context.Context, transport io.ReadWriteCloser, cfg Config) (*Session, error) {
	cfg.applyDefaults()
	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:           cfg,
		transport:     transport,
		reader:        tlink.NewStreamReader(transport, cfg.Extractor),
		ctx:           sctx,
		cancel:        cancel,
		localSeq:      1,
		receivers:     newReceiverList(),
		notifications: make(chan wire.Message),
		pumpDone:      make(chan struct{}),
	}
	s.state.Store(uint32(StateWaitingForOpenSession))

	// Abort blocking handshake reads if the caller gives up.
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			transport.Close()
		case <-handshakeDone:
		}
	}()

	err := s.handshake()
	close(handshakeDone)
	if err != nil {
		s.state.Store(uint32(StateClosed))
		cancel()
		transport.Close()
		if ctx.Err() != nil {
			return nil, perr.Wrap(perr.Cancelled, ctx.Err(), "handshake cancelled")
		}
		return nil, err
	}

	s.state.Store(uint32(StateConnected))
	s.gate = newQuietGate(cfg.QuietGate)
	go s.pump()
	go s.heartbeat()

	logrus.WithFields(logrus.Fields{
		"function":   "session.Create",
		"session_id": s.sessionID,
	}).Info("session connected")
	return s, nil
}

// SessionID is the UTF-8 decoding of the captured TLink header.
func (s *Session) SessionID() string {
	return s.sessionID
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Notifications returns the inbound notification stream. It is consumed
// by exactly one reader and is closed when the session ends.
func (s *Session) Notifications() <-chan wire.Message {
	return s.notifications
}

// Send transmits one message and waits for its completion: the matching
// command message for a command, the SimpleAck for a notification (nil
// response). Sends wait for the quiet-gate; many may await responses
// concurrently but only one is on the wire at a time.
func (s *Session) Send(ctx context.Context, msg wire.Message) (wire.Message, error) {
	select {
	case <-s.gate.Open():
	case <-ctx.Done():
		return nil, perr.Wrap(perr.Cancelled, ctx.Err(), "cancelled before quiet-gate opened")
	case <-s.ctx.Done():
		return nil, perr.New(perr.Cancelled, "session disposed")
	case <-s.pumpDone:
		return nil, perr.New(perr.Disconnected, "session ended")
	}

	s.sendMu.Lock()
	s.localSeq++
	senderSeq := s.localSeq
	var rcv *pendingReceiver
	if cm, ok := msg.(wire.CommandMessage); ok {
		s.cmdSeq++
		cm.SetCommandSeq(s.cmdSeq)
		rcv = s.receivers.AddCommand(senderSeq, s.cmdSeq)
	} else {
		rcv = s.receivers.AddNotification(senderSeq)
	}
	pkt := &itv2.Packet{
		SenderSequence:   senderSeq,
		ReceiverSequence: byte(s.remoteSeq.Load()),
		Message:          msg,
	}
	err := s.writePacket(pkt)
	s.sendMu.Unlock()

	if err != nil {
		s.receivers.Remove(rcv.id)
		return nil, err
	}

	timer := time.NewTimer(s.cfg.CommandResponseTimeout)
	defer timer.Stop()
	select {
	case res := <-rcv.done:
		return res.msg, res.err
	case <-ctx.Done():
		s.receivers.Remove(rcv.id)
		return nil, perr.Wrap(perr.Cancelled, ctx.Err(), "send cancelled")
	case <-s.ctx.Done():
		s.receivers.Remove(rcv.id)
		return drainOr(rcv, perr.New(perr.Cancelled, "session disposed"))
	case <-s.pumpDone:
		s.receivers.Remove(rcv.id)
		return drainOr(rcv, perr.New(perr.Disconnected, "session ended"))
	case <-timer.C:
		s.receivers.Remove(rcv.id)
		return nil, perr.New(perr.Timeout, "no completion for sender_seq=0x%02X within %s", senderSeq, s.cfg.CommandResponseTimeout)
	}
}

// drainOr prefers a completion that raced the shutdown signal over the
// shutdown error itself.
func drainOr(rcv *pendingReceiver, fallback error) (wire.Message, error) {
	select {
	case res := <-rcv.done:
		return res.msg, res.err
	default:
		return nil, fallback
	}
}

// Dispose shuts the session down: cancels every awaiting caller, cancels
// pending receivers, and closes the transport. The notification channel
// is closed when the pump exits. Safe to call more than once.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		s.state.Store(uint32(StateClosed))
		s.cancel()
		if s.gate != nil {
			s.gate.Stop()
		}
		s.receivers.CancelAll(perr.New(perr.Cancelled, "session disposed"))
		s.transport.Close()
		logrus.WithFields(logrus.Fields{
			"function":   "Session.Dispose",
			"session_id": s.sessionID,
		}).Info("session disposed")
	})
}

// Done is closed when the receive pump has exited.
func (s *Session) Done() <-chan struct{} {
	return s.pumpDone
}

// heartbeat emits ConnectionPoll after the quiet-gate opens and on every
// interval after. A failed poll ends the loop; the pump observes the
// transport failure independently.
func (s *Session) heartbeat() {
	select {
	case <-s.gate.Open():
	case <-s.ctx.Done():
		return
	}
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.Send(s.ctx, &message.ConnectionPoll{}); err != nil {
				logrus.WithFields(logrus.Fields{
					"function":   "Session.heartbeat",
					"session_id": s.sessionID,
					"error":      err.Error(),
				}).Warn("heartbeat failed")
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}
