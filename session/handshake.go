package session

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/panellink/itv2"
	"github.com/opd-ai/panellink/message"
	"github.com/opd-ai/panellink/pcrypto"
	"github.com/opd-ai/panellink/perr"
	"github.com/opd-ai/panellink/wire"
)

// handshake runs the fixed four-step session establishment. The panel
// initiates every time; the server mirrors. Step 3's response is the
// first encrypted outbound message, step 4's response the first encrypted
// inbound one.
func (s *Session) handshake() error {
	// Step 1: the panel opens its session. Its command sequence becomes
	// the shared counter; the TLink header of this packet becomes the
	// session identity.
	pkt, open, err := expect[*message.OpenSession](s)
	if err != nil {
		return err
	}
	s.remoteSeq.Store(uint32(pkt.SenderSequence))
	s.cmdSeq = open.CommandSeq()
	logrus.WithFields(logrus.Fields{
		"function":        "Session.handshake",
		"session_id":      s.sessionID,
		"encryption_type": open.EncryptionType,
		"device_id":       open.DeviceID,
	}).Debug("received OpenSession")

	if err := s.replyCommandResponse(open.CommandSeq()); err != nil {
		return err
	}
	if err := s.expectAck(); err != nil {
		return err
	}

	// Step 2: mirror OpenSession back as our own command transaction.
	mirror := &message.OpenSession{
		DeviceType:      open.DeviceType,
		DeviceID:        open.DeviceID,
		FirmwareVersion: open.FirmwareVersion,
		ProtocolVersion: open.ProtocolVersion,
		EncryptionType:  open.EncryptionType,
	}
	if err := s.sendHandshakeCommand(mirror); err != nil {
		return err
	}
	if err := s.receiveHandshakeResponse(); err != nil {
		return err
	}

	s.crypto, err = newHandler(open.EncryptionType, s.cfg)
	if err != nil {
		return err
	}
	s.state.Store(uint32(StateWaitingForRequestAccess))

	// Step 3: the panel requests access with its initializer. The
	// outbound key must be in place before the response goes out.
	pkt, access, err := expect[*message.RequestAccess](s)
	if err != nil {
		return err
	}
	s.remoteSeq.Store(uint32(pkt.SenderSequence))
	s.cmdSeq = access.CommandSeq()
	if err := s.crypto.ConfigureOutbound(access.Initializer); err != nil {
		return err
	}
	s.encryptOut = true
	if err := s.replyCommandResponse(access.CommandSeq()); err != nil {
		return err
	}
	// The panel's closing ack is still plaintext.
	if err := s.expectAck(); err != nil {
		return err
	}

	// Step 4: our access request. Everything after it arrives encrypted.
	initializer, err := s.crypto.ConfigureInbound()
	if err != nil {
		return err
	}
	if err := s.sendHandshakeCommand(&message.RequestAccess{Initializer: initializer}); err != nil {
		return err
	}
	s.encryptIn = true
	if err := s.receiveHandshakeResponse(); err != nil {
		return err
	}
	return nil
}

// sendHandshakeCommand emits one locally initiated command transaction
// during the handshake: both sequence counters advance.
func (s *Session) sendHandshakeCommand(msg wire.CommandMessage) error {
	s.localSeq++
	s.cmdSeq++
	msg.SetCommandSeq(s.cmdSeq)
	return s.writePacket(&itv2.Packet{
		SenderSequence:   s.localSeq,
		ReceiverSequence: byte(s.remoteSeq.Load()),
		Message:          msg,
	})
}

// receiveHandshakeResponse reads the CommandResponse closing our command
// transaction and acks it.
func (s *Session) receiveHandshakeResponse() error {
	pkt, resp, err := expect[*message.CommandResponse](s)
	if err != nil {
		return err
	}
	if resp.Rejected() {
		return perr.New(perr.UnexpectedResponse, "handshake rejected with code 0x%02X", resp.Code)
	}
	s.remoteSeq.Store(uint32(pkt.SenderSequence))
	return s.writePacket(itv2.NewAck(s.localSeq, pkt.SenderSequence))
}

// replyCommandResponse answers a panel-initiated command transaction
// without advancing the local sequence.
func (s *Session) replyCommandResponse(commandSeq byte) error {
	resp := &message.CommandResponse{Code: message.ResponseSuccess}
	resp.SetCommandSeq(commandSeq)
	return s.writePacket(&itv2.Packet{
		SenderSequence:   s.localSeq,
		ReceiverSequence: byte(s.remoteSeq.Load()),
		Message:          resp,
	})
}

// newHandler selects the encryption handler announced in OpenSession.
func newHandler(t message.EncryptionType, cfg Config) (pcrypto.Handler, error) {
	switch t {
	case message.EncryptionType1:
		return pcrypto.NewType1(cfg.Type1AccessCode), nil
	case message.EncryptionType2:
		return pcrypto.NewType2(cfg.Type2AccessCode), nil
	default:
		return nil, perr.New(perr.EncryptionError, "unsupported encryption type 0x%02X", uint8(t))
	}
}
