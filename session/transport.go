package session

import (
	"fmt"

	"github.com/opd-ai/panellink/itv2"
	"github.com/opd-ai/panellink/perr"
	"github.com/opd-ai/panellink/tlink"
)

// readPacket pulls one TLink packet off the stream, decrypts when inbound
// encryption is active, strips the ITv2 envelope, and parses the packet.
// The first packet's header becomes the default header and session ID.
func (s *Session) readPacket() (*itv2.Packet, error) {
	raw, err := s.reader.Next()
	if err != nil {
		return nil, err
	}
	header, payload, err := tlink.ParseFrame(raw)
	if err != nil {
		return nil, err
	}
	if s.header == nil {
		s.header = header
		s.sessionID = string(header)
	}
	if s.encryptIn {
		payload, err = s.crypto.DecryptInbound(payload)
		if err != nil {
			return nil, err
		}
	}
	data, err := itv2.RemoveFraming(payload)
	if err != nil {
		return nil, err
	}
	return itv2.DecodePacket(data)
}

// writePacket serializes, frames, optionally encrypts, and emits one
// packet under the default header.
func (s *Session) writePacket(pkt *itv2.Packet) error {
	data, err := itv2.EncodePacket(pkt)
	if err != nil {
		return err
	}
	framed, err := itv2.AddFraming(data)
	if err != nil {
		return err
	}
	if s.encryptOut {
		framed, err = s.crypto.EncryptOutbound(framed)
		if err != nil {
			return err
		}
	}
	out := tlink.EncodeFrame(s.header, framed)

	s.writeMu.Lock()
	_, werr := s.transport.Write(out)
	s.writeMu.Unlock()
	if werr != nil {
		return perr.Wrap(perr.Disconnected, werr, "transport write failed")
	}
	return nil
}

// sendAck emits the SimpleAck closing the inbound transaction. Replies
// reuse the current local sequence without incrementing it.
func (s *Session) sendAck(inboundSender byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.writePacket(itv2.NewAck(s.localSeq, inboundSender))
}

// expect reads one packet and asserts the message type of its payload.
// Used only during the handshake, where any deviation is fatal.
func expect[T any](s *Session) (*itv2.Packet, T, error) {
	var zero T
	pkt, err := s.readPacket()
	if err != nil {
		return nil, zero, err
	}
	msg, ok := pkt.Message.(T)
	if !ok {
		return nil, zero, perr.New(perr.UnexpectedResponse, "expected %T, got %s", zero, describe(pkt))
	}
	return pkt, msg, nil
}

// expectAck reads one packet and asserts it is a SimpleAck.
func (s *Session) expectAck() error {
	pkt, err := s.readPacket()
	if err != nil {
		return err
	}
	if !pkt.IsAck() {
		return perr.New(perr.UnexpectedResponse, "expected SimpleAck, got %s", describe(pkt))
	}
	return nil
}

func describe(pkt *itv2.Packet) string {
	if pkt.IsAck() {
		return "SimpleAck"
	}
	return fmt.Sprintf("%T", pkt.Message)
}
