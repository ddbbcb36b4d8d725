package itv2

import (
	"fmt"

	"github.com/opd-ai/panellink/perr"
	"github.com/opd-ai/panellink/wire"
)

// Packet is one ITv2 packet: the sequence byte pair plus an optional
// message. A packet with no message is a SimpleAck.
type Packet struct {
	SenderSequence   byte
	ReceiverSequence byte
	Message          wire.Message
}

// NewAck builds a SimpleAck packet.
func NewAck(sender, receiver byte) *Packet {
	return &Packet{SenderSequence: sender, ReceiverSequence: receiver}
}

// IsAck reports whether the packet is a SimpleAck.
func (p *Packet) IsAck() bool {
	return p.Message == nil
}

// String renders the packet for log lines.
func (p *Packet) String() string {
	if p.IsAck() {
		return fmt.Sprintf("SimpleAck(sender=0x%02X, receiver=0x%02X)", p.SenderSequence, p.ReceiverSequence)
	}
	return fmt.Sprintf("Packet(sender=0x%02X, receiver=0x%02X, command=0x%04X)",
		p.SenderSequence, p.ReceiverSequence, p.Message.CommandWord())
}

// EncodePacket serializes a packet: the two sequence bytes, then the
// message wire form when one is present.
func EncodePacket(p *Packet) ([]byte, error) {
	out := []byte{p.SenderSequence, p.ReceiverSequence}
	if p.Message == nil {
		return out, nil
	}
	body, err := wire.Encode(p.Message)
	if err != nil {
		return nil, fmt.Errorf("encoding packet message: %w", err)
	}
	return append(out, body...), nil
}

// DecodePacket parses packet bytes using the default message registry.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < 2 {
		return nil, perr.New(perr.PacketParseError, "packet shorter than sequence pair").WithPacket(data)
	}
	p := &Packet{SenderSequence: data[0], ReceiverSequence: data[1]}
	if len(data) == 2 {
		return p, nil
	}
	msg, err := wire.Decode(data[2:])
	if err != nil {
		return nil, err
	}
	p.Message = msg
	return p, nil
}
