package message

import (
	"encoding/binary"

	"github.com/opd-ai/panellink/perr"
	"github.com/opd-ai/panellink/wire"
)

// MultipleMessagePacket bundles several messages into one notification.
// At the protocol level it is a single transaction closed by one
// SimpleAck; the session expands and routes the contents individually.
//
// Body format: for each element, a two-byte big-endian length followed by
// the element's full wire form (command word, command sequence when the
// element is a command message, body), repeated to the end of the buffer.
type MultipleMessagePacket struct {
	Contents []wire.Message
}

// CommandWord implements wire.Message.
func (m *MultipleMessagePacket) CommandWord() uint16 { return WordMultipleMessage }

// MarshalWire implements wire.Marshaler.
func (m *MultipleMessagePacket) MarshalWire() ([]byte, error) {
	var out []byte
	for _, sub := range m.Contents {
		encoded, err := wire.Encode(sub)
		if err != nil {
			return nil, err
		}
		if len(encoded) > 0xFFFF {
			return nil, perr.New(perr.PacketParseError, "embedded message of %d bytes overflows its length prefix", len(encoded))
		}
		out = binary.BigEndian.AppendUint16(out, uint16(len(encoded)))
		out = append(out, encoded...)
	}
	return out, nil
}

// UnmarshalWire implements wire.Unmarshaler.
func (m *MultipleMessagePacket) UnmarshalWire(data []byte) error {
	m.Contents = nil
	for len(data) > 0 {
		if len(data) < 2 {
			return perr.New(perr.PacketParseError, "embedded message length truncated").WithPacket(data)
		}
		n := int(binary.BigEndian.Uint16(data))
		data = data[2:]
		if n > len(data) {
			return perr.New(perr.PacketParseError, "embedded message declares %d bytes, %d remain", n, len(data))
		}
		sub, err := wire.Decode(data[:n])
		if err != nil {
			return err
		}
		m.Contents = append(m.Contents, sub)
		data = data[n:]
	}
	return nil
}

func init() {
	wire.Register(WordMultipleMessage, func() wire.Message { return &MultipleMessagePacket{} })
}
