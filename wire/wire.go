// Package wire implements the struct-tag-driven binary serializer and the
// command-word message registry for the ITv2 protocol.
//
// Every message on the wire is a Go struct whose fields carry `wire` tags
// describing their encoding. The first serialize or deserialize of a type
// builds an ordered field plan by reflection and caches it; later calls
// reuse the plan.
//
// Example:
//
//	type ZoneStatus struct {
//	    Zone   uint16 `wire:"u16"`
//	    Status uint8  `wire:"u8"`
//	}
//
//	data, err := wire.Marshal(&ZoneStatus{Zone: 4, Status: 1})
package wire

// Message is any typed protocol message. The command word identifies the
// concrete type on the wire.
type Message interface {
	CommandWord() uint16
}

// CommandMessage is a message that participates in command-level
// correlation. Its command sequence byte is the first serialized field
// after the command word.
type CommandMessage interface {
	Message
	CommandSeq() byte
	SetCommandSeq(seq byte)
}

// Command is the embeddable base of every command message. Embedding it
// first makes the sequence byte the first serialized field.
type Command struct {
	CommandSequence uint8 `wire:"u8"`
}

// CommandSeq returns the command sequence byte.
func (c *Command) CommandSeq() byte { return c.CommandSequence }

// SetCommandSeq sets the command sequence byte.
func (c *Command) SetCommandSeq(seq byte) { c.CommandSequence = seq }

// Marshaler lets a message type replace the reflective serializer with
// its own body encoding.
type Marshaler interface {
	MarshalWire() ([]byte, error)
}

// Unmarshaler is the decoding counterpart of Marshaler.
type Unmarshaler interface {
	UnmarshalWire(data []byte) error
}

// DefaultMessage carries a message whose command word has no registered
// type. The raw body round-trips untouched.
type DefaultMessage struct {
	Word    uint16
	RawData []byte
}

// CommandWord implements Message.
func (m *DefaultMessage) CommandWord() uint16 { return m.Word }

// MarshalWire implements Marshaler.
func (m *DefaultMessage) MarshalWire() ([]byte, error) {
	return append([]byte(nil), m.RawData...), nil
}

// UnmarshalWire implements Unmarshaler.
func (m *DefaultMessage) UnmarshalWire(data []byte) error {
	m.RawData = append([]byte(nil), data...)
	return nil
}
