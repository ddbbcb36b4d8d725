package wire

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/opd-ai/panellink/perr"
)

// Registry maps two-byte command words to message constructors.
type Registry struct {
	mu        sync.RWMutex
	factories map[uint16]func() Message
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[uint16]func() Message)}
}

// defaultRegistry holds the catalog populated by package init functions.
var defaultRegistry = NewRegistry()

// Register adds a constructor for a command word to the default registry.
// Registering the same word twice is a programming error and panics.
func Register(word uint16, factory func() Message) {
	defaultRegistry.Register(word, factory)
}

// Register adds a constructor for a command word.
func (r *Registry) Register(word uint16, factory func() Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[word]; dup {
		panic(fmt.Sprintf("wire: command word 0x%04X registered twice", word))
	}
	r.factories[word] = factory
}

// New instantiates the registered type for word, or reports false.
func (r *Registry) New(word uint16) (Message, bool) {
	r.mu.RLock()
	factory, ok := r.factories[word]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Encode serializes a message to its wire form: the two-byte big-endian
// command word followed by the serialized body. The command sequence of a
// CommandMessage is part of the body by field order, not by special
// handling here.
func Encode(msg Message) ([]byte, error) {
	out := binary.BigEndian.AppendUint16(nil, msg.CommandWord())
	var body []byte
	var err error
	if m, ok := msg.(Marshaler); ok {
		body, err = m.MarshalWire()
	} else {
		body, err = Marshal(msg)
	}
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

// Decode parses wire form into a typed message using the default
// registry. Unknown command words yield a DefaultMessage.
func Decode(data []byte) (Message, error) {
	return defaultRegistry.Decode(data)
}

// Decode parses wire form into a typed message.
func (r *Registry) Decode(data []byte) (Message, error) {
	if len(data) < 2 {
		return nil, perr.New(perr.PacketParseError, "message truncated before command word").WithPacket(data)
	}
	word := binary.BigEndian.Uint16(data)
	body := data[2:]
	msg, ok := r.New(word)
	if !ok {
		def := &DefaultMessage{Word: word}
		if err := def.UnmarshalWire(body); err != nil {
			return nil, err
		}
		return def, nil
	}
	if m, ok := msg.(Unmarshaler); ok {
		if err := m.UnmarshalWire(body); err != nil {
			return nil, err
		}
		return msg, nil
	}
	if err := Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("decoding command 0x%04X: %w", word, err)
	}
	return msg, nil
}
