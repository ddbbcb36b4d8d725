package tlink

import (
	"bytes"
	"encoding/binary"
)

// Extractor locates one whole packet at the front of a buffered byte
// region. Implementations return the packet and the number of bytes
// consumed, or (nil, 0) when more input is needed.
type Extractor interface {
	TryExtract(buf []byte) (packet []byte, consumed int)
}

// Codec is the default TLink extractor: a packet is everything up to and
// including the first packet delimiter.
type Codec struct{}

// TryExtract implements Extractor.
func (Codec) TryExtract(buf []byte) ([]byte, int) {
	pos := bytes.IndexByte(buf, PacketDelimiter)
	if pos < 0 {
		return nil, 0
	}
	packet := make([]byte, pos+1)
	copy(packet, buf[:pos+1])
	return packet, pos + 1
}

// DLSCodec is the length-prefixed TLink variant used by DLS links. Each
// packet is preceded by a two-byte big-endian length covering the packet
// body. When the link is encrypted the body is ciphertext, so the
// delimiter scan of the default codec does not apply; the length alone
// bounds the packet.
type DLSCodec struct {
	// Encrypted disables the delimiter scan inside the length window.
	Encrypted bool
}

// TryExtract implements Extractor.
func (c DLSCodec) TryExtract(buf []byte) ([]byte, int) {
	if len(buf) < 2 {
		return nil, 0
	}
	length := int(binary.BigEndian.Uint16(buf))
	if len(buf) < 2+length {
		return nil, 0
	}
	body := buf[2 : 2+length]
	if !c.Encrypted {
		if pos := bytes.IndexByte(body, PacketDelimiter); pos >= 0 {
			body = body[:pos+1]
		}
	}
	packet := make([]byte, len(body))
	copy(packet, body)
	return packet, 2 + length
}
