// Package tlink implements the outer TLink framing layer of the panel
// wire protocol.
//
// A TLink packet carries an opaque header and a payload, byte-stuffed and
// separated by reserved delimiter bytes:
//
//	[stuffed header] 0x7E [stuffed payload] 0x7F
//
// The package extracts whole packets from a streamed byte source, splits
// packets into header and payload, and encodes outbound packets.
package tlink

import (
	"bytes"

	"github.com/opd-ai/panellink/perr"
)

const (
	// Escape introduces a stuffed byte sequence.
	Escape = 0x7D
	// HeaderDelimiter separates the header from the payload.
	HeaderDelimiter = 0x7E
	// PacketDelimiter terminates the packet.
	PacketDelimiter = 0x7F
)

// Escape codes following an Escape byte. The escaped byte is
// Escape + code.
const (
	escapedEscape  = 0x00
	escapedHeader  = 0x01
	escapedTrailer = 0x02
)

// Stuff replaces reserved bytes in data with their two-byte escape
// sequences. Delimiters acting as delimiters are never stuffed; this
// operates on the unencoded region only.
func Stuff(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case Escape:
			out = append(out, Escape, escapedEscape)
		case HeaderDelimiter:
			out = append(out, Escape, escapedHeader)
		case PacketDelimiter:
			out = append(out, Escape, escapedTrailer)
		default:
			out = append(out, b)
		}
	}
	return out
}

// Unstuff reverses Stuff. A raw delimiter inside the region, an unknown
// escape code, or a trailing escape with no following byte is an
// EncodingError.
func Unstuff(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		b := data[i]
		switch b {
		case Escape:
			i++
			if i >= len(data) {
				return nil, perr.New(perr.EncodingError, "escape byte at end of region")
			}
			switch data[i] {
			case escapedEscape:
				out = append(out, Escape)
			case escapedHeader:
				out = append(out, HeaderDelimiter)
			case escapedTrailer:
				out = append(out, PacketDelimiter)
			default:
				return nil, perr.New(perr.EncodingError, "unknown escape code 0x%02X", data[i])
			}
		case HeaderDelimiter, PacketDelimiter:
			return nil, perr.New(perr.EncodingError, "raw delimiter 0x%02X inside region", b)
		default:
			out = append(out, b)
		}
	}
	return out, nil
}

// EncodeFrame stuffs header and payload independently and joins them with
// the TLink delimiters.
func EncodeFrame(header, payload []byte) []byte {
	sh := Stuff(header)
	sp := Stuff(payload)
	out := make([]byte, 0, len(sh)+len(sp)+2)
	out = append(out, sh...)
	out = append(out, HeaderDelimiter)
	out = append(out, sp...)
	out = append(out, PacketDelimiter)
	return out
}

// ParseFrame splits a whole packet into its unstuffed header and payload.
// The packet must end with the packet delimiter and contain a header
// delimiter before it.
func ParseFrame(packet []byte) (header, payload []byte, err error) {
	if len(packet) < 2 || packet[len(packet)-1] != PacketDelimiter {
		return nil, nil, perr.New(perr.FramingError, "packet not terminated by 0x%02X", PacketDelimiter).WithPacket(packet)
	}
	body := packet[:len(packet)-1]
	sep := bytes.IndexByte(body, HeaderDelimiter)
	if sep < 0 {
		return nil, nil, perr.New(perr.FramingError, "header delimiter missing").WithPacket(packet)
	}
	header, err = Unstuff(body[:sep])
	if err != nil {
		return nil, nil, err
	}
	payload, err = Unstuff(body[sep+1:])
	if err != nil {
		return nil, nil, err
	}
	return header, payload, nil
}
