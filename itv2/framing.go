package itv2

import (
	"encoding/binary"

	"github.com/opd-ai/panellink/perr"
)

// MaxFrameLength is the largest data length the two-byte length field can
// carry.
const MaxFrameLength = 0x7FFF

// AddFraming wraps data in the ITv2 length + CRC envelope. The length
// field is one byte for lengths up to 127, otherwise two big-endian bytes
// with the high bit of the first set. The CRC covers the length bytes and
// the data.
func AddFraming(data []byte) ([]byte, error) {
	n := len(data)
	if n > MaxFrameLength {
		return nil, perr.New(perr.PacketParseError, "frame length %d exceeds %d", n, MaxFrameLength)
	}
	out := make([]byte, 0, 2+n+2)
	if n <= 0x7F {
		out = append(out, byte(n))
	} else {
		out = append(out, byte(n>>8)|0x80, byte(n))
	}
	out = append(out, data...)
	crc := Checksum(out)
	return binary.BigEndian.AppendUint16(out, crc), nil
}

// RemoveFraming validates and strips the ITv2 envelope, returning exactly
// the framed data. Trailing bytes beyond the CRC are cipher padding and
// are discarded.
func RemoveFraming(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, perr.New(perr.PacketParseError, "empty frame")
	}
	var length, lenBytes int
	if frame[0]&0x80 == 0 {
		length = int(frame[0])
		lenBytes = 1
	} else {
		if len(frame) < 2 {
			return nil, perr.New(perr.PacketParseError, "two-byte length field truncated").WithPacket(frame)
		}
		length = int(frame[0]&0x7F)<<8 | int(frame[1])
		lenBytes = 2
	}
	if lenBytes+length+2 > len(frame) {
		return nil, perr.New(perr.PacketParseError, "frame shorter than declared length %d", length).WithPacket(frame)
	}
	covered := frame[:lenBytes+length]
	want := binary.BigEndian.Uint16(frame[lenBytes+length:])
	if got := Checksum(covered); got != want {
		return nil, perr.New(perr.PacketParseError, "crc mismatch: computed 0x%04X, frame carries 0x%04X", got, want).WithPacket(frame)
	}
	data := make([]byte, length)
	copy(data, frame[lenBytes:lenBytes+length])
	return data, nil
}
