package wire

import (
	"reflect"
	"time"
	"unicode/utf16"

	"github.com/opd-ai/panellink/perr"
)

// Marshal serializes a tagged struct (or pointer to one) into its wire
// body. The command word is not included; see Encode.
func Marshal(v interface{}) ([]byte, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	p := planFor(rv.Type())
	return marshalStruct(p, rv, nil)
}

func marshalStruct(p *plan, rv reflect.Value, out []byte) ([]byte, error) {
	var err error
	for i := range p.fields {
		f := &p.fields[i]
		out, err = marshalField(f, rv.FieldByIndex(f.index), out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func marshalField(f *field, fv reflect.Value, out []byte) ([]byte, error) {
	switch f.kind {
	case kindFixedInt:
		var u uint64
		if f.signed {
			u = uint64(fv.Int())
		} else {
			u = fv.Uint()
		}
		return appendBE(out, u, f.width), nil

	case kindCompact:
		if f.signed {
			return appendCompactInt(out, fv.Int()), nil
		}
		return appendCompactUint(out, fv.Uint()), nil

	case kindString:
		units := utf16.Encode([]rune(fv.String()))
		n := len(units) * 2
		out, ok := appendLenPrefix(out, n, f.lenBytes)
		if !ok {
			return nil, lengthOverflow(f, n)
		}
		for _, u := range units {
			out = append(out, byte(u), byte(u>>8))
		}
		return out, nil

	case kindStringArray:
		return marshalStringArray(f, fv, out)

	case kindBCDFixed:
		return appendBCD(f, fv.String(), f.length, out)

	case kindBCDUnbounded:
		s := fv.String()
		return appendBCD(f, s, (len(s)+1)/2, out)

	case kindBCDPrefixed:
		s := fv.String()
		n := (len(s) + 1) / 2
		if n > 0xFF {
			return nil, lengthOverflow(f, n)
		}
		out = append(out, byte(n))
		return appendBCD(f, s, n, out)

	case kindBytesFixed:
		b := fv.Bytes()
		if len(b) > f.length {
			return nil, perr.New(perr.PacketParseError, "field %s: %d bytes exceed fixed length %d", f.name, len(b), f.length)
		}
		out = append(out, b...)
		for i := len(b); i < f.length; i++ {
			out = append(out, 0x00)
		}
		return out, nil

	case kindBytesPrefixed:
		b := fv.Bytes()
		out, ok := appendLenPrefix(out, len(b), f.lenBytes)
		if !ok {
			return nil, lengthOverflow(f, len(b))
		}
		return append(out, b...), nil

	case kindBytesRest:
		return append(out, fv.Bytes()...), nil

	case kindObjectArray:
		n := fv.Len()
		out, ok := appendLenPrefix(out, n, f.lenBytes)
		if !ok {
			return nil, lengthOverflow(f, n)
		}
		for i := 0; i < n; i++ {
			ev := fv.Index(i)
			if f.elemPtr {
				ev = ev.Elem()
			}
			var err error
			out, err = marshalStruct(f.elem, ev, out)
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	case kindDateTime, kindDate, kindTime:
		return marshalTimestamp(f, fv, out)

	case kindBits:
		var storage uint64
		for _, m := range f.bits {
			mv := fv.Field(m.index)
			var u uint64
			if m.isBool {
				if mv.Bool() {
					u = 1
				}
			} else {
				u = mv.Uint()
			}
			if u >= 1<<m.width {
				return nil, perr.New(perr.PacketParseError, "field %s.%s: value %d exceeds %d-bit member", f.name, m.name, u, m.width)
			}
			storage |= u << m.pos
		}
		return appendBE(out, storage, f.width), nil
	}
	return nil, perr.New(perr.PacketParseError, "field %s: unhandled kind", f.name)
}

func marshalStringArray(f *field, fv reflect.Value, out []byte) ([]byte, error) {
	n := fv.Len()
	encoded := make([][]byte, n)
	width := 0
	for i := 0; i < n; i++ {
		units := utf16.Encode([]rune(fv.Index(i).String()))
		b := make([]byte, 0, len(units)*2)
		for _, u := range units {
			b = append(b, byte(u>>8), byte(u))
		}
		encoded[i] = b
		if len(b) > width {
			width = len(b)
		}
	}
	out = appendCompactUint(out, uint64(width))
	for _, b := range encoded {
		out = append(out, b...)
		for i := len(b); i < width; i++ {
			out = append(out, 0x00)
		}
	}
	return out, nil
}

func marshalTimestamp(f *field, fv reflect.Value, out []byte) ([]byte, error) {
	size := 3
	if f.kind == kindDateTime {
		size = 6
	}
	if f.nullable {
		if fv.IsNil() {
			for i := 0; i < size; i++ {
				out = append(out, 0xFF)
			}
			return out, nil
		}
		fv = fv.Elem()
	}
	t := fv.Interface().(time.Time)
	var parts []int
	switch f.kind {
	case kindDateTime:
		parts = []int{t.Year() - 2000, int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}
	case kindDate:
		parts = []int{t.Year() - 2000, int(t.Month()), t.Day()}
	default:
		parts = []int{t.Hour(), t.Minute(), t.Second()}
	}
	for _, v := range parts {
		if v < 0 || v > 99 {
			return nil, perr.New(perr.PacketParseError, "field %s: timestamp component %d outside BCD range", f.name, v)
		}
		out = append(out, byte(v/10)<<4|byte(v%10))
	}
	return out, nil
}

// appendBE appends the low `width` bytes of u in big-endian order.
func appendBE(out []byte, u uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		out = append(out, byte(u>>(8*i)))
	}
	return out
}

// appendLenPrefix appends a 1- or 2-byte big-endian length, reporting
// false when n does not fit the prefix.
func appendLenPrefix(out []byte, n, lenBytes int) ([]byte, bool) {
	if lenBytes == 1 {
		if n > 0xFF {
			return out, false
		}
		return append(out, byte(n)), true
	}
	if n > 0xFFFF {
		return out, false
	}
	return append(out, byte(n>>8), byte(n)), true
}

// appendCompactUint appends the CompactInteger encoding of an unsigned
// value: a one-byte length, then the minimal big-endian bytes with
// leading zero bytes stripped. Zero encodes as a zero-length value.
func appendCompactUint(out []byte, u uint64) []byte {
	var buf [8]byte
	n := 0
	for i := 7; i >= 0; i-- {
		b := byte(u >> (8 * i))
		if n == 0 && b == 0x00 {
			continue
		}
		buf[n] = b
		n++
	}
	out = append(out, byte(n))
	return append(out, buf[:n]...)
}

// appendCompactInt appends the CompactInteger encoding of a signed value:
// minimal big-endian two's complement with redundant sign bytes stripped,
// keeping the sign bit of the leading byte intact.
func appendCompactInt(out []byte, v int64) []byte {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * (7 - i)))
	}
	start := 0
	if v < 0 {
		for start < 7 && buf[start] == 0xFF && buf[start+1]&0x80 != 0 {
			start++
		}
	} else {
		for start < 7 && buf[start] == 0x00 && buf[start+1]&0x80 == 0 {
			start++
		}
		if start == 7 && buf[7] == 0x00 && v == 0 {
			start = 8
		}
	}
	n := 8 - start
	out = append(out, byte(n))
	return append(out, buf[start:]...)
}

func appendBCD(f *field, s string, byteLen int, out []byte) ([]byte, error) {
	if len(s) > byteLen*2 {
		return nil, perr.New(perr.PacketParseError, "field %s: %q does not fit %d BCD bytes", f.name, s, byteLen)
	}
	digits := make([]byte, byteLen*2)
	for i := range digits {
		if i < len(s) {
			c := s[i]
			if c < '0' || c > '9' {
				return nil, perr.New(perr.PacketParseError, "field %s: non-decimal character %q", f.name, c)
			}
			digits[i] = c - '0'
		} else {
			digits[i] = 0
		}
	}
	for i := 0; i < byteLen; i++ {
		out = append(out, digits[2*i]<<4|digits[2*i+1])
	}
	return out, nil
}

func lengthOverflow(f *field, n int) error {
	return perr.New(perr.PacketParseError, "field %s: length %d overflows its prefix", f.name, n)
}
