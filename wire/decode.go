package wire

import (
	"reflect"
	"time"
	"unicode/utf16"

	"github.com/opd-ai/panellink/perr"
)

// enumValidator is implemented by enum types that can reject unknown
// discriminants at decode time.
type enumValidator interface {
	Valid() bool
}

// Unmarshal deserializes a wire body into a tagged struct. v must be a
// non-nil pointer to the struct.
func Unmarshal(data []byte, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		panic("wire: Unmarshal target must be a non-nil pointer")
	}
	rv = rv.Elem()
	p := planFor(rv.Type())
	r := &reader{data: data}
	if err := unmarshalStruct(p, rv, r); err != nil {
		return err
	}
	return nil
}

func unmarshalStruct(p *plan, rv reflect.Value, r *reader) error {
	for i := range p.fields {
		f := &p.fields[i]
		if err := unmarshalField(f, rv.FieldByIndex(f.index), r); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalField(f *field, fv reflect.Value, r *reader) error {
	switch f.kind {
	case kindFixedInt:
		b, err := r.take(f.width, f.name)
		if err != nil {
			return err
		}
		u := readBE(b)
		if f.signed {
			fv.SetInt(signExtend(u, f.width))
		} else {
			fv.SetUint(u)
		}
		if e, ok := fv.Interface().(enumValidator); ok && !e.Valid() {
			return perr.New(perr.PacketParseError, "field %s: unknown enum discriminant %d", f.name, u)
		}
		return nil

	case kindCompact:
		u, err := r.compact(f.name, f.signed)
		if err != nil {
			return err
		}
		if f.signed {
			v := int64(u)
			if fv.OverflowInt(v) {
				return perr.New(perr.PacketParseError, "field %s: compact value %d overflows %s", f.name, v, fv.Type())
			}
			fv.SetInt(v)
		} else {
			if fv.OverflowUint(u) {
				return perr.New(perr.PacketParseError, "field %s: compact value %d overflows %s", f.name, u, fv.Type())
			}
			fv.SetUint(u)
		}
		return nil

	case kindString:
		n, err := r.lenPrefix(f.lenBytes, f.name)
		if err != nil {
			return err
		}
		if n%2 != 0 {
			return perr.New(perr.PacketParseError, "field %s: odd UTF-16 byte length %d", f.name, n)
		}
		b, err := r.take(n, f.name)
		if err != nil {
			return err
		}
		units := make([]uint16, n/2)
		for i := range units {
			units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
		}
		fv.SetString(string(utf16.Decode(units)))
		return nil

	case kindStringArray:
		return unmarshalStringArray(f, fv, r)

	case kindBCDFixed:
		return readBCDInto(f, fv, r, f.length)

	case kindBCDUnbounded:
		return readBCDInto(f, fv, r, len(r.rest()))

	case kindBCDPrefixed:
		b, err := r.take(1, f.name)
		if err != nil {
			return err
		}
		return readBCDInto(f, fv, r, int(b[0]))

	case kindBytesFixed:
		b, err := r.take(f.length, f.name)
		if err != nil {
			return err
		}
		fv.SetBytes(append([]byte(nil), b...))
		return nil

	case kindBytesPrefixed:
		n, err := r.lenPrefix(f.lenBytes, f.name)
		if err != nil {
			return err
		}
		b, err := r.take(n, f.name)
		if err != nil {
			return err
		}
		fv.SetBytes(append([]byte(nil), b...))
		return nil

	case kindBytesRest:
		fv.SetBytes(append([]byte(nil), r.rest()...))
		r.off = len(r.data)
		return nil

	case kindObjectArray:
		n, err := r.lenPrefix(f.lenBytes, f.name)
		if err != nil {
			return err
		}
		slice := reflect.MakeSlice(fv.Type(), n, n)
		for i := 0; i < n; i++ {
			ev := slice.Index(i)
			if f.elemPtr {
				ev.Set(reflect.New(f.elemType))
				ev = ev.Elem()
			}
			if err := unmarshalStruct(f.elem, ev, r); err != nil {
				return err
			}
		}
		fv.Set(slice)
		return nil

	case kindDateTime, kindDate, kindTime:
		return unmarshalTimestamp(f, fv, r)

	case kindBits:
		b, err := r.take(f.width, f.name)
		if err != nil {
			return err
		}
		storage := readBE(b)
		for _, m := range f.bits {
			mv := fv.Field(m.index)
			u := storage >> m.pos & (1<<m.width - 1)
			if m.isBool {
				mv.SetBool(u != 0)
			} else {
				mv.SetUint(u)
			}
		}
		return nil
	}
	return perr.New(perr.PacketParseError, "field %s: unhandled kind", f.name)
}

func unmarshalStringArray(f *field, fv reflect.Value, r *reader) error {
	w, err := r.compact(f.name, false)
	if err != nil {
		return err
	}
	width := int(w)
	rest := r.rest()
	if width == 0 {
		if len(rest) != 0 {
			return perr.New(perr.PacketParseError, "field %s: zero element width with %d trailing bytes", f.name, len(rest))
		}
		fv.Set(reflect.MakeSlice(fv.Type(), 0, 0))
		return nil
	}
	if width%2 != 0 {
		return perr.New(perr.PacketParseError, "field %s: odd UTF-16 element width %d", f.name, width)
	}
	if len(rest)%width != 0 {
		return perr.New(perr.PacketParseError, "field %s: %d bytes is not a multiple of element width %d", f.name, len(rest), width)
	}
	count := len(rest) / width
	out := make([]string, count)
	for i := 0; i < count; i++ {
		b := rest[i*width : (i+1)*width]
		units := make([]uint16, width/2)
		for j := range units {
			units[j] = uint16(b[2*j])<<8 | uint16(b[2*j+1])
		}
		for len(units) > 0 && units[len(units)-1] == 0 {
			units = units[:len(units)-1]
		}
		out[i] = string(utf16.Decode(units))
	}
	r.off = len(r.data)
	fv.Set(reflect.ValueOf(out))
	return nil
}

func unmarshalTimestamp(f *field, fv reflect.Value, r *reader) error {
	size := 3
	if f.kind == kindDateTime {
		size = 6
	}
	b, err := r.take(size, f.name)
	if err != nil {
		return err
	}
	if f.nullable && allFF(b) {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	parts := make([]int, size)
	for i, raw := range b {
		hi, lo := raw>>4, raw&0x0F
		if hi > 9 || lo > 9 {
			return perr.New(perr.PacketParseError, "field %s: invalid BCD byte 0x%02X", f.name, raw)
		}
		parts[i] = int(hi)*10 + int(lo)
	}
	var t time.Time
	switch f.kind {
	case kindDateTime:
		t = time.Date(2000+parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC)
	case kindDate:
		t = time.Date(2000+parts[0], time.Month(parts[1]), parts[2], 0, 0, 0, 0, time.UTC)
	default:
		t = time.Date(0, time.January, 1, parts[0], parts[1], parts[2], 0, time.UTC)
	}
	if f.nullable {
		fv.Set(reflect.ValueOf(&t))
	} else {
		fv.Set(reflect.ValueOf(t))
	}
	return nil
}

func readBCDInto(f *field, fv reflect.Value, r *reader, byteLen int) error {
	b, err := r.take(byteLen, f.name)
	if err != nil {
		return err
	}
	digits := make([]byte, 0, byteLen*2)
	for _, raw := range b {
		hi, lo := raw>>4, raw&0x0F
		if hi > 9 || lo > 9 {
			return perr.New(perr.PacketParseError, "field %s: invalid BCD byte 0x%02X", f.name, raw)
		}
		digits = append(digits, '0'+hi, '0'+lo)
	}
	fv.SetString(string(digits))
	return nil
}

func allFF(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}

func readBE(b []byte) uint64 {
	var u uint64
	for _, v := range b {
		u = u<<8 | uint64(v)
	}
	return u
}

func signExtend(u uint64, width int) int64 {
	shift := 64 - 8*width
	return int64(u<<shift) >> shift
}

// reader tracks the decode position and produces field-attributed errors.
type reader struct {
	data []byte
	off  int
}

func (r *reader) take(n int, fieldName string) ([]byte, error) {
	if r.off+n > len(r.data) {
		return nil, perr.New(perr.PacketParseError, "field %s: need %d bytes, have %d", fieldName, n, len(r.data)-r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) rest() []byte {
	return r.data[r.off:]
}

func (r *reader) lenPrefix(lenBytes int, fieldName string) (int, error) {
	b, err := r.take(lenBytes, fieldName)
	if err != nil {
		return 0, err
	}
	return int(readBE(b)), nil
}

// compact reads a CompactInteger: a one-byte length, then that many
// big-endian bytes, sign-extended when the target is signed.
func (r *reader) compact(fieldName string, signed bool) (uint64, error) {
	lb, err := r.take(1, fieldName)
	if err != nil {
		return 0, err
	}
	n := int(lb[0])
	if n > 8 {
		return 0, perr.New(perr.PacketParseError, "field %s: compact length %d exceeds 8", fieldName, n)
	}
	b, err := r.take(n, fieldName)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	u := readBE(b)
	if signed {
		return uint64(signExtend(u, n)), nil
	}
	return u, nil
}
