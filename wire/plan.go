package wire

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fieldKind enumerates the supported wire encodings.
type fieldKind int

const (
	kindFixedInt fieldKind = iota
	kindCompact
	kindString
	kindStringArray
	kindBCDFixed
	kindBCDUnbounded
	kindBCDPrefixed
	kindBytesFixed
	kindBytesPrefixed
	kindBytesRest
	kindObjectArray
	kindDateTime
	kindDate
	kindTime
	kindBits
)

// bitMember is one named value packed into a bit-field group.
type bitMember struct {
	name   string
	index  int
	pos    uint
	width  uint
	isBool bool
}

// field is the cached encoding plan for one struct field.
type field struct {
	name     string
	index    []int
	kind     fieldKind
	width    int  // fixed integer width in bytes
	signed   bool // integer signedness
	lenBytes int  // 1 or 2, for length-prefixed kinds
	length   int  // fixed length, for bcd/bytes kinds
	nullable bool // *time.Time
	elem     *plan
	elemType reflect.Type
	elemPtr  bool
	bits     []bitMember
}

// consumesRest reports whether the field reads to the end of the buffer.
func (f *field) consumesRest() bool {
	switch f.kind {
	case kindBytesRest, kindBCDUnbounded, kindStringArray:
		return true
	}
	return false
}

// plan is the ordered field list for a struct type.
type plan struct {
	typ    reflect.Type
	fields []field
}

var planCache sync.Map // reflect.Type -> *plan

// planFor returns the cached plan for t, building it on first use.
// Invalid tag vocabulary is a programming error and panics at plan time.
func planFor(t reflect.Type) *plan {
	if cached, ok := planCache.Load(t); ok {
		return cached.(*plan)
	}
	p := buildPlan(t)
	actual, _ := planCache.LoadOrStore(t, p)
	return actual.(*plan)
}

func buildPlan(t reflect.Type) *plan {
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("wire: cannot build plan for non-struct type %s", t))
	}
	p := &plan{typ: t}
	collectFields(t, nil, p)
	for i, f := range p.fields {
		if f.consumesRest() && i != len(p.fields)-1 {
			panic(fmt.Sprintf("wire: %s.%s consumes the rest of the buffer but is not the last field", t, f.name))
		}
	}
	return p
}

// collectFields appends the plan entries for t in declaration order,
// flattening embedded structs so a base declared first serializes first.
func collectFields(t reflect.Type, prefix []int, p *plan) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
			collectFields(sf.Type, index, p)
			continue
		}
		tag, ok := sf.Tag.Lookup("wire")
		if !ok {
			if sf.Type.Kind() == reflect.String {
				panic(fmt.Sprintf("wire: string field %s.%s has no wire tag", t, sf.Name))
			}
			continue
		}
		p.fields = append(p.fields, parseField(t, sf, index, tag))
	}
}

func parseField(owner reflect.Type, sf reflect.StructField, index []int, tag string) field {
	parts := strings.Split(tag, ",")
	f := field{name: sf.Name, index: index}
	opts := tagOptions(owner, sf.Name, parts[1:])

	switch parts[0] {
	case "u8", "u16", "u32", "i8", "i16", "i32":
		f.kind = kindFixedInt
		f.signed = parts[0][0] == 'i'
		bits, _ := strconv.Atoi(parts[0][1:])
		f.width = bits / 8
		checkIntKind(owner, sf, f.signed)
	case "compact":
		f.kind = kindCompact
		switch sf.Type.Kind() {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
			f.signed = true
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		default:
			panic(fmt.Sprintf("wire: compact field %s.%s must be an integer", owner, sf.Name))
		}
	case "string":
		f.kind = kindString
		f.lenBytes = opts.lenBytes("len", 1)
		mustBeKind(owner, sf, reflect.String)
	case "stringarray":
		f.kind = kindStringArray
		if sf.Type.Kind() != reflect.Slice || sf.Type.Elem().Kind() != reflect.String {
			panic(fmt.Sprintf("wire: stringarray field %s.%s must be []string", owner, sf.Name))
		}
	case "bcd":
		mustBeKind(owner, sf, reflect.String)
		switch {
		case opts.has("prefix"):
			f.kind = kindBCDPrefixed
		case opts.has("len"):
			f.kind = kindBCDFixed
			f.length = opts.intValue("len")
		default:
			f.kind = kindBCDUnbounded
		}
	case "bytes":
		if sf.Type.Kind() != reflect.Slice || sf.Type.Elem().Kind() != reflect.Uint8 {
			panic(fmt.Sprintf("wire: bytes field %s.%s must be []byte", owner, sf.Name))
		}
		switch {
		case opts.has("len"):
			f.kind = kindBytesFixed
			f.length = opts.intValue("len")
		case opts.has("lenbytes"):
			f.kind = kindBytesPrefixed
			f.lenBytes = opts.lenBytes("lenbytes", 1)
		case opts.has("rest"):
			f.kind = kindBytesRest
		default:
			panic(fmt.Sprintf("wire: bytes field %s.%s needs len=, lenbytes= or rest", owner, sf.Name))
		}
	case "array":
		f.kind = kindObjectArray
		f.lenBytes = opts.lenBytes("lenbytes", 1)
		if sf.Type.Kind() != reflect.Slice {
			panic(fmt.Sprintf("wire: array field %s.%s must be a slice", owner, sf.Name))
		}
		f.elemType = sf.Type.Elem()
		if f.elemType.Kind() == reflect.Ptr {
			f.elemPtr = true
			f.elemType = f.elemType.Elem()
		}
		f.elem = planFor(f.elemType)
	case "datetime", "date", "time":
		switch parts[0] {
		case "datetime":
			f.kind = kindDateTime
		case "date":
			f.kind = kindDate
		default:
			f.kind = kindTime
		}
		ft := sf.Type
		if ft.Kind() == reflect.Ptr {
			f.nullable = true
			ft = ft.Elem()
		}
		if ft != reflect.TypeOf(time.Time{}) {
			panic(fmt.Sprintf("wire: %s field %s.%s must be time.Time or *time.Time", parts[0], owner, sf.Name))
		}
	case "bits":
		f.kind = kindBits
		f.width = opts.intValue("bytes")
		if f.width != 1 && f.width != 2 && f.width != 4 {
			panic(fmt.Sprintf("wire: bits field %s.%s storage must be 1, 2 or 4 bytes", owner, sf.Name))
		}
		if sf.Type.Kind() != reflect.Struct {
			panic(fmt.Sprintf("wire: bits field %s.%s must be a struct of bit members", owner, sf.Name))
		}
		f.bits = collectBits(sf.Type, f.width*8)
	default:
		panic(fmt.Sprintf("wire: unknown wire tag %q on %s.%s", parts[0], owner, sf.Name))
	}
	return f
}

func collectBits(t reflect.Type, storageBits int) []bitMember {
	var members []bitMember
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup("bit")
		if !ok {
			continue
		}
		parts := strings.Split(tag, ",")
		pos, err := strconv.Atoi(parts[0])
		if err != nil || pos < 0 {
			panic(fmt.Sprintf("wire: bad bit position %q on %s.%s", parts[0], t, sf.Name))
		}
		m := bitMember{name: sf.Name, index: i, pos: uint(pos), width: 1}
		if sf.Type.Kind() == reflect.Bool {
			m.isBool = true
		} else {
			for _, opt := range parts[1:] {
				if w, found := strings.CutPrefix(opt, "width="); found {
					width, err := strconv.Atoi(w)
					if err != nil || width < 1 {
						panic(fmt.Sprintf("wire: bad bit width %q on %s.%s", w, t, sf.Name))
					}
					m.width = uint(width)
				}
			}
		}
		if int(m.pos+m.width) > storageBits {
			panic(fmt.Sprintf("wire: bit member %s.%s exceeds %d-bit storage", t, sf.Name, storageBits))
		}
		members = append(members, m)
	}
	return members
}

// options is the parsed key=value tail of a wire tag.
type options struct {
	owner reflect.Type
	field string
	vals  map[string]string
}

func tagOptions(owner reflect.Type, field string, parts []string) options {
	o := options{owner: owner, field: field, vals: make(map[string]string)}
	for _, part := range parts {
		if key, val, found := strings.Cut(part, "="); found {
			o.vals[key] = val
		} else {
			o.vals[part] = ""
		}
	}
	return o
}

func (o options) has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

func (o options) intValue(key string) int {
	v, err := strconv.Atoi(o.vals[key])
	if err != nil || v < 0 {
		panic(fmt.Sprintf("wire: bad %s option on %s.%s", key, o.owner, o.field))
	}
	return v
}

func (o options) lenBytes(key string, def int) int {
	if !o.has(key) {
		return def
	}
	v := o.intValue(key)
	if v != 1 && v != 2 {
		panic(fmt.Sprintf("wire: %s option on %s.%s must be 1 or 2", key, o.owner, o.field))
	}
	return v
}

func mustBeKind(owner reflect.Type, sf reflect.StructField, kind reflect.Kind) {
	if sf.Type.Kind() != kind {
		panic(fmt.Sprintf("wire: field %s.%s must have kind %s", owner, sf.Name, kind))
	}
}

func checkIntKind(owner reflect.Type, sf reflect.StructField, signed bool) {
	k := sf.Type.Kind()
	if signed {
		switch k {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
			return
		}
	} else {
		switch k {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
			return
		}
	}
	panic(fmt.Sprintf("wire: integer tag does not match Go type of %s.%s", owner, sf.Name))
}
