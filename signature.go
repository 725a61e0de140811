package zbus

import (
	"strings"

	"github.com/creachadair/mds/mapset"
)

// A Kind identifies one DBus type constructor. Its value is the type
// code used in wire signatures, with the two composite types that
// have no single-character code ('r' for structs, 'e' for dict
// entries) using the codes assigned to them by the DBus
// specification's type-system chapter.
type Kind byte

const (
	KindInvalid    Kind = 0
	KindByte       Kind = 'y'
	KindBool       Kind = 'b'
	KindInt16      Kind = 'n'
	KindUint16     Kind = 'q'
	KindInt32      Kind = 'i'
	KindUint32     Kind = 'u'
	KindInt64      Kind = 'x'
	KindUint64     Kind = 't'
	KindDouble     Kind = 'd'
	KindString     Kind = 's'
	KindObjectPath Kind = 'o'
	KindSignature  Kind = 'g'
	KindUnixFD     Kind = 'h'
	KindVariant    Kind = 'v'
	KindArray      Kind = 'a'
	KindStruct     Kind = 'r'
	KindDictEntry  Kind = 'e'
)

var kindNames = map[Kind]string{
	KindByte:       "byte",
	KindBool:       "bool",
	KindInt16:      "int16",
	KindUint16:     "uint16",
	KindInt32:      "int32",
	KindUint32:     "uint32",
	KindInt64:      "int64",
	KindUint64:     "uint64",
	KindDouble:     "double",
	KindString:     "string",
	KindObjectPath: "object path",
	KindSignature:  "signature",
	KindUnixFD:     "unix fd",
	KindVariant:    "variant",
	KindArray:      "array",
	KindStruct:     "struct",
	KindDictEntry:  "dict entry",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "invalid"
}

// basicKinds is the set of kinds the DBus type system calls basic
// types: the only kinds legal as dict entry keys.
var basicKinds = mapset.New(
	KindByte, KindBool, KindInt16, KindUint16, KindInt32, KindUint32,
	KindInt64, KindUint64, KindDouble, KindString, KindObjectPath,
	KindSignature, KindUnixFD,
)

// A SigType is the type tree of one complete DBus type, as described
// by a wire signature string. SigTypes are immutable once built.
type SigType struct {
	kind   Kind
	elem   *SigType   // array element
	key    *SigType   // dict entry key
	value  *SigType   // dict entry value
	fields []*SigType // struct fields, in declared order
}

// Kind returns the type's outermost constructor.
func (t *SigType) Kind() Kind { return t.kind }

// Basic reports whether the type is a DBus basic type.
func (t *SigType) Basic() bool { return basicKinds.Has(t.kind) }

// Elem returns an array's element type, or nil for other kinds.
func (t *SigType) Elem() *SigType { return t.elem }

// Key returns a dict entry's key type, or nil for other kinds.
func (t *SigType) Key() *SigType { return t.key }

// Value returns a dict entry's value type, or nil for other kinds.
func (t *SigType) Value() *SigType { return t.value }

// Fields returns a struct's field types in declared order, or nil
// for other kinds.
func (t *SigType) Fields() []*SigType { return t.fields }

// IsDict reports whether the type is an array of dict entries, the
// wire representation of an associative mapping.
func (t *SigType) IsDict() bool {
	return t.kind == KindArray && t.elem.kind == KindDictEntry
}

// String returns the canonical wire signature of the type. Parsing
// the result yields an equal tree.
func (t *SigType) String() string {
	var ret strings.Builder
	t.write(&ret)
	return ret.String()
}

func (t *SigType) write(w *strings.Builder) {
	switch t.kind {
	case KindArray:
		w.WriteByte('a')
		t.elem.write(w)
	case KindStruct:
		w.WriteByte('(')
		for _, f := range t.fields {
			f.write(w)
		}
		w.WriteByte(')')
	case KindDictEntry:
		w.WriteByte('{')
		t.key.write(w)
		t.value.write(w)
		w.WriteByte('}')
	default:
		w.WriteByte(byte(t.kind))
	}
}

// maxContainerDepth is the nesting limit the DBus specification
// imposes on each of arrays and structs within one type.
const maxContainerDepth = 32

// ParseSignature parses the wire signature of a single complete DBus
// type into its type tree. The whole string must be consumed by that
// one type; signatures describing zero or several types are
// rejected. Errors are of type [SignatureError] and identify the
// offset of the first offending byte.
func ParseSignature(sig string) (*SigType, error) {
	if sig == "" {
		return nil, sigErr(sig, 0, "empty signature")
	}
	t, next, err := parseOne(sig, 0, parseState{})
	if err != nil {
		return nil, err
	}
	if next != len(sig) {
		return nil, sigErr(sig, next, "more than one complete type in signature")
	}
	return t, nil
}

// parseState tracks container nesting along the current branch of
// the parse.
type parseState struct {
	inArray     bool // immediately inside an 'a'
	arrayDepth  int
	structDepth int
}

func (s parseState) enterArray() parseState {
	return parseState{inArray: true, arrayDepth: s.arrayDepth + 1, structDepth: s.structDepth}
}

func (s parseState) enterStruct() parseState {
	return parseState{arrayDepth: s.arrayDepth, structDepth: s.structDepth + 1}
}

func (s parseState) enterDict() parseState {
	return parseState{arrayDepth: s.arrayDepth, structDepth: s.structDepth}
}

// parseOne consumes the first complete type starting at sig[i] and
// returns its tree along with the index of the first byte after it.
func parseOne(sig string, i int, st parseState) (t *SigType, next int, err error) {
	if i >= len(sig) {
		return nil, 0, sigErr(sig, len(sig), "truncated signature, expected a type")
	}

	c := sig[i]
	if k := Kind(c); basicKinds.Has(k) || k == KindVariant {
		return &SigType{kind: k}, i + 1, nil
	}

	switch c {
	case 'a':
		if st.arrayDepth+1 > maxContainerDepth {
			return nil, 0, sigErr(sig, i, "array nesting deeper than %d", maxContainerDepth)
		}
		elem, next, err := parseOne(sig, i+1, st.enterArray())
		if err != nil {
			return nil, 0, err
		}
		return &SigType{kind: KindArray, elem: elem}, next, nil
	case '(':
		if st.structDepth+1 > maxContainerDepth {
			return nil, 0, sigErr(sig, i, "struct nesting deeper than %d", maxContainerDepth)
		}
		var fields []*SigType
		next := i + 1
		for {
			if next >= len(sig) {
				return nil, 0, sigErr(sig, len(sig), "missing closing ) in struct")
			}
			if sig[next] == ')' {
				break
			}
			var f *SigType
			f, next, err = parseOne(sig, next, st.enterStruct())
			if err != nil {
				return nil, 0, err
			}
			fields = append(fields, f)
		}
		if len(fields) == 0 {
			return nil, 0, sigErr(sig, next, "empty struct")
		}
		return &SigType{kind: KindStruct, fields: fields}, next + 1, nil
	case '{':
		if !st.inArray {
			return nil, 0, sigErr(sig, i, "dict entry outside array")
		}
		key, next, err := parseOne(sig, i+1, st.enterDict())
		if err != nil {
			return nil, 0, err
		}
		if !key.Basic() {
			return nil, 0, sigErr(sig, i+1, "dict entry key is a %s, must be a basic type", key.Kind())
		}
		val, next, err2 := parseOne(sig, next, st.enterDict())
		if err2 != nil {
			return nil, 0, err2
		}
		if next >= len(sig) || sig[next] != '}' {
			return nil, 0, sigErr(sig, next, "missing closing } in dict entry")
		}
		return &SigType{kind: KindDictEntry, key: key, value: val}, next + 1, nil
	default:
		return nil, 0, sigErr(sig, i, "unknown type code %q", c)
	}
}
