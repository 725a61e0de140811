package zbus

import (
	"errors"
	"strings"
	"testing"
)

func TestParseSignatureRoundTrip(t *testing.T) {
	// Valid signatures must parse, and the parsed tree must render
	// back to the exact input.
	tests := []string{
		"y", "b", "n", "q", "i", "u", "x", "t", "d", "s", "o", "g", "h", "v",
		"ai",
		"aai",
		"as",
		"ay",
		"a{sv}",
		"a{yv}",
		"a{sa{sv}}",
		"a{s(iv)}",
		"(i)",
		"(sii)",
		"(y(nb))",
		"(ybnqiuxtdsogh)",
		"a(nb)",
		"aa(y(nb))",
		"(a{sv})",
		"av",
		strings.Repeat("a", 32) + "i",
		strings.Repeat("(", 32) + "i" + strings.Repeat(")", 32),
	}

	for _, sig := range tests {
		typ, err := ParseSignature(sig)
		if err != nil {
			t.Errorf("ParseSignature(%q) got err %v, want nil", sig, err)
			continue
		}
		if got := typ.String(); got != sig {
			t.Errorf("ParseSignature(%q).String() = %q, want %q", sig, got, sig)
		}
	}
}

func TestParseSignatureInvalid(t *testing.T) {
	tests := []struct {
		in string
		// wantOff is the offset the SignatureError must report.
		wantOff int
	}{
		{"", 0},
		{"a", 1},       // truncated array
		{"aa", 2},      // truncated array
		{"z", 0},       // unknown type code
		{"e", 0},       // no single-char code for dict entries
		{"r", 0},       // no single-char code for structs
		{"ii", 1},      // two complete types
		{"ss", 1},      // two complete types
		{"i)", 1},      // trailing junk
		{"(", 1},       // unterminated struct
		{"(ii", 3},     // unterminated struct
		{")", 0},       // close without open
		{"()", 1},      // empty struct
		{"a()", 2},     // empty struct under array
		{"{sv}", 0},    // dict entry outside array
		{"({sv})", 1},  // dict entry inside struct, not array
		{"a{vs}", 2},   // variant key is not basic
		{"a{(i)s}", 2}, // struct key is not basic
		{"a{s}", 3},    // dict entry with one type
		{"a{sss}", 4},  // dict entry with three types
		{"a{si", 4},    // unterminated dict entry
		{strings.Repeat("a", 33) + "i", 32},
		{strings.Repeat("(", 33) + "i" + strings.Repeat(")", 33), 32},
	}

	for _, tc := range tests {
		_, err := ParseSignature(tc.in)
		if err == nil {
			t.Errorf("ParseSignature(%q) got nil error, want SignatureError", tc.in)
			continue
		}
		var serr SignatureError
		if !errors.As(err, &serr) {
			t.Errorf("ParseSignature(%q) error %v is not a SignatureError", tc.in, err)
			continue
		}
		if serr.Signature != tc.in {
			t.Errorf("ParseSignature(%q) error names signature %q", tc.in, serr.Signature)
		}
		if serr.Offset != tc.wantOff {
			t.Errorf("ParseSignature(%q) error offset = %d, want %d (%v)", tc.in, serr.Offset, tc.wantOff, err)
		}
	}
}

func TestParseSignatureTree(t *testing.T) {
	typ, err := ParseSignature("a{s(iv)}")
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if typ.Kind() != KindArray || !typ.IsDict() {
		t.Fatalf("got kind %v, want dict array", typ.Kind())
	}
	entry := typ.Elem()
	if entry.Kind() != KindDictEntry {
		t.Fatalf("element kind = %v, want dict entry", entry.Kind())
	}
	if got := entry.Key().Kind(); got != KindString {
		t.Errorf("key kind = %v, want string", got)
	}
	val := entry.Value()
	if val.Kind() != KindStruct || len(val.Fields()) != 2 {
		t.Fatalf("value = %v with %d fields, want 2-field struct", val.Kind(), len(val.Fields()))
	}
	if val.Fields()[0].Kind() != KindInt32 || val.Fields()[1].Kind() != KindVariant {
		t.Errorf("struct fields = %v, %v, want int32, variant", val.Fields()[0].Kind(), val.Fields()[1].Kind())
	}
}

func TestParseSignatureDeterministic(t *testing.T) {
	// The mapper is pure: the same signature always yields an
	// identical rendering.
	for _, sig := range []string{"a{sv}", "(sii)", "aa(yv)"} {
		a, err := ParseSignature(sig)
		if err != nil {
			t.Fatalf("ParseSignature(%q): %v", sig, err)
		}
		b, err := ParseSignature(sig)
		if err != nil {
			t.Fatalf("ParseSignature(%q): %v", sig, err)
		}
		if a.String() != b.String() {
			t.Errorf("ParseSignature(%q) rendered %q then %q", sig, a.String(), b.String())
		}
	}
}

func TestBasic(t *testing.T) {
	for _, c := range "ybnqiuxtdsogh" {
		typ, err := ParseSignature(string(c))
		if err != nil {
			t.Fatalf("ParseSignature(%q): %v", c, err)
		}
		if !typ.Basic() {
			t.Errorf("%q.Basic() = false, want true", c)
		}
	}
	for _, sig := range []string{"v", "ai", "(i)", "a{sv}"} {
		typ, err := ParseSignature(sig)
		if err != nil {
			t.Fatalf("ParseSignature(%q): %v", sig, err)
		}
		if typ.Basic() {
			t.Errorf("%q.Basic() = true, want false", sig)
		}
	}
}
