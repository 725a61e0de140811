package gen

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/NedermanGroup/zbus"
	"github.com/creachadair/mds/mapset"
)

var goKeywords = mapset.New(
	"break", "case", "chan", "const", "continue", "default", "defer",
	"else", "fallthrough", "for", "func", "go", "goto", "if", "import",
	"interface", "map", "package", "range", "return", "select",
	"struct", "switch", "type", "var",
)

// Predeclared identifiers that generated code refers to. Shadowing
// any of these in a parameter list would break the emitted call
// sites.
var goPredeclared = mapset.New(
	"any", "append", "bool", "byte", "error", "false", "int", "len",
	"make", "new", "nil", "string", "true", "uint",
)

// Wire names use a handful of all-caps abbreviations that Go style
// keeps uppercase.
var initialisms = map[string]string{
	"api":  "API",
	"fd":   "FD",
	"id":   "ID",
	"pid":  "PID",
	"uid":  "UID",
	"uri":  "URI",
	"url":  "URL",
	"uuid": "UUID",
}

// words splits a wire name into its word runs: separators are
// non-identifier characters, and boundaries fall before an upper
// case rune that starts a new word ("PascalCase", "camelCase",
// "SNAKE_case", "dotted.name" all split the obvious way, acronym
// runs like "DBus" stay together).
func words(s string) []string {
	var ws []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			ws = append(ws, cur.String())
			cur.Reset()
		}
	}
	rs := []rune(s)
	for i, r := range rs {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && i > 0 {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur.WriteRune(r)
	}
	flush()
	return ws
}

// exportedName transforms a wire name into an exported Go
// identifier. Dotted names (interface names) contribute only their
// final element. A name with no identifier characters at all is a
// NamingError.
func exportedName(name string) (string, error) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	ws := words(name)
	if len(ws) == 0 {
		return "", zbus.NamingError{Name: name, Reason: fmt.Errorf("name has no identifier characters")}
	}
	for i, w := range ws {
		if init, ok := initialisms[strings.ToLower(w)]; ok {
			ws[i] = init
			continue
		}
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		ws[i] = string(rs)
	}
	ret := strings.Join(ws, "")
	if r := []rune(ret)[0]; unicode.IsDigit(r) {
		ret = "X" + ret
	}
	return ret, nil
}

// localName transforms a wire name into an unexported Go identifier,
// suitable for parameters and locals. Reserved words get a trailing
// underscore, which keeps the result readable and is stable across
// runs.
func localName(name string) (string, error) {
	ws := words(name)
	if len(ws) == 0 {
		return "", zbus.NamingError{Name: name, Reason: fmt.Errorf("name has no identifier characters")}
	}
	for i, w := range ws {
		if i == 0 {
			if w == strings.ToUpper(w) {
				// Leading acronym: lower it whole, "UUID" → "uuid".
				ws[i] = strings.ToLower(w)
			} else {
				rs := []rune(w)
				rs[0] = unicode.ToLower(rs[0])
				ws[i] = string(rs)
			}
			continue
		}
		if init, ok := initialisms[strings.ToLower(w)]; ok {
			ws[i] = init
			continue
		}
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		ws[i] = string(rs)
	}
	ret := strings.Join(ws, "")
	if r := []rune(ret)[0]; unicode.IsDigit(r) {
		ret = "x" + ret
	}
	if goKeywords.Has(ret) || goPredeclared.Has(ret) {
		ret += "_"
	}
	return ret, nil
}

// A scope tracks the identifiers already handed out within one
// naming context (a file's package-level names, an interface's
// members, a member's arguments), and disambiguates collisions with
// a numeric suffix assigned in first-seen order. Because claims
// happen in document order, regenerating the same document always
// assigns the same suffixes.
type scope struct {
	owner map[string]string // identifier → wire name it came from
	next  map[string]int    // identifier → last suffix handed out
}

// newScope returns a scope with the given identifiers pre-claimed.
func newScope(reserved ...string) *scope {
	s := &scope{
		owner: make(map[string]string),
		next:  make(map[string]int),
	}
	for _, r := range reserved {
		s.owner[r] = ""
	}
	return s
}

// claim reserves id for the wire name it was derived from, suffixing
// it if the identifier is already taken. Two occurrences of the very
// same wire name cannot be told apart by a suffix derived from the
// name, so that is a NamingError.
func (s *scope) claim(id, wire string) (string, error) {
	prev, taken := s.owner[id]
	if !taken {
		s.owner[id] = wire
		return id, nil
	}
	if prev == wire {
		return "", zbus.NamingError{Name: wire, Other: prev, Reason: fmt.Errorf("name declared twice in the same scope")}
	}
	n := s.next[id]
	if n == 0 {
		n = 1
	}
	for {
		n++
		cand := fmt.Sprintf("%s%d", id, n)
		if _, taken := s.owner[cand]; !taken {
			s.next[id] = n
			s.owner[cand] = wire
			return cand, nil
		}
	}
}
