package gen

import (
	"errors"
	"testing"

	"github.com/NedermanGroup/zbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Add", []string{"Add"}},
		{"PascalCase", []string{"Pascal", "Case"}},
		{"camelCase", []string{"camel", "Case"}},
		{"snake_case", []string{"snake", "case"}},
		{"kebab-case", []string{"kebab", "case"}},
		{"SCREAMING_SNAKE", []string{"SCREAMING", "SNAKE"}},
		{"SomeHTTPServer", []string{"Some", "HTTP", "Server"}},
		{"GetUnitByPID", []string{"Get", "Unit", "By", "PID"}},
		{"unit_file_state", []string{"unit", "file", "state"}},
		{"___", nil},
		{"", nil},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, words(tc.in), "words(%q)", tc.in)
	}
}

func TestExportedName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Add", "Add"},
		{"add", "Add"},
		{"list_names", "ListNames"},
		{"GetConnectionUnixProcessID", "GetConnectionUnixProcessID"},
		{"machine_id", "MachineID"},
		{"fd_list", "FDList"},
		{"org.freedesktop.DBus.Properties", "Properties"},
		{"com.example.Calc", "Calc"},
		{"3d_model", "X3dModel"},
	}
	for _, tc := range tests {
		got, err := exportedName(tc.in)
		require.NoError(t, err, "exportedName(%q)", tc.in)
		assert.Equal(t, tc.want, got, "exportedName(%q)", tc.in)
	}
}

func TestLocalName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Input", "input"},
		{"app_name", "appName"},
		{"AppName", "appName"},
		{"UUID", "uuid"},
		{"reply_id", "replyID"},
		{"type", "type_"},
		{"interface", "interface_"},
		{"len", "len_"},
		{"error", "error_"},
	}
	for _, tc := range tests {
		got, err := localName(tc.in)
		require.NoError(t, err, "localName(%q)", tc.in)
		assert.Equal(t, tc.want, got, "localName(%q)", tc.in)
	}
}

func TestNameStability(t *testing.T) {
	// The same wire name must always yield the same identifier.
	for _, name := range []string{"list_names", "GetAll", "x"} {
		a, err := exportedName(name)
		require.NoError(t, err)
		b, err := exportedName(name)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestNameEmpty(t *testing.T) {
	for _, name := range []string{"", "___", "--", "..."} {
		_, err := exportedName(name)
		require.Error(t, err, "exportedName(%q)", name)
		var nerr zbus.NamingError
		assert.True(t, errors.As(err, &nerr), "error %v is not a NamingError", err)

		_, err = localName(name)
		require.Error(t, err, "localName(%q)", name)
	}
}

func TestScopeCollisions(t *testing.T) {
	s := newScope()

	got, err := s.claim("ListNames", "list_names")
	require.NoError(t, err)
	assert.Equal(t, "ListNames", got)

	// A different wire name normalizing to the same identifier gets
	// a deterministic suffix in first-seen order.
	got, err = s.claim("ListNames", "ListNames")
	require.NoError(t, err)
	assert.Equal(t, "ListNames2", got)

	got, err = s.claim("ListNames", "List_Names")
	require.NoError(t, err)
	assert.Equal(t, "ListNames3", got)

	// The same wire name twice cannot be disambiguated.
	_, err = s.claim("ListNames", "list_names")
	require.Error(t, err)
	var nerr zbus.NamingError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "list_names", nerr.Name)
	assert.Equal(t, "list_names", nerr.Other)
}

func TestScopeSuffixSkipsTaken(t *testing.T) {
	s := newScope()

	// An explicitly declared Foo2 must not be stomped by a suffixed
	// collision resolution.
	_, err := s.claim("Foo2", "foo2")
	require.NoError(t, err)
	_, err = s.claim("Foo", "foo")
	require.NoError(t, err)
	got, err := s.claim("Foo", "FOO")
	require.NoError(t, err)
	assert.Equal(t, "Foo3", got)
}

func TestScopeReserved(t *testing.T) {
	s := newScope("ctx", "o")
	got, err := s.claim("ctx", "ctx_wire")
	require.NoError(t, err)
	assert.Equal(t, "ctx2", got)
}
