package zbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node name="/com/example/Sample">
  <interface name="com.example.Sample">
    <tp:docstring>A sample service used by the parser tests.</tp:docstring>
    <method name="Frobnicate">
      <arg name="input" type="s" direction="in"/>
      <arg name="count" type="u" direction="out"/>
      <arg name="flags" type="ai" direction="in"/>
    </method>
    <method name="Refresh">
      <annotation name="org.freedesktop.DBus.Method.NoReply" value="true"/>
    </method>
    <method name="OldCall">
      <annotation name="org.freedesktop.DBus.Deprecated" value="true"/>
      <annotation name="com.example.Custom" value="yes"/>
    </method>
    <signal name="Changed">
      <arg name="what" type="s"/>
      <arg name="details" type="a{sv}"/>
    </signal>
    <property name="Version" type="u" access="read">
      <annotation name="org.freedesktop.DBus.Property.EmitsChangedSignal" value="const"/>
    </property>
    <property name="Owner" type="s" access="readwrite"/>
    <vendor.extension name="whatever"/>
  </interface>
  <node name="child"/>
  <node name="other/deep"/>
</node>
`

func TestParseDocument(t *testing.T) {
	node, err := ParseDocument([]byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "/com/example/Sample", node.Name)
	require.Len(t, node.Interfaces, 1)
	require.Len(t, node.Children, 2)
	assert.Equal(t, "child", node.Children[0].Name)
	assert.Equal(t, "other/deep", node.Children[1].Name)

	iface := node.Interfaces[0]
	assert.Equal(t, "com.example.Sample", iface.Name)
	require.Len(t, iface.Docs, 1)
	assert.Equal(t, "A sample service used by the parser tests.", iface.Docs[0])
	assert.Contains(t, iface.Annotations, Annotation{"vendor.extension", "whatever"})

	require.Len(t, iface.Methods, 3)
	frob := iface.Methods[0]
	assert.Equal(t, "Frobnicate", frob.Name)
	// Direction must be preserved exactly as declared, interleaved.
	require.Len(t, frob.Args, 3)
	assert.Equal(t, Arg{"input", "s", In}, frob.Args[0])
	assert.Equal(t, Arg{"count", "u", Out}, frob.Args[1])
	assert.Equal(t, Arg{"flags", "ai", In}, frob.Args[2])
	assert.Equal(t, []Arg{{"input", "s", In}, {"flags", "ai", In}}, frob.In())
	assert.Equal(t, []Arg{{"count", "u", Out}}, frob.Out())

	refresh := iface.Methods[1]
	assert.True(t, refresh.NoReply)
	assert.False(t, refresh.Deprecated)
	assert.Empty(t, refresh.Annotations, "recognized annotations must be folded, not carried")

	old := iface.Methods[2]
	assert.True(t, old.Deprecated)
	assert.Equal(t, Annotations{{"com.example.Custom", "yes"}}, old.Annotations)

	require.Len(t, iface.Signals, 1)
	changed := iface.Signals[0]
	assert.Equal(t, "Changed", changed.Name)
	require.Len(t, changed.Args, 2)
	assert.Equal(t, Out, changed.Args[0].Direction)
	assert.Equal(t, Out, changed.Args[1].Direction)
	assert.Equal(t, "a{sv}", changed.Args[1].Sig)

	require.Len(t, iface.Properties, 2)
	version := iface.Properties[0]
	assert.Equal(t, "u", version.Sig)
	assert.Equal(t, ReadAccess, version.Access)
	assert.True(t, version.Access.Readable())
	assert.False(t, version.Access.Writable())
	assert.Equal(t, "const", version.EmitsChanged)
	owner := iface.Properties[1]
	assert.Equal(t, ReadWriteAccess, owner.Access)
	assert.True(t, owner.Access.Writable())
}

func TestParseDocumentChildrenOnly(t *testing.T) {
	// A pure "directory" node is not an error; it just has nothing
	// to bind.
	node, err := ParseDocument([]byte(`<node><node name="a"/><node name="b"/></node>`))
	require.NoError(t, err)
	assert.Empty(t, node.Interfaces)
	assert.Len(t, node.Children, 2)
}

func TestParseDocumentStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ``},
		{"wrong root element", `<interfaces/>`},
		{"unterminated root", `<node>`},
		{"interface without name", `<node><interface/></node>`},
		{"arg without type", `<node><interface name="com.example.A"><method name="M"><arg name="x"/></method></interface></node>`},
		{"bad arg direction", `<node><interface name="com.example.A"><method name="M"><arg type="i" direction="sideways"/></method></interface></node>`},
		{"signal arg direction in", `<node><interface name="com.example.A"><signal name="S"><arg type="i" direction="in"/></signal></interface></node>`},
		{"property without access", `<node><interface name="com.example.A"><property name="P" type="s"/></interface></node>`},
		{"property without type", `<node><interface name="com.example.A"><property name="P" access="read"/></interface></node>`},
		{"bad property access", `<node><interface name="com.example.A"><property name="P" type="s" access="rw"/></interface></node>`},
		{"annotation without name", `<node><interface name="com.example.A"><annotation value="v"/></interface></node>`},
		{"property with arg", `<node><interface name="com.example.A"><property name="P" type="s" access="read"><arg type="i"/></property></interface></node>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tc.doc))
			require.Error(t, err)
			var serr StructuralError
			assert.True(t, errors.As(err, &serr), "error %v is not a StructuralError", err)
		})
	}
}

func TestParseDocumentModelErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"duplicate interface", `<node>
			<interface name="com.example.A"/>
			<interface name="com.example.A"/>
		</node>`},
		{"duplicate argument name", `<node><interface name="com.example.A">
			<method name="M">
				<arg name="x" type="i" direction="in"/>
				<arg name="x" type="i" direction="out"/>
			</method>
		</interface></node>`},
		{"interface name without dot", `<node><interface name="plain"/></node>`},
		{"interface name empty element", `<node><interface name="com..example"/></node>`},
		{"interface name digit element", `<node><interface name="com.3example"/></node>`},
		{"member name with separator", `<node><interface name="com.example.A"><method name="a/b"/></interface></node>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tc.doc))
			require.Error(t, err)
			var merr ModelError
			assert.True(t, errors.As(err, &merr), "error %v is not a ModelError", err)
		})
	}
}

func TestParseDocumentDuplicateInterfaceNamesOffender(t *testing.T) {
	_, err := ParseDocument([]byte(`<node><interface name="com.example.Dup"/><interface name="com.example.Dup"/></node>`))
	require.Error(t, err)
	var merr ModelError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "com.example.Dup", merr.Interface)
}

func TestParseDocumentUnknownAttr(t *testing.T) {
	node, err := ParseDocument([]byte(`<node><interface name="com.example.A" vendor="acme"/></node>`))
	require.NoError(t, err)
	require.Len(t, node.Interfaces, 1)
	assert.Contains(t, node.Interfaces[0].Annotations, Annotation{"vendor", "acme"})
}

func TestParseDocumentMissingDirectionDefaultsToIn(t *testing.T) {
	node, err := ParseDocument([]byte(`<node><interface name="com.example.A">
		<method name="M"><arg type="i"/></method>
	</interface></node>`))
	require.NoError(t, err)
	m := node.Interfaces[0].Methods[0]
	require.Len(t, m.Args, 1)
	assert.Equal(t, In, m.Args[0].Direction)
}
