// Package gen emits Go client bindings from a parsed introspection
// document. Generated code targets github.com/godbus/dbus/v5.
//
// Generation is deterministic: emission follows document order
// everywhere, and identifier collisions are resolved with suffixes
// assigned in first-seen order, so regenerating from the same
// document is byte-identical.
package gen

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/NedermanGroup/zbus"
	"github.com/creachadair/mds/mapset"
	"golang.org/x/tools/imports"
)

// CallMode selects the shape of generated call sites.
type CallMode int

const (
	// CallContext generates methods that take a context.Context and
	// honor its cancellation.
	CallContext CallMode = iota
	// CallBlocking generates plain blocking methods.
	CallBlocking
)

// Options configures one generation run.
type Options struct {
	// Package is the package name of the generated file. Defaults to
	// "bindings".
	Package string
	// Interfaces restricts generation to the named interfaces. An
	// empty list generates bindings for every interface in the
	// document.
	Interfaces []string
	// Mode selects blocking or context-aware call sites.
	Mode CallMode
}

// Generate emits one Go source file with a binding type for each of
// node's interfaces, in document order. A document describing only
// child nodes produces no bindings and a nil result.
//
// Any parse, signature or naming failure aborts the whole run: no
// partial file is ever returned, because incomplete bindings compile
// but misbehave.
func Generate(node *zbus.Node, opts Options) ([]byte, error) {
	if node == nil {
		return nil, errors.New("no node provided")
	}
	pkg := opts.Package
	if pkg == "" {
		pkg = "bindings"
	}
	if !validPkgName(pkg) {
		return nil, fmt.Errorf("invalid package name %q", pkg)
	}

	allow := mapset.New(opts.Interfaces...)
	g := &generator{mode: opts.Mode, file: newScope("dbus", "context")}
	for _, iface := range node.Interfaces {
		if len(opts.Interfaces) > 0 && !allow.Has(iface.Name) {
			continue
		}
		if err := g.iface(iface); err != nil {
			return nil, err
		}
	}
	if g.units == 0 {
		return nil, nil
	}

	var out bytes.Buffer
	out.WriteString("// Code generated by zbus-xmlgen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&out, "package %s\n\n", pkg)
	out.WriteString("import (\n\t\"context\"\n\n\tdbus \"github.com/godbus/dbus/v5\"\n)\n")
	out.Write(g.out.Bytes())

	ret, err := imports.Process("zbus.gen.go", out.Bytes(), nil)
	if err != nil {
		return out.Bytes(), fmt.Errorf("formatting generated code: %w", err)
	}
	return ret, nil
}

func validPkgName(pkg string) bool {
	for i, r := range pkg {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return pkg != "" && !goKeywords.Has(pkg)
}

type generator struct {
	out   bytes.Buffer
	mode  CallMode
	file  *scope // package-level identifiers of the generated file
	units int
}

func (g *generator) s(s string) {
	g.out.WriteString(s)
}

func (g *generator) f(msg string, args ...any) {
	fmt.Fprintf(&g.out, msg, args...)
}

// argScope returns a fresh scope for one member's parameter list,
// with the identifiers the emitted body relies on already taken.
func argScope() *scope {
	return newScope("o", "ctx", "ret", "err", "dbus", "context")
}

func (g *generator) iface(iface *zbus.Interface) error {
	base, err := exportedName(iface.Name)
	if err != nil {
		return fmt.Errorf("interface %s: %w", iface.Name, err)
	}
	tname, err := g.file.claim(base, iface.Name)
	if err != nil {
		return fmt.Errorf("interface %s: %w", iface.Name, err)
	}
	ctor, err := g.file.claim("New"+tname, iface.Name)
	if err != nil {
		return fmt.Errorf("interface %s: %w", iface.Name, err)
	}

	g.doc(docInfo{
		first:      fmt.Sprintf("%s wraps the DBus interface %s.", tname, iface.Name),
		docs:       iface.Docs,
		anns:       iface.Annotations,
		deprecated: iface.Deprecated,
		wire:       iface.Name,
	})
	g.f("type %s struct {\n\tconn *dbus.Conn\n\tobj  dbus.BusObject\n}\n\n", tname)

	g.f("// %s returns a %s bound to the object at path on the peer named\n// dest on conn.\n", ctor, tname)
	g.f("func %s(conn *dbus.Conn, dest string, path dbus.ObjectPath) *%s {\n", ctor, tname)
	g.f("\treturn &%s{conn: conn, obj: conn.Object(dest, path)}\n}\n\n", tname)

	members := newScope()
	for _, m := range iface.Methods {
		if err := g.method(iface, tname, members, m); err != nil {
			return err
		}
	}
	for _, p := range iface.Properties {
		if err := g.property(iface, tname, members, p); err != nil {
			return err
		}
	}
	for _, s := range iface.Signals {
		if err := g.signal(iface, tname, members, s); err != nil {
			return err
		}
	}

	g.units++
	return nil
}

func (g *generator) method(iface *zbus.Interface, tname string, members *scope, m *zbus.Method) error {
	wrap := func(err error) error {
		return fmt.Errorf("interface %s: method %s: %w", iface.Name, m.Name, err)
	}

	base, err := exportedName(m.Name)
	if err != nil {
		return wrap(err)
	}
	mname, err := members.claim(base, m.Name)
	if err != nil {
		return wrap(err)
	}

	in, out := m.In(), m.Out()

	args := argScope()
	inNames := make([]string, len(in))
	inTypes := make([]string, len(in))
	for i, a := range in {
		t, err := zbus.ParseSignature(a.Sig)
		if err != nil {
			return wrap(fmt.Errorf("argument %q: %w", a.Name, err))
		}
		inTypes[i] = goType(t)
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		id, err := localName(name)
		if err != nil {
			return wrap(err)
		}
		if inNames[i], err = args.claim(id, name); err != nil {
			return wrap(err)
		}
	}

	outTypes := make([]string, len(out))
	for i, a := range out {
		t, err := zbus.ParseSignature(a.Sig)
		if err != nil {
			return wrap(fmt.Errorf("argument %q: %w", a.Name, err))
		}
		outTypes[i] = goType(t)
	}

	// Several out arguments collapse into a response struct.
	multiOut := len(out) > 1 && !m.NoReply
	var rname string
	var rfields []string
	if multiOut {
		rname, err = g.file.claim(mname+"Response", iface.Name+"."+m.Name)
		if err != nil {
			return wrap(err)
		}
		fields := newScope()
		rfields = make([]string, len(out))
		for i, a := range out {
			name := a.Name
			if name == "" {
				name = fmt.Sprintf("arg%d", i)
			}
			id, err := exportedName(name)
			if err != nil {
				return wrap(err)
			}
			if rfields[i], err = fields.claim(id, name); err != nil {
				return wrap(err)
			}
		}
		g.f("// %s holds the out arguments of [%s.%s].\n", rname, tname, mname)
		g.f("type %s struct {\n", rname)
		for i := range out {
			g.f("\t%s %s\n", rfields[i], outTypes[i])
		}
		g.s("}\n\n")
	}

	g.doc(docInfo{
		first:      fmt.Sprintf("%s calls %s.%s.", mname, iface.Name, m.Name),
		docs:       m.Docs,
		anns:       m.Annotations,
		deprecated: m.Deprecated,
		wire:       iface.Name + "." + m.Name,
		noReply:    m.NoReply,
	})

	g.f("func (o *%s) %s(", tname, mname)
	var params []string
	if g.mode == CallContext {
		params = append(params, "ctx context.Context")
	}
	for i := range in {
		params = append(params, inNames[i]+" "+inTypes[i])
	}
	g.s(strings.Join(params, ", "))
	switch {
	case m.NoReply || len(out) == 0:
		g.s(") error {\n")
	case len(out) == 1:
		g.f(") (%s, error) {\n", outTypes[0])
	default:
		g.f(") (%s, error) {\n", rname)
	}

	flags := "0"
	if m.NoReply {
		flags = "dbus.FlagNoReplyExpected"
	}
	call := fmt.Sprintf("o.obj.Call(%q, %s", iface.Name+"."+m.Name, flags)
	if g.mode == CallContext {
		call = fmt.Sprintf("o.obj.CallWithContext(ctx, %q, %s", iface.Name+"."+m.Name, flags)
	}
	for _, n := range inNames {
		call += ", " + n
	}
	call += ")"

	switch {
	case m.NoReply || len(out) == 0:
		g.f("\treturn %s.Err\n", call)
	case len(out) == 1:
		g.f("\tvar ret %s\n", outTypes[0])
		g.f("\terr := %s.Store(&ret)\n", call)
		g.s("\treturn ret, err\n")
	default:
		g.f("\tvar ret %s\n", rname)
		dests := make([]string, len(out))
		for i := range out {
			dests[i] = "&ret." + rfields[i]
		}
		g.f("\terr := %s.Store(%s)\n", call, strings.Join(dests, ", "))
		g.s("\treturn ret, err\n")
	}
	g.s("}\n\n")
	return nil
}

func (g *generator) property(iface *zbus.Interface, tname string, members *scope, p *zbus.Property) error {
	wrap := func(err error) error {
		return fmt.Errorf("interface %s: property %s: %w", iface.Name, p.Name, err)
	}

	t, err := zbus.ParseSignature(p.Sig)
	if err != nil {
		return wrap(err)
	}
	typ := goType(t)

	base, err := exportedName(p.Name)
	if err != nil {
		return wrap(err)
	}
	getter, err := members.claim(base, p.Name)
	if err != nil {
		return wrap(err)
	}

	full := iface.Name + "." + p.Name

	var notes []string
	switch p.EmitsChanged {
	case "false":
		notes = append(notes, "Changes to the property are not signaled.")
	case "const":
		notes = append(notes, "The value is constant for the object's lifetime.")
	}
	if !p.Access.Readable() {
		notes = append(notes, "The property is declared write-only; reading it may fail.")
	}

	g.doc(docInfo{
		first:      fmt.Sprintf("%s returns the value of the property %s.", getter, full),
		docs:       p.Docs,
		notes:      notes,
		anns:       p.Annotations,
		deprecated: p.Deprecated,
		wire:       full,
	})
	if g.mode == CallContext {
		g.f("func (o *%s) %s(ctx context.Context) (%s, error) {\n", tname, getter, typ)
		g.f("\tvar ret %s\n", typ)
		g.f("\terr := o.obj.CallWithContext(ctx, %q, 0, %q, %q).Store(&ret)\n",
			"org.freedesktop.DBus.Properties.Get", iface.Name, p.Name)
	} else {
		g.f("func (o *%s) %s() (%s, error) {\n", tname, getter, typ)
		g.f("\tvar ret %s\n", typ)
		g.f("\terr := o.obj.StoreProperty(%q, &ret)\n", full)
	}
	g.s("\treturn ret, err\n}\n\n")

	if !p.Access.Writable() {
		return nil
	}

	setter, err := members.claim("Set"+base, p.Name)
	if err != nil {
		return wrap(err)
	}
	g.doc(docInfo{
		first:      fmt.Sprintf("%s sets the property %s to v.", setter, full),
		deprecated: p.Deprecated,
		wire:       full,
	})
	if g.mode == CallContext {
		g.f("func (o *%s) %s(ctx context.Context, v %s) error {\n", tname, setter, typ)
		g.f("\treturn o.obj.CallWithContext(ctx, %q, 0, %q, %q, dbus.MakeVariant(v)).Err\n",
			"org.freedesktop.DBus.Properties.Set", iface.Name, p.Name)
	} else {
		g.f("func (o *%s) %s(v %s) error {\n", tname, setter, typ)
		g.f("\treturn o.obj.SetProperty(%q, dbus.MakeVariant(v))\n", full)
	}
	g.s("}\n\n")
	return nil
}

func (g *generator) signal(iface *zbus.Interface, tname string, members *scope, s *zbus.Signal) error {
	wrap := func(err error) error {
		return fmt.Errorf("interface %s: signal %s: %w", iface.Name, s.Name, err)
	}

	base, err := exportedName(s.Name)
	if err != nil {
		return wrap(err)
	}
	stype, err := g.file.claim(base+"Signal", iface.Name+"."+s.Name)
	if err != nil {
		return wrap(err)
	}
	reader, err := g.file.claim("Read"+stype, iface.Name+"."+s.Name)
	if err != nil {
		return wrap(err)
	}
	matcher, err := members.claim("Match"+base, s.Name)
	if err != nil {
		return wrap(err)
	}

	fields := newScope()
	fnames := make([]string, len(s.Args))
	ftypes := make([]string, len(s.Args))
	for i, a := range s.Args {
		t, err := zbus.ParseSignature(a.Sig)
		if err != nil {
			return wrap(fmt.Errorf("argument %q: %w", a.Name, err))
		}
		ftypes[i] = goType(t)
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		id, err := exportedName(name)
		if err != nil {
			return wrap(err)
		}
		if fnames[i], err = fields.claim(id, name); err != nil {
			return wrap(err)
		}
	}

	g.doc(docInfo{
		first:      fmt.Sprintf("%s is the payload of the signal %s.%s.", stype, iface.Name, s.Name),
		docs:       s.Docs,
		anns:       s.Annotations,
		deprecated: s.Deprecated,
		wire:       iface.Name + "." + s.Name,
	})
	if len(s.Args) == 0 {
		g.f("type %s struct{}\n\n", stype)
	} else {
		g.f("type %s struct {\n", stype)
		for i := range s.Args {
			g.f("\t%s %s\n", fnames[i], ftypes[i])
		}
		g.s("}\n\n")
	}

	g.f("// %s returns match options selecting %s.%s on o's\n// destination object, for use with conn.AddMatchSignal.\n",
		matcher, iface.Name, s.Name)
	g.f("func (o *%s) %s() []dbus.MatchOption {\n", tname, matcher)
	g.s("\treturn []dbus.MatchOption{\n")
	g.f("\t\tdbus.WithMatchInterface(%q),\n", iface.Name)
	g.f("\t\tdbus.WithMatchMember(%q),\n", s.Name)
	g.s("\t\tdbus.WithMatchObjectPath(o.obj.Path()),\n\t}\n}\n\n")

	g.f("// %s decodes a received signal into a %s.\n", reader, stype)
	g.f("func %s(sig *dbus.Signal) (%s, error) {\n", reader, stype)
	if len(s.Args) == 0 {
		g.f("\treturn %s{}, nil\n}\n\n", stype)
		return nil
	}
	g.f("\tvar ret %s\n", stype)
	dests := make([]string, len(s.Args))
	for i := range s.Args {
		dests[i] = "&ret." + fnames[i]
	}
	g.f("\terr := dbus.Store(sig.Body, %s)\n", strings.Join(dests, ", "))
	g.s("\treturn ret, err\n}\n\n")
	return nil
}

// docInfo is the material for one generated doc comment.
type docInfo struct {
	first      string   // leading sentence, already phrased
	docs       []string // documentation carried over from the XML
	notes      []string // extra sentences appended by the generator
	anns       zbus.Annotations
	deprecated bool
	wire       string // wire name used in the deprecation notice
	noReply    bool
}

func (g *generator) doc(d docInfo) {
	g.f("// %s\n", d.first)
	for _, text := range d.docs {
		g.s("//\n")
		for _, line := range strings.Split(text, "\n") {
			g.f("// %s\n", strings.TrimSpace(line))
		}
	}
	for _, n := range d.notes {
		g.f("//\n// %s\n", n)
	}
	if d.noReply {
		g.s("//\n// The call expects no reply; a nil error only means the message\n// was sent.\n")
	}
	if len(d.anns) > 0 {
		g.s("//\n// Annotations:\n")
		for _, a := range d.anns {
			if a.Value == "" {
				g.f("//   - %s\n", a.Name)
			} else {
				g.f("//   - %s: %s\n", a.Name, a.Value)
			}
		}
	}
	if d.deprecated {
		g.f("//\n// Deprecated: %s is marked deprecated in its introspection data.\n", d.wire)
	}
}

// goType renders the Go type used to represent a DBus type in
// generated code. The rendering is purely structural, so equal type
// trees always render identically.
func goType(t *zbus.SigType) string {
	switch t.Kind() {
	case zbus.KindByte:
		return "byte"
	case zbus.KindBool:
		return "bool"
	case zbus.KindInt16:
		return "int16"
	case zbus.KindUint16:
		return "uint16"
	case zbus.KindInt32:
		return "int32"
	case zbus.KindUint32:
		return "uint32"
	case zbus.KindInt64:
		return "int64"
	case zbus.KindUint64:
		return "uint64"
	case zbus.KindDouble:
		return "float64"
	case zbus.KindString:
		return "string"
	case zbus.KindObjectPath:
		return "dbus.ObjectPath"
	case zbus.KindSignature:
		return "dbus.Signature"
	case zbus.KindUnixFD:
		return "dbus.UnixFD"
	case zbus.KindVariant:
		return "dbus.Variant"
	case zbus.KindArray:
		if t.IsDict() {
			return "map[" + goType(t.Elem().Key()) + "]" + goType(t.Elem().Value())
		}
		return "[]" + goType(t.Elem())
	case zbus.KindStruct:
		fields := make([]string, len(t.Fields()))
		for i, f := range t.Fields() {
			fields[i] = fmt.Sprintf("Field%d %s", i, goType(f))
		}
		return "struct {\n\t" + strings.Join(fields, "\n\t") + "\n}"
	}
	panic(fmt.Sprintf("cannot render %v type", t.Kind()))
}
