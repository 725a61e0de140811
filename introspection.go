package zbus

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// A Node is the root of one introspection document: the API of one
// object, along with the relative paths of its child objects.
//
// Node contents are provided by the DBus peer hosting the object,
// and may not accurately reflect the actual exposed API or object
// structure.
type Node struct {
	// Name is the object path the document describes. Often empty:
	// peers are not required to name the root node.
	Name string
	// Interfaces is the interfaces the object implements, in
	// document order.
	Interfaces []*Interface
	// Children is the object's child nodes. Children are
	// informational only, and are not expanded into bindings.
	Children []*Node
	// Annotations is extension data found on the node that this
	// package does not interpret.
	Annotations Annotations
}

// An Annotation is one key/value metadata pair attached to an
// element of an introspection document.
//
// A few annotation keys are recognized and folded into model fields
// (deprecation, no-reply methods, property change notification).
// Everything else is carried through verbatim, so documents using
// extension annotations still generate bindings.
type Annotation struct {
	Name  string
	Value string
}

// Annotations is an open set of annotations, in document order.
type Annotations []Annotation

// Lookup returns the value of the first annotation named name.
func (as Annotations) Lookup(name string) (value string, ok bool) {
	for _, a := range as {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Recognized annotation names. Annotations carrying these names
// change the shape of generated code instead of passing through as
// documentation.
const (
	annDeprecated   = "org.freedesktop.DBus.Deprecated"
	annNoReply      = "org.freedesktop.DBus.Method.NoReply"
	annEmitsChanged = "org.freedesktop.DBus.Property.EmitsChangedSignal"
)

// An Interface describes one named DBus interface.
type Interface struct {
	Name       string
	Methods    []*Method
	Signals    []*Signal
	Properties []*Property
	// Deprecated, if true, indicates that the whole interface should
	// be avoided in new code.
	Deprecated  bool
	Annotations Annotations
	// Docs is documentation text found in the document, carried
	// through verbatim into generated comments.
	Docs []string
}

func (d *Interface) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "interface %s {\n", d.Name)
	for _, m := range d.Methods {
		fmt.Fprintf(&ret, "  %s\n", m)
	}
	for _, s := range d.Signals {
		fmt.Fprintf(&ret, "  %s\n", s)
	}
	for _, p := range d.Properties {
		fmt.Fprintf(&ret, "  %s\n", p)
	}
	ret.WriteString("}")
	return ret.String()
}

// A Method describes a DBus method.
type Method struct {
	Name string
	// Args is the method's arguments in declared order, in and out
	// directions interleaved exactly as the document declares them.
	Args []Arg
	// Deprecated, if true, indicates that the method should be
	// avoided in new code.
	Deprecated bool
	// NoReply, if true, indicates that the method never sends a
	// reply and should be invoked fire-and-forget.
	NoReply     bool
	Annotations Annotations
	Docs        []string
}

// In returns the method's in arguments, preserving declared order.
func (m *Method) In() []Arg { return filterArgs(m.Args, In) }

// Out returns the method's out arguments, preserving declared order.
func (m *Method) Out() []Arg { return filterArgs(m.Args, Out) }

func filterArgs(args []Arg, dir Direction) []Arg {
	var ret []Arg
	for _, a := range args {
		if a.Direction == dir {
			ret = append(ret, a)
		}
	}
	return ret
}

func (m *Method) String() string {
	var ret strings.Builder
	ret.WriteString("func ")
	ret.WriteString(m.Name)
	ret.WriteByte('(')
	for i, arg := range m.In() {
		if i > 0 {
			ret.WriteString(", ")
		}
		ret.WriteString(arg.String())
	}
	ret.WriteByte(')')
	if out := m.Out(); len(out) > 0 {
		ret.WriteString(" (")
		for i, arg := range out {
			if i > 0 {
				ret.WriteString(", ")
			}
			ret.WriteString(arg.String())
		}
		ret.WriteByte(')')
	}
	switch {
	case m.Deprecated && m.NoReply:
		ret.WriteString(" [deprecated,noreply]")
	case m.Deprecated:
		ret.WriteString(" [deprecated]")
	case m.NoReply:
		ret.WriteString(" [noreply]")
	}
	return ret.String()
}

// A Signal describes a DBus signal.
type Signal struct {
	Name string
	// Args is the signal's payload in declared order. Signal
	// arguments are always outputs.
	Args []Arg
	// Deprecated, if true, indicates that the signal should be
	// avoided in new code.
	Deprecated  bool
	Annotations Annotations
	Docs        []string
}

func (s *Signal) String() string {
	var ret strings.Builder
	ret.WriteString("signal ")
	ret.WriteString(s.Name)
	ret.WriteByte('(')
	for i, arg := range s.Args {
		if i > 0 {
			ret.WriteString(", ")
		}
		ret.WriteString(arg.String())
	}
	ret.WriteByte(')')
	if s.Deprecated {
		ret.WriteString(" [deprecated]")
	}
	return ret.String()
}

// Access is a property's access mode.
type Access int

const (
	ReadAccess Access = iota
	WriteAccess
	ReadWriteAccess
)

func (a Access) String() string {
	switch a {
	case ReadAccess:
		return "read"
	case WriteAccess:
		return "write"
	case ReadWriteAccess:
		return "readwrite"
	}
	return "invalid"
}

// Readable reports whether the access mode permits reads.
func (a Access) Readable() bool { return a == ReadAccess || a == ReadWriteAccess }

// Writable reports whether the access mode permits writes.
func (a Access) Writable() bool { return a == WriteAccess || a == ReadWriteAccess }

// A Property describes a DBus property.
type Property struct {
	Name string
	// Sig is the property's wire type signature. The parser carries
	// it verbatim; it is mapped to a type tree by the consumer.
	Sig    string
	Access Access
	// EmitsChanged is the verbatim value of the EmitsChangedSignal
	// annotation, empty when absent. "false" means the property
	// changes without notification, "const" that it never changes.
	EmitsChanged string
	// Deprecated, if true, indicates that the property should be
	// avoided in new code.
	Deprecated  bool
	Annotations Annotations
	Docs        []string
}

func (p *Property) String() string {
	ret := fmt.Sprintf("%s %s %s", p.Access, p.Name, p.Sig)
	if p.Deprecated {
		ret += " [deprecated]"
	}
	return ret
}

// Direction says whether an argument is an input to a call or an
// output from it.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// An Arg is one argument of a method or signal.
type Arg struct {
	// Name is the argument's wire name. Optional; unnamed arguments
	// are common in the wild.
	Name string
	// Sig is the argument's wire type signature.
	Sig       string
	Direction Direction
}

func (a Arg) String() string {
	if a.Name == "" {
		return a.Sig
	}
	return fmt.Sprintf("%s %s", a.Name, a.Sig)
}

// ParseDocument parses one introspection document into its Node
// tree. The document text is supplied in full; ParseDocument does no
// I/O of its own.
//
// Structural problems (malformed XML, missing required attributes)
// are reported as [StructuralError]; well-formed documents that
// describe an impossible API (duplicate interface names, duplicate
// argument names) are reported as [ModelError]. Unknown extension
// elements and attributes never fail the parse: they are carried
// through on the model's annotation bags.
func ParseDocument(doc []byte) (*Node, error) {
	d := xml.NewDecoder(bytes.NewReader(doc))

	// Find the document element, skipping the prolog.
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, structuralErr("node", d.InputOffset(), "document contains no root element")
		}
		if err != nil {
			return nil, StructuralError{"node", d.InputOffset(), err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "node" {
			return nil, structuralErr(start.Name.Local, d.InputOffset(), "root element is <%s>, want <node>", start.Name.Local)
		}
		return parseNode(d, start)
	}
}

func parseNode(d *xml.Decoder, start xml.StartElement) (*Node, error) {
	n := &Node{}
	for _, attr := range start.Attr {
		if attr.Name.Local == "name" {
			n.Name = attr.Value
		} else {
			n.Annotations = append(n.Annotations, Annotation{attrKey(attr), attr.Value})
		}
	}

	seen := map[string]bool{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, StructuralError{"node", d.InputOffset(), err}
		}
		switch tok := tok.(type) {
		case xml.EndElement:
			return n, nil
		case xml.StartElement:
			switch tok.Name.Local {
			case "interface":
				iface, err := parseInterface(d, tok)
				if err != nil {
					return nil, err
				}
				if seen[iface.Name] {
					return nil, modelErr(iface.Name, "", "duplicate interface name")
				}
				seen[iface.Name] = true
				n.Interfaces = append(n.Interfaces, iface)
			case "node":
				child, err := parseNode(d, tok)
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, child)
			default:
				ann, err := parseUnknown(d, tok)
				if err != nil {
					return nil, err
				}
				n.Annotations = append(n.Annotations, ann)
			}
		}
	}
}

func parseInterface(d *xml.Decoder, start xml.StartElement) (*Interface, error) {
	iface := &Interface{}
	for _, attr := range start.Attr {
		if attr.Name.Local == "name" {
			iface.Name = attr.Value
		} else {
			iface.Annotations = append(iface.Annotations, Annotation{attrKey(attr), attr.Value})
		}
	}
	if iface.Name == "" {
		return nil, structuralErr("interface", d.InputOffset(), "missing required attribute %q", "name")
	}
	if reason := checkInterfaceName(iface.Name); reason != "" {
		return nil, modelErr(iface.Name, "", "%s", reason)
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return nil, StructuralError{"interface", d.InputOffset(), err}
		}
		switch tok := tok.(type) {
		case xml.EndElement:
			for _, a := range iface.Annotations {
				if a.Name == annDeprecated && a.Value == "true" {
					iface.Deprecated = true
				}
			}
			iface.Annotations = dropRecognized(iface.Annotations)
			return iface, nil
		case xml.StartElement:
			switch tok.Name.Local {
			case "method":
				m, err := parseMethod(d, tok, iface.Name)
				if err != nil {
					return nil, err
				}
				iface.Methods = append(iface.Methods, m)
			case "signal":
				s, err := parseSignal(d, tok, iface.Name)
				if err != nil {
					return nil, err
				}
				iface.Signals = append(iface.Signals, s)
			case "property":
				p, err := parseProperty(d, tok, iface.Name)
				if err != nil {
					return nil, err
				}
				iface.Properties = append(iface.Properties, p)
			case "annotation":
				ann, err := parseAnnotation(d, tok)
				if err != nil {
					return nil, err
				}
				iface.Annotations = append(iface.Annotations, ann)
			default:
				if isDocElement(tok.Name) {
					doc, err := collectText(d)
					if err != nil {
						return nil, err
					}
					iface.Docs = append(iface.Docs, doc)
					continue
				}
				ann, err := parseUnknown(d, tok)
				if err != nil {
					return nil, err
				}
				iface.Annotations = append(iface.Annotations, ann)
			}
		}
	}
}

// memberParts is the scaffolding shared by method, signal and
// property element parsing.
type memberParts struct {
	name        string
	args        []Arg
	annotations Annotations
	docs        []string
	extraAttr   []Annotation // non-name attributes, in document order
}

func (p *memberParts) takeAttr(name string) (string, bool) {
	for i, a := range p.extraAttr {
		if a.Name == name {
			p.extraAttr = append(p.extraAttr[:i:i], p.extraAttr[i+1:]...)
			return a.Value, true
		}
	}
	return "", false
}

func parseMember(d *xml.Decoder, start xml.StartElement, iface string, argsAllowed, isSignal bool) (*memberParts, error) {
	elem := start.Name.Local
	p := &memberParts{}
	for _, attr := range start.Attr {
		if attr.Name.Local == "name" && attr.Name.Space == "" {
			p.name = attr.Value
		} else {
			p.extraAttr = append(p.extraAttr, Annotation{attrKey(attr), attr.Value})
		}
	}
	if p.name == "" {
		return nil, structuralErr(elem, d.InputOffset(), "missing required attribute %q", "name")
	}
	if strings.ContainsAny(p.name, "/.") {
		return nil, modelErr(iface, p.name, "member name contains a path separator")
	}

	argNames := map[string]bool{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, StructuralError{elem, d.InputOffset(), err}
		}
		switch tok := tok.(type) {
		case xml.EndElement:
			return p, nil
		case xml.StartElement:
			switch tok.Name.Local {
			case "arg":
				if !argsAllowed {
					return nil, structuralErr(elem, d.InputOffset(), "<%s> cannot have arguments", elem)
				}
				arg, err := parseArg(d, tok, isSignal)
				if err != nil {
					return nil, err
				}
				if arg.Name != "" {
					if argNames[arg.Name] {
						return nil, modelErr(iface, p.name, "duplicate argument name %q", arg.Name)
					}
					argNames[arg.Name] = true
				}
				p.args = append(p.args, arg)
			case "annotation":
				ann, err := parseAnnotation(d, tok)
				if err != nil {
					return nil, err
				}
				p.annotations = append(p.annotations, ann)
			default:
				if isDocElement(tok.Name) {
					doc, err := collectText(d)
					if err != nil {
						return nil, err
					}
					p.docs = append(p.docs, doc)
					continue
				}
				ann, err := parseUnknown(d, tok)
				if err != nil {
					return nil, err
				}
				p.annotations = append(p.annotations, ann)
			}
		}
	}
}

func parseMethod(d *xml.Decoder, start xml.StartElement, iface string) (*Method, error) {
	p, err := parseMember(d, start, iface, true, false)
	if err != nil {
		return nil, err
	}
	m := &Method{
		Name: p.name,
		Args: p.args,
		Docs: p.docs,
	}
	for _, a := range p.annotations {
		switch {
		case a.Name == annDeprecated && a.Value == "true":
			m.Deprecated = true
		case a.Name == annNoReply && a.Value == "true":
			m.NoReply = true
		}
	}
	m.Annotations = append(dropRecognized(p.annotations), p.extraAttr...)
	return m, nil
}

func parseSignal(d *xml.Decoder, start xml.StartElement, iface string) (*Signal, error) {
	p, err := parseMember(d, start, iface, true, true)
	if err != nil {
		return nil, err
	}
	s := &Signal{
		Name: p.name,
		Args: p.args,
		Docs: p.docs,
	}
	for _, a := range p.annotations {
		if a.Name == annDeprecated && a.Value == "true" {
			s.Deprecated = true
		}
	}
	s.Annotations = append(dropRecognized(p.annotations), p.extraAttr...)
	return s, nil
}

func parseProperty(d *xml.Decoder, start xml.StartElement, iface string) (*Property, error) {
	p, err := parseMember(d, start, iface, false, false)
	if err != nil {
		return nil, err
	}
	prop := &Property{
		Name: p.name,
		Docs: p.docs,
	}
	prop.Sig, _ = p.takeAttr("type")
	if prop.Sig == "" {
		return nil, structuralErr("property", d.InputOffset(), "missing required attribute %q", "type")
	}
	access, ok := p.takeAttr("access")
	if !ok {
		return nil, structuralErr("property", d.InputOffset(), "missing required attribute %q", "access")
	}
	switch access {
	case "read":
		prop.Access = ReadAccess
	case "write":
		prop.Access = WriteAccess
	case "readwrite":
		prop.Access = ReadWriteAccess
	default:
		return nil, structuralErr("property", d.InputOffset(), "invalid access %q", access)
	}
	for _, a := range p.annotations {
		switch {
		case a.Name == annDeprecated && a.Value == "true":
			prop.Deprecated = true
		case a.Name == annEmitsChanged:
			prop.EmitsChanged = a.Value
		}
	}
	prop.Annotations = append(dropRecognized(p.annotations), p.extraAttr...)
	return prop, nil
}

func parseArg(d *xml.Decoder, start xml.StartElement, isSignal bool) (Arg, error) {
	arg := Arg{}
	if isSignal {
		arg.Direction = Out
	}
	var dir string
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "name":
			arg.Name = attr.Value
		case "type":
			arg.Sig = attr.Value
		case "direction":
			dir = attr.Value
		}
	}
	if arg.Sig == "" {
		return Arg{}, structuralErr("arg", d.InputOffset(), "missing required attribute %q", "type")
	}
	switch dir {
	case "":
	case "in":
		if isSignal {
			return Arg{}, structuralErr("arg", d.InputOffset(), "signal arguments cannot have direction %q", dir)
		}
		arg.Direction = In
	case "out":
		arg.Direction = Out
	default:
		return Arg{}, structuralErr("arg", d.InputOffset(), "invalid direction %q", dir)
	}
	if err := d.Skip(); err != nil {
		return Arg{}, StructuralError{"arg", d.InputOffset(), err}
	}
	return arg, nil
}

func parseAnnotation(d *xml.Decoder, start xml.StartElement) (Annotation, error) {
	var ann Annotation
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "name":
			ann.Name = attr.Value
		case "value":
			ann.Value = attr.Value
		}
	}
	if ann.Name == "" {
		return Annotation{}, structuralErr("annotation", d.InputOffset(), "missing required attribute %q", "name")
	}
	if err := d.Skip(); err != nil {
		return Annotation{}, StructuralError{"annotation", d.InputOffset(), err}
	}
	return ann, nil
}

// parseUnknown consumes an element this package does not understand
// and flattens it into an annotation, so extension data survives the
// round trip into generated documentation.
func parseUnknown(d *xml.Decoder, start xml.StartElement) (Annotation, error) {
	key := start.Name.Local
	if start.Name.Space != "" {
		key = start.Name.Space + ":" + start.Name.Local
	}
	val := ""
	for _, attr := range start.Attr {
		if attr.Name.Local == "name" {
			val = attr.Value
		}
	}
	text, err := collectText(d)
	if err != nil {
		return Annotation{}, err
	}
	if val == "" {
		val = text
	}
	return Annotation{key, val}, nil
}

// collectText consumes the current element and returns its character
// data, flattened and whitespace-trimmed.
func collectText(d *xml.Decoder) (string, error) {
	var buf strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return "", StructuralError{"doc", d.InputOffset(), err}
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			buf.Write(tok)
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func isDocElement(name xml.Name) bool {
	switch name.Local {
	case "doc", "docstring":
		return true
	}
	return false
}

func attrKey(attr xml.Attr) string {
	if attr.Name.Space != "" {
		return attr.Name.Space + ":" + attr.Name.Local
	}
	return attr.Name.Local
}

func dropRecognized(as Annotations) Annotations {
	var ret Annotations
	for _, a := range as {
		switch a.Name {
		case annDeprecated, annNoReply, annEmitsChanged:
		default:
			ret = append(ret, a)
		}
	}
	return ret
}

// checkInterfaceName validates name against the DBus interface name
// rules: dot-separated elements of [A-Za-z0-9_], at least two
// elements, no element starting with a digit, at most 255 bytes.
// Returns a reason string, empty if the name is valid.
func checkInterfaceName(name string) string {
	if len(name) > 255 {
		return "interface name longer than 255 bytes"
	}
	if !strings.Contains(name, ".") {
		return "interface name has no dot"
	}
	for _, elem := range strings.Split(name, ".") {
		if elem == "" {
			return "interface name has an empty element"
		}
		if elem[0] >= '0' && elem[0] <= '9' {
			return fmt.Sprintf("interface name element %q starts with a digit", elem)
		}
		for _, r := range elem {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			default:
				return fmt.Sprintf("interface name element %q contains %q", elem, r)
			}
		}
	}
	return ""
}
