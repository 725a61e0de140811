package zbus

import "fmt"

// StructuralError is the error returned when an introspection
// document is malformed: an unexpected element, a missing required
// attribute, or XML that does not parse at all.
type StructuralError struct {
	// Element is the name of the offending XML element.
	Element string
	// Offset is the byte offset in the document at which the problem
	// was detected.
	Offset int64
	// Reason is an explanation of what is wrong with the element.
	Reason error
}

func (e StructuralError) Error() string {
	return fmt.Sprintf("invalid introspection document: element <%s> at offset %d: %s", e.Element, e.Offset, e.Reason)
}

func (e StructuralError) Unwrap() error {
	return e.Reason
}

func structuralErr(elem string, off int64, reason string, args ...any) error {
	return StructuralError{elem, off, fmt.Errorf(reason, args...)}
}

// SignatureError is the error returned when a type signature string
// is not well formed.
type SignatureError struct {
	// Signature is the full signature string being parsed.
	Signature string
	// Offset is the index of the first byte that made the signature
	// invalid. For truncated signatures it is len(Signature).
	Offset int
	// Reason is an explanation of why the signature is invalid.
	Reason error
}

func (e SignatureError) Error() string {
	return fmt.Sprintf("invalid type signature %q at offset %d: %s", e.Signature, e.Offset, e.Reason)
}

func (e SignatureError) Unwrap() error {
	return e.Reason
}

func sigErr(sig string, off int, reason string, args ...any) error {
	return SignatureError{sig, off, fmt.Errorf(reason, args...)}
}

// NamingError is the error returned when a wire name cannot be turned
// into a usable identifier: it reduces to nothing, or it collides
// with another name in a way that cannot be resolved.
type NamingError struct {
	// Name is the wire name that failed to transform.
	Name string
	// Other is the previously seen wire name that Name collides
	// with. Empty if the failure is not a collision.
	Other string
	// Reason is an explanation of the failure.
	Reason error
}

func (e NamingError) Error() string {
	if e.Other == "" {
		return fmt.Sprintf("cannot derive identifier from %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("cannot derive identifier from %q (collides with %q): %s", e.Name, e.Other, e.Reason)
}

func (e NamingError) Unwrap() error {
	return e.Reason
}

// ModelError is the error returned when a document parses but
// describes an impossible API: duplicate interface names, duplicate
// argument names within one member, or an invalid interface name.
type ModelError struct {
	// Interface is the name of the interface the problem was found
	// in, or the offending interface name itself.
	Interface string
	// Member is the method, signal or property involved, if any.
	Member string
	// Reason is an explanation of the inconsistency.
	Reason error
}

func (e ModelError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("invalid interface %s: %s", e.Interface, e.Reason)
	}
	return fmt.Sprintf("invalid interface %s: member %s: %s", e.Interface, e.Member, e.Reason)
}

func (e ModelError) Unwrap() error {
	return e.Reason
}

func modelErr(iface, member, reason string, args ...any) error {
	return ModelError{iface, member, fmt.Errorf(reason, args...)}
}
