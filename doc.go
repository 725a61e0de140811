// Package zbus turns DBus introspection documents into data a code
// generator can consume: a model of the interfaces, methods, signals
// and properties an object exposes, and a semantic type tree for each
// wire type signature.
//
// [ParseDocument] parses one introspection XML document into a [Node]
// tree, carrying unknown extension elements and attributes through as
// annotations instead of rejecting them. [ParseSignature] parses one
// wire type signature into a [SigType] tree whose [SigType.String]
// reproduces the signature exactly.
//
// Both transforms are pure: they do no I/O, keep no state between
// calls, and return the same result for the same input. Generating Go
// source from the parsed model is the job of the gen subpackage; the
// zbus-xmlgen command wraps both behind a CLI.
package zbus
