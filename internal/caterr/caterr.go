// Package caterr defines the structured errors reported while loading
// catalogs and resolving catalog references. Every failure carries a Kind
// plus enough context (reference, catalog path, cycle chain) to be rendered
// without the caller re-deriving it.
package caterr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a resolution failure.
type Kind uint8

const (
	NotFound Kind = iota + 1
	IoFailure
	MalformedCatalog
	SchemaMismatch
	EntryNotFound
	AmbiguousEntry
	CircularDependency
	ParameterCycle
	UnknownParameter
	UndeclaredParameter
	ParameterTypeMismatch
)

var kindNames = map[Kind]string{
	NotFound:              "not found",
	IoFailure:             "I/O failure",
	MalformedCatalog:      "malformed catalog",
	SchemaMismatch:        "schema mismatch",
	EntryNotFound:         "entry not found",
	AmbiguousEntry:        "ambiguous entry",
	CircularDependency:    "circular dependency",
	ParameterCycle:        "parameter cycle",
	UnknownParameter:      "unknown parameter",
	UndeclaredParameter:   "undeclared parameter",
	ParameterTypeMismatch: "parameter type mismatch",
}

// String returns the human-readable kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error lets a Kind be used as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error is a resolution failure.
type Error struct {
	Kind     Kind
	Ref      string   // reference being resolved, rendered as catalog/entry
	Top      string   // top-level reference, when Ref is a nested one
	Path     string   // catalog source path
	Name     string   // parameter or entry name the failure is about
	Cycle    []string // ordered cycle for CircularDependency and ParameterCycle
	Expected string   // ParameterTypeMismatch: declared type
	Got      string   // ParameterTypeMismatch: offending value
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	switch {
	case len(e.Cycle) > 0:
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Cycle, " -> "))
	case e.Expected != "":
		fmt.Fprintf(&b, ": expected %s, got %q", e.Expected, e.Got)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	var where []string
	if e.Ref != "" {
		where = append(where, "reference "+e.Ref)
	}
	if e.Path != "" {
		where = append(where, "catalog "+e.Path)
	}
	if e.Top != "" && e.Top != e.Ref {
		where = append(where, "within "+e.Top)
	}
	if len(where) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(where, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New builds an error of the given kind with a formatted reason.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// WithContext fills the reference and path of err when they are still
// empty. The innermost context wins, so a nested failure keeps pointing at
// the catalog it actually happened in. err is never modified in place:
// errors may be shared between waiters of one in-flight computation.
func WithContext(err error, ref, path string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	if (e.Ref != "" || ref == "") && (e.Path != "" || path == "") {
		return err
	}
	c := *e
	if c.Ref == "" {
		c.Ref = ref
	}
	if c.Path == "" {
		c.Path = path
	}
	return &c
}

// WithTop records the top-level reference on err, leaving the innermost
// Ref in place. Like WithContext it returns a copy.
func WithTop(err error, top string) error {
	e, ok := err.(*Error)
	if !ok || e.Top != "" || top == "" {
		return err
	}
	c := *e
	c.Top = top
	return &c
}
