// Package qerr holds the error type shared by the shape model, the query
// validator and the pipeline compiler.
package qerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags a compilation failure.
type Kind int

const (
	// UnknownField is returned when a referenced field path is not in the shape.
	UnknownField Kind = iota + 1

	// UnsupportedOperator is returned for a logical operator or connective
	// that has no pipeline equivalent.
	UnsupportedOperator

	// CyclicAncestry is returned when a field is its own ancestor.
	CyclicAncestry

	// MalformedPayload is returned when the raw request does not have the
	// expected structure or carries invalid values.
	MalformedPayload

	// InvalidShape is returned when the shape description is inconsistent,
	// for example when a parent_path names a field that does not exist.
	InvalidShape
)

func (k Kind) String() string {
	switch k {
	case UnknownField:
		return "unknown-field"
	case UnsupportedOperator:
		return "unsupported-operator"
	case CyclicAncestry:
		return "cyclic-ancestry"
	case MalformedPayload:
		return "malformed-payload"
	case InvalidShape:
		return "invalid-shape"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a compilation failure with enough context to diagnose it
// without re-running the request.
type Error struct {
	Kind   Kind
	Path   string
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("pipejin: ")
	sb.WriteString(e.Kind.String())

	if e.Path != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Path)
		sb.WriteString("]")
	}
	if e.Op != "" {
		sb.WriteString(" operator '")
		sb.WriteString(e.Op)
		sb.WriteString("'")
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so that callers can test with
// errors.Is(err, &qerr.Error{Kind: qerr.UnknownField}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsValidation reports whether the kind describes bad caller input rather
// than bad configuration.
func (k Kind) IsValidation() bool {
	return k == UnknownField || k == MalformedPayload || k == UnsupportedOperator
}

func Unknown(path string) *Error {
	return &Error{Kind: UnknownField, Path: path}
}

func Unsupported(op string) *Error {
	return &Error{Kind: UnsupportedOperator, Op: op}
}

func Cyclic(path string) *Error {
	return &Error{Kind: CyclicAncestry, Path: path, Reason: "field is its own ancestor"}
}

func Malformed(path, format string, args ...any) *Error {
	return &Error{Kind: MalformedPayload, Path: path, Reason: fmt.Sprintf(format, args...)}
}

func Shape(path, format string, args ...any) *Error {
	return &Error{Kind: InvalidShape, Path: path, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in the chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
