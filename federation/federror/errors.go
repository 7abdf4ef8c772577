package federror

import (
	"errors"
	"fmt"
	"strings"
)

// Location points at a position inside a subgraph's SDL.
type Location struct {
	Subgraph string
	Line     int
	Column   int
}

func (l Location) String() string {
	return fmt.Sprintf("[%s] %d:%d", l.Subgraph, l.Line, l.Column)
}

// SingleError is one coded federation error.
type SingleError struct {
	Code      Code
	Message   string
	Locations []Location
	Cause     error
}

// New returns a coded error with a formatted message.
func New(code Code, format string, args ...any) *SingleError {
	return &SingleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Internalf returns an INTERNAL error. Internal errors signal a broken
// invariant rather than invalid user input.
func Internalf(format string, args ...any) *SingleError {
	return New(Internal, format, args...)
}

// WithLocations returns a copy of e carrying locs.
func (e *SingleError) WithLocations(locs ...Location) *SingleError {
	c := *e
	c.Locations = append(append([]Location(nil), e.Locations...), locs...)
	return &c
}

// WithCause returns a copy of e wrapping cause.
func (e *SingleError) WithCause(cause error) *SingleError {
	c := *e
	c.Cause = cause
	return &c
}

func (e *SingleError) Error() string {
	if e.Code == Internal {
		return "An internal error has occurred, please report this bug.\n\nDetails: " + e.Message
	}
	return e.Message
}

func (e *SingleError) Unwrap() error { return e.Cause }

// Is matches another *SingleError with the same code.
func (e *SingleError) Is(target error) bool {
	t, ok := target.(*SingleError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// CodeOf returns the code of the first coded error in err's chain.
func CodeOf(err error) (Code, bool) {
	var se *SingleError
	if errors.As(err, &se) {
		return se.Code, true
	}
	var ae *AggregateError
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}

// IsInternal reports whether err is (or wraps) an INTERNAL error.
func IsInternal(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == Internal
}

// MultipleErrors is an ordered collection of independent errors.
type MultipleErrors struct {
	Errors []*SingleError
}

// Push appends err, flattening nested collections. Errors that are not
// federation errors are wrapped as INTERNAL.
func (m *MultipleErrors) Push(err error) {
	if err == nil {
		return
	}
	m.Errors = append(m.Errors, Flatten(err)...)
}

// Len returns the number of collected errors.
func (m *MultipleErrors) Len() int { return len(m.Errors) }

// ErrorOrNil returns nil when empty, the only error when there is one, and m otherwise.
func (m *MultipleErrors) ErrorOrNil() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	}
	return m
}

func (m *MultipleErrors) Error() string {
	var b strings.Builder
	b.WriteString("The following errors occurred:")
	for _, e := range m.Errors {
		b.WriteString("\n  - ")
		b.WriteString(indent(e.Error()))
	}
	return b.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultipleErrors) Unwrap() []error {
	errs := make([]error, len(m.Errors))
	for i, e := range m.Errors {
		errs[i] = e
	}
	return errs
}

// AggregateError groups causes under one coded summary message.
type AggregateError struct {
	Code    Code
	Message string
	Causes  []*SingleError
}

func (a *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\nCaused by:", a.Code, a.Message)
	for _, e := range a.Causes {
		b.WriteString("\n\n  - ")
		b.WriteString(indent(e.Error()))
	}
	return b.String()
}

func (a *AggregateError) Unwrap() []error {
	errs := make([]error, len(a.Causes))
	for i, e := range a.Causes {
		errs[i] = e
	}
	return errs
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}

// Flatten returns the single errors contained in err, in order.
func Flatten(err error) []*SingleError {
	switch e := err.(type) {
	case nil:
		return nil
	case *SingleError:
		return []*SingleError{e}
	case *MultipleErrors:
		return append([]*SingleError(nil), e.Errors...)
	case *AggregateError:
		return append([]*SingleError(nil), e.Causes...)
	}
	var se *SingleError
	if errors.As(err, &se) {
		return []*SingleError{se}
	}
	var me *MultipleErrors
	if errors.As(err, &me) {
		return append([]*SingleError(nil), me.Errors...)
	}
	return []*SingleError{Internalf("%v", err).WithCause(err)}
}
