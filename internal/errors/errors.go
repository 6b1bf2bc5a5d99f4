// Package errors provides the error taxonomy of the partitioned NLP adapter.
//
// Every failure carries a Kind. Callers match kinds with the sentinels:
//
//	if errors.Is(err, errors.ErrSizeMismatch) { ... }
//
// None of the kinds describe transient conditions, so nothing in this module
// retries on them.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies an Error.
type Kind uint8

const (
	// KindUnknown is the zero value; it never matches a sentinel.
	KindUnknown Kind = iota
	// KindProblemSizeMismatch means the serial problem reported a structure that
	// disagrees with the harvested snapshot, or an invalid coordinate.
	KindProblemSizeMismatch
	// KindPartitionGap means partition ranges are out of bounds, overlap, leave
	// gaps, or changed after the index maps were built.
	KindPartitionGap
	// KindSizeMismatch means a caller buffer length disagrees with the length
	// the adapter expects for it.
	KindSizeMismatch
	// KindEvaluation means the wrapped serial problem failed an evaluation.
	KindEvaluation
	// KindInvalidArgument means a constructor was given a nil problem or an
	// unknown setting.
	KindInvalidArgument
)

// String returns the kind name used in messages, logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindProblemSizeMismatch:
		return "problem_size_mismatch"
	case KindPartitionGap:
		return "partition_gap"
	case KindSizeMismatch:
		return "size_mismatch"
	case KindEvaluation:
		return "evaluation"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrProblemSizeMismatch = &Error{Kind: KindProblemSizeMismatch, Message: "problem size mismatch"}
	ErrPartitionGap        = &Error{Kind: KindPartitionGap, Message: "partition gap"}
	ErrSizeMismatch        = &Error{Kind: KindSizeMismatch, Message: "size mismatch"}
	ErrEvaluation          = &Error{Kind: KindEvaluation, Message: "evaluation failed"}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
)

// Error represents an adapter error with context and stack trace.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// The underlying error, if any
	Err error
	// A human-readable message describing the error
	Message string
	// The operation that was being performed when the error occurred
	Operation string
	// The component or package where the error occurred
	Component string
	// The stack trace
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	if e.Component != "" {
		b.WriteString(e.Component)
	}
	if e.Operation != "" {
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(e.Operation)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}

	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	b.WriteString(msg)

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind == KindUnknown {
		return false
	}
	return e.Kind == t.Kind
}

// WithOperation sets the operation and returns e.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent sets the component and returns e.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// StackTrace returns the stack trace captured at construction.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{
		Kind:    kind,
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Errorf creates an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Stack:   getStackTrace(),
	}
}

// Wrap wraps err as the given kind. A nil err yields nil.
func Wrap(err error, kind Kind, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Err:     err,
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// getStackTrace returns the current stack trace as a slice of strings.
func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // skip runtime.Callers, getStackTrace and the constructor
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/errors") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return stack
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
