package pipekit

import (
	"errors"
	"fmt"
)

// Sentinel errors for expression evaluation.
var (
	// ErrNoContext indicates a Reference was evaluated without a context.
	ErrNoContext = errors.New("cannot evaluate reference without a context")

	// ErrNotCallable indicates a FuncCall target evaluated to a value that
	// cannot be invoked.
	ErrNotCallable = errors.New("value is not callable")

	// ErrUnknownOperator indicates no handler exists for an operator symbol
	// in the active operator set.
	ErrUnknownOperator = errors.New("unknown operator")
)

// Sentinel errors for verb invocation.
var (
	// ErrCallConsumed indicates a pipeline call was fed a second subject.
	ErrCallConsumed = errors.New("pipeline call already consumed")

	// ErrMissingSubject indicates a normal-mode invocation had no subject
	// argument and no ambient subject was set.
	ErrMissingSubject = errors.New("missing subject argument")

	// ErrNotPipeable indicates Pipe was called on a verb registered as
	// not pipeable.
	ErrNotPipeable = errors.New("verb is not pipeable")

	// ErrUndetermined indicates the call-site mode could not be determined
	// and the fallback policy is FallbackRaise.
	ErrUndetermined = errors.New("call-site mode could not be determined")
)

// ResolutionError indicates a Reference could not be resolved against the
// evaluated parent value. It names the key and the nesting level so failures
// deep inside a compound expression remain debuggable.
type ResolutionError struct {
	// Key is the attribute name or subscript key that failed to resolve.
	Key any
	// Level is the number of reference hops from the root symbol.
	Level int
	// Kind is the reference kind ("attr" or "item").
	Kind string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resolve %s %v (level %d): %v", e.Kind, e.Key, e.Level, e.Err)
	}
	return fmt.Sprintf("cannot resolve %s %v (level %d)", e.Kind, e.Key, e.Level)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ContextError indicates an expression that requires a context was evaluated
// without one.
type ContextError struct {
	// Node is the string rendering of the node that needed a context.
	Node string
}

// Error implements the error interface.
func (e *ContextError) Error() string {
	return fmt.Sprintf("expression %s: %v", e.Node, ErrNoContext)
}

// Unwrap returns ErrNoContext for errors.Is support.
func (e *ContextError) Unwrap() error {
	return ErrNoContext
}

// OperatorError wraps a failure from an operator handler.
type OperatorError struct {
	// Symbol is the canonical operator name (e.g. "add").
	Symbol string
	// Operands are the evaluated operand values.
	Operands []any
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *OperatorError) Error() string {
	return fmt.Sprintf("operator %s: %v", e.Symbol, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperatorError) Unwrap() error {
	return e.Err
}

// DetectionError indicates the call-site mode resolver returned Undetermined
// and the verb's fallback policy is FallbackRaise. It carries the best-effort
// source location of the call site.
type DetectionError struct {
	// Verb is the name of the verb being invoked.
	Verb string
	// File and Line locate the call site, when available.
	File string
	Line int
}

// Error implements the error interface.
func (e *DetectionError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("verb %s at %s:%d: %v", e.Verb, e.File, e.Line, ErrUndetermined)
	}
	return fmt.Sprintf("verb %s: %v", e.Verb, ErrUndetermined)
}

// Unwrap returns ErrUndetermined for errors.Is support.
func (e *DetectionError) Unwrap() error {
	return ErrUndetermined
}

// ConsumedError indicates a VerbCall was evaluated against a second subject.
type ConsumedError struct {
	// Verb is the name of the verb the call belongs to.
	Verb string
	// CallID is the unique identifier of the consumed call.
	CallID string
}

// Error implements the error interface.
func (e *ConsumedError) Error() string {
	return fmt.Sprintf("verb %s (call %s): %v", e.Verb, e.CallID, ErrCallConsumed)
}

// Unwrap returns ErrCallConsumed for errors.Is support.
func (e *ConsumedError) Unwrap() error {
	return ErrCallConsumed
}
