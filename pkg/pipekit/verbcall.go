package pipekit

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// VerbCall is a deferred verb invocation awaiting its subject. It is an
// Expression: nested inside another verb's arguments it resolves against
// the enclosing subject, and applied through the piping operator (or
// Pipe) it consumes the piped value.
//
// Piping a VerbCall is a one-shot: the second pipe into the same call
// fails with a ConsumedError. Nested evaluation as part of a larger tree
// is not consumption; only the piping entry points are.
type VerbCall struct {
	base
	verb     *Verb
	args     []any
	kwargs   []Kwarg
	id       string
	backend  string
	consumed *atomic.Bool
}

func newVerbCall(v *Verb, pos []any, kws []Kwarg) *VerbCall {
	vc := &VerbCall{
		verb:     v,
		args:     nestedAll(pos),
		kwargs:   nestedKwargs(kws),
		id:       uuid.New().String(),
		consumed: new(atomic.Bool),
	}
	vc.init(vc)
	return vc
}

// ID returns the call's unique identifier.
func (vc *VerbCall) ID() string { return vc.id }

// Verb returns the verb being called.
func (vc *VerbCall) Verb() *Verb { return vc.verb }

// Args returns the positional arguments as stored.
func (vc *VerbCall) Args() []any { return vc.args }

// Kwargs returns the keyword arguments as stored.
func (vc *VerbCall) Kwargs() []Kwarg { return vc.kwargs }

// UsingBackend pins dispatch to one backend. The returned call shares the
// receiver's identity and consumption state; only the backend differs.
func (vc *VerbCall) UsingBackend(name string) *VerbCall {
	c := *vc
	c.backend = name
	c.init(&c)
	return &c
}

// String renders the call with "." standing in for the awaited subject.
// Dependent verbs take no subject, so none is rendered.
func (vc *VerbCall) String() string {
	args := renderArgs(vc.args, vc.kwargs)
	if vc.verb.dependent {
		return fmt.Sprintf("%s(%s)", vc.verb.name, args)
	}
	if args == "" {
		return fmt.Sprintf("%s(.)", vc.verb.name)
	}
	return fmt.Sprintf("%s(., %s)", vc.verb.name, args)
}

func (vc *VerbCall) refLevel() int { return 0 }

func (vc *VerbCall) eval(subject any, ctx Context) (any, error) {
	return vc.verb.evalWith(subject, vc.args, vc.kwargs, ctx, vc.backend)
}

// pipeInto applies the piped subject to the call: the consuming entry
// point behind Pipe and the piping operator.
func (vc *VerbCall) pipeInto(subject any, ctx Context) (any, error) {
	if !vc.verb.pipeable {
		return nil, fmt.Errorf("%w: %q", ErrNotPipeable, vc.verb.name)
	}
	if vc.consumed.Swap(true) {
		return nil, &ConsumedError{Verb: vc.verb.name, CallID: vc.id}
	}
	return vc.eval(subject, ctx)
}

// Evaluate applies a subject to the call directly, with the same one-shot
// consumption as piping.
func (vc *VerbCall) Evaluate(subject any) (any, error) {
	return vc.pipeInto(subject, nil)
}

// Pipe threads a subject through a chain of deferred calls, feeding each
// stage's result into the next.
func Pipe(subject any, calls ...*VerbCall) (any, error) {
	cur := subject
	for _, call := range calls {
		next, err := call.pipeInto(cur, nil)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
