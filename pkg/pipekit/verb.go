package pipekit

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"github.com/randalmurphal/pipekit/pkg/pipekit/diag"
	"github.com/randalmurphal/pipekit/pkg/pipekit/dispatch"
	"github.com/randalmurphal/pipekit/pkg/pipekit/registry"
)

// Impl is the implementation signature for a verb: it receives the piped
// subject, the evaluated positional arguments and the evaluated keyword
// arguments.
type Impl func(subject any, args []any, kwargs map[string]any) (any, error)

// Verb is a registered subject-first callable with type-based dispatch.
// A verb invocation either pipes (building a deferred VerbCall awaiting a
// subject) or runs as a normal call with the first argument as subject;
// which one is decided per call site by the mode resolver.
//
// Implementations are held in a dispatch table keyed by subject type (or
// by all argument types, depending on the dispatch strategy) and grouped
// into named backends.
type Verb struct {
	name       string
	table      *dispatch.Table[Impl]
	context    Context
	kwContexts map[string]Context
	fallback   FallbackPolicy
	dependent  bool
	pipeable   bool
	origin     string
	initial    Impl
}

type verbConfig struct {
	strategy   dispatch.Strategy
	context    Context
	kwContexts map[string]Context
	fallback   FallbackPolicy
	dependent  bool
	pipeable   bool
	types      []any
	backend    string
	favored    bool
}

// VerbOption configures a Verb at registration.
type VerbOption func(*verbConfig)

// WithTypes restricts the initial implementation to the types of the given
// sample values. Without it the implementation is the catch-all default.
func WithTypes(samples ...any) VerbOption {
	return func(c *verbConfig) { c.types = append(c.types, samples...) }
}

// WithDispatch selects the dispatch strategy. The default dispatches on
// the subject type alone.
func WithDispatch(strategy dispatch.Strategy) VerbOption {
	return func(c *verbConfig) { c.strategy = strategy }
}

// WithContext sets the context the verb's arguments are evaluated under.
func WithContext(ctx Context) VerbOption {
	return func(c *verbConfig) { c.context = ctx }
}

// WithKwContext overrides the evaluation context for one keyword argument
// by name.
func WithKwContext(name string, ctx Context) VerbOption {
	return func(c *verbConfig) {
		if c.kwContexts == nil {
			c.kwContexts = make(map[string]Context)
		}
		c.kwContexts[name] = ctx
	}
}

// WithVerbFallback sets the verb's own fallback policy for undetermined
// call modes, overriding the process-wide default.
func WithVerbFallback(policy FallbackPolicy) VerbOption {
	return func(c *verbConfig) { c.fallback = policy }
}

// Dependent marks the verb as dependent: invocations always defer, and the
// deferred call resolves against the enclosing subject when nested inside
// another verb's arguments.
func Dependent() VerbOption {
	return func(c *verbConfig) { c.dependent = true }
}

// NotPipeable forbids piping a subject into the verb; it can only be
// called normally or nested as an argument.
func NotPipeable() VerbOption {
	return func(c *verbConfig) { c.pipeable = false }
}

// InBackend names the backend the initial implementation belongs to.
func InBackend(name string) VerbOption {
	return func(c *verbConfig) { c.backend = name }
}

// FavoredImpl marks the initial implementation as favored for its types.
func FavoredImpl() VerbOption {
	return func(c *verbConfig) { c.favored = true }
}

// verbs is the process-wide verb registry, keyed by name. Re-registering a
// name replaces the previous verb.
var verbs = registry.New[string, *Verb]()

// LookupVerb returns a registered verb by name.
func LookupVerb(name string) (*Verb, bool) {
	return verbs.Get(name)
}

// NewVerb registers a verb with an initial implementation. It panics if
// impl is nil, since that is a programming error at registration time.
func NewVerb(name string, impl Impl, opts ...VerbOption) *Verb {
	if impl == nil {
		panic("pipekit: NewVerb requires a non-nil implementation")
	}
	cfg := verbConfig{pipeable: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	tableOpts := []dispatch.TableOption[Impl]{
		dispatch.WithWarnFunc[Impl](emitDispatchWarning),
	}
	if len(cfg.types) == 0 {
		tableOpts = append(tableOpts, dispatch.WithDefault(impl, nil))
	}

	v := &Verb{
		name:       name,
		table:      dispatch.New(name, cfg.strategy, tableOpts...),
		context:    cfg.context,
		kwContexts: cfg.kwContexts,
		fallback:   cfg.fallback,
		dependent:  cfg.dependent,
		pipeable:   cfg.pipeable,
		initial:    impl,
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		v.origin = fmt.Sprintf("%s:%d", file, line)
	}

	if len(cfg.types) > 0 {
		regOpts := []dispatch.RegisterOption{dispatch.ForValues(cfg.types...)}
		if cfg.backend != "" {
			regOpts = append(regOpts, dispatch.WithBackend(cfg.backend))
		}
		if cfg.favored {
			regOpts = append(regOpts, dispatch.Favored())
		}
		if err := v.table.Register(impl, regOpts...); err != nil {
			panic("pipekit: " + err.Error())
		}
	}

	verbs.Register(name, v)
	return v
}

// Name returns the verb's name.
func (v *Verb) Name() string { return v.name }

// Origin returns the file:line where the verb was registered.
func (v *Verb) Origin() string { return v.origin }

// Unregister removes the verb from the process-wide registry and returns
// the implementation it was created with, so callers can recover the
// plain function. The Verb value itself keeps working.
func (v *Verb) Unregister() Impl {
	verbs.Delete(v.name)
	return v.initial
}

// Dependent reports whether the verb is dependent.
func (v *Verb) Dependent() bool { return v.dependent }

// Pipeable reports whether a subject may be piped into the verb.
func (v *Verb) Pipeable() bool { return v.pipeable }

// Register adds an implementation for more subject types or another
// backend. Options are the dispatch registration options: For, ForValues,
// WithBackend, Favored and WithContext (a Context overriding the verb's
// argument context for this implementation).
func (v *Verb) Register(impl Impl, opts ...dispatch.RegisterOption) error {
	return v.table.Register(impl, opts...)
}

// Backends lists the verb's registered backends, oldest first.
func (v *Verb) Backends() []string { return v.table.Backends() }

// Pipe builds a deferred invocation awaiting a subject. Arguments may mix
// positional values and Kw(...) entries.
func (v *Verb) Pipe(args ...any) *VerbCall {
	pos, kws := splitArgs(args)
	return newVerbCall(v, pos, kws)
}

// Eval runs the verb as a normal call: subject is dispatched on directly
// and the arguments are evaluated against it under the verb's context.
func (v *Verb) Eval(subject any, args ...any) (any, error) {
	pos, kws := splitArgs(args)
	return v.evalWith(subject, pos, kws, nil, "")
}

// Invoke resolves the call mode from the call site and either returns a
// deferred *VerbCall (piping) or the evaluated result (normal call, first
// argument as subject). With an ambient subject installed, piping calls
// evaluate against it immediately.
func (v *Verb) Invoke(args ...any) (any, error) {
	return v.invoke(ModeUndetermined, args)
}

// InvokeMode is Invoke with the mode pinned, bypassing resolution.
func (v *Verb) InvokeMode(mode Mode, args ...any) (any, error) {
	return v.invoke(mode, args)
}

func (v *Verb) invoke(mode Mode, args []any) (any, error) {
	pos, kws := splitArgs(args)

	if v.dependent {
		// Dependent verbs never take a subject from their arguments.
		return v.deferred(pos, kws)
	}

	ambient, hasAmbient := AmbientSubject()

	if mode == ModeUndetermined {
		site := CallSite{
			Verb:              v.name,
			NumArgs:           len(pos) + len(kws),
			HasExpressionArgs: hasExpr(pos, kws),
			AmbientSubject:    hasAmbient,
		}
		if len(pos) > 0 {
			site.FirstArgDispatchable = v.table.Registered(reflect.TypeOf(pos[0]))
		}
		if _, file, line, ok := runtime.Caller(2); ok {
			site.File, site.Line = file, line
		}
		var err error
		mode, err = resolveMode(site, v.fallback)
		if err != nil {
			return nil, err
		}
	}

	switch mode {
	case ModeNormal:
		if len(pos) == 0 {
			return nil, fmt.Errorf("%w: normal call to %q", ErrMissingSubject, v.name)
		}
		return v.evalWith(pos[0], pos[1:], kws, nil, "")
	default:
		if hasAmbient {
			call := newVerbCall(v, pos, kws)
			return call.eval(ambient, nil)
		}
		return v.deferred(pos, kws)
	}
}

func (v *Verb) deferred(pos []any, kws []Kwarg) (any, error) {
	return newVerbCall(v, pos, kws), nil
}

// evalWith evaluates one invocation against a concrete subject: it picks
// the effective context, evaluates the arguments, dispatches and invokes.
//
// Under the subject-type strategy dispatch happens before argument
// evaluation, so a per-implementation context override applies to the
// arguments. Under the multi-type strategies the arguments must be
// evaluated first to know their types, so the override cannot affect them.
func (v *Verb) evalWith(subject any, pos []any, kws []Kwarg, outer Context, hint string) (any, error) {
	declared := v.context
	if declared == nil {
		declared = outer
	}

	if v.table.Strategy() == dispatch.FirstArgType {
		fn, implCtx, err := v.table.Dispatch(
			[]reflect.Type{reflect.TypeOf(subject)}, nil, hint)
		if err != nil {
			return nil, err
		}
		effective := declared
		if c, ok := implCtx.(Context); ok && c != nil {
			effective = c
		}
		args, kwmap, err := v.evalArgs(subject, pos, kws, effective)
		if err != nil {
			return nil, err
		}
		return fn(subject, args, kwmap)
	}

	args, kwmap, err := v.evalArgs(subject, pos, kws, declared)
	if err != nil {
		return nil, err
	}

	posTypes := make([]reflect.Type, 0, len(args)+1)
	posTypes = append(posTypes, reflect.TypeOf(subject))
	for _, a := range args {
		posTypes = append(posTypes, reflect.TypeOf(a))
	}
	// Keyword types follow declaration order so short-circuiting is
	// deterministic.
	kwTypes := make([]reflect.Type, 0, len(kws))
	for _, kw := range kws {
		kwTypes = append(kwTypes, reflect.TypeOf(kwmap[kw.Name]))
	}

	fn, _, err := v.table.Dispatch(posTypes, kwTypes, hint)
	if err != nil {
		return nil, err
	}
	return fn(subject, args, kwmap)
}

// evalArgs evaluates the argument list under ctx, honoring per-kwarg
// overrides. A Pending context passes the arguments through unevaluated.
func (v *Verb) evalArgs(subject any, pos []any, kws []Kwarg, ctx Context) ([]any, map[string]any, error) {
	if ctx != nil && ctx.Kind() == KindPending {
		kwmap := make(map[string]any, len(kws))
		for _, kw := range kws {
			kwmap[kw.Name] = kw.Value
		}
		return pos, kwmap, nil
	}
	return evaluateArgs(pos, kws, subject, ctx, v.kwContexts)
}

// emitDispatchWarning counts dispatch ambiguities and forwards them to
// the active warning bus.
func emitDispatchWarning(w dispatch.Warning) {
	s := snapshotSettings()
	activeMetrics(s).RecordAmbiguity(context.Background(), w.Generic)
	bus := s.Warnings
	if bus == nil {
		bus = diag.Default()
	}
	bus.Emit(diag.Warning{
		Kind:     diag.KindAmbiguousDispatch,
		Verb:     w.Generic,
		Key:      w.Key,
		Backends: w.Backends,
		Message: fmt.Sprintf(
			"multiple implementations of %q match %s, using backend %q",
			w.Generic, w.Key, w.Selected),
	})
}
