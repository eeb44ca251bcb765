package pipekit

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"
)

// FuncImpl is the implementation signature for a registered Func. Keyword
// arguments arrive as a map keyed by argument name; absent kwargs are
// simply missing from the map.
type FuncImpl func(args []any, kwargs map[string]any) (any, error)

// Func is a registered plain function: a callable that takes no piped
// subject and no dispatch, but whose calls defer when any argument is an
// Expression. A deferred call evaluates its arguments under the Func's
// declared context before invoking the implementation.
type Func struct {
	name       string
	impl       FuncImpl
	context    Context
	kwContexts map[string]Context
	origin     string
}

// FuncOption configures a Func at registration.
type FuncOption func(*Func)

// WithFuncContext sets the context the Func's arguments are evaluated
// under. Without it, deferred calls inherit the context they are
// evaluated in.
func WithFuncContext(ctx Context) FuncOption {
	return func(f *Func) { f.context = ctx }
}

// WithFuncKwContext overrides the evaluation context for one keyword
// argument by name.
func WithFuncKwContext(name string, ctx Context) FuncOption {
	return func(f *Func) {
		if f.kwContexts == nil {
			f.kwContexts = make(map[string]Context)
		}
		f.kwContexts[name] = ctx
	}
}

// NewFunc registers a plain function. It panics if impl is nil, since that
// is a programming error at registration time.
func NewFunc(name string, impl FuncImpl, opts ...FuncOption) *Func {
	if impl == nil {
		panic("pipekit: NewFunc requires a non-nil implementation")
	}
	f := &Func{name: name, impl: impl}
	if _, file, line, ok := runtime.Caller(1); ok {
		f.origin = fmt.Sprintf("%s:%d", file, line)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the registered name.
func (f *Func) Name() string { return f.name }

// Origin returns the file:line where the Func was registered.
func (f *Func) Origin() string { return f.origin }

// Call invokes the function. If any argument is or contains an Expression
// the call defers: a FuncCall node is returned as the value and the
// implementation runs later, when the node is evaluated against a subject.
// With only plain arguments the implementation runs immediately.
func (f *Func) Call(args ...any) (any, error) {
	pos, kws := splitArgs(args)
	if hasExpr(pos, kws) {
		return newFuncCall(f, nil, pos, kws), nil
	}
	kwmap := make(map[string]any, len(kws))
	for _, kw := range kws {
		kwmap[kw.Name] = kw.Value
	}
	return f.impl(pos, kwmap)
}

// Defer always builds a deferred call node, even with plain arguments.
func (f *Func) Defer(args ...any) *FuncCall {
	pos, kws := splitArgs(args)
	return newFuncCall(f, nil, pos, kws)
}

// FuncCall is a deferred function invocation. The callee is either a
// registered Func or an Expression that must resolve to a callable value
// at evaluation time (a method looked up off the subject, for instance).
type FuncCall struct {
	base
	fn     *Func
	callee Expression
	args   []any
	kwargs []Kwarg
}

func newFuncCall(fn *Func, callee Expression, pos []any, kws []Kwarg) *FuncCall {
	c := &FuncCall{
		fn:     fn,
		callee: callee,
		args:   nestedAll(pos),
		kwargs: nestedKwargs(kws),
	}
	c.init(c)
	return c
}

// NewCall builds a deferred invocation of an expression-valued callable:
// the callee expression is resolved against the subject at evaluation time
// and the result is called with the evaluated arguments. Arguments may mix
// positional values and Kw(...) entries.
func NewCall(callee Expression, args ...any) *FuncCall {
	if callee == nil {
		panic("pipekit: NewCall requires a callee expression")
	}
	pos, kws := splitArgs(args)
	return newFuncCall(nil, nested(callee).(Expression), pos, kws)
}

// Args returns the positional arguments as stored.
func (c *FuncCall) Args() []any { return c.args }

// Kwargs returns the keyword arguments as stored.
func (c *FuncCall) Kwargs() []Kwarg { return c.kwargs }

func (c *FuncCall) String() string {
	name := "<callable>"
	switch {
	case c.fn != nil:
		name = c.fn.name
	case c.callee != nil:
		name = c.callee.String()
	}
	return name + "(" + renderArgs(c.args, c.kwargs) + ")"
}

func (c *FuncCall) refLevel() int { return 0 }

func (c *FuncCall) eval(subject any, ctx Context) (any, error) {
	if c.fn != nil {
		return c.evalRegistered(subject, ctx)
	}

	// Callee is an expression: resolve it to a callable, then invoke with
	// the evaluated arguments. Both sides evaluate against real values.
	evalCtx := forceEval(ctx)
	target, err := evaluateExpr(c.callee, subject, evalCtx)
	if err != nil {
		return nil, err
	}
	pos, kwmap, err := evaluateArgs(c.args, c.kwargs, subject, evalCtx, nil)
	if err != nil {
		return nil, err
	}
	return callValue(target, pos, kwmap)
}

func (c *FuncCall) evalRegistered(subject any, ctx Context) (any, error) {
	declared := c.fn.context
	if declared == nil {
		declared = ctx
	}
	if declared != nil && declared.Kind() == KindPending {
		// Pending defers argument evaluation to the implementation.
		kwmap := make(map[string]any, len(c.kwargs))
		for _, kw := range c.kwargs {
			kwmap[kw.Name] = kw.Value
		}
		return c.fn.impl(c.args, kwmap)
	}
	pos, kwmap, err := evaluateArgs(c.args, c.kwargs, subject, declared, c.fn.kwContexts)
	if err != nil {
		return nil, err
	}
	return c.fn.impl(pos, kwmap)
}

// callValue invokes a resolved callable value. Registered callables take
// their kwargs directly; plain Go funcs are invoked through reflection
// with positional arguments only.
func callValue(target any, pos []any, kwmap map[string]any) (any, error) {
	switch fn := target.(type) {
	case *Func:
		args := make([]any, 0, len(pos)+len(kwmap))
		args = append(args, pos...)
		for _, name := range sortedKeys(kwmap) {
			args = append(args, Kw(name, kwmap[name]))
		}
		return fn.Call(args...)
	case FuncImpl:
		return fn(pos, kwmap)
	case func(args []any, kwargs map[string]any) (any, error):
		return fn(pos, kwmap)
	}

	rv := reflect.ValueOf(target)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %T", ErrNotCallable, target)
	}
	if len(kwmap) > 0 {
		return nil, fmt.Errorf("%w: %T does not accept keyword arguments", ErrNotCallable, target)
	}
	return reflectCall(rv, pos)
}

// reflectCall invokes an arbitrary func value with positional arguments,
// converting each argument to the parameter type where assignable. A
// trailing error return is unwrapped into the error result.
func reflectCall(rv reflect.Value, pos []any) (any, error) {
	rt := rv.Type()
	numIn := rt.NumIn()
	if rt.IsVariadic() {
		if len(pos) < numIn-1 {
			return nil, fmt.Errorf("%w: %s wants at least %d arguments, got %d",
				ErrNotCallable, rt, numIn-1, len(pos))
		}
	} else if len(pos) != numIn {
		return nil, fmt.Errorf("%w: %s wants %d arguments, got %d",
			ErrNotCallable, rt, numIn, len(pos))
	}

	in := make([]reflect.Value, len(pos))
	for i, a := range pos {
		var pt reflect.Type
		if rt.IsVariadic() && i >= numIn-1 {
			pt = rt.In(numIn - 1).Elem()
		} else {
			pt = rt.In(i)
		}
		av := reflect.ValueOf(a)
		switch {
		case !av.IsValid():
			in[i] = reflect.Zero(pt)
		case av.Type().AssignableTo(pt):
			in[i] = av
		case av.Type().ConvertibleTo(pt):
			in[i] = av.Convert(pt)
		default:
			return nil, fmt.Errorf("%w: argument %d (%T) not assignable to %s",
				ErrNotCallable, i, a, pt)
		}
	}

	out := rv.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		if last.Type().Implements(errorType) {
			var err error
			if !last.IsNil() {
				err = last.Interface().(error)
			}
			if len(out) == 2 {
				return out[0].Interface(), err
			}
			vals := make([]any, len(out)-1)
			for i := range vals {
				vals[i] = out[i].Interface()
			}
			return vals, err
		}
		vals := make([]any, len(out))
		for i := range vals {
			vals[i] = out[i].Interface()
		}
		return vals, nil
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// renderArgs renders a call's argument list for String.
func renderArgs(pos []any, kws []Kwarg) string {
	parts := make([]string, 0, len(pos)+len(kws))
	for _, a := range pos {
		parts = append(parts, renderValue(a))
	}
	for _, kw := range kws {
		parts = append(parts, kw.Name+"="+renderValue(kw.Value))
	}
	return strings.Join(parts, ", ")
}

func renderValue(v any) string {
	switch val := v.(type) {
	case Expression:
		return val.String()
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
