package pipekit

import (
	"fmt"
	"reflect"
)

// ContextKind identifies the built-in context behaviors. Custom contexts
// should return KindCustom unless they deliberately reproduce a built-in
// contract (returning KindPending makes references evaluate to themselves).
type ContextKind int

const (
	// KindEval resolves references by real attribute/subscript access.
	KindEval ContextKind = iota
	// KindSelect resolves references to their key literals.
	KindSelect
	// KindPending leaves references unevaluated.
	KindPending
	// KindMixed applies separate contexts to positional and keyword args.
	KindMixed
	// KindCustom marks user-defined contexts.
	KindCustom
)

// Meta is an arbitrary key-value mapping carried by a context. It is
// propagated to nested evaluations and can be temporarily overridden with
// ScopeMeta.
type Meta map[string]any

// Context is the strategy controlling how references resolve against a
// subject. The built-in contexts are EvalContext, SelectContext and
// PendingContext; user-defined contexts implement this interface.
type Context interface {
	// Kind identifies the context behavior.
	Kind() ContextKind

	// ResolveAttr resolves an attribute reference against the evaluated
	// parent value. Level is the reference's hop count from the root.
	ResolveAttr(parent any, key string, level int) (any, error)

	// ResolveItem resolves a subscript reference against the evaluated
	// parent value.
	ResolveItem(parent any, key any, level int) (any, error)

	// ResolveKey evaluates the subscript key itself. Under Eval the key is
	// evaluated against the subject (so f[f.Attr("other")] works); under
	// Select it resolves to the literal name.
	ResolveKey(key any, subject any) (any, error)

	// Meta returns the context's meta mapping. May be nil.
	Meta() Meta
}

// MetaScoper is implemented by contexts whose meta can be temporarily
// overridden. The built-in contexts all implement it.
type MetaScoper interface {
	// ScopeMeta overlays the given entries onto the context's meta and
	// returns a restore function. The restore function must run on every
	// exit path, so call it with defer:
	//
	//	restore := ctx.ScopeMeta(pipekit.Meta{"group": g})
	//	defer restore()
	ScopeMeta(overrides Meta) (restore func())
}

// metaHolder carries the meta mapping and its scoping for the built-in
// contexts.
type metaHolder struct {
	meta Meta
}

// Meta returns the context's meta mapping.
func (m *metaHolder) Meta() Meta {
	return m.meta
}

// ScopeMeta implements MetaScoper.
func (m *metaHolder) ScopeMeta(overrides Meta) func() {
	prior := m.meta
	next := make(Meta, len(prior)+len(overrides))
	for k, v := range prior {
		next[k] = v
	}
	for k, v := range overrides {
		next[k] = v
	}
	m.meta = next
	return func() {
		m.meta = prior
	}
}

// evalContext performs real attribute and subscript access.
type evalContext struct {
	metaHolder
}

// NewEvalContext creates an Eval context carrying the given meta. Use the
// package-level EvalContext when no meta is needed.
func NewEvalContext(meta Meta) Context {
	return &evalContext{metaHolder{meta: meta}}
}

func (c *evalContext) Kind() ContextKind {
	return KindEval
}

func (c *evalContext) ResolveAttr(parent any, key string, level int) (any, error) {
	v, err := accessAttr(parent, key)
	if err != nil {
		return nil, &ResolutionError{Key: key, Level: level, Kind: refAttr, Err: err}
	}
	return v, nil
}

func (c *evalContext) ResolveItem(parent any, key any, level int) (any, error) {
	v, err := accessItem(parent, key)
	if err != nil {
		return nil, &ResolutionError{Key: key, Level: level, Kind: refItem, Err: err}
	}
	return v, nil
}

func (c *evalContext) ResolveKey(key any, subject any) (any, error) {
	return evaluateExpr(key, subject, c)
}

// selectContext resolves references to their key literals, enabling
// "select these fields" semantics without touching live data.
type selectContext struct {
	metaHolder
}

// NewSelectContext creates a Select context carrying the given meta.
func NewSelectContext(meta Meta) Context {
	return &selectContext{metaHolder{meta: meta}}
}

func (c *selectContext) Kind() ContextKind {
	return KindSelect
}

func (c *selectContext) ResolveAttr(parent any, key string, level int) (any, error) {
	return key, nil
}

func (c *selectContext) ResolveItem(parent any, key any, level int) (any, error) {
	return key, nil
}

func (c *selectContext) ResolveKey(key any, subject any) (any, error) {
	return evaluateExpr(key, subject, c)
}

// pendingContext defers all reference resolution: evaluating a Reference
// under it returns the reference itself, to be re-evaluated explicitly
// later with a concrete context.
type pendingContext struct {
	metaHolder
}

// NewPendingContext creates a Pending context carrying the given meta.
func NewPendingContext(meta Meta) Context {
	return &pendingContext{metaHolder{meta: meta}}
}

func (c *pendingContext) Kind() ContextKind {
	return KindPending
}

func (c *pendingContext) ResolveAttr(parent any, key string, level int) (any, error) {
	return nil, fmt.Errorf("pending context does not resolve attributes")
}

func (c *pendingContext) ResolveItem(parent any, key any, level int) (any, error) {
	return nil, fmt.Errorf("pending context does not resolve items")
}

func (c *pendingContext) ResolveKey(key any, subject any) (any, error) {
	return key, nil
}

// mixedContext evaluates positional arguments under one context and keyword
// arguments under another.
type mixedContext struct {
	metaHolder
	args   Context
	kwargs Context
}

// NewMixedContext creates a context that applies args to positional
// arguments and kwargs to keyword arguments of a call. Reference resolution
// outside a call argument position falls through to the args context.
func NewMixedContext(args, kwargs Context) Context {
	return &mixedContext{args: args, kwargs: kwargs}
}

func (c *mixedContext) Kind() ContextKind {
	return KindMixed
}

func (c *mixedContext) ResolveAttr(parent any, key string, level int) (any, error) {
	return c.args.ResolveAttr(parent, key, level)
}

func (c *mixedContext) ResolveItem(parent any, key any, level int) (any, error) {
	return c.args.ResolveItem(parent, key, level)
}

func (c *mixedContext) ResolveKey(key any, subject any) (any, error) {
	return c.args.ResolveKey(key, subject)
}

// ArgsContext returns the context for positional arguments.
func (c *mixedContext) ArgsContext() Context {
	return c.args
}

// KwargsContext returns the context for keyword arguments.
func (c *mixedContext) KwargsContext() Context {
	return c.kwargs
}

// argSplitter is implemented by contexts that evaluate positional and
// keyword arguments under different sub-contexts.
type argSplitter interface {
	ArgsContext() Context
	KwargsContext() Context
}

// Shared default contexts. They carry no meta; construct dedicated
// instances with New*Context when meta is needed, to avoid cross-test
// leakage through the shared values.
var (
	// EvalContext resolves references by real access on the subject.
	EvalContext Context = &evalContext{}

	// SelectContext resolves references to their key literals.
	SelectContext Context = &selectContext{}

	// PendingContext leaves references unevaluated.
	PendingContext Context = &pendingContext{}
)

// accessAttr performs real attribute access: map lookup for maps with
// string-compatible keys, field access for structs (through pointers).
func accessAttr(parent any, key string) (any, error) {
	if parent == nil {
		return nil, fmt.Errorf("attribute access on nil value")
	}
	if m, ok := parent.(map[string]any); ok {
		v, ok := m[key]
		if !ok {
			return nil, fmt.Errorf("key not found")
		}
		return v, nil
	}

	rv := reflect.ValueOf(parent)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("attribute access on nil pointer")
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %s is not a string", rv.Type().Key())
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, fmt.Errorf("key not found")
		}
		return v.Interface(), nil
	case reflect.Struct:
		f := rv.FieldByName(key)
		if !f.IsValid() || !f.CanInterface() {
			return nil, fmt.Errorf("no field %q on %s", key, rv.Type())
		}
		return f.Interface(), nil
	default:
		return nil, fmt.Errorf("cannot access attribute on %T", parent)
	}
}

// accessItem performs real subscript access: map lookup or slice/array/string
// indexing. Negative indexes count from the end.
func accessItem(parent any, key any) (any, error) {
	if parent == nil {
		return nil, fmt.Errorf("subscript access on nil value")
	}
	if m, ok := parent.(map[string]any); ok {
		ks, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("map subscript must be a string, got %T", key)
		}
		v, ok := m[ks]
		if !ok {
			return nil, fmt.Errorf("key not found")
		}
		return v, nil
	}

	rv := reflect.ValueOf(parent)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("subscript access on nil pointer")
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		kv := reflect.ValueOf(key)
		if !kv.IsValid() || !kv.Type().AssignableTo(rv.Type().Key()) {
			if kv.IsValid() && kv.Type().ConvertibleTo(rv.Type().Key()) {
				kv = kv.Convert(rv.Type().Key())
			} else {
				return nil, fmt.Errorf("key type %T does not match map key %s", key, rv.Type().Key())
			}
		}
		v := rv.MapIndex(kv)
		if !v.IsValid() {
			return nil, fmt.Errorf("key not found")
		}
		return v.Interface(), nil
	case reflect.Slice, reflect.Array, reflect.String:
		idx, ok := toIndex(key)
		if !ok {
			return nil, fmt.Errorf("index must be an integer, got %T", key)
		}
		n := rv.Len()
		if idx < 0 {
			idx += n
		}
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("index %v out of range (len %d)", key, n)
		}
		if rv.Kind() == reflect.String {
			return string(rv.String()[idx]), nil
		}
		return rv.Index(idx).Interface(), nil
	default:
		return nil, fmt.Errorf("cannot subscript %T", parent)
	}
}

// toIndex converts integer-ish values to an int index.
func toIndex(key any) (int, bool) {
	switch k := key.(type) {
	case int:
		return k, true
	case int8:
		return int(k), true
	case int16:
		return int(k), true
	case int32:
		return int(k), true
	case int64:
		return int(k), true
	case uint:
		return int(k), true
	case uint8:
		return int(k), true
	case uint16:
		return int(k), true
	case uint32:
		return int(k), true
	case uint64:
		return int(k), true
	case float64:
		if k == float64(int(k)) {
			return int(k), true
		}
	}
	return 0, false
}
