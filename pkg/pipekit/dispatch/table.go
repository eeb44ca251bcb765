package dispatch

import (
	"fmt"
	"reflect"
	"strings"
)

// Strategy selects how the dispatch key is computed from a call's
// evaluated argument values.
type Strategy int

const (
	// FirstArgType dispatches on the type of the first argument only.
	FirstArgType Strategy = iota

	// AllPositionalTypes tries each positional argument's type in order.
	AllPositionalTypes

	// AllKeywordTypes tries each keyword argument's type in order.
	AllKeywordTypes

	// AllArgTypes tries positional then keyword argument types in order.
	AllArgTypes
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case FirstArgType:
		return "first-arg-type"
	case AllPositionalTypes:
		return "all-positional-types"
	case AllKeywordTypes:
		return "all-keyword-types"
	case AllArgTypes:
		return "all-arg-types"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// DefaultBackend is the backend implementations are registered under when
// no backend name is given.
const DefaultBackend = "_default"

// Warning describes an ambiguous dispatch: multiple backends hold eligible
// non-favored implementations for the same key. The most recently
// registered backend's implementation was selected.
type Warning struct {
	// Generic is the name of the generic callable.
	Generic string
	// Key describes the ambiguous dispatch key.
	Key string
	// Backends are the backends holding eligible implementations, most
	// recent first.
	Backends []string
	// Selected is the backend whose implementation was chosen.
	Selected string
}

// WarnFunc receives ambiguity warnings. Resolution proceeds regardless;
// the warning is diagnostic only.
type WarnFunc func(Warning)

// entry is a registered implementation with its evaluation context.
type entry[F any] struct {
	fn      F
	ctx     any
	favored bool
	backend string
}

// typeEntry pairs a registered interface type with its entry, preserving
// registration order for lookup.
type typeEntry[F any] struct {
	typ reflect.Type
	e   *entry[F]
}

// backendReg holds one backend's registrations.
type backendReg[F any] struct {
	name     string
	exact    map[reflect.Type]*entry[F]
	ifaces   []typeEntry[F]
	catchAll *entry[F]
}

// lookup finds the entry for a concrete type: exact match first, then
// registered interface types in registration order, then the catch-all.
func (b *backendReg[F]) lookup(typ reflect.Type) *entry[F] {
	if e, ok := b.exact[typ]; ok {
		return e
	}
	for _, te := range b.ifaces {
		if typ != nil && typ.Implements(te.typ) {
			return te.e
		}
	}
	return b.catchAll
}

// Table is a type-indexed registry of implementations for one generic
// callable. It supports multiple backends with priority resolution: the
// most recently registered backend wins among equally eligible entries,
// unless exactly one entry is marked favored.
//
// Tables are mutated at registration time only; dispatching concurrently
// with registration is undefined behavior.
type Table[F any] struct {
	name     string
	strategy Strategy
	order    []*backendReg[F]
	index    map[string]*backendReg[F]
	def      *entry[F]
	warn     WarnFunc
	favored  map[reflect.Type]string
}

// TableOption configures a Table.
type TableOption[F any] func(*Table[F])

// WithWarnFunc sets the receiver for ambiguity warnings.
func WithWarnFunc[F any](fn WarnFunc) TableOption[F] {
	return func(t *Table[F]) {
		t.warn = fn
	}
}

// WithDefault sets the generic's default implementation, used when no
// registered entry matches the dispatch key.
func WithDefault[F any](fn F, ctx any) TableOption[F] {
	return func(t *Table[F]) {
		t.def = &entry[F]{fn: fn, ctx: ctx}
	}
}

// New creates an empty dispatch table for a named generic.
func New[F any](name string, strategy Strategy, opts ...TableOption[F]) *Table[F] {
	t := &Table[F]{
		name:     name,
		strategy: strategy,
		index:    make(map[string]*backendReg[F]),
		favored:  make(map[reflect.Type]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the generic's name.
func (t *Table[F]) Name() string {
	return t.name
}

// Strategy returns the table's dispatch strategy.
func (t *Table[F]) Strategy() Strategy {
	return t.strategy
}

// RegisterOption configures a single registration.
type RegisterOption func(*regConfig)

type regConfig struct {
	types   []reflect.Type
	backend string
	favored bool
	ctx     any
}

// For restricts the registration to the given dispatch key types. Without
// it the implementation matches any type (a catch-all).
func For(types ...reflect.Type) RegisterOption {
	return func(c *regConfig) {
		c.types = append(c.types, types...)
	}
}

// ForValues restricts the registration to the dynamic types of the given
// sample values. Convenience over For(reflect.TypeOf(...)).
func ForValues(samples ...any) RegisterOption {
	return func(c *regConfig) {
		for _, s := range samples {
			c.types = append(c.types, reflect.TypeOf(s))
		}
	}
}

// WithBackend registers under the named backend instead of DefaultBackend.
func WithBackend(name string) RegisterOption {
	return func(c *regConfig) {
		c.backend = name
	}
}

// Favored marks the registration as the favored implementation for its
// dispatch keys. At most one favored entry may exist per key across the
// backend set; a second one is rejected at registration time.
func Favored() RegisterOption {
	return func(c *regConfig) {
		c.favored = true
	}
}

// WithContext attaches an evaluation context to the implementation,
// overriding the generic's context when this entry is dispatched.
func WithContext(ctx any) RegisterOption {
	return func(c *regConfig) {
		c.ctx = ctx
	}
}

// Register adds an implementation to the table. Registration order is
// significant: among equally eligible entries the most recent registration
// wins.
func (t *Table[F]) Register(fn F, opts ...RegisterOption) error {
	cfg := regConfig{backend: DefaultBackend}
	for _, opt := range opts {
		opt(&cfg)
	}

	b, ok := t.index[cfg.backend]
	if !ok {
		b = &backendReg[F]{
			name:  cfg.backend,
			exact: make(map[reflect.Type]*entry[F]),
		}
		t.index[cfg.backend] = b
	}
	// Re-registering a backend moves it to the most-recent position.
	for i, existing := range t.order {
		if existing == b {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.order = append(t.order, b)

	e := &entry[F]{fn: fn, ctx: cfg.ctx, favored: cfg.favored, backend: cfg.backend}

	if len(cfg.types) == 0 {
		b.catchAll = e
		return nil
	}
	for _, typ := range cfg.types {
		if cfg.favored {
			if prior, taken := t.favored[typ]; taken && prior != cfg.backend {
				return fmt.Errorf("%s: %w for type %s (already favored by backend %q)",
					t.name, ErrDuplicateFavored, typeName(typ), prior)
			}
			t.favored[typ] = cfg.backend
		}
		if typ.Kind() == reflect.Interface {
			b.ifaces = append(b.ifaces, typeEntry[F]{typ: typ, e: e})
		} else {
			b.exact[typ] = e
		}
	}
	return nil
}

// Registered reports whether any implementation (excluding the default)
// matches the given type.
func (t *Table[F]) Registered(typ reflect.Type) bool {
	for _, b := range t.order {
		if b.lookup(typ) != nil {
			return true
		}
	}
	return false
}

// Backends returns the backend names in registration order.
func (t *Table[F]) Backends() []string {
	names := make([]string, len(t.order))
	for i, b := range t.order {
		names[i] = b.name
	}
	return names
}

// Dispatch resolves the implementation for a call. The candidate dispatch
// keys are computed from the argument types per the table's strategy; for
// AllArgTypes the first candidate type that yields any match wins and the
// remaining candidates are never consulted.
//
// With a backend hint only that backend's entries are eligible; an unknown
// backend fails with a BackendNotFoundError. Otherwise a unique favored
// entry wins, then the most recently registered backend, with a
// non-fatal warning when several non-favored entries are eligible. When
// nothing matches, the table's default implementation is returned, or a
// NotImplementedError when there is none.
func (t *Table[F]) Dispatch(pos []reflect.Type, kw []reflect.Type, hint string) (F, any, error) {
	var zero F

	var hinted *backendReg[F]
	if hint != "" {
		b, ok := t.index[hint]
		if !ok {
			return zero, nil, &BackendNotFoundError{Generic: t.name, Backend: hint}
		}
		hinted = b
	}

	candidates := t.candidates(pos, kw)
	for _, typ := range candidates {
		if hinted != nil {
			if e := hinted.lookup(typ); e != nil {
				return e.fn, t.entryCtx(e), nil
			}
			continue
		}
		if e, ok := t.resolve(typ); ok {
			return e.fn, t.entryCtx(e), nil
		}
	}

	if hinted != nil {
		return zero, nil, &NotImplementedError{
			Generic: t.name,
			Key:     typeNames(candidates),
			Backend: hint,
		}
	}
	if t.def != nil {
		return t.def.fn, t.def.ctx, nil
	}
	return zero, nil, &NotImplementedError{Generic: t.name, Key: typeNames(candidates)}
}

// candidates orders the dispatch key types per the strategy.
func (t *Table[F]) candidates(pos []reflect.Type, kw []reflect.Type) []reflect.Type {
	switch t.strategy {
	case FirstArgType:
		if len(pos) == 0 {
			return nil
		}
		return pos[:1]
	case AllPositionalTypes:
		return pos
	case AllKeywordTypes:
		return kw
	default: // AllArgTypes
		out := make([]reflect.Type, 0, len(pos)+len(kw))
		out = append(out, pos...)
		return append(out, kw...)
	}
}

// resolve finds the entry for one candidate type across all backends,
// most recent first, applying the favored and ambiguity rules.
func (t *Table[F]) resolve(typ reflect.Type) (*entry[F], bool) {
	var eligible []*entry[F]
	for i := len(t.order) - 1; i >= 0; i-- {
		if e := t.order[i].lookup(typ); e != nil {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}
	for _, e := range eligible {
		if e.favored {
			return e, true
		}
	}
	if len(eligible) > 1 && t.warn != nil {
		backends := make([]string, len(eligible))
		for i, e := range eligible {
			backends[i] = e.backend
		}
		t.warn(Warning{
			Generic:  t.name,
			Key:      typeName(typ),
			Backends: backends,
			Selected: eligible[0].backend,
		})
	}
	return eligible[0], true
}

// entryCtx returns the entry's context, falling back to the default
// implementation's context when the entry declares none.
func (t *Table[F]) entryCtx(e *entry[F]) any {
	if e.ctx != nil {
		return e.ctx
	}
	if t.def != nil {
		return t.def.ctx
	}
	return nil
}

// typeName renders a type for diagnostics; nil (the type of an untyped nil
// value) renders as "nil".
func typeName(typ reflect.Type) string {
	if typ == nil {
		return "nil"
	}
	return typ.String()
}

// typeNames renders a candidate type list.
func typeNames(types []reflect.Type) string {
	if len(types) == 0 {
		return "()"
	}
	if len(types) == 1 {
		return typeName(types[0])
	}
	parts := make([]string, len(types))
	for i, typ := range types {
		parts[i] = typeName(typ)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
