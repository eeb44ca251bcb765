package pipekit

import "fmt"

// Reference kinds.
const (
	refAttr = "attr"
	refItem = "item"
)

// Reference is an attribute or subscript access relative to the subject,
// such as f.Attr("a") or f.Item("a"). How it resolves depends entirely on
// the active Context: real access under Eval, the key literal under Select,
// or no resolution at all under Pending.
//
// Level counts the reference hops from the root Symbol (the root is 0), so
// contexts can tell direct field access (level 1) from access nested deeper
// in a chain. The direct flag is true only while the reference is the entire
// argument expression; wrapping it inside an operator or call stores a copy
// with direct cleared.
type Reference struct {
	base
	parent Expression
	key    any
	kind   string
	lvl    int
	direct bool
}

func newReference(parent Expression, key any, kind string) *Reference {
	if parent == nil {
		panic("pipekit: reference parent cannot be nil")
	}
	if kind == refAttr {
		if _, ok := key.(string); !ok {
			panic("pipekit: attribute name must be a string")
		}
	}
	r := &Reference{
		parent: parent,
		key:    key,
		kind:   kind,
		lvl:    parent.refLevel() + 1,
		direct: true,
	}
	r.init(r)
	return r
}

// Parent returns the parent expression of this reference.
func (r *Reference) Parent() Expression {
	return r.parent
}

// Key returns the attribute name or subscript key.
func (r *Reference) Key() any {
	return r.key
}

// Level returns the number of reference hops from the root Symbol.
func (r *Reference) Level() int {
	return r.lvl
}

// IsDirect reports whether this reference is the entire argument expression,
// as opposed to being wrapped inside an operator or call.
func (r *Reference) IsDirect() bool {
	return r.direct
}

// String renders the reference as a dotted or bracketed path. Level-1
// references render as the bare key, matching how they read in arguments.
func (r *Reference) String() string {
	if r.kind == refAttr {
		if r.lvl == 1 {
			return fmt.Sprintf("%v", r.key)
		}
		return fmt.Sprintf("%s.%v", r.parent, r.key)
	}
	if r.lvl == 1 {
		return fmt.Sprintf("[%v]", r.key)
	}
	return fmt.Sprintf("%s[%v]", r.parent, r.key)
}

func (r *Reference) refLevel() int {
	return r.lvl
}

func (r *Reference) eval(subject any, ctx Context) (any, error) {
	if ctx == nil {
		return nil, &ContextError{Node: r.String()}
	}

	// Under Pending the reference is returned unevaluated; the caller must
	// re-evaluate it later with a concrete context.
	if ctx.Kind() == KindPending {
		return r, nil
	}

	// A direct reference resolves its parent under the active context.
	// Once wrapped by an operator or call, the surrounding expression needs
	// real values, so the parent is evaluated under Eval instead.
	parentCtx := ctx
	if !r.direct {
		parentCtx = forceEval(ctx)
	}
	parent, err := evaluateExpr(r.parent, subject, parentCtx)
	if err != nil {
		return nil, err
	}

	switch r.kind {
	case refAttr:
		return ctx.ResolveAttr(parent, r.key.(string), r.lvl)
	default:
		key, err := ctx.ResolveKey(r.key, subject)
		if err != nil {
			return nil, err
		}
		return ctx.ResolveItem(parent, key, r.lvl)
	}
}
