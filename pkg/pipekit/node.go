package pipekit

import "fmt"

// Expression is the interface implemented by every node in a deferred
// expression tree: the root Symbol, attribute/subscript References,
// OperatorCalls, FuncCalls and VerbCalls.
//
// Expressions are immutable once built. Construction never evaluates
// anything; evaluation is deferred until Evaluate is called with a concrete
// subject and a context. Subtrees may be shared between multiple parent
// trees; nodes hold no back-references, so cycles cannot be constructed.
//
// Go has no operator overloading, so the binary and unary operators are
// exposed as builder methods (Add, Sub, Lt, Neg, ...). Each builder returns
// a new node referencing its operands; the receiver is never modified.
type Expression interface {
	fmt.Stringer

	// Attr builds an attribute reference: expr.name.
	Attr(name string) *Reference

	// Item builds a subscript reference: expr[key]. The key may itself be
	// an Expression.
	Item(key any) *Reference

	// Op builds an operator call with this expression as the first operand.
	// The symbol must be a canonical operator name such as "add" or "neg".
	Op(symbol string, operands ...any) *OperatorCall

	// Binary operators. The R-variants swap the operands at evaluation
	// time, mirroring reflected operators (other + expr, other - expr, ...).

	Add(other any) *OperatorCall
	Radd(other any) *OperatorCall
	Sub(other any) *OperatorCall
	Rsub(other any) *OperatorCall
	Mul(other any) *OperatorCall
	Rmul(other any) *OperatorCall
	Div(other any) *OperatorCall
	Rdiv(other any) *OperatorCall
	FloorDiv(other any) *OperatorCall
	RFloorDiv(other any) *OperatorCall
	Mod(other any) *OperatorCall
	Rmod(other any) *OperatorCall
	Pow(other any) *OperatorCall
	Rpow(other any) *OperatorCall
	Lshift(other any) *OperatorCall
	Rshift(other any) *OperatorCall
	BitAnd(other any) *OperatorCall
	BitOr(other any) *OperatorCall
	BitXor(other any) *OperatorCall
	Lt(other any) *OperatorCall
	Le(other any) *OperatorCall
	Eq(other any) *OperatorCall
	Ne(other any) *OperatorCall
	Gt(other any) *OperatorCall
	Ge(other any) *OperatorCall

	// Unary operators.

	Neg() *OperatorCall
	Pos() *OperatorCall
	Invert() *OperatorCall

	// eval evaluates the node against a subject under a context.
	// Implemented only by node types in this package; user extension points
	// are contexts, operator sets and registered callables, not node kinds.
	eval(subject any, ctx Context) (any, error)

	// refLevel reports the number of reference hops from the root Symbol.
	refLevel() int
}

// base carries the builder methods shared by all node kinds. Each concrete
// node stores itself in self at construction so builders can reference the
// full node rather than the embedded base.
type base struct {
	self Expression
}

func (b *base) init(self Expression) {
	b.self = self
}

// Attr builds an attribute reference off this node.
func (b *base) Attr(name string) *Reference {
	return newReference(b.self, name, refAttr)
}

// Item builds a subscript reference off this node.
func (b *base) Item(key any) *Reference {
	return newReference(b.self, key, refItem)
}

// Op builds an operator call with this node as first operand.
func (b *base) Op(symbol string, operands ...any) *OperatorCall {
	all := make([]any, 0, len(operands)+1)
	all = append(all, b.self)
	all = append(all, operands...)
	return newOperatorCall(symbol, all)
}

func (b *base) Add(other any) *OperatorCall       { return b.Op(OpAdd, other) }
func (b *base) Radd(other any) *OperatorCall      { return b.Op(OpRadd, other) }
func (b *base) Sub(other any) *OperatorCall       { return b.Op(OpSub, other) }
func (b *base) Rsub(other any) *OperatorCall      { return b.Op(OpRsub, other) }
func (b *base) Mul(other any) *OperatorCall       { return b.Op(OpMul, other) }
func (b *base) Rmul(other any) *OperatorCall      { return b.Op(OpRmul, other) }
func (b *base) Div(other any) *OperatorCall       { return b.Op(OpDiv, other) }
func (b *base) Rdiv(other any) *OperatorCall      { return b.Op(OpRdiv, other) }
func (b *base) FloorDiv(other any) *OperatorCall  { return b.Op(OpFloorDiv, other) }
func (b *base) RFloorDiv(other any) *OperatorCall { return b.Op(OpRFloorDiv, other) }
func (b *base) Mod(other any) *OperatorCall       { return b.Op(OpMod, other) }
func (b *base) Rmod(other any) *OperatorCall      { return b.Op(OpRmod, other) }
func (b *base) Pow(other any) *OperatorCall       { return b.Op(OpPow, other) }
func (b *base) Rpow(other any) *OperatorCall      { return b.Op(OpRpow, other) }
func (b *base) Lshift(other any) *OperatorCall    { return b.Op(OpLshift, other) }
func (b *base) Rshift(other any) *OperatorCall    { return b.Op(OpRshift, other) }
func (b *base) BitAnd(other any) *OperatorCall    { return b.Op(OpBitAnd, other) }
func (b *base) BitOr(other any) *OperatorCall     { return b.Op(OpBitOr, other) }
func (b *base) BitXor(other any) *OperatorCall    { return b.Op(OpBitXor, other) }
func (b *base) Lt(other any) *OperatorCall        { return b.Op(OpLt, other) }
func (b *base) Le(other any) *OperatorCall        { return b.Op(OpLe, other) }
func (b *base) Eq(other any) *OperatorCall        { return b.Op(OpEq, other) }
func (b *base) Ne(other any) *OperatorCall        { return b.Op(OpNe, other) }
func (b *base) Gt(other any) *OperatorCall        { return b.Op(OpGt, other) }
func (b *base) Ge(other any) *OperatorCall        { return b.Op(OpGe, other) }
func (b *base) Neg() *OperatorCall                { return b.Op(OpNeg) }
func (b *base) Pos() *OperatorCall                { return b.Op(OpPos) }
func (b *base) Invert() *OperatorCall             { return b.Op(OpInvert) }

// Kwarg is a named argument for a FuncCall or VerbCall. Go has no keyword
// arguments, so kwargs are passed as Kw(...) values among the positional
// arguments. Order is preserved for rendering and evaluation.
type Kwarg struct {
	Name  string
	Value any
}

// Kw builds a keyword argument.
func Kw(name string, value any) Kwarg {
	return Kwarg{Name: name, Value: value}
}

// splitArgs separates positional arguments from Kwarg values, keeping
// kwargs in their original order. Kwargs must follow all positional
// arguments; a positional after a kwarg panics, since that is a
// construction-time programming error.
func splitArgs(args []any) ([]any, []Kwarg) {
	var pos []any
	var kws []Kwarg
	for _, a := range args {
		if kw, ok := a.(Kwarg); ok {
			kws = append(kws, kw)
			continue
		}
		if len(kws) > 0 {
			panic("pipekit: positional argument after keyword argument")
		}
		pos = append(pos, a)
	}
	return pos, kws
}

// nested returns the value as stored inside a wrapping operator or call
// node. A directly-built Reference is shallow-copied with its direct flag
// cleared so the wrapping expression evaluates it against real values; the
// original node is untouched, preserving immutability of shared subtrees.
func nested(v any) any {
	if r, ok := v.(*Reference); ok && r.direct {
		c := *r
		c.direct = false
		c.init(&c)
		return &c
	}
	return v
}

// nestedAll applies nested to a copied slice.
func nestedAll(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = nested(v)
	}
	return out
}

// nestedKwargs applies nested to a copied kwarg slice.
func nestedKwargs(kws []Kwarg) []Kwarg {
	out := make([]Kwarg, len(kws))
	for i, kw := range kws {
		out[i] = Kwarg{Name: kw.Name, Value: nested(kw.Value)}
	}
	return out
}

// isExpr reports whether a value is or contains an Expression. Containers
// are searched recursively, mirroring how Evaluate descends into them.
func isExpr(v any) bool {
	switch val := v.(type) {
	case Expression:
		return true
	case Kwarg:
		return isExpr(val.Value)
	case []any:
		for _, e := range val {
			if isExpr(e) {
				return true
			}
		}
	case map[string]any:
		for _, e := range val {
			if isExpr(e) {
				return true
			}
		}
	}
	return false
}

// hasExpr reports whether any argument is or contains an Expression.
func hasExpr(pos []any, kws []Kwarg) bool {
	for _, a := range pos {
		if isExpr(a) {
			return true
		}
	}
	for _, kw := range kws {
		if isExpr(kw.Value) {
			return true
		}
	}
	return false
}
