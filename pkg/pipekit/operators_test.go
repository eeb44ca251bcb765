package pipekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalExpr(t *testing.T, expr Expression, subject any) any {
	t.Helper()
	got, err := Evaluate(expr, subject, EvalContext)
	require.NoError(t, err)
	return got
}

func TestArithmeticOperators(t *testing.T) {
	f := NewSymbol("f")
	subject := map[string]any{"a": 7, "b": 2, "x": 1.5}

	tests := []struct {
		name string
		expr Expression
		want any
	}{
		{"add ints", f.Attr("a").Add(3), 10},
		{"add floats", f.Attr("x").Add(0.5), 2.0},
		{"mixed int float", f.Attr("a").Add(0.5), 7.5},
		{"sub", f.Attr("a").Sub(f.Attr("b")), 5},
		{"mul", f.Attr("a").Mul(f.Attr("b")), 14},
		{"true division always floats", f.Attr("a").Div(f.Attr("b")), 3.5},
		{"floor division stays int", f.Attr("a").FloorDiv(f.Attr("b")), 3},
		{"floor division negative floors", f.Attr("a").Neg().FloorDiv(2), -4},
		{"mod takes divisor sign", f.Attr("a").Neg().Mod(3), 2},
		{"pow", f.Attr("b").Pow(10), 1024},
		{"lshift", f.Attr("b").Lshift(3), 16},
		{"rshift", f.Attr("a").Rshift(1), 3},
		{"bitand", f.Attr("a").BitAnd(f.Attr("b")), 2},
		{"bitor", f.Attr("a").BitOr(8), 15},
		{"bitxor", f.Attr("a").BitXor(f.Attr("b")), 5},
		{"neg", f.Attr("a").Neg(), -7},
		{"invert", f.Attr("b").Invert(), -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalExpr(t, tt.expr, subject))
		})
	}
}

func TestReflectedOperators(t *testing.T) {
	f := NewSymbol("f")
	subject := map[string]any{"a": 4}

	assert.Equal(t, 6, evalExpr(t, f.Attr("a").Rsub(10), subject))
	assert.Equal(t, 2.5, evalExpr(t, f.Attr("a").Rdiv(10), subject))
	assert.Equal(t, 14, evalExpr(t, f.Attr("a").Radd(10), subject))
}

func TestComparisonOperators(t *testing.T) {
	f := NewSymbol("f")
	subject := map[string]any{"n": 5, "s": "abc"}

	tests := []struct {
		name string
		expr Expression
		want bool
	}{
		{"lt", f.Attr("n").Lt(6), true},
		{"le equal", f.Attr("n").Le(5), true},
		{"gt", f.Attr("n").Gt(5), false},
		{"ge", f.Attr("n").Ge(5), true},
		{"eq across widths", f.Attr("n").Eq(5.0), true},
		{"ne", f.Attr("n").Ne(5), false},
		{"string compare", f.Attr("s").Lt("abd"), true},
		{"string equality", f.Attr("s").Eq("abc"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalExpr(t, tt.expr, subject))
		})
	}
}

func TestStringAndSliceConcat(t *testing.T) {
	f := NewSymbol("f")

	assert.Equal(t, "ab", evalExpr(t, f.Attr("s").Add("b"),
		map[string]any{"s": "a"}))
	assert.Equal(t, []any{1, 2, 3}, evalExpr(t, f.Attr("xs").Add([]any{3}),
		map[string]any{"xs": []any{1, 2}}))
}

func TestBooleanLogicalOperators(t *testing.T) {
	f := NewSymbol("f")
	subject := map[string]any{"t": true, "u": false}

	assert.Equal(t, false, evalExpr(t, f.Attr("t").BitAnd(f.Attr("u")), subject))
	assert.Equal(t, true, evalExpr(t, f.Attr("t").BitOr(f.Attr("u")), subject))
	assert.Equal(t, true, evalExpr(t, f.Attr("t").BitXor(f.Attr("u")), subject))
	assert.Equal(t, false, evalExpr(t, f.Attr("t").Invert(), subject))
}

func TestDivisionByZero(t *testing.T) {
	f := NewSymbol("f")

	_, err := Evaluate(f.Attr("a").Div(0), map[string]any{"a": 1}, EvalContext)
	var opErr *OperatorError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpDiv, opErr.Symbol)

	_, err = Evaluate(f.Attr("a").Mod(0), map[string]any{"a": 1}, EvalContext)
	require.Error(t, err)
}

func TestUnsupportedOperands(t *testing.T) {
	f := NewSymbol("f")
	_, err := Evaluate(f.Attr("a").Sub(1), map[string]any{"a": "str"}, EvalContext)
	var opErr *OperatorError
	require.ErrorAs(t, err, &opErr)
}

func TestCustomOperatorSet(t *testing.T) {
	t.Cleanup(ResetOperators)

	// Override add to clamp at 10.
	RegisterOperators(NewOperatorSet(WithOperator(OpAdd, func(ops []any) (any, error) {
		x, _ := toInt64(ops[0])
		y, _ := toInt64(ops[1])
		if x+y > 10 {
			return 10, nil
		}
		return int(x + y), nil
	})))

	f := NewSymbol("f")
	assert.Equal(t, 10, evalExpr(t, f.Attr("a").Add(9), map[string]any{"a": 7}))

	ResetOperators()
	assert.Equal(t, 16, evalExpr(t, f.Attr("a").Add(9), map[string]any{"a": 7}))
}

func TestApplyFallsBackToSwappedBase(t *testing.T) {
	// The default set has no explicit r-handlers; Apply resolves them by
	// swapping the operands of the base handler.
	s := NewOperatorSet()

	got, err := s.Apply(OpRsub, []any{3, 10})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestUnknownOperatorError(t *testing.T) {
	s := DefaultOperators()
	_, err := s.Apply("matmul", []any{1, 2})
	assert.ErrorIs(t, err, ErrUnknownOperator)
}
