package pipekit

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Canonical operator names. These are the registry keys for operator
// handlers and the symbols accepted by Expression.Op. The r-variants are
// reflected forms: they evaluate with their two operands swapped.
const (
	OpAdd       = "add"
	OpRadd      = "radd"
	OpSub       = "sub"
	OpRsub      = "rsub"
	OpMul       = "mul"
	OpRmul      = "rmul"
	OpDiv       = "truediv"
	OpRdiv      = "rtruediv"
	OpFloorDiv  = "floordiv"
	OpRFloorDiv = "rfloordiv"
	OpMod       = "mod"
	OpRmod      = "rmod"
	OpPow       = "pow"
	OpRpow      = "rpow"
	OpLshift    = "lshift"
	OpRshift    = "rshift"
	OpBitAnd    = "and"
	OpBitOr     = "or"
	OpBitXor    = "xor"
	OpLt        = "lt"
	OpLe        = "le"
	OpEq        = "eq"
	OpNe        = "ne"
	OpGt        = "gt"
	OpGe        = "ge"
	OpNeg       = "neg"
	OpPos       = "pos"
	OpInvert    = "invert"
	OpMatMul    = "matmul"
)

// opText maps canonical operator names to their display text for rendering.
var opText = map[string]string{
	OpAdd: "+", OpRadd: "+",
	OpSub: "-", OpRsub: "-",
	OpMul: "*", OpRmul: "*",
	OpDiv: "/", OpRdiv: "/",
	OpFloorDiv: "//", OpRFloorDiv: "//",
	OpMod: "%", OpRmod: "%",
	OpPow: "**", OpRpow: "**",
	OpLshift: "<<", OpRshift: ">>",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^",
	OpLt: "<", OpLe: "<=", OpEq: "==", OpNe: "!=", OpGt: ">", OpGe: ">=",
	OpNeg: "-", OpPos: "+", OpInvert: "~",
	OpMatMul: "@",
}

// unaryOps are the operators rendered as prefixes with a single operand.
var unaryOps = map[string]bool{
	OpNeg: true, OpPos: true, OpInvert: true,
}

// OpFunc evaluates an operator over already-evaluated operand values.
type OpFunc func(operands []any) (any, error)

// OperatorSet is a table of operator handlers. The process-wide active set
// is consulted whenever an OperatorCall is evaluated; swap it with
// RegisterOperators to change operator semantics globally.
type OperatorSet struct {
	handlers map[string]OpFunc
}

// OperatorOption configures an OperatorSet under construction.
type OperatorOption func(*OperatorSet)

// WithOperator overrides or adds the handler for a canonical operator name.
func WithOperator(symbol string, fn OpFunc) OperatorOption {
	return func(s *OperatorSet) {
		s.handlers[symbol] = fn
	}
}

// NewOperatorSet builds an operator set starting from the default handlers.
func NewOperatorSet(opts ...OperatorOption) *OperatorSet {
	s := DefaultOperators()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply invokes the handler for symbol over the operands. When no handler
// exists for an r-variant, the base handler is applied with the two
// operands swapped.
func (s *OperatorSet) Apply(symbol string, operands []any) (any, error) {
	h, ok := s.handlers[symbol]
	if !ok && strings.HasPrefix(symbol, "r") {
		if base, baseOK := s.handlers[symbol[1:]]; baseOK && len(operands) == 2 {
			h, ok = func(ops []any) (any, error) {
				return base([]any{ops[1], ops[0]})
			}, true
		}
	}
	if !ok {
		return nil, &OperatorError{Symbol: symbol, Operands: operands, Err: ErrUnknownOperator}
	}
	out, err := h(operands)
	if err != nil {
		if _, isOp := err.(*OperatorError); isOp {
			return nil, err
		}
		return nil, &OperatorError{Symbol: symbol, Operands: operands, Err: err}
	}
	return out, nil
}

// Has reports whether an explicit handler exists for the symbol.
func (s *OperatorSet) Has(symbol string) bool {
	_, ok := s.handlers[symbol]
	return ok
}

// activeOps is the process-wide active operator set. Mutation is expected
// only at setup time; swapping it during evaluation is undefined behavior.
var activeOps = DefaultOperators()

// RegisterOperators swaps the process-wide active operator set.
func RegisterOperators(set *OperatorSet) {
	if set == nil {
		panic("pipekit: operator set cannot be nil")
	}
	activeOps = set
}

// ActiveOperators returns the process-wide active operator set.
func ActiveOperators() *OperatorSet {
	return activeOps
}

// ResetOperators restores the default operator set.
func ResetOperators() {
	activeOps = DefaultOperators()
}

// DefaultOperators returns a fresh set with the built-in handlers:
// arithmetic and comparison with numeric coercion, string concatenation for
// add, slice concatenation for add on []any, and bitwise operators on
// integers.
func DefaultOperators() *OperatorSet {
	s := &OperatorSet{handlers: make(map[string]OpFunc)}

	s.handlers[OpAdd] = func(ops []any) (any, error) {
		a, b := ops[0], ops[1]
		if as, ok := a.(string); ok {
			if bs, ok := b.(string); ok {
				return as + bs, nil
			}
		}
		if al, ok := a.([]any); ok {
			if bl, ok := b.([]any); ok {
				out := make([]any, 0, len(al)+len(bl))
				out = append(out, al...)
				return append(out, bl...), nil
			}
		}
		return numericBinary(a, b,
			func(x, y int64) (int64, error) { return x + y, nil },
			func(x, y float64) (float64, error) { return x + y, nil })
	}
	s.handlers[OpSub] = func(ops []any) (any, error) {
		return numericBinary(ops[0], ops[1],
			func(x, y int64) (int64, error) { return x - y, nil },
			func(x, y float64) (float64, error) { return x - y, nil })
	}
	s.handlers[OpMul] = func(ops []any) (any, error) {
		return numericBinary(ops[0], ops[1],
			func(x, y int64) (int64, error) { return x * y, nil },
			func(x, y float64) (float64, error) { return x * y, nil })
	}
	s.handlers[OpDiv] = func(ops []any) (any, error) {
		x, y, ok := toFloatPair(ops[0], ops[1])
		if !ok {
			return nil, fmt.Errorf("unsupported operands %T and %T", ops[0], ops[1])
		}
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return x / y, nil
	}
	s.handlers[OpFloorDiv] = func(ops []any) (any, error) {
		x, y, ok := toFloatPair(ops[0], ops[1])
		if !ok {
			return nil, fmt.Errorf("unsupported operands %T and %T", ops[0], ops[1])
		}
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		q := math.Floor(x / y)
		if bothInt(ops[0], ops[1]) {
			return int(q), nil
		}
		return q, nil
	}
	s.handlers[OpMod] = func(ops []any) (any, error) {
		return numericBinary(ops[0], ops[1],
			func(x, y int64) (int64, error) {
				if y == 0 {
					return 0, fmt.Errorf("division by zero")
				}
				m := x % y
				// Result takes the divisor's sign, matching floor division.
				if m != 0 && (m < 0) != (y < 0) {
					m += y
				}
				return m, nil
			},
			func(x, y float64) (float64, error) {
				if y == 0 {
					return 0, fmt.Errorf("division by zero")
				}
				m := math.Mod(x, y)
				if m != 0 && (m < 0) != (y < 0) {
					m += y
				}
				return m, nil
			})
	}
	s.handlers[OpPow] = func(ops []any) (any, error) {
		x, y, ok := toFloatPair(ops[0], ops[1])
		if !ok {
			return nil, fmt.Errorf("unsupported operands %T and %T", ops[0], ops[1])
		}
		out := math.Pow(x, y)
		if bothInt(ops[0], ops[1]) && y >= 0 {
			return int(out), nil
		}
		return out, nil
	}
	s.handlers[OpLshift] = intBinary(func(x, y int64) (int64, error) {
		if y < 0 {
			return 0, fmt.Errorf("negative shift count")
		}
		return x << uint(y), nil
	})
	s.handlers[OpRshift] = intBinary(func(x, y int64) (int64, error) {
		if y < 0 {
			return 0, fmt.Errorf("negative shift count")
		}
		return x >> uint(y), nil
	})
	s.handlers[OpBitAnd] = func(ops []any) (any, error) {
		if ab, bb, ok := toBoolPair(ops[0], ops[1]); ok {
			return ab && bb, nil
		}
		return intBinary(func(x, y int64) (int64, error) { return x & y, nil })(ops)
	}
	s.handlers[OpBitOr] = func(ops []any) (any, error) {
		if ab, bb, ok := toBoolPair(ops[0], ops[1]); ok {
			return ab || bb, nil
		}
		return intBinary(func(x, y int64) (int64, error) { return x | y, nil })(ops)
	}
	s.handlers[OpBitXor] = func(ops []any) (any, error) {
		if ab, bb, ok := toBoolPair(ops[0], ops[1]); ok {
			return ab != bb, nil
		}
		return intBinary(func(x, y int64) (int64, error) { return x ^ y, nil })(ops)
	}

	s.handlers[OpEq] = func(ops []any) (any, error) {
		return equalValues(ops[0], ops[1]), nil
	}
	s.handlers[OpNe] = func(ops []any) (any, error) {
		return !equalValues(ops[0], ops[1]), nil
	}
	s.handlers[OpLt] = compareOp(func(c int) bool { return c < 0 })
	s.handlers[OpLe] = compareOp(func(c int) bool { return c <= 0 })
	s.handlers[OpGt] = compareOp(func(c int) bool { return c > 0 })
	s.handlers[OpGe] = compareOp(func(c int) bool { return c >= 0 })

	s.handlers[OpNeg] = func(ops []any) (any, error) {
		if i, ok := toInt64(ops[0]); ok {
			return int(-i), nil
		}
		if f, ok := toFloat64(ops[0]); ok {
			return -f, nil
		}
		return nil, fmt.Errorf("unsupported operand %T", ops[0])
	}
	s.handlers[OpPos] = func(ops []any) (any, error) {
		if _, ok := toFloat64(ops[0]); !ok {
			return nil, fmt.Errorf("unsupported operand %T", ops[0])
		}
		return ops[0], nil
	}
	s.handlers[OpInvert] = func(ops []any) (any, error) {
		if b, ok := ops[0].(bool); ok {
			return !b, nil
		}
		if i, ok := toInt64(ops[0]); ok {
			return int(^i), nil
		}
		return nil, fmt.Errorf("unsupported operand %T", ops[0])
	}

	return s
}

// compareOp builds a comparison handler from a predicate over the
// three-way comparison result.
func compareOp(pred func(int) bool) OpFunc {
	return func(ops []any) (any, error) {
		c, err := compareValues(ops[0], ops[1])
		if err != nil {
			return nil, err
		}
		return pred(c), nil
	}
}

// intBinary builds a handler over int64 operands.
func intBinary(fn func(x, y int64) (int64, error)) OpFunc {
	return func(ops []any) (any, error) {
		x, xok := toInt64(ops[0])
		y, yok := toInt64(ops[1])
		if !xok || !yok {
			return nil, fmt.Errorf("unsupported operands %T and %T", ops[0], ops[1])
		}
		out, err := fn(x, y)
		if err != nil {
			return nil, err
		}
		return int(out), nil
	}
}

// numericBinary applies the integer function when both operands are
// integers and the float function otherwise.
func numericBinary(a, b any, intFn func(x, y int64) (int64, error), floatFn func(x, y float64) (float64, error)) (any, error) {
	if bothInt(a, b) {
		x, _ := toInt64(a)
		y, _ := toInt64(b)
		out, err := intFn(x, y)
		if err != nil {
			return nil, err
		}
		return int(out), nil
	}
	x, y, ok := toFloatPair(a, b)
	if !ok {
		return nil, fmt.Errorf("unsupported operands %T and %T", a, b)
	}
	out, err := floatFn(x, y)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// equalValues compares two values, treating numbers of different widths as
// equal when their numeric values match.
func equalValues(a, b any) bool {
	if af, aok := toFloat64(a); aok {
		if bf, bok := toFloat64(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues returns -1, 0 or 1 for ordered values. Numbers compare
// numerically, strings lexically.
func compareValues(a, b any) (int, error) {
	if af, aok := toFloat64(a); aok {
		bf, bok := toFloat64(b)
		if !bok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		if !bok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		return strings.Compare(as, bs), nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// toInt64 converts integer values to int64. Booleans and floats are not
// integers here; a float with zero fraction stays a float.
func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	}
	return 0, false
}

// toFloat64 converts numeric values to float64.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// toFloatPair converts both operands to float64.
func toFloatPair(a, b any) (float64, float64, bool) {
	x, xok := toFloat64(a)
	y, yok := toFloat64(b)
	return x, y, xok && yok
}

// toBoolPair converts both operands when both are booleans.
func toBoolPair(a, b any) (bool, bool, bool) {
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	return ab, bb, aok && bok
}

// bothInt reports whether both values are integer-typed.
func bothInt(a, b any) bool {
	_, aok := toInt64(a)
	_, bok := toInt64(b)
	return aok && bok
}
