package pipekit

import (
	"fmt"
	"strings"
)

// OperatorCall applies an operator from the active operator set to its
// operands. Operand expressions are always evaluated under Eval: operator
// semantics require concrete values, so a reference wrapped by an operator
// never behaves as a name literal.
type OperatorCall struct {
	base
	symbol   string
	operands []any
	// pipe marks a node built while its symbol carried piping semantics
	// and with a VerbCall right operand. The decision is fixed at
	// construction: reconfiguring the piping operator afterwards does not
	// change how existing nodes evaluate.
	pipe bool
}

func newOperatorCall(symbol string, operands []any) *OperatorCall {
	if _, ok := opText[symbol]; !ok {
		panic(fmt.Sprintf("pipekit: unknown operator symbol %q", symbol))
	}
	oc := &OperatorCall{
		symbol:   symbol,
		operands: nestedAll(operands),
	}
	if symbol == pipingOpName() && len(oc.operands) == 2 {
		if _, ok := oc.operands[1].(*VerbCall); ok {
			oc.pipe = true
		}
	}
	oc.init(oc)
	return oc
}

// NewOperatorCall builds an operator node explicitly. Most callers use the
// builder methods (Add, Sub, ...) instead.
func NewOperatorCall(symbol string, operands ...any) *OperatorCall {
	return newOperatorCall(symbol, operands)
}

// Symbol returns the canonical operator name.
func (oc *OperatorCall) Symbol() string {
	return oc.symbol
}

// Operands returns the operand values as stored.
func (oc *OperatorCall) Operands() []any {
	return oc.operands
}

// String renders the operator infix or prefix using its canonical text.
func (oc *OperatorCall) String() string {
	text := opText[oc.symbol]
	if unaryOps[oc.symbol] && len(oc.operands) == 1 {
		return fmt.Sprintf("%s%s", text, operandString(oc.operands[0]))
	}
	if len(oc.operands) == 2 {
		left, right := oc.operands[0], oc.operands[1]
		if strings.HasPrefix(oc.symbol, "r") {
			left, right = right, left
		}
		return fmt.Sprintf("%s %s %s", operandString(left), text, operandString(right))
	}
	parts := make([]string, len(oc.operands))
	for i, op := range oc.operands {
		parts[i] = operandString(op)
	}
	return fmt.Sprintf("%s(%s)", oc.symbol, strings.Join(parts, ", "))
}

func (oc *OperatorCall) refLevel() int {
	return 0
}

func (oc *OperatorCall) eval(subject any, ctx Context) (any, error) {
	// A pipe node intercepts before operator semantics: left operand
	// piped into the VerbCall right operand.
	if oc.pipe {
		left, err := evaluateExpr(oc.operands[0], subject, forceEval(ctx))
		if err != nil {
			return nil, err
		}
		return oc.operands[1].(*VerbCall).pipeInto(left, ctx)
	}

	vals := make([]any, len(oc.operands))
	for i, op := range oc.operands {
		v, err := evaluateExpr(op, subject, forceEval(ctx))
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return ActiveOperators().Apply(oc.symbol, vals)
}

// operandString renders an operand, parenthesizing nested operator calls
// to keep the rendering unambiguous.
func operandString(v any) string {
	switch val := v.(type) {
	case *OperatorCall:
		return fmt.Sprintf("(%s)", val)
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}
