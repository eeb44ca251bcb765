package pipekit

// Evaluate resolves a previously built expression against a concrete
// subject under the given context. It is the public evaluation entry point
// for callers that already have a subject and want to bypass the
// pipe/call machinery.
//
// Plain values pass through unchanged. Slices, maps and Kwargs are
// evaluated elementwise; Expression nodes are walked structurally:
//
//   - Symbol yields the subject.
//   - Reference resolves its parent, then asks the context for the
//     attribute or item (under Pending the reference itself is returned).
//   - OperatorCall evaluates its operands under Eval and applies the
//     active operator set's handler.
//   - FuncCall and VerbCall evaluate their arguments under their declared
//     context (or ctx when none is declared), then dispatch and invoke.
//
// A nil ctx is allowed for expressions that don't need one (pure Symbol
// trees, plain values); evaluating a Reference without a context fails
// with ErrNoContext.
//
// Evaluation never mutates the expression tree: re-evaluating the same
// tree against the same subject and context yields identical results.
func Evaluate(expr any, subject any, ctx Context) (any, error) {
	return evaluateExpr(expr, subject, ctx)
}

// EvaluateWithMeta evaluates with the context's meta temporarily overlaid
// by the given entries. The prior meta is restored on every exit path,
// including panics.
func EvaluateWithMeta(expr any, subject any, ctx Context, overrides Meta) (any, error) {
	if scoper, ok := ctx.(MetaScoper); ok && len(overrides) > 0 {
		restore := scoper.ScopeMeta(overrides)
		defer restore()
	}
	return evaluateExpr(expr, subject, ctx)
}

// evaluateExpr is the recursive worker behind Evaluate.
func evaluateExpr(expr any, subject any, ctx Context) (any, error) {
	switch v := expr.(type) {
	case Expression:
		return v.eval(subject, ctx)
	case Kwarg:
		val, err := evaluateExpr(v.Value, subject, ctx)
		if err != nil {
			return nil, err
		}
		return Kwarg{Name: v.Name, Value: val}, nil
	case []any:
		if !isExpr(v) {
			return v, nil
		}
		out := make([]any, len(v))
		for i, e := range v {
			val, err := evaluateExpr(e, subject, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case map[string]any:
		if !isExpr(v) {
			return v, nil
		}
		out := make(map[string]any, len(v))
		for k, e := range v {
			val, err := evaluateExpr(e, subject, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil
	default:
		return expr, nil
	}
}

// forceEval returns an Eval context, preserving the meta of the context it
// replaces so meta stays visible to nested evaluations.
func forceEval(ctx Context) Context {
	if ctx == nil {
		return EvalContext
	}
	if ctx.Kind() == KindEval {
		return ctx
	}
	if m := ctx.Meta(); len(m) > 0 {
		return NewEvalContext(m)
	}
	return EvalContext
}

// evaluateArgs evaluates positional and keyword arguments of a call under
// the given context. A mixed context routes positional and keyword
// arguments to its respective sub-contexts; kwContexts overrides the
// context for individual keyword arguments by name.
func evaluateArgs(pos []any, kws []Kwarg, subject any, ctx Context, kwContexts map[string]Context) ([]any, map[string]any, error) {
	argCtx, kwCtx := ctx, ctx
	if split, ok := ctx.(argSplitter); ok {
		argCtx = split.ArgsContext()
		kwCtx = split.KwargsContext()
	}

	outPos := make([]any, len(pos))
	for i, a := range pos {
		v, err := evaluateExpr(a, subject, argCtx)
		if err != nil {
			return nil, nil, err
		}
		outPos[i] = v
	}

	outKw := make(map[string]any, len(kws))
	for _, kw := range kws {
		c := kwCtx
		if override, ok := kwContexts[kw.Name]; ok {
			c = override
		}
		v, err := evaluateExpr(kw.Value, subject, c)
		if err != nil {
			return nil, nil, err
		}
		outKw[kw.Name] = v
	}
	return outPos, outKw, nil
}
