package pipekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/pipekit/pkg/pipekit/diag"
	"github.com/randalmurphal/pipekit/pkg/pipekit/dispatch"
)

// mutateVerb returns a verb that copies its map subject and adds each
// evaluated kwarg as a new key.
func mutateVerb(name string) *Verb {
	return NewVerb(name, func(subject any, args []any, kwargs map[string]any) (any, error) {
		in := subject.(map[string]any)
		out := make(map[string]any, len(in)+len(kwargs))
		for k, v := range in {
			out[k] = v
		}
		for k, v := range kwargs {
			out[k] = v
		}
		return out, nil
	}, WithTypes(map[string]any{}), WithContext(EvalContext))
}

func TestVerbPipe(t *testing.T) {
	mutate := mutateVerb("mutate_pipe")
	f := NewSymbol("f")

	call := mutate.Pipe(Kw("b", f.Attr("a").Mul(2)))
	got, err := call.Evaluate(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, got)
}

func TestPipeChain(t *testing.T) {
	mutate := mutateVerb("mutate_chain")
	f := NewSymbol("f")

	got, err := Pipe(map[string]any{"a": 2},
		mutate.Pipe(Kw("b", f.Attr("a").Mul(10))),
		mutate.Pipe(Kw("c", f.Attr("b").Add(1))),
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 2, "b": 20, "c": 21}, got)
}

func TestPipingOperatorFeedsVerbCall(t *testing.T) {
	mutate := mutateVerb("mutate_op")
	f := NewSymbol("f")

	expr := f.Op(OpRshift, mutate.Pipe(Kw("b", f.Attr("a").Add(1))))
	got, err := Evaluate(expr, map[string]any{"a": 4}, EvalContext)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 4, "b": 5}, got)
}

func TestVerbCallConsumedOnce(t *testing.T) {
	mutate := mutateVerb("mutate_consumed")
	call := mutate.Pipe(Kw("b", 1))

	_, err := call.Evaluate(map[string]any{})
	require.NoError(t, err)

	_, err = call.Evaluate(map[string]any{})
	require.ErrorIs(t, err, ErrCallConsumed)

	var consumed *ConsumedError
	require.ErrorAs(t, err, &consumed)
	assert.Equal(t, "mutate_consumed", consumed.Verb)
	assert.Equal(t, call.ID(), consumed.CallID)
}

func TestNestedVerbCallIsNotConsumption(t *testing.T) {
	// Only the piping entry points consume; evaluating a call nested in a
	// larger tree leaves it reusable.
	mutate := mutateVerb("mutate_nested")
	f := NewSymbol("f")
	inner := mutate.Pipe(Kw("b", 1))
	expr := inner.Item("b").Add(f.Attr("a"))

	for i := 0; i < 2; i++ {
		got, err := Evaluate(expr, map[string]any{"a": 10}, EvalContext)
		require.NoError(t, err)
		assert.Equal(t, 11, got)
	}
}

func TestVerbInvokeNormalCall(t *testing.T) {
	mutate := mutateVerb("mutate_normal")

	// First argument's type is registered for dispatch: normal call.
	got, err := mutate.Invoke(map[string]any{"a": 1}, Kw("b", 2))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, got)
}

func TestVerbInvokePipingOnExpressionArgs(t *testing.T) {
	mutate := mutateVerb("mutate_piping")
	f := NewSymbol("f")

	got, err := mutate.Invoke(Kw("b", f.Attr("a")))
	require.NoError(t, err)
	call, ok := got.(*VerbCall)
	require.True(t, ok, "expression args should defer the call")

	out, err := call.Evaluate(map[string]any{"a": 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 3, "b": 3}, out)
}

func TestVerbInvokeNoArgsPipes(t *testing.T) {
	v := NewVerb("count_noargs", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return len(subject.([]any)), nil
	}, WithTypes([]any{}))

	got, err := v.Invoke()
	require.NoError(t, err)
	call, ok := got.(*VerbCall)
	require.True(t, ok)

	n, err := call.Evaluate([]any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestVerbInvokeModeOverride(t *testing.T) {
	mutate := mutateVerb("mutate_override")

	// Pin to piping even though the first argument is dispatchable.
	got, err := mutate.InvokeMode(ModePiping, Kw("b", 1))
	require.NoError(t, err)
	_, ok := got.(*VerbCall)
	assert.True(t, ok)

	// Pin to normal.
	out, err := mutate.InvokeMode(ModeNormal, map[string]any{"a": 1}, Kw("b", 2))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out)
}

func TestVerbFallbackRaise(t *testing.T) {
	v := NewVerb("strict_verb", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return subject, nil
	}, WithTypes([]any{}), WithVerbFallback(FallbackRaise))

	// A plain non-dispatchable argument with no expressions is
	// undetermined.
	_, err := v.Invoke("not-a-subject")
	require.ErrorIs(t, err, ErrUndetermined)

	var det *DetectionError
	require.ErrorAs(t, err, &det)
	assert.Equal(t, "strict_verb", det.Verb)
	assert.Contains(t, det.File, "verb_test.go")
}

func TestNormalMissingSubject(t *testing.T) {
	mutate := mutateVerb("mutate_nosubject")
	_, err := mutate.InvokeMode(ModeNormal, Kw("b", 1))
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestDependentVerb(t *testing.T) {
	nth := NewVerb("nth_dep", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return subject.([]any)[args[0].(int)], nil
	}, WithTypes([]any{}), Dependent())

	addEach := NewVerb("addeach_dep", func(subject any, args []any, kwargs map[string]any) (any, error) {
		in := subject.([]any)
		n := args[0].(int)
		out := make([]any, len(in))
		for i, v := range in {
			out[i] = v.(int) + n
		}
		return out, nil
	}, WithTypes([]any{}), WithContext(EvalContext))

	// A dependent verb always defers, even with plain args.
	got, err := nth.Invoke(2)
	require.NoError(t, err)
	nthCall, ok := got.(*VerbCall)
	require.True(t, ok)

	// Nested as an argument it resolves against the piped subject.
	out, err := Pipe([]any{1, 2, 3}, addEach.Pipe(nthCall))
	require.NoError(t, err)
	assert.Equal(t, []any{4, 5, 6}, out)
}

func TestDependentVerbCallBuilders(t *testing.T) {
	doubled := NewVerb("doubled_dep", func(subject any, args []any, kwargs map[string]any) (any, error) {
		in := subject.([]any)
		out := make([]any, len(in))
		for i, v := range in {
			out[i] = v.(int) * 2
		}
		return out, nil
	}, WithTypes([]any{}), Dependent())

	addEach := NewVerb("addeach_dep2", func(subject any, args []any, kwargs map[string]any) (any, error) {
		in := subject.([]any)
		n := args[0].(int)
		out := make([]any, len(in))
		for i, v := range in {
			out[i] = v.(int) + n
		}
		return out, nil
	}, WithTypes([]any{}), WithContext(EvalContext))

	got, err := doubled.Invoke()
	require.NoError(t, err)
	call := got.(*VerbCall)

	// Deferred calls compose like any expression node.
	out, err := Pipe([]any{1, 2, 3}, addEach.Pipe(call.Item(0)))
	require.NoError(t, err)
	assert.Equal(t, []any{3, 4, 5}, out)
}

func TestNotPipeableVerb(t *testing.T) {
	v := NewVerb("inline_only", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return subject, nil
	}, WithTypes([]any{}), NotPipeable())

	call := v.Pipe()
	_, err := call.Evaluate([]any{1})
	assert.ErrorIs(t, err, ErrNotPipeable)

	// Normal calls still work.
	got, err := v.Eval([]any{1})
	require.NoError(t, err)
	assert.Equal(t, []any{1}, got)
}

func TestAmbientSubject(t *testing.T) {
	t.Cleanup(ClearAmbientSubject)

	mutate := mutateVerb("mutate_ambient")
	f := NewSymbol("f")

	SetAmbientSubject(map[string]any{"a": 1})

	// With the ambient subject installed, invocations evaluate eagerly.
	got, err := mutate.Invoke(Kw("b", f.Attr("a").Add(1)))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, got)

	ClearAmbientSubject()
	got, err = mutate.Invoke(Kw("b", f.Attr("a").Add(1)))
	require.NoError(t, err)
	_, deferred := got.(*VerbCall)
	assert.True(t, deferred)
}

func TestSelectContextVerb(t *testing.T) {
	sel := NewVerb("select_v", func(subject any, args []any, kwargs map[string]any) (any, error) {
		in := subject.(map[string]any)
		out := make(map[string]any, len(args))
		for _, a := range args {
			name := a.(string)
			out[name] = in[name]
		}
		return out, nil
	}, WithTypes(map[string]any{}), WithContext(SelectContext))

	f := NewSymbol("f")
	got, err := Pipe(map[string]any{"a": 1, "b": 2, "c": 3},
		sel.Pipe(f.Attr("a"), f.Attr("c")))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "c": 3}, got)
}

func TestPendingContextVerb(t *testing.T) {
	pending := NewVerb("pending_v", func(subject any, args []any, kwargs map[string]any) (any, error) {
		// Interpret the unevaluated expression manually: evaluate it twice
		// against different contexts.
		expr := args[0]
		name, err := Evaluate(expr, subject, SelectContext)
		if err != nil {
			return nil, err
		}
		val, err := Evaluate(expr, subject, EvalContext)
		if err != nil {
			return nil, err
		}
		return map[string]any{"name": name, "value": val}, nil
	}, WithTypes(map[string]any{}), WithContext(PendingContext))

	f := NewSymbol("f")
	got, err := Pipe(map[string]any{"x": 9}, pending.Pipe(f.Attr("x")))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "x", "value": 9}, got)
}

func TestVerbKwContext(t *testing.T) {
	v := NewVerb("rename_v", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return kwargs, nil
	}, WithTypes(map[string]any{}),
		WithContext(EvalContext),
		WithKwContext("from", SelectContext))

	f := NewSymbol("f")
	got, err := Pipe(map[string]any{"a": 1},
		v.Pipe(Kw("from", f.Attr("a")), Kw("value", f.Attr("a"))))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"from": "a", "value": 1}, got)
}

func TestVerbBackends(t *testing.T) {
	v := NewVerb("summarize_b", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return "default", nil
	}, WithTypes([]any{}))

	err := v.Register(func(subject any, args []any, kwargs map[string]any) (any, error) {
		return "fast", nil
	}, dispatch.ForValues([]any{}), dispatch.WithBackend("fast"))
	require.NoError(t, err)

	// Most recently registered backend wins by default.
	got, err := v.Pipe().Evaluate([]any{1})
	require.NoError(t, err)
	assert.Equal(t, "fast", got)

	// A backend hint pins resolution.
	got, err = v.Pipe().UsingBackend("_default").Evaluate([]any{1})
	require.NoError(t, err)
	assert.Equal(t, "default", got)

	_, err = v.Pipe().UsingBackend("nope").Evaluate([]any{1})
	var nf *dispatch.BackendNotFoundError
	assert.ErrorAs(t, err, &nf)

	assert.Equal(t, []string{"_default", "fast"}, v.Backends())
}

func TestAmbiguousDispatchRecordsMetric(t *testing.T) {
	t.Cleanup(ResetSettings)

	rec := &captureMetrics{}
	require.NoError(t, Configure(WithMetricsRecorder(rec), WithWarningBus(diag.NewBus())))

	v := NewVerb("summarize_m", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return "default", nil
	}, WithTypes([]any{}))
	require.NoError(t, v.Register(func(subject any, args []any, kwargs map[string]any) (any, error) {
		return "fast", nil
	}, dispatch.ForValues([]any{}), dispatch.WithBackend("fast")))

	got, err := v.Pipe().Evaluate([]any{1})
	require.NoError(t, err)
	assert.Equal(t, "fast", got)
	assert.Equal(t, []string{"summarize_m"}, rec.ambiguities)
}

func TestVerbImplContextOverride(t *testing.T) {
	// A per-implementation context overrides the verb's context under
	// subject-type dispatch.
	v := NewVerb("ctx_override", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return args[0], nil
	}, WithTypes(map[string]any{}), WithContext(EvalContext))

	err := v.Register(func(subject any, args []any, kwargs map[string]any) (any, error) {
		return args[0], nil
	}, dispatch.ForValues([]int{}), dispatch.WithContext(SelectContext))
	require.NoError(t, err)

	f := NewSymbol("f")

	got, err := v.Pipe(f.Attr("a")).Evaluate(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = v.Pipe(f.Attr("a")).Evaluate([]int{5})
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestVerbCallString(t *testing.T) {
	mutate := mutateVerb("mutate_str")
	f := NewSymbol("f")

	call := mutate.Pipe(Kw("b", f.Attr("a").Mul(2)))
	assert.Equal(t, "mutate_str(., b=a * 2)", call.String())

	bare := mutate.Pipe()
	assert.Equal(t, "mutate_str(.)", bare.String())

	dep := NewVerb("dep_str", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return nil, nil
	}, Dependent())
	assert.Equal(t, "dep_str(1)", dep.Pipe(1).String())
}

func TestLookupVerb(t *testing.T) {
	v := mutateVerb("mutate_lookup")
	got, ok := LookupVerb("mutate_lookup")
	require.True(t, ok)
	assert.Same(t, v, got)

	_, ok = LookupVerb("never_registered")
	assert.False(t, ok)
}

func TestNewVerbNilImplPanics(t *testing.T) {
	assert.Panics(t, func() { NewVerb("bad_verb", nil) })
}

func TestVerbOrigin(t *testing.T) {
	v := mutateVerb("mutate_origin")
	// mutateVerb is the registration site.
	assert.Contains(t, v.Origin(), "verb_test.go")
}

func TestVerbUnregister(t *testing.T) {
	v := NewVerb("transient", func(subject any, args []any, kwargs map[string]any) (any, error) {
		return subject.(int) + 1, nil
	}, WithTypes(0))

	impl := v.Unregister()
	_, ok := LookupVerb("transient")
	assert.False(t, ok)

	// The recovered implementation is the plain function.
	got, err := impl(41, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	// The Verb value still evaluates.
	got, err = v.Eval(1)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}
