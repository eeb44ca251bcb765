/*
Package pipekit is a deferred-expression evaluation runtime: expressions
are built as immutable trees against a symbolic subject, then resolved
later when a concrete subject is piped in.

# Expressions

NewSymbol creates the root placeholder; references, operator calls and
function calls grow off it with builder methods:

	f := pipekit.NewSymbol("f")
	expr := f.Attr("price").Mul(f.Attr("qty"))

	total, err := pipekit.Evaluate(expr, order, pipekit.EvalContext)

Building never evaluates anything. Nodes are immutable and subtrees may
be shared between trees.

# Contexts

A Context decides what a reference means. Under EvalContext f.Attr("a")
reads attribute (or key) "a" off the subject; under SelectContext it
yields the name "a" itself; under PendingContext the reference node is
returned unevaluated, for verbs that interpret their own arguments. A
reference used directly as an argument resolves under the caller's
context, but once wrapped by an operator or call it always resolves
against real values.

# Verbs

A verb is a subject-first callable with type-based dispatch:

	filter := pipekit.NewVerb("filter", filterSlice,
	    pipekit.WithTypes([]any{}),
	    pipekit.WithContext(pipekit.EvalContext),
	)

	out, err := pipekit.Pipe(data, filter.Pipe(f.Attr("age").Gt(30)))

Invoke resolves per call site whether the verb was piped or called
normally with the subject as first argument; undetermined sites fall back
per policy (see FallbackPolicy). Implementations register per subject
type, grouped into named backends, with favored implementations breaking
ties. See the dispatch package for the resolution rules.

# Pipelines

Pipeline is a reusable chain of deferred calls with structured logging,
OpenTelemetry metrics and tracing, and an optional persistent journal of
per-stage results:

	p := pipekit.NewPipeline(
	    filter.Pipe(f.Attr("age").Gt(30)),
	    mutate.Pipe(pipekit.Kw("senior", f.Attr("age").Ge(65))),
	)
	out, err := p.Run(ctx, people, pipekit.WithJournal(store))

# Configuration

Process-wide behavior (fallback policy, piping operator, resolver,
warning bus, logger) is set with Configure, or loaded from YAML/JSON via
the config package and ConfigureFrom.
*/
package pipekit
