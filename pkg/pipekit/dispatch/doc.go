/*
Package dispatch provides type-indexed multiple dispatch with backend
prioritization for registered generic callables.

A Table maps dispatch keys (argument types) to implementations. Multiple
backends can register implementations for the same key; resolution prefers
a unique favored entry, then the most recently registered backend, emitting
a non-fatal warning when several non-favored entries are eligible.

# Strategies

The dispatch key is computed from evaluated argument values per the table's
strategy:

  - FirstArgType: the first argument's type decides alone.
  - AllPositionalTypes: each positional argument's type is tried in order.
  - AllKeywordTypes: each keyword argument's type is tried in order.
  - AllArgTypes: positional then keyword types, short-circuiting on the
    first type that yields any match. This makes resolution deliberately
    order-dependent: given implementations for (int, _) and (_, string),
    calling with (1, "x") always selects the int implementation.

# Backends

	table := dispatch.New[Impl]("mean", dispatch.FirstArgType)
	table.Register(sliceMean, dispatch.ForValues([]float64{}))
	table.Register(fastMean, dispatch.ForValues([]float64{}),
	    dispatch.WithBackend("simd"), dispatch.Favored())

	fn, ctx, err := table.Dispatch(types, nil, "")      // favored: fastMean
	fn, ctx, err = table.Dispatch(types, nil, "_default") // hint: sliceMean

At most one favored entry may exist per key across the backend set; a
second favored registration fails with ErrDuplicateFavored.

# Thread safety

Tables are mutated at registration time only, before use. Registering
concurrently with dispatching is undefined behavior.
*/
package dispatch
