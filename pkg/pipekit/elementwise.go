package pipekit

import "sync"

// ElementwiseHook intercepts Elementwise calls, typically to vectorize
// them over a backend's columnar data instead of deferring scalar calls.
type ElementwiseHook func(name string, fn FuncImpl, args []any) (any, error)

var (
	elementwiseMu   sync.RWMutex
	elementwiseHook ElementwiseHook
)

// SetElementwiseHook installs a process-wide hook. A nil hook restores
// the default behavior.
func SetElementwiseHook(h ElementwiseHook) {
	elementwiseMu.Lock()
	defer elementwiseMu.Unlock()
	elementwiseHook = h
}

// Elementwise applies a scalar function elementwise. By default it behaves
// like calling an unregistered Func: expression arguments defer the call
// into a FuncCall node, plain arguments run fn immediately. An installed
// hook replaces that behavior entirely.
func Elementwise(name string, fn FuncImpl, args ...any) (any, error) {
	elementwiseMu.RLock()
	hook := elementwiseHook
	elementwiseMu.RUnlock()
	if hook != nil {
		return hook(name, fn, args)
	}

	pos, kws := splitArgs(args)
	f := &Func{name: name, impl: fn}
	if hasExpr(pos, kws) {
		return newFuncCall(f, nil, pos, kws), nil
	}
	kwmap := make(map[string]any, len(kws))
	for _, kw := range kws {
		kwmap[kw.Name] = kw.Value
	}
	return fn(pos, kwmap)
}
