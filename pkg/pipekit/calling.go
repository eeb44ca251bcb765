package pipekit

import (
	"context"
	"fmt"

	"github.com/randalmurphal/pipekit/pkg/pipekit/diag"
)

// Mode is how a verb invocation is interpreted: piping builds a deferred
// VerbCall awaiting a subject, normal treats the first argument as the
// subject and evaluates immediately.
type Mode int

const (
	// ModeUndetermined means the call site gave no reliable signal either
	// way; the fallback policy decides.
	ModeUndetermined Mode = iota
	// ModePiping defers the call into a VerbCall node.
	ModePiping
	// ModeNormal evaluates immediately with the first argument as subject.
	ModeNormal
)

func (m Mode) String() string {
	switch m {
	case ModePiping:
		return "piping"
	case ModeNormal:
		return "normal"
	default:
		return "undetermined"
	}
}

// FallbackPolicy decides the mode when a call site is undetermined.
type FallbackPolicy string

const (
	// FallbackPiping silently assumes piping.
	FallbackPiping FallbackPolicy = "piping"
	// FallbackNormal silently assumes a normal call.
	FallbackNormal FallbackPolicy = "normal"
	// FallbackPipingWarning assumes piping and emits a warning.
	FallbackPipingWarning FallbackPolicy = "piping_warning"
	// FallbackNormalWarning assumes a normal call and emits a warning.
	// This is the default policy.
	FallbackNormalWarning FallbackPolicy = "normal_warning"
	// FallbackRaise fails the call with a DetectionError.
	FallbackRaise FallbackPolicy = "raise"
)

// ParseFallbackPolicy validates a policy string, typically from config.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(s); p {
	case FallbackPiping, FallbackNormal, FallbackPipingWarning,
		FallbackNormalWarning, FallbackRaise:
		return p, nil
	}
	return "", fmt.Errorf("pipekit: unknown fallback policy %q", s)
}

// CallSite describes one verb invocation for mode resolution. It carries
// only what can be observed without source analysis: the argument shape
// and the caller location.
type CallSite struct {
	// Verb is the invoked verb's name.
	Verb string
	// NumArgs counts all arguments, keyword arguments included.
	NumArgs int
	// HasExpressionArgs reports whether any argument is or contains an
	// Expression node.
	HasExpressionArgs bool
	// FirstArgDispatchable reports whether the first positional argument's
	// type matches a registered dispatch type of the verb.
	FirstArgDispatchable bool
	// AmbientSubject reports whether an ambient subject is installed.
	AmbientSubject bool
	// File and Line locate the caller, for warnings and errors.
	File string
	Line int
}

// ModeResolver decides the mode of a verb invocation from its call site.
// Returning ModeUndetermined defers to the verb's fallback policy.
type ModeResolver interface {
	Resolve(site CallSite) Mode
}

// ModeResolverFunc adapts a function to ModeResolver.
type ModeResolverFunc func(site CallSite) Mode

// Resolve calls f.
func (f ModeResolverFunc) Resolve(site CallSite) Mode { return f(site) }

// defaultResolver applies the built-in heuristics:
//
//   - an ambient subject pins the call to piping
//   - no arguments at all means piping (the bare verb awaits a subject)
//   - a first argument whose type the verb dispatches on means a normal
//     call with that argument as subject
//   - expression arguments mean piping (they need a subject to resolve)
//   - anything else is undetermined
var defaultResolver ModeResolver = ModeResolverFunc(func(site CallSite) Mode {
	switch {
	case site.AmbientSubject:
		return ModePiping
	case site.NumArgs == 0:
		return ModePiping
	case site.FirstArgDispatchable:
		return ModeNormal
	case site.HasExpressionArgs:
		return ModePiping
	default:
		return ModeUndetermined
	}
})

// resolveMode turns an undetermined site into a concrete mode via the
// active resolver and the fallback policy, emitting warnings or failing
// per policy.
func resolveMode(site CallSite, policy FallbackPolicy) (Mode, error) {
	s := snapshotSettings()
	if s.AssumeAllPiping {
		return ModePiping, nil
	}
	resolver := s.Resolver
	if resolver == nil {
		resolver = defaultResolver
	}
	mode := resolver.Resolve(site)
	if mode != ModeUndetermined {
		return mode, nil
	}

	if policy == "" {
		policy = s.Fallback
	}
	var assumed Mode
	var warn bool
	switch policy {
	case FallbackPiping:
		assumed = ModePiping
	case FallbackNormal:
		assumed = ModeNormal
	case FallbackPipingWarning:
		assumed, warn = ModePiping, true
	case FallbackNormalWarning, "":
		assumed, warn = ModeNormal, true
	case FallbackRaise:
		return ModeUndetermined, &DetectionError{Verb: site.Verb, File: site.File, Line: site.Line}
	default:
		return ModeUndetermined, fmt.Errorf("pipekit: unknown fallback policy %q", policy)
	}

	activeMetrics(s).RecordFallback(context.Background(), site.Verb, assumed.String())
	if warn {
		warnFallback(s, site, assumed)
	}
	return assumed, nil
}

func warnFallback(s Settings, site CallSite, assumed Mode) {
	bus := s.Warnings
	if bus == nil {
		bus = diag.Default()
	}
	loc := ""
	if site.File != "" {
		loc = fmt.Sprintf("%s:%d", site.File, site.Line)
	}
	bus.Emit(diag.Warning{
		Kind: diag.KindCallModeFallback,
		Verb: site.Verb,
		Site: loc,
		Message: fmt.Sprintf(
			"cannot determine call mode for %q, assuming %s call", site.Verb, assumed),
	})
}
