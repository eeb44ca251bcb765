package pipekit

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/randalmurphal/pipekit/pkg/pipekit/config"
	"github.com/randalmurphal/pipekit/pkg/pipekit/diag"
	"github.com/randalmurphal/pipekit/pkg/pipekit/observability"
)

// pipingOps maps accepted piping operator symbols to the canonical
// operator name they occupy while active.
var pipingOps = map[string]string{
	">>": OpRshift,
	"|":  OpBitOr,
	"//": OpFloorDiv,
	"@":  OpMatMul,
	"%":  OpMod,
	"&":  OpBitAnd,
	"^":  OpBitXor,
}

// Settings is the process-wide runtime configuration. Read a snapshot with
// CurrentSettings; change it with Configure.
type Settings struct {
	// Fallback is the default policy for undetermined call modes.
	Fallback FallbackPolicy
	// AssumeAllPiping short-circuits mode resolution: every verb
	// invocation is treated as piping.
	AssumeAllPiping bool
	// PipingOperator is the operator symbol that pipes a value into a
	// VerbCall. One of >>, |, //, @, %, & or ^.
	PipingOperator string
	// Resolver overrides the built-in call-mode heuristics. Nil uses the
	// default resolver.
	Resolver ModeResolver
	// Warnings is the bus diagnostics are emitted to. Nil uses
	// diag.Default().
	Warnings *diag.Bus
	// Logger is the structured logger used by pipelines. Nil uses
	// slog.Default().
	Logger *slog.Logger
	// Metrics receives dispatch ambiguity and call-mode fallback counts.
	// Nil disables recording.
	Metrics observability.MetricsRecorder
}

func defaultSettings() Settings {
	return Settings{
		Fallback:       FallbackNormalWarning,
		PipingOperator: ">>",
	}
}

var (
	settingsMu sync.RWMutex
	settings   = defaultSettings()
)

// SettingsOption mutates the runtime settings inside Configure.
type SettingsOption func(*Settings) error

// WithFallback sets the default fallback policy.
func WithFallback(policy FallbackPolicy) SettingsOption {
	return func(s *Settings) error {
		if _, err := ParseFallbackPolicy(string(policy)); err != nil {
			return err
		}
		s.Fallback = policy
		return nil
	}
}

// WithAssumeAllPiping toggles treating every verb invocation as piping.
func WithAssumeAllPiping(on bool) SettingsOption {
	return func(s *Settings) error {
		s.AssumeAllPiping = on
		return nil
	}
}

// WithPipingOperator selects the piping operator symbol.
func WithPipingOperator(symbol string) SettingsOption {
	return func(s *Settings) error {
		if _, ok := pipingOps[symbol]; !ok {
			return fmt.Errorf("pipekit: invalid piping operator %q", symbol)
		}
		s.PipingOperator = symbol
		return nil
	}
}

// WithResolver installs a custom call-mode resolver.
func WithResolver(r ModeResolver) SettingsOption {
	return func(s *Settings) error {
		s.Resolver = r
		return nil
	}
}

// WithWarningBus routes diagnostics to a dedicated bus.
func WithWarningBus(bus *diag.Bus) SettingsOption {
	return func(s *Settings) error {
		s.Warnings = bus
		return nil
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) SettingsOption {
	return func(s *Settings) error {
		s.Logger = logger
		return nil
	}
}

// WithMetricsRecorder installs a recorder for dispatch ambiguities and
// call-mode fallbacks.
func WithMetricsRecorder(m observability.MetricsRecorder) SettingsOption {
	return func(s *Settings) error {
		s.Metrics = m
		return nil
	}
}

// Configure applies options to the process-wide settings. Options apply
// atomically: on any error the settings are left unchanged.
func Configure(opts ...SettingsOption) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	next := settings
	for _, opt := range opts {
		if err := opt(&next); err != nil {
			return err
		}
	}
	settings = next
	return nil
}

// CurrentSettings returns a snapshot of the runtime settings.
func CurrentSettings() Settings {
	return snapshotSettings()
}

// ResetSettings restores the defaults. Intended for tests.
func ResetSettings() {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settings = defaultSettings()
}

func snapshotSettings() Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings
}

// pipingOpName returns the canonical operator name currently carrying
// piping semantics.
func pipingOpName() string {
	return pipingOps[snapshotSettings().PipingOperator]
}

// activeMetrics returns the configured metrics recorder, or a no-op one.
func activeMetrics(s Settings) observability.MetricsRecorder {
	if s.Metrics != nil {
		return s.Metrics
	}
	return observability.NoopMetrics{}
}

var (
	ambientMu  sync.RWMutex
	ambientVal any
	ambientSet bool
)

// SetAmbientSubject installs a process-wide subject. While installed,
// bare verb invocations pipe from it implicitly and mode resolution pins
// every call to piping.
func SetAmbientSubject(subject any) {
	ambientMu.Lock()
	defer ambientMu.Unlock()
	ambientVal, ambientSet = subject, true
}

// ClearAmbientSubject removes the ambient subject.
func ClearAmbientSubject() {
	ambientMu.Lock()
	defer ambientMu.Unlock()
	ambientVal, ambientSet = nil, false
}

// AmbientSubject returns the installed ambient subject, if any.
func AmbientSubject() (any, bool) {
	ambientMu.RLock()
	defer ambientMu.RUnlock()
	return ambientVal, ambientSet
}

// ConfigureFrom applies the recognized runtime keys of a loaded config:
// "fallback", "assume_piping" and "piping_operator". Unknown keys are
// ignored; invalid values fail without changing the settings.
func ConfigureFrom(cfg config.Config) error {
	var opts []SettingsOption
	if cfg.Has("fallback") {
		opts = append(opts, WithFallback(FallbackPolicy(cfg.String("fallback", ""))))
	}
	if cfg.Has("assume_piping") {
		opts = append(opts, WithAssumeAllPiping(cfg.Bool("assume_piping", false)))
	}
	if cfg.Has("piping_operator") {
		opts = append(opts, WithPipingOperator(cfg.String("piping_operator", ">>")))
	}
	return Configure(opts...)
}
