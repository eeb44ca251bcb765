// Package observability provides structured logging, metrics and tracing
// for pipeline runs: slog for logging, OpenTelemetry for metrics and
// spans. Everything is opt-in with no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger carrying run and stage context.
func EnrichLogger(logger *slog.Logger, runID, verb string, stage int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("verb", verb),
		slog.Int("stage", stage),
	)
}

// LogRunStart logs the start of a pipeline run.
func LogRunStart(logger *slog.Logger, runID string, stages int) {
	if logger == nil {
		return
	}
	logger.Info("pipeline run starting",
		slog.String("run_id", runID),
		slog.Int("stages", stages),
	)
}

// LogRunComplete logs successful pipeline completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, stages int) {
	if logger == nil {
		return
	}
	logger.Info("pipeline run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("stages_executed", stages),
	)
}

// LogRunError logs pipeline failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastVerb string) {
	if logger == nil {
		return
	}
	logger.Error("pipeline run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_verb", lastVerb),
	)
}

// LogStageStart logs a stage starting.
func LogStageStart(logger *slog.Logger, verb string) {
	if logger == nil {
		return
	}
	logger.Debug("stage starting",
		slog.String("verb", verb),
	)
}

// LogStageComplete logs successful stage completion.
func LogStageComplete(logger *slog.Logger, verb string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("verb", verb),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStageError logs a stage failure.
func LogStageError(logger *slog.Logger, verb string, err error) {
	if logger == nil {
		return
	}
	logger.Error("stage failed",
		slog.String("verb", verb),
		slog.String("error", err.Error()),
	)
}

// LogJournalError logs a journal write failure (non-fatal).
func LogJournalError(logger *slog.Logger, verb string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("journal write failed",
		slog.String("verb", verb),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation. The returned
// function yields the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
