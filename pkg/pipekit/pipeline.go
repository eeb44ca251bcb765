package pipekit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/pipekit/pkg/pipekit/journal"
	"github.com/randalmurphal/pipekit/pkg/pipekit/observability"
)

// Pipeline is a reusable sequence of deferred verb calls. Unlike piping
// VerbCalls directly, running a Pipeline does not consume its stages, so
// the same pipeline can run against many subjects.
type Pipeline struct {
	calls []*VerbCall
}

// NewPipeline builds a pipeline from deferred calls. It panics if any
// stage's verb is not pipeable, since that is a construction-time
// programming error.
func NewPipeline(calls ...*VerbCall) *Pipeline {
	for _, call := range calls {
		if !call.verb.pipeable {
			panic("pipekit: verb " + call.verb.name + " cannot be piped")
		}
	}
	return &Pipeline{calls: calls}
}

// Stages returns the number of stages.
func (p *Pipeline) Stages() int { return len(p.calls) }

type runConfig struct {
	runID   string
	logger  *slog.Logger
	journal journal.Store
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// RunOption configures one pipeline run.
type RunOption func(*runConfig)

// WithRunID sets the run identifier. Without it a UUID is generated.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// WithRunLogger sets the logger for this run, overriding the configured
// settings logger.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = logger }
}

// WithJournal records every stage of the run to the store. Journal write
// failures are logged and do not fail the run.
func WithJournal(store journal.Store) RunOption {
	return func(c *runConfig) { c.journal = store }
}

// WithMetrics records stage and run metrics.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) { c.metrics = m }
}

// WithTracing emits a span per run and per stage.
func WithTracing(sm observability.SpanManager) RunOption {
	return func(c *runConfig) { c.spans = sm }
}

// Run threads the subject through the pipeline's stages, feeding each
// stage's result into the next. The context cancels the run between
// stages; a running stage is not interrupted.
func (p *Pipeline) Run(ctx context.Context, subject any, opts ...RunOption) (any, error) {
	cfg := runConfig{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.New().String()
	}
	if cfg.logger == nil {
		cfg.logger = snapshotSettings().Logger
	}

	ctx, runSpan := cfg.spans.StartRunSpan(ctx, cfg.runID)
	runDone := observability.TimedOperation()
	observability.LogRunStart(cfg.logger, cfg.runID, len(p.calls))

	cur := subject
	for i, call := range p.calls {
		if err := ctx.Err(); err != nil {
			cfg.spans.EndSpanWithError(runSpan, err)
			cfg.metrics.RecordRun(ctx, false, time.Duration(runDone())*time.Millisecond)
			return nil, err
		}

		verb := call.verb.name
		stageLogger := observability.EnrichLogger(cfg.logger, cfg.runID, verb, i+1)
		observability.LogStageStart(stageLogger, verb)

		stageCtx, stageSpan := cfg.spans.StartStageSpan(ctx, verb)
		stageDone := observability.TimedOperation()
		start := time.Now()

		next, err := call.eval(cur, nil)

		cfg.metrics.RecordStage(stageCtx, verb, time.Since(start), err)
		cfg.spans.EndSpanWithError(stageSpan, err)

		p.record(cfg, call, next, err)

		if err != nil {
			observability.LogStageError(stageLogger, verb, err)
			observability.LogRunError(cfg.logger, cfg.runID, err, runDone(), verb)
			cfg.spans.EndSpanWithError(runSpan, err)
			cfg.metrics.RecordRun(ctx, false, time.Since(start))
			return nil, err
		}

		observability.LogStageComplete(stageLogger, verb, stageDone())
		cur = next
	}

	durationMs := runDone()
	observability.LogRunComplete(cfg.logger, cfg.runID, durationMs, len(p.calls))
	cfg.spans.EndSpanWithError(runSpan, nil)
	cfg.metrics.RecordRun(ctx, true, time.Duration(durationMs)*time.Millisecond)
	return cur, nil
}

// record appends one stage to the journal, if configured.
func (p *Pipeline) record(cfg runConfig, call *VerbCall, result any, stageErr error) {
	if cfg.journal == nil {
		return
	}
	rec := journal.Record{
		RunID: cfg.runID,
		Verb:  call.verb.name,
		Expr:  call.String(),
	}
	if stageErr != nil {
		rec.Err = stageErr.Error()
	} else if data, err := json.Marshal(result); err == nil {
		rec.Result = data
	}
	if err := cfg.journal.Append(rec); err != nil {
		observability.LogJournalError(cfg.logger, call.verb.name, "append", err)
	}
}
