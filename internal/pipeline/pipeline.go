// Package pipeline composes the extraction, parsing, categorization,
// aggregation, and anomaly detection stages into one run that produces a
// ProcessedStatement.
//
// The stage sequence is explicit state, not control flow: a run moves
// Uploaded -> Extracting -> Parsing -> Categorizing -> Aggregating ->
// DetectingAnomalies -> Assembled. Extraction and parsing failures abort
// the run with the failed stage attached; categorization and anomaly
// detection are enhancements and degrade to empty results with a recorded
// warning instead of aborting.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/clarofin/statements/internal/aggregate"
	"github.com/clarofin/statements/internal/anomaly"
	"github.com/clarofin/statements/internal/categorizer"
	"github.com/clarofin/statements/internal/parser"
	"github.com/clarofin/statements/internal/statement"
	"github.com/clarofin/statements/pkg/metrics"
)

// Stage names a pipeline phase, used for failure attribution and metrics.
type Stage string

const (
	StageUploaded           Stage = "uploaded"
	StageExtracting         Stage = "extracting"
	StageParsing            Stage = "parsing"
	StageCategorizing       Stage = "categorizing"
	StageAggregating        Stage = "aggregating"
	StageDetectingAnomalies Stage = "detecting_anomalies"
	StageAssembled          Stage = "assembled"
)

// Status is the terminal state of a run that produced a result.
type Status string

const (
	StatusAssembled Status = "assembled"
	// StatusPartiallyAssembled marks a result whose enhancement stages
	// degraded; the statement is still usable.
	StatusPartiallyAssembled Status = "partially_assembled"
)

// StageError is a fatal pipeline failure attributed to a stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Warning is a non-fatal diagnostic recorded during a run.
type Warning struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Extractor turns document bytes into raw lines.
type Extractor interface {
	Extract(data []byte) ([]statement.RawLine, error)
}

// Options carries the per-run inputs: taxonomy, historical baseline, and a
// declared starting balance. All optional.
type Options struct {
	Taxonomy        *categorizer.Taxonomy
	Baseline        *anomaly.Baseline
	StartingBalance *decimal.Decimal
	Parser          parser.Config
}

// Result is the run output: the assembled statement plus diagnostics.
type Result struct {
	Statement     statement.ProcessedStatement `json:"statement"`
	Status        Status                       `json:"status"`
	Warnings      []Warning                    `json:"warnings,omitempty"`
	UnparsedLines int                          `json:"unparsed_lines"`
	FallbackCount int                          `json:"fallback_count"`
}

var statementNamespace = uuid.MustParse("c4a8e7d1-2b90-4fd3-a6c5-7e03d9f18b24")

// Runner executes statement pipeline runs. Each run operates on its own
// immutable input, so one Runner is safe for concurrent uploads.
type Runner struct {
	extractor Extractor
	assigner  categorizer.Assigner
	fallback  *categorizer.Engine
	detector  *anomaly.Detector
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// NewRunner creates a Runner with the rule engine and default detector.
func NewRunner(extractor Extractor, logger *slog.Logger) *Runner {
	engine := categorizer.NewEngine()
	return &Runner{
		extractor: extractor,
		assigner:  engine,
		fallback:  engine,
		detector:  anomaly.NewDetector(),
		logger:    logger,
		tracer:    otel.Tracer("statements/pipeline"),
		now:       time.Now,
	}
}

// WithAssigner replaces the primary categorizer, e.g. with an AI-backed
// collaborator. The rule engine stays as the degradation fallback.
func (r *Runner) WithAssigner(assigner categorizer.Assigner) *Runner {
	r.assigner = assigner
	return r
}

// WithDetector replaces the anomaly detector.
func (r *Runner) WithDetector(detector *anomaly.Detector) *Runner {
	r.detector = detector
	return r
}

// WithMetrics attaches prometheus collectors.
func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

// Run processes one uploaded document end to end. The context is honored
// between stages: a canceled run stops at the next stage boundary without
// leaving partial shared state behind.
func (r *Runner) Run(ctx context.Context, data []byte, opts Options) (*Result, error) {
	tax := categorizer.Default()
	if opts.Taxonomy != nil {
		tax = *opts.Taxonomy
	}

	result := &Result{Status: StatusAssembled}

	// Extracting
	lines, err := r.runExtract(ctx, data)
	if err != nil {
		r.countRun("failed")
		return nil, err
	}

	// Parsing
	parsed, err := r.runParse(ctx, lines, opts.Parser)
	if err != nil {
		r.countRun("failed")
		return nil, err
	}
	result.UnparsedLines = parsed.SkippedLines
	for _, w := range parsed.Warnings {
		result.Warnings = append(result.Warnings, Warning{Stage: StageParsing, Message: w})
	}
	if r.metrics != nil {
		r.metrics.TransactionsParsed.Add(float64(len(parsed.Transactions)))
	}

	// Categorizing (degradable)
	txs := r.runCategorize(ctx, parsed.Transactions, tax, result)

	// Aggregating
	if err := ctx.Err(); err != nil {
		r.countRun("failed")
		return nil, &StageError{Stage: StageAggregating, Err: err}
	}
	summary := timedStage(ctx, r, StageAggregating, func(context.Context) aggregate.Summary {
		return aggregate.Summarize(txs, tax, opts.StartingBalance)
	})
	if summary.ReconciliationChecked && !summary.Reconciled {
		result.Warnings = append(result.Warnings, Warning{
			Stage:   StageAggregating,
			Message: "ending balance does not reconcile with starting balance plus net flow",
		})
	} else if !summary.ReconciliationChecked {
		result.Warnings = append(result.Warnings, Warning{
			Stage:   StageAggregating,
			Message: "no starting balance declared; reconciliation check skipped",
		})
	}

	// DetectingAnomalies (degradable)
	anomalies, err := r.runDetect(ctx, txs, opts.Baseline, result)
	if err != nil {
		r.countRun("failed")
		return nil, err
	}

	// Assembled
	result.Statement = statement.ProcessedStatement{
		ID:            statementID(txs),
		Transactions:  txs,
		TotalIncome:   summary.TotalIncome,
		TotalExpenses: summary.TotalExpenses,
		EndingBalance: summary.EndingBalance,
		Categories:    summary.Categories,
		Anomalies:     anomalies,
		Account:       parsed.Account,
		ProcessedAt:   r.now().UTC(),
	}

	if result.Status == StatusAssembled {
		r.countRun("assembled")
	} else {
		r.countRun("partial")
	}
	return result, nil
}

func (r *Runner) runExtract(ctx context.Context, data []byte) ([]statement.RawLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageExtracting, Err: err}
	}
	var lines []statement.RawLine
	var err error
	timedStage(ctx, r, StageExtracting, func(context.Context) struct{} {
		lines, err = r.extractor.Extract(data)
		return struct{}{}
	})
	if err != nil {
		return nil, &StageError{Stage: StageExtracting, Err: err}
	}
	return lines, nil
}

func (r *Runner) runParse(ctx context.Context, lines []statement.RawLine, cfg parser.Config) (*parser.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageParsing, Err: err}
	}
	var parsed *parser.Result
	var err error
	timedStage(ctx, r, StageParsing, func(context.Context) struct{} {
		parsed, err = parser.Parse(lines, cfg)
		return struct{}{}
	})
	if err != nil {
		return nil, &StageError{Stage: StageParsing, Err: err}
	}
	return parsed, nil
}

// runCategorize applies the assigner and attaches categories. A failing
// assigner degrades to the rule engine, then to the bare uncategorized
// fallback; the run continues either way.
func (r *Runner) runCategorize(ctx context.Context, txs []statement.Transaction, tax categorizer.Taxonomy, result *Result) []statement.Transaction {
	assignments := timedStage(ctx, r, StageCategorizing, func(ctx context.Context) []statement.CategoryAssignment {
		a, err := r.assigner.Assign(ctx, txs, tax)
		if err == nil {
			return a
		}

		r.logger.Warn("categorization degraded", "error", err)
		result.Status = StatusPartiallyAssembled
		result.Warnings = append(result.Warnings, Warning{
			Stage:   StageCategorizing,
			Message: fmt.Sprintf("categorization degraded: %v", err),
		})

		if r.fallback != nil && categorizer.Assigner(r.fallback) != r.assigner {
			if a, err := r.fallback.Assign(ctx, txs, tax); err == nil {
				return a
			}
		}
		return nil
	})

	for _, a := range assignments {
		if a.Source == statement.SourceUncategorized {
			result.FallbackCount++
		}
	}
	if len(assignments) == 0 {
		result.FallbackCount = len(txs)
	}
	return categorizer.Apply(txs, assignments)
}

// runDetect runs anomaly detection, degrading to an empty list on panic
// rather than failing the run. Cancellation is still honored at the stage
// boundary.
func (r *Runner) runDetect(ctx context.Context, txs []statement.Transaction, baseline *anomaly.Baseline, result *Result) ([]statement.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageDetectingAnomalies, Err: err}
	}
	if r.detector == nil {
		return nil, nil
	}
	anomalies := timedStage(ctx, r, StageDetectingAnomalies, func(context.Context) []statement.Anomaly {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Warn("anomaly detection degraded", "panic", rec)
				result.Status = StatusPartiallyAssembled
				result.Warnings = append(result.Warnings, Warning{
					Stage:   StageDetectingAnomalies,
					Message: fmt.Sprintf("anomaly detection degraded: %v", rec),
				})
			}
		}()
		return r.detector.Detect(txs, baseline)
	})
	if r.metrics != nil {
		r.metrics.AnomaliesDetected.Add(float64(len(anomalies)))
	}
	return anomalies, nil
}

// timedStage wraps a stage with a trace span and duration metric.
func timedStage[T any](ctx context.Context, r *Runner, stage Stage, fn func(context.Context) T) T {
	ctx, span := r.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	start := r.now()
	out := fn(ctx)
	if r.metrics != nil {
		r.metrics.ObserveStage(string(stage), r.now().Sub(start))
	}
	return out
}

func (r *Runner) countRun(outcome string) {
	if r.metrics != nil {
		r.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	}
}

// statementID derives a stable id from the transaction ids, so identical
// input bytes assemble into an identical statement.
func statementID(txs []statement.Transaction) uuid.UUID {
	joined := make([]byte, 0, len(txs)*36)
	for _, tx := range txs {
		joined = append(joined, tx.ID.String()...)
	}
	return uuid.NewSHA1(statementNamespace, joined)
}
