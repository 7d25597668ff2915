// Package validator drives invoices through the rule registry and folds
// batches through a history tracker.
package validator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
	"github.com/garyjia/invoice-qc/internal/rules"
)

// DefaultTopErrorCodes is how many codes a batch summary lists by default
const DefaultTopErrorCodes = 3

// Options configures an Engine
type Options struct {
	Policy        rules.Policy
	DisabledRules []string
	TopErrorCodes int
	Logger        *zap.Logger
}

// DefaultOptions returns options with the default policy
func DefaultOptions() Options {
	return Options{
		Policy:        rules.DefaultPolicy(),
		TopErrorCodes: DefaultTopErrorCodes,
	}
}

// Engine evaluates invoices. It holds no per-run state and may be shared by
// concurrent runs as long as each run has its own Tracker.
type Engine struct {
	registry *rules.Registry
	topN     int
	logger   *zap.Logger
}

// NewEngine builds an engine with the default rule table
func NewEngine(opts Options) (*Engine, error) {
	return NewEngineWithRegistry(rules.Default(opts.Policy), opts)
}

// NewEngineWithRegistry builds an engine over a caller-supplied rule table
func NewEngineWithRegistry(registry *rules.Registry, opts Options) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("rule registry is required")
	}
	if err := registry.Disable(opts.DisabledRules...); err != nil {
		return nil, fmt.Errorf("failed to disable rules: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	topN := opts.TopErrorCodes
	if topN <= 0 {
		topN = DefaultTopErrorCodes
	}
	return &Engine{registry: registry, topN: topN, logger: logger}, nil
}

// Registry exposes the engine's rule table
func (e *Engine) Registry() *rules.Registry {
	return e.registry
}

// Evaluate produces the verdict for rec against the tracker's current state
// without changing it.
func (e *Engine) Evaluate(rec *models.InvoiceRecord, tracker *history.Tracker) models.ValidationVerdict {
	tokens := e.registry.Evaluate(rec, tracker)
	return models.NewVerdict(rec.ResolveID(), tokens)
}

// ValidateOne evaluates rec and then records it in tracker, so later
// invoices in the run are checked against it. The tracker is updated even
// when rec is invalid.
func (e *Engine) ValidateOne(rec *models.InvoiceRecord, tracker *history.Tracker) models.ValidationVerdict {
	verdict := e.Evaluate(rec, tracker)
	if tracker != nil {
		tracker.Record(rec)
	}

	e.logger.Debug("Invoice validated",
		zap.String("invoice_id", verdict.InvoiceID),
		zap.Bool("is_valid", verdict.IsValid),
		zap.Int("token_count", len(verdict.Errors)))

	return verdict
}

// ValidateBatch validates records in order with a fresh tracker
func (e *Engine) ValidateBatch(records []models.InvoiceRecord) models.BatchReport {
	return e.ValidateBatchWithTracker(records, history.New())
}

// ValidateBatchWithTracker folds records, in input order, through a
// caller-owned tracker (for example one seeded from a store).
func (e *Engine) ValidateBatchWithTracker(records []models.InvoiceRecord, tracker *history.Tracker) models.BatchReport {
	if tracker == nil {
		tracker = history.New()
	}
	verdicts := make([]models.ValidationVerdict, 0, len(records))
	for i := range records {
		verdicts = append(verdicts, e.ValidateOne(&records[i], tracker))
	}

	report := Summarize(verdicts, e.topN)

	e.logger.Info("Batch validated",
		zap.Int("total", report.Total),
		zap.Int("valid", report.Valid),
		zap.Int("invalid", report.Invalid))

	return report
}
