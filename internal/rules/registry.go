// Package rules holds the ordered table of invoice checks. Each rule is a
// pure function of one record and the current history tracker.
package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
)

var (
	// ErrDuplicateRule is returned when registering a name twice
	ErrDuplicateRule = errors.New("rule already registered")
	// ErrUnknownRule is returned when disabling a name that is not registered
	ErrUnknownRule = errors.New("unknown rule")
)

// CheckFunc evaluates one rule. tracker may be nil for stateless rules.
type CheckFunc func(rec *models.InvoiceRecord, tracker *history.Tracker) []models.ErrorToken

// Rule is one registered check
type Rule struct {
	Name     string
	Category models.Category
	// RequiresComplete rules only run when every required field is present;
	// otherwise they are not evaluable and emit nothing.
	RequiresComplete bool
	Check            CheckFunc
}

// Policy carries the thresholds the default rules are built with
type Policy struct {
	// Now supplies the evaluation date. Only the UTC calendar date is used.
	Now                   func() time.Time
	Tolerance             decimal.Decimal // relative, e.g. 0.005 for 0.5%
	MaxQuantity           decimal.Decimal // exclusive upper bound
	MaxAgeYears           int
	FutureGraceDays       int
	DuplicateWindowMonths int
	MinAnomalySamples     int64
	AnomalySigma          float64
}

// DefaultPolicy returns the standard thresholds
func DefaultPolicy() Policy {
	return Policy{
		Now:                   time.Now,
		Tolerance:             decimal.RequireFromString("0.005"),
		MaxQuantity:           decimal.NewFromInt(1_000_000),
		MaxAgeYears:           5,
		FutureGraceDays:       7,
		DuplicateWindowMonths: 12,
		MinAnomalySamples:     5,
		AnomalySigma:          3,
	}
}

// today returns the evaluation date at UTC midnight
func (p Policy) today() time.Time {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	y, m, d := now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RetentionCutoff is the oldest last-seen date a duplicate key can still
// matter for: an invoice older than MaxAgeYears is rejected before the
// duplicate window is consulted.
func (p Policy) RetentionCutoff() time.Time {
	return p.today().AddDate(-p.MaxAgeYears, -p.DuplicateWindowMonths, 0)
}

// Registry is an ordered rule table with per-deployment disabling
type Registry struct {
	rules    []Rule
	index    map[string]int
	disabled map[string]bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		index:    make(map[string]int),
		disabled: make(map[string]bool),
	}
}

// Default builds the standard registry in evaluation order: completeness,
// format, business, sanity, anomaly.
func Default(p Policy) *Registry {
	r := NewRegistry()
	for _, rule := range [][]Rule{
		completenessRules(),
		formatRules(),
		reconciliationRules(p),
		sanityRules(p),
		anomalyRules(p),
	} {
		for _, rl := range rule {
			if err := r.Register(rl); err != nil {
				panic(err)
			}
		}
	}
	return r
}

// Register appends a rule to the table
func (r *Registry) Register(rule Rule) error {
	if _, exists := r.index[rule.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Name)
	}
	if rule.Check == nil {
		return fmt.Errorf("rule %s has no check function", rule.Name)
	}
	r.index[rule.Name] = len(r.rules)
	r.rules = append(r.rules, rule)
	return nil
}

// Disable turns off rules by name. Nothing is changed if any name is unknown.
func (r *Registry) Disable(names ...string) error {
	for _, n := range names {
		if _, ok := r.index[n]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRule, n)
		}
	}
	for _, n := range names {
		r.disabled[n] = true
	}
	return nil
}

// Enabled reports whether a registered rule will run
func (r *Registry) Enabled(name string) bool {
	_, ok := r.index[name]
	return ok && !r.disabled[name]
}

// Names returns all registered rule names in evaluation order
func (r *Registry) Names() []string {
	names := make([]string, len(r.rules))
	for i, rl := range r.rules {
		names[i] = rl.Name
	}
	return names
}

// Evaluate runs every enabled rule in order and concatenates their tokens
func (r *Registry) Evaluate(rec *models.InvoiceRecord, tracker *history.Tracker) []models.ErrorToken {
	complete := rec.HasRequiredFields()
	tokens := []models.ErrorToken{}
	for _, rl := range r.rules {
		if r.disabled[rl.Name] {
			continue
		}
		if rl.RequiresComplete && !complete {
			continue
		}
		tokens = append(tokens, rl.Check(rec, tracker)...)
	}
	return tokens
}

func errorToken(code string, cat models.Category, field, format string, args ...any) models.ErrorToken {
	return models.ErrorToken{
		Code:     code,
		Category: cat,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Severity: models.SeverityError,
	}
}

func warningToken(code, field, format string, args ...any) models.ErrorToken {
	return models.ErrorToken{
		Code:     code,
		Category: models.CategoryAnomaly,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Severity: models.SeverityWarning,
	}
}
