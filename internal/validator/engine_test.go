package validator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
	"github.com/garyjia/invoice-qc/internal/normalize"
	"github.com/garyjia/invoice-qc/internal/rules"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Policy.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	e, err := NewEngine(opts)
	require.NoError(t, err)
	return e
}

// invoice builds a consistent single-line invoice for total
func invoice(number, date, total string) models.InvoiceRecord {
	return models.InvoiceRecord{
		InvoiceNumber: number,
		InvoiceDate:   date,
		SupplierName:  "Acme Corp",
		SupplierTaxID: "12-3456789",
		BuyerName:     "Globex",
		Currency:      "USD",
		Subtotal:      dec(total),
		TaxAmount:     dec("0.00"),
		TotalAmount:   dec(total),
		LineItems: []models.LineItem{
			{Description: "Services", Quantity: dec("1"), UnitPrice: dec(total), LineTotal: dec(total)},
		},
	}
}

func TestValidateOneValidInvoice(t *testing.T) {
	e := newTestEngine(t)
	rec := invoice("INV-1", "2024-03-15", "1080.00")

	v := e.ValidateOne(&rec, history.New())
	assert.True(t, v.IsValid)
	assert.Empty(t, v.Errors)
	assert.Equal(t, "ACME_CORP_INV1_2024-03-15", v.InvoiceID)
}

func TestValidateOneRecordsInvalidInvoices(t *testing.T) {
	e := newTestEngine(t)
	tracker := history.New()

	rec := invoice("INV-1", "2024-03-15", "100.00")
	rec.Currency = "XYZ"
	v := e.ValidateOne(&rec, tracker)
	assert.False(t, v.IsValid)

	assert.Equal(t, int64(1), tracker.Stats("Acme Corp").N)
	assert.Equal(t, 1, tracker.KeyCount())
}

func TestEvaluateDoesNotMutateTracker(t *testing.T) {
	e := newTestEngine(t)
	tracker := history.New()
	rec := invoice("INV-1", "2024-03-15", "100.00")

	first := e.Evaluate(&rec, tracker)
	second := e.Evaluate(&rec, tracker)
	assert.Equal(t, first, second)
	assert.Equal(t, 0, tracker.KeyCount())
}

func TestValidateOneIdempotentOnSameSnapshot(t *testing.T) {
	e := newTestEngine(t)
	base := history.New()
	for i, total := range []string{"100.00", "110.00", "90.00"} {
		rec := invoice("PRIOR-"+string(rune('A'+i)), "2024-01-10", total)
		e.ValidateOne(&rec, base)
	}
	snap := base.Snapshot()

	fromSnapshot := func() *history.Tracker {
		tr := history.New()
		require.NoError(t, tr.Seed(snap))
		return tr
	}

	rec := invoice("INV-9", "2024-03-15", "105.00")
	a := e.ValidateOne(&rec, fromSnapshot())
	b := e.ValidateOne(&rec, fromSnapshot())
	assert.Equal(t, a, b)
}

func TestValidateBatchDuplicateIsOrderSensitive(t *testing.T) {
	e := newTestEngine(t)

	first := invoice("INV-7", "2024-03-15", "100.00")
	first.InvoiceID = "first"
	second := invoice("inv7", "2024-03-15", "100.00")
	second.InvoiceID = "second"

	report := e.ValidateBatch([]models.InvoiceRecord{first, second})
	require.Len(t, report.Verdicts, 2)
	assert.False(t, report.Verdicts[0].HasCode(models.CodeDuplicateInvoice))
	assert.True(t, report.Verdicts[1].HasCode(models.CodeDuplicateInvoice))
	// warnings never flip validity
	assert.True(t, report.Verdicts[1].IsValid)

	reversed := e.ValidateBatch([]models.InvoiceRecord{second, first})
	assert.Equal(t, "second", reversed.Verdicts[0].InvoiceID)
	assert.False(t, reversed.Verdicts[0].HasCode(models.CodeDuplicateInvoice))
	assert.True(t, reversed.Verdicts[1].HasCode(models.CodeDuplicateInvoice))
}

func TestValidateBatchUnusualAmount(t *testing.T) {
	e := newTestEngine(t)

	var records []models.InvoiceRecord
	for i, total := range []string{"950.00", "1050.00", "950.00", "1050.00", "1000.00", "1000.00"} {
		records = append(records, invoice("H-"+string(rune('A'+i)), "2024-02-01", total))
	}
	records = append(records, invoice("H-X", "2024-02-02", "1500.00"))

	report := e.ValidateBatch(records)
	assert.Equal(t, 7, report.Total)
	assert.Equal(t, 7, report.Valid)
	assert.Equal(t, 0, report.Invalid)

	last := report.Verdicts[6]
	require.Equal(t, 1, len(last.Errors))
	assert.Equal(t, models.CodeUnusualAmount, last.Errors[0].Code)
	assert.Equal(t, models.SeverityWarning, last.Errors[0].Severity)
	assert.True(t, last.IsValid)

	for _, v := range report.Verdicts[:6] {
		assert.Empty(t, v.Errors)
	}
}

func TestValidateBatchUsesFreshTracker(t *testing.T) {
	e := newTestEngine(t)
	rec := invoice("INV-1", "2024-03-15", "100.00")

	first := e.ValidateBatch([]models.InvoiceRecord{rec})
	second := e.ValidateBatch([]models.InvoiceRecord{rec})
	assert.Equal(t, first, second)
	assert.Equal(t, 1, second.Valid)
}

func TestValidateBatchWithSeededTracker(t *testing.T) {
	e := newTestEngine(t)
	rec := invoice("INV-1", "2024-03-15", "100.00")

	prior := history.New()
	prior.Record(&rec)

	report := e.ValidateBatchWithTracker([]models.InvoiceRecord{rec}, prior)
	assert.True(t, report.Verdicts[0].HasCode(models.CodeDuplicateInvoice))
	assert.Equal(t, int64(2), prior.Stats("Acme Corp").N)
}

func TestValidateBatchEmpty(t *testing.T) {
	report := newTestEngine(t).ValidateBatch(nil)
	assert.Equal(t, 0, report.Total)
	assert.NotNil(t, report.Verdicts)
	assert.NotNil(t, report.TopErrorCodes)
}

func TestNewEngineOptions(t *testing.T) {
	t.Run("unknown disabled rule", func(t *testing.T) {
		opts := DefaultOptions()
		opts.DisabledRules = []string{"format.nope"}
		_, err := NewEngine(opts)
		require.ErrorIs(t, err, rules.ErrUnknownRule)
	})

	t.Run("disabled rule skipped", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Policy.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
		opts.DisabledRules = []string{"format.currency"}
		e, err := NewEngine(opts)
		require.NoError(t, err)
		assert.False(t, e.Registry().Enabled("format.currency"))

		rec := invoice("INV-1", "2024-03-15", "100.00")
		rec.Currency = "XYZ"
		assert.True(t, e.Evaluate(&rec, history.New()).IsValid)
	})

	t.Run("nil registry", func(t *testing.T) {
		_, err := NewEngineWithRegistry(nil, DefaultOptions())
		require.Error(t, err)
	})
}

func TestOutOfRangeTotalLeavesHistoryUsable(t *testing.T) {
	e := newTestEngine(t)
	tracker := history.New()

	huge, err := normalize.DecodeRecord([]byte(`{
		"invoice_number": "INV-HUGE", "invoice_date": "2024-03-01",
		"supplier_name": "Acme Corp", "supplier_tax_id": "12-3456789",
		"buyer_name": "Globex", "total_amount": 1e400, "line_items": []
	}`))
	require.NoError(t, err)

	v := e.ValidateOne(&huge, tracker)
	assert.False(t, v.IsValid)
	assert.True(t, v.HasCode(models.CodeAmountFormatInvalid))
	assert.Equal(t, int64(0), tracker.Stats("Acme Corp").N)

	for i := 0; i < 6; i++ {
		rec := invoice("INV-"+string(rune('A'+i)), "2024-03-15", "1000.00")
		e.ValidateOne(&rec, tracker)
	}
	rec := invoice("INV-NEXT", "2024-03-20", "1000.00")
	v = e.ValidateOne(&rec, tracker)
	assert.True(t, v.IsValid)
	assert.False(t, v.HasCode(models.CodeUnusualAmount))

	require.NoError(t, history.New().Seed(tracker.Snapshot()))
}
