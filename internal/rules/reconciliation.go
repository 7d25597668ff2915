package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
)

func reconciliationRules(p Policy) []Rule {
	return []Rule{
		{Name: "business.date_order", Category: models.CategoryBusiness, RequiresComplete: true, Check: checkDateOrder},
		{Name: "business.amount_reconciliation", Category: models.CategoryBusiness, RequiresComplete: true, Check: amountReconciliation(p.Tolerance)},
		{Name: "business.line_item_sum", Category: models.CategoryBusiness, RequiresComplete: true, Check: lineItemSum(p.Tolerance)},
	}
}

// ExceedsTolerance reports whether |actual - expected| is strictly greater
// than tolerance x |reference|.
func ExceedsTolerance(actual, expected, reference, tolerance decimal.Decimal) bool {
	diff := actual.Sub(expected).Abs()
	return diff.GreaterThan(reference.Abs().Mul(tolerance))
}

func checkDateOrder(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	invoiceDate, ok := rec.ParsedInvoiceDate()
	if !ok {
		return nil
	}
	dueDate, ok := rec.ParsedDueDate()
	if !ok {
		return nil
	}
	if dueDate.Before(invoiceDate) {
		return []models.ErrorToken{errorToken(models.CodeDateOrderInvalid, models.CategoryBusiness, "due_date",
			"due date %s is before invoice date %s", rec.DueDate, rec.InvoiceDate)}
	}
	return nil
}

// amountReconciliation checks total = subtotal + tax within a relative
// tolerance of the total. Skipped when subtotal or tax is absent.
func amountReconciliation(tolerance decimal.Decimal) CheckFunc {
	return func(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
		if rec.Subtotal == nil || rec.TaxAmount == nil || rec.TotalAmount == nil {
			return nil
		}
		expected := rec.Subtotal.Add(*rec.TaxAmount)
		if !ExceedsTolerance(*rec.TotalAmount, expected, *rec.TotalAmount, tolerance) {
			return nil
		}
		return []models.ErrorToken{errorToken(models.CodeAmountMismatch, models.CategoryBusiness, "total_amount",
			"total_amount %s differs from subtotal + tax_amount %s by more than %s%%",
			rec.TotalAmount.StringFixed(2), expected.StringFixed(2), percent(tolerance))}
	}
}

// lineItemSum checks subtotal = sum of complete line totals. Incomplete line
// items are already reported by completeness and are left out of the sum.
func lineItemSum(tolerance decimal.Decimal) CheckFunc {
	return func(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
		if rec.Subtotal == nil {
			return nil
		}
		sum := decimal.Zero
		counted, excluded := 0, 0
		for _, li := range rec.LineItems {
			if !li.IsComplete() {
				excluded++
				continue
			}
			sum = sum.Add(*li.LineTotal)
			counted++
		}
		if counted == 0 {
			return nil
		}
		if !ExceedsTolerance(*rec.Subtotal, sum, *rec.Subtotal, tolerance) {
			return nil
		}
		tok := errorToken(models.CodeLineItemSumMismatch, models.CategoryBusiness, "subtotal",
			"subtotal %s differs from the sum of %d line totals %s by more than %s%%",
			rec.Subtotal.StringFixed(2), counted, sum.StringFixed(2), percent(tolerance))
		if excluded > 0 {
			tok.Message += fmt.Sprintf(" (%d incomplete line items excluded)", excluded)
		}
		return []models.ErrorToken{tok}
	}
}

func percent(tolerance decimal.Decimal) string {
	return tolerance.Mul(decimal.NewFromInt(100)).String()
}
