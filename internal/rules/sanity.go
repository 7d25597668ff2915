package rules

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
)

func sanityRules(p Policy) []Rule {
	return []Rule{
		{Name: "sanity.negative_amounts", Category: models.CategorySanity, Check: checkNegativeAmounts},
		{Name: "sanity.quantity_range", Category: models.CategorySanity, Check: quantityRange(p.MaxQuantity)},
		{Name: "sanity.invoice_date_range", Category: models.CategorySanity, Check: invoiceDateRange(p)},
	}
}

func checkNegativeAmounts(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	var out []models.ErrorToken
	for _, f := range rec.MonetaryFields() {
		if f.Value.IsNegative() {
			out = append(out, errorToken(models.CodeNegativeAmount, models.CategorySanity, f.Field,
				"%s is negative (%s)", f.Field, f.Value.String()))
		}
	}
	return out
}

func quantityRange(limit decimal.Decimal) CheckFunc {
	return func(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
		var out []models.ErrorToken
		for i, li := range rec.LineItems {
			if li.Quantity == nil {
				continue
			}
			q := *li.Quantity
			if !q.IsPositive() || q.GreaterThanOrEqual(limit) {
				out = append(out, errorToken(models.CodeQuantityOutOfRange, models.CategorySanity,
					models.LineItemField(i, "quantity"),
					"quantity %s must be greater than 0 and less than %s", q.String(), limit.String()))
			}
		}
		return out
	}
}

// invoiceDateRange rejects invoice dates older than MaxAgeYears or later than
// the evaluation date.
func invoiceDateRange(p Policy) CheckFunc {
	return func(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
		date, ok := rec.ParsedInvoiceDate()
		if !ok {
			return nil
		}
		today := p.today()
		earliest := today.AddDate(-p.MaxAgeYears, 0, 0)
		switch {
		case date.Before(earliest):
			return []models.ErrorToken{errorToken(models.CodeDateOutOfRange, models.CategorySanity, "invoice_date",
				"invoice date %s is more than %d years before %s", rec.InvoiceDate, p.MaxAgeYears, today.Format(models.DateLayout))}
		case date.After(today):
			return []models.ErrorToken{errorToken(models.CodeDateOutOfRange, models.CategorySanity, "invoice_date",
				"invoice date %s is after the evaluation date %s", rec.InvoiceDate, today.Format(models.DateLayout))}
		}
		return nil
	}
}
