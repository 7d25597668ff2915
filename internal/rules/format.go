package rules

import (
	"regexp"
	"strings"

	"github.com/Rhymond/go-money"

	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
)

// maxAmountPlaces is the number of fractional digits a monetary value may carry
const maxAmountPlaces = 2

var (
	taxIDPattern    = regexp.MustCompile(`^\d+(-\d+)*$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

func formatRules() []Rule {
	return []Rule{
		{Name: "format.dates", Category: models.CategoryFormat, Check: checkDateFormats},
		{Name: "format.amount_values", Category: models.CategoryFormat, Check: checkAmountValues},
		{Name: "format.amount_precision", Category: models.CategoryFormat, Check: checkAmountPrecision},
		{Name: "format.currency", Category: models.CategoryFormat, Check: checkCurrency},
		{Name: "format.tax_ids", Category: models.CategoryFormat, Check: checkTaxIDs},
	}
}

func checkDateFormats(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	var out []models.ErrorToken
	for _, f := range []struct {
		field string
		value string
	}{
		{"invoice_date", rec.InvoiceDate},
		{"due_date", rec.DueDate},
	} {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		if _, ok := models.ParseDate(f.value); !ok {
			out = append(out, errorToken(models.CodeDateFormatInvalid, models.CategoryFormat, f.field,
				"%s %q is not a valid YYYY-MM-DD date", f.field, f.value))
		}
	}
	return out
}

func checkAmountValues(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	var out []models.ErrorToken
	for _, f := range rec.CoercionFailures {
		out = append(out, errorToken(models.CodeAmountFormatInvalid, models.CategoryFormat, f.Field,
			"%s %q is not a number", f.Field, f.Raw))
	}
	return out
}

// checkAmountPrecision flags values written with more fractional digits
// than cents, trailing zeros included. The value is never rounded.
func checkAmountPrecision(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	var out []models.ErrorToken
	for _, f := range rec.MonetaryFields() {
		if exp := f.Value.Exponent(); exp < -maxAmountPlaces {
			out = append(out, errorToken(models.CodeAmountPrecision, models.CategoryFormat, f.Field,
				"%s %s has more than %d decimal places", f.Field, f.Value.StringFixed(-exp), maxAmountPlaces))
		}
	}
	return out
}

func checkCurrency(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	if !IsCurrencyCode(rec.Currency) {
		return []models.ErrorToken{errorToken(models.CodeCurrencyInvalid, models.CategoryFormat, "currency",
			"currency %q is not a recognized ISO 4217 code", rec.Currency)}
	}
	return nil
}

// IsCurrencyCode reports whether code is a recognized ISO 4217 alphabetic code
func IsCurrencyCode(code string) bool {
	return currencyPattern.MatchString(code) && money.GetCurrency(code) != nil
}

func checkTaxIDs(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	var out []models.ErrorToken
	for _, f := range []struct {
		field string
		value string
	}{
		{"supplier_tax_id", rec.SupplierTaxID},
		{"buyer_tax_id", rec.BuyerTaxID},
	} {
		v := strings.TrimSpace(f.value)
		if v == "" {
			continue
		}
		if !taxIDPattern.MatchString(v) {
			out = append(out, errorToken(models.CodeTaxIDFormatInvalid, models.CategoryFormat, f.field,
				"%s %q must contain digits with optional hyphens", f.field, v))
		}
	}
	return out
}
