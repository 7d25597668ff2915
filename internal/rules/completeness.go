package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-qc/internal/history"
	"github.com/garyjia/invoice-qc/internal/models"
)

func completenessRules() []Rule {
	return []Rule{
		{Name: "completeness.required_fields", Category: models.CategoryCompleteness, Check: checkRequiredFields},
		{Name: "completeness.line_items", Category: models.CategoryCompleteness, Check: checkLineItemsPresent},
		{Name: "completeness.line_item_fields", Category: models.CategoryCompleteness, Check: checkLineItemFields},
	}
}

func checkRequiredFields(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	var out []models.ErrorToken
	for _, f := range []struct {
		field string
		value string
	}{
		{"invoice_number", rec.InvoiceNumber},
		{"invoice_date", rec.InvoiceDate},
		{"supplier_name", rec.SupplierName},
		{"buyer_name", rec.BuyerName},
	} {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, missingField(f.field))
		}
	}
	// A present but unparseable total is a format problem, not a missing one
	if rec.TotalAmount == nil && !rec.HasCoercionFailure("total_amount") {
		out = append(out, missingField("total_amount"))
	}
	return out
}

func checkLineItemsPresent(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	if len(rec.LineItems) == 0 {
		return []models.ErrorToken{errorToken(models.CodeNoLineItems, models.CategoryCompleteness,
			"line_items", "invoice has no line items")}
	}
	return nil
}

func checkLineItemFields(rec *models.InvoiceRecord, _ *history.Tracker) []models.ErrorToken {
	var out []models.ErrorToken
	for i, li := range rec.LineItems {
		if strings.TrimSpace(li.Description) == "" {
			out = append(out, incompleteItem(i, "description"))
		}
		for _, f := range []struct {
			name  string
			value *decimal.Decimal
		}{
			{"quantity", li.Quantity},
			{"unit_price", li.UnitPrice},
			{"line_total", li.LineTotal},
		} {
			path := models.LineItemField(i, f.name)
			if f.value == nil && !rec.HasCoercionFailure(path) {
				out = append(out, incompleteItem(i, f.name))
			}
		}
	}
	return out
}

func missingField(field string) models.ErrorToken {
	return errorToken(models.CodeMissingField, models.CategoryCompleteness, field,
		"required field %s is missing or empty", field)
}

func incompleteItem(index int, field string) models.ErrorToken {
	return errorToken(models.CodeLineItemIncomplete, models.CategoryCompleteness,
		models.LineItemField(index, field),
		"line item %d is missing %s and is excluded from reconciliation", index, field)
}
