// Package normalize converts loosely-typed extractor output into canonical
// invoice records. It never rejects a record for bad values: unusable values
// are recorded as coercion failures and surface later as format tokens. Only
// input whose shape cannot be interpreted at all fails with InputDecodeError.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-qc/internal/models"
)

// RawRecord is one decoded JSON object as produced by an extraction step
type RawRecord map[string]any

// aliases maps canonical keys to extractor spellings, in lookup order after
// the canonical key itself
var aliases = map[string][]string{
	"supplier_name":    {"seller_name", "seller"},
	"supplier_tax_id":  {"seller_tax_id"},
	"supplier_address": {"seller_address"},
	"buyer_name":       {"buyer"},
	"subtotal":         {"net_total", "net"},
	"tax_amount":       {"tax"},
	"total_amount":     {"gross_total", "amount_due"},
}

var lineItemAliases = map[string][]string{
	"description": {"name"},
	"line_total":  {"amount"},
}

// groupedNumber matches amounts written with comma thousands separators
var groupedNumber = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// Normalize converts raw into an InvoiceRecord
func Normalize(raw RawRecord) (models.InvoiceRecord, error) {
	var rec models.InvoiceRecord
	n := &normalizer{raw: raw, rec: &rec}

	rec.InvoiceID = n.str("invoice_id")
	rec.InvoiceNumber = n.str("invoice_number")
	rec.InvoiceDate = n.str("invoice_date")
	rec.DueDate = n.str("due_date")
	rec.SupplierName = n.str("supplier_name")
	rec.SupplierAddress = n.str("supplier_address")
	rec.SupplierTaxID = n.str("supplier_tax_id")
	rec.BuyerName = n.str("buyer_name")
	rec.BuyerAddress = n.str("buyer_address")
	rec.BuyerTaxID = n.str("buyer_tax_id")
	rec.PaymentTerms = n.str("payment_terms")

	if _, present := n.lookup("currency"); present {
		rec.Currency = strings.ToUpper(n.str("currency"))
	} else {
		rec.Currency = models.DefaultCurrency
	}

	rec.Subtotal = n.amount("subtotal", "subtotal")
	rec.TaxAmount = n.amount("tax_amount", "tax_amount")
	rec.TotalAmount = n.amount("total_amount", "total_amount")

	if err := n.lineItems(); err != nil {
		return models.InvoiceRecord{}, err
	}
	if n.err != nil {
		return models.InvoiceRecord{}, n.err
	}
	return rec, nil
}

type normalizer struct {
	raw RawRecord
	rec *models.InvoiceRecord
	err error
}

// lookup returns the first non-null value for key or one of its aliases
func (n *normalizer) lookup(key string) (any, bool) {
	return lookupIn(n.raw, key, aliases[key])
}

func lookupIn(raw map[string]any, key string, alts []string) (any, bool) {
	for _, k := range append([]string{key}, alts...) {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (n *normalizer) str(key string) string {
	v, ok := n.lookup(key)
	if !ok {
		return ""
	}
	s, err := toString(v)
	if err != nil && n.err == nil {
		n.err = &InputDecodeError{Index: -1, Field: key, Err: err}
	}
	return s
}

func (n *normalizer) amount(key, field string) *decimal.Decimal {
	v, ok := n.lookup(key)
	if !ok {
		return nil
	}
	return n.coerceDecimal(v, field)
}

func (n *normalizer) coerceDecimal(v any, field string) *decimal.Decimal {
	d, raw, ok := toDecimal(v)
	if !ok {
		if raw == "" {
			return nil
		}
		n.rec.CoercionFailures = append(n.rec.CoercionFailures, models.CoercionFailure{Field: field, Raw: raw})
		return nil
	}
	return &d
}

func (n *normalizer) lineItems() error {
	v, ok := n.raw["line_items"]
	if !ok || v == nil {
		n.rec.LineItems = []models.LineItem{}
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return &InputDecodeError{Index: -1, Field: "line_items", Err: fmt.Errorf("expected array, got %T", v)}
	}

	items := make([]models.LineItem, 0, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			return &InputDecodeError{Index: -1, Field: fmt.Sprintf("line_items[%d]", i), Err: fmt.Errorf("expected object, got %T", entry)}
		}

		var li models.LineItem
		var err error
		if li.ItemCode, err = fieldString(obj, "item_code", nil); err != nil {
			return &InputDecodeError{Index: -1, Field: models.LineItemField(i, "item_code"), Err: err}
		}
		if li.Description, err = fieldString(obj, "description", lineItemAliases["description"]); err != nil {
			return &InputDecodeError{Index: -1, Field: models.LineItemField(i, "description"), Err: err}
		}
		for _, f := range []struct {
			key string
			dst **decimal.Decimal
		}{
			{"quantity", &li.Quantity},
			{"unit_price", &li.UnitPrice},
			{"line_total", &li.LineTotal},
		} {
			if raw, ok := lookupIn(obj, f.key, lineItemAliases[f.key]); ok {
				*f.dst = n.coerceDecimal(raw, models.LineItemField(i, f.key))
			}
		}
		items = append(items, li)
	}
	n.rec.LineItems = items
	return nil
}

func fieldString(obj map[string]any, key string, alts []string) (string, error) {
	v, ok := lookupIn(obj, key, alts)
	if !ok {
		return "", nil
	}
	return toString(v)
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("expected scalar, got %T", v)
	}
}

// toDecimal coerces a raw value. raw is the textual form, empty when the
// value is blank and should be treated as absent.
func toDecimal(v any) (d decimal.Decimal, raw string, ok bool) {
	switch t := v.(type) {
	case json.Number:
		raw = t.String()
	case string:
		raw = strings.TrimSpace(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Decimal{}, fmt.Sprint(t), false
		}
		return decimal.NewFromFloat(t), strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return decimal.NewFromInt(int64(t)), strconv.Itoa(t), true
	case int64:
		return decimal.NewFromInt(t), strconv.FormatInt(t, 10), true
	default:
		return decimal.Decimal{}, fmt.Sprint(v), false
	}

	if raw == "" {
		return decimal.Decimal{}, "", false
	}
	text := strings.ReplaceAll(raw, " ", "")
	if strings.Contains(text, ",") {
		if !groupedNumber.MatchString(text) {
			return decimal.Decimal{}, raw, false
		}
		text = strings.ReplaceAll(text, ",", "")
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, raw, false
	}
	// running statistics are kept in float64
	if f := d.InexactFloat64(); math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Decimal{}, raw, false
	}
	return d, raw, true
}
