package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// DateLayout is the only accepted invoice date format (ISO-8601 calendar date)
const DateLayout = "2006-01-02"

// DefaultCurrency applies when the currency field is entirely absent
const DefaultCurrency = "USD"

// InvoiceRecord is the canonical, typed invoice the rule registry evaluates
type InvoiceRecord struct {
	InvoiceID       string           `json:"invoice_id"`
	InvoiceNumber   string           `json:"invoice_number"`
	InvoiceDate     string           `json:"invoice_date"`
	DueDate         string           `json:"due_date,omitempty"`
	SupplierName    string           `json:"supplier_name"`
	SupplierAddress string           `json:"supplier_address,omitempty"`
	SupplierTaxID   string           `json:"supplier_tax_id,omitempty"`
	BuyerName       string           `json:"buyer_name"`
	BuyerAddress    string           `json:"buyer_address,omitempty"`
	BuyerTaxID      string           `json:"buyer_tax_id,omitempty"`
	Currency        string           `json:"currency"`
	Subtotal        *decimal.Decimal `json:"subtotal,omitempty"`
	TaxAmount       *decimal.Decimal `json:"tax_amount,omitempty"`
	TotalAmount     *decimal.Decimal `json:"total_amount,omitempty"`
	PaymentTerms    string           `json:"payment_terms,omitempty"`
	LineItems       []LineItem       `json:"line_items"`

	// CoercionFailures lists fields whose raw value was present but could not
	// be coerced into its typed form. Such fields are nil above.
	CoercionFailures []CoercionFailure `json:"-"`
}

// LineItem is one row of an invoice
type LineItem struct {
	ItemCode    string           `json:"item_code,omitempty"`
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	LineTotal   *decimal.Decimal `json:"line_total,omitempty"`
}

// CoercionFailure records a present-but-unusable raw value
type CoercionFailure struct {
	Field string // dotted path, e.g. line_items[2].quantity
	Raw   string
}

// IsComplete reports whether all required line item sub-fields are present
func (li LineItem) IsComplete() bool {
	return strings.TrimSpace(li.Description) != "" &&
		li.Quantity != nil && li.UnitPrice != nil && li.LineTotal != nil
}

// HasCoercionFailure reports whether field had an unusable raw value
func (r *InvoiceRecord) HasCoercionFailure(field string) bool {
	for _, f := range r.CoercionFailures {
		if f.Field == field {
			return true
		}
	}
	return false
}

// ParsedInvoiceDate returns the invoice date when it is a valid ISO date
func (r *InvoiceRecord) ParsedInvoiceDate() (time.Time, bool) {
	return ParseDate(r.InvoiceDate)
}

// ParsedDueDate returns the due date when it is a valid ISO date
func (r *InvoiceRecord) ParsedDueDate() (time.Time, bool) {
	return ParseDate(r.DueDate)
}

// HasRequiredFields reports whether every field needed by business and
// anomaly checks is present and usable.
func (r *InvoiceRecord) HasRequiredFields() bool {
	if strings.TrimSpace(r.InvoiceNumber) == "" ||
		strings.TrimSpace(r.SupplierName) == "" ||
		strings.TrimSpace(r.BuyerName) == "" ||
		r.TotalAmount == nil ||
		len(r.LineItems) == 0 {
		return false
	}
	_, ok := r.ParsedInvoiceDate()
	return ok
}

// MonetaryFields returns every present monetary value keyed by field path,
// in a stable order.
func (r *InvoiceRecord) MonetaryFields() []FieldAmount {
	var out []FieldAmount
	add := func(field string, v *decimal.Decimal) {
		if v != nil {
			out = append(out, FieldAmount{Field: field, Value: *v})
		}
	}
	add("subtotal", r.Subtotal)
	add("tax_amount", r.TaxAmount)
	add("total_amount", r.TotalAmount)
	for i, li := range r.LineItems {
		add(LineItemField(i, "unit_price"), li.UnitPrice)
		add(LineItemField(i, "line_total"), li.LineTotal)
	}
	return out
}

// FieldAmount pairs a monetary value with its field path
type FieldAmount struct {
	Field string
	Value decimal.Decimal
}

// ResolveID returns the invoice_id, deriving it from supplier, number and
// date when absent.
func (r *InvoiceRecord) ResolveID() string {
	if id := strings.TrimSpace(r.InvoiceID); id != "" {
		return id
	}
	return DeriveInvoiceID(r.SupplierName, r.InvoiceNumber, r.InvoiceDate)
}

// DeriveInvoiceID builds the fallback identity key
// NORMALIZE(supplier)_NORMALIZE(number)_date.
func DeriveInvoiceID(supplierName, invoiceNumber, invoiceDate string) string {
	return NormalizeKey(supplierName) + "_" + NormalizeKey(invoiceNumber) + "_" + strings.TrimSpace(invoiceDate)
}

// NormalizeKey uppercases s, maps internal whitespace runs to a single
// underscore and strips everything else that is not a letter or digit.
func NormalizeKey(s string) string {
	words := strings.Fields(strings.ToUpper(s))
	parts := make([]string, 0, len(words))
	for _, w := range words {
		kept := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, w)
		if kept != "" {
			parts = append(parts, kept)
		}
	}
	return strings.Join(parts, "_")
}

// ParseDate parses a strict YYYY-MM-DD date, rejecting calendrically invalid
// values such as 2024-02-30.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) != len(DateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// LineItemField returns the dotted path of a line item sub-field
func LineItemField(index int, field string) string {
	return fmt.Sprintf("line_items[%d].%s", index, field)
}
