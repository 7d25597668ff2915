package normalize

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-qc/internal/models"
)

const sampleInvoice = `{
  "invoice_number": "INV-2024-001234",
  "invoice_date": "2024-03-15",
  "due_date": "2024-04-14",
  "supplier_name": "Acme Corp",
  "supplier_tax_id": "12-3456789",
  "buyer_name": "Globex",
  "currency": "eur",
  "subtotal": "1,000.00",
  "tax_amount": 80.00,
  "total_amount": "1080.00",
  "line_items": [
    {"description": "Widget", "quantity": 10, "unit_price": "100.00", "line_total": "1000.00"}
  ]
}`

func TestDecodeRecord(t *testing.T) {
	rec, err := DecodeRecord([]byte(sampleInvoice))
	require.NoError(t, err)

	assert.Equal(t, "INV-2024-001234", rec.InvoiceNumber)
	assert.Equal(t, "2024-03-15", rec.InvoiceDate)
	assert.Equal(t, "Acme Corp", rec.SupplierName)
	assert.Equal(t, "EUR", rec.Currency)
	require.NotNil(t, rec.Subtotal)
	assert.Equal(t, "1000", rec.Subtotal.String())
	require.NotNil(t, rec.TaxAmount)
	// decimal text survives decoding
	assert.Equal(t, "80", rec.TaxAmount.String())
	assert.Equal(t, int32(-2), rec.TaxAmount.Exponent())
	require.Len(t, rec.LineItems, 1)
	assert.True(t, rec.LineItems[0].IsComplete())
	assert.Empty(t, rec.CoercionFailures)
	assert.Equal(t, "ACME_CORP_INV2024001234_2024-03-15", rec.ResolveID())
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		name string
		raw  RawRecord
		want string
	}{
		{"absent defaults", RawRecord{}, "USD"},
		{"null defaults", RawRecord{"currency": nil}, "USD"},
		{"uppercased", RawRecord{"currency": " gbp "}, "GBP"},
		{"blank stays blank", RawRecord{"currency": ""}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Currency)
		})
	}
}

func TestNormalizeAliases(t *testing.T) {
	raw := RawRecord{
		"seller_name":   "Initech",
		"seller_tax_id": "98-765",
		"buyer":         "Globex",
		"net_total":     "10.00",
		"tax":           "1.00",
		"gross_total":   "11.00",
		"line_items": []any{
			map[string]any{"name": "Stapler", "quantity": "1", "unit_price": "10.00", "amount": "10.00"},
		},
	}
	rec, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "Initech", rec.SupplierName)
	assert.Equal(t, "98-765", rec.SupplierTaxID)
	assert.Equal(t, "Globex", rec.BuyerName)
	assert.Equal(t, "11", rec.TotalAmount.String())
	assert.Equal(t, "Stapler", rec.LineItems[0].Description)
	assert.Equal(t, "10", rec.LineItems[0].LineTotal.String())

	t.Run("canonical key wins", func(t *testing.T) {
		rec, err := Normalize(RawRecord{"supplier_name": "Canonical", "seller_name": "Alias"})
		require.NoError(t, err)
		assert.Equal(t, "Canonical", rec.SupplierName)
	})
}

func TestNormalizeAmounts(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    string
		failure bool
	}{
		{"grouped", "15,000.00", "15000", false},
		{"plain string", "99.95", "99.95", false},
		{"integer", 42, "42", false},
		{"float", 12.5, "12.5", false},
		{"negative", "-5.00", "-5", false},
		{"bad grouping", "1,00.00", "", true},
		{"european style", "1.000,00", "", true},
		{"text", "twelve", "", true},
		{"boolean", true, "", true},
		{"exponent", "1e2", "100", false},
		{"beyond float range", "1e400", "", true},
		{"beyond float range number", json.Number("-1e400"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Normalize(RawRecord{"total_amount": tt.value})
			require.NoError(t, err)
			if tt.failure {
				assert.Nil(t, rec.TotalAmount)
				assert.True(t, rec.HasCoercionFailure("total_amount"))
				return
			}
			require.NotNil(t, rec.TotalAmount)
			assert.Equal(t, tt.want, rec.TotalAmount.String())
			assert.Empty(t, rec.CoercionFailures)
		})
	}

	t.Run("blank is absent", func(t *testing.T) {
		rec, err := Normalize(RawRecord{"total_amount": "  "})
		require.NoError(t, err)
		assert.Nil(t, rec.TotalAmount)
		assert.Empty(t, rec.CoercionFailures)
	})

	t.Run("decoded literal beyond float range", func(t *testing.T) {
		rec, err := DecodeRecord([]byte(`{"supplier_name": "Acme Corp", "total_amount": 1e400}`))
		require.NoError(t, err)
		assert.Nil(t, rec.TotalAmount)
		assert.Equal(t, []models.CoercionFailure{{Field: "total_amount", Raw: "1e400"}}, rec.CoercionFailures)
	})

	t.Run("line item failure path", func(t *testing.T) {
		rec, err := Normalize(RawRecord{
			"line_items": []any{
				map[string]any{"description": "a", "quantity": "two"},
			},
		})
		require.NoError(t, err)
		assert.True(t, rec.HasCoercionFailure("line_items[0].quantity"))
		assert.Nil(t, rec.LineItems[0].Quantity)
	})
}

func TestNormalizeLineItems(t *testing.T) {
	t.Run("absent is empty", func(t *testing.T) {
		rec, err := Normalize(RawRecord{})
		require.NoError(t, err)
		assert.NotNil(t, rec.LineItems)
		assert.Empty(t, rec.LineItems)
	})

	t.Run("non-array rejected", func(t *testing.T) {
		_, err := Normalize(RawRecord{"line_items": "widgets"})
		var decErr *InputDecodeError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, "line_items", decErr.Field)
	})

	t.Run("non-object item rejected", func(t *testing.T) {
		_, err := Normalize(RawRecord{"line_items": []any{"widget"}})
		var decErr *InputDecodeError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, "line_items[0]", decErr.Field)
	})
}

func TestNormalizeNestedScalarRejected(t *testing.T) {
	_, err := Normalize(RawRecord{"supplier_name": map[string]any{"first": "A"}})
	var decErr *InputDecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "supplier_name", decErr.Field)
}

func TestDecodeBatch(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		recs, err := DecodeBatch(strings.NewReader(`[{"invoice_number":"A"},{"invoice_number":"B"}]`))
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "A", recs[0].InvoiceNumber)
		assert.Equal(t, "B", recs[1].InvoiceNumber)
	})

	t.Run("wrapped", func(t *testing.T) {
		recs, err := DecodeBatch(strings.NewReader(`{"invoices":[{"invoice_number":"A"}]}`))
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("empty array", func(t *testing.T) {
		recs, err := DecodeBatch(strings.NewReader(`[]`))
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	tests := []struct {
		name  string
		input string
		index int
	}{
		{"not json", `{invoice`, -1},
		{"scalar", `42`, -1},
		{"wrapper without array", `{"invoices": 3}`, -1},
		{"trailing data", `[] []`, -1},
		{"non-object entry", `[{"invoice_number":"A"}, 7]`, 1},
		{"bad line items in entry", `[{}, {"line_items": {}}]`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBatch(strings.NewReader(tt.input))
			var decErr *InputDecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, tt.index, decErr.Index)
		})
	}

	t.Run("empty input", func(t *testing.T) {
		_, err := DecodeBatch(strings.NewReader(""))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyInput))
	})
}

func TestDecodeRecordRejectsArray(t *testing.T) {
	_, err := DecodeRecord([]byte(`[]`))
	var decErr *InputDecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, -1, decErr.Index)
	assert.Contains(t, err.Error(), "expected object")
}

func TestCoercionFailuresNotSerialized(t *testing.T) {
	rec, err := Normalize(RawRecord{"total_amount": "abc"})
	require.NoError(t, err)
	assert.Equal(t, []models.CoercionFailure{{Field: "total_amount", Raw: "abc"}}, rec.CoercionFailures)
}
