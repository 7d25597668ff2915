package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/models"
)

func sampleReport() models.BatchReport {
	return models.BatchReport{
		Total:   2,
		Valid:   1,
		Invalid: 1,
		TopErrorCodes: []models.CodeCount{
			{Code: models.CodeMissingField, Count: 2},
			{Code: models.CodeUnusualAmount, Count: 1},
		},
		Verdicts: []models.ValidationVerdict{
			models.NewVerdict("ACME_INV1_2024-03-15", nil),
			models.NewVerdict("ACME_INV2_2024-03-16", []models.ErrorToken{
				{Code: models.CodeMissingField, Category: models.CategoryCompleteness, Field: "buyer_name", Message: "required field buyer_name is missing or empty", Severity: models.SeverityError},
				{Code: models.CodeMissingField, Category: models.CategoryCompleteness, Field: "total_amount", Message: "required field total_amount\x00 is missing", Severity: models.SeverityError},
			}),
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.EqualValues(t, 2, decoded["total"])
	assert.EqualValues(t, 1, decoded["invalid"])
	assert.Len(t, decoded["verdicts"], 2)
	assert.Len(t, decoded["top_error_codes"], 2)
	assert.Contains(t, buf.String(), "\n  \"valid\": 1")
}

func TestWriterWriteFile(t *testing.T) {
	w := NewWriter(zap.NewNop())
	dir := t.TempDir()

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "out", "report.json")
		require.NoError(t, w.WriteFile(path, sampleReport()))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var got models.BatchReport
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, sampleReport(), got)
	})

	t.Run("unsupported", func(t *testing.T) {
		err := w.WriteFile(filepath.Join(dir, "report.csv"), sampleReport())
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestExcelWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.XLSX")
	require.NoError(t, NewWriter(zap.NewNop()).WriteFile(path, sampleReport()))
	assert.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, VerdictsSheet}, f.GetSheetList())

	total, _ := f.GetCellValue(SummarySheet, "B1")
	assert.Equal(t, "2", total)
	invalid, _ := f.GetCellValue(SummarySheet, "B3")
	assert.Equal(t, "1", invalid)
	topCode, _ := f.GetCellValue(SummarySheet, "A6")
	assert.Equal(t, models.CodeMissingField, topCode)
	topCount, _ := f.GetCellValue(SummarySheet, "B6")
	assert.Equal(t, "2", topCount)

	rows, err := f.GetRows(VerdictsSheet)
	require.NoError(t, err)
	// header, one row for the clean invoice, one per token
	require.Len(t, rows, 4)
	assert.Equal(t, "Invoice ID", rows[0][0])
	assert.Equal(t, "ACME_INV1_2024-03-15", rows[1][0])
	assert.Len(t, rows[1], 2)
	assert.Equal(t, "buyer_name", rows[2][5])
	assert.Equal(t, "required field total_amount is missing", rows[3][6])
}
