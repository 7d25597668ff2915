package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/models"
	"github.com/garyjia/invoice-qc/pkg/utils"
)

// Sheet names in the workbook
const (
	SummarySheet  = "Summary"
	VerdictsSheet = "Verdicts"
)

var verdictHeader = []interface{}{
	"Invoice ID", "Valid", "Code", "Category", "Severity", "Field", "Message",
}

// ExcelWriter renders a batch report as an XLSX workbook with a Summary
// sheet and one Verdicts row per token. Invoices without tokens get a
// single row with the token columns left blank.
type ExcelWriter struct {
	logger *zap.Logger
}

// NewExcelWriter creates a new Excel writer
func NewExcelWriter(logger *zap.Logger) *ExcelWriter {
	return &ExcelWriter{logger: logger}
}

// WriteFile renders report and saves it to outputPath
func (ew *ExcelWriter) WriteFile(outputPath string, report models.BatchReport) error {
	if err := ensureDir(outputPath); err != nil {
		return err
	}

	f, err := ew.Build(report)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}

	ew.logger.Info("Excel report written",
		zap.String("output_path", outputPath),
		zap.Int("verdicts", len(report.Verdicts)))
	return nil
}

// Build renders report into a new workbook. The caller closes it.
func (ew *ExcelWriter) Build(report models.BatchReport) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(VerdictsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	if err := ew.fillSummary(f, report, bold); err != nil {
		f.Close()
		return nil, err
	}
	if err := ew.fillVerdicts(f, report, bold); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (ew *ExcelWriter) fillSummary(f *excelize.File, report models.BatchReport, bold int) error {
	rows := [][]interface{}{
		{"Total", report.Total},
		{"Valid", report.Valid},
		{"Invalid", report.Invalid},
		{},
		{"Top Codes", "Count"},
	}
	for _, cc := range report.TopErrorCodes {
		rows = append(rows, []interface{}{cc.Code, cc.Count})
	}

	for i, row := range rows {
		if err := ew.setRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}

	// label column and the top-codes header
	if err := f.SetCellStyle(SummarySheet, "A1", "A3", bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	if err := f.SetCellStyle(SummarySheet, "A5", "B5", bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "A", 28)
}

func (ew *ExcelWriter) fillVerdicts(f *excelize.File, report models.BatchReport, bold int) error {
	if err := ew.setRow(f, VerdictsSheet, 1, verdictHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(VerdictsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	row := 2
	for _, v := range report.Verdicts {
		id := utils.SanitizeString(v.InvoiceID)
		if len(v.Errors) == 0 {
			if err := ew.setRow(f, VerdictsSheet, row, []interface{}{id, v.IsValid}); err != nil {
				return err
			}
			row++
			continue
		}
		for _, t := range v.Errors {
			cells := []interface{}{
				id,
				v.IsValid,
				t.Code,
				string(t.Category),
				string(t.Severity),
				t.Field,
				utils.SanitizeString(t.Message),
			}
			if err := ew.setRow(f, VerdictsSheet, row, cells); err != nil {
				return err
			}
			row++
		}
	}

	if err := f.SetColWidth(VerdictsSheet, "A", "A", 36); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	if err := f.SetColWidth(VerdictsSheet, "G", "G", 80); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	return f.SetPanes(VerdictsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// setRow writes values starting at column A of the given row
func (ew *ExcelWriter) setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		ew.logger.Warn("Failed to set row",
			zap.String("sheet", sheet),
			zap.Int("row", row),
			zap.Error(err))
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
