// Package report writes batch reports for human and machine consumption.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/models"
)

// ErrUnsupportedFormat is returned for an output path whose extension has no writer
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Writer writes batch reports to files
type Writer struct {
	excel  *ExcelWriter
	logger *zap.Logger
}

// NewWriter creates a report writer
func NewWriter(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		excel:  NewExcelWriter(logger),
		logger: logger,
	}
}

// WriteFile writes report to path, choosing the format from the extension
// (.json or .xlsx).
func (w *Writer) WriteFile(path string, report models.BatchReport) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return w.writeJSONFile(path, report)
	case ".xlsx":
		return w.excel.WriteFile(path, report)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func (w *Writer) writeJSONFile(path string, report models.BatchReport) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteJSON(f, report); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}

	w.logger.Info("JSON report written",
		zap.String("path", path),
		zap.Int("verdicts", len(report.Verdicts)))
	return nil
}

// WriteJSON writes report as indented JSON
func WriteJSON(out io.Writer, report models.BatchReport) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	return nil
}
