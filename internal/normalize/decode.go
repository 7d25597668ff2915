package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/garyjia/invoice-qc/internal/models"
)

// ErrEmptyInput is returned when there is nothing to decode
var ErrEmptyInput = errors.New("empty input")

// InputDecodeError reports input that cannot be interpreted as invoice
// records. It is distinct from a validation failure.
type InputDecodeError struct {
	Index int    // position in a batch, -1 for a single record
	Field string // offending field, empty when the whole document is bad
	Err   error
}

func (e *InputDecodeError) Error() string {
	switch {
	case e.Index >= 0 && e.Field != "":
		return fmt.Sprintf("input decode error: record %d: %s: %v", e.Index, e.Field, e.Err)
	case e.Index >= 0:
		return fmt.Sprintf("input decode error: record %d: %v", e.Index, e.Err)
	case e.Field != "":
		return fmt.Sprintf("input decode error: %s: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("input decode error: %v", e.Err)
	}
}

func (e *InputDecodeError) Unwrap() error {
	return e.Err
}

// DecodeRecord decodes and normalizes a single JSON invoice object
func DecodeRecord(data []byte) (models.InvoiceRecord, error) {
	v, err := decodeJSON(bytes.NewReader(data))
	if err != nil {
		return models.InvoiceRecord{}, &InputDecodeError{Index: -1, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return models.InvoiceRecord{}, &InputDecodeError{Index: -1, Err: fmt.Errorf("expected object, got %s", jsonKind(v))}
	}
	rec, err := Normalize(obj)
	if err != nil {
		return models.InvoiceRecord{}, withIndex(err, -1)
	}
	return rec, nil
}

// DecodeBatch decodes an ordered sequence of invoices. The document is either
// a JSON array of objects or an object holding the array under "invoices".
func DecodeBatch(r io.Reader) ([]models.InvoiceRecord, error) {
	v, err := decodeJSON(r)
	if err != nil {
		return nil, &InputDecodeError{Index: -1, Err: err}
	}

	var list []any
	switch t := v.(type) {
	case []any:
		list = t
	case map[string]any:
		inner, ok := t["invoices"].([]any)
		if !ok {
			return nil, &InputDecodeError{Index: -1, Field: "invoices", Err: errors.New("expected array")}
		}
		list = inner
	default:
		return nil, &InputDecodeError{Index: -1, Err: fmt.Errorf("expected array, got %s", jsonKind(v))}
	}

	records := make([]models.InvoiceRecord, 0, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, &InputDecodeError{Index: i, Err: fmt.Errorf("expected object, got %s", jsonKind(entry))}
		}
		rec, err := Normalize(obj)
		if err != nil {
			return nil, withIndex(err, i)
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON document")
	}
	return v, nil
}

func withIndex(err error, index int) error {
	var decErr *InputDecodeError
	if errors.As(err, &decErr) {
		decErr.Index = index
		return decErr
	}
	return &InputDecodeError{Index: index, Err: err}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
