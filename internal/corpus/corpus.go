// Package corpus loads story catalogues and builds index artifacts from them offline.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/storyfind/internal/models"
)

var (
	// ErrUnsupportedFormat is returned for catalogue files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported corpus format")
	// ErrMissingText is returned when a record has no summary text.
	ErrMissingText = errors.New("record has no text")
)

// DefaultTextField is the column holding the story summary.
const DefaultTextField = "text"

// Options controls how records are read from a catalogue.
type Options struct {
	// TextField names the column embedded as the summary; every other column becomes a field.
	TextField string
	// Table is the SQLite table to read.
	Table string
	// Sheet is the spreadsheet sheet to read; empty selects the first sheet.
	Sheet string
}

func (o Options) textField() string {
	if o.TextField == "" {
		return DefaultTextField
	}
	return o.TextField
}

// Load reads every story in the catalogue at path. The format is chosen by extension:
// .jsonl/.ndjson, .json, .yaml/.yml, .xlsx, or .db/.sqlite/.sqlite3.
func Load(ctx context.Context, path string, opts Options) ([]*models.Document, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jsonl", ".ndjson":
		return loadJSONL(path, opts)
	case ".json":
		return loadJSON(path, opts)
	case ".yaml", ".yml":
		return loadYAML(path, opts)
	case ".xlsx":
		return loadExcel(path, opts)
	case ".db", ".sqlite", ".sqlite3":
		return loadSQLite(ctx, path, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// toDocument splits row into the summary text and the remaining fields.
func toDocument(row map[string]any, textField string, n int) (*models.Document, error) {
	raw, ok := row[textField]
	text, isString := raw.(string)
	if !ok || !isString || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("record %d: %w (field %q)", n, ErrMissingText, textField)
	}
	fields := make(map[string]any, len(row)-1)
	for k, v := range row {
		if k == textField {
			continue
		}
		cv, err := coerce(v)
		if err != nil {
			return nil, fmt.Errorf("record %d: field %q: %w", n, k, err)
		}
		fields[k] = cv
	}
	return models.NewDocument(text, fields)
}

// coerce maps decoder output onto document field types. Integral floats become integers,
// booleans and dates become strings.
func coerce(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t), nil
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format(time.DateOnly), nil
		}
		return t.Format(time.RFC3339), nil
	case []byte:
		return string(t), nil
	}
	return models.NormalizeFieldValue(v)
}
