package corpus

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/storyfind/internal/models"
)

// loadExcel reads one sheet; the first row holds the column names.
func loadExcel(path string, opts Options) ([]*models.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("open Excel: workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	var docs []*models.Document
	for r, cells := range rows[1:] {
		if blankRow(cells) {
			continue
		}
		row := make(map[string]any, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			var cell string
			if i < len(cells) {
				cell = strings.TrimSpace(cells[i])
			}
			row[name] = cellValue(cell)
		}
		doc, err := toDocument(row, opts.textField(), len(docs)+1)
		if err != nil {
			return nil, fmt.Errorf("sheet %q row %d: %w", sheet, r+2, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// cellValue maps an empty cell to nil and a plain integer to int64. Values with a leading
// zero stay strings.
func cellValue(s string) any {
	if s == "" {
		return nil
	}
	if s == "0" || (s[0] != '0' && s[0] != '+') {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return s
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
