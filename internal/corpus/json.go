package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hyperjump/storyfind/internal/models"
)

const maxLineBytes = 4 << 20

func loadJSONL(path string, opts Options) ([]*models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var docs []*models.Document
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		row, err := decodeRow(b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		doc, err := toDocument(row, opts.textField(), len(docs)+1)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return docs, nil
}

func loadJSON(path string, opts Options) ([]*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse corpus: expected a JSON array of records: %w", err)
	}
	docs := make([]*models.Document, 0, len(raw))
	for i, msg := range raw {
		row, err := decodeRow(msg)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		doc, err := toDocument(row, opts.textField(), i+1)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// decodeRow decodes one JSON object, keeping numbers exact.
func decodeRow(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	for k, v := range row {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				row[k] = i
			} else {
				row[k] = n.String()
			}
		}
	}
	return row, nil
}
