// Package models defines core data structures for story documents, queries, and search results.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Document is a story summary paired with its descriptive fields (title, broadcast date,
// story index, volume, ...). Field values are string, int64, or nil. A Document is immutable
// once constructed: the constructor copies the field map and accessors return copies.
type Document struct {
	text   string
	fields map[string]any
}

// NewDocument validates and copies fields. Integer values of any width are stored as int64;
// any other value type is rejected.
func NewDocument(text string, fields map[string]any) (*Document, error) {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		nv, err := NormalizeFieldValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		copied[k] = nv
	}
	return &Document{text: text, fields: copied}, nil
}

// MustDocument is NewDocument for literals known to be valid; it panics otherwise.
func MustDocument(text string, fields map[string]any) *Document {
	d, err := NewDocument(text, fields)
	if err != nil {
		panic(err)
	}
	return d
}

// NormalizeFieldValue maps v onto the allowed field types (string, int64, nil).
func NormalizeFieldValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not an integer", t)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported field type %T", v)
	}
}

// Text returns the summary text.
func (d *Document) Text() string {
	return d.text
}

// Field returns the value stored under key.
func (d *Document) Field(key string) (any, bool) {
	v, ok := d.fields[key]
	return v, ok
}

// FieldString formats the value under key, returning fallback when it is missing or null.
func (d *Document) FieldString(key, fallback string) string {
	v, ok := d.fields[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return fallback
		}
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// Fields returns a copy of the field map.
func (d *Document) Fields() map[string]any {
	out := make(map[string]any, len(d.fields))
	for k, v := range d.fields {
		out[k] = v
	}
	return out
}

// FieldKeys returns the field names in sorted order.
func (d *Document) FieldKeys() []string {
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type documentJSON struct {
	Text   string         `json:"text"`
	Fields map[string]any `json:"fields"`
}

// MarshalJSON encodes the document as {"text": ..., "fields": {...}}.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(documentJSON{Text: d.text, Fields: d.fields})
}

// UnmarshalJSON decodes {"text": ..., "fields": {...}} and validates field types.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text   string                     `json:"text"`
		Fields map[string]json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := make(map[string]any, len(raw.Fields))
	for k, msg := range raw.Fields {
		v, err := DecodeFieldValue(msg)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = v
	}
	d.text = raw.Text
	d.fields = fields
	return nil
}

// DecodeFieldValue decodes one JSON field value, accepting only strings, integers, and null.
func DecodeFieldValue(msg json.RawMessage) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return NormalizeFieldValue(v)
}
