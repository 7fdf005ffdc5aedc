package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hyperjump/storyfind/internal/models"
	"github.com/hyperjump/storyfind/internal/vector"
)

const metadataVersion = 1

type metadataFile struct {
	Version int              `json:"version"`
	Count   int              `json:"count"`
	Records []metadataRecord `json:"records"`
}

type metadataRecord struct {
	Text   *string                    `json:"text"`
	Fields map[string]json.RawMessage `json:"fields,omitempty"`
}

func encodeMetadata(idx *vector.FlatIndex) ([]byte, error) {
	out := struct {
		Version int                `json:"version"`
		Count   int                `json:"count"`
		Records []*models.Document `json:"records"`
	}{Version: metadataVersion, Count: idx.Len(), Records: make([]*models.Document, idx.Len())}
	for i := range out.Records {
		_, out.Records[i] = idx.Entry(i)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

// decodeMetadata parses the metadata document. Unknown keys and field values other than
// string, integer or null are rejected.
func decodeMetadata(data []byte) ([]*models.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var mf metadataFile
	if err := dec.Decode(&mf); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptIndex, MetadataArtifact, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s has trailing data", ErrCorruptIndex, MetadataArtifact)
	}
	if mf.Version != metadataVersion {
		return nil, fmt.Errorf("%w: %s version %d is not supported", ErrCorruptIndex, MetadataArtifact, mf.Version)
	}
	if mf.Count != len(mf.Records) {
		return nil, fmt.Errorf("%w: %s declares %d records but holds %d", ErrCorruptIndex, MetadataArtifact, mf.Count, len(mf.Records))
	}

	docs := make([]*models.Document, len(mf.Records))
	for i, rec := range mf.Records {
		if rec.Text == nil {
			return nil, fmt.Errorf("%w: %s record %d has no text", ErrCorruptIndex, MetadataArtifact, i)
		}
		fields := make(map[string]any, len(rec.Fields))
		for k, raw := range rec.Fields {
			v, err := models.DecodeFieldValue(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s record %d field %q: %w", ErrCorruptIndex, MetadataArtifact, i, k, err)
			}
			fields[k] = v
		}
		doc, err := models.NewDocument(*rec.Text, fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %s record %d: %w", ErrCorruptIndex, MetadataArtifact, i, err)
		}
		docs[i] = doc
	}
	return docs, nil
}
