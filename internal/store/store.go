// Package store persists a vector index as two artifacts: a binary vector file and a JSON
// metadata file holding one record per vector.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/storyfind/internal/vector"
)

const (
	// VectorArtifact holds the header and the raw float32 vectors.
	VectorArtifact = "index.vec"
	// MetadataArtifact holds the ordered document records.
	MetadataArtifact = "index.meta"
)

// Artifacts lists every file that makes up a stored index.
var Artifacts = []string{VectorArtifact, MetadataArtifact}

var (
	// ErrCorruptIndex is returned when an artifact is malformed or the two artifacts disagree.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrMissingArtifact is returned when an artifact is absent from the index directory.
	ErrMissingArtifact = errors.New("missing index artifact")
)

// SaveOptions controls how artifacts are written.
type SaveOptions struct {
	// Compression applies to the metadata artifact only.
	Compression Compression
}

// Save writes idx to dir, creating the directory if needed. Each artifact is written to a
// temporary file in dir and renamed into place.
func Save(dir string, idx *vector.FlatIndex, opts SaveOptions) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	vec, err := encodeVectors(idx)
	if err != nil {
		return err
	}
	meta, err := encodeMetadata(idx)
	if err != nil {
		return err
	}
	meta, err = compress(meta, opts.Compression)
	if err != nil {
		return fmt.Errorf("compress metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, VectorArtifact), vec); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, MetadataArtifact), meta)
}

// Load reads both artifacts from dir and rebuilds the index.
func Load(dir string) (*vector.FlatIndex, error) {
	vecData, err := readArtifact(dir, VectorArtifact)
	if err != nil {
		return nil, err
	}
	metaData, err := readArtifact(dir, MetadataArtifact)
	if err != nil {
		return nil, err
	}

	hdr, vectors, err := decodeVectors(vecData)
	if err != nil {
		return nil, err
	}
	plain, err := decompress(metaData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptIndex, MetadataArtifact, err)
	}
	docs, err := decodeMetadata(plain)
	if err != nil {
		return nil, err
	}
	if len(docs) != int(hdr.count) {
		return nil, fmt.Errorf("%w: %s has %d vectors but %s has %d records",
			ErrCorruptIndex, VectorArtifact, hdr.count, MetadataArtifact, len(docs))
	}

	idx, err := vector.NewFlatIndex(int(hdr.dimensions), vector.Metric(hdr.metric), vectors, docs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	return idx, nil
}

// Exists reports whether dir contains both artifacts.
func Exists(dir string) bool {
	for _, name := range Artifacts {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func readArtifact(dir, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
