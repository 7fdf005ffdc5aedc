package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/storyfind/internal/vector"
)

// Info summarizes a stored index without loading its vectors.
type Info struct {
	Entries     int         `json:"entries"`
	Dimensions  int         `json:"dimensions"`
	Metric      string      `json:"metric"`
	Compression Compression `json:"compression"`
	SizeBytes   int64       `json:"size_bytes"`
}

// Inspect reads the vector header and the metadata codec from dir.
func Inspect(dir string) (*Info, error) {
	hdr, err := readHeader(filepath.Join(dir, VectorArtifact))
	if err != nil {
		return nil, err
	}
	magic, err := readPrefix(filepath.Join(dir, MetadataArtifact), 4)
	if err != nil {
		return nil, err
	}
	size, err := DiskUsageBytes(artifactPaths(dir)...)
	if err != nil {
		return nil, err
	}
	return &Info{
		Entries:     int(hdr.count),
		Dimensions:  int(hdr.dimensions),
		Metric:      vector.Metric(hdr.metric).String(),
		Compression: CompressionOf(magic),
		SizeBytes:   size,
	}, nil
}

func artifactPaths(dir string) []string {
	paths := make([]string, len(Artifacts))
	for i, name := range Artifacts {
		paths[i] = filepath.Join(dir, name)
	}
	return paths
}

func readHeader(path string) (vectorHeader, error) {
	buf, err := readPrefix(path, headerSize)
	if err != nil {
		return vectorHeader{}, err
	}
	return parseHeader(buf)
}

func readPrefix(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, filepath.Base(path))
		}
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// DiskUsageBytes returns the total size in bytes of the given files.
// Missing paths are skipped.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
