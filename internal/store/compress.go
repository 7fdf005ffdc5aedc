package store

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names a codec for the metadata artifact.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// maxMetadataSize bounds decompressed metadata.
const maxMetadataSize = 1 << 30

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// ParseCompression parses a codec name. Empty selects none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionNone, nil
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression %q (supported: none, zstd, lz4)", s)
	}
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case "", CompressionNone:
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

// decompress sniffs the codec from the leading magic bytes. Plain JSON passes through.
func decompress(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxMetadataSize))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case bytes.HasPrefix(data, lz4Magic):
		out, err := io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(data)), maxMetadataSize+1))
		if err != nil {
			return nil, err
		}
		if len(out) > maxMetadataSize {
			return nil, fmt.Errorf("decompressed metadata exceeds %d bytes", maxMetadataSize)
		}
		return out, nil
	default:
		return data, nil
	}
}

// CompressionOf reports the codec of an artifact on disk, for status output.
func CompressionOf(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(data, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}
