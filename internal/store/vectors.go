package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hyperjump/storyfind/internal/vector"
)

const (
	vectorMagic   = "SFVI"
	vectorVersion = 1
	headerSize    = 16
)

type vectorHeader struct {
	version    uint16
	metric     uint16
	count      uint32
	dimensions uint32
}

// encodeVectors lays out: magic (4), version u16, metric u16, count u32, dimensions u32,
// then count*dimensions little-endian float32 values.
func encodeVectors(idx *vector.FlatIndex) ([]byte, error) {
	n, d := idx.Len(), idx.Dimensions()
	if uint64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("too many vectors: %d", n)
	}
	out := make([]byte, headerSize+n*d*4)
	copy(out, vectorMagic)
	binary.LittleEndian.PutUint16(out[4:], vectorVersion)
	binary.LittleEndian.PutUint16(out[6:], uint16(idx.Metric()))
	binary.LittleEndian.PutUint32(out[8:], uint32(n))
	binary.LittleEndian.PutUint32(out[12:], uint32(d))

	off := headerSize
	for i := 0; i < n; i++ {
		vec, _ := idx.Entry(i)
		for _, v := range vec {
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
			off += 4
		}
	}
	return out, nil
}

func parseHeader(data []byte) (vectorHeader, error) {
	var hdr vectorHeader
	if len(data) < headerSize {
		return hdr, fmt.Errorf("%w: %s is %d bytes, shorter than its header", ErrCorruptIndex, VectorArtifact, len(data))
	}
	if string(data[:4]) != vectorMagic {
		return hdr, fmt.Errorf("%w: %s has bad magic %q", ErrCorruptIndex, VectorArtifact, data[:4])
	}
	hdr.version = binary.LittleEndian.Uint16(data[4:])
	hdr.metric = binary.LittleEndian.Uint16(data[6:])
	hdr.count = binary.LittleEndian.Uint32(data[8:])
	hdr.dimensions = binary.LittleEndian.Uint32(data[12:])

	if hdr.version != vectorVersion {
		return hdr, fmt.Errorf("%w: %s version %d is not supported", ErrCorruptIndex, VectorArtifact, hdr.version)
	}
	if !vector.Metric(hdr.metric).Valid() {
		return hdr, fmt.Errorf("%w: %s has unknown metric %d", ErrCorruptIndex, VectorArtifact, hdr.metric)
	}
	if hdr.dimensions == 0 {
		return hdr, fmt.Errorf("%w: %s has zero dimensions", ErrCorruptIndex, VectorArtifact)
	}
	return hdr, nil
}

func decodeVectors(data []byte) (vectorHeader, [][]float32, error) {
	hdr, err := parseHeader(data)
	if err != nil {
		return hdr, nil, err
	}
	want := uint64(headerSize) + uint64(hdr.count)*uint64(hdr.dimensions)*4
	if uint64(len(data)) != want {
		return hdr, nil, fmt.Errorf("%w: %s is %d bytes, header implies %d", ErrCorruptIndex, VectorArtifact, len(data), want)
	}

	d := int(hdr.dimensions)
	flat := make([]float32, int(hdr.count)*d)
	for i := range flat {
		flat[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[headerSize+i*4:]))
	}
	vectors := make([][]float32, hdr.count)
	for i := range vectors {
		vectors[i] = flat[i*d : (i+1)*d : (i+1)*d]
	}
	return hdr, vectors, nil
}
