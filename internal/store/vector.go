package store

import (
	"encoding/binary"
	"math"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

// encodeVector packs a float32 slice into a little-endian byte blob for
// storage in the "vector" BLOB column.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a vector BLOB back into a float32 slice.
func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineScore computes the §4.4 vector_search ranking score: cosine
// similarity of two already-L2-normalized vectors, which for unit vectors
// equals their dot product. We still normalize defensively in case a
// stored vector predates a provider change.
func cosineScore(query, candidate []float32) float64 {
	return types.CosineSimilarity(query, candidate)
}
