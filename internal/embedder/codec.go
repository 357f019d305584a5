package embedder

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector packs a float32 vector as a little-endian IEEE-754 byte
// sequence for storage. DecodeVector is its exact inverse.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. Returns an error if buf's
// length is not a multiple of 4 bytes.
func DecodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedder: buffer length %d is not a multiple of 4", len(buf))
	}
	dim := len(buf) / 4
	v := make([]float32, dim)
	for i := 0; i < dim; i++ {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		v[i] = math.Float32frombits(bits)
	}
	return v, nil
}
