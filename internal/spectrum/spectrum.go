// Package spectrum encodes FFT magnitude arrays as the raw byte payload stored
// with a spectrum capture: little-endian IEEE-754 float32, one sample per 4
// bytes, input order, no header or padding.
package spectrum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// BytesPerBin is the width of one encoded sample.
const BytesPerBin = 4

var (
	ErrCorrupt  = errors.New("spectrum payload length is not a multiple of 4")
	ErrOverflow = errors.New("spectrum sample out of float32 range")
)

func Encode(data []float32) []byte {
	out := make([]byte, len(data)*BytesPerBin)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*BytesPerBin:], math.Float32bits(v))
	}
	return out
}

// EncodeFloat64 narrows each sample to float32 before encoding. JSON numbers
// decode as float64, so this is the path used for ingested payloads. A finite
// sample that would narrow to an infinity is rejected with ErrOverflow.
func EncodeFloat64(data []float64) ([]byte, error) {
	out := make([]byte, len(data)*BytesPerBin)
	for i, v := range data {
		f := float32(v)
		if math.IsInf(float64(f), 0) && !math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: sample %d is %g", ErrOverflow, i, v)
		}
		binary.LittleEndian.PutUint32(out[i*BytesPerBin:], math.Float32bits(f))
	}
	return out, nil
}

func Decode(b []byte) ([]float32, error) {
	if len(b)%BytesPerBin != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrCorrupt, len(b))
	}
	out := make([]float32, len(b)/BytesPerBin)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*BytesPerBin:]))
	}
	return out, nil
}

// DecodeBins decodes b and checks it holds exactly bins samples.
func DecodeBins(b []byte, bins int) ([]float32, error) {
	if len(b) != bins*BytesPerBin {
		return nil, fmt.Errorf("%w: %d bytes for %d bins", ErrCorrupt, len(b), bins)
	}
	return Decode(b)
}
