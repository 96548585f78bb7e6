package embed

import (
	"math"

	berrors "github.com/blueband-db/blueband/internal/errors"
)

// Scaled-integer interop format used by an older storage backend that only
// carries unsigned 64-bit integers: each float is offset into the positive
// range and scaled before truncation.
const (
	ScaleFactor = 1_000_000.0
	OffsetValue = 10.0
)

// ScaleValue converts a float to the scaled u64 wire form.
func ScaleValue(v float64) (uint64, error) {
	scaled := (v + OffsetValue) * ScaleFactor
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) {
		return 0, berrors.Newf(berrors.ErrCodeInvalidEmbedding, "scaled value is not finite: %v", v)
	}
	if scaled < 0 {
		return 0, berrors.Newf(berrors.ErrCodeInvalidEmbedding, "scaled value is negative: %v", v)
	}
	if scaled > float64(math.MaxUint64) {
		return 0, berrors.Newf(berrors.ErrCodeInvalidEmbedding, "scaled value exceeds uint64 range: %v", v)
	}
	return uint64(scaled), nil
}

// UnscaleValue converts a scaled u64 back to its float value.
func UnscaleValue(v uint64) float64 {
	return float64(v)/ScaleFactor - OffsetValue
}

// ScaleEmbedding converts an embedding and its norm to the scaled wire form.
func ScaleEmbedding(embedding []float32, norm float32) ([]uint64, uint64, error) {
	values := make([]uint64, len(embedding))
	for i, v := range embedding {
		scaled, err := ScaleValue(float64(v))
		if err != nil {
			return nil, 0, err
		}
		values[i] = scaled
	}
	scaledNorm, err := ScaleValue(float64(norm))
	if err != nil {
		return nil, 0, err
	}
	return values, scaledNorm, nil
}

// UnscaleEmbedding converts a scaled embedding back to floats.
func UnscaleEmbedding(values []uint64, scaledNorm uint64) ([]float32, float32) {
	embedding := make([]float32, len(values))
	for i, v := range values {
		embedding[i] = float32(UnscaleValue(v))
	}
	return embedding, float32(UnscaleValue(scaledNorm))
}
