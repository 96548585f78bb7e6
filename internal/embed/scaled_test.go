package embed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleUnscale_RoundTrip(t *testing.T) {
	values := []float64{0.5, -0.5, 0, 1.25, -9.999999, 123.456}
	for _, original := range values {
		scaled, err := ScaleValue(original)
		require.NoError(t, err)
		assert.InDelta(t, original, UnscaleValue(scaled), 1e-6, "value %v", original)
	}
}

func TestScaleValue_Invalid(t *testing.T) {
	_, err := ScaleValue(math.NaN())
	assert.Error(t, err)

	_, err = ScaleValue(math.Inf(1))
	assert.Error(t, err)

	// Below the offset the scaled value would be negative.
	_, err = ScaleValue(-11)
	assert.Error(t, err)
}

func TestScaleEmbedding_RoundTrip(t *testing.T) {
	embedding := []float32{0.25, -0.75, 0.5}
	norm := float32(0.935414)

	values, scaledNorm, err := ScaleEmbedding(embedding, norm)
	require.NoError(t, err)
	require.Len(t, values, 3)

	back, backNorm := UnscaleEmbedding(values, scaledNorm)
	for i := range embedding {
		assert.InDelta(t, float64(embedding[i]), float64(back[i]), 1e-6)
	}
	assert.InDelta(t, float64(norm), float64(backNorm), 1e-6)
}
