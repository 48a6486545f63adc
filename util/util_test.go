package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupEasing(t *testing.T) {
	e, err := LookupEasing("inOutQuad")
	require.NoError(t, err)
	assert.Equal(t, 0.5, e(0.5))

	_, err = LookupEasing("wobble")
	assert.Error(t, err)
}

func TestGenerateLut(t *testing.T) {
	linear, err := LookupEasing("linear")
	require.NoError(t, err)

	lut := GenerateLut(4, linear)
	assert.Equal(t, []float64{0.25, 0.5, 0.75, 1}, lut)
}

func TestGenerateLut_EndsAtOne(t *testing.T) {
	e, err := LookupEasing("outcubic")
	require.NoError(t, err)

	lut := GenerateLut(7, e)
	require.Len(t, lut, 7)
	assert.Equal(t, 1.0, lut[6])
	for i := 1; i < len(lut); i++ {
		assert.GreaterOrEqual(t, lut[i], lut[i-1])
	}
}

func TestGenerateLut_Empty(t *testing.T) {
	assert.Nil(t, GenerateLut(0, nil))
}

func TestNormaliseColour(t *testing.T) {
	c, err := NormaliseColour("#FF0000")
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", c)

	_, err = NormaliseColour("red")
	assert.Error(t, err)
}
