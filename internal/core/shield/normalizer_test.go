package shield

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	resMode  = "mode"
	resLimit = "limit"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(map[string]ResourceSpec{
		resLimit: {Kind: KindNumeric},
	}, DefaultSynonyms)
}

func TestNormalizeEnumeratedSynonyms(t *testing.T) {

	assert := assert.New(t)
	n := testNormalizer()

	for _, raw := range []any{"Vypnuto/Off", "Vypnuto / Off", "Vypnuto", "Off", " OFF "} {
		v, err := n.Normalize(resMode, raw)
		assert.NoError(err)
		assert.Equal("off", v, "raw value %q", raw)
	}
	assert.True(n.Equal(resMode, "S omezením / Limited", "limited"))
	assert.True(n.Equal(resMode, "Zapnuto/On", "on"))
	assert.False(n.Equal(resMode, "Zapnuto/On", "Vypnuto/Off"))
}

func TestNormalizeEnumeratedUnknownToken(t *testing.T) {

	assert := assert.New(t)
	n := testNormalizer()

	v, err := n.Normalize(resMode, "Home 2")
	assert.NoError(err)
	assert.Equal("home2", v)
	assert.True(n.Equal(resMode, "home 2", "HOME2"))
	assert.False(n.Equal(resMode, "Home 1", "Home 2"))
}

func TestNormalizeNumeric(t *testing.T) {

	assert := assert.New(t)
	n := testNormalizer()

	assert.True(n.Equal(resLimit, 9.0, "9"))
	assert.True(n.Equal(resLimit, "5.0", 5))
	assert.True(n.Equal(resLimit, " 42 ", int64(42)))

	v, err := n.Normalize(resLimit, 9.6)
	assert.NoError(err)
	assert.Equal("10", v)

	v, err = n.Normalize(resLimit, -0.2)
	assert.NoError(err)
	assert.Equal("0", v)
}

func TestNormalizeNumericPrecision(t *testing.T) {

	assert := assert.New(t)
	n := NewNormalizer(map[string]ResourceSpec{"soc": {Kind: KindNumeric, Precision: 1}}, nil)

	v, err := n.Normalize("soc", "55.26")
	assert.NoError(err)
	assert.Equal("55.3", v)
	assert.True(n.Equal("soc", 55.31, "55.3"))
}

func TestNormalizeNumericErrors(t *testing.T) {

	require := require.New(t)
	n := testNormalizer()

	for _, raw := range []any{"abc", "", nil, true, math.NaN(), math.Inf(1)} {
		_, err := n.Normalize(resLimit, raw)
		require.Error(err, "raw value %v", raw)
		var nerr *NormalizationError
		require.True(errors.As(err, &nerr))
		require.Equal(resLimit, nerr.ResourceID)
	}
	require.False(n.Equal(resLimit, "abc", "abc"))
}
