package marketdata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairedMedianOfThree(t *testing.T) {
	bar := Bar{Open: 12, High: 15, Low: 10, Close: math.NaN(), Volume: 100}
	assert.Equal(t, 12.0, bar.Repaired().Close)
}

func TestRepairedMedianOfTwo(t *testing.T) {
	bar := Bar{Open: 8, High: math.NaN(), Low: 12, Close: math.NaN(), Volume: 100}
	assert.Equal(t, 10.0, bar.Repaired().Close)
}

func TestRepairedSingleField(t *testing.T) {
	bar := Bar{Open: math.NaN(), High: math.NaN(), Low: 9, Close: math.NaN(), Volume: 50}
	assert.Equal(t, 9.0, bar.Repaired().Close)
}

func TestRepairedNeedsVolume(t *testing.T) {
	bar := Bar{Open: 12, High: 15, Low: 10, Close: math.NaN(), Volume: math.NaN()}
	assert.True(t, math.IsNaN(bar.Repaired().Close))
	assert.False(t, bar.Tradeable())
}

func TestRepairedLeavesGoodCloseAlone(t *testing.T) {
	bar := Bar{Open: 12, High: 15, Low: 10, Close: 14, Volume: 100}
	assert.Equal(t, 14.0, bar.Repaired().Close)
	assert.True(t, bar.Tradeable())
}

func TestRepairedAllPricesMissing(t *testing.T) {
	bar := Bar{Open: math.NaN(), High: math.NaN(), Low: math.NaN(), Close: math.NaN(), Volume: 100}
	assert.True(t, math.IsNaN(bar.Repaired().Close))
}
