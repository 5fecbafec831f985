package swing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/domain/models/modeltest"
)

func TestTrueRange(t *testing.T) {
	b := models.Bar{High: 10, Low: 8, Close: 9}
	assert.InDelta(t, 2, TrueRange(b, 0, false), 1e-12)
	assert.InDelta(t, 4, TrueRange(b, 12, true), 1e-12)
	assert.InDelta(t, 5, TrueRange(b, 5, true), 1e-12)
	// low leg: |8 - 13|
	assert.InDelta(t, 5, TrueRange(b, 13, true), 1e-12)
}

func TestATRPrimingThenWilder(t *testing.T) {
	atr := NewATR(3)
	atr.Update(3)
	assert.False(t, atr.Ready())
	atr.Update(6)
	assert.InDelta(t, 4.5, atr.Value(), 1e-12)
	atr.Update(9)
	require.True(t, atr.Ready())
	assert.InDelta(t, 6, atr.Value(), 1e-12)

	// (6*2 + 12) / 3
	atr.Update(12)
	assert.InDelta(t, 8, atr.Value(), 1e-12)
}

func TestATRAt(t *testing.T) {
	s := modeltest.Highs(time.Minute, 1, 10, 10, 10, 10)
	v, ok := ATRAt(s, 3, 3)
	require.True(t, ok)
	assert.InDelta(t, 2, v, 1e-12)

	_, ok = ATRAt(s, 1, 3)
	assert.False(t, ok)
	_, ok = ATRAt(s, 9, 3)
	assert.False(t, ok)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	xs := []float64{3, 1, 2}
	Median(xs)
	assert.Equal(t, []float64{3, 1, 2}, xs)
}

func TestSwingPivotDefinition(t *testing.T) {
	mids := []float64{1, 2, 3, 5, 3, 2, 4, 1, 0, 2, 6, 6, 2}
	s := modeltest.Highs(time.Minute, 0.5, mids...)

	for pivot := 1; pivot <= 3; pivot++ {
		for i := range s {
			want := i-pivot >= 0 && i+pivot < len(s)
			for k := 1; want && k <= pivot; k++ {
				want = s[i].High > s[i-k].High && s[i].High > s[i+k].High
			}
			assert.Equal(t, want, IsSwingHigh(s, i, pivot), "high i=%d pivot=%d", i, pivot)

			wantLow := i-pivot >= 0 && i+pivot < len(s)
			for k := 1; wantLow && k <= pivot; k++ {
				wantLow = s[i].Low < s[i-k].Low && s[i].Low < s[i+k].Low
			}
			assert.Equal(t, wantLow, IsSwingLow(s, i, pivot), "low i=%d pivot=%d", i, pivot)
		}
		assert.False(t, IsSwingHigh(s, 0, pivot))
		assert.False(t, IsSwingHigh(s, len(s)-1, pivot))
	}

	// equal neighbours never form a pivot
	assert.False(t, IsSwingHigh(s, 10, 1))
	assert.False(t, IsSwingHigh(s, 11, 1))
}

func TestLastSwingRespectsConfirmation(t *testing.T) {
	s := modeltest.Highs(time.Minute, 0.5, 1, 2, 5, 2, 1, 0, 1, 7, 1)

	p, ok := LastSwingHigh(s, len(s), 2, 0)
	require.True(t, ok)
	assert.Equal(t, 2, p.Index)
	assert.InDelta(t, 5.5, p.Price, 1e-12)

	// the pivot at index 2 is visible only once bars 3 and 4 are
	_, ok = LastSwingHigh(s, 4, 2, 0)
	assert.False(t, ok)
	p, ok = LastSwingHigh(s, 5, 2, 0)
	require.True(t, ok)
	assert.Equal(t, 2, p.Index)

	low, ok := LastSwingLow(s, len(s), 2, 0)
	require.True(t, ok)
	assert.Equal(t, 5, low.Index)

	_, ok = LastSwingHigh(s, len(s), 2, 3)
	assert.False(t, ok, "pivot outside lookback")
	_, ok = LastSwingHigh(s, 0, 2, 0)
	assert.False(t, ok)
}

func TestStructureBias(t *testing.T) {
	up := modeltest.Highs(time.Minute, 0.5, 5, 3, 6, 4, 7, 5, 8, 6, 9)
	assert.Equal(t, models.Bullish, StructureBias(up, len(up)-1, 1))

	down := modeltest.Highs(time.Minute, 0.5, 9, 7, 8, 6, 7, 5, 6, 4, 5, 3)
	assert.Equal(t, models.Bearish, StructureBias(down, len(down)-1, 1))

	assert.Equal(t, models.DirectionNone, StructureBias(up[:3], 2, 1))
}
