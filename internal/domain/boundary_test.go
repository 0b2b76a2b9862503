package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// interp is the linear zero crossing between (x0, y0) and (x1, y1).
func interp(x0, x1, y0, y1 float64) float64 {
	return x0 - y0*(x1-x0)/(y1-y0)
}

func TestDetectBoundaries(t *testing.T) {
	v := levelInvariantWind(3, testShape, 2)
	u := NewWindField(3, 5, 2)

	b, err := NewDetector(NewEngine(nil)).Detect(u, v, Axis1D(testLats), Axis1D(testLevels), true)
	require.NoError(t, err)

	assert.Equal(t, 30.0, b.NorthStar.Latitude)
	assert.Equal(t, 75000.0, b.NorthStar.Pressure)
	assert.Equal(t, 1, b.NorthStar.LevelIndex)
	assert.Equal(t, 3, b.NorthStar.LatitudeIndex)
	assert.Equal(t, -30.0, b.SouthStar.Latitude)
	assert.Less(t, b.SouthStar.Value, 0.0)

	wantNorth := interp(30, 60, cosd(30), -cosd(60))
	wantSouth := interp(-60, -30, cosd(60), -cosd(30))
	assert.InEpsilon(t, wantNorth, b.North, 1e-6)
	assert.InEpsilon(t, wantSouth, b.South, 1e-6)
	assert.Greater(t, b.North, b.NorthStar.Latitude)
	assert.Less(t, b.South, b.SouthStar.Latitude)

	require.Len(t, b.Crossings, 3)
	assert.InEpsilon(t, wantSouth, b.Crossings[0], 1e-6)
	assert.InEpsilon(t, interp(-30, 0, -cosd(30), 0.5), b.Crossings[1], 1e-6)
	assert.InEpsilon(t, wantNorth, b.Crossings[2], 1e-6)
}

func TestDetectBoundariesNotFound(t *testing.T) {
	v := levelInvariantWind(3, []float64{1, 1, 1, 1, 1}, 2)
	u := NewWindField(3, 5, 2)

	b, err := NewDetector(NewEngine(nil)).Detect(u, v, Axis1D(testLats), Axis1D(testLevels), true)
	require.NoError(t, err)
	assert.False(t, Found(b.North))
	assert.False(t, Found(b.South))
	assert.Empty(t, b.Crossings)
}

func TestDetectBoundariesDomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		lats   []float64
		levels []float64
	}{
		{name: "no mid-troposphere levels", lats: testLats, levels: []float64{100000, 95000, 90000}},
		{name: "surface layers only", lats: testLats, levels: []float64{100000, 90000, 85000}},
		{name: "northern hemisphere only", lats: []float64{10, 20, 30, 40, 50}, levels: testLevels},
		{name: "southern hemisphere only", lats: []float64{-40, -30, -20, -10, 0}, levels: testLevels},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := levelInvariantWind(len(tt.levels), testShape, 2)
			u := NewWindField(len(tt.levels), 5, 2)
			_, err := NewDetector(NewEngine(nil)).Detect(u, v, Axis1D(tt.lats), Axis1D(tt.levels), true)
			require.ErrorIs(t, err, ErrDomain)
		})
	}
}

func TestDetectBoundariesAllNaN(t *testing.T) {
	nan := math.NaN()
	v := levelInvariantWind(3, []float64{nan, nan, nan, nan, nan}, 2)
	u := NewWindField(3, 5, 2)

	_, err := NewDetector(NewEngine(nil)).Detect(u, v, Axis1D(testLats), Axis1D(testLevels), true)
	require.ErrorIs(t, err, ErrDomain)
}

func TestZeroCrossings(t *testing.T) {
	t.Run("interpolated", func(t *testing.T) {
		got := ZeroCrossings([]float64{0, 10, 20}, []float64{1, -1, 1})
		assert.Equal(t, []float64{5, 15}, got)
	})

	t.Run("exact zero", func(t *testing.T) {
		got := ZeroCrossings([]float64{0, 10, 20}, []float64{1, 0, -1})
		assert.Equal(t, []float64{10}, got)
	})

	t.Run("zero at final sample ignored", func(t *testing.T) {
		got := ZeroCrossings([]float64{0, 10}, []float64{1, 0})
		assert.Empty(t, got)
	})

	t.Run("no sign change", func(t *testing.T) {
		assert.Empty(t, ZeroCrossings([]float64{0, 10, 20}, []float64{1, 2, 3}))
	})

	t.Run("NaN breaks bracketing", func(t *testing.T) {
		got := ZeroCrossings([]float64{0, 10, 20}, []float64{1, math.NaN(), -1})
		assert.Empty(t, got)
	})
}

func TestNormalizeCrossings(t *testing.T) {
	assert.Equal(t, []float64{-40, 0, 40}, NormalizeCrossings([]float64{40, 0, -40}))
	assert.Equal(t, []float64{-40, 0, 40}, NormalizeCrossings([]float64{-40, 0, 40}))
	assert.Empty(t, NormalizeCrossings(nil))

	in := []float64{3, 2, 1}
	NormalizeCrossings(in)
	assert.Equal(t, []float64{3, 2, 1}, in)
}

func TestSelectBoundaries(t *testing.T) {
	t.Run("poleward of critical latitudes", func(t *testing.T) {
		north, south := SelectBoundaries([]float64{-35, -5, 5, 32}, 15, -12)
		assert.Equal(t, 32.0, north)
		assert.Equal(t, -35.0, south)
	})

	t.Run("order independent", func(t *testing.T) {
		n1, s1 := SelectBoundaries([]float64{-35, -5, 5, 32}, 15, -12)
		n2, s2 := SelectBoundaries([]float64{32, 5, -5, -35}, 15, -12)
		assert.Equal(t, n1, n2)
		assert.Equal(t, s1, s2)
	})

	t.Run("empty crossings", func(t *testing.T) {
		north, south := SelectBoundaries(nil, 15, -12)
		assert.False(t, Found(north))
		assert.False(t, Found(south))
	})

	t.Run("only one side found", func(t *testing.T) {
		north, south := SelectBoundaries([]float64{-35, 5}, 15, -12)
		assert.False(t, Found(north))
		assert.Equal(t, -35.0, south)
	})
}

func TestPressureBands(t *testing.T) {
	assert.True(t, InMidBand(40000))
	assert.True(t, InMidBand(70000))
	assert.False(t, InMidBand(75000))
	assert.True(t, InLowerBand(80000))
	assert.False(t, InLowerBand(85000))
}
