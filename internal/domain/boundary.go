package domain

import (
	"fmt"
	"math"
	"slices"

	"github.com/ctessum/sparse"
)

// Pressure bands used by the boundary diagnostic, Pa.
const (
	MidBandTop    = 4.0e4
	MidBandBottom = 7.0e4
	LowerBandMax  = 8.0e4
)

// InMidBand reports whether p lies between 700 and 400 hPa inclusive.
func InMidBand(p float64) bool { return p >= MidBandTop && p <= MidBandBottom }

// InLowerBand reports whether p lies at or above 800 hPa.
func InLowerBand(p float64) bool { return p <= LowerBandMax }

// Found reports whether a boundary latitude was detected.
func Found(lat float64) bool { return !math.IsNaN(lat) }

// CriticalPoint locates a stream function extremum.
type CriticalPoint struct {
	Latitude      float64 `json:"latitude"`
	Pressure      float64 `json:"pressure"`
	Value         float64 `json:"value"`
	LevelIndex    int     `json:"level_index"`
	LatitudeIndex int     `json:"latitude_index"`
}

// Boundaries is the Hadley cell extent together with the stream function it
// was derived from.
type Boundaries struct {
	North     float64 // NaN when not found
	South     float64 // NaN when not found
	NorthStar CriticalPoint
	SouthStar CriticalPoint
	Crossings []float64 // ascending
	StreamFunction
}

// Detector finds Hadley cell boundaries from wind fields.
type Detector struct {
	engine *Engine
}

// NewDetector creates a Detector backed by engine.
func NewDetector(engine *Engine) *Detector {
	return &Detector{engine: engine}
}

// Detect computes the stream function and derives the cell boundaries.
func (d *Detector) Detect(u, v *sparse.DenseArray, lat, lvl Axis, global bool) (Boundaries, error) {
	sf, err := d.engine.Compute(u, v, lat, lvl, global)
	if err != nil {
		return Boundaries{}, err
	}
	return DetectBoundaries(sf)
}

// DetectBoundaries applies the extremum and zero-crossing search to a
// computed stream function.
func DetectBoundaries(sf StreamFunction) (Boundaries, error) {
	midBand := indicesWhere(sf.Pressure, InMidBand)
	lowBand := indicesWhere(sf.Pressure, InLowerBand)
	if len(midBand) == 0 {
		return Boundaries{}, fmt.Errorf("detect boundaries: no pressures between 700 and 400 hPa: %w", ErrDomain)
	}
	if len(lowBand) == 0 {
		return Boundaries{}, fmt.Errorf("detect boundaries: no pressures at or above 800 hPa: %w", ErrDomain)
	}

	north := indicesWhere(sf.Latitude, func(lat float64) bool { return lat > 0 })
	south := indicesWhere(sf.Latitude, func(lat float64) bool { return lat <= 0 })
	if len(north) == 0 {
		return Boundaries{}, fmt.Errorf("detect boundaries: no points in northern hemisphere: %w", ErrDomain)
	}
	if len(south) == 0 {
		return Boundaries{}, fmt.Errorf("detect boundaries: no points in southern hemisphere: %w", ErrDomain)
	}

	nStar, ok := extremum(sf.Psi, lowBand, north, func(a, b float64) bool { return a > b })
	if !ok {
		return Boundaries{}, fmt.Errorf("detect boundaries: no finite stream function north of the equator: %w", ErrDomain)
	}
	sStar, ok := extremum(sf.Psi, lowBand, south, func(a, b float64) bool { return a < b })
	if !ok {
		return Boundaries{}, fmt.Errorf("detect boundaries: no finite stream function south of the equator: %w", ErrDomain)
	}
	nStar.Latitude, nStar.Pressure = sf.Latitude[nStar.LatitudeIndex], sf.Pressure[nStar.LevelIndex]
	sStar.Latitude, sStar.Pressure = sf.Latitude[sStar.LatitudeIndex], sf.Pressure[sStar.LevelIndex]

	crossings := NormalizeCrossings(ZeroCrossings(sf.Latitude, bandMean(sf.Psi, midBand)))
	northEdge, southEdge := SelectBoundaries(crossings, nStar.Latitude, sStar.Latitude)

	return Boundaries{
		North:          northEdge,
		South:          southEdge,
		NorthStar:      nStar,
		SouthStar:      sStar,
		Crossings:      crossings,
		StreamFunction: sf,
	}, nil
}

// ZeroCrossings returns the x positions where y changes sign, linearly
// interpolated between the bracketing samples. An exact zero contributes its
// own x, except at the final sample.
func ZeroCrossings(x, y []float64) []float64 {
	var cross []float64
	for i := 0; i < len(x)-1; i++ {
		switch {
		case y[i] == 0:
			cross = append(cross, x[i])
		case (y[i] > 0 && y[i+1] < 0) || (y[i] < 0 && y[i+1] > 0):
			cross = append(cross, x[i]-y[i]*(x[i+1]-x[i])/(y[i+1]-y[i]))
		}
	}
	return cross
}

// NormalizeCrossings returns crossings in ascending order of first and last
// element; a descending sequence is reversed.
func NormalizeCrossings(cross []float64) []float64 {
	out := slices.Clone(cross)
	if len(out) > 0 && out[0] > out[len(out)-1] {
		slices.Reverse(out)
	}
	return out
}

// SelectBoundaries picks the first crossing poleward of the northern critical
// latitude and the last crossing poleward of the southern one. Missing
// boundaries are NaN.
func SelectBoundaries(cross []float64, northStar, southStar float64) (north, south float64) {
	cross = NormalizeCrossings(cross)
	north, south = math.NaN(), math.NaN()
	for _, c := range cross {
		if c > northStar {
			north = c
			break
		}
	}
	for i := len(cross) - 1; i >= 0; i-- {
		if cross[i] < southStar {
			south = cross[i]
			break
		}
	}
	return north, south
}

func indicesWhere(values []float64, keep func(float64) bool) []int {
	var idx []int
	for i, v := range values {
		if keep(v) {
			idx = append(idx, i)
		}
	}
	return idx
}

// extremum scans rows × cols of psi and keeps the first value that beats all
// earlier ones under better. NaN is skipped.
func extremum(psi *sparse.DenseArray, rows, cols []int, better func(a, b float64) bool) (CriticalPoint, bool) {
	var best CriticalPoint
	found := false
	for _, i := range rows {
		for _, j := range cols {
			x := psi.Get(i, j)
			if math.IsNaN(x) {
				continue
			}
			if !found || better(x, best.Value) {
				best = CriticalPoint{Value: x, LevelIndex: i, LatitudeIndex: j}
				found = true
			}
		}
	}
	return best, found
}

// bandMean averages psi over rows for each latitude, skipping NaN.
func bandMean(psi *sparse.DenseArray, rows []int) []float64 {
	nlat := psi.Shape[1]
	out := make([]float64, nlat)
	for j := range nlat {
		var sum float64
		var n int
		for _, i := range rows {
			if x := psi.Get(i, j); !math.IsNaN(x) {
				sum += x
				n++
			}
		}
		if n == 0 {
			out[j] = math.NaN()
			continue
		}
		out[j] = sum / float64(n)
	}
	return out
}
