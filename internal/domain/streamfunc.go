package domain

import (
	"fmt"
	"math"
	"slices"

	"github.com/ctessum/sparse"
)

const (
	// EarthRadius is the mean radius of the Earth in meters.
	EarthRadius = 6.371009e6
	// Gravity is standard gravitational acceleration in m/s².
	Gravity = 9.80665
)

// WindDecomposer splits a wind field into rotational and irrotational parts.
type WindDecomposer interface {
	// IrrotationalMeridional returns the irrotational meridional wind for
	// [level, latitude, longitude] fields u and v. lat must be ascending.
	IrrotationalMeridional(u, v *sparse.DenseArray, lat []float64) (*sparse.DenseArray, error)
}

// StreamFunction is the zonal-mean meridional mass stream function on
// [len(Pressure), len(Latitude)].
type StreamFunction struct {
	Psi      *sparse.DenseArray // kg/s
	Pressure []float64          // layer midpoints, Pa, ascending
	Latitude []float64          // degrees
}

// Engine computes stream functions. The zero Engine handles global grids
// only.
type Engine struct {
	decomposer WindDecomposer
}

// NewEngine creates an Engine. A nil decomposer limits it to global grids.
func NewEngine(decomposer WindDecomposer) *Engine {
	return &Engine{decomposer: decomposer}
}

// Compute integrates the zonal-mean meridional mass flux over pressure.
// With global false, v is first replaced by its irrotational component, which
// needs a decomposer.
func (e *Engine) Compute(u, v *sparse.DenseArray, lat, lvl Axis, global bool) (StreamFunction, error) {
	if u == nil || v == nil || !slices.Equal(u.Shape, v.Shape) {
		return StreamFunction{}, fmt.Errorf("compute stream function: u %v and v %v differ: %w", shapeOf(u), shapeOf(v), ErrShape)
	}
	if !global && e.decomposer == nil {
		return StreamFunction{}, fmt.Errorf("compute stream function: zonal subset needs a wind decomposer: %w", ErrConfiguration)
	}

	layout, err := Canonicalize(v, lat, lvl)
	if err != nil {
		return StreamFunction{}, fmt.Errorf("compute stream function: %w", err)
	}
	vv, err := layout.LevelMajorWind(v)
	if err != nil {
		return StreamFunction{}, fmt.Errorf("compute stream function: %w", err)
	}

	if !global {
		uu, err := layout.LevelMajorWind(u)
		if err != nil {
			return StreamFunction{}, fmt.Errorf("compute stream function: %w", err)
		}
		vv, err = e.irrotational(uu, vv, layout)
		if err != nil {
			return StreamFunction{}, fmt.Errorf("compute stream function: %w", err)
		}
	}

	vbar := ZonalMean(vv)

	// Align the latitude grid with the L-1 layers.
	latGrid := dropLastRow(layout.Lat)
	lvlGrid := layout.Lvl

	if lvlGrid.Get(0, 0) > lvlGrid.Get(layout.Levels-1, 0) {
		lvlGrid = reverseRows(lvlGrid)
		vbar = reverseRows(vbar)
	}

	layers, nlat := layout.Levels-1, layout.Latitudes
	column := make([]float64, layout.Levels)
	for i := range column {
		column[i] = lvlGrid.Get(i, 0)
	}
	pressure := LayerPressures(column)

	psi := sparse.ZerosDense(layers, nlat)
	for j := range nlat {
		var cum float64
		for i := range layers {
			dp := lvlGrid.Get(i+1, j) - lvlGrid.Get(i, j)
			dv := (vbar.Get(i+1, j) + vbar.Get(i, j)) / 2
			cum += dv * dp
			scale := 2 * math.Pi * EarthRadius * math.Cos(latGrid.Get(i, j)*math.Pi/180) / Gravity
			psi.Set(scale*cum, i, j)
		}
	}

	latitude := make([]float64, nlat)
	copy(latitude, latGrid.Elements[:nlat])

	return StreamFunction{Psi: psi, Pressure: pressure, Latitude: latitude}, nil
}

// LayerPressures returns the midpoint of each layer between adjacent
// pressure levels, ascending whatever the order of levels.
func LayerPressures(levels []float64) []float64 {
	if len(levels) < 2 {
		return nil
	}
	asc := slices.Clone(levels)
	if asc[0] > asc[len(asc)-1] {
		slices.Reverse(asc)
	}
	mid := make([]float64, len(asc)-1)
	for i := range mid {
		mid[i] = (asc[i] + asc[i+1]) / 2
	}
	return mid
}

// irrotational hands the decomposer ascending latitudes and restores the
// caller's order on the way back.
func (e *Engine) irrotational(u, v *sparse.DenseArray, layout Layout) (*sparse.DenseArray, error) {
	lat := make([]float64, layout.Latitudes)
	copy(lat, layout.Lat.Elements[:layout.Latitudes])

	descending := lat[0] > lat[len(lat)-1]
	if descending {
		slices.Reverse(lat)
		u = reverseLatitudes(u)
		v = reverseLatitudes(v)
	}

	chi, err := e.decomposer.IrrotationalMeridional(u, v, lat)
	if err != nil {
		return nil, fmt.Errorf("decompose wind: %w", err)
	}
	if !slices.Equal(chi.Shape, v.Shape) {
		return nil, fmt.Errorf("decompose wind: returned %v for %v: %w", chi.Shape, v.Shape, ErrShape)
	}

	if descending {
		chi = reverseLatitudes(chi)
	}
	return chi, nil
}

// ZonalMean averages a [level, latitude, longitude] field over longitude,
// skipping NaN. A column with no finite samples averages to NaN.
func ZonalMean(w *sparse.DenseArray) *sparse.DenseArray {
	nlvl, nlat, nlon := w.Shape[0], w.Shape[1], w.Shape[2]
	out := sparse.ZerosDense(nlvl, nlat)
	for k := range nlvl {
		for j := range nlat {
			var sum float64
			var n int
			for i := range nlon {
				if x := w.Get(k, j, i); !math.IsNaN(x) {
					sum += x
					n++
				}
			}
			if n == 0 {
				out.Set(math.NaN(), k, j)
				continue
			}
			out.Set(sum/float64(n), k, j)
		}
	}
	return out
}

func dropLastRow(d *sparse.DenseArray) *sparse.DenseArray {
	rows, cols := d.Shape[0]-1, d.Shape[1]
	out := sparse.ZerosDense(rows, cols)
	copy(out.Elements, d.Elements[:rows*cols])
	return out
}

func reverseRows(d *sparse.DenseArray) *sparse.DenseArray {
	rows, cols := d.Shape[0], d.Shape[1]
	out := sparse.ZerosDense(rows, cols)
	for i := range rows {
		copy(out.Elements[i*cols:(i+1)*cols], d.Elements[(rows-1-i)*cols:(rows-i)*cols])
	}
	return out
}

func reverseLatitudes(w *sparse.DenseArray) *sparse.DenseArray {
	nlvl, nlat, nlon := w.Shape[0], w.Shape[1], w.Shape[2]
	out := sparse.ZerosDense(nlvl, nlat, nlon)
	for k := range nlvl {
		for j := range nlat {
			for i := range nlon {
				out.Set(w.Get(k, j, i), k, nlat-1-j, i)
			}
		}
	}
	return out
}
