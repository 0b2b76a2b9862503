package domain

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// NewWindField allocates a zeroed [level, latitude, longitude] wind array.
func NewWindField(levels, latitudes, longitudes int) *sparse.DenseArray {
	return sparse.ZerosDense(levels, latitudes, longitudes)
}

// Axis is a latitude or pressure coordinate given per grid index (1-D) or
// already broadcast to [level, latitude] (2-D).
type Axis struct {
	data *sparse.DenseArray
}

// Axis1D wraps one coordinate value per grid index.
func Axis1D(values []float64) Axis {
	d := sparse.ZerosDense(len(values))
	copy(d.Elements, values)
	return Axis{data: d}
}

// AxisGrid wraps a coordinate already broadcast to [level, latitude]. Rows
// must all have the same length.
func AxisGrid(rows [][]float64) (Axis, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Axis{}, fmt.Errorf("axis grid: empty: %w", ErrShape)
	}
	d := sparse.ZerosDense(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return Axis{}, fmt.Errorf("axis grid: row %d has %d values, want %d: %w", i, len(row), len(rows[0]), ErrShape)
		}
		copy(d.Elements[i*len(row):], row)
	}
	return axisFromDense(d)
}

// axisFromDense wraps a 1-D or 2-D dense array.
func axisFromDense(d *sparse.DenseArray) (Axis, error) {
	if d == nil || len(d.Shape) == 0 || len(d.Shape) > 2 {
		return Axis{}, fmt.Errorf("axis: want 1 or 2 dimensions: %w", ErrShape)
	}
	return Axis{data: d}, nil
}

// Dims reports 1 or 2, or 0 for the zero Axis.
func (a Axis) Dims() int {
	if a.data == nil {
		return 0
	}
	return len(a.data.Shape)
}

// Len is the number of values along the first dimension.
func (a Axis) Len() int {
	if a.data == nil {
		return 0
	}
	return a.data.Shape[0]
}

// Values returns the underlying values in row-major order.
func (a Axis) Values() []float64 {
	if a.data == nil {
		return nil
	}
	return a.data.Elements
}

// Orientation tags how the first two wind dimensions map onto level and
// latitude.
type Orientation int

const (
	// LevelMajor wind is [level, latitude, longitude].
	LevelMajor Orientation = iota
	// LatitudeMajor wind is [latitude, level, longitude].
	LatitudeMajor
)

func (o Orientation) String() string {
	if o == LatitudeMajor {
		return "latitude-major"
	}
	return "level-major"
}

// Layout is the canonical grid description: both coordinates broadcast to
// [Levels, Latitudes] and the orientation the input wind arrays were found in.
type Layout struct {
	Orientation Orientation
	Levels      int
	Latitudes   int
	Longitudes  int
	Lat         *sparse.DenseArray // [Levels, Latitudes], degrees
	Lvl         *sparse.DenseArray // [Levels, Latitudes], Pa
}

// Canonicalize decides the orientation of a 3-D wind array from its
// coordinates and broadcasts both coordinates to [level, latitude].
//
// A 1-D latitude indexes the second wind dimension when the lengths agree;
// only when it does not and the first dimension matches is the wind taken as
// latitude-major. A 2-D latitude must already match [dim0, dim1].
func Canonicalize(wind *sparse.DenseArray, lat, lvl Axis) (Layout, error) {
	if wind == nil || len(wind.Shape) != 3 {
		return Layout{}, fmt.Errorf("canonicalize: wind must be 3-D: %w", ErrShape)
	}
	d0, d1, d2 := wind.Shape[0], wind.Shape[1], wind.Shape[2]

	layout := Layout{Orientation: LevelMajor, Longitudes: d2}
	switch lat.Dims() {
	case 1:
		switch {
		case lat.Len() == d1:
			layout.Levels, layout.Latitudes = d0, d1
		case lat.Len() == d0:
			layout.Orientation = LatitudeMajor
			layout.Levels, layout.Latitudes = d1, d0
		default:
			return Layout{}, fmt.Errorf("canonicalize: %d latitudes match neither wind dimension %v: %w", lat.Len(), wind.Shape[:2], ErrShape)
		}
		layout.Lat = broadcastRow(lat.Values(), layout.Levels)
	case 2:
		if lat.data.Shape[0] != d0 || lat.data.Shape[1] != d1 {
			return Layout{}, fmt.Errorf("canonicalize: latitude grid %v does not match wind %v: %w", lat.data.Shape, wind.Shape[:2], ErrShape)
		}
		layout.Levels, layout.Latitudes = d0, d1
		layout.Lat = lat.data
	default:
		return Layout{}, fmt.Errorf("canonicalize: latitude missing: %w", ErrShape)
	}

	switch lvl.Dims() {
	case 1:
		if lvl.Len() != layout.Levels {
			return Layout{}, fmt.Errorf("canonicalize: %d pressure levels, wind has %d: %w", lvl.Len(), layout.Levels, ErrShape)
		}
		layout.Lvl = broadcastColumn(lvl.Values(), layout.Latitudes)
	case 2:
		if lvl.data.Shape[0] != layout.Levels || lvl.data.Shape[1] != layout.Latitudes {
			return Layout{}, fmt.Errorf("canonicalize: pressure grid %v, want [%d %d]: %w", lvl.data.Shape, layout.Levels, layout.Latitudes, ErrShape)
		}
		layout.Lvl = lvl.data
	default:
		return Layout{}, fmt.Errorf("canonicalize: pressure missing: %w", ErrShape)
	}

	if layout.Levels < 2 {
		return Layout{}, fmt.Errorf("canonicalize: need at least 2 pressure levels, have %d: %w", layout.Levels, ErrShape)
	}
	return layout, nil
}

// LevelMajorWind returns w in [level, latitude, longitude] order, transposing
// the first two dimensions for latitude-major input.
func (l Layout) LevelMajorWind(w *sparse.DenseArray) (*sparse.DenseArray, error) {
	if w == nil || len(w.Shape) != 3 || w.Shape[2] != l.Longitudes {
		return nil, fmt.Errorf("wind %v does not fit layout: %w", shapeOf(w), ErrShape)
	}
	if l.Orientation == LevelMajor {
		if w.Shape[0] != l.Levels || w.Shape[1] != l.Latitudes {
			return nil, fmt.Errorf("wind %v does not fit layout: %w", w.Shape, ErrShape)
		}
		return w, nil
	}
	if w.Shape[0] != l.Latitudes || w.Shape[1] != l.Levels {
		return nil, fmt.Errorf("wind %v does not fit layout: %w", w.Shape, ErrShape)
	}
	out := sparse.ZerosDense(l.Levels, l.Latitudes, l.Longitudes)
	for k := 0; k < l.Levels; k++ {
		for j := 0; j < l.Latitudes; j++ {
			for i := 0; i < l.Longitudes; i++ {
				out.Set(w.Get(j, k, i), k, j, i)
			}
		}
	}
	return out, nil
}

func broadcastRow(row []float64, rows int) *sparse.DenseArray {
	out := sparse.ZerosDense(rows, len(row))
	for k := 0; k < rows; k++ {
		copy(out.Elements[k*len(row):], row)
	}
	return out
}

func broadcastColumn(col []float64, cols int) *sparse.DenseArray {
	out := sparse.ZerosDense(len(col), cols)
	for k, v := range col {
		for j := 0; j < cols; j++ {
			out.Set(v, k, j)
		}
	}
	return out
}

func shapeOf(d *sparse.DenseArray) []int {
	if d == nil {
		return nil
	}
	return d.Shape
}
