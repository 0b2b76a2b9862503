// Package gridio reads and writes pressure-level wind grids stored as
// netCDF classic files.
package gridio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/couchcryptid/hadley-cell/internal/domain"
)

// ErrVariableMissing is returned when a named variable is not in the file.
var ErrVariableMissing = errors.New("variable not in file")

// Options controls how a file is turned into a Grid.
type Options struct {
	Variables  domain.VariableNames
	TimeIndex  *int    // select one step of a leading time dimension
	TimeMean   bool    // average over a leading time dimension, skipping NaN
	LevelScale float64 // multiplies stored levels; 0 means hPa to Pa
	Domain     *domain.LonDomain
}

// OptionsFor builds load options from a job request.
func OptionsFor(job domain.JobRequest) Options {
	return Options{
		Variables:  job.Variables,
		TimeIndex:  job.TimeIndex,
		TimeMean:   job.TimeMean,
		LevelScale: job.LevelScale,
		Domain:     job.Domain,
	}
}

// Grid holds wind on pressure levels. Wind dimensions keep the order of the
// file with longitude last.
type Grid struct {
	U, V      *sparse.DenseArray
	Latitude  []float64 // degrees
	Longitude []float64 // degrees east
	Level     []float64 // Pa after Load
	Global    bool
}

// Load reads u, v and their coordinates from the netCDF file at path.
func Load(path string, opts Options) (Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return Grid{}, fmt.Errorf("open grid: %w", err)
	}
	defer f.Close()

	nc, err := cdf.Open(f)
	if err != nil {
		return Grid{}, fmt.Errorf("open grid %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		return Grid{}, fmt.Errorf("open grid %s: %w", path, err)
	}
	return decode(nc, int(nc.Header.NumRecs(fi.Size())), opts)
}

// decode reads a grid from nc. records is the number of complete records
// stored along the unlimited dimension, if the file has one.
func decode(nc *cdf.File, records int, opts Options) (Grid, error) {
	names := opts.Variables.WithDefaults()
	if opts.TimeIndex != nil && opts.TimeMean {
		return Grid{}, fmt.Errorf("load grid: time index and time mean are mutually exclusive: %w", domain.ErrConfiguration)
	}

	lat, err := readAll(nc, names.Latitude)
	if err != nil {
		return Grid{}, err
	}
	lon, err := readAll(nc, names.Longitude)
	if err != nil {
		return Grid{}, err
	}
	lvl, err := readAll(nc, names.Level)
	if err != nil {
		return Grid{}, err
	}
	scale := opts.LevelScale
	if scale == 0 {
		scale = domain.DefaultLevelScale
	}
	for i := range lvl.Elements {
		lvl.Elements[i] *= scale
	}

	u, err := readWind(nc, names.U, records, opts)
	if err != nil {
		return Grid{}, err
	}
	v, err := readWind(nc, names.V, records, opts)
	if err != nil {
		return Grid{}, err
	}
	if u.Shape[2] != len(lon.Elements) {
		return Grid{}, fmt.Errorf("load grid: %d longitudes, wind has %d: %w", len(lon.Elements), u.Shape[2], domain.ErrShape)
	}
	for i, n := range u.Shape {
		if v.Shape[i] != n {
			return Grid{}, fmt.Errorf("load grid: %s %v and %s %v differ: %w", names.U, u.Shape, names.V, v.Shape, domain.ErrShape)
		}
	}

	g := Grid{
		U:         u,
		V:         v,
		Latitude:  lat.Elements,
		Longitude: lon.Elements,
		Level:     lvl.Elements,
		Global:    opts.Domain == nil,
	}
	if opts.Domain != nil {
		g = g.Subset(*opts.Domain)
	}
	return g, nil
}

// Subset keeps the longitudes inside d and marks the grid regional. An empty
// selection leaves the wind untouched.
func (g Grid) Subset(d domain.LonDomain) Grid {
	var keep []int
	for i, lon := range g.Longitude {
		if d.Contains(lon) {
			keep = append(keep, i)
		}
	}
	g.Global = false
	if len(keep) == 0 || len(keep) == len(g.Longitude) {
		return g
	}

	lon := make([]float64, len(keep))
	for n, i := range keep {
		lon[n] = g.Longitude[i]
	}
	g.Longitude = lon
	g.U = selectLongitudes(g.U, keep)
	g.V = selectLongitudes(g.V, keep)
	return g
}

func selectLongitudes(w *sparse.DenseArray, keep []int) *sparse.DenseArray {
	d0, d1 := w.Shape[0], w.Shape[1]
	out := sparse.ZerosDense(d0, d1, len(keep))
	for a := range d0 {
		for b := range d1 {
			for n, i := range keep {
				out.Set(w.Get(a, b, i), a, b, n)
			}
		}
	}
	return out
}

// readWind returns a 3-D wind variable, reducing a leading time dimension
// when the variable has four. A time dimension stored as the unlimited
// record dimension has header length zero and takes its length from records.
func readWind(nc *cdf.File, name string, records int, opts Options) (*sparse.DenseArray, error) {
	dims := append([]int(nil), nc.Header.Lengths(name)...)
	switch {
	case len(dims) == 0:
		return nil, fmt.Errorf("read %s: %w", name, ErrVariableMissing)
	case len(dims) == 3:
		return readAll(nc, name)
	case len(dims) != 4:
		return nil, fmt.Errorf("read %s: %d dimensions, want 3 or 4: %w", name, len(dims), domain.ErrShape)
	}

	if dims[0] == 0 {
		if records <= 0 {
			return nil, fmt.Errorf("read %s: no complete records: %w", name, domain.ErrShape)
		}
		dims[0] = records
	}
	switch {
	case opts.TimeIndex != nil:
		t := *opts.TimeIndex
		if t < 0 || t >= dims[0] {
			return nil, fmt.Errorf("read %s: time index %d outside [0, %d): %w", name, t, dims[0], domain.ErrShape)
		}
		return readSlab(nc, name, dims, t)
	case opts.TimeMean:
		return timeMean(nc, name, dims)
	case dims[0] == 1:
		return readSlab(nc, name, dims, 0)
	default:
		return nil, fmt.Errorf("read %s: %d time steps, choose a time index or the time mean: %w", name, dims[0], domain.ErrShape)
	}
}

func readSlab(nc *cdf.File, name string, dims []int, t int) (*sparse.DenseArray, error) {
	start := []int{t, 0, 0, 0}
	end := []int{t + 1, dims[1], dims[2], dims[3]}
	values, err := read(nc, name, start, end, dims[1]*dims[2]*dims[3])
	if err != nil {
		return nil, err
	}
	out := sparse.ZerosDense(dims[1:]...)
	copy(out.Elements, values)
	return out, nil
}

func timeMean(nc *cdf.File, name string, dims []int) (*sparse.DenseArray, error) {
	slabs := make([]*sparse.DenseArray, dims[0])
	for t := range dims[0] {
		slab, err := readSlab(nc, name, dims, t)
		if err != nil {
			return nil, err
		}
		slabs[t] = slab
	}
	return nanMean(slabs), nil
}

func nanMean(slabs []*sparse.DenseArray) *sparse.DenseArray {
	sum := sparse.ZerosDense(slabs[0].Shape...)
	count := make([]int, len(sum.Elements))
	for _, slab := range slabs {
		for i, x := range slab.Elements {
			if !math.IsNaN(x) {
				sum.Elements[i] += x
				count[i]++
			}
		}
	}
	for i, n := range count {
		if n == 0 {
			sum.Elements[i] = math.NaN()
			continue
		}
		sum.Elements[i] /= float64(n)
	}
	return sum
}

func readAll(nc *cdf.File, name string) (*sparse.DenseArray, error) {
	dims := nc.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("read %s: %w", name, ErrVariableMissing)
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	values, err := read(nc, name, nil, nil, -1)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, fmt.Errorf("read %s: got %d values for %v: %w", name, len(values), dims, domain.ErrShape)
	}
	out := sparse.ZerosDense(dims...)
	copy(out.Elements, values)
	return out, nil
}

// read decodes a hyperslab to float64, applying the CF packing and missing
// value attributes.
func read(nc *cdf.File, name string, start, end []int, n int) ([]float64, error) {
	r := nc.Reader(name, start, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var raw []float64
	switch b := buf.(type) {
	case []float64:
		raw = b
	case []float32:
		raw = widen(b)
	case []int32:
		raw = widen(b)
	case []int16:
		raw = widen(b)
	case []int8:
		raw = widen(b)
	case []uint8:
		raw = widen(b)
	default:
		return nil, fmt.Errorf("read %s: unsupported type %T: %w", name, buf, domain.ErrShape)
	}

	p := packingOf(nc.Header, name)
	for i, x := range raw {
		raw[i] = p.unpack(x)
	}
	return raw, nil
}

type number interface {
	~float32 | ~int32 | ~int16 | ~int8 | ~uint8
}

func widen[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, x := range in {
		out[i] = float64(x)
	}
	return out
}

// packing holds the CF attributes that map stored values to physical ones.
type packing struct {
	scale, offset float64
	missing       []float64
}

func packingOf(h *cdf.Header, name string) packing {
	p := packing{scale: 1}
	if s, ok := attrFloat(h.GetAttribute(name, "scale_factor")); ok {
		p.scale = s
	}
	if o, ok := attrFloat(h.GetAttribute(name, "add_offset")); ok {
		p.offset = o
	}
	for _, a := range []string{"_FillValue", "missing_value"} {
		if m, ok := attrFloat(h.GetAttribute(name, a)); ok {
			p.missing = append(p.missing, m)
		}
	}
	return p
}

func (p packing) unpack(x float64) float64 {
	for _, m := range p.missing {
		if x == m {
			return math.NaN()
		}
	}
	return x*p.scale + p.offset
}

func attrFloat(v any) (float64, bool) {
	switch a := v.(type) {
	case []float64:
		if len(a) > 0 {
			return a[0], true
		}
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int16:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int8:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	}
	return 0, false
}
