package gridio

import (
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/couchcryptid/hadley-cell/internal/domain"
)

// packedFill marks missing values in int16 packed output.
const packedFill int16 = math.MinInt16

// Dataset is a grid as stored on disk. Wind is [level, latitude, longitude]
// or [time, level, latitude, longitude]; Level is in file units.
type Dataset struct {
	Variables domain.VariableNames
	U, V      *sparse.DenseArray
	Latitude  []float64
	Longitude []float64
	Level     []float64
	// Packed stores wind as int16 with scale_factor, add_offset and
	// _FillValue instead of float32.
	Packed bool
}

// Write creates a netCDF classic file at path holding ds.
func Write(path string, ds Dataset) error {
	names := ds.Variables.WithDefaults()
	if ds.U == nil || ds.V == nil {
		return fmt.Errorf("write grid: wind missing: %w", domain.ErrShape)
	}
	shape := ds.U.Shape
	if len(shape) != 3 && len(shape) != 4 {
		return fmt.Errorf("write grid: wind %v must be 3-D or 4-D: %w", shape, domain.ErrShape)
	}
	for i, n := range shape {
		if ds.V.Shape[i] != n {
			return fmt.Errorf("write grid: u %v and v %v differ: %w", shape, ds.V.Shape, domain.ErrShape)
		}
	}
	spatial := shape[len(shape)-3:]
	if spatial[0] != len(ds.Level) || spatial[1] != len(ds.Latitude) || spatial[2] != len(ds.Longitude) {
		return fmt.Errorf("write grid: wind %v does not match %d levels, %d latitudes, %d longitudes: %w",
			shape, len(ds.Level), len(ds.Latitude), len(ds.Longitude), domain.ErrShape)
	}

	dimNames := []string{names.Level, names.Latitude, names.Longitude}
	dimLengths := []int{len(ds.Level), len(ds.Latitude), len(ds.Longitude)}
	windDims := dimNames
	if len(shape) == 4 {
		dimNames = append([]string{"time"}, dimNames...)
		dimLengths = append([]int{shape[0]}, dimLengths...)
		windDims = dimNames
	}

	h := cdf.NewHeader(dimNames, dimLengths)
	h.AddAttribute("", "Conventions", "CF-1.6")

	h.AddVariable(names.Level, []string{names.Level}, []float32{0})
	h.AddAttribute(names.Level, "units", "hPa")
	h.AddVariable(names.Latitude, []string{names.Latitude}, []float32{0})
	h.AddAttribute(names.Latitude, "units", "degrees_north")
	h.AddVariable(names.Longitude, []string{names.Longitude}, []float32{0})
	h.AddAttribute(names.Longitude, "units", "degrees_east")

	winds := []struct {
		name string
		data *sparse.DenseArray
		long string
		pack packing
	}{
		{name: names.U, data: ds.U, long: "zonal wind"},
		{name: names.V, data: ds.V, long: "meridional wind"},
	}
	for i := range winds {
		w := &winds[i]
		if ds.Packed {
			w.pack = packingFor(w.data.Elements)
			h.AddVariable(w.name, windDims, []int16{0})
			h.AddAttribute(w.name, "scale_factor", []float64{w.pack.scale})
			h.AddAttribute(w.name, "add_offset", []float64{w.pack.offset})
			h.AddAttribute(w.name, "_FillValue", []int16{packedFill})
		} else {
			h.AddVariable(w.name, windDims, []float32{0})
		}
		h.AddAttribute(w.name, "long_name", w.long)
		h.AddAttribute(w.name, "units", "m s**-1")
	}
	h.Define()

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write grid: %w", err)
	}
	defer ff.Close()

	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("write grid %s: %w", path, err)
	}
	if err := writeVar(f, names.Level, float32s(ds.Level)); err != nil {
		return err
	}
	if err := writeVar(f, names.Latitude, float32s(ds.Latitude)); err != nil {
		return err
	}
	if err := writeVar(f, names.Longitude, float32s(ds.Longitude)); err != nil {
		return err
	}
	for _, w := range winds {
		var data any = float32s(w.data.Elements)
		if ds.Packed {
			data = w.pack.encode(w.data.Elements)
		}
		if err := writeVar(f, w.name, data); err != nil {
			return err
		}
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		return fmt.Errorf("write grid %s: %w", path, err)
	}
	return nil
}

func writeVar(f *cdf.File, name string, data any) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func float32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, x := range in {
		out[i] = float32(x)
	}
	return out
}

// packingFor spreads the finite range of values over the int16 range above
// the fill value.
func packingFor(values []float64) packing {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		lo, hi = min(lo, x), max(hi, x)
	}
	if lo > hi {
		return packing{scale: 1, missing: []float64{float64(packedFill)}}
	}
	scale := (hi - lo) / 65532
	if scale == 0 {
		scale = 1
	}
	return packing{
		scale:   scale,
		offset:  (hi + lo) / 2,
		missing: []float64{float64(packedFill)},
	}
}

func (p packing) encode(values []float64) []int16 {
	out := make([]int16, len(values))
	for i, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out[i] = packedFill
			continue
		}
		out[i] = int16(math.Round((x - p.offset) / p.scale))
	}
	return out
}
