// Command gensynth writes a synthetic netCDF wind grid with a known Hadley
// circulation. The meridional wind changes sign at the equator and at
// ±edge, so the detected boundaries should sit at ±edge.
//
// Usage:
//
//	go run ./cmd/gensynth -out data/synthetic.nc -edge 30 -nlat 73 -nlon 144
//	go run ./cmd/gensynth -out data/packed.nc -time 12 -packed
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/hadley-cell/internal/domain"
	"github.com/couchcryptid/hadley-cell/internal/gridio"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output netCDF path")
	edge := flag.Float64("edge", 30, "boundary latitude of both cells in degrees")
	nlat := flag.Int("nlat", 73, "number of latitudes from -90 to 90")
	nlon := flag.Int("nlon", 144, "number of longitudes from 0")
	levelList := flag.String("levels", "1000,925,850,700,600,500,400,300,250,200,150,100", "pressure levels in hPa")
	steps := flag.Int("time", 0, "number of time steps (0 writes 3-D variables)")
	amplitude := flag.Float64("amp", 2, "peak meridional wind in m/s")
	packed := flag.Bool("packed", false, "store wind as packed int16")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *edge <= 0 || *edge >= 90 {
		return fmt.Errorf("edge must be within (0, 90), got %g", *edge)
	}
	if *nlat < 3 || *nlon < 1 {
		return fmt.Errorf("grid too small: %d latitudes, %d longitudes", *nlat, *nlon)
	}
	levels, err := parseLevels(*levelList)
	if err != nil {
		return err
	}

	lats := make([]float64, *nlat)
	for j := range lats {
		lats[j] = -90 + 180*float64(j)/float64(*nlat-1)
	}
	lons := make([]float64, *nlon)
	for i := range lons {
		lons[i] = 360 * float64(i) / float64(*nlon)
	}

	n := max(*steps, 1)
	u, v := windFields(n, levels, lats, lons, *edge, *amplitude)
	ds := gridio.Dataset{
		Variables: domain.DefaultVariableNames(),
		Latitude:  lats,
		Longitude: lons,
		Level:     levels,
		Packed:    *packed,
	}
	if *steps == 0 {
		ds.U, ds.V = u[0], v[0]
	} else {
		ds.U, ds.V = stack(u), stack(v)
	}
	if err := gridio.Write(*out, ds); err != nil {
		return err
	}
	log.Printf("wrote %s: %d levels, %d latitudes, %d longitudes, %d steps, edge ±%g",
		*out, len(levels), len(lats), len(lons), *steps, *edge)
	return nil
}

// cellShape is positive between the equator and edge in the north, negative
// poleward of it, and mirrored in the south.
func cellShape(lat, edge float64) float64 {
	a := math.Abs(lat)
	sign := math.Copysign(1, lat)
	if a < edge {
		return math.Sin(math.Pi * lat / edge)
	}
	return -sign * math.Sin(math.Pi*(a-edge)/(90-edge))
}

// windFields builds one [level, lat, lon] pair per time step. Steps differ in
// amplitude only, so every step and their mean share the same boundaries.
func windFields(steps int, levels, lats, lons []float64, edge, amplitude float64) (u, v []*sparse.DenseArray) {
	for n := range steps {
		scale := amplitude * (1 + 0.25*math.Sin(2*math.Pi*float64(n)/float64(max(steps, 2))))
		us := domain.NewWindField(len(levels), len(lats), len(lons))
		vs := domain.NewWindField(len(levels), len(lats), len(lons))
		for k := range levels {
			for j, lat := range lats {
				jet := 20 * math.Cos(lat*math.Pi/180) * float64(k+1) / float64(len(levels))
				for i := range lons {
					us.Set(jet, k, j, i)
					vs.Set(scale*cellShape(lat, edge), k, j, i)
				}
			}
		}
		u = append(u, us)
		v = append(v, vs)
	}
	return u, v
}

// stack joins per-step fields into [time, level, lat, lon].
func stack(steps []*sparse.DenseArray) *sparse.DenseArray {
	shape := append([]int{len(steps)}, steps[0].Shape...)
	out := sparse.ZerosDense(shape...)
	size := len(steps[0].Elements)
	for n, s := range steps {
		copy(out.Elements[n*size:(n+1)*size], s.Elements)
	}
	return out
}

func parseLevels(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	levels := make([]float64, 0, len(parts))
	for _, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || x <= 0 {
			return nil, fmt.Errorf("invalid level %q", p)
		}
		levels = append(levels, x)
	}
	if len(levels) < 2 {
		return nil, fmt.Errorf("need at least two levels, got %d", len(levels))
	}
	return levels, nil
}
