// Package decompose splits horizontal wind into its irrotational part on a
// regular latitude-longitude grid.
//
// The divergence of (u, v) is computed with centered differences in
// spherical coordinates, the velocity potential χ is found from ∇²χ = D by
// successive over-relaxation, and the irrotational meridional wind is
// v_χ = (1/a) ∂χ/∂φ. χ is held at zero on the first and last latitude rows
// and, unless the longitudes wrap the globe, on the first and last
// longitude columns.
package decompose

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/hadley-cell/internal/domain"
)

// ErrNotConverged is returned when the relaxation exhausts its iterations.
var ErrNotConverged = errors.New("poisson solve did not converge")

// Options tunes the relaxation.
type Options struct {
	MaxIterations int
	Tolerance     float64 // max update relative to max |χ|
	Omega         float64 // 0 picks a grid-dependent factor
}

// DefaultOptions returns the settings used by the service.
func DefaultOptions() Options {
	return Options{MaxIterations: 5000, Tolerance: 1e-8}
}

// PoissonDecomposer implements [domain.WindDecomposer] for one longitude
// grid.
type PoissonDecomposer struct {
	opts     Options
	nlon     int
	dlon     float64 // radians
	periodic bool
}

// New builds a decomposer for the longitudes (degrees east) of the input
// fields. Longitudes must be evenly spaced after unwrapping through 360.
func New(lon []float64, opts Options) (*PoissonDecomposer, error) {
	if len(lon) == 0 {
		return nil, fmt.Errorf("new decomposer: no longitudes: %w", domain.ErrShape)
	}
	if opts.MaxIterations <= 0 {
		return nil, fmt.Errorf("new decomposer: max iterations must be positive: %w", domain.ErrConfiguration)
	}
	if opts.Tolerance <= 0 {
		return nil, fmt.Errorf("new decomposer: tolerance must be positive: %w", domain.ErrConfiguration)
	}
	if opts.Omega != 0 && (opts.Omega <= 0 || opts.Omega >= 2) {
		return nil, fmt.Errorf("new decomposer: relaxation factor %g outside (0, 2): %w", opts.Omega, domain.ErrConfiguration)
	}

	d := &PoissonDecomposer{opts: opts, nlon: len(lon)}
	if len(lon) == 1 {
		return d, nil
	}

	unwrapped := unwrap(lon)
	span := unwrapped[len(unwrapped)-1] - unwrapped[0]
	step := span / float64(len(lon)-1)
	if step <= 0 {
		return nil, fmt.Errorf("new decomposer: longitudes do not increase: %w", domain.ErrShape)
	}
	for i := 1; i < len(unwrapped); i++ {
		if math.Abs(unwrapped[i]-unwrapped[i-1]-step) > 1e-3*step {
			return nil, fmt.Errorf("new decomposer: longitude spacing is irregular at index %d: %w", i, domain.ErrShape)
		}
	}
	d.dlon = step * math.Pi / 180
	d.periodic = span+step >= 360-1e-6*step
	return d, nil
}

// Periodic reports whether the longitudes wrap the globe.
func (d *PoissonDecomposer) Periodic() bool { return d.periodic }

// IrrotationalMeridional returns v_χ for [level, latitude, longitude] fields.
// NaN winds contribute no divergence.
func (d *PoissonDecomposer) IrrotationalMeridional(u, v *sparse.DenseArray, lat []float64) (*sparse.DenseArray, error) {
	if u == nil || v == nil || len(v.Shape) != 3 || len(u.Shape) != 3 {
		return nil, fmt.Errorf("irrotational wind: want 3-D fields: %w", domain.ErrShape)
	}
	nlvl, nlat, nlon := v.Shape[0], v.Shape[1], v.Shape[2]
	if u.Shape[0] != nlvl || u.Shape[1] != nlat || u.Shape[2] != nlon {
		return nil, fmt.Errorf("irrotational wind: u %v and v %v differ: %w", u.Shape, v.Shape, domain.ErrShape)
	}
	if nlon != d.nlon || len(lat) != nlat {
		return nil, fmt.Errorf("irrotational wind: grid %dx%d, fields %v: %w", len(lat), d.nlon, v.Shape, domain.ErrShape)
	}
	for j := 1; j < len(lat); j++ {
		if lat[j] <= lat[j-1] {
			return nil, fmt.Errorf("irrotational wind: latitudes must ascend: %w", domain.ErrShape)
		}
	}

	phi := make([]float64, nlat)
	for j, l := range lat {
		phi[j] = l * math.Pi / 180
	}
	s := d.stencil(phi)

	out := sparse.ZerosDense(nlvl, nlat, nlon)
	for k := range nlvl {
		div := d.divergence(u, v, k, phi)
		chi, err := d.relax(s, div, nlat)
		if err != nil {
			return nil, fmt.Errorf("irrotational wind: level %d: %w", k, err)
		}
		for j := range nlat {
			lo, hi := max(j-1, 0), min(j+1, nlat-1)
			if lo == hi {
				continue
			}
			for i := range nlon {
				out.Set((chi[hi*nlon+i]-chi[lo*nlon+i])/(phi[hi]-phi[lo])/domain.EarthRadius, k, j, i)
			}
		}
	}
	return out, nil
}

// coeffs are the five-point Laplacian weights for one latitude row, scaled
// by a².
type coeffs struct {
	east, north, south, center float64
}

func (d *PoissonDecomposer) stencil(phi []float64) []coeffs {
	s := make([]coeffs, len(phi))
	for j := 1; j < len(phi)-1; j++ {
		cj := math.Cos(phi[j])
		hN, hS := phi[j+1]-phi[j], phi[j]-phi[j-1]
		h := (hN + hS) / 2
		var c coeffs
		if d.dlon > 0 {
			c.east = 1 / (cj * cj * d.dlon * d.dlon)
		}
		c.north = math.Cos((phi[j+1]+phi[j])/2) / (cj * hN * h)
		c.south = math.Cos((phi[j]+phi[j-1])/2) / (cj * hS * h)
		c.center = 2*c.east + c.north + c.south
		s[j] = c
	}
	return s
}

// columns returns the longitude range that is solved for.
func (d *PoissonDecomposer) columns() (lo, hi int) {
	if d.periodic || d.nlon == 1 {
		return 0, d.nlon
	}
	return 1, d.nlon - 1
}

func (d *PoissonDecomposer) divergence(u, v *sparse.DenseArray, k int, phi []float64) []float64 {
	nlat, nlon := len(phi), d.nlon
	div := make([]float64, nlat*nlon)
	lo, hi := d.columns()
	for j := 1; j < nlat-1; j++ {
		cj := math.Cos(phi[j])
		for i := lo; i < hi; i++ {
			var du float64
			if d.dlon > 0 {
				east, west := (i+1)%nlon, (i-1+nlon)%nlon
				du = (finite(u.Get(k, j, east)) - finite(u.Get(k, j, west))) / (2 * d.dlon)
			}
			dv := (finite(v.Get(k, j+1, i))*math.Cos(phi[j+1]) - finite(v.Get(k, j-1, i))*math.Cos(phi[j-1])) / (phi[j+1] - phi[j-1])
			div[j*nlon+i] = (du + dv) / (domain.EarthRadius * cj)
		}
	}
	return div
}

func (d *PoissonDecomposer) relax(s []coeffs, div []float64, nlat int) ([]float64, error) {
	nlon := d.nlon
	chi := make([]float64, nlat*nlon)
	lo, hi := d.columns()
	if nlat < 3 || lo >= hi {
		return chi, nil
	}

	omega := d.opts.Omega
	if omega == 0 {
		omega = 2 / (1 + math.Sin(math.Pi/float64(max(nlat, nlon))))
	}
	a2 := domain.EarthRadius * domain.EarthRadius

	for range d.opts.MaxIterations {
		var maxDelta, maxChi float64
		for j := 1; j < nlat-1; j++ {
			c := s[j]
			row := j * nlon
			for i := lo; i < hi; i++ {
				east, west := (i+1)%nlon, (i-1+nlon)%nlon
				next := (c.east*(chi[row+east]+chi[row+west]) +
					c.north*chi[row+nlon+i] + c.south*chi[row-nlon+i] -
					a2*div[row+i]) / c.center
				delta := omega * (next - chi[row+i])
				chi[row+i] += delta
				maxDelta = max(maxDelta, math.Abs(delta))
				maxChi = max(maxChi, math.Abs(chi[row+i]))
			}
		}
		if maxDelta <= d.opts.Tolerance*maxChi {
			return chi, nil
		}
	}
	return nil, fmt.Errorf("%w after %d iterations", ErrNotConverged, d.opts.MaxIterations)
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// unwrap makes a longitude sequence increase through the date line.
func unwrap(lon []float64) []float64 {
	out := make([]float64, len(lon))
	out[0] = lon[0]
	for i := 1; i < len(lon); i++ {
		x := lon[i]
		for x <= out[i-1] {
			x += 360
		}
		out[i] = x
	}
	return out
}
