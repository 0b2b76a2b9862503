// Command validate checks that a netCDF wind file can feed the Hadley cell
// diagnostic before it is queued as a job: variables and shapes load, the
// pressure levels cover the diagnostic bands, both hemispheres are present,
// a regional domain can be decomposed, and a dry run finds boundaries.
//
// Usage:
//
//	go run ./cmd/validate data/era-interim.nc
//	go run ./cmd/validate -d 60,180 -profile merra.hcl data/merra.nc
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/hadley-cell/internal/decompose"
	"github.com/couchcryptid/hadley-cell/internal/domain"
	"github.com/couchcryptid/hadley-cell/internal/gridio"
	"github.com/couchcryptid/hadley-cell/internal/pipeline"
	"github.com/couchcryptid/hadley-cell/internal/render"
)

// maxMissingFraction is the share of missing wind values tolerated.
const maxMissingFraction = 0.2

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	timeMean := flag.Bool("t", false, "average over the leading time dimension")
	lonDomain := flag.String("d", "", "longitude domain `west,east` in degrees east")
	profile := flag.String("profile", "", "HCL dataset profile")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: validate [flags] file.nc")
		flag.PrintDefaults()
		os.Exit(1)
	}

	opts := gridio.Options{TimeMean: *timeMean}
	if *lonDomain != "" {
		d, err := domain.ParseLonDomain(*lonDomain)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
		opts.Domain = &d
	}
	if *profile != "" {
		p, err := gridio.LoadProfile(*profile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
		opts = p.Apply(opts)
	}

	os.Exit(run(flag.Arg(0), opts))
}

func run(path string, opts gridio.Options) int {
	fmt.Printf("=== Hadley Cell Preflight: %s ===\n\n", path)

	grid, err := gridio.Load(path, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load grid: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateLevels(grid),
		validateLatitudes(grid),
		validateMissing(grid),
		validateDomain(grid, opts.Domain),
		validateDryRun(grid),
	}

	allPassed := true
	for _, p := range phases {
		if !p.passed() {
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, render.Verdict(len(p.errors)))
	}

	fmt.Println()
	fmt.Printf("Grid: %d levels, %d latitudes, %d longitudes, global=%t\n",
		len(grid.Level), len(grid.Latitude), len(grid.Longitude), grid.Global)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nPreflight FAILED.")
	return 1
}

// ── Checks ──

// validateLevels checks that layer midpoints fall into both pressure bands.
func validateLevels(g gridio.Grid) *phase {
	p := &phase{name: "Pressure levels cover diagnostic bands"}
	if len(g.Level) < 2 {
		p.errorf("need at least two levels, got %d", len(g.Level))
		return p
	}
	var mid, low int
	for _, m := range domain.LayerPressures(g.Level) {
		if domain.InMidBand(m) {
			mid++
		}
		if domain.InLowerBand(m) {
			low++
		}
	}
	if mid == 0 {
		p.errorf("no layer midpoint between %.0f and %.0f Pa (levels %v); check the level scale",
			domain.MidBandTop, domain.MidBandBottom, g.Level)
	}
	if low == 0 {
		p.errorf("no layer midpoint at or below %.0f Pa", domain.LowerBandMax)
	}
	return p
}

// validateLatitudes checks both hemispheres have enough points to bracket a
// zero crossing.
func validateLatitudes(g gridio.Grid) *phase {
	p := &phase{name: "Both hemispheres resolved"}
	var north, south int
	for _, lat := range g.Latitude {
		switch {
		case math.IsNaN(lat) || lat < -90 || lat > 90:
			p.errorf("latitude %v out of range", lat)
		case lat > 0:
			north++
		default:
			south++
		}
	}
	if north < 2 {
		p.errorf("northern hemisphere has %d latitudes, need at least 2", north)
	}
	if south < 2 {
		p.errorf("southern hemisphere has %d latitudes, need at least 2", south)
	}
	return p
}

func validateMissing(g gridio.Grid) *phase {
	p := &phase{name: "Missing wind values"}
	for _, f := range []struct {
		name string
		data []float64
	}{{"u", g.U.Elements}, {"v", g.V.Elements}} {
		var missing int
		for _, x := range f.data {
			if math.IsNaN(x) {
				missing++
			}
		}
		if frac := float64(missing) / float64(max(len(f.data), 1)); frac > maxMissingFraction {
			p.errorf("%s is %.0f%% missing (limit %.0f%%)", f.name, 100*frac, 100*maxMissingFraction)
		}
	}
	return p
}

// validateDomain checks a regional selection is non-empty and decomposable.
func validateDomain(g gridio.Grid, d *domain.LonDomain) *phase {
	p := &phase{name: "Longitude domain decomposable"}
	if d == nil {
		return p
	}
	var inside int
	for _, lon := range g.Longitude {
		if d.Contains(lon) {
			inside++
		}
	}
	if inside == 0 {
		p.errorf("domain %g..%g selects no longitudes; the whole grid would be used", d.West, d.East)
	}
	if _, err := decompose.New(g.Longitude, decompose.DefaultOptions()); err != nil {
		p.errorf("wind decomposition unavailable: %v", err)
	}
	return p
}

func validateDryRun(g gridio.Grid) *phase {
	p := &phase{name: "Dry run finds both boundaries"}
	analyzer := pipeline.Analyzer{Decompose: true, Options: decompose.DefaultOptions()}
	b, err := analyzer.Analyze(g)
	if err != nil {
		p.errorf("analysis failed: %v", err)
		return p
	}
	if !domain.Found(b.North) {
		p.errorf("no northern boundary (crossings %v)", b.Crossings)
	}
	if !domain.Found(b.South) {
		p.errorf("no southern boundary (crossings %v)", b.Crossings)
	}
	return p
}
