// Command hadley prints the Hadley cell boundaries of a netCDF wind file.
//
// Usage:
//
//	hadley [flags] file.nc
//	hadley -d 60,180 -t era-interim.nc
//	hadley -profile merra.hcl -P merra.nc
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/hadley-cell/internal/decompose"
	"github.com/couchcryptid/hadley-cell/internal/domain"
	"github.com/couchcryptid/hadley-cell/internal/gridio"
	"github.com/couchcryptid/hadley-cell/internal/observability"
	"github.com/couchcryptid/hadley-cell/internal/pipeline"
	"github.com/couchcryptid/hadley-cell/internal/render"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "hadley:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hadley", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		names     domain.VariableNames
		timeMean  = fs.Bool("t", false, "average over the leading time dimension")
		timeIndex = fs.Int("time-index", -1, "select one step of the leading time dimension")
		lonDomain = fs.String("d", "", "longitude domain `west,east` in degrees east")
		scale     = fs.Float64("scale", 0, "multiplier taking stored levels to Pa (default 100)")
		profile   = fs.String("profile", "", "HCL dataset profile")
		plot      = fs.Bool("P", false, "print the stream function table")
		summary   = fs.Bool("s", false, "print a boundary summary box")
		asJSON    = fs.Bool("json", false, "print the result as JSON")
		maxIter   = fs.Int("max-iter", decompose.DefaultOptions().MaxIterations, "wind decomposition iteration limit")
		tolerance = fs.Float64("tol", decompose.DefaultOptions().Tolerance, "wind decomposition relative tolerance")
		verbose   = fs.Bool("verbose", false, "debug logging on stderr")
	)
	fs.StringVar(&names.U, "u", "", "name of the u-component variable (default u)")
	fs.StringVar(&names.V, "v", "", "name of the v-component variable (default v)")
	fs.StringVar(&names.Latitude, "l", "", "name of the latitude variable (default latitude)")
	fs.StringVar(&names.Longitude, "L", "", "name of the longitude variable (default longitude)")
	fs.StringVar(&names.Level, "p", "", "name of the pressure variable (default level)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: hadley [flags] file.nc")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one netCDF file is required")
	}
	path := fs.Arg(0)

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := observability.NewLoggerTo(stderr, level, "text")

	opts := gridio.Options{Variables: names, TimeMean: *timeMean, LevelScale: *scale}
	if *timeIndex >= 0 {
		if *timeMean {
			return fmt.Errorf("-t and -time-index are mutually exclusive: %w", domain.ErrConfiguration)
		}
		opts.TimeIndex = timeIndex
	}
	if *lonDomain != "" {
		d, err := domain.ParseLonDomain(*lonDomain)
		if err != nil {
			return err
		}
		opts.Domain = &d
	}
	if *profile != "" {
		p, err := gridio.LoadProfile(*profile)
		if err != nil {
			return err
		}
		opts = p.Apply(opts)
	}

	grid, err := gridio.Load(path, opts)
	if err != nil {
		return err
	}
	logger.Debug("grid loaded",
		"path", path,
		"levels", len(grid.Level),
		"latitudes", len(grid.Latitude),
		"longitudes", len(grid.Longitude),
		"global", grid.Global,
	)

	analyzer := pipeline.Analyzer{
		Decompose: true,
		Options:   decompose.Options{MaxIterations: *maxIter, Tolerance: *tolerance},
	}
	b, err := analyzer.Analyze(grid)
	if err != nil {
		return err
	}

	if *asJSON {
		job := domain.JobRequest{ID: path, Path: path, Domain: opts.Domain, IncludePsi: *plot}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(domain.NewHadleyResult(job, b))
	}

	fmt.Fprintln(stdout, render.Line(b.North, b.South))
	if *summary {
		fmt.Fprintln(stdout, render.Summary(path, b))
	}
	if *plot {
		fmt.Fprintln(stdout, render.Table(b.StreamFunction))
	}
	return nil
}
