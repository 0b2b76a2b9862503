package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/hadley-cell/internal/decompose"
	"github.com/couchcryptid/hadley-cell/internal/domain"
	"github.com/couchcryptid/hadley-cell/internal/gridio"
	"github.com/couchcryptid/hadley-cell/internal/observability"
)

// Analyzer detects boundaries on a loaded grid, building a wind decomposer
// for regional grids when enabled.
type Analyzer struct {
	Decompose bool
	Options   decompose.Options
}

// Analyze runs the stream function and boundary search on g.
func (a Analyzer) Analyze(g gridio.Grid) (domain.Boundaries, error) {
	var decomposer domain.WindDecomposer
	if !g.Global && a.Decompose {
		d, err := decompose.New(g.Longitude, a.Options)
		if err != nil {
			return domain.Boundaries{}, fmt.Errorf("analyze: %w", err)
		}
		decomposer = d
	}
	detector := domain.NewDetector(domain.NewEngine(decomposer))
	return detector.Detect(g.U, g.V, domain.Axis1D(g.Latitude), domain.Axis1D(g.Level), g.Global)
}

// HadleyTransformer implements Transformer by loading the job's grid from
// the data directory and detecting its Hadley cell boundaries.
type HadleyTransformer struct {
	dataDir  string
	analyzer Analyzer
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewTransformer creates a HadleyTransformer. Job paths must be local to
// dataDir.
func NewTransformer(dataDir string, analyzer Analyzer, metrics *observability.Metrics, logger *slog.Logger) *HadleyTransformer {
	return &HadleyTransformer{
		dataDir:  dataDir,
		analyzer: analyzer,
		metrics:  metrics,
		logger:   logger,
	}
}

func (t *HadleyTransformer) Transform(ctx context.Context, raw domain.RawJob) (domain.HadleyResult, error) {
	job, err := domain.ParseRawJob(raw)
	if err != nil {
		return domain.HadleyResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.HadleyResult{}, err
	}
	if !filepath.IsLocal(job.Path) {
		t.metrics.ComputeErrors.WithLabelValues("configuration").Inc()
		return domain.HadleyResult{}, fmt.Errorf("job %s: path %q is outside the data directory: %w", job.ID, job.Path, domain.ErrConfiguration)
	}

	start := time.Now()
	grid, err := gridio.Load(filepath.Join(t.dataDir, job.Path), gridio.OptionsFor(job))
	if err != nil {
		t.metrics.ComputeErrors.WithLabelValues(errorKind(err)).Inc()
		return domain.HadleyResult{}, fmt.Errorf("job %s: %w", job.ID, err)
	}
	b, err := t.analyzer.Analyze(grid)
	if err != nil {
		t.metrics.ComputeErrors.WithLabelValues(errorKind(err)).Inc()
		return domain.HadleyResult{}, fmt.Errorf("job %s: %w", job.ID, err)
	}
	t.metrics.ComputeDuration.Observe(time.Since(start).Seconds())

	result := domain.NewHadleyResult(job, b)
	if result.North == nil {
		t.metrics.BoundariesNotFound.WithLabelValues("north").Inc()
	}
	if result.South == nil {
		t.metrics.BoundariesNotFound.WithLabelValues("south").Inc()
	}
	t.logger.Debug("job computed",
		"job_id", job.ID,
		"status", result.Status(),
		"global", grid.Global,
		"duration", time.Since(start),
	)
	return result, nil
}

// errorKind labels a computation failure for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrDomain):
		return "domain"
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrShape):
		return "shape"
	case errors.Is(err, decompose.ErrNotConverged):
		return "decomposition"
	default:
		return "io"
	}
}
