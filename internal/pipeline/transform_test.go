package pipeline_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hadley-cell/internal/decompose"
	"github.com/couchcryptid/hadley-cell/internal/domain"
	"github.com/couchcryptid/hadley-cell/internal/gridio"
	"github.com/couchcryptid/hadley-cell/internal/observability"
	"github.com/couchcryptid/hadley-cell/internal/pipeline"
)

var (
	gridLats   = []float64{-60, -30, 0, 30, 60}
	gridLons   = []float64{0, 10, 20, 30}
	gridLevels = []float64{1000, 500, 300}
	gridShape  = []float64{1, -1, 0.5, 1, -1}
)

// writeCellGrid writes a grid whose meridional wind depends only on latitude
// and returns its directory and file name.
func writeCellGrid(t *testing.T, shape []float64) (string, string) {
	t.Helper()
	dir := t.TempDir()
	u := sparse.ZerosDense(len(gridLevels), len(gridLats), len(gridLons))
	v := sparse.ZerosDense(len(gridLevels), len(gridLats), len(gridLons))
	for k := range gridLevels {
		for j, g := range shape {
			for i := range gridLons {
				v.Set(g, k, j, i)
			}
		}
	}
	require.NoError(t, gridio.Write(filepath.Join(dir, "cell.nc"), gridio.Dataset{
		U: u, V: v, Latitude: gridLats, Longitude: gridLons, Level: gridLevels,
	}))
	return dir, "cell.nc"
}

func expectedNorth() float64 {
	y3, y4 := math.Cos(math.Pi/6), -math.Cos(math.Pi/3)
	return 30 - y3*30/(y4-y3)
}

func job(t *testing.T, v map[string]any) domain.RawJob {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return domain.RawJob{Value: data}
}

func TestHadleyTransformer_Global(t *testing.T) {
	dir, name := writeCellGrid(t, gridShape)
	metrics := observability.NewMetricsForTesting()
	tfm := pipeline.NewTransformer(dir, pipeline.Analyzer{}, metrics, slog.Default())

	result, err := tfm.Transform(context.Background(), job(t, map[string]any{"id": "jan", "path": name, "include_psi": true}))
	require.NoError(t, err)

	assert.Equal(t, "jan", result.JobID)
	assert.True(t, result.Global)
	assert.Equal(t, domain.StatusFound, result.Status())
	require.NotNil(t, result.North)
	assert.InEpsilon(t, expectedNorth(), *result.North, 1e-5)
	assert.InEpsilon(t, -expectedNorth(), *result.South, 1e-5)
	assert.Equal(t, []float64{40000, 75000}, result.Pressure)
	assert.Len(t, result.Psi, 2)
}

func TestHadleyTransformer_NotFound(t *testing.T) {
	dir, name := writeCellGrid(t, []float64{1, 1, 1, 1, 1})
	metrics := observability.NewMetricsForTesting()
	tfm := pipeline.NewTransformer(dir, pipeline.Analyzer{}, metrics, slog.Default())

	result, err := tfm.Transform(context.Background(), job(t, map[string]any{"path": name}))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNone, result.Status())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.BoundariesNotFound.WithLabelValues("north")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.BoundariesNotFound.WithLabelValues("south")), 0)
}

func TestHadleyTransformer_Regional(t *testing.T) {
	dir, name := writeCellGrid(t, gridShape)
	raw := job(t, map[string]any{"path": name, "domain": map[string]float64{"west": 5, "east": 35}})

	t.Run("decomposition disabled", func(t *testing.T) {
		metrics := observability.NewMetricsForTesting()
		tfm := pipeline.NewTransformer(dir, pipeline.Analyzer{}, metrics, slog.Default())
		_, err := tfm.Transform(context.Background(), raw)
		require.ErrorIs(t, err, domain.ErrConfiguration)
		assert.InDelta(t, 1, testutil.ToFloat64(metrics.ComputeErrors.WithLabelValues("configuration")), 0)
	})

	t.Run("decomposition enabled", func(t *testing.T) {
		analyzer := pipeline.Analyzer{Decompose: true, Options: decompose.DefaultOptions()}
		tfm := pipeline.NewTransformer(dir, analyzer, observability.NewMetricsForTesting(), slog.Default())
		result, err := tfm.Transform(context.Background(), raw)
		require.NoError(t, err)
		assert.False(t, result.Global)
	})
}

func TestHadleyTransformer_Errors(t *testing.T) {
	dir, name := writeCellGrid(t, gridShape)
	tfm := pipeline.NewTransformer(dir, pipeline.Analyzer{}, observability.NewMetricsForTesting(), slog.Default())

	t.Run("invalid job", func(t *testing.T) {
		_, err := tfm.Transform(context.Background(), domain.RawJob{Value: []byte("{")})
		require.Error(t, err)
	})

	t.Run("path escapes data dir", func(t *testing.T) {
		_, err := tfm.Transform(context.Background(), job(t, map[string]any{"path": "../" + name}))
		require.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := tfm.Transform(context.Background(), job(t, map[string]any{"path": "absent.nc"}))
		require.Error(t, err)
	})

	t.Run("pressure band missing", func(t *testing.T) {
		_, err := tfm.Transform(context.Background(), job(t, map[string]any{"path": name, "level_scale": 1000}))
		require.ErrorIs(t, err, domain.ErrDomain)
	})
}
