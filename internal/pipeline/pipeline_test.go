package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hadley-cell/internal/domain"
	"github.com/couchcryptid/hadley-cell/internal/observability"
	"github.com/couchcryptid/hadley-cell/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	jobs  []domain.RawJob
	index atomic.Int64
	err   error
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawJob, error) {
	if m.err != nil {
		return nil, m.err
	}
	i := int(m.index.Load())
	if i >= len(m.jobs) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	end := min(i+batchSize, len(m.jobs))
	m.index.Store(int64(end))
	return m.jobs[i:end], nil
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawJob) (domain.HadleyResult, error) {
	if m.err != nil {
		return domain.HadleyResult{}, m.err
	}
	return domain.HadleyResult{JobID: string(raw.Key)}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.HadleyResult
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, results []domain.HadleyResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, results...)
	return nil
}

func (m *mockLoader) results() []domain.HadleyResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.HadleyResult(nil), m.loaded...)
}

func rawJob(key string) domain.RawJob {
	return domain.RawJob{Key: []byte(key), Value: []byte(`{"path":"` + key + `.nc"}`)}
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	ext := &mockExtractor{jobs: []domain.RawJob{rawJob("jan"), rawJob("feb"), rawJob("mar")}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), metrics, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	loaded := ldr.results()
	require.Len(t, loaded, 3)
	assert.Equal(t, "jan", loaded[0].JobID)
	assert.Equal(t, "mar", loaded[2].JobID)
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.JobsConsumed), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.ResultsProduced), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, slog.Default(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.results())
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_TransformErrorCommitsAndSkips(t *testing.T) {
	var commits atomic.Int32
	raw := rawJob("bad")
	raw.Commit = func(_ context.Context) error {
		commits.Add(1)
		return nil
	}

	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockExtractor{jobs: []domain.RawJob{raw}}, &mockTransformer{err: domain.ErrDomain}, ldr, slog.Default(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.results())
	assert.Equal(t, int32(1), commits.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.TransformErrors), 0)
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_CommitsAfterLoad(t *testing.T) {
	var committed atomic.Bool
	raw := rawJob("jan")
	raw.Topic = "hadley-jobs"
	raw.Commit = func(_ context.Context) error {
		committed.Store(true)
		return nil
	}

	p := pipeline.New(&mockExtractor{jobs: []domain.RawJob{raw}}, &mockTransformer{}, &mockLoader{}, slog.Default(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.True(t, committed.Load())
}

func TestPipeline_Run_LoadFailureLeavesUncommitted(t *testing.T) {
	var committed atomic.Bool
	raw := rawJob("jan")
	raw.Commit = func(_ context.Context) error {
		committed.Store(true)
		return nil
	}

	ldr := &mockLoader{err: errors.New("broker down")}
	p := pipeline.New(&mockExtractor{jobs: []domain.RawJob{raw}}, &mockTransformer{}, ldr, slog.Default(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.False(t, committed.Load())
	require.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	ext := &mockExtractor{err: errors.New("fetch failed")}
	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, slog.Default(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}

func TestMultiLoader(t *testing.T) {
	a, b := &mockLoader{}, &mockLoader{}
	results := []domain.HadleyResult{{JobID: "jan"}}

	require.NoError(t, pipeline.MultiLoader{a, b}.LoadBatch(context.Background(), results))
	assert.Len(t, a.results(), 1)
	assert.Len(t, b.results(), 1)

	failing := &mockLoader{err: errors.New("disk full")}
	c := &mockLoader{}
	err := pipeline.MultiLoader{failing, c}.LoadBatch(context.Background(), results)
	require.ErrorContains(t, err, "disk full")
	assert.Empty(t, c.results())
}
