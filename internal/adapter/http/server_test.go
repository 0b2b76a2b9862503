package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/hadley-cell/internal/adapter/http"
	"github.com/couchcryptid/hadley-cell/internal/adapter/sqlite"
	"github.com/couchcryptid/hadley-cell/internal/domain"
	"github.com/couchcryptid/hadley-cell/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStore struct {
	results map[string]domain.HadleyResult
	err     error
}

func (m *mockStore) Get(_ context.Context, id string) (domain.HadleyResult, error) {
	if m.err != nil {
		return domain.HadleyResult{}, m.err
	}
	r, ok := m.results[id]
	if !ok {
		return domain.HadleyResult{}, fmt.Errorf("job %s: %w", id, sqlite.ErrNotFound)
	}
	return r, nil
}

func (m *mockStore) List(_ context.Context, limit int) ([]domain.HadleyResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.HadleyResult
	for _, r := range m.results {
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func newTestServer(readyErr error, store httpadapter.ResultStore) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, pipeline.Analyzer{}, store, slog.Default())
}

func do(t *testing.T, srv *httpadapter.Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(nil, nil), http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyz(t *testing.T) {
	rec := do(t, newTestServer(nil, nil), http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestServer(fmt.Errorf("not ready yet"), nil), http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(nil, nil), http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// cellRequest is a two-cell grid: v varies only with latitude.
func cellRequest() httpadapter.GridRequest {
	lats := []float64{-60, -30, 0, 30, 60}
	shape := []float64{1, -1, 0.5, 1, -1}
	levels := []float64{1000, 500, 300}
	lons := []float64{0, 180}

	field := func(byLat []float64) [][][]*float64 {
		out := make([][][]*float64, len(levels))
		for k := range levels {
			out[k] = make([][]*float64, len(lats))
			for j := range lats {
				out[k][j] = make([]*float64, len(lons))
				for i := range lons {
					x := byLat[j]
					out[k][j][i] = &x
				}
			}
		}
		return out
	}
	return httpadapter.GridRequest{
		ID:        "inline-1",
		U:         field(make([]float64, len(lats))),
		V:         field(shape),
		Latitude:  lats,
		Longitude: lons,
		Level:     levels,
	}
}

func cosd(deg float64) float64 { return math.Cos(deg * math.Pi / 180) }

func TestBoundaries_Inline(t *testing.T) {
	body, err := json.Marshal(cellRequest())
	require.NoError(t, err)

	rec := do(t, newTestServer(nil, nil), http.MethodPost, "/v1/boundaries", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result domain.HadleyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "inline-1", result.JobID)
	assert.True(t, result.Global)

	want := 30 + 30*cosd(30)/(cosd(30)+cosd(60))
	require.NotNil(t, result.North)
	require.NotNil(t, result.South)
	assert.InDelta(t, want, *result.North, 1e-6)
	assert.InDelta(t, -want, *result.South, 1e-6)
	assert.Nil(t, result.Psi)
}

func TestBoundaries_IncludePsiWithMissingValues(t *testing.T) {
	req := cellRequest()
	req.IncludePsi = true
	req.V[0][2][1] = nil
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := do(t, newTestServer(nil, nil), http.MethodPost, "/v1/boundaries", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result domain.HadleyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Psi, 2)
	assert.Len(t, result.Psi[0], 5)
}

func TestBoundaries_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*httpadapter.GridRequest)
		status int
	}{
		{"ragged wind", func(r *httpadapter.GridRequest) { r.V[1] = r.V[1][:3] }, http.StatusUnprocessableEntity},
		{"missing levels", func(r *httpadapter.GridRequest) { r.Level = nil }, http.StatusUnprocessableEntity},
		{"regional without decomposition", func(r *httpadapter.GridRequest) {
			r.Domain = &domain.LonDomain{West: 90, East: 270}
		}, http.StatusUnprocessableEntity},
		{"no pressure band", func(r *httpadapter.GridRequest) { r.LevelScale = 1000 }, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cellRequest()
			tt.mutate(&req)
			body, err := json.Marshal(req)
			require.NoError(t, err)

			rec := do(t, newTestServer(nil, nil), http.MethodPost, "/v1/boundaries", body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestBoundaries_BadJSON(t *testing.T) {
	rec := do(t, newTestServer(nil, nil), http.MethodPost, "/v1/boundaries", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResults(t *testing.T) {
	north := 29.5
	store := &mockStore{results: map[string]domain.HadleyResult{
		"job-1": {JobID: "job-1", Source: "era.nc", North: &north, Crossings: []float64{}},
	}}
	srv := newTestServer(nil, store)

	rec := do(t, srv, http.MethodGet, "/v1/results/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.HadleyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "era.nc", got.Source)

	rec = do(t, srv, http.MethodGet, "/v1/results/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/results?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.HadleyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, srv, http.MethodGet, "/v1/results?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResults_StoreErrors(t *testing.T) {
	srv := newTestServer(nil, &mockStore{err: fmt.Errorf("disk full")})

	rec := do(t, srv, http.MethodGet, "/v1/results/job-1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/results", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResults_NotConfigured(t *testing.T) {
	srv := newTestServer(nil, nil)

	rec := do(t, srv, http.MethodGet, "/v1/results/job-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv, http.MethodGet, "/v1/results", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
