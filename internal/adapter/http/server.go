package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/hadley-cell/internal/adapter/sqlite"
	"github.com/couchcryptid/hadley-cell/internal/domain"
	"github.com/couchcryptid/hadley-cell/internal/gridio"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/ctessum/sparse"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes caps inline grid uploads.
const maxBodyBytes = 32 << 20

// Analyzer detects Hadley cell boundaries on a grid.
type Analyzer interface {
	Analyze(g gridio.Grid) (domain.Boundaries, error)
}

// ResultStore reads stored results.
type ResultStore interface {
	Get(ctx context.Context, jobID string) (domain.HadleyResult, error)
	List(ctx context.Context, limit int) ([]domain.HadleyResult, error)
}

// Server exposes health, readiness, metrics and the boundary API.
type Server struct {
	httpServer *http.Server
	analyzer   Analyzer
	results    ResultStore
	logger     *slog.Logger
}

// NewServer creates an HTTP server. A nil results store disables the
// /v1/results routes, which then answer 404.
func NewServer(addr string, ready sharedobs.ReadinessChecker, analyzer Analyzer, results ResultStore, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		analyzer: analyzer,
		results:  results,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/boundaries", s.handleBoundaries)
	mux.HandleFunc("GET /v1/results", s.handleListResults)
	mux.HandleFunc("GET /v1/results/{id}", s.handleGetResult)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// GridRequest is an inline grid. Wind arrays are [level][latitude][longitude];
// null entries are missing values.
type GridRequest struct {
	ID         string            `json:"id,omitempty"`
	U          [][][]*float64    `json:"u"`
	V          [][][]*float64    `json:"v"`
	Latitude   []float64         `json:"latitude"`
	Longitude  []float64         `json:"longitude"`
	Level      []float64         `json:"level"`
	LevelScale float64           `json:"level_scale,omitempty"`
	Domain     *domain.LonDomain `json:"domain,omitempty"`
	IncludePsi bool              `json:"include_psi,omitempty"`
}

// Grid converts the request into a grid with levels in Pa.
func (req GridRequest) Grid() (gridio.Grid, error) {
	nk, nj, ni := len(req.Level), len(req.Latitude), len(req.Longitude)
	if nk == 0 || nj == 0 || ni == 0 {
		return gridio.Grid{}, fmt.Errorf("latitude, longitude and level are required: %w", domain.ErrShape)
	}
	scale := req.LevelScale
	if scale == 0 {
		scale = domain.DefaultLevelScale
	}
	if scale < 0 {
		return gridio.Grid{}, fmt.Errorf("negative level_scale: %w", domain.ErrConfiguration)
	}

	u, err := windField("u", req.U, nk, nj, ni)
	if err != nil {
		return gridio.Grid{}, err
	}
	v, err := windField("v", req.V, nk, nj, ni)
	if err != nil {
		return gridio.Grid{}, err
	}
	levels := make([]float64, nk)
	for k, p := range req.Level {
		levels[k] = p * scale
	}
	g := gridio.Grid{
		U:         u,
		V:         v,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Level:     levels,
		Global:    true,
	}
	if req.Domain != nil {
		g = g.Subset(*req.Domain)
	}
	return g, nil
}

func windField(name string, rows [][][]*float64, nk, nj, ni int) (*sparse.DenseArray, error) {
	if len(rows) != nk {
		return nil, fmt.Errorf("%s has %d levels, want %d: %w", name, len(rows), nk, domain.ErrShape)
	}
	w := domain.NewWindField(nk, nj, ni)
	for k, lat := range rows {
		if len(lat) != nj {
			return nil, fmt.Errorf("%s level %d has %d latitudes, want %d: %w", name, k, len(lat), nj, domain.ErrShape)
		}
		for j, lon := range lat {
			if len(lon) != ni {
				return nil, fmt.Errorf("%s[%d][%d] has %d longitudes, want %d: %w", name, k, j, len(lon), ni, domain.ErrShape)
			}
			for i, x := range lon {
				if x == nil {
					w.Set(math.NaN(), k, j, i)
					continue
				}
				w.Set(*x, k, j, i)
			}
		}
	}
	return w, nil
}

func (s *Server) handleBoundaries(w http.ResponseWriter, r *http.Request) {
	var req GridRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode grid: %w", err))
		return
	}
	g, err := req.Grid()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	b, err := s.analyzer.Analyze(g)
	if err != nil {
		s.logger.Debug("inline grid rejected", "error", err)
		writeError(w, statusFor(err), err)
		return
	}

	job := domain.JobRequest{ID: req.ID, Path: "inline", Domain: req.Domain, IncludePsi: req.IncludePsi}
	if job.ID == "" {
		job.ID = "inline"
	}
	sharedobs.WriteJSON(w, http.StatusOK, domain.NewHadleyResult(job, b))
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusNotFound, errors.New("result storage is not configured"))
		return
	}
	result, err := s.results.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.logger.Error("get result failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusNotFound, errors.New("result storage is not configured"))
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q: must be 1-1000", q))
			return
		}
		limit = n
	}
	results, err := s.results.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list results failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []domain.HadleyResult{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, results)
}

// statusFor maps computation errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrShape), errors.Is(err, domain.ErrDomain), errors.Is(err, domain.ErrConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
