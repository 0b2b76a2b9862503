package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultLevelScale converts hPa levels to Pa.
const DefaultLevelScale = 100.0

// RawJob is an unprocessed job message from the source topic.
type RawJob struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// VariableNames maps grid roles to variable names in a data file.
type VariableNames struct {
	U         string `json:"u,omitempty"`
	V         string `json:"v,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
	Level     string `json:"level,omitempty"`
}

// DefaultVariableNames returns the ERA-Interim style names.
func DefaultVariableNames() VariableNames {
	return VariableNames{U: "u", V: "v", Latitude: "latitude", Longitude: "longitude", Level: "level"}
}

// WithDefaults fills empty names from [DefaultVariableNames].
func (n VariableNames) WithDefaults() VariableNames {
	d := DefaultVariableNames()
	if n.U == "" {
		n.U = d.U
	}
	if n.V == "" {
		n.V = d.V
	}
	if n.Latitude == "" {
		n.Latitude = d.Latitude
	}
	if n.Longitude == "" {
		n.Longitude = d.Longitude
	}
	if n.Level == "" {
		n.Level = d.Level
	}
	return n
}

// LonDomain is a longitude window in degrees east. West > East wraps through
// the prime meridian.
type LonDomain struct {
	West float64 `json:"west"`
	East float64 `json:"east"`
}

// Contains reports whether lon falls inside the window.
func (d LonDomain) Contains(lon float64) bool {
	if d.West < d.East {
		return lon >= d.West && lon <= d.East
	}
	return lon >= d.West || lon <= d.East
}

// ParseLonDomain reads "west,east" in degrees east.
func ParseLonDomain(s string) (LonDomain, error) {
	west, east, ok := strings.Cut(s, ",")
	if !ok {
		return LonDomain{}, fmt.Errorf("domain %q: want west,east: %w", s, ErrConfiguration)
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(west), 64)
	if err != nil {
		return LonDomain{}, fmt.Errorf("domain %q: west: %w", s, ErrConfiguration)
	}
	e, err := strconv.ParseFloat(strings.TrimSpace(east), 64)
	if err != nil {
		return LonDomain{}, fmt.Errorf("domain %q: east: %w", s, ErrConfiguration)
	}
	return LonDomain{West: w, East: e}, nil
}

// JobRequest asks for the Hadley cell boundaries of one data file.
type JobRequest struct {
	ID         string        `json:"id,omitempty"`
	Path       string        `json:"path"`
	Variables  VariableNames `json:"variables,omitempty"`
	TimeIndex  *int          `json:"time_index,omitempty"`
	TimeMean   bool          `json:"time_mean,omitempty"`
	Domain     *LonDomain    `json:"domain,omitempty"`
	LevelScale float64       `json:"level_scale,omitempty"`
	IncludePsi bool          `json:"include_psi,omitempty"`
}

// Global reports whether the job covers all longitudes.
func (j JobRequest) Global() bool { return j.Domain == nil }

// Fingerprint identifies the computation a job asks for, independent of its
// ID.
func (j JobRequest) Fingerprint() string {
	timeIndex := "-"
	if j.TimeIndex != nil {
		timeIndex = fmt.Sprint(*j.TimeIndex)
	}
	domain := "global"
	if j.Domain != nil {
		domain = fmt.Sprintf("%g:%g", j.Domain.West, j.Domain.East)
	}
	v := j.Variables
	input := fmt.Sprintf("%s|%s,%s,%s,%s,%s|%s|%t|%s|%g|%t",
		j.Path, v.U, v.V, v.Latitude, v.Longitude, v.Level,
		timeIndex, j.TimeMean, domain, j.LevelScale, j.IncludePsi)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:8])
}

// ParseRawJob decodes and normalizes a job message. Jobs without an ID get a
// deterministic one so replays produce the same result key.
func ParseRawJob(raw RawJob) (JobRequest, error) {
	var job JobRequest
	if err := json.Unmarshal(raw.Value, &job); err != nil {
		return JobRequest{}, fmt.Errorf("parse job: %w", err)
	}
	job.Path = strings.TrimSpace(job.Path)
	if job.Path == "" {
		return JobRequest{}, errors.New("parse job: path is required")
	}
	if job.TimeIndex != nil && job.TimeMean {
		return JobRequest{}, errors.New("parse job: time_index and time_mean are mutually exclusive")
	}
	if job.TimeIndex != nil && *job.TimeIndex < 0 {
		return JobRequest{}, fmt.Errorf("parse job: negative time_index %d", *job.TimeIndex)
	}
	job.Variables = job.Variables.WithDefaults()
	if job.LevelScale == 0 {
		job.LevelScale = DefaultLevelScale
	}
	if job.ID == "" {
		job.ID = string(raw.Key)
	}
	if job.ID == "" {
		job.ID = "job-" + job.Fingerprint()
	}
	return job, nil
}

// HadleyResult is the serialized outcome of a job.
type HadleyResult struct {
	JobID      string        `json:"job_id"`
	Source     string        `json:"source"`
	Global     bool          `json:"global"`
	North      *float64      `json:"psi_north"`
	South      *float64      `json:"psi_south"`
	NorthStar  CriticalPoint `json:"north_star"`
	SouthStar  CriticalPoint `json:"south_star"`
	Crossings  []float64     `json:"crossings"`
	Pressure   []float64     `json:"pressure"`
	Latitude   []float64     `json:"latitude"`
	Psi        [][]*float64  `json:"psi,omitempty"`
	ComputedAt time.Time     `json:"computed_at"`
}

// Result status values.
const (
	StatusFound   = "found"
	StatusPartial = "partial"
	StatusNone    = "none"
)

// NewHadleyResult converts detected boundaries into a result for job.
func NewHadleyResult(job JobRequest, b Boundaries) HadleyResult {
	r := HadleyResult{
		JobID:      job.ID,
		Source:     job.Path,
		Global:     job.Global(),
		North:      nullable(b.North),
		South:      nullable(b.South),
		NorthStar:  b.NorthStar,
		SouthStar:  b.SouthStar,
		Crossings:  b.Crossings,
		Pressure:   b.Pressure,
		Latitude:   b.Latitude,
		ComputedAt: clock.Now().UTC(),
	}
	if job.IncludePsi && b.Psi != nil {
		r.Psi = PsiRows(b.StreamFunction)
	}
	if r.Crossings == nil {
		r.Crossings = []float64{}
	}
	return r
}

// Status summarizes which boundaries were found.
func (r HadleyResult) Status() string {
	switch {
	case r.North != nil && r.South != nil:
		return StatusFound
	case r.North != nil || r.South != nil:
		return StatusPartial
	default:
		return StatusNone
	}
}

// PsiRows copies the stream function into JSON-safe rows; NaN becomes nil.
func PsiRows(sf StreamFunction) [][]*float64 {
	rows, cols := sf.Psi.Shape[0], sf.Psi.Shape[1]
	out := make([][]*float64, rows)
	for i := range rows {
		out[i] = make([]*float64, cols)
		for j := range cols {
			out[i][j] = nullable(sf.Psi.Get(i, j))
		}
	}
	return out
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
