// Package api serves normal estimation over HTTP and records each request
// as an estimation run.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/pointnormals/internal/cloudio"
	"github.com/banshee-data/pointnormals/internal/geom"
	"github.com/banshee-data/pointnormals/internal/httputil"
	"github.com/banshee-data/pointnormals/internal/monitoring"
	"github.com/banshee-data/pointnormals/internal/normals"
	"github.com/banshee-data/pointnormals/internal/report"
	"github.com/banshee-data/pointnormals/internal/store/sqlite"
)

const (
	// DefaultMaxBodyBytes caps the size of an uploaded cloud.
	DefaultMaxBodyBytes int64 = 256 << 20
	// DefaultScatterPoints caps the points drawn by the scatter plot.
	DefaultScatterPoints = 5000

	defaultRunLimit = 50
	maxRunLimit     = 1000
)

// EstimateResponse is the JSON reply of POST /api/estimate.
type EstimateResponse struct {
	RunID           string         `json:"run_id,omitempty"`
	Source          string         `json:"source,omitempty"`
	PointCount      int            `json:"point_count"`
	CellSize        float64        `json:"cell_size"`
	Radius          float64        `json:"radius"`
	DegenerateCloud bool           `json:"degenerate_cloud"`
	Counts          normals.Counts `json:"counts"`
	Flipped         int            `json:"flipped"`
	Expansions      int            `json:"radius_expansions"`
	DurationMs      float64        `json:"duration_ms"`
	Normals         [][3]float64   `json:"normals"`
}

// Server exposes an Estimator and, optionally, a run store.
type Server struct {
	est           *normals.Estimator
	runs          *sqlite.RunStore
	maxBodyBytes  int64
	histogramBins int

	mu   sync.Mutex
	last *cloudio.Cloud // most recent estimated cloud, for the plots
}

// Option configures a Server.
type Option func(*Server)

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithHistogramBins sets the bin count of the deviation histogram.
func WithHistogramBins(n int) Option {
	return func(s *Server) { s.histogramBins = n }
}

// NewServer builds a server around est. runs may be nil, in which case
// nothing is recorded and the run endpoints answer 404.
func NewServer(est *normals.Estimator, runs *sqlite.RunStore, opts ...Option) *Server {
	s := &Server{
		est:           est,
		runs:          runs,
		maxBodyBytes:  DefaultMaxBodyBytes,
		histogramBins: 36,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServeMux returns a fresh mux with every API route registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/estimate", s.handleEstimate)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.handleRun)
	mux.HandleFunc("/api/plot/scatter", s.plotScatter)
	mux.HandleFunc("/api/plot/histogram", s.plotHistogram)
	return mux
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	rec := &loggingResponseWriter{w, http.StatusOK}
	format := formatLabelValue(r.URL.Query().Get("format"))
	defer func() { instrumentEstimateRequest(format, rec.statusCode) }()
	s.estimate(rec, r)
}

// formatLabelValue keeps the metric label set closed.
func formatLabelValue(name string) string {
	if name == "" {
		return cloudio.FormatPWN.String()
	}
	f, err := cloudio.ParseFormat(name)
	if err != nil {
		return "unknown"
	}
	return f.String()
}

func (s *Server) estimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	q := r.URL.Query()
	format := cloudio.FormatPWN
	if name := q.Get("format"); name != "" {
		f, err := cloudio.ParseFormat(name)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		format = f
	}

	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	cloud, err := cloudio.Decode(body, format)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.PayloadTooLarge(w, tooLarge.Limit)
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}

	out, res, err := s.est.EstimateNormals(r.Context(), cloud.Points)
	if err != nil {
		if errors.Is(err, normals.ErrEmptyInput) ||
			errors.Is(err, normals.ErrNonFinitePoint) ||
			errors.Is(err, normals.ErrExtentOverflow) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("estimation failed: %v", err))
		return
	}
	cloud.Normals = out
	instrumentEstimation(res)

	resp := EstimateResponse{
		Source:          q.Get("source"),
		PointCount:      cloud.Len(),
		CellSize:        res.CellSize,
		Radius:          res.Radius,
		DegenerateCloud: res.Degenerate,
		Counts:          res.Counts,
		Flipped:         res.Flipped,
		Expansions:      res.Expansions,
		DurationMs:      float64(res.Duration.Nanoseconds()) / 1e6,
		Normals:         make([][3]float64, len(out)),
	}
	for i, n := range out {
		resp.Normals[i] = [3]float64{n.X, n.Y, n.Z}
	}

	if s.runs != nil {
		run, err := NewRun(resp.Source, cloud.Len(), s.est.Config(), res)
		if err == nil {
			err = s.runs.Insert(run)
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to record run: %v", err))
			return
		}
		resp.RunID = run.RunID
	}

	s.mu.Lock()
	s.last = cloud
	s.mu.Unlock()

	httputil.WriteJSONOK(w, resp)
}

// NewRun summarises a finished pass as a run record ready for insertion.
func NewRun(source string, pointCount int, cfg normals.Config, res *normals.Result) (*sqlite.EstimationRun, error) {
	params, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run params: %w", err)
	}
	return &sqlite.EstimationRun{
		Source:          source,
		PointCount:      pointCount,
		CellSize:        res.CellSize,
		OK:              res.Counts.OK,
		Insufficient:    res.Counts.Insufficient,
		Degenerate:      res.Counts.Degenerate,
		Flipped:         res.Flipped,
		DegenerateCloud: res.Degenerate,
		Expansions:      res.Expansions,
		DurationMs:      float64(res.Duration.Nanoseconds()) / 1e6,
		ParamsJSON:      params,
	}, nil
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.est.Config())
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.runs == nil {
		httputil.NotFound(w, "run store not configured")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultRunLimit, 1, maxRunLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runs, err := s.runs.List(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*sqlite.EstimationRun{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		httputil.NotFound(w, "run store not configured")
		return
	}
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		run, err := s.runs.Get(id)
		if errors.Is(err, sqlite.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to get run: %v", err))
			return
		}
		httputil.WriteJSONOK(w, run)
	case http.MethodDelete:
		err := s.runs.Delete(id)
		if errors.Is(err, sqlite.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to delete run: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (s *Server) lastCloud() *cloudio.Cloud {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Server) plotScatter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	cloud := s.lastCloud()
	if cloud == nil {
		httputil.NotFound(w, "no cloud estimated yet")
		return
	}
	maxPoints, err := httputil.QueryInt(r, "max", DefaultScatterPoints, 1, 1<<20)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var buf bytes.Buffer
	title := fmt.Sprintf("Normals (%d points)", cloud.Len())
	if err := report.RenderScatterHTML(&buf, title, cloud.Points, cloud.Normals, maxPoints); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render scatter: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		monitoring.Logf("failed to write scatter: %v", err)
	}
}

func (s *Server) plotHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	cloud := s.lastCloud()
	if cloud == nil {
		httputil.NotFound(w, "no cloud estimated yet")
		return
	}

	ref := r3.Vector{Z: 1}
	if raw := r.URL.Query().Get("ref"); raw != "" {
		v, err := geom.ParseVector(raw)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		ref = v
	}

	angles, err := report.DeviationAngles(cloud.Normals, ref)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if len(angles) == 0 {
		httputil.NotFound(w, "no fitted normals in the last cloud")
		return
	}

	var buf bytes.Buffer
	title := fmt.Sprintf("Deviation from %s", formatVector(ref))
	if err := report.WriteHistogramPNG(&buf, title, "angle (deg)", angles, s.histogramBins); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render histogram: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := buf.WriteTo(w); err != nil {
		monitoring.Logf("failed to write histogram: %v", err)
	}
}

func formatVector(v r3.Vector) string {
	return fmt.Sprintf("%g,%g,%g", v.X, v.Y, v.Z)
}
