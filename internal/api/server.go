// Package api exposes run control and status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/scheduler"
	"github.com/sells-group/enrichment-cli/internal/service"
)

// Runner is the part of service.Service the server drives.
type Runner interface {
	Run(ctx context.Context, opts service.RunOptions, token *scheduler.Token) (*service.Report, error)
	Status() model.Snapshot
}

// Server serializes runs: at most one is active at a time.
type Server struct {
	router chi.Router
	runner Runner
	// base outlives requests; runs started over HTTP are bound to it.
	base context.Context

	mu     sync.Mutex
	token  *scheduler.Token
	last   *service.Report
	runErr string
	wg     sync.WaitGroup
}

// Options configure a Server.
type Options struct {
	CORSOrigins []string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewServer wires routes. Runs are cancelled when base is done.
func NewServer(base context.Context, runner Runner, opts Options) *Server {
	s := &Server{runner: runner, base: base}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Post("/runs", s.startRun)
	r.Post("/runs/stop", s.stopRun)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown stops the active run at the next company boundary and waits for
// it to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.token != nil {
		s.token.Cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type runRequest struct {
	Input     string   `json:"input"`
	Fields    []string `json:"fields"`
	DryRun    bool     `json:"dry_run"`
	Reset     bool     `json:"reset"`
	BatchSize int      `json:"batch_size"`
	Delay     string   `json:"delay"`
}

func (r runRequest) options() (service.RunOptions, error) {
	opts := service.RunOptions{
		Input:     r.Input,
		DryRun:    r.DryRun,
		Reset:     r.Reset,
		BatchSize: r.BatchSize,
		// Negative means "use the configured delay".
		BatchDelay: -1,
	}
	for _, name := range r.Fields {
		f, err := model.ParseField(name)
		if err != nil {
			return opts, err
		}
		opts.Fields = append(opts.Fields, f)
	}
	if r.Delay != "" {
		d, err := time.ParseDuration(r.Delay)
		if err != nil || d < 0 {
			return opts, errors.New("delay must be a non-negative duration like 2s")
		}
		opts.BatchDelay = d
	}
	return opts, nil
}

type statusResponse struct {
	Active   bool            `json:"active"`
	Snapshot model.Snapshot  `json:"snapshot"`
	Last     *service.Report `json:"last_report,omitempty"`
	Error    string          `json:"last_error,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := statusResponse{Active: s.token != nil, Last: s.last, Error: s.runErr}
	s.mu.Unlock()
	resp.Snapshot = s.runner.Status()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	opts, err := req.options()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token := scheduler.NewToken()
	s.mu.Lock()
	if s.token != nil {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "a run is already active")
		return
	}
	s.token = token
	s.wg.Add(1)
	s.mu.Unlock()

	if opts.DryRun {
		report, err := s.execute(r.Context(), opts, token)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	go s.execute(s.base, opts, token) //nolint:errcheck
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// execute runs to completion and records the outcome. The caller has
// registered token as the active run.
func (s *Server) execute(ctx context.Context, opts service.RunOptions, token *scheduler.Token) (*service.Report, error) {
	defer s.wg.Done()
	report, err := s.runner.Run(ctx, opts, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	if !opts.DryRun {
		s.last = report
		s.runErr = ""
		if err != nil {
			s.runErr = err.Error()
		}
	}
	if err != nil {
		zap.L().Error("api: run failed", zap.Bool("dry_run", opts.DryRun), zap.Error(err))
	}
	return report, err
}

func (s *Server) stopRun(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == nil {
		writeError(w, http.StatusConflict, "no active run")
		return
	}
	token.Cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func statusFor(err error) int {
	if errors.Is(err, service.ErrConfig) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
