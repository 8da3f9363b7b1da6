package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/df07/go-depthmesh/pkg/config"
	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/export"
	"github.com/df07/go-depthmesh/pkg/pipeline"
)

// errBusy reports that no job slot freed up within the queue timeout
var errBusy = errors.New("server busy")

// Server handles web requests for depth mesh conversion
type Server struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
	metrics  *Metrics
	jobs     *semaphore.Weighted
}

// NewServer creates a server from cfg. A nil logger discards output.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		pipeline: pipeline.New(cfg.PipelineSettings(), logger.Named("pipeline")),
		logger:   logger,
		metrics:  NewMetrics(),
		jobs:     semaphore.NewWeighted(int64(cfg.Server.MaxConcurrentJobs)),
	}
}

// Metrics exposes the server's collectors
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler builds the routed, middleware-wrapped handler. Background work
// started for the handler stops with ctx.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /api/health", s.handleHealth)
	s.route(mux, "GET /api/config", s.handleConfig)
	s.route(mux, "POST /api/preview", s.handlePreview)
	s.route(mux, "POST /api/export/{format}", s.handleExport)
	s.route(mux, "POST /api/inspect", s.handleInspect)
	mux.Handle("GET /metrics", s.metrics.Handler())

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		CORS(),
	}
	if rps := s.cfg.Server.RateLimitRPS; rps > 0 {
		middlewares = append(middlewares, RateLimiter(ctx, rps, s.cfg.Server.RateLimitBurst, func() {
			s.metrics.RecordRejected("rate_limited")
		}))
	}
	return Chain(mux, middlewares...)
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.instrument(pattern, h))
}

// Start serves until ctx is cancelled, then drains in-flight requests
// within the configured shutdown timeout
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Server.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:      s.Handler(ctx),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down web server")
	shutdownCtx, done := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// acquire waits up to the queue timeout for a job slot. The caller must
// call the returned release func.
func (s *Server) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wait := ctx
	if timeout := s.cfg.Server.QueueTimeout; timeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := s.jobs.Acquire(wait, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.metrics.RecordRejected("busy")
		return nil, errBusy
	}
	s.metrics.jobsInFlight.Inc()
	return func() {
		s.metrics.jobsInFlight.Dec()
		s.jobs.Release(1)
	}, nil
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig returns option defaults and validation limits for clients
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	p := s.cfg.Pipeline
	defaults := s.cfg.DefaultOptions()

	formats := make([]string, 0, len(export.Formats))
	for _, f := range export.Formats {
		formats = append(formats, f.String())
	}

	response := map[string]any{
		"formats": formats,
		"defaults": map[string]any{
			"format":     defaults.Format,
			"res":        defaults.Resolution,
			"brightness": defaults.Brightness,
			"gamma":      defaults.Gamma,
			"depthScale": defaults.DepthScale,
			"scale":      defaults.Scale,
			"emission":   defaults.Emission.String(),
			"mesh":       defaults.Mesh.String(),
			"stl":        stlEncoding(defaults.STLASCII),
			"normals":    defaults.STLNormals,
			"bg":         "white",
		},
		"limits": map[string]any{
			"res":        map[string]int{"min": p.MinResolution, "max": p.MaxResolution},
			"brightness": map[string]int{"min": minBrightness, "max": maxBrightness},
			"gamma":      map[string]float64{"min": minGamma, "max": maxGamma},
			"depthScale": map[string]float64{"min": minDepthScale, "max": maxDepthScale},
			"scale":      map[string]float64{"min": minScale, "max": maxScale},
			"uploadBytes": map[string]int64{
				"max": s.cfg.Server.MaxUploadBytes,
			},
		},
	}
	writeJSON(w, http.StatusOK, response)
}

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}

	switch core.KindOf(err) {
	case core.ErrInvalidParameter, core.ErrImageDecode, core.ErrInsufficientGeometry, core.ErrInvalidGeometry:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err against the request and writes the mapped error response
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestTimeout bounds a request context by the server write timeout
func (s *Server) requestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := s.cfg.Server.WriteTimeout; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func stlEncoding(ascii bool) string {
	if ascii {
		return "ascii"
	}
	return "binary"
}
