package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmmcquay/katago-web/internal/config"
	"github.com/dmmcquay/katago-web/internal/health"
	"github.com/dmmcquay/katago-web/internal/katago"
	"github.com/dmmcquay/katago-web/internal/logging"
	"github.com/dmmcquay/katago-web/internal/ratelimit"
)

// Recorder receives HTTP request metrics.
type Recorder interface {
	RecordHTTPRequest(method, path, status string, durationSecs float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordHTTPRequest(method, path, status string, durationSecs float64) {}

// HTTPServer serves the static front-end, the engine API, health checks and
// metrics on one listener.
type HTTPServer struct {
	server   *http.Server
	logger   logging.ContextLogger
	engine   katago.Service
	checker  *health.Checker
	limiter  *ratelimit.Limiter
	recorder Recorder
	static   http.Handler
	maxBody  int64

	listener net.Listener
}

// NewHTTPServer builds the server. limiter and recorder may be nil.
func NewHTTPServer(cfg *config.ServerConfig, engine katago.Service, checker *health.Checker, limiter *ratelimit.Limiter, logger logging.ContextLogger, recorder Recorder) *HTTPServer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	s := &HTTPServer{
		logger:   logger,
		engine:   engine,
		checker:  checker,
		limiter:  limiter,
		recorder: recorder,
		static:   newStaticHandler(cfg.StaticDir, logger),
		maxBody:  cfg.MaxBodyBytes,
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.Seconds(cfg.ReadTimeout),
		WriteTimeout: config.Seconds(cfg.WriteTimeout),
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/katago/status", s.handleStatus)
	mux.HandleFunc("POST /api/katago/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/katago/analyze-position", s.handleAnalyzePosition)
	mux.HandleFunc("POST /api/katago/start", s.handleStart)
	mux.HandleFunc("POST /api/katago/stop", s.handleStop)
	mux.HandleFunc("/api/", s.handleUnknownAPI)

	mux.HandleFunc("GET /health", s.checker.LivenessHandler())
	mux.HandleFunc("GET /ready", s.checker.ReadinessHandler())
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("/", s.static)

	var handler http.Handler = mux
	handler = RateLimitMiddleware(s.limiter)(handler)
	handler = PrometheusMiddleware(s.recorder)(handler)
	handler = AccessLog(s.logger)(handler)
	handler = RequestID(handler)
	return handler
}

// Start listens on the configured address and serves in the background.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the HTTP server.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
