// Package api serves analysis results over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chanlun/internal/config"
	"chanlun/internal/engine"
	"chanlun/internal/logging"
	"chanlun/internal/metrics"
	"chanlun/internal/models"
)

// Loader provides stored analysis for presentation.
type Loader interface {
	Load(ctx context.Context, symbol string, interval models.Interval) (*engine.View, error)
	Refresh(ctx context.Context, symbol string) ([]models.Run, error)
	Symbols(ctx context.Context) ([]string, error)
}

// Server is the HTTP front end.
type Server struct {
	cfg     *config.Config
	loader  Loader
	metrics *metrics.Metrics
	logger  zerolog.Logger
	server  *http.Server
}

// NewServer creates a server. metrics may be nil, in which case /metrics is
// not served.
func NewServer(cfg *config.Config, loader Loader, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		loader:  loader,
		metrics: m,
		logger:  logging.WithOperation(logger, "api"),
	}
	s.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("HTTP server shutdown error")
		if err := s.server.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("HTTP server force close error")
		}
	}
	return nil
}

// Handler returns the routed and logged handler.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.logger, s.ServeMux())
}

// ServeMux configures the HTTP routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.handle(mux, "GET /healthz", s.handleHealth)
	s.handle(mux, "GET /api/stocks", s.handleStocks)
	s.handle(mux, "GET /api/periods", s.handlePeriods)
	s.handle(mux, "GET /api/{symbol}/{interval}", s.handleData)
	s.handle(mux, "GET /chart/{symbol}/{interval}", s.handleChart)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// handle registers fn and records per-route metrics under pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		fn(lrw, r)
		s.metrics.ObserveHTTP(pattern, lrw.statusCode, time.Since(start))
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware tags every request with an ID, carries a request logger
// in its context and logs the status and latency.
func LoggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		reqLogger := logger.With().Str("request_id", id).Logger()

		w.Header().Set("X-Request-ID", id)
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(logging.WithLogger(r.Context(), reqLogger)))
		logging.LogAPICall(reqLogger, r.Method, r.URL.RequestURI(), lrw.statusCode, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
