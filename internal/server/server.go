package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr string // Listen address, e.g. ":8080"
}

// StatusSource exposes the live state the status endpoint reports.
// The engine and risk guard satisfy the pieces it needs.
type StatusSource interface {
	LastBalance() int64
	Breaker() domain.CircuitBreakerState
	Exposure() (int64, int)
	DailyPnL() int64
}

// Server is the read-only query surface over the trade projection. It
// never places, modifies or cancels anything; mutation stays with the
// engine.
type Server struct {
	httpServer *http.Server
	logger     ports.Logger
}

// New creates the server with all routes registered.
func New(cfg Config, repo ports.TradeRepository, status StatusSource, logger ports.Logger) (*Server, error) {
	if repo == nil || status == nil || logger == nil {
		return nil, fmt.Errorf("repository, status source and logger are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	h := &handlers{repo: repo, status: status, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/trades", h.listTrades)
	mux.HandleFunc("GET /api/trades/{id}", h.getTrade)
	mux.HandleFunc("GET /api/summary/daily", h.dailySummary)
	mux.HandleFunc("GET /api/status", h.engineStatus)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      logging(logger)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}, nil
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "http server starting", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "http server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// logging records each request with method, path, status and duration.
func logging(logger ports.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug(r.Context(), "http request", map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			})
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
