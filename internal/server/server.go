package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/metrics"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/orchestrator"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultRequestTimeout  = 60 * time.Second
)

type Asker interface {
	RouteAndExecute(ctx context.Context, question string) (orchestrator.Envelope, error)
}

type Dataset interface {
	Summary(ctx context.Context) (store.DatasetSummary, error)
	Execute(ctx context.Context, stmt sqlgen.Statement) (store.ResultSet, error)
}

type Config struct {
	Logger       *slog.Logger
	Version      string
	Orchestrator Asker
	Dataset      Dataset
	Validator    *sqlgen.Validator

	AllowedOrigins  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Orchestrator == nil {
		return fmt.Errorf("orchestrator is required")
	}
	if cfg.Dataset == nil {
		return fmt.Errorf("dataset is required")
	}
	if cfg.Validator == nil {
		return fmt.Errorf("validator is required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}

type Server struct {
	log      *slog.Logger
	cfg      Config
	validate *validator.Validate
	router   chi.Router
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log:      cfg.Logger,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		r.Get("/ask", s.handleAskQuery)
		r.Post("/ask", s.handleAskBody)
		r.Get("/dataset/summary", s.handleDatasetSummary)
		r.Get("/franchises/{slug}", s.handleFranchise)
		r.Get("/games/rankings", s.handleRankings)
		r.Get("/games/{name}", s.handleGame)
	})
	if s.cfg.MCP != nil {
		r.Handle("/mcp", s.cfg.MCP)
		r.Handle("/mcp/*", s.cfg.MCP)
	}
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on lis until ctx is done, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "address", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	s.log.Info("server: stopped")
	return nil
}
