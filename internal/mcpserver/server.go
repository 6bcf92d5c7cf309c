package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/orchestrator"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

type Asker interface {
	RouteAndExecute(ctx context.Context, question string) (orchestrator.Envelope, error)
}

type Querier interface {
	Query(ctx context.Context, sql string) (store.ResultSet, error)
}

type Config struct {
	Logger       *slog.Logger
	Version      string
	Orchestrator Asker
	Querier      Querier
	Validator    *sqlgen.Validator
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Orchestrator == nil {
		return fmt.Errorf("orchestrator is required")
	}
	if cfg.Querier == nil {
		return fmt.Errorf("querier is required")
	}
	if cfg.Validator == nil {
		return fmt.Errorf("validator is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return nil
}

type Server struct {
	log *slog.Logger
	cfg Config
	mcp *mcp.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "Games Analytics MCP Server",
			Version: cfg.Version,
		}, nil),
	}

	if err := s.registerAskTool(); err != nil {
		return nil, fmt.Errorf("failed to register ask tool: %w", err)
	}
	if err := s.registerQueryTool(); err != nil {
		return nil, fmt.Errorf("failed to register query tool: %w", err)
	}
	return s, nil
}

// Handler serves the tools over stateless streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})
}
