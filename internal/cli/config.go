package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/app"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/llm"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
)

const (
	defaultCSVPath     = "data/games.csv"
	defaultDBPath      = ":memory:"
	defaultListenAddr  = "0.0.0.0:8000"
	defaultMetricsAddr = "0.0.0.0:8080"

	envCSVPath           = "GAMES_CSV_PATH"
	envDBPath            = "GAMESQL_DB_PATH"
	envAnthropicAPIKey   = "ANTHROPIC_API_KEY"
	envOpenAIAPIKey      = "OPENAI_API_KEY"
	envModelProvider     = "GAMESQL_MODEL_PROVIDER"
	envModel             = "GAMESQL_MODEL"
	envGenerationTimeout = "GAMESQL_GENERATION_TIMEOUT"
	envRowLimit          = "GAMESQL_ROW_LIMIT"
	envListenAddr        = "GAMESQL_LISTEN_ADDR"
	envMetricsAddr       = "GAMESQL_METRICS_ADDR"
)

// Settings is the resolved configuration shared by every command.
type Settings struct {
	CSVPath           string
	DBPath            string
	Provider          string
	Model             string
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	GenerationTimeout time.Duration
	MaxRetries        uint
	RowLimit          int
}

func addDatasetFlags(fs *flag.FlagSet) {
	fs.String("csv", defaultCSVPath, "path to the games CSV (or set "+envCSVPath+")")
	fs.String("db-path", defaultDBPath, "DuckDB database file, :memory: for in-memory (or set "+envDBPath+")")
	fs.String("provider", "", "model provider: anthropic, openai or none (or set "+envModelProvider+")")
	fs.String("model", "", "model name override (or set "+envModel+")")
	fs.Duration("generation-timeout", llm.DefaultTimeout, "per-call model timeout (or set "+envGenerationTimeout+")")
	fs.Uint("max-retries", llm.DefaultMaxRetries, "model retries after the first attempt")
	fs.Int("row-limit", sqlgen.DefaultRowLimit, "maximum LIMIT accepted by the SQL validator (or set "+envRowLimit+")")
}

// resolve returns the flag value when it was set on the command line, then
// the environment variable, then the flag default.
func resolve(fs *flag.FlagSet, name, env string, getenv func(string) string) (string, error) {
	f := fs.Lookup(name)
	if f == nil {
		return "", fmt.Errorf("unknown flag %q", name)
	}
	if f.Changed {
		return f.Value.String(), nil
	}
	if env != "" {
		if v := getenv(env); v != "" {
			return v, nil
		}
	}
	return f.Value.String(), nil
}

func loadSettings(fs *flag.FlagSet, getenv func(string) string) (Settings, error) {
	var s Settings
	var err error

	if s.CSVPath, err = resolve(fs, "csv", envCSVPath, getenv); err != nil {
		return Settings{}, err
	}
	if s.DBPath, err = resolve(fs, "db-path", envDBPath, getenv); err != nil {
		return Settings{}, err
	}
	if s.Provider, err = resolve(fs, "provider", envModelProvider, getenv); err != nil {
		return Settings{}, err
	}
	if s.Model, err = resolve(fs, "model", envModel, getenv); err != nil {
		return Settings{}, err
	}
	s.AnthropicAPIKey = getenv(envAnthropicAPIKey)
	s.OpenAIAPIKey = getenv(envOpenAIAPIKey)

	timeout, err := resolve(fs, "generation-timeout", envGenerationTimeout, getenv)
	if err != nil {
		return Settings{}, err
	}
	if s.GenerationTimeout, err = time.ParseDuration(timeout); err != nil {
		return Settings{}, fmt.Errorf("invalid generation timeout %q: %w", timeout, err)
	}
	if s.GenerationTimeout <= 0 {
		return Settings{}, fmt.Errorf("generation timeout must be positive, got %s", s.GenerationTimeout)
	}

	retries, err := resolve(fs, "max-retries", "", getenv)
	if err != nil {
		return Settings{}, err
	}
	n, err := strconv.ParseUint(retries, 10, 32)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid max retries %q: %w", retries, err)
	}
	s.MaxRetries = uint(n)

	rowLimit, err := resolve(fs, "row-limit", envRowLimit, getenv)
	if err != nil {
		return Settings{}, err
	}
	if s.RowLimit, err = strconv.Atoi(rowLimit); err != nil {
		return Settings{}, fmt.Errorf("invalid row limit %q: %w", rowLimit, err)
	}
	if s.RowLimit <= 0 || s.RowLimit > sqlgen.DefaultRowLimit {
		return Settings{}, fmt.Errorf("row limit must be between 1 and %d, got %d", sqlgen.DefaultRowLimit, s.RowLimit)
	}

	if s.CSVPath == "" {
		return Settings{}, fmt.Errorf("csv path is required (--csv or %s)", envCSVPath)
	}
	return s, nil
}

// AppConfig turns settings into the pipeline configuration.
func (s Settings) AppConfig(log *slog.Logger) (app.Config, error) {
	dbPath := s.DBPath
	if dbPath == defaultDBPath {
		dbPath = ""
	}
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return app.Config{}, fmt.Errorf("failed to create database directory: %w", err)
		}
		log.Info("using persistent database", "path", dbPath)
	} else {
		log.Debug("using in-memory database")
	}

	return app.Config{
		Logger:   log,
		CSVPath:  s.CSVPath,
		DBPath:   dbPath,
		RowLimit: s.RowLimit,
		Provider: llm.ProviderConfig{
			Provider:        s.Provider,
			Model:           s.Model,
			AnthropicAPIKey: s.AnthropicAPIKey,
			OpenAIAPIKey:    s.OpenAIAPIKey,
		},
		GenerationTimeout: s.GenerationTimeout,
		MaxRetries:        s.MaxRetries,
	}, nil
}

func openApp(ctx context.Context, fs *flag.FlagSet, log *slog.Logger) (*app.App, error) {
	settings, err := loadSettings(fs, os.Getenv)
	if err != nil {
		return nil, err
	}
	cfg, err := settings.AppConfig(log)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}
	if a.Provider == "" {
		log.Info("answering with deterministic templates only")
	} else {
		log.Info("answering with model", "provider", a.Provider)
	}
	return a, nil
}
