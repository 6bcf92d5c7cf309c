package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/duck"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/llm"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/lookup"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/orchestrator"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/prompts"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/summarize"
)

type Config struct {
	Logger  *slog.Logger
	CSVPath string

	// DBPath is the DuckDB file; empty means in-memory.
	DBPath   string
	RowLimit int

	Provider          llm.ProviderConfig
	GenerationTimeout time.Duration
	MaxRetries        uint

	// LLM overrides the provider configuration.
	LLM   llm.Client
	Clock clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.CSVPath == "" {
		return fmt.Errorf("csv path is required")
	}
	if cfg.RowLimit <= 0 {
		cfg.RowLimit = sqlgen.DefaultRowLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// App is a loaded dataset with the question pipeline built over it.
type App struct {
	Store        *store.Store
	Validator    *sqlgen.Validator
	Orchestrator *orchestrator.Orchestrator

	// Provider names the model behind the pipeline, or is empty in
	// deterministic mode.
	Provider string

	db interface{ Close() error }
}

// New opens the database, loads the CSV and assembles the pipeline.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger

	db, err := duck.NewDB(ctx, cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &App{db: db}

	a.Store, err = store.New(store.Config{Logger: log, DB: db})
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.Store.Load(ctx, cfg.CSVPath); err != nil {
		a.Close()
		return nil, err
	}

	client, provider, err := modelClient(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Provider = provider

	if err := a.build(cfg, client); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func modelClient(cfg Config) (llm.Client, string, error) {
	client, provider := cfg.LLM, "custom"
	if client == nil {
		var err error
		client, provider, err = llm.NewFromConfig(cfg.Logger, cfg.Provider)
		if err != nil {
			return nil, "", err
		}
		if client == nil {
			return nil, "", nil
		}
	}
	guard, err := llm.NewGuard(client, llm.GuardConfig{
		Logger:     cfg.Logger,
		Provider:   provider,
		Timeout:    cfg.GenerationTimeout,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, "", err
	}
	return guard, provider, nil
}

func (a *App) build(cfg Config, client llm.Client) error {
	log := cfg.Logger
	a.Validator = sqlgen.NewValidator(cfg.RowLimit)

	p, err := prompts.Load(sqlgen.Table, planner.AllowedColumns)
	if err != nil {
		return err
	}

	synth, err := sqlgen.NewSynthesizer(sqlgen.SynthesizerConfig{Logger: log, Validator: a.Validator, Prompts: p, LLM: client})
	if err != nil {
		return fmt.Errorf("failed to create synthesizer: %w", err)
	}
	summ, err := summarize.New(summarize.Config{Logger: log, Prompts: p, LLM: client})
	if err != nil {
		return fmt.Errorf("failed to create summarizer: %w", err)
	}
	lane, err := lookup.New(lookup.Config{Logger: log, Validator: a.Validator, Store: a.Store, Prompts: p, LLM: client})
	if err != nil {
		return fmt.Errorf("failed to create lookup lane: %w", err)
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Config{
		Logger:      log,
		Clock:       cfg.Clock,
		Synthesizer: synth,
		Store:       a.Store,
		Summarizer:  summ,
		Lookup:      lane,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return nil
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
