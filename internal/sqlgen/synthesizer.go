package sqlgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/llm"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/metrics"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/prompts"
)

// Provenance tells callers which path produced a statement.
type Provenance string

const (
	ProvenanceModel    Provenance = "model-generated"
	ProvenanceFallback Provenance = "deterministic-fallback"
)

type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Statement is a candidate query together with where it came from and
// whether the validator accepted it.
type Statement struct {
	SQL         string     `json:"sql"`
	Provenance  Provenance `json:"provenance"`
	Verdict     Verdict    `json:"verdict"`
	Explanation string     `json:"explanation,omitempty"`
}

type SynthesizerConfig struct {
	Logger    *slog.Logger
	Validator *Validator
	Prompts   *prompts.Prompts

	// LLM is optional. Without it every statement comes from the templates.
	LLM llm.Client
}

func (cfg *SynthesizerConfig) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Validator == nil {
		return fmt.Errorf("validator is required")
	}
	if cfg.LLM != nil && cfg.Prompts == nil {
		return fmt.Errorf("prompts are required when an LLM is configured")
	}
	return nil
}

type Synthesizer struct {
	log *slog.Logger
	cfg SynthesizerConfig
}

func NewSynthesizer(cfg SynthesizerConfig) (*Synthesizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Synthesizer{log: cfg.Logger, cfg: cfg}, nil
}

// Synthesize returns a validated statement for the plan. A model statement
// is used only if it passes validation; otherwise, and whenever the model
// times out or is unavailable, the deterministic template is used. The
// model is asked at most once per call.
func (s *Synthesizer) Synthesize(ctx context.Context, plan planner.QueryPlan) (Statement, error) {
	if s.cfg.LLM != nil {
		stmt, err := s.generate(ctx, plan)
		if err == nil {
			metrics.StatementsTotal.WithLabelValues(plan.Intent.String(), string(ProvenanceModel)).Inc()
			return stmt, nil
		}
		var rej *ValidationRejectedError
		switch {
		case errors.As(err, &rej):
			s.log.Warn("sqlgen: model statement rejected, using template", "intent", plan.Intent, "reason", rej.Reason, "detail", rej.Detail, "sql", rej.SQL)
		case llm.IsGenerationFailure(err):
			s.log.Info("sqlgen: model unavailable, using template", "intent", plan.Intent, "error", err)
		default:
			s.log.Warn("sqlgen: model reply unusable, using template", "intent", plan.Intent, "error", err)
		}
	}
	return s.Fallback(plan)
}

// Fallback builds and validates the deterministic statement for a plan. A
// template that fails validation is a programming error and is returned as
// such.
func (s *Synthesizer) Fallback(plan planner.QueryPlan) (Statement, error) {
	sql, err := Template(plan, s.cfg.Validator.RowLimit())
	if err != nil {
		return Statement{}, fmt.Errorf("failed to build template: %w", err)
	}
	if err := s.cfg.Validator.Validate(sql); err != nil {
		return Statement{}, fmt.Errorf("template for %s failed validation: %w", plan.Intent, err)
	}
	metrics.StatementsTotal.WithLabelValues(plan.Intent.String(), string(ProvenanceFallback)).Inc()
	return Statement{
		SQL:        sql,
		Provenance: ProvenanceFallback,
		Verdict:    Verdict{Valid: true},
	}, nil
}

type generateRequest struct {
	Plan     planner.QueryPlan `json:"plan"`
	Table    string            `json:"table"`
	RowLimit int               `json:"row_limit"`
}

func (s *Synthesizer) generate(ctx context.Context, plan planner.QueryPlan) (Statement, error) {
	payload, err := json.Marshal(generateRequest{Plan: plan, Table: Table, RowLimit: s.cfg.Validator.RowLimit()})
	if err != nil {
		return Statement{}, fmt.Errorf("failed to encode plan: %w", err)
	}

	response, err := s.cfg.LLM.Complete(ctx, s.cfg.Prompts.Generate, string(payload))
	if err != nil {
		return Statement{}, err
	}

	sql, explanation, err := ParseGenerateResponse(response)
	if err != nil {
		return Statement{}, fmt.Errorf("failed to parse generate response: %w", err)
	}
	if err := s.cfg.Validator.Validate(sql); err != nil {
		return Statement{}, err
	}
	s.log.Debug("sqlgen: model statement accepted", "intent", plan.Intent, "sql", sql)
	return Statement{
		SQL:         sql,
		Provenance:  ProvenanceModel,
		Verdict:     Verdict{Valid: true},
		Explanation: explanation,
	}, nil
}
