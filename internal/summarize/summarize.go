package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/franchise"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/llm"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/prompts"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

// previewRows caps the rows sent to the model.
const previewRows = 12

type Config struct {
	Logger  *slog.Logger
	Prompts *prompts.Prompts

	// LLM is optional. Without it every answer comes from the templates.
	LLM llm.Client
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.LLM != nil && cfg.Prompts == nil {
		return fmt.Errorf("prompts are required when an LLM is configured")
	}
	return nil
}

// Input is everything the summarizer may draw numbers from.
type Input struct {
	Question string
	Plan     planner.QueryPlan
	Result   store.ResultSet
	Weighted *franchise.Weighted
}

type Summarizer struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Summarizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Summarizer{log: cfg.Logger, cfg: cfg}, nil
}

// Summarize phrases a computed result. Franchise averages always use the
// fixed template so the reported numbers are exactly the computed ones.
func (s *Summarizer) Summarize(ctx context.Context, in Input) string {
	if in.Plan.Intent == intent.FranchiseAvg && in.Weighted != nil {
		return Franchise(franchiseLabel(in.Plan), in.Weighted)
	}
	if len(in.Result.Rows) == 0 {
		return NoData()
	}

	if s.cfg.LLM != nil {
		answer, err := s.phrase(ctx, in)
		if err == nil {
			return answer
		}
		s.log.Info("summarize: model phrasing unavailable, using template", "intent", in.Plan.Intent, "error", err)
	}
	return Fallback(in)
}

// Fallback renders the deterministic answer for an input.
func Fallback(in Input) string {
	if len(in.Result.Rows) == 0 {
		return NoData()
	}
	switch in.Plan.Intent {
	case intent.Summary:
		return DatasetSummary(in.Result)
	case intent.FranchiseAvg:
		if w := franchise.Aggregate(in.Result); w != nil {
			return Franchise(franchiseLabel(in.Plan), w)
		}
	}
	return Rankings(in.Plan, in.Result)
}

type phraseRequest struct {
	Question    string              `json:"question"`
	Intent      intent.Intent       `json:"intent"`
	Metric      string              `json:"metric,omitempty"`
	Filters     intent.EntityBundle `json:"filters"`
	TopN        int                 `json:"top_n,omitempty"`
	RowsPreview []store.Row         `json:"rows_preview"`
}

func (s *Summarizer) phrase(ctx context.Context, in Input) (string, error) {
	payload, err := json.Marshal(phraseRequest{
		Question:    in.Question,
		Intent:      in.Plan.Intent,
		Metric:      in.Plan.Metric.Label,
		Filters:     in.Plan.Entities,
		TopN:        in.Plan.Limit,
		RowsPreview: in.Result.Rows[:min(previewRows, len(in.Result.Rows))],
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}

	answer, err := s.cfg.LLM.Complete(ctx, s.cfg.Prompts.Summarize, string(payload))
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("empty answer")
	}
	return answer, nil
}

func franchiseLabel(p planner.QueryPlan) string {
	if f := p.Entities.Franchise; f != nil && f.Label != "" {
		return f.Label
	}
	return "consultada"
}
