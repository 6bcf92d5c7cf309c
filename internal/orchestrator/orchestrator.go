package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/franchise"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/lookup"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/metrics"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/summarize"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, plan planner.QueryPlan) (sqlgen.Statement, error)
}

type Executor interface {
	Execute(ctx context.Context, stmt sqlgen.Statement) (store.ResultSet, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, in summarize.Input) string
}

type LookupLane interface {
	Run(ctx context.Context, question string) lookup.Outcome
}

type Config struct {
	Logger      *slog.Logger
	Clock       clockwork.Clock
	Synthesizer Synthesizer
	Store       Executor
	Summarizer  Summarizer
	Lookup      LookupLane
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Synthesizer == nil {
		return fmt.Errorf("synthesizer is required")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store is required")
	}
	if cfg.Summarizer == nil {
		return fmt.Errorf("summarizer is required")
	}
	if cfg.Lookup == nil {
		return fmt.Errorf("lookup lane is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Meta describes how an answer was produced.
type Meta struct {
	Intent            intent.Intent       `json:"intent"`
	MetricLabel       string              `json:"metric_label,omitempty"`
	FranchiseWeighted *franchise.Weighted `json:"franchise_weighted,omitempty"`
	SQLProvenance     sqlgen.Provenance   `json:"sql_provenance,omitempty"`
	SQL               string              `json:"sql,omitempty"`
	LookupState       lookup.State        `json:"lookup_state,omitempty"`
	ElapsedMS         int64               `json:"elapsed_ms"`
}

// Envelope is the response to one question. Data is a store.ResultSet or
// nil.
type Envelope struct {
	Kind   intent.Intent `json:"kind"`
	Answer string        `json:"answer"`
	Data   any           `json:"data"`
	Meta   Meta          `json:"meta"`
}

type handler func(ctx context.Context, in intent.Intent, question string) (Envelope, error)

type Orchestrator struct {
	log      *slog.Logger
	cfg      Config
	handlers map[intent.Intent]handler
}

func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{log: cfg.Logger, cfg: cfg}
	o.handlers = map[intent.Intent]handler{
		intent.Rankings:     o.answerWithSQL,
		intent.Summary:      o.answerWithSQL,
		intent.FranchiseAvg: o.answerWithSQL,
		intent.Lookup:       o.answerLookup,
		intent.OutOfScope:   o.answerOutOfScope,
	}
	return o, nil
}

// RouteAndExecute classifies a question and answers it. Anticipated
// failures become answers; only unexpected ones are returned as errors.
func (o *Orchestrator) RouteAndExecute(ctx context.Context, question string) (Envelope, error) {
	start := o.cfg.Clock.Now()
	in := intent.Classify(question)
	metrics.QuestionsTotal.WithLabelValues(in.String()).Inc()

	h, ok := o.handlers[in]
	if !ok {
		return Envelope{}, fmt.Errorf("no handler for intent %s", in)
	}
	env, err := h(ctx, in, question)
	if err != nil {
		o.log.Error("orchestrator: failed to answer", "intent", in, "question", question, "error", err)
		return Envelope{}, err
	}

	env.Kind = in
	env.Meta.Intent = in
	env.Meta.ElapsedMS = o.cfg.Clock.Since(start).Milliseconds()
	o.log.Debug("orchestrator: answered", "intent", in, "provenance", env.Meta.SQLProvenance, "elapsed_ms", env.Meta.ElapsedMS)
	return env, nil
}

func (o *Orchestrator) answerOutOfScope(_ context.Context, _ intent.Intent, _ string) (Envelope, error) {
	return Envelope{Answer: summarize.OutOfScope()}, nil
}

func (o *Orchestrator) answerLookup(ctx context.Context, _ intent.Intent, question string) (Envelope, error) {
	out := o.cfg.Lookup.Run(ctx, question)
	env := Envelope{
		Answer: out.Answer,
		Meta: Meta{
			SQLProvenance: out.Provenance,
			SQL:           out.SQL,
			LookupState:   out.State,
		},
	}
	if out.State == lookup.StateDone {
		env.Data = out.Result
	}
	return env, nil
}

func (o *Orchestrator) answerWithSQL(ctx context.Context, in intent.Intent, question string) (Envelope, error) {
	plan, err := planner.Plan(in, question)
	if err != nil {
		var entErr *planner.EntityResolutionError
		if errors.As(err, &entErr) {
			return Envelope{Answer: summarize.NeedMoreDetail(entErr.Entity)}, nil
		}
		return Envelope{}, fmt.Errorf("failed to plan question: %w", err)
	}

	var env Envelope
	if in == intent.Rankings {
		env.Meta.MetricLabel = plan.Metric.Label
	}

	stmt, err := o.cfg.Synthesizer.Synthesize(ctx, plan)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to synthesize sql: %w", err)
	}
	env.Meta.SQLProvenance = stmt.Provenance
	env.Meta.SQL = stmt.SQL

	rs, err := o.cfg.Store.Execute(ctx, stmt)
	if err != nil {
		var execErr *store.ExecutionError
		if errors.As(err, &execErr) {
			o.log.Warn("orchestrator: statement failed", "intent", in, "provenance", stmt.Provenance, "sql", execErr.SQL, "error", execErr.Err)
			env.Answer = summarize.GenericFailure()
			return env, nil
		}
		return Envelope{}, fmt.Errorf("failed to execute sql: %w", err)
	}
	env.Data = rs

	var weighted *franchise.Weighted
	if in == intent.FranchiseAvg {
		if len(rs.Rows) == 0 {
			env.Answer = summarize.NotFound(plan.Entities.Franchise.Label, nil)
			return env, nil
		}
		weighted = franchise.Aggregate(rs)
		env.Meta.FranchiseWeighted = weighted
	}

	env.Answer = o.cfg.Summarizer.Summarize(ctx, summarize.Input{
		Question: question,
		Plan:     plan,
		Result:   rs,
		Weighted: weighted,
	})
	return env, nil
}
