package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/llm"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/metrics"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/prompts"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

// FailedAnswer is the fixed answer of a lane that ends in FAILED.
const FailedAnswer = "Não consegui responder com lookup."

// Executor runs validated statements.
type Executor interface {
	Execute(ctx context.Context, stmt sqlgen.Statement) (store.ResultSet, error)
}

type Config struct {
	Logger    *slog.Logger
	Validator *sqlgen.Validator
	Store     Executor
	Prompts   *prompts.Prompts

	// LLM is optional. Without it only the deterministic shapes are answered.
	LLM llm.Client
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Validator == nil {
		return fmt.Errorf("validator is required")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store is required")
	}
	if cfg.LLM != nil && cfg.Prompts == nil {
		return fmt.Errorf("prompts are required when an LLM is configured")
	}
	return nil
}

// Outcome is the terminal result of one lane run.
type Outcome struct {
	State       State             `json:"state"`
	Answer      string            `json:"answer"`
	SQL         string            `json:"sql,omitempty"`
	Provenance  sqlgen.Provenance `json:"provenance,omitempty"`
	Result      store.ResultSet   `json:"result"`
	Transitions []Transition      `json:"transitions"`
}

type sqlPhaseRequest struct {
	Phase    string `json:"phase"`
	Question string `json:"question"`
}

type sqlPhaseReply struct {
	Reasoning string `json:"reasoning"`
	SQL       string `json:"sql"`
}

type answerPhaseRequest struct {
	Phase    string        `json:"phase"`
	Question string        `json:"question"`
	SQL      string        `json:"sql"`
	Result   answerPayload `json:"result"`
}

type answerPayload struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type answerPhaseReply struct {
	Reasoning string `json:"reasoning"`
	NL        string `json:"nl"`
	SQL       string `json:"sql,omitempty"`
}

type Lane struct {
	log *slog.Logger
	cfg Config

	sqlSchema    *jsonschema.Resolved
	answerSchema *jsonschema.Resolved
}

func New(cfg Config) (*Lane, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sqlSchema, err := resolveSchema[sqlPhaseReply]()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql phase schema: %w", err)
	}
	answerSchema, err := resolveSchema[answerPhaseReply]()
	if err != nil {
		return nil, fmt.Errorf("failed to build answer phase schema: %w", err)
	}
	return &Lane{log: cfg.Logger, cfg: cfg, sqlSchema: sqlSchema, answerSchema: answerSchema}, nil
}

func resolveSchema[T any]() (*jsonschema.Resolved, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	return schema.Resolve(nil)
}

// Run drives one question through GENERATING, EXECUTING and SUMMARIZING.
// Any failure or an empty result ends in FAILED with FailedAnswer; Run
// itself never returns an error.
func (l *Lane) Run(ctx context.Context, question string) Outcome {
	m := newMachine(l.log)
	out := l.run(ctx, m, question)
	out.State = m.state
	out.Transitions = m.history
	if m.state == StateFailed {
		out.Answer = FailedAnswer
	}
	metrics.LookupOutcomesTotal.WithLabelValues(string(m.state)).Inc()
	l.log.Info("lookup: finished", "state", m.state, "provenance", out.Provenance, "sql", out.SQL)
	return out
}

func (l *Lane) run(ctx context.Context, m *machine, question string) Outcome {
	var out Outcome

	stmt, q, err := l.generate(ctx, question)
	if err != nil {
		m.fail(err.Error())
		return out
	}
	out.SQL, out.Provenance = stmt.SQL, stmt.Provenance
	if err := m.to(StateExecuting, string(stmt.Provenance)); err != nil {
		m.fail(err.Error())
		return out
	}

	rs, err := l.cfg.Store.Execute(ctx, stmt)
	if err != nil {
		l.log.Warn("lookup: execution failed", "sql", stmt.SQL, "error", err)
		m.fail("execution failed")
		return out
	}
	out.Result = rs
	if empty(rs) {
		m.fail("empty result")
		return out
	}
	if err := m.to(StateSummarizing, fmt.Sprintf("%d rows", len(rs.Rows))); err != nil {
		m.fail(err.Error())
		return out
	}

	out.Answer = l.answer(ctx, question, stmt, q, rs)
	if err := m.to(StateDone, ""); err != nil {
		m.fail(err.Error())
	}
	return out
}

// generate returns a validated statement, preferring the model and falling
// back to the deterministic shapes. The returned Query has ShapeNone for
// model statements.
func (l *Lane) generate(ctx context.Context, question string) (sqlgen.Statement, Query, error) {
	if l.cfg.LLM != nil {
		sql, err := l.generateWithModel(ctx, question)
		if err == nil {
			if err = l.cfg.Validator.Validate(sql); err == nil {
				return sqlgen.Statement{SQL: sql, Provenance: sqlgen.ProvenanceModel, Verdict: sqlgen.Verdict{Valid: true}}, Query{}, nil
			}
		}
		var rej *sqlgen.ValidationRejectedError
		switch {
		case errors.As(err, &rej):
			l.log.Warn("lookup: model statement rejected", "reason", rej.Reason, "detail", rej.Detail, "sql", rej.SQL)
		case llm.IsGenerationFailure(err):
			l.log.Info("lookup: model unavailable", "error", err)
		default:
			l.log.Warn("lookup: model reply unusable", "error", err)
		}
	}

	q, ok := Generate(question)
	if !ok {
		return sqlgen.Statement{}, Query{}, fmt.Errorf("no lookup statement for question")
	}
	if err := l.cfg.Validator.Validate(q.SQL); err != nil {
		return sqlgen.Statement{}, Query{}, fmt.Errorf("deterministic lookup failed validation: %w", err)
	}
	return sqlgen.Statement{SQL: q.SQL, Provenance: sqlgen.ProvenanceFallback, Verdict: sqlgen.Verdict{Valid: true}}, q, nil
}

func (l *Lane) generateWithModel(ctx context.Context, question string) (string, error) {
	var reply sqlPhaseReply
	if err := l.call(ctx, sqlPhaseRequest{Phase: "sql", Question: question}, l.sqlSchema, &reply); err != nil {
		return "", err
	}
	sql := strings.TrimSuffix(strings.TrimSpace(reply.SQL), ";")
	if sql == "" {
		return "", fmt.Errorf("model declined to produce sql")
	}
	return sql, nil
}

func (l *Lane) answer(ctx context.Context, question string, stmt sqlgen.Statement, q Query, rs store.ResultSet) string {
	if l.cfg.LLM != nil {
		var reply answerPhaseReply
		req := answerPhaseRequest{
			Phase:    "answer",
			Question: question,
			SQL:      stmt.SQL,
			Result:   answerPayload{Columns: rs.Columns, Rows: rs.Values()},
		}
		err := l.call(ctx, req, l.answerSchema, &reply)
		if err == nil && strings.TrimSpace(reply.NL) != "" {
			return strings.TrimSpace(reply.NL)
		}
		l.log.Info("lookup: model answer unavailable, using template", "error", err)
	}
	return Describe(q, rs)
}

// call sends one phase payload and decodes the reply after checking it
// against the phase schema.
func (l *Lane) call(ctx context.Context, req any, schema *jsonschema.Resolved, dst any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	response, err := l.cfg.LLM.Complete(ctx, l.cfg.Prompts.Lookup, string(payload))
	if err != nil {
		return err
	}

	raw := sqlgen.ExtractJSON(response)
	if raw == "" {
		return fmt.Errorf("no JSON object in reply")
	}
	var instance map[string]any
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("reply does not match schema: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	return nil
}
