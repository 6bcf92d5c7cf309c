package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/metrics"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/orchestrator"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/planner"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

type AskInput struct {
	Question string `json:"question" jsonschema:"Question about the video game sales dataset, in Portuguese or English. Examples: top 10 vendas globais em 2010, Qual a média de nota da franquia Zelda?, em quais plataformas saiu gta 5?"`
}

type AskOutput struct {
	Kind    string            `json:"kind"`
	Answer  string            `json:"answer"`
	Meta    orchestrator.Meta `json:"meta"`
	Columns []string          `json:"columns"`
	Rows    []QueryRow        `json:"rows"`
	Count   int               `json:"count"`
}

type QueryInput struct {
	SQL string `json:"sql" jsonschema:"A single read-only SELECT over the games table. Comments, CTEs, SELECT * and other tables are rejected. Always include LIMIT."`
}

type QueryOutput struct {
	Columns []string   `json:"columns"`
	Rows    []QueryRow `json:"rows"`
	Count   int        `json:"count"`
}

type QueryRow map[string]any

func (s *Server) registerAskTool() error {
	const toolName = "ask"

	req, err := jsonschema.For[AskInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create ask input schema: %w", err)
	}
	res, err := jsonschema.For[AskOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create ask output schema: %w", err)
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:         toolName,
		Description:  "Answer a natural-language question about video game sales and review scores. Returns the answer text, the rows it was computed from and how the SQL was produced.",
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req AskInput) (*mcp.CallToolResult, AskOutput, error) {
		startTime := time.Now()
		res, err := s.handleAsk(ctx, req)
		recordToolCall(toolName, startTime, err)
		if err != nil {
			return nil, AskOutput{}, err
		}
		return nil, res, nil
	})
	return nil
}

func (s *Server) registerQueryTool() error {
	const toolName = "query"

	req, err := jsonschema.For[QueryInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create query input schema: %w", err)
	}
	res, err := jsonschema.For[QueryOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create query output schema: %w", err)
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: toolName,
		Description: fmt.Sprintf("Run one validated read-only SELECT against the %s table. Columns: %s. Results are capped at %d rows.",
			sqlgen.Table, strings.Join(planner.AllowedColumns, ", "), s.cfg.Validator.RowLimit()),
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
		startTime := time.Now()
		s.log.Debug("mcp/tool: handling query", "sql", req.SQL)
		res, err := s.handleQuery(ctx, req)
		recordToolCall(toolName, startTime, err)
		if err != nil {
			return nil, QueryOutput{}, err
		}
		return nil, res, nil
	})
	return nil
}

func recordToolCall(toolName string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ToolCallsTotal.WithLabelValues(toolName, status).Inc()
	metrics.ToolCallDuration.WithLabelValues(toolName).Observe(time.Since(start).Seconds())
}

func (s *Server) handleAsk(ctx context.Context, req AskInput) (AskOutput, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return AskOutput{}, fmt.Errorf("question is required")
	}
	env, err := s.cfg.Orchestrator.RouteAndExecute(ctx, question)
	if err != nil {
		return AskOutput{}, fmt.Errorf("failed to answer question: %w", err)
	}

	out := AskOutput{
		Kind:    env.Kind.String(),
		Answer:  env.Answer,
		Meta:    env.Meta,
		Columns: []string{},
		Rows:    []QueryRow{},
	}
	if rs, ok := env.Data.(store.ResultSet); ok {
		out.Columns = rs.Columns
		out.Rows = toQueryRows(rs)
		out.Count = rs.Count
	}
	return out, nil
}

func (s *Server) handleQuery(ctx context.Context, req QueryInput) (QueryOutput, error) {
	if err := s.cfg.Validator.Validate(req.SQL); err != nil {
		return QueryOutput{}, err
	}
	rs, err := s.cfg.Querier.Query(ctx, req.SQL)
	if err != nil {
		return QueryOutput{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return QueryOutput{
		Columns: rs.Columns,
		Rows:    toQueryRows(rs),
		Count:   rs.Count,
	}, nil
}

func toQueryRows(rs store.ResultSet) []QueryRow {
	rows := make([]QueryRow, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		queryRow := make(QueryRow, len(rs.Columns))
		for _, col := range rs.Columns {
			queryRow[col] = row[col]
		}
		rows = append(rows, queryRow)
	}
	return rows
}
