package mcpserver

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/app"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/lookup"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/storetest"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/summarize"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(t.Context(), app.Config{Logger: log, CSVPath: storetest.CSVPath(t)})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	s, err := New(Config{
		Logger:       log,
		Orchestrator: a.Orchestrator,
		Querier:      a.Store,
		Validator:    a.Validator,
	})
	require.NoError(t, err)
	return s
}

func TestGames_MCPServer_New(t *testing.T) {
	t.Parallel()

	s := testServer(t)
	require.Equal(t, "dev", s.cfg.Version)
	require.NotNil(t, s.Handler())

	_, err := New(Config{})
	require.Error(t, err)
}

func TestGames_MCPServer_Ask(t *testing.T) {
	t.Parallel()

	s := testServer(t)

	t.Run("rankings", func(t *testing.T) {
		t.Parallel()

		out, err := s.handleAsk(t.Context(), AskInput{Question: "top 7 vendas na américa do norte"})
		require.NoError(t, err)
		require.Equal(t, "rankings", out.Kind)
		require.Equal(t, "na_sales", out.Meta.MetricLabel)
		require.Equal(t, 7, out.Count)
		require.Len(t, out.Rows, 7)
		require.Equal(t, "Wii Sports", out.Rows[0]["name"])
	})

	t.Run("out of scope", func(t *testing.T) {
		t.Parallel()

		out, err := s.handleAsk(t.Context(), AskInput{Question: "top 10 bananas"})
		require.NoError(t, err)
		require.Equal(t, "out_of_scope", out.Kind)
		require.Equal(t, summarize.OutOfScope(), out.Answer)
		require.Empty(t, out.Rows)
		require.NotNil(t, out.Rows)
	})

	t.Run("lookup failure", func(t *testing.T) {
		t.Parallel()

		out, err := s.handleAsk(t.Context(), AskInput{Question: "em quais plataformas saiu the witcher 3?"})
		require.NoError(t, err)
		require.Equal(t, lookup.FailedAnswer, out.Answer)
		require.Equal(t, lookup.StateFailed, out.Meta.LookupState)
	})

	t.Run("blank question", func(t *testing.T) {
		t.Parallel()

		_, err := s.handleAsk(t.Context(), AskInput{Question: "  "})
		require.Error(t, err)
	})
}

func TestGames_MCPServer_Query(t *testing.T) {
	t.Parallel()

	s := testServer(t)

	t.Run("validated select runs", func(t *testing.T) {
		t.Parallel()

		out, err := s.handleQuery(t.Context(), QueryInput{SQL: "SELECT platform, COUNT(*) AS titles FROM games WHERE platform = 'PS4' GROUP BY platform LIMIT 5"})
		require.NoError(t, err)
		require.Equal(t, []string{"platform", "titles"}, out.Columns)
		require.Equal(t, 1, out.Count)
		require.Equal(t, "PS4", out.Rows[0]["platform"])
	})

	t.Run("unsafe statements never run", func(t *testing.T) {
		t.Parallel()

		for _, sql := range []string{
			"DROP TABLE games",
			"SELECT * FROM games LIMIT 1",
			"SELECT name FROM games; DELETE FROM games",
			"SELECT name FROM other_table LIMIT 1",
			"SELECT name FROM games, '/etc/passwd' LIMIT 5",
			"SELECT (SELECT name FROM '/etc/hosts' LIMIT 1) AS leak, name FROM games LIMIT 1",
		} {
			_, err := s.handleQuery(t.Context(), QueryInput{SQL: sql})
			var rej *sqlgen.ValidationRejectedError
			require.ErrorAs(t, err, &rej, sql)
		}

		out, err := s.handleQuery(t.Context(), QueryInput{SQL: "SELECT COUNT(*) AS n FROM games LIMIT 1"})
		require.NoError(t, err)
		n, ok := out.Rows[0]["n"].(int64)
		require.True(t, ok)
		require.Equal(t, int64(storetest.Rows), n)
	})
}
