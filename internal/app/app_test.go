package app_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/app"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/llm"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/llm/llmtest"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/storetest"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestGames_App_New(t *testing.T) {
	t.Parallel()

	t.Run("deterministic mode", func(t *testing.T) {
		t.Parallel()

		a, err := app.New(t.Context(), app.Config{
			Logger:   logger,
			CSVPath:  storetest.CSVPath(t),
			Provider: llm.ProviderConfig{Provider: "none"},
		})
		require.NoError(t, err)
		t.Cleanup(a.Close)
		require.Empty(t, a.Provider)
		require.Equal(t, sqlgen.DefaultRowLimit, a.Validator.RowLimit())

		env, err := a.Orchestrator.RouteAndExecute(t.Context(), "top 7 vendas na américa do norte")
		require.NoError(t, err)
		require.Equal(t, intent.Rankings, env.Kind)
		require.Equal(t, sqlgen.ProvenanceFallback, env.Meta.SQLProvenance)
	})

	t.Run("model statements are validated", func(t *testing.T) {
		t.Parallel()

		client := llmtest.Replies(`{"sql": "SELECT name, SUM(jp_sales) AS jp_sales FROM games GROUP BY name ORDER BY jp_sales DESC LIMIT 3", "explanation": "jp"}`)
		a, err := app.New(t.Context(), app.Config{
			Logger:  logger,
			CSVPath: storetest.CSVPath(t),
			LLM:     client,
		})
		require.NoError(t, err)
		t.Cleanup(a.Close)
		require.Equal(t, "custom", a.Provider)

		env, err := a.Orchestrator.RouteAndExecute(t.Context(), "top 3 vendas no japão")
		require.NoError(t, err)
		require.Equal(t, sqlgen.ProvenanceModel, env.Meta.SQLProvenance)
		require.NotEmpty(t, client.Calls())
	})

	t.Run("missing csv", func(t *testing.T) {
		t.Parallel()

		_, err := app.New(t.Context(), app.Config{Logger: logger, CSVPath: t.TempDir() + "/missing.csv"})
		require.Error(t, err)

		_, err = app.New(t.Context(), app.Config{Logger: logger})
		require.Error(t, err)
	})
}
