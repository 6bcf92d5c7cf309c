package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/intent"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/llm"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/lookup"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/orchestrator"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/sqlgen"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	addDatasetFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestGames_CLI_LoadSettings(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		s, err := loadSettings(newFlags(t), envFrom(nil))
		require.NoError(t, err)
		require.Equal(t, defaultCSVPath, s.CSVPath)
		require.Equal(t, defaultDBPath, s.DBPath)
		require.Equal(t, llm.DefaultTimeout, s.GenerationTimeout)
		require.Equal(t, uint(llm.DefaultMaxRetries), s.MaxRetries)
		require.Equal(t, sqlgen.DefaultRowLimit, s.RowLimit)
		require.Empty(t, s.Provider)
		require.Empty(t, s.AnthropicAPIKey)
	})

	t.Run("environment fills unset flags", func(t *testing.T) {
		t.Parallel()

		s, err := loadSettings(newFlags(t), envFrom(map[string]string{
			envCSVPath:           "/data/vgsales.csv",
			envModelProvider:     "openai",
			envModel:             "gpt-4o-mini",
			envGenerationTimeout: "3s",
			envRowLimit:          "200",
			envOpenAIAPIKey:      "sk-test",
		}))
		require.NoError(t, err)
		require.Equal(t, "/data/vgsales.csv", s.CSVPath)
		require.Equal(t, "openai", s.Provider)
		require.Equal(t, "gpt-4o-mini", s.Model)
		require.Equal(t, 3*time.Second, s.GenerationTimeout)
		require.Equal(t, 200, s.RowLimit)
		require.Equal(t, "sk-test", s.OpenAIAPIKey)
	})

	t.Run("command line wins over environment", func(t *testing.T) {
		t.Parallel()

		s, err := loadSettings(
			newFlags(t, "--csv", "local.csv", "--row-limit", "50"),
			envFrom(map[string]string{envCSVPath: "/data/vgsales.csv", envRowLimit: "200"}),
		)
		require.NoError(t, err)
		require.Equal(t, "local.csv", s.CSVPath)
		require.Equal(t, 50, s.RowLimit)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Parallel()

		_, err := loadSettings(newFlags(t), envFrom(map[string]string{envGenerationTimeout: "soon"}))
		require.ErrorContains(t, err, "invalid generation timeout")

		_, err = loadSettings(newFlags(t), envFrom(map[string]string{envRowLimit: "5000"}))
		require.ErrorContains(t, err, "row limit must be between")

		_, err = loadSettings(newFlags(t, "--csv", ""), envFrom(nil))
		require.ErrorContains(t, err, "csv path is required")
	})

	t.Run("app config", func(t *testing.T) {
		t.Parallel()

		s, err := loadSettings(newFlags(t), envFrom(map[string]string{envAnthropicAPIKey: "key"}))
		require.NoError(t, err)
		cfg, err := s.AppConfig(logger)
		require.NoError(t, err)
		require.Empty(t, cfg.DBPath)
		require.Equal(t, "key", cfg.Provider.AnthropicAPIKey)
		require.Equal(t, s.RowLimit, cfg.RowLimit)
	})
}

type fakeAsker struct {
	calls atomic.Int64
}

func (f *fakeAsker) RouteAndExecute(_ context.Context, question string) (orchestrator.Envelope, error) {
	f.calls.Add(1)
	if question == "boom" {
		return orchestrator.Envelope{}, errors.New("store closed")
	}
	return orchestrator.Envelope{
		Kind:   intent.Rankings,
		Answer: "answer to " + question,
		Meta: orchestrator.Meta{
			Intent:        intent.Rankings,
			SQLProvenance: sqlgen.ProvenanceFallback,
			ElapsedMS:     int64(len(question)),
		},
	}, nil
}

func TestGames_CLI_Evaluate(t *testing.T) {
	t.Parallel()

	t.Run("results keep input order", func(t *testing.T) {
		t.Parallel()

		questions := []string{"q1", "question two", "boom", "q4", "q5", "q6"}
		asker := &fakeAsker{}
		results, err := Evaluate(t.Context(), asker, questions, 3)
		require.NoError(t, err)
		require.Len(t, results, len(questions))
		require.EqualValues(t, len(questions), asker.calls.Load())

		for i, q := range questions {
			require.Equal(t, q, results[i].Question)
		}
		require.Equal(t, "rankings", results[1].Intent)
		require.Equal(t, "deterministic-fallback", results[1].Provenance)
		require.EqualValues(t, 12, results[1].ElapsedMS)
		require.Error(t, results[2].Err)
		require.NoError(t, results[3].Err)
	})

	t.Run("rendered table", func(t *testing.T) {
		t.Parallel()

		results, err := Evaluate(t.Context(), &fakeAsker{}, []string{"top 5 jogos", "boom"}, 0)
		require.NoError(t, err)

		var buf bytes.Buffer
		renderEval(&buf, results)
		out := buf.String()
		require.Contains(t, out, "Provenance")
		require.Contains(t, out, "answer to top 5 jogos")
		require.Contains(t, out, "store closed")
		require.Contains(t, out, "2 questions, 1 failed")
	})
}

func TestGames_CLI_ReadQuestions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(dir, "questions.txt")
		require.NoError(t, os.WriteFile(path, []byte("# smoke\ntop 5 jogos\n\n  resumo do dataset  \n"), 0o644))
		qs, err := readQuestions(path)
		require.NoError(t, err)
		require.Equal(t, []string{"top 5 jogos", "resumo do dataset"}, qs)
	})

	t.Run("yaml list", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(dir, "list.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- média zelda\n- ''\n- \"em quais plataformas 'Grand Theft Auto V' saiu?\"\n"), 0o644))
		qs, err := readQuestions(path)
		require.NoError(t, err)
		require.Equal(t, []string{"média zelda", "em quais plataformas 'Grand Theft Auto V' saiu?"}, qs)
	})

	t.Run("yaml document", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(dir, "doc.yml")
		require.NoError(t, os.WriteFile(path, []byte("questions:\n  - resumo do dataset\n"), 0o644))
		qs, err := readQuestions(path)
		require.NoError(t, err)
		require.Equal(t, []string{"resumo do dataset"}, qs)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := readQuestions(filepath.Join(dir, "nope.txt"))
		require.ErrorContains(t, err, "failed to read questions file")
	})
}

func TestGames_CLI_Render(t *testing.T) {
	t.Parallel()

	t.Run("envelope with rows", func(t *testing.T) {
		t.Parallel()

		rs := store.ResultSet{
			Columns: []string{"name", "year", "na_sales"},
			Rows: []store.Row{
				{"name": "Wii Sports", "year": int64(2006), "na_sales": 41.36},
				{"name": "Tetris", "year": nil, "na_sales": 23.2},
			},
			Count: 2,
		}
		var buf bytes.Buffer
		renderEnvelope(&buf, orchestrator.Envelope{
			Kind:   intent.Rankings,
			Answer: "Top 2 por na_sales",
			Data:   rs,
			Meta: orchestrator.Meta{
				Intent:        intent.Rankings,
				SQLProvenance: sqlgen.ProvenanceFallback,
				SQL:           "SELECT 1",
				ElapsedMS:     7,
			},
		})
		out := buf.String()
		require.Contains(t, out, "Wii Sports")
		require.Contains(t, out, "41.36")
		require.Contains(t, out, "23.20")
		require.Contains(t, out, "Top 2 por na_sales")
		require.Contains(t, out, "intent=rankings provenance=deterministic-fallback elapsed=7ms")
		require.Contains(t, out, "sql: SELECT 1")
	})

	t.Run("lookup failure has no table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		renderEnvelope(&buf, orchestrator.Envelope{
			Kind:   intent.Lookup,
			Answer: lookup.FailedAnswer,
			Meta:   orchestrator.Meta{Intent: intent.Lookup, LookupState: lookup.StateFailed},
		})
		out := buf.String()
		require.NotContains(t, out, "+--")
		require.Contains(t, out, "lookup=FAILED")
	})

	t.Run("summary", func(t *testing.T) {
		t.Parallel()

		minYear, maxYear, critic := int64(1985), int64(2016), 70.5
		var buf bytes.Buffer
		renderSummary(&buf, store.DatasetSummary{
			Titles:         30,
			Years:          store.YearRange{Min: &minYear, Max: &maxYear},
			GlobalSalesSum: 512.25,
			CriticScoreAvg: &critic,
			Missing:        map[string]float64{"user_score": 0.25},
		})
		out := buf.String()
		require.Contains(t, out, "1985")
		require.Contains(t, out, "512.25")
		require.Contains(t, out, "user_score_missing")
		require.Contains(t, out, "25.0%")
	})
}
