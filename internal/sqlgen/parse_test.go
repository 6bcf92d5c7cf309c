package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGames_SQLGen_ParseGenerateResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		response    string
		sql         string
		explanation string
		wantErr     bool
	}{
		{
			name:        "raw json",
			response:    `{"sql": "SELECT name FROM games LIMIT 1;", "explanation": "one"}`,
			sql:         "SELECT name FROM games LIMIT 1",
			explanation: "one",
		},
		{
			name:        "json code block with prose",
			response:    "Here you go:\n```json\n{\"sql\": \"SELECT name FROM games LIMIT 2\", \"explanation\": \"two\"}\n```",
			sql:         "SELECT name FROM games LIMIT 2",
			explanation: "two",
		},
		{
			name:        "sql code block",
			response:    "Ranking by sales.\n```sql\nSELECT name FROM games LIMIT 3;\n```",
			sql:         "SELECT name FROM games LIMIT 3",
			explanation: "Ranking by sales.",
		},
		{
			name:     "bare sql",
			response: "SELECT name FROM games LIMIT 4",
			sql:      "SELECT name FROM games LIMIT 4",
		},
		{
			name:     "json braces inside strings",
			response: `{"sql": "SELECT name FROM games WHERE name = '{x}' LIMIT 5", "explanation": "}"}`,
			sql:      "SELECT name FROM games WHERE name = '{x}' LIMIT 5",
		},
		{
			name:     "inline sql fence",
			response: "```sql SELECT name FROM games LIMIT 8```",
			sql:      "SELECT name FROM games LIMIT 8",
		},
		{
			name:     "sqlite tag is not sql",
			response: "```sqlite\nDELETE FROM games\n```",
			wantErr:  true,
		},
		{
			name:     "bare non-select statement",
			response: "DROP TABLE games",
			wantErr:  true,
		},
		{
			name:     "untagged code block with a write",
			response: "Done:\n```\nINSERT INTO games VALUES ('x')\n```",
			wantErr:  true,
		},
		{
			name:     "prose starting with a select-like word",
			response: "Selected games are listed below.",
			wantErr:  true,
		},
		{
			name:     "untagged code block with a select",
			response: "```\nselect name from games limit 6;\n```",
			sql:      "select name from games limit 6",
		},
		{
			name:     "no sql",
			response: "Sorry, I can't do that.",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sql, explanation, err := ParseGenerateResponse(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.sql, sql)
			if tt.explanation != "" {
				require.Equal(t, tt.explanation, explanation)
			}
		})
	}
}

func TestGames_SQLGen_ParseExplanation(t *testing.T) {
	t.Parallel()

	prose := strings.Repeat("é", 600)
	_, explanation, err := ParseGenerateResponse(prose + "\n```sql\nSELECT name FROM games LIMIT 1\n```")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("é", 500)+"...", explanation)

	_, explanation, err = ParseGenerateResponse("Antes.\n```\nnotes\n```\n```sql\nSELECT name FROM games LIMIT 1\n```\nDepois.")
	require.NoError(t, err)
	require.Equal(t, "Antes.\n\n\nDepois.", explanation)
}

func TestGames_SQLGen_ExtractJSON(t *testing.T) {
	t.Parallel()

	require.Equal(t, `{"a": {"b": 1}}`, ExtractJSON(`prefix {"a": {"b": 1}} suffix`))
	require.Equal(t, `{"a": "}"}`, ExtractJSON(`{"a": "}"}`))
	require.Empty(t, ExtractJSON(`{"a": 1`))
	require.Empty(t, ExtractJSON("no json here"))
	require.Equal(t, `{"b": 2}`, ExtractJSON("```\n{\"a\": 1}\n```\n```json\n{\"b\": 2}\n```"))
	require.Equal(t, `{"a": 1}`, ExtractJSON("```\n{\"a\": 1}\n```"))
}

func TestGames_SQLGen_LooksLikeSQL(t *testing.T) {
	t.Parallel()

	require.True(t, looksLikeSQL("SELECT name FROM games"))
	require.True(t, looksLikeSQL("  select\nname from games"))
	require.False(t, looksLikeSQL("WITH t AS (SELECT 1) SELECT * FROM t"))
	require.False(t, looksLikeSQL("DELETE FROM games"))
	require.False(t, looksLikeSQL("CREATE TABLE x (a INT)"))
	require.False(t, looksLikeSQL("SELECTED"))
	require.False(t, looksLikeSQL(""))
}
