package sqlgen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGames_SQLGen_Validator(t *testing.T) {
	t.Parallel()

	v := NewValidator(DefaultRowLimit)

	t.Run("accepts safe reads", func(t *testing.T) {
		t.Parallel()

		for _, sql := range []string{
			"SELECT name, na_sales FROM games ORDER BY na_sales DESC LIMIT 10",
			"SELECT name, na_sales FROM games LIMIT 10;",
			"select name from games where year = 2010 limit 3",
			"SELECT g.name FROM games AS g WHERE g.year = 2010 LIMIT 5",
			"SELECT g.name, h.platform FROM games g JOIN games h ON g.name = h.name LIMIT 5",
			"SELECT COUNT(*) AS n FROM games WHERE lower(platform) = lower('PS4') LIMIT 1",
			"SELECT DISTINCT platform FROM games WHERE lower(name) = lower('Grand Theft Auto V') ORDER BY platform LIMIT 50",
			"SELECT name, SUM(global_sales) AS total FROM games GROUP BY name ORDER BY total DESC LIMIT 5",
			"SELECT name FROM games WHERE name LIKE '%; DROP TABLE games; --%' LIMIT 3",
			"SELECT trim(BOTH ' ' FROM name) AS n FROM games LIMIT 1",
			"SELECT CAST(year AS INTEGER) AS y FROM games LIMIT 1",
			"SELECT \"name\" FROM games LIMIT 1",
			"SELECT name FROM games WHERE year IN (SELECT MIN(year) FROM games) LIMIT 2",
			"SELECT name FROM games LIMIT 10 OFFSET 20",
			"SELECT name, ROW_NUMBER() OVER (PARTITION BY platform ORDER BY global_sales DESC) AS rn FROM games LIMIT 1000",
			"SELECT name FROM games WHERE platform IS DISTINCT FROM 'PS4' LIMIT 1",
			"SELECT name FROM games WHERE platform IS NOT DISTINCT FROM genre LIMIT 1",
		} {
			require.NoError(t, v.Validate(sql), sql)
		}
	})

	t.Run("rejects unsafe or malformed statements", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			sql    string
			reason Reason
		}{
			{"", ReasonEmpty},
			{"   ;", ReasonEmpty},
			{"SELECT name FROM games WHERE name = 'abc LIMIT 1", ReasonMalformed},
			{"SELECT name FROM games WHERE name = ? LIMIT 1", ReasonMalformed},
			{"SELECT name FROM games WHERE name = $1 LIMIT 1", ReasonMalformed},
			{"SELECT name FROM games -- trailing\nLIMIT 1", ReasonComment},
			{"SELECT name /* hidden */ FROM games LIMIT 1", ReasonComment},
			{"SELECT name FROM games LIMIT 1; DROP TABLE games", ReasonMultipleStatements},
			{"SELECT name FROM games LIMIT 1;;", ReasonMultipleStatements},
			{"DELETE FROM games", ReasonForbiddenKeyword},
			{"DROP TABLE games", ReasonForbiddenKeyword},
			{"ATTACH 'other.db' AS other", ReasonForbiddenKeyword},
			{"COPY games TO 'out.csv'", ReasonForbiddenKeyword},
			{"PRAGMA table_info('games')", ReasonForbiddenKeyword},
			{"WITH t AS (SELECT name FROM games) SELECT name FROM t LIMIT 1", ReasonForbiddenKeyword},
			{"SELECT name INTO copy FROM games LIMIT 1", ReasonForbiddenKeyword},
			{"VALUES (1)", ReasonNotSelect},
			{"SELECT name FROM users LIMIT 1", ReasonTable},
			{"SELECT name FROM main.games LIMIT 1", ReasonTable},
			{"SELECT g.name FROM games g JOIN sales s ON g.name = s.name LIMIT 5", ReasonTable},
			{"SELECT name FROM games, secrets LIMIT 5", ReasonTable},
			{"SELECT name FROM games WHERE name IN (SELECT name FROM secrets) LIMIT 1", ReasonTable},
			{"SELECT name FROM read_csv('/etc/passwd') LIMIT 1", ReasonTable},
			{"SELECT name FROM (SELECT name FROM games) LIMIT 1", ReasonTable},
			{"SELECT 1 AS one LIMIT 1", ReasonTable},
			{"SELECT name FROM '/etc/passwd' LIMIT 1", ReasonTable},
			{"SELECT name FROM games, '/etc/passwd' LIMIT 5", ReasonTable},
			{"SELECT g.name FROM games g JOIN '/etc/hosts' AS t ON TRUE LIMIT 5", ReasonTable},
			{"SELECT name FROM games WHERE name IN (SELECT name FROM 'secret.csv') LIMIT 1", ReasonTable},
			{"SELECT name FROM games WHERE name IN (FROM 'secret.csv') LIMIT 1", ReasonTable},
			{"SELECT (SELECT name FROM 'x.csv' LIMIT 1) AS leak, name FROM games LIMIT 1", ReasonTable},
			{"SELECT name FROM \"secret.csv\" LIMIT 1", ReasonTable},
			{"SELECT name FROM games, 42 LIMIT 1", ReasonTable},
			{"SELECT getenv('HOME') AS h FROM games LIMIT 1", ReasonFunction},
			{"SELECT name FROM games WHERE read_text('x') IS NULL LIMIT 1", ReasonFunction},
			{"SELECT name, price FROM games LIMIT 1", ReasonColumn},
			{"SELECT x.name FROM games LIMIT 1", ReasonColumn},
			{"SELECT games.rating FROM games LIMIT 1", ReasonColumn},
			{"SELECT total, SUM(global_sales) AS total FROM games LIMIT 1", ReasonColumn},
			{"SELECT * FROM games LIMIT 1", ReasonSelectStar},
			{"SELECT games.* FROM games LIMIT 1", ReasonSelectStar},
			{"SELECT name, * FROM games LIMIT 1", ReasonSelectStar},
			{"SELECT SUM(*) AS s FROM games LIMIT 1", ReasonSelectStar},
			{"SELECT name FROM games", ReasonLimit},
			{"SELECT name FROM games LIMIT 5000", ReasonLimit},
			{"SELECT name FROM games LIMIT 10 + 5000", ReasonLimit},
			{"SELECT name FROM games LIMIT year", ReasonLimit},
		}
		for _, tt := range tests {
			err := v.Validate(tt.sql)
			var rej *ValidationRejectedError
			require.True(t, errors.As(err, &rej), "expected rejection for %q, got %v", tt.sql, err)
			require.Equal(t, tt.reason, rej.Reason, "%q: %s", tt.sql, rej.Detail)
			require.Equal(t, tt.sql, rej.SQL)
		}
	})

	t.Run("row limit guard is configurable", func(t *testing.T) {
		t.Parallel()

		small := NewValidator(50)
		require.Equal(t, 50, small.RowLimit())
		require.NoError(t, small.Validate("SELECT name FROM games LIMIT 50"))
		require.Error(t, small.Validate("SELECT name FROM games LIMIT 51"))
		require.Equal(t, DefaultRowLimit, NewValidator(0).RowLimit())
	})
}

func TestGames_SQLGen_TablesReferenced(t *testing.T) {
	t.Parallel()

	tables, err := TablesReferenced("SELECT g.name FROM games g JOIN sales s ON g.name = s.name WHERE s.x IN (SELECT y FROM games) LIMIT 1")
	require.NoError(t, err)
	require.Equal(t, []string{"games", "sales"}, tables)

	tables, err = TablesReferenced("SELECT name FROM read_csv('x.csv') LIMIT 1")
	require.NoError(t, err)
	require.Equal(t, []string{"read_csv"}, tables)

	tables, err = TablesReferenced("SELECT trim(BOTH ' ' FROM name) FROM games")
	require.NoError(t, err)
	require.Equal(t, []string{"games"}, tables)

	tables, err = TablesReferenced("SELECT name FROM games, '/etc/passwd' LIMIT 5")
	require.NoError(t, err)
	require.Equal(t, []string{"'/etc/passwd'", "games"}, tables)

	tables, err = TablesReferenced("SELECT name FROM games WHERE name IN (FROM 'secret.csv') LIMIT 1")
	require.NoError(t, err)
	require.Equal(t, []string{"'secret.csv'", "games"}, tables)

	tables, err = TablesReferenced("SELECT (SELECT name FROM 'x.csv' LIMIT 1) AS leak FROM games")
	require.NoError(t, err)
	require.Equal(t, []string{"'x.csv'", "games"}, tables)

	tables, err = TablesReferenced("SELECT name FROM games WHERE platform IS DISTINCT FROM 'PS4'")
	require.NoError(t, err)
	require.Equal(t, []string{"games"}, tables)

	_, err = TablesReferenced("SELECT 'unterminated")
	require.Error(t, err)
}

func TestGames_SQLGen_StatementCount(t *testing.T) {
	t.Parallel()

	for sql, want := range map[string]int{
		"":                                   0,
		"SELECT 1":                           1,
		"SELECT 1;":                          1,
		"SELECT ';'":                         1,
		"SELECT 1; SELECT 2":                 2,
		"SELECT 1;; SELECT 2;":               2,
		"SELECT 1; -- DROP TABLE games":      1,
		"SELECT 1; DROP TABLE games; --done": 2,
	} {
		got, err := StatementCount(sql)
		require.NoError(t, err)
		require.Equal(t, want, got, sql)
	}
}
