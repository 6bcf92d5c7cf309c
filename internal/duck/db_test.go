package duck

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGames_Duck_DB(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("in-memory database is shared across connections", func(t *testing.T) {
		t.Parallel()

		db, err := NewDB(t.Context(), ":memory:", log)
		require.NoError(t, err)
		defer db.Close()

		require.NotEmpty(t, db.Catalog())
		require.NotEmpty(t, db.Schema())

		conn, err := db.Conn(t.Context())
		require.NoError(t, err)
		_, err = conn.ExecContext(t.Context(), "CREATE TABLE games (name VARCHAR)")
		require.NoError(t, err)
		_, err = conn.ExecContext(t.Context(), "INSERT INTO games VALUES ('Tetris')")
		require.NoError(t, err)
		require.NoError(t, conn.Close())

		other, err := db.Conn(t.Context())
		require.NoError(t, err)
		defer other.Close()

		var name string
		require.NoError(t, other.QueryRowContext(t.Context(), "SELECT name FROM games").Scan(&name))
		require.Equal(t, "Tetris", name)
	})

	t.Run("freeze rejects writes but keeps reads", func(t *testing.T) {
		t.Parallel()

		db, err := NewDB(t.Context(), "", log)
		require.NoError(t, err)
		defer db.Close()

		conn, err := db.Conn(t.Context())
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.ExecContext(t.Context(), "CREATE TABLE games (year INTEGER)")
		require.NoError(t, err)

		require.NoError(t, db.Freeze(t.Context()))
		require.NoError(t, db.Freeze(t.Context()))

		_, err = conn.ExecContext(t.Context(), "INSERT INTO games VALUES (2010)")
		require.ErrorIs(t, err, ErrReadOnly)

		rows, err := conn.QueryContext(t.Context(), "SELECT COUNT(*) FROM games")
		require.NoError(t, err)
		defer rows.Close()
		require.True(t, rows.Next())
		var n int
		require.NoError(t, rows.Scan(&n))
		require.Equal(t, 0, n)
	})

	t.Run("freeze blocks reading files and changing settings", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "secret.csv")
		require.NoError(t, os.WriteFile(path, []byte("token\nhunter2\n"), 0o600))
		fileQuery := "SELECT COUNT(*) FROM '" + strings.ReplaceAll(path, "'", "''") + "'"

		db, err := NewDB(t.Context(), "", log)
		require.NoError(t, err)
		defer db.Close()

		conn, err := db.Conn(t.Context())
		require.NoError(t, err)
		defer conn.Close()

		var n int
		require.NoError(t, conn.QueryRowContext(t.Context(), fileQuery).Scan(&n))
		require.Equal(t, 1, n)

		require.NoError(t, db.Freeze(t.Context()))

		require.Error(t, conn.QueryRowContext(t.Context(), fileQuery).Scan(&n))
		require.Error(t, conn.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM read_text('"+strings.ReplaceAll(path, "'", "''")+"')").Scan(&n))

		rows, err := conn.QueryContext(t.Context(), "SET enable_external_access = true")
		if err == nil {
			rows.Close()
		}
		require.Error(t, err)
		require.Error(t, conn.QueryRowContext(t.Context(), fileQuery).Scan(&n))

		// New connections still resolve the catalog.
		other, err := db.Conn(t.Context())
		require.NoError(t, err)
		require.NoError(t, other.Close())
	})
}
