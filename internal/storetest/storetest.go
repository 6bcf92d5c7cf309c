// Package storetest provides a loaded in-memory games store for tests.
package storetest

import (
	_ "embed"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/duck"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/store"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/games.csv
var gamesCSV []byte

// Fixture facts asserted by tests across packages.
const (
	Rows                = 30
	ZeldaScoredTitles   = 15
	GTAVPlatformsSorted = "PS3, PS4, X360"
)

// CSVPath writes the fixture to a temporary file and returns its path.
func CSVPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "games.csv")
	require.NoError(t, os.WriteFile(path, gamesCSV, 0o644))
	return path
}

// NewStore returns a store loaded from the fixture. It is closed when the
// test ends.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	return NewStoreWithLogger(t, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func NewStoreWithLogger(t *testing.T, log *slog.Logger) *store.Store {
	t.Helper()

	db, err := duck.NewDB(t.Context(), "", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := store.New(store.Config{Logger: log, DB: db})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Load(t.Context(), CSVPath(t)))
	return s
}
