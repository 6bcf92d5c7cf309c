package main

import (
	"os"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/cli"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(int(cli.Run(cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})))
}
