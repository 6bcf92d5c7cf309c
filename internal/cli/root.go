package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// BuildInfo is stamped into the binary by ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func Run(build BuildInfo) ExitCode {
	// A missing .env is not an error.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "gamesql",
		Short:         "Answer natural-language questions about the video game sales dataset.",
		Version:       build.Version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")
	addDatasetFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		NewServeCmd(build).Command(),
		NewAskCmd().Command(),
		NewEvalCmd().Command(),
		NewSummaryCmd().Command(),
	)

	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}

	return exitCodeSuccess
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// commandLogger builds the logger for one-shot commands. Their tables go to
// stdout, so logs go to stderr.
func commandLogger(cmd *cobra.Command) (*slog.Logger, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	return newLogger(os.Stderr, verbose), nil
}
