package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type SummaryCmd struct{}

func NewSummaryCmd() *SummaryCmd {
	return &SummaryCmd{}
}

func (c *SummaryCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print an overview of the loaded dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := commandLogger(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, cmd.Flags(), log)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Store.Summary(ctx)
			if err != nil {
				return fmt.Errorf("failed to summarize dataset: %w", err)
			}
			renderSummary(os.Stdout, summary)
			return nil
		},
	}
}
