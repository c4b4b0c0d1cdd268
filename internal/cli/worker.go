package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/propenrich/internal/wire"
)

// WorkerCmd returns the worker command
func WorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "External owner lookup worker",
	}

	cmd.AddCommand(workerRunCmd())

	return cmd
}

func workerRunCmd() *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one lookup batch",
		Long: `Claim pending addresses and look up their owners with the external API.

The batch is capped by the remaining daily budget. A disabled worker, a
missing API key, or an exhausted budget ends the run without claiming.
Designed to be invoked on a schedule (cron, systemd timer).

Examples:
  propenrich worker run
  propenrich worker run --batch 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch == 0 {
				batch = wire.Config().Lookup.BatchSize
			}
			if batch < 1 {
				return fmt.Errorf("--batch must be at least 1")
			}
			_, err := wire.EnrichmentAdapterWithOutput(cmd.OutOrStdout()).RunWorker(cmd.Context(), batch)
			return err
		},
	}

	cmd.Flags().IntVarP(&batch, "batch", "n", 0, "Addresses to claim (default from config)")

	return cmd
}
