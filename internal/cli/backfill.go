package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/propenrich/internal/wire"
)

// BackfillCmd returns the backfill command
func BackfillCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Queue every listing with no owner data anywhere",
		Long: `Scan every registered listing table and enqueue addresses that have no
owner data in the listing row, no owner record, and no state row.

This command:
- Writes missing or stale address hashes back to listing rows
- Skips listings whose own columns carry genuine owner data
- Never touches existing state rows
- Is safe to run multiple times (idempotent)

Examples:
  propenrich backfill --dry-run   # Report what would be queued
  propenrich backfill`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.ReconcileAdapterWithOutput(cmd.OutOrStdout()).Backfill(cmd.Context(), dryRun)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without writing")

	return cmd
}
