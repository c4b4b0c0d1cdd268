package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/example/propenrich/internal/ports/primary"
	"github.com/example/propenrich/internal/wire"
)

// RepairCmd returns the repair command
func RepairCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Mark addresses enriched wherever genuine owner data exists",
		Long: `Scan the owner cache and make the state table agree with it.

Every address with a genuine owner record ends up with an enriched, locked
state row. Enriched rows with no genuine owner data are reported but not
changed. Dry run unless --live is given.

Examples:
  propenrich repair
  propenrich repair --live`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.ReconcileAdapterWithOutput(cmd.OutOrStdout()).Repair(cmd.Context(), live)
			return err
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Write changes")

	return cmd
}

// CleanupOrphansCmd returns the cleanup-orphans command
func CleanupOrphansCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "cleanup-orphans",
		Short: "Delete state rows no listing references",
		Long: `Collect every address hash referenced by any listing table and delete
state rows whose hash is not among them. Owner records are kept.

Any table that cannot be read aborts the run before anything is deleted.
Dry run unless --live is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.ReconcileAdapterWithOutput(cmd.OutOrStdout()).CleanupOrphans(cmd.Context(), live)
			return err
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Delete orphaned rows")

	return cmd
}

// ResetStuckCmd returns the reset-stuck command
func ResetStuckCmd() *cobra.Command {
	var (
		olderThan time.Duration
		live      bool
	)

	cmd := &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return abandoned checking rows to the queue",
		Long: `Find rows parked in checking longer than --older-than (default from
config) and set them back to never_checked. Dry run unless --live is given.

Examples:
  propenrich reset-stuck
  propenrich reset-stuck --older-than 30m --live`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := primary.ResetRequest{OlderThan: olderThan, Live: live}
			_, err := wire.ReconcileAdapterWithOutput(cmd.OutOrStdout()).ResetStuck(cmd.Context(), req)
			return err
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum time in checking")
	cmd.Flags().BoolVar(&live, "live", false, "Write changes")

	return cmd
}

// ResetCmd returns the reset command
func ResetCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "reset [address-hash]",
		Short: "Return one checking row to the queue regardless of age",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateAddressHash(args[0]); err != nil {
				return err
			}
			req := primary.ResetRequest{Hash: args[0], Live: live}
			_, err := wire.ReconcileAdapterWithOutput(cmd.OutOrStdout()).ResetStuck(cmd.Context(), req)
			return err
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Write changes")

	return cmd
}
