package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/propenrich/internal/ports/primary"
	"github.com/example/propenrich/internal/wire"
)

// DiagnoseCmd returns the diagnose command
func DiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose [address-fragment...]",
		Short: "Show every store's view of an address",
		Long: `Join the state table, the owner cache and the listing tables for each
address fragment and flag inconsistencies: enriched rows without owner data,
owner data with a stale status, orphans, hash mismatches and stuck rows.

Examples:
  propenrich diagnose "1061 W 16th"
  propenrich diagnose "main st" "elm ct"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.DiagnosticsAdapterWithOutput(cmd.OutOrStdout()).Diagnose(cmd.Context(), args)
			return err
		},
	}
}

// AuditHashesCmd returns the audit-hashes command
func AuditHashesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-hashes",
		Short: "Check stored hashes against the address hash function",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.DiagnosticsAdapterWithOutput(cmd.OutOrStdout()).AuditHashes(cmd.Context())
			return err
		},
	}
}

// RehashCmd returns the rehash command
func RehashCmd() *cobra.Command {
	var req primary.RehashRequest

	cmd := &cobra.Command{
		Use:   "rehash",
		Short: "Recompute listing address hashes",
		Long: `Recompute the address hash of every listing row and write the ones that
changed. Dry run unless --live is given.

Examples:
  propenrich rehash --table trulia_listings
  propenrich rehash --live`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.DiagnosticsAdapterWithOutput(cmd.OutOrStdout()).Rehash(cmd.Context(), req)
			return err
		},
	}

	cmd.Flags().StringVar(&req.Table, "table", "", "Only this listing table")
	cmd.Flags().BoolVar(&req.Live, "live", false, "Write changes")

	return cmd
}

// StatsCmd returns the stats command
func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show table sizes, queue depth and lookup usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.DiagnosticsAdapterWithOutput(cmd.OutOrStdout()).Stats(cmd.Context())
			return err
		},
	}
}
