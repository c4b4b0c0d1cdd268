package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/propenrich/internal/config"
	"github.com/example/propenrich/internal/logging"
	"github.com/example/propenrich/internal/metrics"
	"github.com/example/propenrich/internal/version"
	"github.com/example/propenrich/internal/wire"
)

// annotationNoStore marks commands that open the store themselves, or not at all.
const annotationNoStore = "propenrich/no-store"

// RootCmd returns the root command with every subcommand registered.
func RootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "propenrich",
		Short:   "Property owner enrichment queue and consistency tools",
		Version: version.String(),
		Long: `propenrich keeps owner contact data for scraped property listings.

Scrapers hand each listing to 'ingest', which hashes the address and queues
it for lookup. 'worker run' resolves queued addresses with the external
lookup API under a daily budget. The reconciliation and diagnostic commands
keep the listing tables, the state table and the owner cache consistent.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logging.Init(logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Caller: cfg.Logging.Caller,
			})
			wire.Configure(cfg)

			if !needsStore(cmd) {
				return nil
			}
			return wire.Init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if err := metrics.WriteTextfile(wire.Config().Metrics.Textfile); err != nil {
				logging.Warn().Err(err).Msg("failed to write metrics textfile")
			}
			if err := wire.Close(); err != nil {
				return fmt.Errorf("failed to close store: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $"+config.PathEnvVar+" or ./propenrich.yaml)")

	// Pipeline
	rootCmd.AddCommand(IngestCmd())
	rootCmd.AddCommand(WorkerCmd())

	// Reconciliation
	rootCmd.AddCommand(BackfillCmd())
	rootCmd.AddCommand(RepairCmd())
	rootCmd.AddCommand(CleanupOrphansCmd())
	rootCmd.AddCommand(ResetStuckCmd())
	rootCmd.AddCommand(ResetCmd())

	// Diagnostics
	rootCmd.AddCommand(DiagnoseCmd())
	rootCmd.AddCommand(AuditHashesCmd())
	rootCmd.AddCommand(RehashCmd())
	rootCmd.AddCommand(StatsCmd())

	// Operations
	rootCmd.AddCommand(SchemaCmd())
	rootCmd.AddCommand(DoctorCmd())

	return rootCmd
}

// needsStore reports whether cmd and its parents all want the store opened
// before RunE.
func needsStore(cmd *cobra.Command) bool {
	if !cmd.Runnable() {
		return false
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoStore] == "true" || c.Name() == "completion" || c.Name() == "help" {
			return false
		}
	}
	return true
}
