package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/propenrich/internal/config"
	"github.com/example/propenrich/internal/db"
	"github.com/example/propenrich/internal/wire"
)

// SchemaCmd returns the schema command
func SchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the enrichment tables",
	}

	cmd.AddCommand(schemaInitCmd())
	cmd.AddCommand(schemaShowCmd())
	cmd.AddCommand(schemaSeedCmd())

	return cmd
}

func schemaInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the enrichment state and owner tables",
		Long: `Create the enrichment state and owner tables if they do not exist.
Safe to run multiple times (idempotent).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.MigrateSchema(cmd.Context()); err != nil {
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Schema ready (%s)\n", wire.Config().Database.Driver)
			return nil
		},
	}
}

func schemaShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Print the schema DDL for the configured driver",
		Annotations: map[string]string{annotationNoStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if wire.Config().Database.Driver == config.DriverPostgres {
				fmt.Fprint(cmd.OutOrStdout(), db.PostgresSchemaSQL, "\n")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), db.GetSchemaSQL())
			return nil
		},
	}
}

func schemaSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample listings into a local SQLite store",
		Long: `Insert a handful of sample listings for trying the tools locally.
Not idempotent; run once against an empty store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := wire.SeedSampleListings()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Inserted %d sample listings\n", n)
			fmt.Fprintln(cmd.OutOrStdout(), "  Next: propenrich backfill --dry-run")
			return nil
		},
	}
}
