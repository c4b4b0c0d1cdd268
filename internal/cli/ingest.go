package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/propenrich/internal/ports/primary"
	"github.com/example/propenrich/internal/wire"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	var input primary.ListingInput

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Process one scraped listing",
		Long: `Normalize and hash a listing's address, save any genuine owner data it
carries, and enqueue the address for owner lookup when nothing is known yet.

Prints the address hash for the scraper to store on its listing row.

Examples:
  propenrich ingest --address "123 Main Street, Chicago, IL 60601" --source Trulia
  propenrich ingest --address "77 W Lake St" --owner-name "Jane Doe" --owner-email jane@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.EnrichmentAdapterWithOutput(cmd.OutOrStdout()).Ingest(cmd.Context(), input)
			return err
		},
	}

	cmd.Flags().StringVar(&input.Address, "address", "", "Raw listing address (required)")
	cmd.Flags().StringVar(&input.ListingSource, "source", "", "Listing source label, e.g. Trulia")
	cmd.Flags().StringVar(&input.OwnerName, "owner-name", "", "Owner name scraped from the listing")
	cmd.Flags().StringSliceVar(&input.OwnerEmails, "owner-email", nil, "Owner email (repeatable, first is used)")
	cmd.Flags().StringSliceVar(&input.OwnerPhones, "owner-phone", nil, "Owner phone (repeatable, first is used)")
	cmd.Flags().StringVar(&input.MailingAddress, "mailing-address", "", "Owner mailing address")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}
