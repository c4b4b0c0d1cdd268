package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/example/propenrich/internal/ports/primary"
)

// EnrichmentAdapter is a thin adapter that translates CLI operations to the
// ingest and worker services.
type EnrichmentAdapter struct {
	ingest primary.IngestService
	worker primary.WorkerService
	out    io.Writer
}

// NewEnrichmentAdapter creates a new EnrichmentAdapter with the given services.
func NewEnrichmentAdapter(ingest primary.IngestService, worker primary.WorkerService, out io.Writer) *EnrichmentAdapter {
	return &EnrichmentAdapter{
		ingest: ingest,
		worker: worker,
		out:    out,
	}
}

// Ingest processes one listing and prints the resulting hash.
func (a *EnrichmentAdapter) Ingest(ctx context.Context, input primary.ListingInput) (*primary.IngestResult, error) {
	result, err := a.ingest.ProcessListing(ctx, input)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.out, "✓ %s\n", result.AddressHash)
	fmt.Fprintf(a.out, "  Address: %s\n", result.NormalizedAddress)
	fmt.Fprintf(a.out, "  Status:  %s\n", statusColor(result.Status))
	switch {
	case result.Promoted:
		fmt.Fprintln(a.out, "  Owner data from listing saved, lookup skipped")
	case result.Queued:
		fmt.Fprintln(a.out, "  Queued for owner lookup")
	case result.OwnerSaved:
		fmt.Fprintln(a.out, "  Owner data from listing merged")
	}
	return result, nil
}

// RunWorker runs one worker batch and prints its outcome.
func (a *EnrichmentAdapter) RunWorker(ctx context.Context, n int) (*primary.BatchResult, error) {
	result, err := a.worker.RunBatch(ctx, n)
	if err != nil {
		return nil, err
	}

	if result.Skipped {
		fmt.Fprintf(a.out, "%s %s\n", color.New(color.FgYellow).Sprint("⚠ Skipped:"), result.SkipReason)
		if result.DailyCap > 0 {
			fmt.Fprintf(a.out, "  Usage (24h): %d/%d\n", result.UsageBefore, result.DailyCap)
		}
		return result, nil
	}

	fmt.Fprintf(a.out, "Run %s\n", result.RunID)
	fmt.Fprintf(a.out, "  Usage before run: %d/%d\n", result.UsageBefore, result.DailyCap)
	fmt.Fprintf(a.out, "  Claimed: %d  Enriched: %d  No match: %d  No contact: %d  Errors: %d\n",
		result.Claimed, result.Enriched, result.NoMatch, result.NoContact, result.Errors)

	if len(result.Outcomes) > 0 {
		fmt.Fprintln(a.out)
		w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "HASH\tADDRESS\tSTATUS\tREASON")
		fmt.Fprintln(w, "----\t-------\t------\t------")
		for _, o := range result.Outcomes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortHash(o.AddressHash), o.Address, statusColor(o.Status), o.Reason)
		}
		w.Flush()
	}
	return result, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func statusColor(status string) string {
	switch status {
	case "enriched":
		return color.New(color.FgGreen).Sprint(status)
	case "no_owner_data", "failed":
		return color.New(color.FgRed).Sprint(status)
	case "checking":
		return color.New(color.FgYellow).Sprint(status)
	default:
		return status
	}
}
