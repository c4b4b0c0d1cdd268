package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/example/propenrich/internal/ports/primary"
)

// ReconcileAdapter is a thin adapter that translates CLI operations to
// ReconcileService calls.
type ReconcileAdapter struct {
	service primary.ReconcileService
	out     io.Writer
}

// NewReconcileAdapter creates a new ReconcileAdapter with the given service.
func NewReconcileAdapter(service primary.ReconcileService, out io.Writer) *ReconcileAdapter {
	return &ReconcileAdapter{
		service: service,
		out:     out,
	}
}

func (a *ReconcileAdapter) banner(live bool) {
	if live {
		fmt.Fprintln(a.out, color.New(color.FgRed, color.Bold).Sprint("Mode: LIVE (changes will be written)"))
	} else {
		fmt.Fprintln(a.out, "Mode: DRY RUN (no changes)")
	}
	fmt.Fprintln(a.out)
}

func (a *ReconcileAdapter) dryRunHint(live bool, flag string) {
	if !live {
		fmt.Fprintf(a.out, "\n[DRY RUN] No changes made. Run with %s to apply.\n", flag)
	}
}

// Backfill enqueues listings that have no owner data anywhere.
func (a *ReconcileAdapter) Backfill(ctx context.Context, dryRun bool) (*primary.BackfillReport, error) {
	a.banner(!dryRun)

	report, err := a.service.Backfill(ctx, primary.BackfillRequest{DryRun: dryRun})
	if err != nil {
		return nil, fmt.Errorf("backfill failed: %w", err)
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tSCANNED\tQUEUED\tQUEUED BEFORE\tLOCAL DATA\tOWNER DATA\tNO ADDRESS\tHASHES SET")
	for _, t := range report.Tables {
		if t.Error != "" {
			fmt.Fprintf(w, "%s\t%s\n", t.Table, color.New(color.FgRed).Sprint(t.Error))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", t.Table,
			humanize.Comma(int64(t.Scanned)), humanize.Comma(int64(t.Queued)),
			humanize.Comma(int64(t.SkippedQueued)), humanize.Comma(int64(t.SkippedLocalData)),
			humanize.Comma(int64(t.SkippedOwnerData)), humanize.Comma(int64(t.SkippedNoAddress)),
			humanize.Comma(int64(t.HashesSet)))
	}
	w.Flush()

	fmt.Fprintf(a.out, "\n✓ %s addresses queued for owner lookup\n", humanize.Comma(int64(report.TotalQueued)))
	if !dryRun {
		fmt.Fprintln(a.out, "  Next: propenrich worker run")
	}
	a.dryRunHint(!dryRun, "no --dry-run")
	return report, nil
}

// Repair marks state rows enriched wherever genuine owner data exists.
func (a *ReconcileAdapter) Repair(ctx context.Context, live bool) (*primary.RepairReport, error) {
	a.banner(live)

	report, err := a.service.Repair(ctx, primary.RepairRequest{Live: live})
	if err != nil {
		return nil, fmt.Errorf("repair failed: %w", err)
	}

	fmt.Fprintf(a.out, "Status updates needed: %d\n", len(report.Updates))
	for _, c := range report.Updates {
		fmt.Fprintf(a.out, "  %s  %s → enriched (%s)\n", shortHash(c.AddressHash), c.OldStatus, c.SourceUsed)
	}
	fmt.Fprintf(a.out, "Missing state rows:    %d\n", len(report.Inserts))
	for _, c := range report.Inserts {
		fmt.Fprintf(a.out, "  %s  + enriched (%s)\n", shortHash(c.AddressHash), c.SourceUsed)
	}
	if len(report.Ghosts) > 0 {
		fmt.Fprintf(a.out, "%s %d enriched rows have no genuine owner data (not changed)\n",
			color.New(color.FgYellow).Sprint("⚠"), len(report.Ghosts))
		for _, h := range report.Ghosts {
			fmt.Fprintf(a.out, "  %s\n", h)
		}
	}

	if live {
		fmt.Fprintf(a.out, "\n✓ Updated %d, inserted %d\n", report.Updated, report.Inserted)
	}
	a.dryRunHint(live, "--live")
	return report, nil
}

// CleanupOrphans removes state rows no listing references.
func (a *ReconcileAdapter) CleanupOrphans(ctx context.Context, live bool) (*primary.CleanupReport, error) {
	a.banner(live)

	report, err := a.service.CleanupOrphans(ctx, primary.CleanupRequest{Live: live})
	if err != nil {
		return nil, fmt.Errorf("orphan cleanup failed: %w", err)
	}

	fmt.Fprintf(a.out, "State rows:     %s\n", humanize.Comma(int64(report.StateHashes)))
	for _, t := range report.Tables {
		fmt.Fprintf(a.out, "  %-26s %s addresses\n", t.Table, humanize.Comma(int64(t.Count)))
	}
	fmt.Fprintf(a.out, "Listing hashes: %s\n", humanize.Comma(int64(report.ListingHashes)))
	fmt.Fprintf(a.out, "Orphans:        %s\n", humanize.Comma(int64(len(report.Orphans))))

	if live {
		fmt.Fprintf(a.out, "\n✓ Deleted %d orphaned state rows\n", report.Deleted)
	} else {
		for i, h := range report.Orphans {
			if i == 10 {
				fmt.Fprintf(a.out, "  ... and %d more\n", len(report.Orphans)-10)
				break
			}
			fmt.Fprintf(a.out, "  %s\n", h)
		}
	}
	a.dryRunHint(live, "--live")
	return report, nil
}

// ResetStuck returns checking rows to the queue.
func (a *ReconcileAdapter) ResetStuck(ctx context.Context, req primary.ResetRequest) (*primary.ResetReport, error) {
	a.banner(req.Live)

	report, err := a.service.ResetStuck(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("reset failed: %w", err)
	}

	if len(report.Candidates) == 0 {
		fmt.Fprintln(a.out, "No stuck rows found.")
		return report, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "HASH\tADDRESS\tCHECKED AT")
	fmt.Fprintln(w, "----\t-------\t----------")
	for _, st := range report.Candidates {
		fmt.Fprintf(w, "%s\t%s\t%s\n", shortHash(st.AddressHash), st.NormalizedAddress, st.CheckedAt)
	}
	w.Flush()

	if req.Live {
		fmt.Fprintf(a.out, "\n✓ Reset %d rows to never_checked\n", report.Reset)
	}
	a.dryRunHint(req.Live, "--live")
	return report, nil
}
