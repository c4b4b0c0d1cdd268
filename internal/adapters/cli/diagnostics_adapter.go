package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/example/propenrich/internal/ports/primary"
)

// DiagnosticsAdapter is a thin adapter that translates CLI operations to
// DiagnosticsService calls.
type DiagnosticsAdapter struct {
	service primary.DiagnosticsService
	out     io.Writer
}

// NewDiagnosticsAdapter creates a new DiagnosticsAdapter with the given service.
func NewDiagnosticsAdapter(service primary.DiagnosticsService, out io.Writer) *DiagnosticsAdapter {
	return &DiagnosticsAdapter{
		service: service,
		out:     out,
	}
}

// Diagnose prints the joined view for each fragment.
func (a *DiagnosticsAdapter) Diagnose(ctx context.Context, fragments []string) ([]*primary.DiagnosisReport, error) {
	var reports []*primary.DiagnosisReport
	for _, fragment := range fragments {
		report, err := a.service.Diagnose(ctx, fragment)
		if err != nil {
			return nil, fmt.Errorf("failed to diagnose %q: %w", fragment, err)
		}
		a.printDiagnosis(report)
		reports = append(reports, report)
	}
	return reports, nil
}

func (a *DiagnosticsAdapter) printDiagnosis(report *primary.DiagnosisReport) {
	fmt.Fprintf(a.out, "\n=== %s ===\n", report.Fragment)

	if len(report.Matches) == 0 {
		fmt.Fprintln(a.out, "No enrichment state rows match.")
		if len(report.TextMatches) == 0 {
			fmt.Fprintln(a.out, "No listings match either.")
			return
		}
		fmt.Fprintln(a.out, "Listings found by address text:")
		a.printListings(report.TextMatches)
		return
	}

	for _, m := range report.Matches {
		st := m.State
		fmt.Fprintf(a.out, "\nHash:     %s\n", st.AddressHash)
		fmt.Fprintf(a.out, "Address:  %s\n", st.NormalizedAddress)
		fmt.Fprintf(a.out, "Status:   %s (locked: %t)\n", statusColor(st.Status), st.Locked)
		if st.ListingSource != "" {
			fmt.Fprintf(a.out, "Source:   %s\n", st.ListingSource)
		}
		if st.CheckedAt != "" {
			fmt.Fprintf(a.out, "Checked:  %s via %s\n", st.CheckedAt, st.SourceUsed)
		}
		if st.FailureReason != "" {
			fmt.Fprintf(a.out, "Reason:   %s\n", st.FailureReason)
		}

		if m.Owner == nil {
			fmt.Fprintln(a.out, "Owner:    (none)")
		} else {
			o := m.Owner
			fmt.Fprintf(a.out, "Owner:    %s | %s | %s [%s]\n", orDash(o.Name), orDash(o.Email), orDash(o.Phone), o.Source)
		}

		if len(m.Listings) > 0 {
			a.printListings(m.Listings)
		}
		for _, f := range m.Findings {
			fmt.Fprintf(a.out, "%s %s\n", color.New(color.FgYellow).Sprint("⚠"), f)
		}
		if len(m.Findings) == 0 {
			fmt.Fprintf(a.out, "%s consistent\n", color.New(color.FgGreen).Sprint("✓"))
		}
	}
}

func (a *DiagnosticsAdapter) printListings(matches []primary.ListingMatch) {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TABLE\tID\tADDRESS\tHASH\tMATCH")
	for _, l := range matches {
		how := "text"
		if l.ByHash {
			how = "hash"
		}
		if l.HashMismatch {
			how += color.New(color.FgRed).Sprint(" (hash mismatch)")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", l.Table, l.ID, l.Address, shortHash(orDash(l.AddressHash)), how)
	}
	w.Flush()
}

// AuditHashes prints the hash audit.
func (a *DiagnosticsAdapter) AuditHashes(ctx context.Context) (*primary.HashAuditReport, error) {
	report, err := a.service.AuditHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("hash audit failed: %w", err)
	}

	fmt.Fprintf(a.out, "State rows: %s (%d malformed)\n\n", humanize.Comma(int64(report.StateRows)), report.StateMalformed)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS\tMISSING\tMALFORMED\tSTALE")
	issues := report.StateMalformed
	for _, t := range report.Tables {
		if t.Error != "" {
			fmt.Fprintf(w, "%s\t%s\n", t.Table, color.New(color.FgRed).Sprint(t.Error))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", t.Table, humanize.Comma(int64(t.Rows)), t.Missing, t.Malformed, t.Stale)
		issues += t.Malformed + t.Stale
	}
	w.Flush()

	if issues > 0 {
		fmt.Fprintf(a.out, "\n%s %d hashes disagree with the address hash function. Run 'propenrich rehash' to fix listing rows.\n",
			color.New(color.FgYellow).Sprint("⚠"), issues)
	} else {
		fmt.Fprintln(a.out, "\n✓ All stored hashes are well formed and current.")
	}
	return report, nil
}

// Rehash prints the rehash summary.
func (a *DiagnosticsAdapter) Rehash(ctx context.Context, req primary.RehashRequest) (*primary.RehashReport, error) {
	report, err := a.service.Rehash(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rehash failed: %w", err)
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tSCANNED\tCHANGED\tUNPROCESSABLE")
	for _, t := range report.Tables {
		if t.Error != "" {
			fmt.Fprintf(w, "%s\t%s\n", t.Table, color.New(color.FgRed).Sprint(t.Error))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", t.Table, humanize.Comma(int64(t.Scanned)), t.Changed, t.Unprocessable)
	}
	w.Flush()

	if !req.Live {
		fmt.Fprintln(a.out, "\n[DRY RUN] No changes made. Run with --live to apply.")
	}
	return report, nil
}

// Stats prints the system overview.
func (a *DiagnosticsAdapter) Stats(ctx context.Context) (*primary.StatsReport, error) {
	report, err := a.service.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}

	fmt.Fprintln(a.out, "Listings")
	total := 0
	for _, t := range report.Listings {
		if t.Error != "" {
			fmt.Fprintf(a.out, "  %-26s %s\n", t.Table, color.New(color.FgRed).Sprint(t.Error))
			continue
		}
		total += t.Count
		fmt.Fprintf(a.out, "  %-26s %10s\n", t.Table, humanize.Comma(int64(t.Count)))
	}
	fmt.Fprintf(a.out, "  %-26s %10s\n", "total", humanize.Comma(int64(total)))

	fmt.Fprintln(a.out, "\nEnrichment queue")
	for _, q := range report.Queue {
		fmt.Fprintf(a.out, "  %-26s %10s\n", q.Status, humanize.Comma(int64(q.Count)))
	}

	fmt.Fprintf(a.out, "\nOwner records: %s\n", humanize.Comma(int64(report.Owners)))

	usage := fmt.Sprintf("%d/%d", report.UsageLast24h, report.DailyCap)
	if report.UsageLast24h >= report.DailyCap {
		usage = color.New(color.FgRed).Sprint(usage)
	}
	fmt.Fprintf(a.out, "Lookups (24h): %s\n", usage)
	return report, nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
