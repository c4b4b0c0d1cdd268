package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/propenrich/internal/config"
	"github.com/example/propenrich/internal/ports/secondary"
	"github.com/example/propenrich/internal/version"
	"github.com/example/propenrich/internal/wire"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

const doctorTimeout = 15 * time.Second

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate propenrich configuration and store",
		Long: `Environment health check for propenrich.

Validates:
- Store connectivity for the configured driver
- Listing tables in the registry exist
- Lookup API enabled and keyed

Examples:
  propenrich doctor              # Run full health check
  propenrich doctor --quiet      # Exit code only (0=healthy, 1=issues)`,
		Annotations: map[string]string{annotationNoStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()

			results := []CheckResult{checkStore(ctx)}
			if results[0].Status != "✗" {
				results = append(results, checkListingTables(ctx, wire.ListingRepository(), wire.ListingTables()))
			}
			results = append(results, checkLookup(wire.Config()))

			hasErrors := false
			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				printChecks(cmd.OutOrStdout(), results, hasErrors)
			}

			if hasErrors {
				return fmt.Errorf("environment validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - exit code only")

	return cmd
}

func printChecks(out io.Writer, results []CheckResult, hasErrors bool) {
	fmt.Fprintf(out, "\n%s\n\n", version.String())
	fmt.Fprintln(out, "Check              Status")
	fmt.Fprintln(out, "─────────────────────────")
	for _, r := range results {
		fmt.Fprintf(out, "%-18s %s\n", r.Name, r.Status)
	}
	fmt.Fprintln(out)

	// Print details for non-passing checks
	hasDetails := false
	for _, r := range results {
		if r.Status != "✓" && r.Details != "" {
			if !hasDetails {
				fmt.Fprintln(out, "Details:")
				hasDetails = true
			}
			fmt.Fprintf(out, "\n%s:\n%s\n", r.Name, r.Details)
		}
	}

	if hasErrors {
		fmt.Fprintln(out, "\n⚠ Issues found.")
	} else {
		fmt.Fprintln(out, "All checks passed.")
	}
}

// checkStore opens and pings the configured store
func checkStore(ctx context.Context) CheckResult {
	name := "Store (" + wire.Config().Database.Driver + ")"
	if err := wire.Ping(ctx); err != nil {
		return CheckResult{Name: name, Status: "✗", Details: "  " + err.Error()}
	}
	return CheckResult{Name: name, Status: "✓"}
}

// checkListingTables verifies every registered listing table exists
func checkListingTables(ctx context.Context, repo secondary.ListingRepository, tables []secondary.ListingTable) CheckResult {
	var missing, failed []string
	for _, t := range tables {
		ok, err := repo.Exists(ctx, t)
		switch {
		case err != nil:
			failed = append(failed, fmt.Sprintf("  %s: %v", t.Name, err))
		case !ok:
			missing = append(missing, "  "+t.Name)
		}
	}

	if len(failed) > 0 {
		return CheckResult{Name: "Listing tables", Status: "✗", Details: strings.Join(append(failed, missing...), "\n")}
	}
	if len(missing) > 0 {
		// Backfill and audits skip missing tables; orphan cleanup refuses to run.
		details := "  Missing (cleanup-orphans will refuse to run):\n" + strings.Join(missing, "\n")
		return CheckResult{Name: "Listing tables", Status: "⚠", Details: details}
	}
	return CheckResult{Name: "Listing tables", Status: "✓"}
}

// checkLookup reports whether the worker can call the lookup API
func checkLookup(cfg *config.Config) CheckResult {
	if ready, reason := cfg.LookupReady(); !ready {
		return CheckResult{
			Name:    "Lookup API",
			Status:  "⚠",
			Details: fmt.Sprintf("  %s\n  Set BATCHDATA_ENABLED=true and BATCHDATA_API_KEY to run the worker", reason),
		}
	}
	return CheckResult{Name: "Lookup API", Status: "✓"}
}
