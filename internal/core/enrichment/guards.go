package enrichment

import (
	"fmt"
	"time"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// StateContext describes an existing state row for guard evaluation.
type StateContext struct {
	AddressHash string
	Exists      bool
	Status      Status
	Locked      bool
}

// CanComplete evaluates whether a worker may record a result for a row.
// Both enriched and no_owner_data outcomes require the row to be checking.
func CanComplete(ctx StateContext) GuardResult {
	if !ctx.Exists {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("enrichment state %s not found", ctx.AddressHash)}
	}
	if ctx.Status != StatusChecking {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot complete %s: status is %s (must be checking)", ctx.AddressHash, ctx.Status),
		}
	}
	return GuardResult{Allowed: true}
}

// CanPromoteScraped evaluates whether inline scraped data may mark a row
// enriched. Terminal rows are never overwritten by re-ingestion and a row a
// worker holds is left to that worker.
func CanPromoteScraped(ctx StateContext) GuardResult {
	if !ctx.Exists {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("enrichment state %s not found", ctx.AddressHash)}
	}
	if ctx.Status != StatusNeverChecked || ctx.Locked {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("enrichment state %s is %s, leaving it unchanged", ctx.AddressHash, ctx.Status),
		}
	}
	return GuardResult{Allowed: true}
}

// ResetContext provides context for the manual reset guard.
type ResetContext struct {
	StateContext
	CheckedAt *time.Time
	OlderThan time.Duration
	Now       time.Time
	IgnoreAge bool
}

// CanReset evaluates whether a row may go back to never_checked.
// Rules:
// - Only checking rows can be reset
// - Unless IgnoreAge is set, the claim must be older than OlderThan
func CanReset(ctx ResetContext) GuardResult {
	if !ctx.Exists {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("enrichment state %s not found", ctx.AddressHash)}
	}
	if ctx.Status != StatusChecking {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot reset %s: status is %s (only checking rows are reset)", ctx.AddressHash, ctx.Status),
		}
	}
	if ctx.IgnoreAge {
		return GuardResult{Allowed: true}
	}
	if ctx.CheckedAt != nil && ctx.Now.Sub(*ctx.CheckedAt) < ctx.OlderThan {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot reset %s: claimed %s ago, a worker may still hold it", ctx.AddressHash, ctx.Now.Sub(*ctx.CheckedAt).Round(time.Second)),
		}
	}
	return GuardResult{Allowed: true}
}

// RemainingBudget returns how many lookups may still be made today.
func RemainingBudget(used, dailyCap int) int {
	if used >= dailyCap {
		return 0
	}
	return dailyCap - used
}
