package enrichment

import (
	"testing"
	"time"
)

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusNeverChecked, false},
		{StatusChecking, false},
		{StatusEnriched, true},
		{StatusNoOwnerData, true},
		{StatusFailed, true},
		{Status("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := IsTerminal(tt.status); got != tt.want {
				t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		tr         Transition
		from       Status
		to         Status
		locked     bool
		stampsTime bool
	}{
		{"claim", ClaimTransition(now), StatusNeverChecked, StatusChecking, true, true},
		{"enriched", EnrichedTransition(), StatusChecking, StatusEnriched, true, false},
		{"failed", FailedTransition(), StatusChecking, StatusNoOwnerData, true, false},
		{"resolved", ResolvedTransition(now), StatusNeverChecked, StatusEnriched, true, true},
		{"reset", ResetTransition(), StatusChecking, StatusNeverChecked, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.tr.From) != 1 || tt.tr.From[0] != tt.from {
				t.Errorf("expected from %s, got %v", tt.from, tt.tr.From)
			}
			if tt.tr.To != tt.to {
				t.Errorf("expected to %s, got %s", tt.to, tt.tr.To)
			}
			if tt.tr.Locked != tt.locked {
				t.Errorf("expected locked=%v", tt.locked)
			}
			if tt.stampsTime && (tt.tr.CheckedAt == nil || !tt.tr.CheckedAt.Equal(now)) {
				t.Errorf("expected checked_at %v, got %v", now, tt.tr.CheckedAt)
			}
			if !tt.stampsTime && tt.tr.CheckedAt != nil {
				t.Errorf("expected no checked_at, got %v", tt.tr.CheckedAt)
			}
		})
	}
}

func TestTransitions_NeverLeaveTerminal(t *testing.T) {
	now := time.Now()
	all := []Transition{ClaimTransition(now), EnrichedTransition(), FailedTransition(), ResolvedTransition(now), ResetTransition()}
	for _, tr := range all {
		for _, from := range tr.From {
			if IsTerminal(from) {
				t.Errorf("transition to %s starts from terminal status %s", tr.To, from)
			}
		}
	}
}

func TestCanComplete(t *testing.T) {
	tests := []struct {
		name        string
		ctx         StateContext
		wantAllowed bool
	}{
		{"checking row", StateContext{AddressHash: "h", Exists: true, Status: StatusChecking, Locked: true}, true},
		{"missing row", StateContext{AddressHash: "h"}, false},
		{"never claimed", StateContext{AddressHash: "h", Exists: true, Status: StatusNeverChecked}, false},
		{"already terminal", StateContext{AddressHash: "h", Exists: true, Status: StatusEnriched, Locked: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanComplete(tt.ctx)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("expected allowed=%v, got %v (%s)", tt.wantAllowed, result.Allowed, result.Reason)
			}
			if !tt.wantAllowed && result.Error() == nil {
				t.Error("expected an error for a disallowed guard")
			}
		})
	}
}

func TestCanPromoteScraped(t *testing.T) {
	tests := []struct {
		name        string
		ctx         StateContext
		wantAllowed bool
	}{
		{"pending row", StateContext{AddressHash: "h", Exists: true, Status: StatusNeverChecked}, true},
		{"worker holds it", StateContext{AddressHash: "h", Exists: true, Status: StatusChecking, Locked: true}, false},
		{"no_owner_data is terminal", StateContext{AddressHash: "h", Exists: true, Status: StatusNoOwnerData, Locked: true}, false},
		{"enriched is terminal", StateContext{AddressHash: "h", Exists: true, Status: StatusEnriched, Locked: true}, false},
		{"missing row", StateContext{AddressHash: "h"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanPromoteScraped(tt.ctx).Allowed; got != tt.wantAllowed {
				t.Errorf("expected allowed=%v, got %v", tt.wantAllowed, got)
			}
		})
	}
}

func TestCanReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * time.Minute)
	old := now.Add(-3 * time.Hour)

	checking := StateContext{AddressHash: "h", Exists: true, Status: StatusChecking, Locked: true}

	tests := []struct {
		name        string
		ctx         ResetContext
		wantAllowed bool
	}{
		{
			name:        "old claim",
			ctx:         ResetContext{StateContext: checking, CheckedAt: &old, OlderThan: time.Hour, Now: now},
			wantAllowed: true,
		},
		{
			name:        "recent claim",
			ctx:         ResetContext{StateContext: checking, CheckedAt: &recent, OlderThan: time.Hour, Now: now},
			wantAllowed: false,
		},
		{
			name:        "recent claim with age ignored",
			ctx:         ResetContext{StateContext: checking, CheckedAt: &recent, OlderThan: time.Hour, Now: now, IgnoreAge: true},
			wantAllowed: true,
		},
		{
			name:        "no checked_at counts as stale",
			ctx:         ResetContext{StateContext: checking, OlderThan: time.Hour, Now: now},
			wantAllowed: true,
		},
		{
			name: "terminal row",
			ctx: ResetContext{
				StateContext: StateContext{AddressHash: "h", Exists: true, Status: StatusNoOwnerData, Locked: true},
				IgnoreAge:    true,
			},
			wantAllowed: false,
		},
		{
			name:        "pending row",
			ctx:         ResetContext{StateContext: StateContext{AddressHash: "h", Exists: true, Status: StatusNeverChecked}, IgnoreAge: true},
			wantAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanReset(tt.ctx).Allowed; got != tt.wantAllowed {
				t.Errorf("expected allowed=%v, got %v", tt.wantAllowed, got)
			}
		})
	}
}

func TestRemainingBudget(t *testing.T) {
	tests := []struct {
		used, dailyCap, want int
	}{
		{0, 50, 50},
		{49, 50, 1},
		{50, 50, 0},
		{9999, 50, 0},
	}
	for _, tt := range tests {
		if got := RemainingBudget(tt.used, tt.dailyCap); got != tt.want {
			t.Errorf("RemainingBudget(%d, %d) = %d, want %d", tt.used, tt.dailyCap, got, tt.want)
		}
	}
}

func TestMissingFrom(t *testing.T) {
	got := MissingFrom("Jane", "", "312-555-0100")
	want := MissingFields{OwnerEmail: true}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if AllMissing() != (MissingFields{true, true, true}) {
		t.Error("AllMissing should mark every field")
	}
}
