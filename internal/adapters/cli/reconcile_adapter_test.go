package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/propenrich/internal/ports/primary"
)

type mockReconcileService struct {
	backfillFn    func(ctx context.Context, req primary.BackfillRequest) (*primary.BackfillReport, error)
	repairFn      func(ctx context.Context, req primary.RepairRequest) (*primary.RepairReport, error)
	cleanupFn     func(ctx context.Context, req primary.CleanupRequest) (*primary.CleanupReport, error)
	resetFn       func(ctx context.Context, req primary.ResetRequest) (*primary.ResetReport, error)
	lastBackfill  primary.BackfillRequest
	lastRepair    primary.RepairRequest
	lastCleanup   primary.CleanupRequest
	lastResetCall primary.ResetRequest
}

func (m *mockReconcileService) Backfill(ctx context.Context, req primary.BackfillRequest) (*primary.BackfillReport, error) {
	m.lastBackfill = req
	if m.backfillFn != nil {
		return m.backfillFn(ctx, req)
	}
	return &primary.BackfillReport{DryRun: req.DryRun, TotalQueued: 1234, Tables: []primary.BackfillTableReport{
		{Table: "trulia_listings", Source: "Trulia", Scanned: 2000, Queued: 1234},
		{Table: "redfin_listings", Source: "Redfin", Error: "table not found"},
	}}, nil
}

func (m *mockReconcileService) Repair(ctx context.Context, req primary.RepairRequest) (*primary.RepairReport, error) {
	m.lastRepair = req
	if m.repairFn != nil {
		return m.repairFn(ctx, req)
	}
	return &primary.RepairReport{
		Live:    req.Live,
		Updates: []primary.RepairChange{{AddressHash: "aaaaaaaaaaaaaaaa", OldStatus: "never_checked", SourceUsed: "scraped"}},
		Ghosts:  []string{"ghost-hash"},
	}, nil
}

func (m *mockReconcileService) CleanupOrphans(ctx context.Context, req primary.CleanupRequest) (*primary.CleanupReport, error) {
	m.lastCleanup = req
	if m.cleanupFn != nil {
		return m.cleanupFn(ctx, req)
	}
	return &primary.CleanupReport{Live: req.Live, StateHashes: 10, ListingHashes: 8, Orphans: []string{"o1", "o2"}}, nil
}

func (m *mockReconcileService) ResetStuck(ctx context.Context, req primary.ResetRequest) (*primary.ResetReport, error) {
	m.lastResetCall = req
	if m.resetFn != nil {
		return m.resetFn(ctx, req)
	}
	return &primary.ResetReport{Live: req.Live}, nil
}

func TestReconcileAdapter_Backfill(t *testing.T) {
	service := &mockReconcileService{}
	var out bytes.Buffer
	adapter := NewReconcileAdapter(service, &out)

	if _, err := adapter.Backfill(context.Background(), true); err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if !service.lastBackfill.DryRun {
		t.Error("dry run flag not passed")
	}
	got := out.String()
	for _, want := range []string{"DRY RUN", "1,234 addresses queued", "table not found", "2,000"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestReconcileAdapter_Repair(t *testing.T) {
	service := &mockReconcileService{}
	var out bytes.Buffer
	adapter := NewReconcileAdapter(service, &out)

	if _, err := adapter.Repair(context.Background(), false); err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Status updates needed: 1", "never_checked → enriched", "ghost-hash", "--live"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestReconcileAdapter_CleanupOrphansLive(t *testing.T) {
	service := &mockReconcileService{cleanupFn: func(ctx context.Context, req primary.CleanupRequest) (*primary.CleanupReport, error) {
		return &primary.CleanupReport{Live: true, Orphans: []string{"o1"}, Deleted: 1}, nil
	}}
	var out bytes.Buffer
	adapter := NewReconcileAdapter(service, &out)

	if _, err := adapter.CleanupOrphans(context.Background(), true); err != nil {
		t.Fatalf("CleanupOrphans failed: %v", err)
	}
	if !service.lastCleanup.Live {
		t.Error("live flag not passed")
	}
	if !strings.Contains(out.String(), "Deleted 1 orphaned") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestReconcileAdapter_CleanupOrphansError(t *testing.T) {
	service := &mockReconcileService{cleanupFn: func(ctx context.Context, req primary.CleanupRequest) (*primary.CleanupReport, error) {
		return nil, errors.New("listing table redfin_listings not found")
	}}
	adapter := NewReconcileAdapter(service, &bytes.Buffer{})

	_, err := adapter.CleanupOrphans(context.Background(), true)
	if err == nil || !strings.Contains(err.Error(), "redfin_listings") {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestReconcileAdapter_ResetStuckNone(t *testing.T) {
	service := &mockReconcileService{}
	var out bytes.Buffer
	adapter := NewReconcileAdapter(service, &out)

	req := primary.ResetRequest{Hash: "abc", Live: true}
	if _, err := adapter.ResetStuck(context.Background(), req); err != nil {
		t.Fatalf("ResetStuck failed: %v", err)
	}
	if service.lastResetCall != req {
		t.Errorf("request = %+v", service.lastResetCall)
	}
	if !strings.Contains(out.String(), "No stuck rows found.") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}
