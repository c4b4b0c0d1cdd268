package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/propenrich/internal/core/enrichment"
	"github.com/example/propenrich/internal/ports/primary"
	"github.com/example/propenrich/internal/ports/secondary"
)

var testTables = []secondary.ListingTable{
	{Name: "trulia_listings", IDColumn: "id", AddressColumn: "address", Source: "Trulia", OwnerColumns: []string{"owner_name", "phones"}},
	{Name: "redfin_listings", IDColumn: "id", AddressColumn: "address", Source: "Redfin", OwnerColumns: []string{"owner_name"}},
}

type reconcileFixture struct {
	service  *ReconcileServiceImpl
	states   *mockStateRepository
	owners   *mockOwnerRepository
	listings *mockListingRepository
}

func newReconcileFixture(pageSize int) *reconcileFixture {
	f := &reconcileFixture{
		states:   newMockStateRepository(),
		owners:   newMockOwnerRepository(),
		listings: newMockListingRepository(),
	}
	for _, tbl := range testTables {
		f.listings.tables[tbl.Name] = nil
	}
	f.service = NewReconcileService(f.states, f.owners, f.listings, testTables, ReconcileSettings{
		PageSize:   pageSize,
		StuckAfter: time.Hour,
		Workers:    2,
	})
	return f
}

func TestReconcileService_Backfill(t *testing.T) {
	f := newReconcileFixture(3)
	ctx := context.Background()

	// Ten Trulia rows: half carry owner data, one has no address, one is queued
	// already and one has a genuine owner record.
	var want []string
	for i := 0; i < 10; i++ {
		addr := fmt.Sprintf("%d Main Street", i+1)
		var owner map[string]any
		if i%2 == 0 {
			owner = map[string]any{"owner_name": "Jane Doe"}
		} else {
			owner = map[string]any{"owner_name": nil, "phones": "[]"}
		}
		f.listings.add("trulia_listings", addr, "", owner)
	}
	f.listings.add("trulia_listings", "   ", "", nil)

	_, queuedHash := mustKey("2 Main Street")
	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: queuedHash, Status: enrichment.StatusNoOwnerData})
	_, ownedHash := mustKey("4 Main Street")
	f.owners.owners[ownedHash] = &secondary.OwnerRecord{AddressHash: ownedHash, OwnerPhone: "312-555-0100", Source: "scraped"}

	for _, n := range []int{6, 8, 10} {
		_, h := mustKey(fmt.Sprintf("%d Main Street", n))
		want = append(want, h)
	}

	report, err := f.service.Backfill(ctx, primary.BackfillRequest{})
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}

	tr := report.Tables[0]
	if tr.Scanned != 11 {
		t.Errorf("scanned = %d, want 11", tr.Scanned)
	}
	if tr.SkippedLocalData != 5 || tr.SkippedNoAddress != 1 || tr.SkippedQueued != 1 || tr.SkippedOwnerData != 1 {
		t.Errorf("unexpected skips: %+v", tr)
	}
	if tr.Queued != 3 || report.TotalQueued != 3 {
		t.Errorf("queued = %d, total %d; want 3", tr.Queued, report.TotalQueued)
	}
	if tr.HashesSet != 10 {
		t.Errorf("hashes set = %d, want 10", tr.HashesSet)
	}
	for _, h := range want {
		st := f.states.get(h)
		if st == nil || st.Status != enrichment.StatusNeverChecked || st.ListingSource != "Trulia" {
			t.Errorf("expected %s queued, got %+v", h, st)
		}
	}
	if got := f.listings.row("trulia_listings", 1).AddressHash; got == "" {
		t.Error("listing hash not written")
	}
	if report.Tables[1].Scanned != 0 || report.Tables[1].Error != "" {
		t.Errorf("empty table report: %+v", report.Tables[1])
	}
}

func TestReconcileService_BackfillDryRun(t *testing.T) {
	f := newReconcileFixture(100)
	f.listings.add("redfin_listings", "1 Main St", "", nil)
	f.listings.add("trulia_listings", "1 Main Street", "", nil)

	report, err := f.service.Backfill(context.Background(), primary.BackfillRequest{DryRun: true})
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if report.TotalQueued != 1 {
		t.Errorf("total queued = %d, the same address in two tables counts once", report.TotalQueued)
	}
	if len(f.states.states) != 0 {
		t.Error("dry run must not write state rows")
	}
	if f.listings.row("trulia_listings", 1).AddressHash != "" {
		t.Error("dry run must not write listing hashes")
	}
}

func TestReconcileService_BackfillMissingTable(t *testing.T) {
	f := newReconcileFixture(100)
	delete(f.listings.tables, "redfin_listings")
	f.listings.add("trulia_listings", "1 Main St", "", nil)

	report, err := f.service.Backfill(context.Background(), primary.BackfillRequest{})
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if report.Tables[1].Error == "" {
		t.Error("missing table must be reported")
	}
	if report.TotalQueued != 1 {
		t.Errorf("other tables still run, queued = %d", report.TotalQueued)
	}
}

func TestReconcileService_Repair(t *testing.T) {
	f := newReconcileFixture(2)
	ctx := context.Background()

	_, stale := mustKey("1 Main St")
	_, missing := mustKey("2 Main St")
	_, fine := mustKey("3 Main St")
	_, placeholderOnly := mustKey("4 Main St")
	_, ghost := mustKey("5 Main St")

	f.owners.owners[stale] = &secondary.OwnerRecord{AddressHash: stale, OwnerName: "Jane Doe", Source: "external_api"}
	f.owners.owners[missing] = &secondary.OwnerRecord{AddressHash: missing, OwnerEmail: "jane@example.com", Source: "scraped", ListingSource: "Trulia"}
	f.owners.owners[fine] = &secondary.OwnerRecord{AddressHash: fine, OwnerName: "John Roe", Source: "scraped"}
	f.owners.owners[placeholderOnly] = &secondary.OwnerRecord{AddressHash: placeholderOnly, OwnerEmail: "support@hotpads.com", Source: "scraped"}

	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: stale, NormalizedAddress: "1 MAIN ST", Status: enrichment.StatusNeverChecked})
	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: fine, Status: enrichment.StatusEnriched, Locked: true})
	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: placeholderOnly, Status: enrichment.StatusNeverChecked})
	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: ghost, Status: enrichment.StatusEnriched, Locked: true})
	f.listings.add("redfin_listings", "2 Main Street", missing, nil)

	dry, err := f.service.Repair(ctx, primary.RepairRequest{})
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	if len(dry.Updates) != 1 || len(dry.Inserts) != 1 || dry.Updated != 0 || dry.Inserted != 0 {
		t.Errorf("unexpected dry run report: %+v", dry)
	}
	if f.states.get(stale).Status != enrichment.StatusNeverChecked {
		t.Error("dry run must not write")
	}

	live, err := f.service.Repair(ctx, primary.RepairRequest{Live: true})
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	if live.Updated != 1 || live.Inserted != 1 {
		t.Errorf("unexpected live report: %+v", live)
	}
	if len(live.Ghosts) != 1 || live.Ghosts[0] != ghost {
		t.Errorf("ghosts = %v", live.Ghosts)
	}

	// Every owner record with genuine data now has an enriched state row.
	for hash, o := range f.owners.owners {
		if !recordFields(o).Genuine() {
			continue
		}
		st := f.states.get(hash)
		if st == nil || st.Status != enrichment.StatusEnriched || !st.Locked {
			t.Errorf("invariant broken for %s: %+v", hash, st)
		}
	}
	if got := f.states.get(stale).SourceUsed; got != "external_api" {
		t.Errorf("source_used = %q", got)
	}
	inserted := f.states.get(missing)
	if inserted.NormalizedAddress != "2 MAIN ST" || inserted.ListingSource != "Trulia" {
		t.Errorf("unexpected inserted row: %+v", inserted)
	}
	if f.states.get(placeholderOnly).Status != enrichment.StatusNeverChecked {
		t.Error("placeholder-only owner must not be repaired")
	}
	if f.states.get(ghost).Status != enrichment.StatusEnriched {
		t.Error("ghosts are reported, not changed")
	}
}

func TestReconcileService_RepairLeavesDailyBudget(t *testing.T) {
	f := newReconcileFixture(20)
	ctx := context.Background()
	now := time.Now()
	lookedUp := now.Add(-72 * time.Hour)

	for i := 0; i < 50; i++ {
		_, hash := mustKey(fmt.Sprintf("%d Lake Shore Drive", i+1))
		f.owners.owners[hash] = &secondary.OwnerRecord{
			AddressHash: hash,
			OwnerName:   "Jane Doe",
			Source:      "external_api",
			CreatedAt:   lookedUp,
			UpdatedAt:   lookedUp,
		}
	}

	report, err := f.service.Repair(ctx, primary.RepairRequest{Live: true})
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	if report.Inserted != 50 {
		t.Fatalf("expected 50 inserted, got %d", report.Inserted)
	}

	used, err := f.states.CountExternalCallsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountExternalCallsSince failed: %v", err)
	}
	if used != 0 {
		t.Errorf("repair spent %d of the daily budget", used)
	}
	for hash := range f.owners.owners {
		st := f.states.get(hash)
		if st.CheckedAt == nil || !st.CheckedAt.Equal(lookedUp) {
			t.Errorf("%s: checked_at = %v, want %v", hash, st.CheckedAt, lookedUp)
		}
	}

	// A worker sharing the store still has its whole budget.
	worker := NewWorkerService(newMockLookup(), f.states, f.owners, WorkerSettings{Enabled: true, HasAPIKey: true, DailyCap: 50})
	queue(t, f.states, "9 Oak Street")
	result, err := worker.RunBatch(ctx, 2)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.SkipReason != "" || result.Claimed != 1 {
		t.Errorf("expected one claimed row and no skip, got %+v", result)
	}
}

func TestReconcileService_CleanupOrphans(t *testing.T) {
	f := newReconcileFixture(2)
	ctx := context.Background()

	var kept, orphans []string
	for i := 0; i < 5; i++ {
		_, h := mustKey(fmt.Sprintf("%d Main St", i+1))
		f.states.put(&secondary.EnrichmentStateRecord{AddressHash: h, Status: enrichment.StatusNeverChecked})
		if i < 3 {
			table := testTables[i%2].Name
			f.listings.add(table, fmt.Sprintf("%d Main St", i+1), h, nil)
			kept = append(kept, h)
		} else {
			orphans = append(orphans, h)
		}
	}
	f.listings.add("trulia_listings", "no hash yet", "", nil)

	dry, err := f.service.CleanupOrphans(ctx, primary.CleanupRequest{})
	if err != nil {
		t.Fatalf("CleanupOrphans failed: %v", err)
	}
	if dry.StateHashes != 5 || dry.ListingHashes != 3 || len(dry.Orphans) != 2 || dry.Deleted != 0 {
		t.Errorf("unexpected dry run report: %+v", dry)
	}
	if len(f.states.states) != 5 {
		t.Error("dry run must not delete")
	}

	live, err := f.service.CleanupOrphans(ctx, primary.CleanupRequest{Live: true})
	if err != nil {
		t.Fatalf("CleanupOrphans failed: %v", err)
	}
	if live.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", live.Deleted)
	}
	for _, h := range orphans {
		if f.states.get(h) != nil {
			t.Errorf("orphan %s survived", h)
		}
	}
	for _, h := range kept {
		if f.states.get(h) == nil {
			t.Errorf("referenced row %s deleted", h)
		}
	}
}

func TestReconcileService_CleanupOrphansAbortsOnScanError(t *testing.T) {
	f := newReconcileFixture(10)
	_, h := mustKey("1 Main St")
	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: h, Status: enrichment.StatusEnriched})
	f.listings.scanErr["redfin_listings"] = errBoom

	_, err := f.service.CleanupOrphans(context.Background(), primary.CleanupRequest{Live: true})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected scan error, got %v", err)
	}
	if f.states.get(h) == nil {
		t.Error("nothing may be deleted after a failed scan")
	}
}

func TestReconcileService_ResetStuck(t *testing.T) {
	f := newReconcileFixture(10)
	ctx := context.Background()
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	recent := now.Add(-5 * time.Minute)

	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: "a", Status: enrichment.StatusChecking, Locked: true, CheckedAt: &old})
	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: "b", Status: enrichment.StatusChecking, Locked: true, CheckedAt: &recent})
	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: "c", Status: enrichment.StatusEnriched, Locked: true, CheckedAt: &old})

	dry, err := f.service.ResetStuck(ctx, primary.ResetRequest{})
	if err != nil {
		t.Fatalf("ResetStuck failed: %v", err)
	}
	if len(dry.Candidates) != 1 || dry.Candidates[0].AddressHash != "a" || dry.Reset != 0 {
		t.Errorf("unexpected dry run: %+v", dry)
	}

	live, err := f.service.ResetStuck(ctx, primary.ResetRequest{Live: true})
	if err != nil {
		t.Fatalf("ResetStuck failed: %v", err)
	}
	if live.Reset != 1 {
		t.Errorf("reset = %d", live.Reset)
	}
	if st := f.states.get("a"); st.Status != enrichment.StatusNeverChecked || st.Locked {
		t.Errorf("row a not reset: %+v", st)
	}
	if f.states.get("b").Status != enrichment.StatusChecking {
		t.Error("a recent claim must be left to its worker")
	}
}

func TestReconcileService_ResetSingleHash(t *testing.T) {
	f := newReconcileFixture(10)
	ctx := context.Background()
	recent := time.Now().Add(-time.Minute)
	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: "b", Status: enrichment.StatusChecking, Locked: true, CheckedAt: &recent})
	f.states.put(&secondary.EnrichmentStateRecord{AddressHash: "c", Status: enrichment.StatusEnriched, Locked: true})

	report, err := f.service.ResetStuck(ctx, primary.ResetRequest{Hash: "b", Live: true})
	if err != nil {
		t.Fatalf("ResetStuck failed: %v", err)
	}
	if report.Reset != 1 || f.states.get("b").Status != enrichment.StatusNeverChecked {
		t.Errorf("named row must be reset regardless of age: %+v", report)
	}

	if _, err := f.service.ResetStuck(ctx, primary.ResetRequest{Hash: "c", Live: true}); err == nil {
		t.Error("expected error resetting a terminal row")
	}
	if _, err := f.service.ResetStuck(ctx, primary.ResetRequest{Hash: "zzz"}); err == nil {
		t.Error("expected error for unknown hash")
	}
}
