package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/propenrich/internal/adapters/sqlite"
	"github.com/example/propenrich/internal/db"
)

// Separate handles on one WAL file stand in for separate worker processes.
func TestEnrichmentStateRepository_ClaimBatchConcurrentHandles(t *testing.T) {
	const (
		handles = 8
		rows    = 300
		batch   = 7
	)

	path := filepath.Join(t.TempDir(), "claim.db")
	conns := make([]*sql.DB, handles)
	for i := range conns {
		conn, err := db.Open(path)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		conns[i] = conn
	}
	if err := db.InitSchema(conns[0]); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	for i := 0; i < rows; i++ {
		seedState(t, conns[0], hashOf(t, fmt.Sprintf("%d Claim St, Chicago, IL", i+1)), "never_checked", false, "")
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
	)
	g, ctx := errgroup.WithContext(context.Background())
	for _, conn := range conns {
		repo := sqlite.NewEnrichmentStateRepository(conn)
		g.Go(func() error {
			for {
				got, err := repo.ClaimBatch(ctx, batch, time.Now())
				if err != nil {
					return err
				}
				if len(got) == 0 {
					return nil
				}
				mu.Lock()
				for _, rec := range got {
					claimed[rec.AddressHash]++
				}
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ClaimBatch failed: %v", err)
	}

	if len(claimed) != rows {
		t.Errorf("expected %d distinct rows claimed, got %d", rows, len(claimed))
	}
	for hash, n := range claimed {
		if n != 1 {
			t.Errorf("%s claimed %d times", hash, n)
		}
	}

	var pending int
	if err := conns[0].QueryRow(`SELECT COUNT(*) FROM property_owner_enrichment_state WHERE status = 'never_checked'`).Scan(&pending); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if pending != 0 {
		t.Errorf("expected no pending rows, got %d", pending)
	}
}
