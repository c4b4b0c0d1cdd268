package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/propenrich/internal/address"
	"github.com/example/propenrich/internal/core/enrichment"
	"github.com/example/propenrich/internal/listings"
	"github.com/example/propenrich/internal/logging"
	"github.com/example/propenrich/internal/metrics"
	"github.com/example/propenrich/internal/ports/primary"
	"github.com/example/propenrich/internal/ports/secondary"
)

const (
	diagnoseStateLimit   = 50
	diagnoseListingLimit = 20
)

// DiagnosticsSettings tunes the inspection tools.
type DiagnosticsSettings struct {
	DailyCap   int
	StuckAfter time.Duration
	PageSize   int
	Workers    int
}

// DiagnosticsServiceImpl implements the DiagnosticsService interface.
type DiagnosticsServiceImpl struct {
	stateRepo   secondary.EnrichmentStateRepository
	ownerRepo   secondary.OwnerRepository
	listingRepo secondary.ListingRepository
	tables      []secondary.ListingTable
	settings    DiagnosticsSettings
	now         func() time.Time
}

// NewDiagnosticsService creates a new DiagnosticsService with injected dependencies.
func NewDiagnosticsService(
	stateRepo secondary.EnrichmentStateRepository,
	ownerRepo secondary.OwnerRepository,
	listingRepo secondary.ListingRepository,
	tables []secondary.ListingTable,
	settings DiagnosticsSettings,
) *DiagnosticsServiceImpl {
	if settings.PageSize < 1 {
		settings.PageSize = 1000
	}
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	return &DiagnosticsServiceImpl{
		stateRepo:   stateRepo,
		ownerRepo:   ownerRepo,
		listingRepo: listingRepo,
		tables:      tables,
		settings:    settings,
		now:         time.Now,
	}
}

// Diagnose joins every store for state rows whose address contains fragment.
func (s *DiagnosticsServiceImpl) Diagnose(ctx context.Context, fragment string) (*primary.DiagnosisReport, error) {
	raw := strings.TrimSpace(fragment)
	normalized := address.Normalize(raw)
	if normalized == "" {
		return nil, fmt.Errorf("fragment %q: %w", fragment, address.ErrUnprocessableAddress)
	}

	report := &primary.DiagnosisReport{Fragment: raw}

	states, err := s.stateRepo.SearchByAddress(ctx, normalized, diagnoseStateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search enrichment states: %w", err)
	}

	// Listings found by text are shared by every state row's mismatch check.
	textMatches, err := s.searchListings(ctx, raw)
	if err != nil {
		return nil, err
	}

	if len(states) == 0 {
		report.TextMatches = textMatches
		return report, nil
	}

	for _, st := range states {
		d, err := s.diagnoseState(ctx, st, textMatches)
		if err != nil {
			return nil, err
		}
		report.Matches = append(report.Matches, *d)
	}
	return report, nil
}

func (s *DiagnosticsServiceImpl) diagnoseState(ctx context.Context, st *secondary.EnrichmentStateRecord, textMatches []primary.ListingMatch) (*primary.StateDiagnosis, error) {
	d := &primary.StateDiagnosis{State: toState(st)}

	owner, err := s.ownerRepo.Get(ctx, st.AddressHash)
	if err != nil && !errors.Is(err, secondary.ErrNotFound) {
		return nil, fmt.Errorf("failed to get owner record: %w", err)
	}
	genuine := false
	if owner != nil {
		d.Owner = toOwner(owner)
		genuine = d.Owner.Genuine
	}

	for _, table := range s.tables {
		rows, err := s.listingRepo.FindByHash(ctx, table, st.AddressHash, diagnoseListingLimit)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("table", table.Name).Msg("listing lookup by hash failed")
			continue
		}
		for _, row := range rows {
			d.Listings = append(d.Listings, primary.ListingMatch{
				Table:       table.Name,
				ID:          row.ID,
				Address:     row.Address,
				AddressHash: row.AddressHash,
				ByHash:      true,
			})
		}
	}

	mismatch := false
	for _, m := range textMatches {
		if !m.HashMismatch {
			continue
		}
		if _, h, err := address.Key(m.Address); err == nil && h == st.AddressHash {
			d.Listings = append(d.Listings, m)
			mismatch = true
		}
	}

	switch {
	case st.Status == enrichment.StatusEnriched && !genuine:
		d.Findings = append(d.Findings, primary.FindingSplitBrain)
	case st.Status != enrichment.StatusEnriched && genuine:
		d.Findings = append(d.Findings, primary.FindingStaleStatus)
	}
	if !hasByHash(d.Listings) {
		d.Findings = append(d.Findings, primary.FindingOrphan)
	}
	if mismatch {
		d.Findings = append(d.Findings, primary.FindingHashMismatch)
	}
	if st.Status == enrichment.StatusChecking && st.CheckedAt != nil && s.now().Sub(*st.CheckedAt) >= s.settings.StuckAfter {
		d.Findings = append(d.Findings, primary.FindingStuck)
	}
	return d, nil
}

func hasByHash(matches []primary.ListingMatch) bool {
	for _, m := range matches {
		if m.ByHash {
			return true
		}
	}
	return false
}

// searchListings finds listings by address text in every table and flags rows
// whose stored hash differs from the hash of their own address.
func (s *DiagnosticsServiceImpl) searchListings(ctx context.Context, fragment string) ([]primary.ListingMatch, error) {
	var matches []primary.ListingMatch
	for _, table := range s.tables {
		rows, err := s.listingRepo.SearchByAddress(ctx, table, fragment, diagnoseListingLimit)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("table", table.Name).Msg("listing search failed")
			continue
		}
		for _, row := range rows {
			m := primary.ListingMatch{
				Table:       table.Name,
				ID:          row.ID,
				Address:     row.Address,
				AddressHash: row.AddressHash,
			}
			if _, h, err := address.Key(row.Address); err == nil && h != row.AddressHash {
				m.HashMismatch = true
			}
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// AuditHashes checks stored hashes against the shared hash function. Tables
// are scanned in parallel; a failing table is reported, not fatal.
func (s *DiagnosticsServiceImpl) AuditHashes(ctx context.Context) (*primary.HashAuditReport, error) {
	report := &primary.HashAuditReport{Tables: make([]primary.HashAuditTable, len(s.tables))}

	after := ""
	for {
		states, err := s.stateRepo.List(ctx, secondary.EnrichmentStateFilters{AfterHash: after, Limit: s.settings.PageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to list enrichment states: %w", err)
		}
		for _, st := range states {
			report.StateRows++
			if !address.ValidHash(st.AddressHash) {
				report.StateMalformed++
			}
		}
		if len(states) < s.settings.PageSize {
			break
		}
		after = states[len(states)-1].AddressHash
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Workers)
	for i, table := range s.tables {
		g.Go(func() error {
			at := primary.HashAuditTable{Table: table.Name}
			if err := s.auditTable(gctx, table, &at); err != nil {
				at.Error = err.Error()
			}
			report.Tables[i] = at
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *DiagnosticsServiceImpl) auditTable(ctx context.Context, table secondary.ListingTable, at *primary.HashAuditTable) error {
	exists, err := s.listingRepo.Exists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table not found")
	}
	return scanTable(ctx, s.listingRepo, table, s.settings.PageSize, func(row *secondary.ListingRow) error {
		at.Rows++
		switch {
		case row.AddressHash == "":
			at.Missing++
		case !address.ValidHash(row.AddressHash):
			at.Malformed++
		default:
			if _, h, err := address.Key(row.Address); err == nil && h != row.AddressHash {
				at.Stale++
			}
		}
		return nil
	})
}

// Rehash rewrites listing hashes that differ from the hash of the row's own
// address. An empty req.Table means every registered table.
func (s *DiagnosticsServiceImpl) Rehash(ctx context.Context, req primary.RehashRequest) (*primary.RehashReport, error) {
	tables := s.tables
	if req.Table != "" {
		table, ok := listings.Find(s.tables, req.Table)
		if !ok {
			return nil, fmt.Errorf("unknown listing table %q", req.Table)
		}
		tables = []secondary.ListingTable{table}
	}

	report := &primary.RehashReport{Live: req.Live}
	changed := 0
	for _, table := range tables {
		rt := primary.RehashTable{Table: table.Name}
		err := scanTable(ctx, s.listingRepo, table, s.settings.PageSize, func(row *secondary.ListingRow) error {
			rt.Scanned++
			_, h, err := address.Key(row.Address)
			if err != nil {
				rt.Unprocessable++
				return nil
			}
			if h == row.AddressHash {
				return nil
			}
			rt.Changed++
			if !req.Live {
				return nil
			}
			return s.listingRepo.SetHash(ctx, table, row.Key, h)
		})
		if err != nil {
			rt.Error = err.Error()
			logging.Warn().Err(err).Str("table", table.Name).Msg("rehash stopped")
		}
		changed += rt.Changed
		report.Tables = append(report.Tables, rt)
	}

	metrics.ReconcileChanges.WithLabelValues("rehash", metrics.Mode(req.Live)).Add(float64(changed))
	return report, nil
}

// Stats reports table sizes, queue depth and API usage.
func (s *DiagnosticsServiceImpl) Stats(ctx context.Context) (*primary.StatsReport, error) {
	report := &primary.StatsReport{
		DailyCap: s.settings.DailyCap,
		Listings: make([]primary.TableCount, len(s.tables)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Workers)
	for i, table := range s.tables {
		g.Go(func() error {
			tc := primary.TableCount{Table: table.Name, Source: table.Source}
			n, err := s.listingRepo.Count(gctx, table)
			if err != nil {
				tc.Error = err.Error()
			}
			tc.Count = n
			mu.Lock()
			report.Listings[i] = tc
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		counts, err := s.stateRepo.CountByStatus(gctx)
		if err != nil {
			return fmt.Errorf("failed to count states: %w", err)
		}
		queue := make([]primary.StatusCount, 0, len(counts))
		for _, status := range enrichment.AllStatuses() {
			queue = append(queue, primary.StatusCount{Status: string(status), Count: counts[status]})
			metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
		}
		mu.Lock()
		report.Queue = queue
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		n, err := s.ownerRepo.Count(gctx)
		if err != nil {
			return fmt.Errorf("failed to count owners: %w", err)
		}
		mu.Lock()
		report.Owners = n
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		n, err := s.stateRepo.CountExternalCallsSince(gctx, s.now().Add(-usageWindow))
		if err != nil {
			return fmt.Errorf("failed to count lookup usage: %w", err)
		}
		mu.Lock()
		report.UsageLast24h = n
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}
