package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// deleteChunk bounds the size of one DELETE ... IN (...) statement.
const deleteChunk = 500

// ReconcileSettings tunes the batch jobs.
type ReconcileSettings struct {
	PageSize   int
	StuckAfter time.Duration
	Workers    int
}

// ReconcileServiceImpl implements the ReconcileService interface.
type ReconcileServiceImpl struct {
	stateRepo   secondary.EnrichmentStateRepository
	ownerRepo   secondary.OwnerRepository
	listingRepo secondary.ListingRepository
	tables      []secondary.ListingTable
	settings    ReconcileSettings
	now         func() time.Time
}

// NewReconcileService creates a new ReconcileService with injected dependencies.
func NewReconcileService(
	stateRepo secondary.EnrichmentStateRepository,
	ownerRepo secondary.OwnerRepository,
	listingRepo secondary.ListingRepository,
	tables []secondary.ListingTable,
	settings ReconcileSettings,
) *ReconcileServiceImpl {
	if settings.PageSize < 1 {
		settings.PageSize = 1000
	}
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	return &ReconcileServiceImpl{
		stateRepo:   stateRepo,
		ownerRepo:   ownerRepo,
		listingRepo: listingRepo,
		tables:      tables,
		settings:    settings,
		now:         time.Now,
	}
}

// Backfill walks every listing table and enqueues addresses that have no owner
// data in the listing, no genuine owner record and no state row. Listing rows
// get their address_hash written when it is missing or stale.
func (s *ReconcileServiceImpl) Backfill(ctx context.Context, req primary.BackfillRequest) (*primary.BackfillReport, error) {
	report := &primary.BackfillReport{DryRun: req.DryRun}
	seen := make(map[string]bool)
	mode := metrics.Mode(!req.DryRun)

	for _, table := range s.tables {
		tr := primary.BackfillTableReport{Table: table.Name, Source: table.Source}

		exists, err := s.listingRepo.Exists(ctx, table)
		switch {
		case err != nil:
			tr.Error = err.Error()
		case !exists:
			tr.Error = "table not found"
		default:
			if err := s.backfillTable(ctx, table, req.DryRun, seen, &tr); err != nil {
				tr.Error = err.Error()
			}
		}
		if tr.Error != "" {
			logging.Warn().Str("table", table.Name).Str("error", tr.Error).Msg("backfill skipped table")
		}

		report.TotalQueued += tr.Queued
		report.Tables = append(report.Tables, tr)
	}

	metrics.ReconcileChanges.WithLabelValues("backfill", mode).Add(float64(report.TotalQueued))
	logging.Info().Bool("dry_run", req.DryRun).Int("queued", report.TotalQueued).Msg("backfill finished")
	return report, nil
}

func (s *ReconcileServiceImpl) backfillTable(ctx context.Context, table secondary.ListingTable, dryRun bool, seen map[string]bool, tr *primary.BackfillTableReport) error {
	var after any
	for {
		rows, err := s.listingRepo.ScanPage(ctx, table, after, s.settings.PageSize)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", table.Name, err)
		}

		for _, row := range rows {
			tr.Scanned++
			normalized, hash, err := address.Key(row.Address)
			if err != nil {
				tr.SkippedNoAddress++
				continue
			}

			if row.AddressHash != hash {
				if !dryRun {
					if err := s.listingRepo.SetHash(ctx, table, row.Key, hash); err != nil {
						return fmt.Errorf("failed to set hash on %s/%s: %w", table.Name, row.ID, err)
					}
				}
				tr.HashesSet++
			}

			if listings.HasOwnerData(row) {
				tr.SkippedLocalData++
				continue
			}
			if seen[hash] {
				tr.SkippedQueued++
				continue
			}
			seen[hash] = true

			queued, genuine, err := s.known(ctx, hash)
			if err != nil {
				return err
			}
			switch {
			case queued:
				tr.SkippedQueued++
			case genuine:
				tr.SkippedOwnerData++
			default:
				if !dryRun {
					if _, _, err := s.stateRepo.Enqueue(ctx, hash, normalized, table.Source); err != nil {
						return fmt.Errorf("failed to enqueue %s: %w", hash, err)
					}
				}
				tr.Queued++
			}
		}

		if len(rows) < s.settings.PageSize {
			return nil
		}
		after = rows[len(rows)-1].Key
	}
}

// known reports whether hash has a state row and whether its owner record
// holds genuine data.
func (s *ReconcileServiceImpl) known(ctx context.Context, hash string) (queued, genuine bool, err error) {
	if _, err := s.stateRepo.GetByHash(ctx, hash); err == nil {
		return true, false, nil
	} else if !errors.Is(err, secondary.ErrNotFound) {
		return false, false, fmt.Errorf("failed to get enrichment state: %w", err)
	}

	owner, err := s.ownerRepo.Get(ctx, hash)
	if errors.Is(err, secondary.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to get owner record: %w", err)
	}
	return false, recordFields(owner).Genuine(), nil
}

// Repair marks every state row enriched whose owner record holds genuine data,
// inserting rows that are missing. Enriched rows without genuine data are
// reported as ghosts and left alone.
func (s *ReconcileServiceImpl) Repair(ctx context.Context, req primary.RepairRequest) (*primary.RepairReport, error) {
	report := &primary.RepairReport{Live: req.Live}
	now := s.now()

	// 1. Owner records with genuine data must have an enriched state row
	after := ""
	for {
		owners, err := s.ownerRepo.List(ctx, after, s.settings.PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list owner records: %w", err)
		}

		for _, o := range owners {
			fields := recordFields(o)
			if !fields.Genuine() {
				continue
			}

			state, err := s.stateRepo.GetByHash(ctx, o.AddressHash)
			if err != nil && !errors.Is(err, secondary.ErrNotFound) {
				return nil, fmt.Errorf("failed to get enrichment state: %w", err)
			}
			if state != nil && state.Status == enrichment.StatusEnriched {
				continue
			}

			change := primary.RepairChange{AddressHash: o.AddressHash, SourceUsed: o.Source}
			checkedAt := ownerCheckedAt(o, now)
			record := &secondary.EnrichmentStateRecord{
				AddressHash:   o.AddressHash,
				ListingSource: o.ListingSource,
				SourceUsed:    o.Source,
				MissingFields: missingFor(fields),
				CheckedAt:     &checkedAt,
			}
			if state != nil {
				change.OldStatus = string(state.Status)
				record.NormalizedAddress = state.NormalizedAddress
				report.Updates = append(report.Updates, change)
			} else {
				record.NormalizedAddress = s.addressFor(ctx, o.AddressHash)
				report.Inserts = append(report.Inserts, change)
			}

			if !req.Live {
				continue
			}
			if err := s.stateRepo.ForceEnriched(ctx, record); err != nil {
				return nil, fmt.Errorf("failed to repair %s: %w", o.AddressHash, err)
			}
			if state != nil {
				report.Updated++
			} else {
				report.Inserted++
			}
		}

		if len(owners) < s.settings.PageSize {
			break
		}
		after = owners[len(owners)-1].AddressHash
	}

	// 2. Ghosts: enriched without anything to show for it
	ghosts, err := s.ghosts(ctx)
	if err != nil {
		return nil, err
	}
	report.Ghosts = ghosts

	mode := metrics.Mode(req.Live)
	metrics.ReconcileChanges.WithLabelValues("repair_update", mode).Add(float64(len(report.Updates)))
	metrics.ReconcileChanges.WithLabelValues("repair_insert", mode).Add(float64(len(report.Inserts)))

	logging.Info().
		Bool("live", req.Live).
		Int("updates", len(report.Updates)).
		Int("inserts", len(report.Inserts)).
		Int("ghosts", len(report.Ghosts)).
		Msg("repair finished")
	return report, nil
}

func (s *ReconcileServiceImpl) ghosts(ctx context.Context) ([]string, error) {
	var ghosts []string
	after := ""
	for {
		states, err := s.stateRepo.List(ctx, secondary.EnrichmentStateFilters{
			Status:    enrichment.StatusEnriched,
			AfterHash: after,
			Limit:     s.settings.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list enriched states: %w", err)
		}
		for _, st := range states {
			owner, err := s.ownerRepo.Get(ctx, st.AddressHash)
			if err != nil && !errors.Is(err, secondary.ErrNotFound) {
				return nil, fmt.Errorf("failed to get owner record: %w", err)
			}
			if owner == nil || !recordFields(owner).Genuine() {
				ghosts = append(ghosts, st.AddressHash)
			}
		}
		if len(states) < s.settings.PageSize {
			return ghosts, nil
		}
		after = states[len(states)-1].AddressHash
	}
}

// addressFor finds a listing carrying hash and returns its canonical address,
// or "" when no listing does.
func (s *ReconcileServiceImpl) addressFor(ctx context.Context, hash string) string {
	for _, table := range s.tables {
		rows, err := s.listingRepo.FindByHash(ctx, table, hash, 1)
		if err != nil || len(rows) == 0 {
			continue
		}
		return address.Normalize(rows[0].Address)
	}
	return ""
}

// CleanupOrphans deletes state rows whose hash no listing table carries. Any
// table that cannot be scanned aborts the run, since its hashes would
// otherwise look orphaned.
func (s *ReconcileServiceImpl) CleanupOrphans(ctx context.Context, req primary.CleanupRequest) (*primary.CleanupReport, error) {
	report := &primary.CleanupReport{Live: req.Live}

	// 1. Every state hash
	stateHashes, err := s.stateHashes(ctx)
	if err != nil {
		return nil, err
	}
	report.StateHashes = len(stateHashes)

	// 2. Every listing hash, tables in parallel
	listingHashes, counts, err := s.listingHashes(ctx)
	if err != nil {
		return nil, err
	}
	report.ListingHashes = len(listingHashes)
	report.Tables = counts

	// 3. Difference
	for _, h := range stateHashes {
		if !listingHashes[h] {
			report.Orphans = append(report.Orphans, h)
		}
	}

	if req.Live {
		for start := 0; start < len(report.Orphans); start += deleteChunk {
			end := min(start+deleteChunk, len(report.Orphans))
			n, err := s.stateRepo.DeleteByHashes(ctx, report.Orphans[start:end])
			if err != nil {
				return nil, fmt.Errorf("failed to delete orphaned states: %w", err)
			}
			report.Deleted += n
		}
	}

	metrics.ReconcileChanges.WithLabelValues("cleanup_orphans", metrics.Mode(req.Live)).Add(float64(len(report.Orphans)))
	logging.Info().
		Bool("live", req.Live).
		Int("state_hashes", report.StateHashes).
		Int("listing_hashes", report.ListingHashes).
		Int("orphans", len(report.Orphans)).
		Int("deleted", report.Deleted).
		Msg("orphan cleanup finished")
	return report, nil
}

func (s *ReconcileServiceImpl) stateHashes(ctx context.Context) ([]string, error) {
	var hashes []string
	after := ""
	for {
		states, err := s.stateRepo.List(ctx, secondary.EnrichmentStateFilters{AfterHash: after, Limit: s.settings.PageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to list enrichment states: %w", err)
		}
		for _, st := range states {
			hashes = append(hashes, st.AddressHash)
		}
		if len(states) < s.settings.PageSize {
			return hashes, nil
		}
		after = states[len(states)-1].AddressHash
	}
}

func (s *ReconcileServiceImpl) listingHashes(ctx context.Context) (map[string]bool, []primary.TableCount, error) {
	var mu sync.Mutex
	all := make(map[string]bool)
	counts := make([]primary.TableCount, len(s.tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Workers)

	for i, table := range s.tables {
		g.Go(func() error {
			exists, err := s.listingRepo.Exists(gctx, table)
			if err != nil {
				return fmt.Errorf("failed to check table %s: %w", table.Name, err)
			}
			if !exists {
				return fmt.Errorf("listing table %s not found", table.Name)
			}

			local := make(map[string]bool)
			err = scanTable(gctx, s.listingRepo, table, s.settings.PageSize, func(row *secondary.ListingRow) error {
				if row.AddressHash != "" {
					local[row.AddressHash] = true
				}
				return nil
			})
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for h := range local {
				all[h] = true
			}
			counts[i] = primary.TableCount{Table: table.Name, Source: table.Source, Count: len(local)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return all, counts, nil
}

// scanTable pages through a listing table calling fn for every row.
func scanTable(ctx context.Context, repo secondary.ListingRepository, table secondary.ListingTable, pageSize int, fn func(*secondary.ListingRow) error) error {
	var after any
	for {
		rows, err := repo.ScanPage(ctx, table, after, pageSize)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", table.Name, err)
		}
		for _, row := range rows {
			if err := fn(row); err != nil {
				return err
			}
		}
		if len(rows) < pageSize {
			return nil
		}
		after = rows[len(rows)-1].Key
	}
}

// ResetStuck returns checking rows to the queue. With a hash only that row is
// considered and claim age is ignored.
func (s *ReconcileServiceImpl) ResetStuck(ctx context.Context, req primary.ResetRequest) (*primary.ResetReport, error) {
	report := &primary.ResetReport{Live: req.Live}
	now := s.now()
	olderThan := req.OlderThan
	if olderThan <= 0 {
		olderThan = s.settings.StuckAfter
	}

	var candidates []*secondary.EnrichmentStateRecord
	if req.Hash != "" {
		state, err := s.stateRepo.GetByHash(ctx, req.Hash)
		if err != nil && !errors.Is(err, secondary.ErrNotFound) {
			return nil, fmt.Errorf("failed to get enrichment state: %w", err)
		}
		guard := enrichment.CanReset(resetContext(req.Hash, state, olderThan, now, true))
		if !guard.Allowed {
			return nil, guard.Error()
		}
		candidates = append(candidates, state)
	} else {
		cutoff := now.Add(-olderThan)
		after := ""
		for {
			states, err := s.stateRepo.List(ctx, secondary.EnrichmentStateFilters{
				Status:        enrichment.StatusChecking,
				CheckedBefore: &cutoff,
				AfterHash:     after,
				Limit:         s.settings.PageSize,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to list checking states: %w", err)
			}
			for _, st := range states {
				if enrichment.CanReset(resetContext(st.AddressHash, st, olderThan, now, false)).Allowed {
					candidates = append(candidates, st)
				}
			}
			if len(states) < s.settings.PageSize {
				break
			}
			after = states[len(states)-1].AddressHash
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].AddressHash < candidates[j].AddressHash })
	for _, st := range candidates {
		report.Candidates = append(report.Candidates, toState(st))
		if !req.Live {
			continue
		}
		err := s.stateRepo.Reset(ctx, st.AddressHash)
		if errors.Is(err, secondary.ErrInvalidTransition) {
			// The worker finished it meanwhile.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to reset %s: %w", st.AddressHash, err)
		}
		report.Reset++
	}

	metrics.ReconcileChanges.WithLabelValues("reset_stuck", metrics.Mode(req.Live)).Add(float64(len(report.Candidates)))
	logging.Info().Bool("live", req.Live).Int("candidates", len(report.Candidates)).Int("reset", report.Reset).Msg("stuck reset finished")
	return report, nil
}

func resetContext(hash string, st *secondary.EnrichmentStateRecord, olderThan time.Duration, now time.Time, ignoreAge bool) enrichment.ResetContext {
	ctx := enrichment.ResetContext{
		StateContext: enrichment.StateContext{AddressHash: hash},
		OlderThan:    olderThan,
		Now:          now,
		IgnoreAge:    ignoreAge,
	}
	if st != nil {
		ctx.Exists = true
		ctx.Status = st.Status
		ctx.Locked = st.Locked
		ctx.CheckedAt = st.CheckedAt
	}
	return ctx
}
