package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/propenrich/internal/address"
	"github.com/example/propenrich/internal/core/enrichment"
	coreowner "github.com/example/propenrich/internal/core/owner"
	"github.com/example/propenrich/internal/ports/secondary"
)

// Ensure mocks implement the interfaces
var (
	_ secondary.EnrichmentStateRepository = (*mockStateRepository)(nil)
	_ secondary.OwnerRepository           = (*mockOwnerRepository)(nil)
	_ secondary.ListingRepository         = (*mockListingRepository)(nil)
	_ secondary.OwnerLookup               = (*mockLookup)(nil)
)

// mockStateRepository implements secondary.EnrichmentStateRepository in memory,
// applying the same conditional transitions as the SQL adapters.
type mockStateRepository struct {
	mu       sync.Mutex
	states   map[string]*secondary.EnrichmentStateRecord
	countErr error
	claimErr error
	markErr  error
}

func newMockStateRepository() *mockStateRepository {
	return &mockStateRepository{states: make(map[string]*secondary.EnrichmentStateRecord)}
}

func (m *mockStateRepository) put(rec *secondary.EnrichmentStateRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.states[rec.AddressHash] = rec
}

func (m *mockStateRepository) get(hash string) *secondary.EnrichmentStateRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[hash]
}

func (m *mockStateRepository) Enqueue(ctx context.Context, hash, normalized, listingSource string) (*secondary.EnrichmentStateRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.states[hash]; ok {
		if rec.ListingSource == "" {
			rec.ListingSource = listingSource
		}
		cp := *rec
		return &cp, false, nil
	}
	rec := &secondary.EnrichmentStateRecord{
		AddressHash:       hash,
		NormalizedAddress: normalized,
		Status:            enrichment.InitialStatus(),
		ListingSource:     listingSource,
		MissingFields:     enrichment.AllMissing(),
		CreatedAt:         time.Now(),
	}
	m.states[hash] = rec
	cp := *rec
	return &cp, true, nil
}

func (m *mockStateRepository) GetByHash(ctx context.Context, hash string) (*secondary.EnrichmentStateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.states[hash]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, fmt.Errorf("state %s: %w", hash, secondary.ErrNotFound)
}

func (m *mockStateRepository) ClaimBatch(ctx context.Context, n int, now time.Time) ([]*secondary.EnrichmentStateRecord, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*secondary.EnrichmentStateRecord
	for _, rec := range m.states {
		if rec.Status == enrichment.StatusNeverChecked && !rec.Locked {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].AddressHash < pending[j].AddressHash
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > n {
		pending = pending[:n]
	}

	var claimed []*secondary.EnrichmentStateRecord
	for _, rec := range pending {
		m.transition(rec, enrichment.ClaimTransition(now))
		cp := *rec
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (m *mockStateRepository) transition(rec *secondary.EnrichmentStateRecord, tr enrichment.Transition) {
	rec.Status = tr.To
	rec.Locked = tr.Locked
	if tr.CheckedAt != nil {
		t := *tr.CheckedAt
		rec.CheckedAt = &t
	}
}

func (m *mockStateRepository) apply(hash string, tr enrichment.Transition, update func(*secondary.EnrichmentStateRecord)) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.states[hash]
	if !ok {
		return fmt.Errorf("state %s: %w", hash, secondary.ErrNotFound)
	}
	allowed := false
	for _, from := range tr.From {
		if rec.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s is %s", secondary.ErrInvalidTransition, hash, rec.Status)
	}
	m.transition(rec, tr)
	if update != nil {
		update(rec)
	}
	return nil
}

func (m *mockStateRepository) MarkEnriched(ctx context.Context, hash, sourceUsed, requestID string, missing enrichment.MissingFields) error {
	return m.apply(hash, enrichment.EnrichedTransition(), func(rec *secondary.EnrichmentStateRecord) {
		rec.SourceUsed = sourceUsed
		rec.ExternalRequestID = requestID
		rec.MissingFields = missing
		rec.FailureReason = ""
	})
}

func (m *mockStateRepository) MarkFailed(ctx context.Context, hash, reason, sourceUsed string) error {
	return m.apply(hash, enrichment.FailedTransition(), func(rec *secondary.EnrichmentStateRecord) {
		rec.SourceUsed = sourceUsed
		rec.FailureReason = reason
	})
}

func (m *mockStateRepository) MarkResolved(ctx context.Context, hash, sourceUsed string, missing enrichment.MissingFields, checkedAt time.Time) error {
	return m.apply(hash, enrichment.ResolvedTransition(checkedAt), func(rec *secondary.EnrichmentStateRecord) {
		rec.SourceUsed = sourceUsed
		rec.MissingFields = missing
	})
}

func (m *mockStateRepository) Reset(ctx context.Context, hash string) error {
	return m.apply(hash, enrichment.ResetTransition(), nil)
}

func (m *mockStateRepository) ForceEnriched(ctx context.Context, record *secondary.EnrichmentStateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.states[record.AddressHash]
	if !ok {
		cp := *record
		cp.CreatedAt = time.Now()
		rec = &cp
		m.states[record.AddressHash] = rec
	}
	rec.Status = enrichment.StatusEnriched
	rec.Locked = true
	rec.SourceUsed = record.SourceUsed
	rec.MissingFields = record.MissingFields
	rec.FailureReason = ""
	if rec.ListingSource == "" {
		rec.ListingSource = record.ListingSource
	}
	if rec.CheckedAt == nil && record.CheckedAt != nil {
		t := *record.CheckedAt
		rec.CheckedAt = &t
	}
	return nil
}

func (m *mockStateRepository) CountExternalCallsSince(ctx context.Context, since time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rec := range m.states {
		if rec.SourceUsed == string(coreowner.SourceExternalAPI) && rec.CheckedAt != nil && !rec.CheckedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockStateRepository) CountByStatus(ctx context.Context) (map[enrichment.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[enrichment.Status]int)
	for _, rec := range m.states {
		counts[rec.Status]++
	}
	return counts, nil
}

func (m *mockStateRepository) sorted() []*secondary.EnrichmentStateRecord {
	var all []*secondary.EnrichmentStateRecord
	for _, rec := range m.states {
		cp := *rec
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].AddressHash < all[j].AddressHash })
	return all
}

func (m *mockStateRepository) List(ctx context.Context, filters secondary.EnrichmentStateFilters) ([]*secondary.EnrichmentStateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.EnrichmentStateRecord
	for _, rec := range m.sorted() {
		if filters.AfterHash != "" && rec.AddressHash <= filters.AfterHash {
			continue
		}
		if filters.Status != "" && rec.Status != filters.Status {
			continue
		}
		if filters.CheckedBefore != nil && (rec.CheckedAt == nil || !rec.CheckedAt.Before(*filters.CheckedBefore)) {
			continue
		}
		result = append(result, rec)
		if filters.Limit > 0 && len(result) == filters.Limit {
			break
		}
	}
	return result, nil
}

func (m *mockStateRepository) SearchByAddress(ctx context.Context, fragment string, limit int) ([]*secondary.EnrichmentStateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.EnrichmentStateRecord
	for _, rec := range m.sorted() {
		if strings.Contains(strings.ToUpper(rec.NormalizedAddress), strings.ToUpper(fragment)) {
			result = append(result, rec)
		}
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *mockStateRepository) DeleteByHashes(ctx context.Context, hashes []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, h := range hashes {
		if _, ok := m.states[h]; ok {
			delete(m.states, h)
			deleted++
		}
	}
	return deleted, nil
}

// mockOwnerRepository implements secondary.OwnerRepository in memory.
type mockOwnerRepository struct {
	mu     sync.Mutex
	owners map[string]*secondary.OwnerRecord
	saves  int
}

func newMockOwnerRepository() *mockOwnerRepository {
	return &mockOwnerRepository{owners: make(map[string]*secondary.OwnerRecord)}
}

func (m *mockOwnerRepository) Get(ctx context.Context, hash string) (*secondary.OwnerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.owners[hash]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, fmt.Errorf("owner %s: %w", hash, secondary.ErrNotFound)
}

func (m *mockOwnerRepository) Save(ctx context.Context, record *secondary.OwnerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.owners[record.AddressHash] = &cp
	m.saves++
	return nil
}

func (m *mockOwnerRepository) List(ctx context.Context, afterHash string, limit int) ([]*secondary.OwnerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hashes []string
	for h := range m.owners {
		if h > afterHash {
			hashes = append(hashes, h)
		}
	}
	sort.Strings(hashes)
	var result []*secondary.OwnerRecord
	for _, h := range hashes {
		cp := *m.owners[h]
		result = append(result, &cp)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *mockOwnerRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.owners), nil
}

// mockListingRepository implements secondary.ListingRepository over in-memory
// tables keyed by table name. Keys are int64 ids.
type mockListingRepository struct {
	mu      sync.Mutex
	tables  map[string][]*secondary.ListingRow
	scanErr map[string]error
}

func newMockListingRepository() *mockListingRepository {
	return &mockListingRepository{
		tables:  make(map[string][]*secondary.ListingRow),
		scanErr: make(map[string]error),
	}
}

// add appends a listing and returns its key.
func (m *mockListingRepository) add(table, addr, hash string, owner map[string]any) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := int64(len(m.tables[table]) + 1)
	m.tables[table] = append(m.tables[table], &secondary.ListingRow{
		Key:         key,
		ID:          fmt.Sprint(key),
		Address:     addr,
		AddressHash: hash,
		Owner:       owner,
	})
	return key
}

func (m *mockListingRepository) row(table string, key int64) *secondary.ListingRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.tables[table] {
		if r.Key.(int64) == key {
			return r
		}
	}
	return nil
}

func (m *mockListingRepository) ScanPage(ctx context.Context, table secondary.ListingTable, after any, limit int) ([]*secondary.ListingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.scanErr[table.Name]; err != nil {
		return nil, err
	}
	var result []*secondary.ListingRow
	for _, r := range m.tables[table.Name] {
		if after != nil && r.Key.(int64) <= after.(int64) {
			continue
		}
		cp := *r
		result = append(result, &cp)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *mockListingRepository) FindByHash(ctx context.Context, table secondary.ListingTable, hash string, limit int) ([]*secondary.ListingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.ListingRow
	for _, r := range m.tables[table.Name] {
		if r.AddressHash == hash {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockListingRepository) SearchByAddress(ctx context.Context, table secondary.ListingTable, fragment string, limit int) ([]*secondary.ListingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.ListingRow
	for _, r := range m.tables[table.Name] {
		if strings.Contains(strings.ToUpper(r.Address), strings.ToUpper(fragment)) {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockListingRepository) SetHash(ctx context.Context, table secondary.ListingTable, key any, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.tables[table.Name] {
		if r.Key == key {
			r.AddressHash = hash
			return nil
		}
	}
	return secondary.ErrNotFound
}

func (m *mockListingRepository) Count(ctx context.Context, table secondary.ListingTable) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.scanErr[table.Name]; err != nil {
		return 0, err
	}
	return len(m.tables[table.Name]), nil
}

func (m *mockListingRepository) Exists(ctx context.Context, table secondary.ListingTable) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[table.Name]
	return ok, nil
}

// mockLookup implements secondary.OwnerLookup with canned answers keyed by street.
type mockLookup struct {
	mu        sync.Mutex
	responses map[string]*secondary.LookupResponse
	errs      map[string]error
	calls     []secondary.LookupRequest
}

func newMockLookup() *mockLookup {
	return &mockLookup{
		responses: make(map[string]*secondary.LookupResponse),
		errs:      make(map[string]error),
	}
}

func (m *mockLookup) Lookup(ctx context.Context, req secondary.LookupRequest) (*secondary.LookupResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if err, ok := m.errs[req.Street]; ok {
		return nil, err
	}
	if resp, ok := m.responses[req.Street]; ok {
		return resp, nil
	}
	return &secondary.LookupResponse{RequestID: "req-empty"}, nil
}

func (m *mockLookup) Name() string { return "mock" }

func (m *mockLookup) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mustKey normalizes and hashes a test address.
func mustKey(raw string) (string, string) {
	normalized, hash, err := address.Key(raw)
	if err != nil {
		panic(err)
	}
	return normalized, hash
}

var errBoom = errors.New("boom")
