package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/example/propenrich/internal/core/enrichment"
	"github.com/example/propenrich/internal/core/owner"
	"github.com/example/propenrich/internal/ports/secondary"
)

const stateColumns = `address_hash, normalized_address, status, locked, listing_source, checked_at,
	source_used, failure_reason, external_request_id, missing_fields, created_at, updated_at`

// EnrichmentStateRepository implements secondary.EnrichmentStateRepository using Postgres.
type EnrichmentStateRepository struct {
	store *Store
}

// NewEnrichmentStateRepository creates a new EnrichmentStateRepository.
func NewEnrichmentStateRepository(store *Store) *EnrichmentStateRepository {
	return &EnrichmentStateRepository{store: store}
}

// Enqueue inserts a never_checked row if absent and fills a missing listing source.
func (r *EnrichmentStateRepository) Enqueue(ctx context.Context, hash, normalized, listingSource string) (*secondary.EnrichmentStateRecord, bool, error) {
	missing, err := json.Marshal(enrichment.AllMissing())
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode missing fields: %w", err)
	}

	tag, err := r.store.pool.Exec(ctx,
		`INSERT INTO property_owner_enrichment_state
			(address_hash, normalized_address, status, locked, listing_source, missing_fields)
		VALUES ($1, $2, $3, FALSE, $4, $5::jsonb)
		ON CONFLICT (address_hash) DO NOTHING`,
		hash, normalized, string(enrichment.InitialStatus()), nullString(listingSource), string(missing),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert enrichment state: %w", err)
	}
	inserted := tag.RowsAffected() == 1

	if !inserted && listingSource != "" {
		_, err := r.store.pool.Exec(ctx,
			`UPDATE property_owner_enrichment_state SET listing_source = $1, updated_at = NOW()
			WHERE address_hash = $2 AND (listing_source IS NULL OR listing_source = '')`,
			listingSource, hash,
		)
		if err != nil {
			return nil, false, fmt.Errorf("failed to backfill listing source: %w", err)
		}
	}

	record, err := r.GetByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	return record, inserted, nil
}

// GetByHash retrieves a row by address hash.
func (r *EnrichmentStateRepository) GetByHash(ctx context.Context, hash string) (*secondary.EnrichmentStateRecord, error) {
	row := r.store.pool.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM property_owner_enrichment_state WHERE address_hash = $1`, hash)

	record, err := scanState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("enrichment state %s: %w", hash, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ClaimBatch flips up to n pending rows to checking. SKIP LOCKED keeps
// concurrent workers from claiming the same row.
func (r *EnrichmentStateRepository) ClaimBatch(ctx context.Context, n int, now time.Time) ([]*secondary.EnrichmentStateRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	tr := enrichment.ClaimTransition(now)
	rows, err := r.store.pool.Query(ctx,
		`UPDATE property_owner_enrichment_state
		SET status = $1, locked = $2, checked_at = $3, updated_at = NOW()
		WHERE address_hash IN (
			SELECT address_hash FROM property_owner_enrichment_state
			WHERE status = $4 AND locked = FALSE
			ORDER BY created_at, address_hash
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		) AND status = $4 AND locked = FALSE
		RETURNING `+stateColumns,
		string(tr.To), tr.Locked, *tr.CheckedAt, string(tr.From[0]), n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	defer rows.Close()

	return scanStates(rows)
}

// MarkEnriched moves a checking row to enriched.
func (r *EnrichmentStateRepository) MarkEnriched(ctx context.Context, hash, sourceUsed, requestID string, missing enrichment.MissingFields) error {
	encoded, err := json.Marshal(missing)
	if err != nil {
		return fmt.Errorf("failed to encode missing fields: %w", err)
	}
	return r.apply(ctx, hash, enrichment.EnrichedTransition(), []setClause{
		{"source_used", nullString(sourceUsed)},
		{"external_request_id", nullString(requestID)},
		{"missing_fields", jsonParam(encoded)},
		{"failure_reason", nil},
	})
}

// MarkFailed moves a checking row to no_owner_data.
func (r *EnrichmentStateRepository) MarkFailed(ctx context.Context, hash, reason, sourceUsed string) error {
	return r.apply(ctx, hash, enrichment.FailedTransition(), []setClause{
		{"failure_reason", reason},
		{"source_used", nullString(sourceUsed)},
	})
}

// MarkResolved moves a never_checked row to enriched from already known owner data.
func (r *EnrichmentStateRepository) MarkResolved(ctx context.Context, hash, sourceUsed string, missing enrichment.MissingFields, checkedAt time.Time) error {
	encoded, err := json.Marshal(missing)
	if err != nil {
		return fmt.Errorf("failed to encode missing fields: %w", err)
	}
	return r.apply(ctx, hash, enrichment.ResolvedTransition(checkedAt), []setClause{
		{"source_used", nullString(sourceUsed)},
		{"missing_fields", jsonParam(encoded)},
	})
}

// Reset moves a checking row back to never_checked.
func (r *EnrichmentStateRepository) Reset(ctx context.Context, hash string) error {
	return r.apply(ctx, hash, enrichment.ResetTransition(), nil)
}

type setClause struct {
	column string
	value  any
}

// jsonParam marks a value for a ::jsonb cast.
type jsonParam []byte

func (r *EnrichmentStateRepository) apply(ctx context.Context, hash string, tr enrichment.Transition, extra []setClause) error {
	args := []any{string(tr.To), tr.Locked}
	sets := "status = $1, locked = $2, updated_at = NOW()"
	if tr.CheckedAt != nil {
		args = append(args, *tr.CheckedAt)
		sets += fmt.Sprintf(", checked_at = $%d", len(args))
	}
	for _, c := range extra {
		if j, ok := c.value.(jsonParam); ok {
			args = append(args, string(j))
			sets += fmt.Sprintf(", %s = $%d::jsonb", c.column, len(args))
			continue
		}
		args = append(args, c.value)
		sets += fmt.Sprintf(", %s = $%d", c.column, len(args))
	}

	from := make([]string, len(tr.From))
	for i, s := range tr.From {
		from[i] = string(s)
	}
	args = append(args, hash, from)

	tag, err := r.store.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE property_owner_enrichment_state SET %s WHERE address_hash = $%d AND status = ANY($%d)`,
			sets, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update enrichment state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.GetByHash(ctx, hash)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is %s, cannot move to %s", secondary.ErrInvalidTransition, hash, current.Status, tr.To)
	}
	return nil
}

// ForceEnriched upserts an enriched, locked row.
func (r *EnrichmentStateRepository) ForceEnriched(ctx context.Context, record *secondary.EnrichmentStateRecord) error {
	var checkedAt *time.Time
	if record.CheckedAt != nil {
		t := record.CheckedAt.UTC()
		checkedAt = &t
	}
	missing, err := json.Marshal(record.MissingFields)
	if err != nil {
		return fmt.Errorf("failed to encode missing fields: %w", err)
	}

	_, err = r.store.pool.Exec(ctx,
		`INSERT INTO property_owner_enrichment_state
			(address_hash, normalized_address, status, locked, listing_source, checked_at, source_used, missing_fields)
		VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7::jsonb)
		ON CONFLICT (address_hash) DO UPDATE SET
			status = EXCLUDED.status,
			locked = TRUE,
			checked_at = COALESCE(property_owner_enrichment_state.checked_at, EXCLUDED.checked_at),
			source_used = EXCLUDED.source_used,
			missing_fields = EXCLUDED.missing_fields,
			failure_reason = NULL,
			listing_source = COALESCE(NULLIF(property_owner_enrichment_state.listing_source, ''), EXCLUDED.listing_source),
			updated_at = NOW()`,
		record.AddressHash, record.NormalizedAddress, string(enrichment.StatusEnriched),
		nullString(record.ListingSource), checkedAt, nullString(record.SourceUsed), string(missing),
	)
	if err != nil {
		return fmt.Errorf("failed to force enriched state: %w", err)
	}
	return nil
}

// CountExternalCallsSince counts rows the external API checked at or after since.
func (r *EnrichmentStateRepository) CountExternalCallsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.store.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM property_owner_enrichment_state WHERE source_used = $1 AND checked_at >= $2`,
		string(owner.SourceExternalAPI), since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count external calls: %w", err)
	}
	return count, nil
}

// CountByStatus returns row counts keyed by status.
func (r *EnrichmentStateRepository) CountByStatus(ctx context.Context) (map[enrichment.Status]int, error) {
	rows, err := r.store.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM property_owner_enrichment_state GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[enrichment.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[enrichment.Status(status)] = n
	}
	return counts, rows.Err()
}

// List retrieves rows matching the given filters.
func (r *EnrichmentStateRepository) List(ctx context.Context, filters secondary.EnrichmentStateFilters) ([]*secondary.EnrichmentStateRecord, error) {
	query := `SELECT ` + stateColumns + ` FROM property_owner_enrichment_state WHERE TRUE`
	args := []any{}

	if filters.Status != "" {
		args = append(args, string(filters.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.CheckedBefore != nil {
		args = append(args, *filters.CheckedBefore)
		query += fmt.Sprintf(" AND (checked_at IS NULL OR checked_at < $%d)", len(args))
	}
	if filters.AfterHash != "" {
		args = append(args, filters.AfterHash)
		query += fmt.Sprintf(" AND address_hash > $%d", len(args))
	}

	query += " ORDER BY address_hash"

	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrichment states: %w", err)
	}
	defer rows.Close()

	return scanStates(rows)
}

// SearchByAddress finds rows whose normalized address contains fragment.
func (r *EnrichmentStateRepository) SearchByAddress(ctx context.Context, fragment string, limit int) ([]*secondary.EnrichmentStateRecord, error) {
	rows, err := r.store.pool.Query(ctx,
		`SELECT `+stateColumns+` FROM property_owner_enrichment_state
		WHERE normalized_address ILIKE $1 ESCAPE '\'
		ORDER BY normalized_address LIMIT $2`,
		escapeLike(fragment), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search enrichment states: %w", err)
	}
	defer rows.Close()

	return scanStates(rows)
}

// DeleteByHashes removes rows by address hash.
func (r *EnrichmentStateRepository) DeleteByHashes(ctx context.Context, hashes []string) (int, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	tag, err := r.store.pool.Exec(ctx,
		`DELETE FROM property_owner_enrichment_state WHERE address_hash = ANY($1)`, hashes)
	if err != nil {
		return 0, fmt.Errorf("failed to delete enrichment states: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanState(row pgx.Row) (*secondary.EnrichmentStateRecord, error) {
	var record secondary.EnrichmentStateRecord
	var status string
	var listingSource, sourceUsed, failureReason, requestID *string
	var missing []byte

	err := row.Scan(
		&record.AddressHash,
		&record.NormalizedAddress,
		&status,
		&record.Locked,
		&listingSource,
		&record.CheckedAt,
		&sourceUsed,
		&failureReason,
		&requestID,
		&missing,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = enrichment.Status(status)
	record.ListingSource = deref(listingSource)
	record.SourceUsed = deref(sourceUsed)
	record.FailureReason = deref(failureReason)
	record.ExternalRequestID = deref(requestID)

	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &record.MissingFields); err != nil {
			return nil, fmt.Errorf("failed to decode missing fields for %s: %w", record.AddressHash, err)
		}
	}
	return &record, nil
}

func scanStates(rows pgx.Rows) ([]*secondary.EnrichmentStateRecord, error) {
	var records []*secondary.EnrichmentStateRecord
	for rows.Next() {
		record, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Ensure EnrichmentStateRepository implements the interface
var _ secondary.EnrichmentStateRepository = (*EnrichmentStateRepository)(nil)
