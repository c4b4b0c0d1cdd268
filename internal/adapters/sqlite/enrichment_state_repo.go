package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/example/propenrich/internal/core/enrichment"
	"github.com/example/propenrich/internal/core/owner"
	"github.com/example/propenrich/internal/ports/secondary"
)

const stateColumns = `address_hash, normalized_address, status, locked, listing_source, checked_at,
	source_used, failure_reason, external_request_id, missing_fields, created_at, updated_at`

// EnrichmentStateRepository implements secondary.EnrichmentStateRepository using SQLite.
type EnrichmentStateRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewEnrichmentStateRepository creates a new EnrichmentStateRepository.
func NewEnrichmentStateRepository(db *sql.DB) *EnrichmentStateRepository {
	return &EnrichmentStateRepository{db: db, now: time.Now}
}

// Enqueue inserts a never_checked row if absent and fills a missing listing source.
func (r *EnrichmentStateRepository) Enqueue(ctx context.Context, hash, normalized, listingSource string) (*secondary.EnrichmentStateRecord, bool, error) {
	now := formatTime(r.now())
	missing, err := json.Marshal(enrichment.AllMissing())
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode missing fields: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO property_owner_enrichment_state
			(address_hash, normalized_address, status, locked, listing_source, missing_fields, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT(address_hash) DO NOTHING`,
		hash, normalized, enrichment.InitialStatus(), nullString(listingSource), string(missing), now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert enrichment state: %w", err)
	}
	n, _ := res.RowsAffected()
	inserted := n == 1

	if !inserted && listingSource != "" {
		_, err := r.db.ExecContext(ctx,
			`UPDATE property_owner_enrichment_state SET listing_source = ?, updated_at = ?
			WHERE address_hash = ? AND (listing_source IS NULL OR listing_source = '')`,
			listingSource, now, hash,
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
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM property_owner_enrichment_state WHERE address_hash = ?`, hash)

	record, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("enrichment state %s: %w", hash, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ClaimBatch flips up to n pending rows to checking in one statement.
// SQLite serializes writers, so the subselect and the update see the same rows.
func (r *EnrichmentStateRepository) ClaimBatch(ctx context.Context, n int, now time.Time) ([]*secondary.EnrichmentStateRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	tr := enrichment.ClaimTransition(now)
	from := tr.From[0]
	stamp := formatTime(now)

	rows, err := r.db.QueryContext(ctx,
		`UPDATE property_owner_enrichment_state
		SET status = ?, locked = ?, checked_at = ?, updated_at = ?
		WHERE address_hash IN (
			SELECT address_hash FROM property_owner_enrichment_state
			WHERE status = ? AND locked = 0
			ORDER BY created_at, address_hash
			LIMIT ?
		) AND status = ? AND locked = 0
		RETURNING `+stateColumns,
		tr.To, boolToInt(tr.Locked), formatTime(*tr.CheckedAt), stamp,
		from, n, from,
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
	return r.apply(ctx, hash, enrichment.EnrichedTransition(),
		"source_used = ?, external_request_id = ?, missing_fields = ?, failure_reason = NULL",
		nullString(sourceUsed), nullString(requestID), string(encoded))
}

// MarkFailed moves a checking row to no_owner_data.
func (r *EnrichmentStateRepository) MarkFailed(ctx context.Context, hash, reason, sourceUsed string) error {
	return r.apply(ctx, hash, enrichment.FailedTransition(),
		"failure_reason = ?, source_used = ?",
		reason, nullString(sourceUsed))
}

// MarkResolved moves a never_checked row to enriched from already known owner data.
func (r *EnrichmentStateRepository) MarkResolved(ctx context.Context, hash, sourceUsed string, missing enrichment.MissingFields, checkedAt time.Time) error {
	encoded, err := json.Marshal(missing)
	if err != nil {
		return fmt.Errorf("failed to encode missing fields: %w", err)
	}
	return r.apply(ctx, hash, enrichment.ResolvedTransition(checkedAt),
		"source_used = ?, missing_fields = ?",
		nullString(sourceUsed), string(encoded))
}

// Reset moves a checking row back to never_checked.
func (r *EnrichmentStateRepository) Reset(ctx context.Context, hash string) error {
	return r.apply(ctx, hash, enrichment.ResetTransition(), "")
}

// apply performs a conditional status update. A row outside tr.From is left
// alone and reported as ErrInvalidTransition.
func (r *EnrichmentStateRepository) apply(ctx context.Context, hash string, tr enrichment.Transition, extraSets string, extraArgs ...any) error {
	sets := []string{"status = ?", "locked = ?", "updated_at = ?"}
	args := []any{tr.To, boolToInt(tr.Locked), formatTime(r.now())}
	if tr.CheckedAt != nil {
		sets = append(sets, "checked_at = ?")
		args = append(args, formatTime(*tr.CheckedAt))
	}
	if extraSets != "" {
		sets = append(sets, extraSets)
		args = append(args, extraArgs...)
	}

	args = append(args, hash)
	for _, s := range tr.From {
		args = append(args, s)
	}

	query := fmt.Sprintf(`UPDATE property_owner_enrichment_state SET %s WHERE address_hash = ? AND status IN (%s)`,
		strings.Join(sets, ", "), placeholders(len(tr.From)))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update enrichment state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
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
	now := formatTime(r.now())
	var checkedAt any
	if record.CheckedAt != nil {
		checkedAt = formatTime(*record.CheckedAt)
	}
	missing, err := json.Marshal(record.MissingFields)
	if err != nil {
		return fmt.Errorf("failed to encode missing fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO property_owner_enrichment_state
			(address_hash, normalized_address, status, locked, listing_source, checked_at, source_used, missing_fields, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address_hash) DO UPDATE SET
			status = excluded.status,
			locked = 1,
			checked_at = COALESCE(property_owner_enrichment_state.checked_at, excluded.checked_at),
			source_used = excluded.source_used,
			missing_fields = excluded.missing_fields,
			failure_reason = NULL,
			listing_source = COALESCE(NULLIF(property_owner_enrichment_state.listing_source, ''), excluded.listing_source),
			updated_at = excluded.updated_at`,
		record.AddressHash, record.NormalizedAddress, enrichment.StatusEnriched,
		nullString(record.ListingSource), checkedAt, nullString(record.SourceUsed), string(missing), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to force enriched state: %w", err)
	}
	return nil
}

// CountExternalCallsSince counts rows the external API checked at or after since.
func (r *EnrichmentStateRepository) CountExternalCallsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM property_owner_enrichment_state WHERE source_used = ? AND checked_at >= ?`,
		string(owner.SourceExternalAPI), formatTime(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count external calls: %w", err)
	}
	return count, nil
}

// CountByStatus returns row counts keyed by status.
func (r *EnrichmentStateRepository) CountByStatus(ctx context.Context) (map[enrichment.Status]int, error) {
	rows, err := r.db.QueryContext(ctx,
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
	query := `SELECT ` + stateColumns + ` FROM property_owner_enrichment_state WHERE 1=1`
	args := []any{}

	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}
	if filters.CheckedBefore != nil {
		query += " AND (checked_at IS NULL OR checked_at < ?)"
		args = append(args, formatTime(*filters.CheckedBefore))
	}
	if filters.AfterHash != "" {
		query += " AND address_hash > ?"
		args = append(args, filters.AfterHash)
	}

	query += " ORDER BY address_hash"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrichment states: %w", err)
	}
	defer rows.Close()

	return scanStates(rows)
}

// SearchByAddress finds rows whose normalized address contains fragment.
// SQLite LIKE is case-insensitive for ASCII.
func (r *EnrichmentStateRepository) SearchByAddress(ctx context.Context, fragment string, limit int) ([]*secondary.EnrichmentStateRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+stateColumns+` FROM property_owner_enrichment_state
		WHERE normalized_address LIKE ? ESCAPE '\'
		ORDER BY normalized_address LIMIT ?`,
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

	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM property_owner_enrichment_state WHERE address_hash IN (%s)`, placeholders(len(hashes))),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete enrichment states: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(s rowScanner) (*secondary.EnrichmentStateRecord, error) {
	var record secondary.EnrichmentStateRecord
	var status string
	var locked int
	var listingSource, checkedAt, sourceUsed, failureReason, requestID, missing sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&record.AddressHash,
		&record.NormalizedAddress,
		&status,
		&locked,
		&listingSource,
		&checkedAt,
		&sourceUsed,
		&failureReason,
		&requestID,
		&missing,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = enrichment.Status(status)
	record.Locked = locked != 0
	record.ListingSource = listingSource.String
	record.CheckedAt = nullTime(checkedAt)
	record.SourceUsed = sourceUsed.String
	record.FailureReason = failureReason.String
	record.ExternalRequestID = requestID.String
	record.CreatedAt = parseTime(createdAt)
	record.UpdatedAt = parseTime(updatedAt)

	if missing.Valid && missing.String != "" {
		if err := json.Unmarshal([]byte(missing.String), &record.MissingFields); err != nil {
			return nil, fmt.Errorf("failed to decode missing fields for %s: %w", record.AddressHash, err)
		}
	}

	return &record, nil
}

func scanStates(rows *sql.Rows) ([]*secondary.EnrichmentStateRecord, error) {
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
