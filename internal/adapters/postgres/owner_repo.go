package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/example/propenrich/internal/ports/secondary"
)

const ownerColumns = `address_hash, owner_name, owner_email, owner_phone, mailing_address,
	source, listing_source, raw_response, created_at, updated_at`

// OwnerRepository implements secondary.OwnerRepository using Postgres.
type OwnerRepository struct {
	store *Store
}

// NewOwnerRepository creates a new OwnerRepository.
func NewOwnerRepository(store *Store) *OwnerRepository {
	return &OwnerRepository{store: store}
}

// Get retrieves an owner record by address hash.
func (r *OwnerRepository) Get(ctx context.Context, hash string) (*secondary.OwnerRecord, error) {
	row := r.store.pool.QueryRow(ctx,
		`SELECT `+ownerColumns+` FROM property_owners WHERE address_hash = $1`, hash)

	record, err := scanOwner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("owner %s: %w", hash, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Save inserts or replaces the record keyed by address hash.
func (r *OwnerRepository) Save(ctx context.Context, record *secondary.OwnerRecord) error {
	var raw any
	if len(record.RawResponse) > 0 {
		raw = string(record.RawResponse)
	}

	_, err := r.store.pool.Exec(ctx,
		`INSERT INTO property_owners
			(address_hash, owner_name, owner_email, owner_phone, mailing_address, source, listing_source, raw_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		ON CONFLICT (address_hash) DO UPDATE SET
			owner_name = EXCLUDED.owner_name,
			owner_email = EXCLUDED.owner_email,
			owner_phone = EXCLUDED.owner_phone,
			mailing_address = EXCLUDED.mailing_address,
			source = EXCLUDED.source,
			listing_source = COALESCE(EXCLUDED.listing_source, property_owners.listing_source),
			raw_response = COALESCE(EXCLUDED.raw_response, property_owners.raw_response),
			updated_at = NOW()`,
		record.AddressHash,
		nullString(record.OwnerName),
		nullString(record.OwnerEmail),
		nullString(record.OwnerPhone),
		nullString(record.MailingAddress),
		record.Source,
		nullString(record.ListingSource),
		raw,
	)
	if err != nil {
		return fmt.Errorf("failed to save owner: %w", err)
	}
	return nil
}

// List retrieves a page of owner records ordered by address hash.
func (r *OwnerRepository) List(ctx context.Context, afterHash string, limit int) ([]*secondary.OwnerRecord, error) {
	rows, err := r.store.pool.Query(ctx,
		`SELECT `+ownerColumns+` FROM property_owners WHERE address_hash > $1 ORDER BY address_hash LIMIT $2`,
		afterHash, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var records []*secondary.OwnerRecord
	for rows.Next() {
		record, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Count returns the number of owner records.
func (r *OwnerRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.store.pool.QueryRow(ctx, `SELECT COUNT(*) FROM property_owners`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}

func scanOwner(row pgx.Row) (*secondary.OwnerRecord, error) {
	var record secondary.OwnerRecord
	var name, email, phone, mailing, listingSource *string

	err := row.Scan(
		&record.AddressHash,
		&name,
		&email,
		&phone,
		&mailing,
		&record.Source,
		&listingSource,
		&record.RawResponse,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.OwnerName = deref(name)
	record.OwnerEmail = deref(email)
	record.OwnerPhone = deref(phone)
	record.MailingAddress = deref(mailing)
	record.ListingSource = deref(listingSource)
	return &record, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func escapeLike(fragment string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(fragment) + "%"
}

// Ensure OwnerRepository implements the interface
var _ secondary.OwnerRepository = (*OwnerRepository)(nil)
