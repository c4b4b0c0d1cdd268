package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/propenrich/internal/ports/secondary"
)

const ownerColumns = `address_hash, owner_name, owner_email, owner_phone, mailing_address,
	source, listing_source, raw_response, created_at, updated_at`

// OwnerRepository implements secondary.OwnerRepository using SQLite.
type OwnerRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOwnerRepository creates a new OwnerRepository.
func NewOwnerRepository(db *sql.DB) *OwnerRepository {
	return &OwnerRepository{db: db, now: time.Now}
}

// Get retrieves an owner record by address hash.
func (r *OwnerRepository) Get(ctx context.Context, hash string) (*secondary.OwnerRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ownerColumns+` FROM property_owners WHERE address_hash = ?`, hash)

	record, err := scanOwner(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("owner %s: %w", hash, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Save inserts or replaces the record keyed by address hash.
func (r *OwnerRepository) Save(ctx context.Context, record *secondary.OwnerRecord) error {
	now := formatTime(r.now())

	var raw any
	if len(record.RawResponse) > 0 {
		raw = string(record.RawResponse)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO property_owners
			(address_hash, owner_name, owner_email, owner_phone, mailing_address, source, listing_source, raw_response, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address_hash) DO UPDATE SET
			owner_name = excluded.owner_name,
			owner_email = excluded.owner_email,
			owner_phone = excluded.owner_phone,
			mailing_address = excluded.mailing_address,
			source = excluded.source,
			listing_source = COALESCE(excluded.listing_source, property_owners.listing_source),
			raw_response = COALESCE(excluded.raw_response, property_owners.raw_response),
			updated_at = excluded.updated_at`,
		record.AddressHash,
		nullString(record.OwnerName),
		nullString(record.OwnerEmail),
		nullString(record.OwnerPhone),
		nullString(record.MailingAddress),
		record.Source,
		nullString(record.ListingSource),
		raw,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save owner: %w", err)
	}
	return nil
}

// List retrieves a page of owner records ordered by address hash.
func (r *OwnerRepository) List(ctx context.Context, afterHash string, limit int) ([]*secondary.OwnerRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ownerColumns+` FROM property_owners WHERE address_hash > ? ORDER BY address_hash LIMIT ?`,
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
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM property_owners`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}

func scanOwner(s rowScanner) (*secondary.OwnerRecord, error) {
	var record secondary.OwnerRecord
	var name, email, phone, mailing, listingSource, raw sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&record.AddressHash,
		&name,
		&email,
		&phone,
		&mailing,
		&record.Source,
		&listingSource,
		&raw,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.OwnerName = name.String
	record.OwnerEmail = email.String
	record.OwnerPhone = phone.String
	record.MailingAddress = mailing.String
	record.ListingSource = listingSource.String
	if raw.Valid {
		record.RawResponse = []byte(raw.String)
	}
	record.CreatedAt = parseTime(createdAt)
	record.UpdatedAt = parseTime(updatedAt)

	return &record, nil
}

// Ensure OwnerRepository implements the interface
var _ secondary.OwnerRepository = (*OwnerRepository)(nil)
