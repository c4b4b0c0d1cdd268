package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/propenrich/internal/listings"
	"github.com/example/propenrich/internal/ports/secondary"
)

// ListingRepository implements secondary.ListingRepository using SQLite.
// Table and column names come from the listing registry and are quoted.
type ListingRepository struct {
	db *sql.DB
}

// NewListingRepository creates a new ListingRepository.
func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// ScanPage returns rows ordered by id, after the given key.
func (r *ListingRepository) ScanPage(ctx context.Context, table secondary.ListingTable, after any, limit int) ([]*secondary.ListingRow, error) {
	q, err := listings.Quote(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, q.SelectList(), q.Table)
	args := []any{}
	if after != nil {
		query += fmt.Sprintf(` WHERE %s > ?`, q.ID)
		args = append(args, after)
	}
	query += fmt.Sprintf(` ORDER BY %s LIMIT ?`, q.ID)
	args = append(args, limit)

	return r.query(ctx, table, query, args...)
}

// FindByHash returns rows carrying the given address hash.
func (r *ListingRepository) FindByHash(ctx context.Context, table secondary.ListingTable, hash string, limit int) ([]*secondary.ListingRow, error) {
	q, err := listings.Quote(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE address_hash = ? ORDER BY %s LIMIT ?`, q.SelectList(), q.Table, q.ID)
	return r.query(ctx, table, query, hash, limit)
}

// SearchByAddress returns rows whose address contains fragment.
func (r *ListingRepository) SearchByAddress(ctx context.Context, table secondary.ListingTable, fragment string, limit int) ([]*secondary.ListingRow, error) {
	q, err := listings.Quote(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE ? ESCAPE '\' ORDER BY %s LIMIT ?`, q.SelectList(), q.Table, q.Address, q.ID)
	return r.query(ctx, table, query, escapeLike(fragment), limit)
}

// SetHash overwrites address_hash for one row.
func (r *ListingRepository) SetHash(ctx context.Context, table secondary.ListingTable, key any, hash string) error {
	q, err := listings.Quote(table)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET address_hash = ? WHERE %s = ?`, q.Table, q.ID),
		nullString(hash), key,
	)
	if err != nil {
		return fmt.Errorf("failed to set hash in %s: %w", table.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("listing %v in %s: %w", key, table.Name, secondary.ErrNotFound)
	}
	return nil
}

// Count returns the number of rows in the table.
func (r *ListingRepository) Count(ctx context.Context, table secondary.ListingTable) (int, error) {
	name, err := listings.QuoteIdent(table.Name)
	if err != nil {
		return 0, err
	}
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+name).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table.Name, err)
	}
	return count, nil
}

// Exists reports whether the table is present.
func (r *ListingRepository) Exists(ctx context.Context, table secondary.ListingTable) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table.Name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ListingRepository) query(ctx context.Context, table secondary.ListingTable, query string, args ...any) ([]*secondary.ListingRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table.Name, err)
	}
	defer rows.Close()

	var result []*secondary.ListingRow
	for rows.Next() {
		var key any
		var addr, hash sql.NullString
		owners := make([]any, len(table.OwnerColumns))

		dest := []any{&key, &addr, &hash}
		for i := range owners {
			dest = append(dest, &owners[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table.Name, err)
		}

		row := &secondary.ListingRow{
			Key:         key,
			ID:          fmt.Sprint(key),
			Address:     addr.String,
			AddressHash: hash.String,
			Owner:       make(map[string]any, len(owners)),
		}
		for i, col := range table.OwnerColumns {
			row.Owner[col] = owners[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Ensure ListingRepository implements the interface
var _ secondary.ListingRepository = (*ListingRepository)(nil)
