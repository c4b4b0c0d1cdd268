package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/example/propenrich/internal/listings"
	"github.com/example/propenrich/internal/ports/secondary"
)

// ListingRepository implements secondary.ListingRepository using Postgres.
type ListingRepository struct {
	store *Store
}

// NewListingRepository creates a new ListingRepository.
func NewListingRepository(store *Store) *ListingRepository {
	return &ListingRepository{store: store}
}

// ScanPage returns rows ordered by id, after the given key.
func (r *ListingRepository) ScanPage(ctx context.Context, table secondary.ListingTable, after any, limit int) ([]*secondary.ListingRow, error) {
	q, err := listings.Quote(table)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if after == nil {
		rows, err = r.store.pool.Query(ctx,
			fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s LIMIT $1`, q.SelectList(), q.Table, q.ID),
			limit)
	} else {
		rows, err = r.store.pool.Query(ctx,
			fmt.Sprintf(`SELECT %s FROM %s WHERE %s > $1 ORDER BY %s LIMIT $2`, q.SelectList(), q.Table, q.ID, q.ID),
			after, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table.Name, err)
	}
	return collectListings(rows, table)
}

// FindByHash returns rows carrying the given address hash.
func (r *ListingRepository) FindByHash(ctx context.Context, table secondary.ListingTable, hash string, limit int) ([]*secondary.ListingRow, error) {
	q, err := listings.Quote(table)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE address_hash = $1 ORDER BY %s LIMIT $2`, q.SelectList(), q.Table, q.ID),
		hash, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table.Name, err)
	}
	return collectListings(rows, table)
}

// SearchByAddress returns rows whose address contains fragment.
func (r *ListingRepository) SearchByAddress(ctx context.Context, table secondary.ListingTable, fragment string, limit int) ([]*secondary.ListingRow, error) {
	q, err := listings.Quote(table)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s ILIKE $1 ESCAPE '\' ORDER BY %s LIMIT $2`, q.SelectList(), q.Table, q.Address, q.ID),
		escapeLike(fragment), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", table.Name, err)
	}
	return collectListings(rows, table)
}

// SetHash overwrites address_hash for one row.
func (r *ListingRepository) SetHash(ctx context.Context, table secondary.ListingTable, key any, hash string) error {
	q, err := listings.Quote(table)
	if err != nil {
		return err
	}
	tag, err := r.store.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET address_hash = $1 WHERE %s = $2`, q.Table, q.ID),
		nullString(hash), key)
	if err != nil {
		return fmt.Errorf("failed to set hash in %s: %w", table.Name, err)
	}
	if tag.RowsAffected() == 0 {
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
	if err := r.store.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+name).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table.Name, err)
	}
	return count, nil
}

// Exists reports whether the table is present in the search path.
func (r *ListingRepository) Exists(ctx context.Context, table secondary.ListingTable) (bool, error) {
	var ok bool
	err := r.store.pool.QueryRow(ctx, `SELECT to_regclass($1::text) IS NOT NULL`, table.Name).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func collectListings(rows pgx.Rows, table secondary.ListingTable) ([]*secondary.ListingRow, error) {
	defer rows.Close()

	var result []*secondary.ListingRow
	for rows.Next() {
		var key any
		var addr, hash *string
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
			ID:          formatKey(key),
			Address:     deref(addr),
			AddressHash: deref(hash),
			Owner:       make(map[string]any, len(owners)),
		}
		for i, col := range table.OwnerColumns {
			row.Owner[col] = owners[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// formatKey prints uuid keys in their canonical form.
func formatKey(key any) string {
	if u, ok := key.([16]byte); ok {
		return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
	}
	return fmt.Sprint(key)
}

// Ensure ListingRepository implements the interface
var _ secondary.ListingRepository = (*ListingRepository)(nil)
