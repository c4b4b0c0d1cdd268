package secondary

import "context"

// ListingTable describes one per-source listing table. Listing tables belong
// to the scrapers; this system reads them and writes only address_hash.
type ListingTable struct {
	Name          string   `yaml:"name"`
	IDColumn      string   `yaml:"id_column"`
	AddressColumn string   `yaml:"address_column"`
	Source        string   `yaml:"source"`
	OwnerColumns  []string `yaml:"owner_columns"`
}

// ListingRepository defines the secondary port for reading listing tables.
type ListingRepository interface {
	// ScanPage returns up to limit rows ordered by the table's id column,
	// starting after the row whose Key is after (nil starts at the beginning).
	ScanPage(ctx context.Context, table ListingTable, after any, limit int) ([]*ListingRow, error)

	// FindByHash returns rows carrying the given address hash.
	FindByHash(ctx context.Context, table ListingTable, hash string, limit int) ([]*ListingRow, error)

	// SearchByAddress returns rows whose address contains fragment, case-insensitively.
	SearchByAddress(ctx context.Context, table ListingTable, fragment string, limit int) ([]*ListingRow, error)

	// SetHash overwrites address_hash for the row with the given Key.
	SetHash(ctx context.Context, table ListingTable, key any, hash string) error

	// Count returns the number of rows in the table.
	Count(ctx context.Context, table ListingTable) (int, error)

	// Exists reports whether the table is present in the store.
	Exists(ctx context.Context, table ListingTable) (bool, error)
}

// ListingRow is one listing as read for reconciliation. Key is the native id
// value used for paging and updates; ID is its printable form. Owner holds the
// raw values of the table's owner columns keyed by column name.
type ListingRow struct {
	Key         any
	ID          string
	Address     string
	AddressHash string
	Owner       map[string]any
}
