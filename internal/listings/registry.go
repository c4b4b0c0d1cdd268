// Package listings describes the per-source listing tables the scrapers write
// and the rules for reading their owner columns.
package listings

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/example/propenrich/internal/ports/secondary"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Default returns the built-in listing tables.
func Default() []secondary.ListingTable {
	return withDefaults([]secondary.ListingTable{
		{Name: "listings", AddressColumn: "address", Source: "ForSaleByOwner", OwnerColumns: []string{"owner_name", "owner_emails", "owner_phones"}},
		{Name: "zillow_fsbo_listings", AddressColumn: "address", Source: "Zillow FSBO", OwnerColumns: []string{"phone_number"}},
		{Name: "zillow_frbo_listings", AddressColumn: "address", Source: "Zillow FRBO", OwnerColumns: []string{"name", "phone_number"}},
		{Name: "trulia_listings", AddressColumn: "address", Source: "Trulia", OwnerColumns: []string{"owner_name", "phones", "emails"}},
		{Name: "redfin_listings", AddressColumn: "address", Source: "Redfin", OwnerColumns: []string{"owner_name", "emails", "phones"}},
		{Name: "hotpads_listings", AddressColumn: "address", Source: "Hotpads", OwnerColumns: []string{"contact_name", "email", "phone_number"}},
		{Name: "apartments_frbo_chicago", AddressColumn: "full_address", Source: "Apartments", OwnerColumns: []string{"owner_name", "owner_email", "phone_numbers"}},
	})
}

type registryFile struct {
	Tables []secondary.ListingTable `yaml:"tables"`
}

// Load reads a registry file. An empty path returns the built-in tables.
func Load(path string) ([]secondary.ListingTable, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read listing registry: %w", err)
	}

	return Parse(data)
}

// Parse decodes registry YAML and validates it.
func Parse(data []byte) ([]secondary.ListingTable, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse listing registry: %w", err)
	}

	tables := withDefaults(f.Tables)
	if err := Validate(tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// Validate checks every table has safe identifiers and no table is listed twice.
func Validate(tables []secondary.ListingTable) error {
	if len(tables) == 0 {
		return fmt.Errorf("listing registry is empty")
	}

	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		if seen[t.Name] {
			return fmt.Errorf("listing table %q registered twice", t.Name)
		}
		seen[t.Name] = true

		idents := append([]string{t.Name, t.IDColumn, t.AddressColumn}, t.OwnerColumns...)
		for _, ident := range idents {
			if !identPattern.MatchString(ident) {
				return fmt.Errorf("listing table %q: invalid identifier %q", t.Name, ident)
			}
		}
		if t.Source == "" {
			return fmt.Errorf("listing table %q: source is required", t.Name)
		}
	}
	return nil
}

// Find returns the named table.
func Find(tables []secondary.ListingTable, name string) (secondary.ListingTable, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return secondary.ListingTable{}, false
}

// QuoteIdent returns ident double-quoted for use in SQL, or an error when it
// is not a plain identifier.
func QuoteIdent(ident string) (string, error) {
	if !identPattern.MatchString(ident) {
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	return `"` + ident + `"`, nil
}

func withDefaults(tables []secondary.ListingTable) []secondary.ListingTable {
	out := make([]secondary.ListingTable, len(tables))
	for i, t := range tables {
		if t.IDColumn == "" {
			t.IDColumn = "id"
		}
		if t.AddressColumn == "" {
			t.AddressColumn = "address"
		}
		out[i] = t
	}
	return out
}
