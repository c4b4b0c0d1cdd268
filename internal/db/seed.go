package db

import (
	"database/sql"
	"fmt"
)

// sampleListings are a handful of listings for trying the tools locally. Some
// carry owner data in their own columns and some do not.
var sampleListings = []struct {
	table   string
	columns string
	values  []any
}{
	{"listings", "address, owner_name, owner_emails, owner_phones", []any{"123 Main Street, Chicago, IL 60601", nil, "[]", "[]"}},
	{"listings", "address, owner_name, owner_emails, owner_phones", []any{"77 West Lake Street, Chicago, IL 60601", "Jane Doe", `["jane@example.com"]`, `["312-555-0100"]`}},
	{"zillow_fsbo_listings", "address, phone_number", []any{"1061 W 16th St, Chicago, IL 60608", nil}},
	{"zillow_frbo_listings", "address, name, phone_number", []any{"3550 North Lake Shore Drive Apt 12, Chicago, IL 60657", "null", "N/A"}},
	{"trulia_listings", "address, owner_name, phones, emails", []any{"900 South Clark Street, Chicago, IL 60605", nil, "[]", "[]"}},
	{"redfin_listings", "address, owner_name, emails, phones", []any{"42 Elm Court, Evanston, IL 60201", "John Roe", "[]", "[]"}},
	{"hotpads_listings", "address, contact_name, email, phone_number", []any{"10 Ocean Drive Fl 2, Chicago, IL 60610", "Hotpads Support", "support@hotpads.com", "000-000-0000"}},
	{"apartments_frbo_chicago", "full_address, owner_name, owner_email, phone_numbers", []any{"1 Market Place Suite 200, Chicago, IL 60611", nil, nil, "[]"}},
}

// SeedSampleListings inserts the sample listings. It is not idempotent; run it
// once against an empty store.
func SeedSampleListings(database *sql.DB) (int, error) {
	inserted := 0
	for _, s := range sampleListings {
		placeholders := "?"
		for i := 1; i < len(s.values); i++ {
			placeholders += ", ?"
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table, s.columns, placeholders)
		if _, err := database.Exec(query, s.values...); err != nil {
			return inserted, fmt.Errorf("failed to seed %s: %w", s.table, err)
		}
		inserted++
	}
	return inserted, nil
}
