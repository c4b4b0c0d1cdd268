package db

// SchemaSQL is the complete schema for a fresh local SQLite store.
// This schema reflects the current state after all migrations.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the SQLite schema. All tests use it
// via GetSchemaSQL(). If repository code references a column that doesn't
// exist here, tests fail immediately with "no such column".
//
// The listing tables mirror the columns the scrapers write in production.
// Only address_hash is ever written by this system.
const SchemaSQL = `
-- Enrichment queue and state machine (one row per address hash)
CREATE TABLE IF NOT EXISTS property_owner_enrichment_state (
	address_hash TEXT PRIMARY KEY,
	normalized_address TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('never_checked', 'checking', 'enriched', 'no_owner_data', 'failed')) DEFAULT 'never_checked',
	locked INTEGER NOT NULL DEFAULT 0,
	listing_source TEXT,
	checked_at TEXT,
	source_used TEXT,
	failure_reason TEXT,
	external_request_id TEXT,
	missing_fields TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_state_status ON property_owner_enrichment_state(status, locked);
CREATE INDEX IF NOT EXISTS idx_enrichment_state_usage ON property_owner_enrichment_state(source_used, checked_at);

-- Canonical owner cache
CREATE TABLE IF NOT EXISTS property_owners (
	address_hash TEXT PRIMARY KEY,
	owner_name TEXT,
	owner_email TEXT,
	owner_phone TEXT,
	mailing_address TEXT,
	source TEXT NOT NULL CHECK(source IN ('scraped', 'external_api')),
	listing_source TEXT,
	raw_response TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

-- Listing tables (owned by the scrapers)
CREATE TABLE IF NOT EXISTS listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT,
	address_hash TEXT,
	owner_name TEXT,
	owner_emails TEXT,
	owner_phones TEXT
);

CREATE TABLE IF NOT EXISTS zillow_fsbo_listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT,
	address_hash TEXT,
	phone_number TEXT
);

CREATE TABLE IF NOT EXISTS zillow_frbo_listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT,
	address_hash TEXT,
	name TEXT,
	phone_number TEXT
);

CREATE TABLE IF NOT EXISTS trulia_listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT,
	address_hash TEXT,
	owner_name TEXT,
	phones TEXT,
	emails TEXT
);

CREATE TABLE IF NOT EXISTS redfin_listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT,
	address_hash TEXT,
	owner_name TEXT,
	emails TEXT,
	phones TEXT
);

CREATE TABLE IF NOT EXISTS hotpads_listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT,
	address_hash TEXT,
	contact_name TEXT,
	email TEXT,
	phone_number TEXT
);

CREATE TABLE IF NOT EXISTS apartments_frbo_chicago (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	full_address TEXT,
	address_hash TEXT,
	owner_name TEXT,
	owner_email TEXT,
	phone_numbers TEXT
);

CREATE INDEX IF NOT EXISTS idx_listings_hash ON listings(address_hash);
CREATE INDEX IF NOT EXISTS idx_zillow_fsbo_hash ON zillow_fsbo_listings(address_hash);
CREATE INDEX IF NOT EXISTS idx_zillow_frbo_hash ON zillow_frbo_listings(address_hash);
CREATE INDEX IF NOT EXISTS idx_trulia_hash ON trulia_listings(address_hash);
CREATE INDEX IF NOT EXISTS idx_redfin_hash ON redfin_listings(address_hash);
CREATE INDEX IF NOT EXISTS idx_hotpads_hash ON hotpads_listings(address_hash);
CREATE INDEX IF NOT EXISTS idx_apartments_hash ON apartments_frbo_chicago(address_hash);
`

// PostgresSchemaSQL creates the two tables this system owns in a Postgres
// store. Listing tables already exist there and are left alone.
const PostgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS property_owner_enrichment_state (
	address_hash TEXT PRIMARY KEY,
	normalized_address TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'never_checked'
		CHECK (status IN ('never_checked', 'checking', 'enriched', 'no_owner_data', 'failed')),
	locked BOOLEAN NOT NULL DEFAULT FALSE,
	listing_source TEXT,
	checked_at TIMESTAMPTZ,
	source_used TEXT,
	failure_reason TEXT,
	external_request_id TEXT,
	missing_fields JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_enrichment_state_status ON property_owner_enrichment_state(status, locked);
CREATE INDEX IF NOT EXISTS idx_enrichment_state_usage ON property_owner_enrichment_state(source_used, checked_at);

CREATE TABLE IF NOT EXISTS property_owners (
	address_hash TEXT PRIMARY KEY,
	owner_name TEXT,
	owner_email TEXT,
	owner_phone TEXT,
	mailing_address TEXT,
	source TEXT NOT NULL CHECK (source IN ('scraped', 'external_api')),
	listing_source TEXT,
	raw_response JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
