package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.DB) error
}

// migrations lists every schema change in order. Fresh stores get SchemaSQL
// and are stamped at the latest version; older stores replay what they lack.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_enrichment_tables",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_listing_hash_indexes",
		Up:      migrationV2,
	},
}

// LatestVersion returns the highest known migration version.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// InitSchema brings the database up to the current schema.
func InitSchema(conn *sql.DB) error {
	var tableCount int
	err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}

	if tableCount > 0 {
		return RunMigrations(conn)
	}

	if _, err := conn.Exec(SchemaSQL); err != nil {
		return err
	}
	if err := createVersionTable(conn); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := conn.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return err
		}
	}
	return nil
}

// RunMigrations executes all pending migrations
func RunMigrations(conn *sql.DB) error {
	if err := createVersionTable(conn); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		if err := migration.Up(conn); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if _, err := conn.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func createVersionTable(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// migrationV1 creates the state and owner tables.
func migrationV1(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS property_owner_enrichment_state (
			address_hash TEXT PRIMARY KEY,
			normalized_address TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'never_checked',
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
		CREATE TABLE IF NOT EXISTS property_owners (
			address_hash TEXT PRIMARY KEY,
			owner_name TEXT,
			owner_email TEXT,
			owner_phone TEXT,
			mailing_address TEXT,
			source TEXT NOT NULL,
			listing_source TEXT,
			raw_response TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// migrationV2 adds the indexes claim, usage counting and orphan scans rely on.
// Listing tables that are not present yet are skipped.
func migrationV2(conn *sql.DB) error {
	if _, err := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_enrichment_state_status ON property_owner_enrichment_state(status, locked);
		CREATE INDEX IF NOT EXISTS idx_enrichment_state_usage ON property_owner_enrichment_state(source_used, checked_at);
	`); err != nil {
		return err
	}

	listingIndexes := map[string]string{
		"listings":                "idx_listings_hash",
		"zillow_fsbo_listings":    "idx_zillow_fsbo_hash",
		"zillow_frbo_listings":    "idx_zillow_frbo_hash",
		"trulia_listings":         "idx_trulia_hash",
		"redfin_listings":         "idx_redfin_hash",
		"hotpads_listings":        "idx_hotpads_hash",
		"apartments_frbo_chicago": "idx_apartments_hash",
	}
	for table, index := range listingIndexes {
		var n int
		if err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if _, err := conn.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(address_hash)", index, table)); err != nil {
			return err
		}
	}
	return nil
}
