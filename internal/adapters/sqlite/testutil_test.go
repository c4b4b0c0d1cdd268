// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() so tests run against the
// authoritative schema. Use setupTestDB() and the seed* helpers instead of
// hardcoded CREATE TABLE statements.
package sqlite_test

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/propenrich/internal/address"
	"github.com/example/propenrich/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// Every connection to :memory: is a separate database.
	testDB.SetMaxOpenConns(1)

	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// hashOf returns the address hash for a raw address.
func hashOf(t *testing.T, raw string) string {
	t.Helper()
	_, hash, err := address.Key(raw)
	if err != nil {
		t.Fatalf("address.Key(%q) failed: %v", raw, err)
	}
	return hash
}

// seedState inserts an enrichment state row directly and returns its hash.
func seedState(t *testing.T, testDB *sql.DB, hash, status string, locked bool, createdAt string) string {
	t.Helper()
	if createdAt == "" {
		createdAt = "2026-01-01T00:00:00.000000Z"
	}
	lockedInt := 0
	if locked {
		lockedInt = 1
	}
	_, err := testDB.Exec(`INSERT INTO property_owner_enrichment_state
		(address_hash, normalized_address, status, locked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		hash, "ADDR "+hash[:6], status, lockedInt, createdAt, createdAt)
	if err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}
	return hash
}

// seedListing inserts a row into the listings table and returns its id.
func seedListing(t *testing.T, testDB *sql.DB, addr, hash, ownerName string) int64 {
	t.Helper()
	var hashVal any
	if hash != "" {
		hashVal = hash
	}
	var nameVal any
	if ownerName != "" {
		nameVal = ownerName
	}
	res, err := testDB.Exec(`INSERT INTO listings (address, address_hash, owner_name) VALUES (?, ?, ?)`,
		addr, hashVal, nameVal)
	if err != nil {
		t.Fatalf("failed to seed listing: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func mustExec(t *testing.T, testDB *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := testDB.Exec(query, args...); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
}
