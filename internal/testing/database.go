package testing

import (
	"database/sql"
	"testing"

	"github.com/teranos/catalog/db"
)

// CreateTestDB creates an in-memory SQLite database with the catalog schema applied.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := db.OpenWithMigrations(db.MemoryPath, nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}
