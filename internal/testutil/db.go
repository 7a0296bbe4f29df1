package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/db"
)

const TestDimension = 8

// OpenTestDB connects to the postgres named by TEST_DB_HOST, migrates it and
// empties every table. The test is skipped when TEST_DB_HOST is unset.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "examrag",
		Password: "examrag_pass",
		DBName:   "examrag_test",
		SSLMode:  "disable",
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, stmt := range []string{"DROP TABLE IF EXISTS chunks", "DROP TABLE IF EXISTS documents", "DROP TABLE IF EXISTS embedding_cache"} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("reset: %v", err)
		}
	}
	if err := db.ApplyMigrations(ctx, conn, TestDimension); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

// MongoURI returns TEST_MONGO_URI or skips the test.
func MongoURI(t *testing.T) string {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping mongo test")
	}
	return uri
}
