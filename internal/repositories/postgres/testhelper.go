package postgres

import (
	"fmt"
	"testing"

	"github.com/asakaida/junban/internal/infrastructure/config"
	"github.com/asakaida/junban/internal/infrastructure/database"
	"github.com/jmoiron/sqlx"
)

// SetupTestDB connects to the test database and runs migrations.
// The test is skipped when no database is configured or reachable.
func SetupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("Skipping database test: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("Skipping database test: %v", err)
	}

	if err := pg.RunMigrations("../../../internal/infrastructure/database/migrations/postgres"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return pg.DB
}

// CleanupTestDB deletes test data and closes the connection
func CleanupTestDB(t *testing.T, db *sqlx.DB) {
	t.Helper()

	tables := []string{relationOrdersTable}
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}
