package cron

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

// A mocked *sql.DB with no expectations rejects the statements the sqlite3
// migration driver issues to set up its version table, so building the
// driver against one fails before any migration runs. runMigrations relies on that error
// surfacing rather than panicking or hanging.
func TestRunMigrations_SqliteDriverRejectsMockConnection(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	require.Error(t, err)
}

func TestRunMigrations_EmbeddedMigrationsAreReadable(t *testing.T) {
	src, err := iofs.New(migrationFiles, "migrations")
	require.NoError(t, err)
	defer src.Close()

	_, err = src.First()
	require.NoError(t, err)
}
