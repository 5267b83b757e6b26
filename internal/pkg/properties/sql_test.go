package properties

import (
	"context"
	"errors"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func withPostgresMock(t *testing.T, fn func(*SQLStore, sqlmock.Sqlmock)) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS artifact_properties").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := openSQLStore(db, postgresDialect)
	require.NoError(t, err)

	fn(store, mock)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Set upserts", func(t *testing.T) {
		withPostgresMock(t, func(store *SQLStore, mock sqlmock.Sqlmock) {
			mock.ExpectExec(`INSERT INTO artifact_properties .* ON CONFLICT`).
				WithArgs("maven:lib.jar", "issue.url", "https://example.com", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(1, 1))
			assert.NoError(t, store.Set(ctx, "maven:lib.jar", "issue.url", "https://example.com"))
		})
	})

	t.Run("Get found", func(t *testing.T) {
		withPostgresMock(t, func(store *SQLStore, mock sqlmock.Sqlmock) {
			mock.ExpectQuery(`SELECT value FROM artifact_properties WHERE artifact_id = \$1 AND property = \$2`).
				WithArgs("maven:lib.jar", "issue.url").
				WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("https://example.com"))
			v, ok, err := store.Get(ctx, "maven:lib.jar", "issue.url")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "https://example.com", v)
		})
	})

	t.Run("Get missing", func(t *testing.T) {
		withPostgresMock(t, func(store *SQLStore, mock sqlmock.Sqlmock) {
			mock.ExpectQuery("SELECT value FROM artifact_properties").
				WithArgs("maven:lib.jar", "issue.url").
				WillReturnRows(sqlmock.NewRows([]string{"value"}))
			has, err := store.Has(ctx, "maven:lib.jar", "issue.url")
			require.NoError(t, err)
			assert.False(t, has)
		})
	})

	t.Run("Get error", func(t *testing.T) {
		withPostgresMock(t, func(store *SQLStore, mock sqlmock.Sqlmock) {
			mock.ExpectQuery("SELECT value FROM artifact_properties").
				WillReturnError(errors.New("connection reset"))
			_, _, err := store.Get(ctx, "maven:lib.jar", "issue.url")
			assert.EqualError(t, err, "connection reset")
		})
	})
}

func TestOpenSQLStoreMigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()
	_, err = openSQLStore(db, postgresDialect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to migrate database")
	assert.NoError(t, mock.ExpectationsWereMet())
}
