package properties

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
	"time"
)

type dialect struct {
	driver  string
	migrate string
	upsert  string
	get     string
}

var sqliteDialect = dialect{
	driver: "sqlite",
	migrate: `CREATE TABLE IF NOT EXISTS artifact_properties (
		artifact_id TEXT NOT NULL,
		property TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (artifact_id, property)
	);`,
	upsert: `INSERT INTO artifact_properties (artifact_id, property, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (artifact_id, property) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	get: `SELECT value FROM artifact_properties WHERE artifact_id = ? AND property = ?`,
}

var postgresDialect = dialect{
	driver: "postgres",
	migrate: `CREATE TABLE IF NOT EXISTS artifact_properties (
		artifact_id TEXT NOT NULL,
		property TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (artifact_id, property)
	);`,
	upsert: `INSERT INTO artifact_properties (artifact_id, property, value, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (artifact_id, property) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
	get: `SELECT value FROM artifact_properties WHERE artifact_id = $1 AND property = $2`,
}

// SQLStore keeps properties in a single artifact_properties table of a SQLite or Postgres database.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLiteStore opens (and if needed creates) the SQLite database at path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	return openSQLStore(db, sqliteDialect)
}

// NewPostgresStore connects to the Postgres database identified by dsn.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return openSQLStore(db, postgresDialect)
}

func openSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &SQLStore{db: db, dialect: d}
	if _, err := db.Exec(d.migrate); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Get(ctx context.Context, artifactID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.get, artifactID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, artifactID, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsert, artifactID, key, value, time.Now().UTC())
	return err
}

func (s *SQLStore) Has(ctx context.Context, artifactID, key string) (bool, error) {
	_, ok, err := s.Get(ctx, artifactID, key)
	return ok, err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
