package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/ecolite-widget/internal/shared"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements KV using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}

	// WAL keeps readers off the writer's back.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	if dbPath == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, errors.Wrap(err, "initialize schema")
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS kv (
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (scope, key)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrap(err, "create schema")
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the value stored under scope/key.
func (s *SQLiteStore) Get(ctx context.Context, scope, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE scope = ? AND key = ?`, scope, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", key)
	}
	return value, true, nil
}

// Set stores value under scope/key.
func (s *SQLiteStore) Set(ctx context.Context, scope, key, value string) error {
	query := `
	INSERT INTO kv (scope, key, value, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(scope, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	now := time.Now().Unix()
	err := shared.RetryOnConflict(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, scope, key, value, now, now)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

// SetIfAbsent stores value unless scope/key already holds one.
func (s *SQLiteStore) SetIfAbsent(ctx context.Context, scope, key, value string) (string, error) {
	query := `
	INSERT INTO kv (scope, key, value, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(scope, key) DO NOTHING`

	now := time.Now().Unix()
	err := shared.RetryOnConflict(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, scope, key, value, now, now)
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, "insert %s", key)
	}

	stored, ok, err := s.Get(ctx, scope, key)
	if err != nil {
		return "", err
	}
	if !ok {
		log.Warn().Str("scope", scope).Str("key", key).Msg("Value vanished right after insert")
		return value, nil
	}
	return stored, nil
}

// Delete removes scope/key.
func (s *SQLiteStore) Delete(ctx context.Context, scope, key string) error {
	err := shared.RetryOnConflict(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE scope = ? AND key = ?`, scope, key)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "close database")
	}
	return nil
}
