// Package sqlite implements the local record mirror on a sqlite database so
// it survives process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/offlinekit/recsync/pkg/models"
	"github.com/offlinekit/recsync/pkg/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists records as JSON bodies in a single table. Each statement is
// its own transaction, which gives the per-key atomicity the engine relies
// on without cross-key isolation.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens (creating if necessary) the sqlite database at file and runs the
// schema migrations.
func New(file string) (*Store, error) {
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "records", driver)
	if err != nil {
		return fmt.Errorf("failed to instantiate migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (models.Record, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM records WHERE key = ?", key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("failed to read record: %w", err)
	}
	var record models.Record
	if err := json.Unmarshal(body, &record); err != nil {
		return models.Record{}, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return record, nil
}

func (s *Store) Put(ctx context.Context, record models.Record) error {
	if record.ID == "" {
		return fmt.Errorf("store: cannot mirror a record without an ID")
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", record.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO records (key, owner_id, body) VALUES (?, ?, ?)",
		record.ID, record.OwnerID, body)
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", record.ID, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to remove record %s: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM records")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
