// Package store keeps saved collections, requests and the exchange history
// in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultCollectionName        = "My Collection"
	DefaultCollectionDescription = "Default collection for API requests"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id INTEGER,
	name TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	headers TEXT,
	body TEXT,
	parameters TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (collection_id) REFERENCES collections (id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	headers TEXT,
	body TEXT,
	response TEXT,
	response_headers TEXT,
	status_code INTEGER,
	response_time INTEGER,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

type Store struct {
	db  *sql.DB
	log *log.Logger
}

// Open opens the database at path, creating it and its schema if needed.
func Open(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// PRAGMA foreign_keys is per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: logger}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing database %s: %w", path, err)
	}

	logger.Printf("store: opened path=%s", path)
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM collections").Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		_, err := s.CreateCollection(ctx, DefaultCollectionName, DefaultCollectionDescription)
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NewRunID returns an identifier for grouping the history rows of one run.
func NewRunID() string {
	return uuid.NewString()
}

func checkAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func unix(secs int64) time.Time {
	return time.Unix(secs, 0).UTC()
}
