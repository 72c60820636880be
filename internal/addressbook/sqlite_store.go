package addressbook

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mbd888/safeshield/internal/analysis"
)

// SQLiteStore persists the address book in a local SQLite file. It backs
// single-node deployments and the shieldctl CLI.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

var _ Store = (*SQLiteStore)(nil)

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the address_book table if it doesn't exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS address_book (
		chain_id   TEXT NOT NULL,
		address    TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (chain_id, address)
	);
	`)
	return err
}

func (s *SQLiteStore) IsKnown(ctx context.Context, chainID, address string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM address_book WHERE chain_id = ? AND address = ?`,
		chainID, analysis.Checksum(address)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("addressbook: lookup: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Add(ctx context.Context, entry *Entry) error {
	if err := NormalizeEntry(entry); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO address_book (chain_id, address, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chain_id, address) DO UPDATE SET name = excluded.name
	`, entry.ChainID, entry.Address, entry.Name, entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("addressbook: add: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, chainID, address string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM address_book WHERE chain_id = ? AND address = ?`,
		chainID, analysis.Checksum(address))
	if err != nil {
		return fmt.Errorf("addressbook: remove: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, chainID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_id, address, name, created_at
		FROM address_book
		WHERE chain_id = ?
		ORDER BY address
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("addressbook: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*Entry{}
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ChainID, &e.Address, &e.Name, &created); err != nil {
			return nil, fmt.Errorf("addressbook: scan: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, &e)
	}
	return out, rows.Err()
}
