package addressbook

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mbd888/safeshield/internal/analysis"
)

// PostgresStore persists the address book in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed address book.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) IsKnown(ctx context.Context, chainID, address string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM address_book WHERE chain_id = $1 AND address = $2)
	`, chainID, analysis.Checksum(address)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("addressbook: lookup: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Add(ctx context.Context, entry *Entry) error {
	if err := NormalizeEntry(entry); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO address_book (chain_id, address, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id, address) DO UPDATE SET name = EXCLUDED.name
	`, entry.ChainID, entry.Address, entry.Name, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("addressbook: add: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, chainID, address string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM address_book WHERE chain_id = $1 AND address = $2
	`, chainID, analysis.Checksum(address))
	if err != nil {
		return fmt.Errorf("addressbook: remove: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, chainID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_id, address, name, created_at
		FROM address_book
		WHERE chain_id = $1
		ORDER BY address
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("addressbook: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ChainID, &e.Address, &e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("addressbook: scan: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
