package hypernative

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresTokenStore persists session tokens in PostgreSQL.
type PostgresTokenStore struct {
	db *sql.DB
}

// NewPostgresTokenStore creates a PostgreSQL-backed token store.
func NewPostgresTokenStore(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

var _ TokenStore = (*PostgresTokenStore)(nil)

func (s *PostgresTokenStore) Get(ctx context.Context, sessionID string) (*Token, error) {
	var tok Token
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, token_type, expires_at
		FROM hypernative_tokens
		WHERE session_id = $1
	`, sessionID).Scan(&tok.AccessToken, &tok.TokenType, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("hypernative: get token: %w", err)
	}
	if expires.Valid {
		tok.Expiry = expires.Time
	}
	return &tok, nil
}

func (s *PostgresTokenStore) Set(ctx context.Context, sessionID string, tok *Token) error {
	if tok == nil {
		return errors.New("hypernative: nil token")
	}
	var expires sql.NullTime
	if !tok.Expiry.IsZero() {
		expires = sql.NullTime{Time: tok.Expiry, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hypernative_tokens (session_id, access_token, token_type, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    token_type = EXCLUDED.token_type,
		    expires_at = EXCLUDED.expires_at
	`, sessionID, tok.AccessToken, tok.TokenType, expires, time.Now())
	if err != nil {
		return fmt.Errorf("hypernative: set token: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hypernative_tokens WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("hypernative: delete token: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens that expired before now.
func (s *PostgresTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hypernative_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("hypernative: delete expired: %w", err)
	}
	return res.RowsAffected()
}
