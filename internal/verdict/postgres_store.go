package verdict

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/pagination"
)

// PostgresStore persists verdicts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed verdict store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Record(ctx context.Context, v *Verdict) error {
	sourcesJSON, err := json.Marshal(v.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	if v.Sources == nil {
		sourcesJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shield_verdicts (id, chain_id, safe_address, severity, title, sources, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		v.ID,
		v.ChainID,
		analysis.Checksum(v.Safe),
		string(v.Severity),
		v.Title,
		sourcesJSON,
		v.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record verdict: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySafe(ctx context.Context, chainID, safe string, limit int, before *pagination.Cursor) ([]*Verdict, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `
		SELECT id, chain_id, safe_address, severity, title, sources, evaluated_at
		FROM shield_verdicts
		WHERE chain_id = $1 AND safe_address = $2`
	args := []any{chainID, analysis.Checksum(safe)}
	if before != nil {
		query += ` AND (evaluated_at, id) < ($3, $4)`
		args = append(args, before.At, before.ID)
	}
	query += fmt.Sprintf(` ORDER BY evaluated_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []*Verdict{}
	for rows.Next() {
		var v Verdict
		var sourcesJSON []byte
		if err := rows.Scan(&v.ID, &v.ChainID, &v.Safe, &v.Severity, &v.Title, &sourcesJSON, &v.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		_ = json.Unmarshal(sourcesJSON, &v.Sources)
		result = append(result, &v)
	}
	return result, rows.Err()
}
