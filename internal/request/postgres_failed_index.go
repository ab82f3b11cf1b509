package request

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresFailedIndex is a PostgreSQL implementation of FailedIndex. The
// failed_requests table is keyed (choice, fiscal_code) like the table
// store's (partition, row) pair.
type PostgresFailedIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresFailedIndex creates a new PostgreSQL failed index.
func NewPostgresFailedIndex(pool *pgxpool.Pool) *PostgresFailedIndex {
	return &PostgresFailedIndex{pool: pool}
}

// MarkFailed upserts the failure flag with its reason.
func (i *PostgresFailedIndex) MarkFailed(ctx context.Context, choice Choice, fiscalCode, reason string) error {
	query := `
		INSERT INTO failed_requests (choice, fiscal_code, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (choice, fiscal_code) DO UPDATE SET reason = EXCLUDED.reason
	`
	_, err := i.pool.Exec(ctx, query, choice, fiscalCode, reason)
	return err
}

// Clear removes the flag. A missing row is not an error.
func (i *PostgresFailedIndex) Clear(ctx context.Context, choice Choice, fiscalCode string) error {
	_, err := i.pool.Exec(ctx, `DELETE FROM failed_requests WHERE choice = $1 AND fiscal_code = $2`, choice, fiscalCode)
	return err
}

// IsFailed reports whether the request is flagged.
func (i *PostgresFailedIndex) IsFailed(ctx context.Context, choice Choice, fiscalCode string) (bool, error) {
	var reason string
	err := i.pool.QueryRow(ctx,
		`SELECT reason FROM failed_requests WHERE choice = $1 AND fiscal_code = $2`,
		choice, fiscalCode,
	).Scan(&reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var _ FailedIndex = (*PostgresFailedIndex)(nil)
