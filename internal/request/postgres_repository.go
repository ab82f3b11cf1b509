package request

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL request repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Latest returns the newest version for (choice, fiscalCode).
func (r *PostgresRepository) Latest(ctx context.Context, choice Choice, fiscalCode string) (*Request, error) {
	query := `
		SELECT fiscal_code, choice, status, request_id, version, reason, created_at, updated_at
		FROM processing_requests
		WHERE choice = $1 AND fiscal_code = $2
		ORDER BY updated_at DESC, version DESC
		LIMIT 1
	`

	var req Request
	err := r.pool.QueryRow(ctx, query, choice, fiscalCode).Scan(
		&req.FiscalCode,
		&req.Choice,
		&req.Status,
		&req.RequestID,
		&req.Version,
		&req.Reason,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Insert appends a new request version.
func (r *PostgresRepository) Insert(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO processing_requests (
			fiscal_code, choice, status, request_id, version, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		req.FiscalCode,
		req.Choice,
		req.Status,
		req.RequestID,
		req.Version,
		req.Reason,
		req.CreatedAt,
		req.UpdatedAt,
	)
	return err
}

var _ Repository = (*PostgresRepository)(nil)
