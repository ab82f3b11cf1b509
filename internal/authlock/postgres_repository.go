package authlock

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository. The
// auth_locks table plays the role of the key-partitioned table store:
// fiscal_code is the partition key, unlock_code the row key.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL lock repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// List returns one page of records ordered by unlock code. Records that do
// not validate fail the read with an error naming the offending fields.
func (r *PostgresRepository) List(ctx context.Context, fiscalCode, cursor string, limit int) ([]Record, string, error) {
	query := `
		SELECT fiscal_code, unlock_code, created_at, released_at
		FROM auth_locks
		WHERE fiscal_code = $1 AND unlock_code > $2
		ORDER BY unlock_code
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, fiscalCode, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var page []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.FiscalCode, &rec.UnlockCode, &rec.CreatedAt, &rec.Released); err != nil {
			return nil, "", err
		}
		if err := validateRecord(rec); err != nil {
			return nil, "", err
		}
		page = append(page, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(page) == 0 {
		return nil, "", nil
	}
	return page, page[len(page)-1].UnlockCode, nil
}

// DeleteBatch removes the given unlock codes in one transaction. Every row
// must exist and delete cleanly or the whole transaction rolls back; the
// cause is collapsed into ErrDeleteFailed.
func (r *PostgresRepository) DeleteBatch(ctx context.Context, fiscalCode string, unlockCodes []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ErrDeleteFailed
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	batch := &pgx.Batch{}
	for _, code := range unlockCodes {
		batch.Queue(`DELETE FROM auth_locks WHERE fiscal_code = $1 AND unlock_code = $2`, fiscalCode, code)
	}

	br := tx.SendBatch(ctx, batch)
	for range unlockCodes {
		tag, err := br.Exec()
		if err != nil || tag.RowsAffected() != 1 {
			_ = br.Close()
			return ErrDeleteFailed
		}
	}
	if err := br.Close(); err != nil {
		return ErrDeleteFailed
	}
	if err := tx.Commit(ctx); err != nil {
		return ErrDeleteFailed
	}
	return nil
}

// validateRecord checks the decoded row, collecting every invalid field.
func validateRecord(rec Record) error {
	var bad []string
	if rec.FiscalCode == "" {
		bad = append(bad, "fiscal_code")
	}
	if rec.UnlockCode == "" {
		bad = append(bad, "unlock_code")
	}
	if rec.CreatedAt.IsZero() {
		bad = append(bad, "created_at")
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid authentication lock record: field(s) %s", strings.Join(bad, ", "))
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
