package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository. Captured
// service preferences are stored as JSONB so a run can finish its post-
// deletion phases after a restart, when the source documents are gone.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL run repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create stores a new run.
func (r *PostgresRepository) Create(ctx context.Context, run *Run) error {
	prefs, err := json.Marshal(run.Prefs)
	if err != nil {
		return fmt.Errorf("encode run preferences: %w", err)
	}

	query := `
		INSERT INTO saga_runs (
			request_id, fiscal_code, choice, phase, backup_folder, wake_at,
			abort_requested, retry_of_failed, email, send_email, prefs_mode, prefs,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.pool.Exec(ctx, query,
		run.RequestID,
		run.FiscalCode,
		run.Choice,
		run.Phase,
		run.BackupFolder,
		run.WakeAt,
		run.AbortRequested,
		run.RetryOfFailed,
		run.Email,
		run.SendEmail,
		run.PrefsMode,
		prefs,
		run.CreatedAt,
		run.UpdatedAt,
	)
	return err
}

// Update overwrites the run's persisted state.
func (r *PostgresRepository) Update(ctx context.Context, run *Run) error {
	prefs, err := json.Marshal(run.Prefs)
	if err != nil {
		return fmt.Errorf("encode run preferences: %w", err)
	}

	query := `
		UPDATE saga_runs SET
			phase = $2,
			wake_at = $3,
			abort_requested = $4,
			retry_of_failed = $5,
			email = $6,
			send_email = $7,
			prefs_mode = $8,
			prefs = $9,
			updated_at = $10
		WHERE request_id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		run.RequestID,
		run.Phase,
		run.WakeAt,
		run.AbortRequested,
		run.RetryOfFailed,
		run.Email,
		run.SendEmail,
		run.PrefsMode,
		prefs,
		run.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Get returns the run for the request ID.
func (r *PostgresRepository) Get(ctx context.Context, requestID string) (*Run, error) {
	query := `
		SELECT request_id, fiscal_code, choice, phase, backup_folder, wake_at,
			abort_requested, retry_of_failed, email, send_email, prefs_mode, prefs,
			created_at, updated_at
		FROM saga_runs
		WHERE request_id = $1
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// Due returns non-terminal runs whose wake-at time has passed, oldest first.
func (r *PostgresRepository) Due(ctx context.Context, now time.Time, limit int) ([]*Run, error) {
	query := `
		SELECT request_id, fiscal_code, choice, phase, backup_folder, wake_at,
			abort_requested, retry_of_failed, email, send_email, prefs_mode, prefs,
			created_at, updated_at
		FROM saga_runs
		WHERE phase NOT IN ('DONE', 'FAILED') AND wake_at <= $1
		ORDER BY wake_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, run)
	}
	return due, rows.Err()
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var prefs []byte
	err := row.Scan(
		&run.RequestID,
		&run.FiscalCode,
		&run.Choice,
		&run.Phase,
		&run.BackupFolder,
		&run.WakeAt,
		&run.AbortRequested,
		&run.RetryOfFailed,
		&run.Email,
		&run.SendEmail,
		&run.PrefsMode,
		&prefs,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &run.Prefs); err != nil {
			return nil, fmt.Errorf("decode run preferences: %w", err)
		}
	}
	return &run, nil
}

var _ Repository = (*PostgresRepository)(nil)
