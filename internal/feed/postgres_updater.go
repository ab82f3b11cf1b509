package feed

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oblivio/oblivio/internal/userdata"
)

// PostgresUpdater is a PostgreSQL implementation of Updater.
type PostgresUpdater struct {
	pool *pgxpool.Pool
}

// NewPostgresUpdater creates a new PostgreSQL feed updater.
func NewPostgresUpdater(pool *pgxpool.Pool) *PostgresUpdater {
	return &PostgresUpdater{pool: pool}
}

// Unsubscribe upserts one retraction row per feed entry. Re-running the
// update for the same user is a no-op overwrite.
func (u *PostgresUpdater) Unsubscribe(ctx context.Context, fiscalCode string, mode userdata.ServicePreferencesMode, prefs []userdata.ServicePreference) error {
	query := `
		INSERT INTO subscription_feed (fiscal_code, service_id, unsubscribed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (fiscal_code, service_id) DO UPDATE SET unsubscribed_at = EXCLUDED.unsubscribed_at
	`

	now := time.Now()
	for _, entry := range entriesFor(fiscalCode, mode, prefs) {
		if _, err := u.pool.Exec(ctx, query, entry.FiscalCode, entry.ServiceID, now); err != nil {
			return err
		}
	}
	return nil
}

var _ Updater = (*PostgresUpdater)(nil)
