package userdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of Store. Pagination is
// keyset-based: the cursor is the last key of the previous page, so a page
// read never scans rows already consumed (or deleted) by the traversal.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL document store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// LatestProfile retrieves the newest profile version for the user.
func (s *PostgresStore) LatestProfile(ctx context.Context, fiscalCode string) (*Profile, error) {
	query := `
		SELECT fiscal_code, version, email, is_email_validated, is_email_enabled, preferences_mode, created_at
		FROM profiles
		WHERE fiscal_code = $1
		ORDER BY version DESC
		LIMIT 1
	`

	var p Profile
	err := s.pool.QueryRow(ctx, query, fiscalCode).Scan(
		&p.FiscalCode,
		&p.Version,
		&p.Email,
		&p.IsEmailValidated,
		&p.IsEmailEnabled,
		&p.PreferencesMode,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ServicePreferences retrieves the user's per-service preference rows.
func (s *PostgresStore) ServicePreferences(ctx context.Context, fiscalCode string) ([]ServicePreference, error) {
	query := `
		SELECT service_id, is_inbox_enabled, is_email_enabled, is_webhook_enabled, version
		FROM service_preferences
		WHERE fiscal_code = $1
		ORDER BY service_id
	`

	rows, err := s.pool.Query(ctx, query, fiscalCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []ServicePreference
	for rows.Next() {
		var p ServicePreference
		if err := rows.Scan(&p.ServiceID, &p.IsInboxEnabled, &p.IsEmailEnabled, &p.IsWebhookEnabled, &p.Version); err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// ProfileVersions pages through every profile version of the user.
func (s *PostgresStore) ProfileVersions(ctx context.Context, fiscalCode, cursor string, limit int) ([]Profile, string, error) {
	after, err := cursorInt(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT fiscal_code, version, email, is_email_validated, is_email_enabled, preferences_mode, created_at
		FROM profiles
		WHERE fiscal_code = $1 AND version > $2
		ORDER BY version
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, fiscalCode, after, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var page []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.FiscalCode, &p.Version, &p.Email, &p.IsEmailValidated, &p.IsEmailEnabled, &p.PreferencesMode, &p.CreatedAt); err != nil {
			return nil, "", err
		}
		page = append(page, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(page) == 0 {
		return nil, "", nil
	}
	return page, strconv.Itoa(page[len(page)-1].Version), nil
}

// Messages pages through every message owned by the user.
func (s *PostgresStore) Messages(ctx context.Context, fiscalCode, cursor string, limit int) ([]Message, string, error) {
	query := `
		SELECT fiscal_code, message_id, sender_service_id, created_at
		FROM messages
		WHERE fiscal_code = $1 AND message_id > $2
		ORDER BY message_id
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, fiscalCode, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var page []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.FiscalCode, &m.MessageID, &m.SenderID, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		page = append(page, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(page) == 0 {
		return nil, "", nil
	}
	return page, page[len(page)-1].MessageID, nil
}

// MessageContent retrieves the message's content. A missing row is a valid
// outcome and returns (nil, nil).
func (s *PostgresStore) MessageContent(ctx context.Context, messageID string) (*MessageContent, error) {
	query := `
		SELECT message_id, subject, markdown
		FROM message_contents
		WHERE message_id = $1
	`

	var c MessageContent
	err := s.pool.QueryRow(ctx, query, messageID).Scan(&c.MessageID, &c.Subject, &c.Markdown)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// MessageStatuses pages through every status version of a message.
func (s *PostgresStore) MessageStatuses(ctx context.Context, messageID, cursor string, limit int) ([]MessageStatus, string, error) {
	after, err := cursorInt(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT message_id, version, status, updated_at
		FROM message_statuses
		WHERE message_id = $1 AND version > $2
		ORDER BY version
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, messageID, after, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var page []MessageStatus
	for rows.Next() {
		var st MessageStatus
		if err := rows.Scan(&st.MessageID, &st.Version, &st.Status, &st.UpdatedAt); err != nil {
			return nil, "", err
		}
		page = append(page, st)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(page) == 0 {
		return nil, "", nil
	}
	return page, strconv.Itoa(page[len(page)-1].Version), nil
}

// Notifications pages through every notification of a message.
func (s *PostgresStore) Notifications(ctx context.Context, messageID, cursor string, limit int) ([]Notification, string, error) {
	query := `
		SELECT message_id, notification_id, fiscal_code, created_at
		FROM notifications
		WHERE message_id = $1 AND notification_id > $2
		ORDER BY notification_id
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, messageID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var page []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.MessageID, &n.NotificationID, &n.FiscalCode, &n.CreatedAt); err != nil {
			return nil, "", err
		}
		page = append(page, n)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(page) == 0 {
		return nil, "", nil
	}
	return page, page[len(page)-1].NotificationID, nil
}

// NotificationStatuses pages through the per-channel statuses of a
// notification.
func (s *PostgresStore) NotificationStatuses(ctx context.Context, notificationID, cursor string, limit int) ([]NotificationStatus, string, error) {
	query := `
		SELECT notification_id, channel, status, updated_at
		FROM notification_statuses
		WHERE notification_id = $1 AND channel > $2
		ORDER BY channel
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, notificationID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var page []NotificationStatus
	for rows.Next() {
		var st NotificationStatus
		if err := rows.Scan(&st.NotificationID, &st.Channel, &st.Status, &st.UpdatedAt); err != nil {
			return nil, "", err
		}
		page = append(page, st)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(page) == 0 {
		return nil, "", nil
	}
	return page, string(page[len(page)-1].Channel), nil
}

// DeleteProfileVersion removes one profile version.
func (s *PostgresStore) DeleteProfileVersion(ctx context.Context, fiscalCode string, version int) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE fiscal_code = $1 AND version = $2`, fiscalCode, version)
	return err
}

// DeleteMessage removes one message document.
func (s *PostgresStore) DeleteMessage(ctx context.Context, fiscalCode, messageID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE fiscal_code = $1 AND message_id = $2`, fiscalCode, messageID)
	return err
}

// DeleteMessageContent removes a message's content record.
func (s *PostgresStore) DeleteMessageContent(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM message_contents WHERE message_id = $1`, messageID)
	return err
}

// DeleteMessageStatus removes one message status version.
func (s *PostgresStore) DeleteMessageStatus(ctx context.Context, messageID string, version int) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM message_statuses WHERE message_id = $1 AND version = $2`, messageID, version)
	return err
}

// DeleteNotification removes one notification.
func (s *PostgresStore) DeleteNotification(ctx context.Context, messageID, notificationID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE message_id = $1 AND notification_id = $2`, messageID, notificationID)
	return err
}

// DeleteNotificationStatus removes one per-channel notification status.
func (s *PostgresStore) DeleteNotificationStatus(ctx context.Context, notificationID string, channel NotificationChannel) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM notification_statuses WHERE notification_id = $1 AND channel = $2`, notificationID, channel)
	return err
}

func cursorInt(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor %q: %w", cursor, err)
	}
	return n, nil
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
