package userdata

import (
	"context"
	"errors"
)

// Store errors.
var (
	ErrProfileNotFound = errors.New("profile not found")
)

// DefaultPageSize is the page size used by the erasure traversal. Pages are
// read one at a time to bound store load.
const DefaultPageSize = 100

// Store is the paginated, versioned document store holding the user's data
// hierarchy. Page reads take an opaque cursor and return the next cursor;
// an empty page with an empty cursor means the read is exhausted.
type Store interface {
	// LatestProfile returns the newest profile version for the user, or
	// ErrProfileNotFound.
	LatestProfile(ctx context.Context, fiscalCode string) (*Profile, error)

	// ServicePreferences returns the user's per-service preference rows.
	// Empty for legacy-mode accounts.
	ServicePreferences(ctx context.Context, fiscalCode string) ([]ServicePreference, error)

	// ProfileVersions pages through every profile version of the user.
	ProfileVersions(ctx context.Context, fiscalCode, cursor string, limit int) ([]Profile, string, error)

	// Messages pages through every message owned by the user.
	Messages(ctx context.Context, fiscalCode, cursor string, limit int) ([]Message, string, error)

	// MessageContent returns the message's content, or (nil, nil) when the
	// message has none.
	MessageContent(ctx context.Context, messageID string) (*MessageContent, error)

	// MessageStatuses pages through every status version of a message.
	MessageStatuses(ctx context.Context, messageID, cursor string, limit int) ([]MessageStatus, string, error)

	// Notifications pages through every notification of a message.
	Notifications(ctx context.Context, messageID, cursor string, limit int) ([]Notification, string, error)

	// NotificationStatuses pages through the per-channel statuses of a
	// notification.
	NotificationStatuses(ctx context.Context, notificationID, cursor string, limit int) ([]NotificationStatus, string, error)

	// Deletes. Each removes exactly one document.
	DeleteProfileVersion(ctx context.Context, fiscalCode string, version int) error
	DeleteMessage(ctx context.Context, fiscalCode, messageID string) error
	DeleteMessageContent(ctx context.Context, messageID string) error
	DeleteMessageStatus(ctx context.Context, messageID string, version int) error
	DeleteNotification(ctx context.Context, messageID, notificationID string) error
	DeleteNotificationStatus(ctx context.Context, notificationID string, channel NotificationChannel) error
}
