// Package userdata models the per-user document hierarchy subject to
// erasure: profile versions, messages with their content, statuses and
// notifications, and the notification delivery statuses.
package userdata

import (
	"fmt"
	"time"
)

// ServicePreferencesMode describes how a user's per-service preferences are
// stored. Legacy accounts carry a single opt-in; accounts that opted in to
// per-service preferences carry one preference row per service.
type ServicePreferencesMode string

// Service preferences modes.
const (
	ModeLegacy ServicePreferencesMode = "LEGACY"
	ModeAuto   ServicePreferencesMode = "AUTO"
	ModeManual ServicePreferencesMode = "MANUAL"
)

// NotificationChannel is a delivery channel for a notification.
type NotificationChannel string

// Notification channels.
const (
	ChannelEmail   NotificationChannel = "EMAIL"
	ChannelWebhook NotificationChannel = "WEBHOOK"
)

// Profile is one immutable version of a user's profile. A user has N
// versions; all are deleted, last of all entities.
type Profile struct {
	FiscalCode       string                 `json:"fiscalCode"`
	Version          int                    `json:"version"`
	Email            string                 `json:"email,omitempty"`
	IsEmailValidated bool                   `json:"isEmailValidated"`
	IsEmailEnabled   bool                   `json:"isEmailEnabled"`
	PreferencesMode  ServicePreferencesMode `json:"servicePreferencesMode"`
	CreatedAt        time.Time              `json:"createdAt"`
}

// ID returns the backup object identifier for this profile version.
func (p Profile) ID() string {
	return fmt.Sprintf("%s-%d", p.FiscalCode, p.Version)
}

// ServicePreference is one per-service preference row for an opted-in
// account, passed to the subscription feed so each service subscription can
// be individually retracted.
type ServicePreference struct {
	ServiceID        string `json:"serviceId"`
	IsInboxEnabled   bool   `json:"isInboxEnabled"`
	IsEmailEnabled   bool   `json:"isEmailEnabled"`
	IsWebhookEnabled bool   `json:"isWebhookEnabled"`
	Version          int    `json:"version"`
}

// Message is a message owned by a user. It owns zero-or-one content record,
// N status versions and zero-or-more notifications.
type Message struct {
	FiscalCode string    `json:"fiscalCode"`
	MessageID  string    `json:"messageId"`
	SenderID   string    `json:"senderServiceId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ID returns the backup object identifier for this message.
func (m Message) ID() string { return m.MessageID }

// MessageContent is the content body of a message. A message may have no
// content at all; that is a valid state, not an error.
type MessageContent struct {
	MessageID string `json:"messageId"`
	Subject   string `json:"subject,omitempty"`
	Markdown  string `json:"markdown"`
}

// ID returns the backup object identifier for this content record.
func (c MessageContent) ID() string { return c.MessageID }

// MessageStatus is one immutable status version of a message.
type MessageStatus struct {
	MessageID string    `json:"messageId"`
	Version   int       `json:"version"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ID returns the backup object identifier for this status version.
func (s MessageStatus) ID() string {
	return fmt.Sprintf("%s-%d", s.MessageID, s.Version)
}

// Notification is an outbound notification attached to a message.
type Notification struct {
	MessageID      string    `json:"messageId"`
	NotificationID string    `json:"notificationId"`
	FiscalCode     string    `json:"fiscalCode"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ID returns the backup object identifier for this notification.
func (n Notification) ID() string { return n.NotificationID }

// NotificationStatus is the delivery status of a notification on one
// channel. There is at most one per (notification, channel).
type NotificationStatus struct {
	NotificationID string              `json:"notificationId"`
	Channel        NotificationChannel `json:"channel"`
	Status         string              `json:"status"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// ID returns the backup object identifier for this status record.
func (s NotificationStatus) ID() string {
	return fmt.Sprintf("%s-%s", s.NotificationID, s.Channel)
}
