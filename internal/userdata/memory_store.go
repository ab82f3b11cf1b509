package userdata

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore is an in-memory implementation of Store. Intended for tests;
// it records deletions in call order and supports fault injection by entity
// ID or query name.
type MemoryStore struct {
	mu sync.Mutex

	profiles             []Profile
	prefs                map[string][]ServicePreference
	messages             []Message
	contents             map[string]MessageContent
	messageStatuses      []MessageStatus
	notifications        []Notification
	notificationStatuses []NotificationStatus

	deletions []string

	// FailDeleteID makes the delete of the entity with that ID fail.
	FailDeleteID string

	// FailQuery makes the page read with that name ("messages",
	// "profile versions", "message statuses", "notifications",
	// "notification statuses", "message content") fail.
	FailQuery string
}

// ErrStoreFault is returned by injected faults.
var ErrStoreFault = errors.New("store fault")

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prefs:    make(map[string][]ServicePreference),
		contents: make(map[string]MessageContent),
	}
}

// AddProfile adds a profile version.
func (s *MemoryStore) AddProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, p)
}

// SetServicePreferences sets the preference rows for a user.
func (s *MemoryStore) SetServicePreferences(fiscalCode string, prefs []ServicePreference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[fiscalCode] = prefs
}

// AddMessage adds a message.
func (s *MemoryStore) AddMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// SetMessageContent sets a message's content.
func (s *MemoryStore) SetMessageContent(c MessageContent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[c.MessageID] = c
}

// AddMessageStatus adds a message status version.
func (s *MemoryStore) AddMessageStatus(st MessageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageStatuses = append(s.messageStatuses, st)
}

// AddNotification adds a notification.
func (s *MemoryStore) AddNotification(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

// AddNotificationStatus adds a per-channel notification status.
func (s *MemoryStore) AddNotificationStatus(st NotificationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notificationStatuses = append(s.notificationStatuses, st)
}

// Deletions returns every recorded deletion as "entity:id", in call order.
func (s *MemoryStore) Deletions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deletions))
	copy(out, s.deletions)
	return out
}

// Remaining returns how many documents of any kind are still stored.
func (s *MemoryStore) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles) + len(s.messages) + len(s.contents) +
		len(s.messageStatuses) + len(s.notifications) + len(s.notificationStatuses)
}

// LatestProfile returns the newest profile version for the user.
func (s *MemoryStore) LatestProfile(_ context.Context, fiscalCode string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Profile
	for i := range s.profiles {
		p := s.profiles[i]
		if p.FiscalCode != fiscalCode {
			continue
		}
		if latest == nil || p.Version > latest.Version {
			cp := p
			latest = &cp
		}
	}
	if latest == nil {
		return nil, ErrProfileNotFound
	}
	return latest, nil
}

// ServicePreferences returns the user's preference rows.
func (s *MemoryStore) ServicePreferences(_ context.Context, fiscalCode string) ([]ServicePreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ServicePreference(nil), s.prefs[fiscalCode]...), nil
}

// ProfileVersions pages through the user's profile versions.
func (s *MemoryStore) ProfileVersions(_ context.Context, fiscalCode, cursor string, limit int) ([]Profile, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailQuery == "profile versions" {
		return nil, "", ErrStoreFault
	}

	after, _ := strconv.Atoi(cursor)
	var all []Profile
	for _, p := range s.profiles {
		if p.FiscalCode == fiscalCode && p.Version > after {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })
	if len(all) > limit {
		all = all[:limit]
	}
	if len(all) == 0 {
		return nil, "", nil
	}
	return all, strconv.Itoa(all[len(all)-1].Version), nil
}

// Messages pages through the user's messages.
func (s *MemoryStore) Messages(_ context.Context, fiscalCode, cursor string, limit int) ([]Message, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailQuery == "messages" {
		return nil, "", ErrStoreFault
	}

	var all []Message
	for _, m := range s.messages {
		if m.FiscalCode == fiscalCode && m.MessageID > cursor {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].MessageID < all[j].MessageID })
	if len(all) > limit {
		all = all[:limit]
	}
	if len(all) == 0 {
		return nil, "", nil
	}
	return all, all[len(all)-1].MessageID, nil
}

// MessageContent returns a message's content, or (nil, nil) when absent.
func (s *MemoryStore) MessageContent(_ context.Context, messageID string) (*MessageContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailQuery == "message content" {
		return nil, ErrStoreFault
	}

	c, ok := s.contents[messageID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// MessageStatuses pages through a message's status versions.
func (s *MemoryStore) MessageStatuses(_ context.Context, messageID, cursor string, limit int) ([]MessageStatus, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailQuery == "message statuses" {
		return nil, "", ErrStoreFault
	}

	after, _ := strconv.Atoi(cursor)
	var all []MessageStatus
	for _, st := range s.messageStatuses {
		if st.MessageID == messageID && st.Version > after {
			all = append(all, st)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })
	if len(all) > limit {
		all = all[:limit]
	}
	if len(all) == 0 {
		return nil, "", nil
	}
	return all, strconv.Itoa(all[len(all)-1].Version), nil
}

// Notifications pages through a message's notifications.
func (s *MemoryStore) Notifications(_ context.Context, messageID, cursor string, limit int) ([]Notification, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailQuery == "notifications" {
		return nil, "", ErrStoreFault
	}

	var all []Notification
	for _, n := range s.notifications {
		if n.MessageID == messageID && n.NotificationID > cursor {
			all = append(all, n)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].NotificationID < all[j].NotificationID })
	if len(all) > limit {
		all = all[:limit]
	}
	if len(all) == 0 {
		return nil, "", nil
	}
	return all, all[len(all)-1].NotificationID, nil
}

// NotificationStatuses pages through a notification's per-channel statuses.
func (s *MemoryStore) NotificationStatuses(_ context.Context, notificationID, cursor string, limit int) ([]NotificationStatus, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailQuery == "notification statuses" {
		return nil, "", ErrStoreFault
	}

	var all []NotificationStatus
	for _, st := range s.notificationStatuses {
		if st.NotificationID == notificationID && string(st.Channel) > cursor {
			all = append(all, st)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Channel < all[j].Channel })
	if len(all) > limit {
		all = all[:limit]
	}
	if len(all) == 0 {
		return nil, "", nil
	}
	return all, string(all[len(all)-1].Channel), nil
}

// DeleteProfileVersion removes one profile version.
func (s *MemoryStore) DeleteProfileVersion(_ context.Context, fiscalCode string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := Profile{FiscalCode: fiscalCode, Version: version}.ID()
	if s.FailDeleteID == id {
		return ErrStoreFault
	}
	for i, p := range s.profiles {
		if p.FiscalCode == fiscalCode && p.Version == version {
			s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
			s.deletions = append(s.deletions, "profile:"+id)
			return nil
		}
	}
	return nil
}

// DeleteMessage removes one message.
func (s *MemoryStore) DeleteMessage(_ context.Context, fiscalCode, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDeleteID == messageID {
		return ErrStoreFault
	}
	for i, m := range s.messages {
		if m.FiscalCode == fiscalCode && m.MessageID == messageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.deletions = append(s.deletions, "message:"+messageID)
			return nil
		}
	}
	return nil
}

// DeleteMessageContent removes a message's content.
func (s *MemoryStore) DeleteMessageContent(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDeleteID == messageID+"-content" {
		return ErrStoreFault
	}
	if _, ok := s.contents[messageID]; ok {
		delete(s.contents, messageID)
		s.deletions = append(s.deletions, "message-content:"+messageID)
	}
	return nil
}

// DeleteMessageStatus removes one message status version.
func (s *MemoryStore) DeleteMessageStatus(_ context.Context, messageID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := MessageStatus{MessageID: messageID, Version: version}.ID()
	if s.FailDeleteID == id {
		return ErrStoreFault
	}
	for i, st := range s.messageStatuses {
		if st.MessageID == messageID && st.Version == version {
			s.messageStatuses = append(s.messageStatuses[:i], s.messageStatuses[i+1:]...)
			s.deletions = append(s.deletions, "message-status:"+id)
			return nil
		}
	}
	return nil
}

// DeleteNotification removes one notification.
func (s *MemoryStore) DeleteNotification(_ context.Context, messageID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDeleteID == notificationID {
		return ErrStoreFault
	}
	for i, n := range s.notifications {
		if n.MessageID == messageID && n.NotificationID == notificationID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			s.deletions = append(s.deletions, "notification:"+notificationID)
			return nil
		}
	}
	return nil
}

// DeleteNotificationStatus removes one per-channel notification status.
func (s *MemoryStore) DeleteNotificationStatus(_ context.Context, notificationID string, channel NotificationChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := NotificationStatus{NotificationID: notificationID, Channel: channel}.ID()
	if s.FailDeleteID == id {
		return ErrStoreFault
	}
	for i, st := range s.notificationStatuses {
		if st.NotificationID == notificationID && st.Channel == channel {
			s.notificationStatuses = append(s.notificationStatuses[:i], s.notificationStatuses[i+1:]...)
			s.deletions = append(s.deletions, "notification-status:"+id)
			return nil
		}
	}
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
