// Package notify sends the completion email once a user's data has been
// erased.
package notify

import (
	"context"
	"sync"
)

// Sender delivers the deletion completion notice.
type Sender interface {
	SendDeletionComplete(ctx context.Context, email string) error
}

// MemorySender is an in-memory Sender for tests.
type MemorySender struct {
	mu    sync.Mutex
	sent  []string
	fail  error
}

// NewMemorySender creates an empty in-memory sender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// Fail makes subsequent sends fail with err.
func (s *MemorySender) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SendDeletionComplete records the recipient.
func (s *MemorySender) SendDeletionComplete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, email)
	return nil
}

// Sent returns every recipient, in send order.
func (s *MemorySender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

var _ Sender = (*MemorySender)(nil)
