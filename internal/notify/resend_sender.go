package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

// Default completion email copy.
const (
	defaultSubject = "Your account and data have been deleted"
	defaultHTML    = `<p>Your request to delete your account has been completed.</p>
<p>All of your data has been removed from our systems. A copy was archived
for the legally required retention period and will not be used for any other
purpose.</p>`
)

// ResendSender delivers the completion notice through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	logger zerolog.Logger
}

// NewResendSender creates a sender with the given API key and from address.
func NewResendSender(apiKey, from string, logger zerolog.Logger) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		logger: logger,
	}
}

// SendDeletionComplete sends the completion notice to the user's validated
// address.
func (s *ResendSender) SendDeletionComplete(ctx context.Context, email string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{email},
		Subject: defaultSubject,
		Html:    defaultHTML,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send completion email: %w", err)
	}

	s.logger.Info().Str("message_id", sent.Id).Msg("completion email sent")
	return nil
}

var _ Sender = (*ResendSender)(nil)
