package request

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/oblivio/oblivio/internal/erasure"
)

// StatusTracker appends status transitions to the request record. It is the
// single writer of transitions; every externally visible state change of a
// deletion goes through it.
type StatusTracker struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewStatusTracker creates a new status tracker.
func NewStatusTracker(repo Repository, logger zerolog.Logger) *StatusTracker {
	return &StatusTracker{repo: repo, logger: logger, now: time.Now}
}

// WithClock overrides the tracker's clock. Intended for tests.
func (t *StatusTracker) WithClock(now func() time.Time) *StatusTracker {
	t.now = now
	return t
}

// Transition appends a new version of the request with the next status,
// stamped with the current time. The current record is never mutated.
func (t *StatusTracker) Transition(ctx context.Context, current *Request, next Status, reason string) (*Request, *erasure.Failure) {
	now := t.now()
	version := &Request{
		FiscalCode: current.FiscalCode,
		Choice:     current.Choice,
		Status:     next,
		RequestID:  current.RequestID,
		Version:    current.Version + 1,
		Reason:     reason,
		CreatedAt:  current.CreatedAt,
		UpdatedAt:  now,
	}

	if err := t.repo.Insert(ctx, version); err != nil {
		return nil, erasure.QueryFailure("insert request version", err)
	}

	t.logger.Info().
		Str("request_id", version.RequestID).
		Str("choice", string(version.Choice)).
		Str("from", string(current.Status)).
		Str("to", string(next)).
		Int("version", version.Version).
		Msg("request status transition")

	return version, nil
}
