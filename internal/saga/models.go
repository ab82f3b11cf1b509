// Package saga orchestrates the deletion of a user's data as a persisted
// state machine. Every transition is a committed record; waits (grace
// period, download re-check) are wake-at rows that the worker's resume loop
// polls, so a restart picks up exactly where the last committed transition
// left off.
package saga

import (
	"time"

	"github.com/oblivio/oblivio/internal/request"
	"github.com/oblivio/oblivio/internal/userdata"
)

// Phase is the persisted position of a run in the state machine.
type Phase string

// Phases. The happy path is WAITING_GRACE_PERIOD → WAITING_DOWNLOAD →
// DELETING → NOTIFYING → UPDATING_FEED → CLOSING → DONE. FAILED is reachable
// from any phase after validation.
const (
	PhaseWaitingGracePeriod Phase = "WAITING_GRACE_PERIOD"
	PhaseWaitingDownload    Phase = "WAITING_DOWNLOAD"
	PhaseDeleting           Phase = "DELETING"
	PhaseNotifying          Phase = "NOTIFYING"
	PhaseUpdatingFeed       Phase = "UPDATING_FEED"
	PhaseClosing            Phase = "CLOSING"
	PhaseDone               Phase = "DONE"
	PhaseFailed             Phase = "FAILED"
)

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Run is the persisted state of one deletion saga.
type Run struct {
	RequestID    string
	FiscalCode   string
	Choice       request.Choice
	Phase        Phase
	BackupFolder string

	// WakeAt is when the run next becomes due. Waits are expressed as
	// wake-at timestamps, never as in-process sleeps.
	WakeAt time.Time

	// AbortRequested is set when the user cancels during the grace
	// period. It has no effect once deletion has started.
	AbortRequested bool

	// RetryOfFailed marks a run for a request that was flagged in the
	// failed index: the grace period is skipped and no completion email
	// is sent.
	RetryOfFailed bool

	// Profile data captured before deletion, needed by the phases that
	// run after the data is gone.
	Email     string
	SendEmail bool
	PrefsMode userdata.ServicePreferencesMode
	Prefs     []userdata.ServicePreference

	CreatedAt time.Time
	UpdatedAt time.Time
}
