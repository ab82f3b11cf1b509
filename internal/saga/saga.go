package saga

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/oblivio/oblivio/internal/backup"
	"github.com/oblivio/oblivio/internal/erasure"
	"github.com/oblivio/oblivio/internal/feed"
	"github.com/oblivio/oblivio/internal/notify"
	"github.com/oblivio/oblivio/internal/request"
	"github.com/oblivio/oblivio/internal/userdata"
)

// Activity names used in structured failure reasons.
const (
	activityDeleteUserData = "DeleteUserData"
	activityClearAuthLocks = "ClearAuthenticationLocks"
	activitySessionLock    = "SetUserSessionLock"
	activitySendEmail      = "SendUserDataDeletedEmail"
	activityUpdateFeed     = "UpdateSubscriptionsFeed"
	activitySetStatus      = "SetUserDataProcessingStatus"
	activityFailedLookup   = "IsFailedUserDataProcessing"
	activityCheckDownload  = "CheckPendingUserDataDownload"
)

// Eraser runs the backup-then-delete traversal.
type Eraser interface {
	DeleteUserData(ctx context.Context, fiscalCode, folder string) (*erasure.Report, *erasure.Failure)
}

// LockCleaner backs up and removes the user's authentication lock records.
type LockCleaner interface {
	Clean(ctx context.Context, w backup.Writer, folder, fiscalCode string) (int, *erasure.Failure)
}

// SessionLocker locks and unlocks the user's sessions.
type SessionLocker interface {
	Lock(ctx context.Context, fiscalCode string) *erasure.Failure
	Unlock(ctx context.Context, fiscalCode string) *erasure.Failure
}

// Config holds the saga's tunables.
type Config struct {
	// GracePeriod is how long a request waits for a user abort before
	// deletion becomes irreversible. Zero for retries of failed requests.
	GracePeriod time.Duration

	// DownloadRecheck is how long to wait before re-checking a concurrent
	// DOWNLOAD request that is still PENDING or WIP.
	DownloadRecheck time.Duration

	// RetryMaxAttempts bounds retries of transient activity failures.
	// Default: 3
	RetryMaxAttempts uint64

	// RetryInterval is the base delay between retries. Default: 500ms
	RetryInterval time.Duration
}

// Deps are the saga's collaborators.
type Deps struct {
	Runs      Repository
	Requests  request.Repository
	Tracker   *request.StatusTracker
	Failed    request.FailedIndex
	Store     userdata.Store
	Eraser    Eraser
	Locks     LockCleaner
	Sessions  SessionLocker
	Notifier  notify.Sender
	Feed      feed.Updater
	Writer    backup.Writer
	Logger    zerolog.Logger
}

// Saga is the deletion orchestrator. Advance executes committed transitions
// one phase at a time; any typed failure after validation escalates the
// request to FAILED with a structured reason and stops the run.
type Saga struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a new saga orchestrator.
func New(cfg Config, deps Deps) *Saga {
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	return &Saga{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		tracer: otel.Tracer("oblivio/saga"),
		now:    time.Now,
	}
}

// WithClock overrides the saga's clock. Intended for tests; all waits are
// computed from this clock, never read ad hoc.
func (s *Saga) WithClock(now func() time.Time) *Saga {
	s.now = now
	return s
}

// Start validates the request and creates the run, scheduled after the
// grace period. Validation failures have no side effects. Starting an
// already-started request is a no-op so message redelivery is safe.
func (s *Saga) Start(ctx context.Context, requestID, fiscalCode string) *erasure.Failure {
	if requestID == "" {
		return erasure.InvalidInputf("request id is required")
	}
	if !request.ValidFiscalCode(fiscalCode) {
		return erasure.InvalidInputf("malformed fiscal code")
	}

	if _, err := s.deps.Runs.Get(ctx, requestID); err == nil {
		s.logger.Debug().Str("request_id", requestID).Msg("run already exists, ignoring duplicate start")
		return nil
	} else if !errors.Is(err, ErrRunNotFound) {
		return erasure.QueryFailure("saga run by request id", err)
	}

	latest, err := s.deps.Requests.Latest(ctx, request.ChoiceDelete, fiscalCode)
	if err != nil {
		if errors.Is(err, request.ErrRequestNotFound) {
			return erasure.NotFound("delete request")
		}
		return erasure.QueryFailure("latest delete request", err)
	}
	if latest.Status != request.StatusPending {
		return erasure.InvalidInputf("request is %s, expected PENDING", latest.Status)
	}

	wasFailed, err := s.deps.Failed.IsFailed(ctx, request.ChoiceDelete, fiscalCode)
	if err != nil {
		return erasure.QueryFailure(activityFailedLookup, err)
	}

	// A previously failed request is retried immediately: the user already
	// had their chance to cancel.
	grace := s.cfg.GracePeriod
	if wasFailed {
		grace = 0
	}

	now := s.now()
	run := &Run{
		RequestID:     requestID,
		FiscalCode:    fiscalCode,
		Choice:        request.ChoiceDelete,
		Phase:         PhaseWaitingGracePeriod,
		BackupFolder:  backup.Folder(requestID, now),
		WakeAt:        now.Add(grace),
		RetryOfFailed: wasFailed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deps.Runs.Create(ctx, run); err != nil {
		if errors.Is(err, ErrRunExists) {
			return nil
		}
		return erasure.QueryFailure("create saga run", err)
	}

	s.logger.Info().
		Str("request_id", requestID).
		Dur("grace_period", grace).
		Bool("retry_of_failed", wasFailed).
		Msg("deletion saga started")
	return nil
}

// Abort requests cancellation. Only effective while the run is still in its
// grace period; once deletion has started there is no cancellation.
func (s *Saga) Abort(ctx context.Context, requestID string) *erasure.Failure {
	run, err := s.deps.Runs.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return erasure.NotFound("saga run")
		}
		return erasure.QueryFailure("saga run by request id", err)
	}

	if run.Phase != PhaseWaitingGracePeriod {
		return erasure.InvalidInputf("cannot abort: deletion already started (phase %s)", run.Phase)
	}

	run.AbortRequested = true
	run.WakeAt = s.now() // wake immediately, the abort wins the race
	run.UpdatedAt = s.now()
	if err := s.deps.Runs.Update(ctx, run); err != nil {
		return erasure.QueryFailure("update saga run", err)
	}

	s.logger.Info().Str("request_id", requestID).Msg("abort requested during grace period")
	return nil
}

// Tick advances every due run once. Errors are logged, not propagated: a
// failed run has already been escalated to FAILED, and the loop must not
// starve the remaining runs.
func (s *Saga) Tick(ctx context.Context, limit int) {
	due, err := s.deps.Runs.Due(ctx, s.now(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing due saga runs")
		return
	}
	for _, run := range due {
		if err := s.Advance(ctx, run); err != nil {
			s.logger.Error().Err(err).Str("request_id", run.RequestID).Msg("saga run failed")
		}
	}
}

// Advance executes the run until it reaches a wait or a terminal phase.
// Each phase change is committed before the next phase executes.
func (s *Saga) Advance(ctx context.Context, run *Run) error {
	ctx, span := s.tracer.Start(ctx, "saga.Advance")
	defer span.End()

	for {
		if s.now().Before(run.WakeAt) {
			return nil
		}

		switch run.Phase {
		case PhaseWaitingGracePeriod:
			if err := s.leaveGracePeriod(ctx, run); err != nil {
				return err
			}
			if run.Phase.Terminal() {
				return nil
			}

		case PhaseWaitingDownload:
			waiting, err := s.checkPendingDownload(ctx, run)
			if err != nil {
				return err
			}
			if waiting {
				return nil
			}

		case PhaseDeleting:
			if err := s.deleteData(ctx, run); err != nil {
				return err
			}

		case PhaseNotifying:
			if err := s.sendCompletionEmail(ctx, run); err != nil {
				return err
			}

		case PhaseUpdatingFeed:
			if err := s.updateFeed(ctx, run); err != nil {
				return err
			}

		case PhaseClosing:
			return s.closeRun(ctx, run)

		case PhaseDone, PhaseFailed:
			return nil

		default:
			return s.fail(ctx, run, "Advance", erasure.Unhandledf("unknown phase %q", run.Phase))
		}
	}
}

// leaveGracePeriod resolves the race between the grace timer and the abort
// signal. If the abort won, the run terminates without locking the session
// or touching any data. Otherwise the session is locked and the request
// moves to WIP.
func (s *Saga) leaveGracePeriod(ctx context.Context, run *Run) error {
	if run.AbortRequested {
		if f := s.transition(ctx, run.FiscalCode, request.StatusAborted, "aborted by user during grace period"); f != nil {
			return s.fail(ctx, run, activitySetStatus, f)
		}
		s.commit(ctx, run, PhaseDone)
		s.logger.Info().Str("request_id", run.RequestID).Msg("deletion aborted by user")
		return nil
	}

	if f := s.withRetry(ctx, func() *erasure.Failure {
		return s.deps.Sessions.Lock(ctx, run.FiscalCode)
	}); f != nil {
		return s.fail(ctx, run, activitySessionLock, f)
	}

	if f := s.transition(ctx, run.FiscalCode, request.StatusWIP, ""); f != nil {
		return s.fail(ctx, run, activitySetStatus, f)
	}

	return s.commit(ctx, run, PhaseWaitingDownload)
}

// checkPendingDownload waits while a concurrent DOWNLOAD request for the
// same user is still being served, so the export does not read documents
// this run is about to delete. Returns true when the run went back to
// sleep.
func (s *Saga) checkPendingDownload(ctx context.Context, run *Run) (bool, error) {
	download, err := s.deps.Requests.Latest(ctx, request.ChoiceDownload, run.FiscalCode)
	if err != nil && !errors.Is(err, request.ErrRequestNotFound) {
		return false, s.fail(ctx, run, activityCheckDownload, erasure.QueryFailure("latest download request", err))
	}

	if download != nil && (download.Status == request.StatusPending || download.Status == request.StatusWIP) {
		run.WakeAt = s.now().Add(s.cfg.DownloadRecheck)
		run.UpdatedAt = s.now()
		if err := s.deps.Runs.Update(ctx, run); err != nil {
			return false, s.fail(ctx, run, activityCheckDownload, erasure.QueryFailure("update saga run", err))
		}
		s.logger.Info().
			Str("request_id", run.RequestID).
			Time("wake_at", run.WakeAt).
			Msg("concurrent download in flight, re-checking later")
		return true, nil
	}

	// Capture what the post-deletion phases need before the documents
	// disappear.
	profile, err := s.deps.Store.LatestProfile(ctx, run.FiscalCode)
	if err != nil && !errors.Is(err, userdata.ErrProfileNotFound) {
		return false, s.fail(ctx, run, activityDeleteUserData, erasure.QueryFailure("latest profile", err))
	}
	if profile != nil {
		run.Email = profile.Email
		run.SendEmail = validEmail(profile.Email) && profile.IsEmailValidated &&
			profile.IsEmailEnabled && !run.RetryOfFailed
		run.PrefsMode = profile.PreferencesMode

		prefs, err := s.deps.Store.ServicePreferences(ctx, run.FiscalCode)
		if err != nil {
			return false, s.fail(ctx, run, activityDeleteUserData, erasure.QueryFailure("service preferences", err))
		}
		run.Prefs = prefs
	}

	return false, s.commit(ctx, run, PhaseDeleting)
}

// deleteData runs the backup-then-delete traversal and the authentication
// lock cleanup.
func (s *Saga) deleteData(ctx context.Context, run *Run) error {
	report, f := s.deps.Eraser.DeleteUserData(ctx, run.FiscalCode, run.BackupFolder)
	if f != nil {
		return s.fail(ctx, run, activityDeleteUserData, f)
	}

	locks, f := s.deps.Locks.Clean(ctx, s.deps.Writer, run.BackupFolder, run.FiscalCode)
	if f != nil {
		return s.fail(ctx, run, activityClearAuthLocks, f)
	}

	s.logger.Info().
		Str("request_id", run.RequestID).
		Int("documents", report.Total()).
		Int("auth_locks", locks).
		Msg("user data deleted")

	return s.commit(ctx, run, PhaseNotifying)
}

// sendCompletionEmail notifies the user, when they can still be reached and
// this is not a retry of a previously failed request.
func (s *Saga) sendCompletionEmail(ctx context.Context, run *Run) error {
	if run.SendEmail {
		if f := s.withRetry(ctx, func() *erasure.Failure {
			if err := s.deps.Notifier.SendDeletionComplete(ctx, run.Email); err != nil {
				return erasure.Transientf("sending completion email: %v", err)
			}
			return nil
		}); f != nil {
			return s.fail(ctx, run, activitySendEmail, f)
		}
	}
	return s.commit(ctx, run, PhaseUpdatingFeed)
}

// updateFeed retracts the user's subscriptions from the feed side index.
func (s *Saga) updateFeed(ctx context.Context, run *Run) error {
	if err := s.deps.Feed.Unsubscribe(ctx, run.FiscalCode, run.PrefsMode, run.Prefs); err != nil {
		return s.fail(ctx, run, activityUpdateFeed, erasure.QueryFailure("update subscriptions feed", err))
	}
	return s.commit(ctx, run, PhaseClosing)
}

// closeRun clears the failed-request flag, marks the request CLOSED and
// releases the session. Unlock happens only here, on the success path.
func (s *Saga) closeRun(ctx context.Context, run *Run) error {
	if err := s.deps.Failed.Clear(ctx, request.ChoiceDelete, run.FiscalCode); err != nil {
		return s.fail(ctx, run, activitySetStatus, erasure.QueryFailure("clear failed request flag", err))
	}

	if f := s.transition(ctx, run.FiscalCode, request.StatusClosed, ""); f != nil {
		return s.fail(ctx, run, activitySetStatus, f)
	}

	if f := s.withRetry(ctx, func() *erasure.Failure {
		return s.deps.Sessions.Unlock(ctx, run.FiscalCode)
	}); f != nil {
		return s.fail(ctx, run, activitySessionLock, f)
	}

	if err := s.commit(ctx, run, PhaseDone); err != nil {
		return err
	}
	s.logger.Info().Str("request_id", run.RequestID).Msg("deletion saga completed")
	return nil
}

// fail escalates: the request is marked FAILED with "activity: reason", the
// failed index is flagged for the grace-period skip on retry, and the run
// stops. The session is deliberately left locked; release requires operator
// intervention.
func (s *Saga) fail(ctx context.Context, run *Run, activity string, f *erasure.Failure) error {
	reason := activity + ": " + f.Reason

	latest, err := s.deps.Requests.Latest(ctx, request.ChoiceDelete, run.FiscalCode)
	if err == nil {
		if _, tf := s.deps.Tracker.Transition(ctx, latest, request.StatusFailed, reason); tf != nil {
			s.logger.Error().Err(tf).Str("request_id", run.RequestID).Msg("recording FAILED status")
		}
	} else {
		s.logger.Error().Err(err).Str("request_id", run.RequestID).Msg("loading request to record failure")
	}

	if err := s.deps.Failed.MarkFailed(ctx, request.ChoiceDelete, run.FiscalCode, reason); err != nil {
		s.logger.Error().Err(err).Str("request_id", run.RequestID).Msg("flagging failed request")
	}

	run.Phase = PhaseFailed
	run.UpdatedAt = s.now()
	if err := s.deps.Runs.Update(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("request_id", run.RequestID).Msg("persisting failed run")
	}

	s.logger.Error().
		Str("request_id", run.RequestID).
		Str("activity", activity).
		Str("kind", string(f.Kind)).
		Msg("deletion saga failed, session remains locked")

	return f
}

// commit persists a phase change, immediately due.
func (s *Saga) commit(ctx context.Context, run *Run, next Phase) error {
	run.Phase = next
	run.WakeAt = s.now()
	run.UpdatedAt = s.now()
	if err := s.deps.Runs.Update(ctx, run); err != nil {
		return s.fail(ctx, run, activitySetStatus, erasure.QueryFailure("update saga run", err))
	}
	return nil
}

// transition appends a status version to the request record.
func (s *Saga) transition(ctx context.Context, fiscalCode string, next request.Status, reason string) *erasure.Failure {
	latest, err := s.deps.Requests.Latest(ctx, request.ChoiceDelete, fiscalCode)
	if err != nil {
		return erasure.QueryFailure("latest delete request", err)
	}
	_, f := s.deps.Tracker.Transition(ctx, latest, next, reason)
	return f
}

// withRetry retries transient failures with a mild exponential backoff.
// Typed terminal failures are never retried.
func (s *Saga) withRetry(ctx context.Context, op func() *erasure.Failure) *erasure.Failure {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryInterval
	bo.Multiplier = 1.5
	bo.MaxElapsedTime = 0

	var last *erasure.Failure
	err := backoff.Retry(func() error {
		f := op()
		if f == nil {
			last = nil
			return nil
		}
		last = f
		if f.Retryable() {
			return f
		}
		return backoff.Permanent(f)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.cfg.RetryMaxAttempts), ctx))

	if err != nil {
		return last
	}
	return nil
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}
