package saga_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oblivio/oblivio/internal/authlock"
	"github.com/oblivio/oblivio/internal/backup"
	"github.com/oblivio/oblivio/internal/erasure"
	"github.com/oblivio/oblivio/internal/feed"
	"github.com/oblivio/oblivio/internal/notify"
	"github.com/oblivio/oblivio/internal/request"
	"github.com/oblivio/oblivio/internal/saga"
	"github.com/oblivio/oblivio/internal/sessionlock"
	"github.com/oblivio/oblivio/internal/userdata"
)

const (
	fiscalCode = "RSSMRA80A01H501U"
	requestID  = "req-1"
)

// fakeSessions records lock and unlock calls and supports fault injection.
type fakeSessions struct {
	mu       sync.Mutex
	locks    int
	unlocks  int
	failLock *erasure.Failure
}

func (s *fakeSessions) Lock(_ context.Context, _ string) *erasure.Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLock != nil {
		return s.failLock
	}
	s.locks++
	return nil
}

func (s *fakeSessions) Unlock(_ context.Context, _ string) *erasure.Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocks++
	return nil
}

var _ saga.SessionLocker = (*fakeSessions)(nil)

// clock is a mutable test clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture wires a saga over in-memory collaborators.
type fixture struct {
	saga     *saga.Saga
	clock    *clock
	runs     *saga.MemoryRepository
	requests *request.MemoryRepository
	failed   *request.MemoryFailedIndex
	store    *userdata.MemoryStore
	writer   *backup.MemoryWriter
	locks    *authlock.MemoryRepository
	sessions *fakeSessions
	notifier *notify.MemorySender
	feed     *feed.MemoryUpdater
}

const (
	gracePeriod     = 7 * 24 * time.Hour
	downloadRecheck = time.Hour
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}

	f := &fixture{
		clock:    clk,
		runs:     saga.NewMemoryRepository(),
		requests: request.NewMemoryRepository(),
		failed:   request.NewMemoryFailedIndex(),
		store:    userdata.NewMemoryStore(),
		writer:   backup.NewMemoryWriter(),
		locks:    authlock.NewMemoryRepository(),
		sessions: &fakeSessions{},
		notifier: notify.NewMemorySender(),
		feed:     feed.NewMemoryUpdater(),
	}

	eraser := erasure.NewService(erasure.ServiceConfig{
		Store:  f.store,
		Writer: f.writer,
		Logger: zerolog.Nop(),
	})
	tracker := request.NewStatusTracker(f.requests, zerolog.Nop()).WithClock(clk.Now)

	f.saga = saga.New(saga.Config{
		GracePeriod:     gracePeriod,
		DownloadRecheck: downloadRecheck,
		RetryInterval:   time.Millisecond,
	}, saga.Deps{
		Runs:     f.runs,
		Requests: f.requests,
		Tracker:  tracker,
		Failed:   f.failed,
		Store:    f.store,
		Eraser:   eraser,
		Locks:    authlock.NewCleaner(f.locks, zerolog.Nop()),
		Sessions: f.sessions,
		Notifier: f.notifier,
		Feed:     f.feed,
		Writer:   f.writer,
		Logger:   zerolog.Nop(),
	}).WithClock(clk.Now)

	return f
}

// seedRequest inserts the PENDING delete request the saga operates on.
func (f *fixture) seedRequest(t *testing.T) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.requests.Insert(context.Background(), &request.Request{
		FiscalCode: fiscalCode,
		Choice:     request.ChoiceDelete,
		Status:     request.StatusPending,
		RequestID:  requestID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

// seedProfile adds a deletable profile with a reachable email address.
func (f *fixture) seedProfile() {
	f.store.AddProfile(userdata.Profile{
		FiscalCode:       fiscalCode,
		Version:          1,
		Email:            "mario.rossi@example.com",
		IsEmailValidated: true,
		IsEmailEnabled:   true,
		PreferencesMode:  userdata.ModeManual,
	})
	f.store.SetServicePreferences(fiscalCode, []userdata.ServicePreference{
		{ServiceID: "svc-1", IsInboxEnabled: true},
		{ServiceID: "svc-2", IsInboxEnabled: true},
	})
}

func (f *fixture) latestStatus(t *testing.T) request.Status {
	t.Helper()
	latest, err := f.requests.Latest(context.Background(), request.ChoiceDelete, fiscalCode)
	require.NoError(t, err)
	return latest.Status
}

func TestSaga_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.seedRequest(t)
	f.seedProfile()
	ctx := context.Background()

	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))

	// Nothing happens before the grace period elapses.
	f.saga.Tick(ctx, 10)
	assert.Equal(t, 0, f.sessions.locks)
	assert.Equal(t, 1, f.store.Remaining())
	assert.Equal(t, request.StatusPending, f.latestStatus(t))

	f.clock.Advance(gracePeriod)
	f.saga.Tick(ctx, 10)

	run, err := f.runs.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseDone, run.Phase)

	assert.Equal(t, 1, f.sessions.locks)
	assert.Equal(t, 1, f.sessions.unlocks)
	assert.Equal(t, 0, f.store.Remaining())
	assert.Equal(t, request.StatusClosed, f.latestStatus(t))
	assert.Equal(t, []string{"mario.rossi@example.com"}, f.notifier.Sent())

	entries := f.feed.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "svc-1", entries[0].ServiceID)
	assert.Equal(t, "svc-2", entries[1].ServiceID)

	// The request record passed through WIP on its way to CLOSED.
	versions := f.requests.Versions(request.ChoiceDelete, fiscalCode)
	require.Len(t, versions, 3)
	assert.Equal(t, request.StatusWIP, versions[1].Status)
}

func TestSaga_Start_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fail := f.saga.Start(ctx, requestID, "not-a-fiscal-code")
	require.NotNil(t, fail)
	assert.Equal(t, erasure.KindInvalidInput, fail.Kind)

	fail = f.saga.Start(ctx, "", fiscalCode)
	require.NotNil(t, fail)
	assert.Equal(t, erasure.KindInvalidInput, fail.Kind)

	// No run, no status changes, no side effects.
	_, err := f.runs.Get(ctx, requestID)
	assert.ErrorIs(t, err, saga.ErrRunNotFound)
}

func TestSaga_Start_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.seedRequest(t)
	ctx := context.Background()

	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))
	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))

	due, err := f.runs.Due(ctx, f.clock.Now().Add(gracePeriod), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestSaga_AbortDuringGracePeriod(t *testing.T) {
	f := newFixture(t)
	f.seedRequest(t)
	f.seedProfile()
	ctx := context.Background()

	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))
	f.clock.Advance(time.Hour)
	require.Nil(t, f.saga.Abort(ctx, requestID))

	// The abort takes effect without waiting out the grace period.
	f.saga.Tick(ctx, 10)

	run, err := f.runs.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseDone, run.Phase)
	assert.Equal(t, request.StatusAborted, f.latestStatus(t))

	// Nothing was locked, deleted or sent.
	assert.Equal(t, 0, f.sessions.locks)
	assert.Equal(t, 1, f.store.Remaining())
	assert.Empty(t, f.notifier.Sent())
	assert.Equal(t, 0, f.writer.Count())
}

func TestSaga_AbortAfterDeletionStarted(t *testing.T) {
	f := newFixture(t)
	f.seedRequest(t)
	f.seedProfile()
	ctx := context.Background()

	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))
	f.clock.Advance(gracePeriod)
	f.saga.Tick(ctx, 10)

	fail := f.saga.Abort(ctx, requestID)
	require.NotNil(t, fail)
	assert.Equal(t, erasure.KindInvalidInput, fail.Kind)
}

func TestSaga_RetryOfFailedSkipsGracePeriod(t *testing.T) {
	f := newFixture(t)
	f.seedRequest(t)
	f.seedProfile()
	ctx := context.Background()

	require.NoError(t, f.failed.MarkFailed(ctx, request.ChoiceDelete, fiscalCode, "DeleteUserData: timeout"))

	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))

	// No grace period: the first tick runs the whole deletion.
	f.saga.Tick(ctx, 10)

	run, err := f.runs.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseDone, run.Phase)
	assert.Equal(t, 0, f.store.Remaining())
	assert.Equal(t, request.StatusClosed, f.latestStatus(t))

	// A retry never re-sends the completion email.
	assert.Empty(t, f.notifier.Sent())

	// Success clears the failed flag.
	failed, err := f.failed.IsFailed(ctx, request.ChoiceDelete, fiscalCode)
	require.NoError(t, err)
	assert.False(t, failed)
}

func TestSaga_WaitsForConcurrentDownload(t *testing.T) {
	f := newFixture(t)
	f.seedRequest(t)
	f.seedProfile()
	ctx := context.Background()

	now := f.clock.Now()
	require.NoError(t, f.requests.Insert(ctx, &request.Request{
		FiscalCode: fiscalCode,
		Choice:     request.ChoiceDownload,
		Status:     request.StatusWIP,
		RequestID:  "req-dl",
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))
	f.clock.Advance(gracePeriod)
	f.saga.Tick(ctx, 10)

	// The session is locked but deletion holds for the download.
	run, err := f.runs.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseWaitingDownload, run.Phase)
	assert.Equal(t, 1, f.sessions.locks)
	assert.Equal(t, 1, f.store.Remaining())

	// Still waiting while the download is in flight.
	f.clock.Advance(downloadRecheck)
	f.saga.Tick(ctx, 10)
	run, err = f.runs.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseWaitingDownload, run.Phase)

	// Download closes; the next re-check proceeds to deletion.
	dl, err := f.requests.Latest(ctx, request.ChoiceDownload, fiscalCode)
	require.NoError(t, err)
	tracker := request.NewStatusTracker(f.requests, zerolog.Nop()).WithClock(f.clock.Now)
	_, tf := tracker.Transition(ctx, dl, request.StatusClosed, "")
	require.Nil(t, tf)

	f.clock.Advance(downloadRecheck)
	f.saga.Tick(ctx, 10)

	run, err = f.runs.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseDone, run.Phase)
	assert.Equal(t, 0, f.store.Remaining())
}

func TestSaga_DeletionFailureEscalates(t *testing.T) {
	f := newFixture(t)
	f.seedRequest(t)
	f.seedProfile()
	f.store.AddMessage(userdata.Message{FiscalCode: fiscalCode, MessageID: "msg-1"})
	f.store.FailDeleteID = "msg-1"
	ctx := context.Background()

	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))
	f.clock.Advance(gracePeriod)
	f.saga.Tick(ctx, 10)

	run, err := f.runs.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseFailed, run.Phase)

	latest, err := f.requests.Latest(ctx, request.ChoiceDelete, fiscalCode)
	require.NoError(t, err)
	assert.Equal(t, request.StatusFailed, latest.Status)
	assert.Contains(t, latest.Reason, "DeleteUserData:")

	// The failed flag is set so a retry skips the grace period.
	failed, err := f.failed.IsFailed(ctx, request.ChoiceDelete, fiscalCode)
	require.NoError(t, err)
	assert.True(t, failed)

	// The session stays locked until an operator intervenes.
	assert.Equal(t, 1, f.sessions.locks)
	assert.Equal(t, 0, f.sessions.unlocks)

	// No completion email for a failed deletion.
	assert.Empty(t, f.notifier.Sent())
}

func TestSaga_SessionLockFailureEscalates(t *testing.T) {
	f := newFixture(t)
	f.seedRequest(t)
	f.seedProfile()
	f.sessions.failLock = erasure.Transientf("session api unavailable")
	ctx := context.Background()

	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))
	f.clock.Advance(gracePeriod)
	f.saga.Tick(ctx, 10)

	run, err := f.runs.Get(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, saga.PhaseFailed, run.Phase)

	latest, err := f.requests.Latest(ctx, request.ChoiceDelete, fiscalCode)
	require.NoError(t, err)
	assert.Equal(t, request.StatusFailed, latest.Status)
	assert.Contains(t, latest.Reason, "SetUserSessionLock:")

	// Nothing was deleted.
	assert.Equal(t, 1, f.store.Remaining())
	assert.Equal(t, 0, f.writer.Count())
}

func TestSaga_LegacyAccountFeedEntry(t *testing.T) {
	f := newFixture(t)
	f.seedRequest(t)
	f.store.AddProfile(userdata.Profile{
		FiscalCode:      fiscalCode,
		Version:         1,
		PreferencesMode: userdata.ModeLegacy,
	})
	ctx := context.Background()

	require.Nil(t, f.saga.Start(ctx, requestID, fiscalCode))
	f.clock.Advance(gracePeriod)
	f.saga.Tick(ctx, 10)

	entries := f.feed.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "*", entries[0].ServiceID)

	// No validated email address, no completion email.
	assert.Empty(t, f.notifier.Sent())
}

func TestSaga_Abort_UnknownRun(t *testing.T) {
	f := newFixture(t)

	fail := f.saga.Abort(context.Background(), "req-unknown")
	require.NotNil(t, fail)
	assert.Equal(t, erasure.KindNotFound, fail.Kind)
}

var _ saga.SessionLocker = (*sessionlock.Manager)(nil)
