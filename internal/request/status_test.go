package request_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oblivio/oblivio/internal/erasure"
	"github.com/oblivio/oblivio/internal/request"
)

const fiscalCode = "RSSMRA80A01H501U"

func pendingRequest() *request.Request {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &request.Request{
		FiscalCode: fiscalCode,
		Choice:     request.ChoiceDelete,
		Status:     request.StatusPending,
		RequestID:  "req-1",
		Version:    0,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestStatusTracker_Transition(t *testing.T) {
	repo := request.NewMemoryRepository()
	current := pendingRequest()
	require.NoError(t, repo.Insert(context.Background(), current))

	now := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)
	tracker := request.NewStatusTracker(repo, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	next, f := tracker.Transition(context.Background(), current, request.StatusWIP, "")
	require.Nil(t, f)

	assert.Equal(t, request.StatusWIP, next.Status)
	assert.Equal(t, 1, next.Version)
	assert.Equal(t, now, next.UpdatedAt)
	assert.Equal(t, current.CreatedAt, next.CreatedAt)

	// The previous version survives: transitions append, never mutate.
	versions := repo.Versions(request.ChoiceDelete, fiscalCode)
	require.Len(t, versions, 2)
	assert.Equal(t, request.StatusPending, versions[0].Status)

	latest, err := repo.Latest(context.Background(), request.ChoiceDelete, fiscalCode)
	require.NoError(t, err)
	assert.Equal(t, request.StatusWIP, latest.Status)
}

func TestStatusTracker_Transition_RecordsReason(t *testing.T) {
	repo := request.NewMemoryRepository()
	current := pendingRequest()
	require.NoError(t, repo.Insert(context.Background(), current))

	tracker := request.NewStatusTracker(repo, zerolog.Nop())

	next, f := tracker.Transition(context.Background(), current, request.StatusFailed,
		"DeleteUserData: QUERY_FAILURE: timeout")
	require.Nil(t, f)
	assert.Equal(t, "DeleteUserData: QUERY_FAILURE: timeout", next.Reason)
}

func TestStatusTracker_Transition_InsertFailure(t *testing.T) {
	repo := request.NewMemoryRepository()
	repo.FailInsert = errors.New("connection refused")

	tracker := request.NewStatusTracker(repo, zerolog.Nop())

	_, f := tracker.Transition(context.Background(), pendingRequest(), request.StatusWIP, "")
	require.NotNil(t, f)
	assert.Equal(t, erasure.KindQueryFailure, f.Kind)
}

func TestRepository_Latest_NotFound(t *testing.T) {
	repo := request.NewMemoryRepository()

	_, err := repo.Latest(context.Background(), request.ChoiceDelete, fiscalCode)
	assert.ErrorIs(t, err, request.ErrRequestNotFound)
}

func TestFailedIndex_MarkClearLookup(t *testing.T) {
	idx := request.NewMemoryFailedIndex()
	ctx := context.Background()

	failed, err := idx.IsFailed(ctx, request.ChoiceDelete, fiscalCode)
	require.NoError(t, err)
	assert.False(t, failed)

	require.NoError(t, idx.MarkFailed(ctx, request.ChoiceDelete, fiscalCode, "DeleteUserData: timeout"))

	failed, err = idx.IsFailed(ctx, request.ChoiceDelete, fiscalCode)
	require.NoError(t, err)
	assert.True(t, failed)

	reason, ok := idx.Reason(request.ChoiceDelete, fiscalCode)
	require.True(t, ok)
	assert.Equal(t, "DeleteUserData: timeout", reason)

	// Marking again overwrites the reason.
	require.NoError(t, idx.MarkFailed(ctx, request.ChoiceDelete, fiscalCode, "SetUserSessionLock: 502"))
	reason, _ = idx.Reason(request.ChoiceDelete, fiscalCode)
	assert.Equal(t, "SetUserSessionLock: 502", reason)

	// Clearing is idempotent.
	require.NoError(t, idx.Clear(ctx, request.ChoiceDelete, fiscalCode))
	require.NoError(t, idx.Clear(ctx, request.ChoiceDelete, fiscalCode))

	failed, err = idx.IsFailed(ctx, request.ChoiceDelete, fiscalCode)
	require.NoError(t, err)
	assert.False(t, failed)
}
