package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oblivio/oblivio/internal/request"
	"github.com/oblivio/oblivio/internal/saga"
	"github.com/oblivio/oblivio/internal/worker"
)

// newIdleSaga returns a saga with no collaborators that matter: the run
// store is empty, so every tick is a no-op.
func newIdleSaga() *saga.Saga {
	return saga.New(saga.Config{}, saga.Deps{
		Runs:     saga.NewMemoryRepository(),
		Requests: request.NewMemoryRepository(),
		Failed:   request.NewMemoryFailedIndex(),
		Logger:   zerolog.Nop(),
	})
}

func TestResumeLoop_StopsOnCancel(t *testing.T) {
	loop := worker.NewResumeLoop(worker.ResumeConfig{
		Saga:     newIdleSaga(),
		Interval: 5 * time.Millisecond,
		Batch:    10,
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resume loop did not stop after cancel")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg := worker.ConfigFromEnv()

	assert.Equal(t, 7*24*time.Hour, cfg.GracePeriod)
	assert.Equal(t, time.Hour, cfg.DownloadRecheck)
	assert.Equal(t, 30*time.Second, cfg.ResumeInterval)
	assert.Equal(t, 50, cfg.ResumeBatch)
	require.NotEmpty(t, cfg.BackupBucket)
	require.NotEmpty(t, cfg.PubSubSubscription)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("GRACE_PERIOD_DAYS", "0")
	t.Setenv("DOWNLOAD_RECHECK_INTERVAL", "10m")
	t.Setenv("BACKUP_BUCKET", "test-bucket")

	cfg := worker.ConfigFromEnv()

	assert.Equal(t, time.Duration(0), cfg.GracePeriod)
	assert.Equal(t, 10*time.Minute, cfg.DownloadRecheck)
	assert.Equal(t, "test-bucket", cfg.BackupBucket)
}
