package authlock_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oblivio/oblivio/internal/authlock"
	"github.com/oblivio/oblivio/internal/backup"
	"github.com/oblivio/oblivio/internal/erasure"
)

const fiscalCode = "RSSMRA80A01H501U"

func seedLocks(repo *authlock.MemoryRepository, n int) {
	for i := 0; i < n; i++ {
		repo.Add(authlock.Record{
			FiscalCode: fiscalCode,
			UnlockCode: fmt.Sprintf("%09d", i),
		})
	}
}

func TestCleaner_Clean(t *testing.T) {
	repo := authlock.NewMemoryRepository()
	writer := backup.NewMemoryWriter()
	seedLocks(repo, 3)

	cleaner := authlock.NewCleaner(repo, zerolog.Nop())

	n, f := cleaner.Clean(context.Background(), writer, "req-1-100", fiscalCode)
	require.Nil(t, f)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, writer.Count())
	assert.Equal(t, 0, repo.Remaining(fiscalCode))

	_, ok := writer.Object("req-1-100/auth-locks/" + fiscalCode + "-000000000.json")
	assert.True(t, ok)
}

func TestCleaner_Clean_NoLocks(t *testing.T) {
	repo := authlock.NewMemoryRepository()
	writer := backup.NewMemoryWriter()

	cleaner := authlock.NewCleaner(repo, zerolog.Nop())

	n, f := cleaner.Clean(context.Background(), writer, "req-1-100", fiscalCode)
	require.Nil(t, f)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, writer.Count())
}

func TestCleaner_DeleteAll_Chunks(t *testing.T) {
	tests := []struct {
		records     int
		wantBatches []int
	}{
		{1, []int{1}},
		{100, []int{100}},
		{101, []int{100, 1}},
		{250, []int{100, 100, 50}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d records", tt.records), func(t *testing.T) {
			repo := authlock.NewMemoryRepository()
			seedLocks(repo, tt.records)

			cleaner := authlock.NewCleaner(repo, zerolog.Nop())

			records, err := cleaner.ListAll(context.Background(), fiscalCode)
			require.NoError(t, err)
			require.Len(t, records, tt.records)

			codes := make([]string, len(records))
			for i, rec := range records {
				codes[i] = rec.UnlockCode
			}

			require.NoError(t, cleaner.DeleteAll(context.Background(), fiscalCode, codes))
			assert.Equal(t, tt.wantBatches, repo.BatchSizes())
			assert.Equal(t, 0, repo.Remaining(fiscalCode))
		})
	}
}

func TestCleaner_DeleteAll_BatchFailureIsGeneric(t *testing.T) {
	repo := authlock.NewMemoryRepository()
	seedLocks(repo, 150)
	repo.FailBatch = 2

	cleaner := authlock.NewCleaner(repo, zerolog.Nop())

	records, err := cleaner.ListAll(context.Background(), fiscalCode)
	require.NoError(t, err)

	codes := make([]string, len(records))
	for i, rec := range records {
		codes[i] = rec.UnlockCode
	}

	err = cleaner.DeleteAll(context.Background(), fiscalCode, codes)
	assert.ErrorIs(t, err, authlock.ErrDeleteFailed)

	// The first chunk went through; the failed one did not.
	assert.Equal(t, 50, repo.Remaining(fiscalCode))
}

func TestCleaner_Clean_BackupFailure(t *testing.T) {
	repo := authlock.NewMemoryRepository()
	writer := backup.NewMemoryWriter()
	seedLocks(repo, 2)

	writer.FailPath = "req-1-100/auth-locks/" + fiscalCode + "-000000001.json"

	cleaner := authlock.NewCleaner(repo, zerolog.Nop())

	_, f := cleaner.Clean(context.Background(), writer, "req-1-100", fiscalCode)
	require.NotNil(t, f)
	assert.Equal(t, erasure.KindBlobFailure, f.Kind)

	// No lock record is deleted until every record is backed up.
	assert.Equal(t, 2, repo.Remaining(fiscalCode))
}
