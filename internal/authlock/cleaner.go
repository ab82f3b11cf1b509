package authlock

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/oblivio/oblivio/internal/backup"
	"github.com/oblivio/oblivio/internal/erasure"
)

// MaxBatchSize is the table store's transaction limit: at most 100 delete
// operations per batch.
const MaxBatchSize = 100

// folderAuthLock is the backup folder for lock records.
const folderAuthLock = "auth-locks"

// listPageSize bounds paginated reads of the lock partition.
const listPageSize = 100

// Cleaner backs up and removes every authentication lock record of a user.
type Cleaner struct {
	repo   Repository
	logger zerolog.Logger
}

// NewCleaner creates a new lock cleaner.
func NewCleaner(repo Repository, logger zerolog.Logger) *Cleaner {
	return &Cleaner{repo: repo, logger: logger}
}

// ListAll reads every lock record for the fiscal code, one page at a time.
func (c *Cleaner) ListAll(ctx context.Context, fiscalCode string) ([]Record, error) {
	var all []Record
	cursor := ""
	for {
		page, next, err := c.repo.List(ctx, fiscalCode, cursor, listPageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
		cursor = next
	}
}

// DeleteAll removes the given unlock codes in chunks of at most MaxBatchSize
// rows, one transaction per chunk. It succeeds only if every chunk commits;
// any failure is reported as the single generic ErrDeleteFailed.
func (c *Cleaner) DeleteAll(ctx context.Context, fiscalCode string, unlockCodes []string) error {
	for start := 0; start < len(unlockCodes); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(unlockCodes) {
			end = len(unlockCodes)
		}
		if err := c.repo.DeleteBatch(ctx, fiscalCode, unlockCodes[start:end]); err != nil {
			return ErrDeleteFailed
		}
	}
	return nil
}

// Clean backs up every lock record under the request's backup folder, then
// deletes them all. Returns how many records were processed.
func (c *Cleaner) Clean(ctx context.Context, w backup.Writer, folder, fiscalCode string) (int, *erasure.Failure) {
	records, err := c.ListAll(ctx, fiscalCode)
	if err != nil {
		return 0, erasure.QueryFailure("authentication locks by fiscal code", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	codes := make([]string, 0, len(records))
	for _, rec := range records {
		path := backup.ObjectPath(folder, folderAuthLock, rec.ID())
		data, err := json.Marshal(rec)
		if err != nil {
			return 0, erasure.BlobFailure(path, err)
		}
		if err := w.Write(ctx, path, data); err != nil {
			return 0, erasure.BlobFailure(path, err)
		}
		codes = append(codes, rec.UnlockCode)
	}

	if err := c.DeleteAll(ctx, fiscalCode, codes); err != nil {
		return 0, erasure.DeleteFailure(folderAuthLock, fiscalCode, err)
	}

	c.logger.Info().Int("records", len(records)).Msg("authentication locks backed up and deleted")
	return len(records), nil
}
