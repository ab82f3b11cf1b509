package authlock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Repository errors.
var (
	// ErrDeleteFailed is the single generic error for any batch delete
	// failure. Row-level causes (including a concurrent not-found) are
	// deliberately not surfaced; callers cannot distinguish "nothing to
	// delete" from "some rows vanished concurrently".
	ErrDeleteFailed = errors.New("could not delete the authentication lock records")
)

// Repository is the table-store access layer for lock records.
type Repository interface {
	// List returns one page of records for the fiscal code. An empty page
	// with an empty cursor means the partition is exhausted.
	List(ctx context.Context, fiscalCode, cursor string, limit int) ([]Record, string, error)

	// DeleteBatch removes the given unlock codes in a single transaction.
	// The caller guarantees len(unlockCodes) <= MaxBatchSize. Any failure,
	// including a missing row, fails the whole transaction and is reported
	// as ErrDeleteFailed.
	DeleteBatch(ctx context.Context, fiscalCode string, unlockCodes []string) error
}

// MemoryRepository is an in-memory Repository for tests. It counts batch
// calls and their sizes so chunking behavior can be asserted.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]map[string]Record

	batchSizes []int

	// FailBatch makes the nth (1-indexed) DeleteBatch call fail.
	FailBatch int

	// StrictRows makes DeleteBatch fail when any requested row is absent,
	// mirroring the table store's transactional not-found behavior.
	StrictRows bool
}

// NewMemoryRepository creates an empty in-memory lock repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]map[string]Record)}
}

// Add stores a record.
func (r *MemoryRepository) Add(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records[rec.FiscalCode] == nil {
		r.records[rec.FiscalCode] = make(map[string]Record)
	}
	r.records[rec.FiscalCode][rec.UnlockCode] = rec
}

// BatchSizes returns the size of every DeleteBatch call, in call order.
func (r *MemoryRepository) BatchSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.batchSizes))
	copy(out, r.batchSizes)
	return out
}

// Remaining returns how many records remain for the fiscal code.
func (r *MemoryRepository) Remaining(fiscalCode string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records[fiscalCode])
}

// List returns one page of records ordered by unlock code.
func (r *MemoryRepository) List(_ context.Context, fiscalCode, cursor string, limit int) ([]Record, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Record
	for code, rec := range r.records[fiscalCode] {
		if code > cursor {
			all = append(all, rec)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UnlockCode < all[j].UnlockCode })
	if len(all) > limit {
		all = all[:limit]
	}
	if len(all) == 0 {
		return nil, "", nil
	}
	return all, all[len(all)-1].UnlockCode, nil
}

// DeleteBatch removes the given unlock codes, all or nothing.
func (r *MemoryRepository) DeleteBatch(_ context.Context, fiscalCode string, unlockCodes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batchSizes = append(r.batchSizes, len(unlockCodes))
	if r.FailBatch > 0 && len(r.batchSizes) == r.FailBatch {
		return ErrDeleteFailed
	}

	if r.StrictRows {
		for _, code := range unlockCodes {
			if _, ok := r.records[fiscalCode][code]; !ok {
				return ErrDeleteFailed
			}
		}
	}
	for _, code := range unlockCodes {
		delete(r.records[fiscalCode], code)
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
