package request

import (
	"context"
	"sync"
)

// FailedIndex is the side table flagging currently failed requests, keyed by
// (partition=choice, row=fiscalCode). A flagged request is retried without a
// grace period.
type FailedIndex interface {
	// MarkFailed upserts the failure flag with its reason.
	MarkFailed(ctx context.Context, choice Choice, fiscalCode, reason string) error

	// Clear removes the flag if present. A missing flag is not an error.
	Clear(ctx context.Context, choice Choice, fiscalCode string) error

	// IsFailed reports whether the request is currently flagged.
	IsFailed(ctx context.Context, choice Choice, fiscalCode string) (bool, error)
}

// MemoryFailedIndex is an in-memory FailedIndex for tests.
type MemoryFailedIndex struct {
	mu      sync.Mutex
	entries map[string]string

	// FailLookup makes IsFailed fail with the given error.
	FailLookup error
}

// NewMemoryFailedIndex creates an empty in-memory failed index.
func NewMemoryFailedIndex() *MemoryFailedIndex {
	return &MemoryFailedIndex{entries: make(map[string]string)}
}

// MarkFailed upserts the failure flag.
func (i *MemoryFailedIndex) MarkFailed(_ context.Context, choice Choice, fiscalCode, reason string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[key(choice, fiscalCode)] = reason
	return nil
}

// Clear removes the flag if present.
func (i *MemoryFailedIndex) Clear(_ context.Context, choice Choice, fiscalCode string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, key(choice, fiscalCode))
	return nil
}

// IsFailed reports whether the request is flagged.
func (i *MemoryFailedIndex) IsFailed(_ context.Context, choice Choice, fiscalCode string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.FailLookup != nil {
		return false, i.FailLookup
	}
	_, ok := i.entries[key(choice, fiscalCode)]
	return ok, nil
}

// Reason returns the stored failure reason, if any.
func (i *MemoryFailedIndex) Reason(choice Choice, fiscalCode string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	reason, ok := i.entries[key(choice, fiscalCode)]
	return reason, ok
}

var _ FailedIndex = (*MemoryFailedIndex)(nil)
