package request

import (
	"context"
	"errors"
	"sync"
)

// Repository errors.
var (
	ErrRequestNotFound = errors.New("request not found")
)

// Repository persists request versions. Inserts only; a transition is a new
// version, never an update in place.
type Repository interface {
	// Latest returns the newest version for (choice, fiscalCode), or
	// ErrRequestNotFound.
	Latest(ctx context.Context, choice Choice, fiscalCode string) (*Request, error)

	// Insert appends a new request version.
	Insert(ctx context.Context, req *Request) error
}

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu       sync.Mutex
	versions map[string][]Request

	// FailInsert makes Insert fail with the given error.
	FailInsert error
}

// NewMemoryRepository creates an empty in-memory request repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{versions: make(map[string][]Request)}
}

func key(choice Choice, fiscalCode string) string {
	return string(choice) + ":" + fiscalCode
}

// Latest returns the newest version for (choice, fiscalCode).
func (r *MemoryRepository) Latest(_ context.Context, choice Choice, fiscalCode string) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.versions[key(choice, fiscalCode)]
	if len(versions) == 0 {
		return nil, ErrRequestNotFound
	}

	latest := versions[0]
	for _, v := range versions[1:] {
		if v.UpdatedAt.After(latest.UpdatedAt) || (v.UpdatedAt.Equal(latest.UpdatedAt) && v.Version > latest.Version) {
			latest = v
		}
	}
	return &latest, nil
}

// Insert appends a new request version.
func (r *MemoryRepository) Insert(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailInsert != nil {
		return r.FailInsert
	}
	k := key(req.Choice, req.FiscalCode)
	r.versions[k] = append(r.versions[k], *req)
	return nil
}

// Versions returns every stored version for (choice, fiscalCode), in insert
// order.
func (r *MemoryRepository) Versions(choice Choice, fiscalCode string) []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.versions[key(choice, fiscalCode)]...)
}

var _ Repository = (*MemoryRepository)(nil)
