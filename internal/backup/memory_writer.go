package backup

import (
	"context"
	"errors"
	"sync"
)

// MemoryWriter is an in-memory Writer. Intended for tests; records the write
// order so call-ordering invariants can be asserted.
type MemoryWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
	order   []string

	// FailPath makes writes to that exact path fail.
	FailPath string
}

// NewMemoryWriter creates an empty in-memory writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{objects: make(map[string][]byte)}
}

// ErrWriteFailed is returned for paths configured to fail.
var ErrWriteFailed = errors.New("backup write failed")

// Write stores data at path.
func (w *MemoryWriter) Write(_ context.Context, path string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.FailPath != "" && path == w.FailPath {
		return ErrWriteFailed
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	w.objects[path] = buf
	w.order = append(w.order, path)
	return nil
}

// Object returns the stored object and whether it exists.
func (w *MemoryWriter) Object(path string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.objects[path]
	return data, ok
}

// Paths returns every written path in write order.
func (w *MemoryWriter) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

// Count returns the number of stored objects.
func (w *MemoryWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.objects)
}

var _ Writer = (*MemoryWriter)(nil)
