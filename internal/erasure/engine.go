package erasure

import (
	"context"
	"encoding/json"

	"github.com/oblivio/oblivio/internal/backup"
)

// pipeline describes one backup-then-delete traversal over a single entity
// type. Pages are read strictly sequentially; within a page, items are
// processed in order so the first failure aborts the traversal without
// touching any later item.
type pipeline[T any] struct {
	// entity is the backup folder name for this entity type, also used in
	// failure reasons.
	entity string

	// query names the page read for QUERY_FAILURE reporting.
	query string

	// next returns the next page, or an empty page when exhausted. The
	// engine never has more than one outstanding page read.
	next func(ctx context.Context) ([]T, error)

	// id returns the backup object identifier of an item.
	id func(T) string

	// pre, when set, runs before an item is backed up. It is how child
	// entities are fully processed before their parent is touched.
	pre func(ctx context.Context, item T) *Failure

	// remove deletes the item from the document store. Called only after
	// the item's backup write succeeded.
	remove func(ctx context.Context, item T) error
}

// backupAndDelete walks the pipeline page by page: for every item, process
// children (pre), write the backup object, and only then delete the
// document. The first failure anywhere aborts the remaining traversal and is
// returned as a typed failure. On success the full ordered list of processed
// items is returned.
func backupAndDelete[T any](ctx context.Context, w backup.Writer, folder string, p pipeline[T]) ([]T, *Failure) {
	var processed []T
	for {
		page, err := p.next(ctx)
		if err != nil {
			return nil, QueryFailure(p.query, err)
		}
		if len(page) == 0 {
			return processed, nil
		}

		for _, item := range page {
			if p.pre != nil {
				if f := p.pre(ctx, item); f != nil {
					return nil, f
				}
			}

			path := backup.ObjectPath(folder, p.entity, p.id(item))
			data, err := json.Marshal(item)
			if err != nil {
				return nil, BlobFailure(path, err)
			}
			if err := w.Write(ctx, path, data); err != nil {
				return nil, BlobFailure(path, err)
			}
			if err := p.remove(ctx, item); err != nil {
				return nil, DeleteFailure(p.entity, p.id(item), err)
			}
			processed = append(processed, item)
		}
	}
}

// pager adapts a cursor-based page read into the stateful next function the
// engine consumes. Once an empty page is seen the pager stays exhausted.
func pager[T any](limit int, fetch func(ctx context.Context, cursor string, limit int) ([]T, string, error)) func(ctx context.Context) ([]T, error) {
	cursor := ""
	done := false
	return func(ctx context.Context) ([]T, error) {
		if done {
			return nil, nil
		}
		page, next, err := fetch(ctx, cursor, limit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			done = true
			return nil, nil
		}
		cursor = next
		return page, nil
	}
}
