// Package backup provides durable object storage for serialized user data.
// One JSON object is written per entity version before that version may be
// deleted.
package backup

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Writer writes one serialized entity to durable object storage under a
// deterministic path. Writes are idempotent: writing the same path twice
// overwrites the previous object.
type Writer interface {
	Write(ctx context.Context, path string, data []byte) error
}

// Folder returns the request-scoped backup folder name. The timestamp is
// taken once at saga start so every object of a run lands under one prefix.
func Folder(requestID string, start time.Time) string {
	return requestID + "-" + strconv.FormatInt(start.Unix(), 10)
}

// ObjectPath returns the backup object path for one entity version:
// <folder>/<entityFolder>/<id>.json.
func ObjectPath(folder, entityFolder, id string) string {
	return fmt.Sprintf("%s/%s/%s.json", folder, entityFolder, id)
}
