package backup

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSWriter writes backup objects to a Google Cloud Storage bucket.
type GCSWriter struct {
	bucket *storage.BucketHandle
}

// NewGCSWriter creates a writer over the given bucket.
func NewGCSWriter(client *storage.Client, bucket string) *GCSWriter {
	return &GCSWriter{bucket: client.Bucket(bucket)}
}

// Write stores data at path, overwriting any existing object.
func (w *GCSWriter) Write(ctx context.Context, path string, data []byte) error {
	obj := w.bucket.Object(path)
	wc := obj.NewWriter(ctx)
	wc.ContentType = "application/json"

	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write backup object %s: %w", path, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("commit backup object %s: %w", path, err)
	}
	return nil
}

var _ Writer = (*GCSWriter)(nil)
