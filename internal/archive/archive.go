// Package archive stores raw provider payloads in Google Cloud Storage so a
// batch can be replayed or audited after the fact.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// uploadTimeout bounds a single payload upload.
const uploadTimeout = 2 * time.Minute

// GCSArchive writes one object per batch under
// gs://<bucket>/raw/<yyyy>/<mm>/<batch-id>.json.
// It assumes Application Default Credentials are configured.
type GCSArchive struct {
	bucket string
}

// NewGCSArchive creates an archive writing into the given bucket.
func NewGCSArchive(bucket string) *GCSArchive {
	return &GCSArchive{bucket: bucket}
}

// Archive uploads the raw payload and returns the object's gs:// URI.
func (a *GCSArchive) Archive(ctx context.Context, batchID string, raw []byte) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	now := time.Now().UTC()
	objectName := fmt.Sprintf("raw/%04d/%02d/%s.json", now.Year(), now.Month(), batchID)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, bytes.NewReader(raw)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy payload to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close GCS writer: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}
