package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// ResultsArchive keeps a copy of every accepted function-run results payload
// in the object store, keyed by function run id and report time.
type ResultsArchive struct {
	client *minio.Client
	bucket string
}

func NewResultsArchive(client *minio.Client, bucket string) (*ResultsArchive, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &ResultsArchive{client: client, bucket: bucket}, nil
}

func (a *ResultsArchive) ArchiveResults(ctx context.Context, functionRunID string, payload []byte) (string, error) {
	if a == nil || a.client == nil {
		return "", fmt.Errorf("results archive not initialized")
	}
	functionRunID = strings.TrimSpace(functionRunID)
	if functionRunID == "" {
		return "", fmt.Errorf("function run id is required")
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("payload is required")
	}

	key := fmt.Sprintf("function-runs/%s/%d.json", functionRunID, time.Now().UTC().UnixNano())
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	if _, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), opts); err != nil {
		return "", fmt.Errorf("archive results: %w", err)
	}
	return key, nil
}
