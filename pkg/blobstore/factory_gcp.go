//go:build gcp

package blobstore

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("REPOMESH_BLOB_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("REPOMESH_BLOB_GCS_BUCKET is required for gcs storage")
	}
	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("REPOMESH_BLOB_GCS_PREFIX"),
	})
}
