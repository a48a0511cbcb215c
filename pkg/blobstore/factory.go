package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// BackendType names a blob storage backend.
type BackendType string

const (
	BackendFS  BackendType = "fs"
	BackendS3  BackendType = "s3"
	BackendGCS BackendType = "gcs"
)

// NewStoreFromEnv constructs a Store from environment configuration.
//
//   - REPOMESH_BLOB_BACKEND: "fs" (default), "s3", or "gcs"
//   - REPOMESH_DATA_DIR: base directory for the fs backend (default "data")
//   - REPOMESH_BLOB_S3_BUCKET / _REGION / _ENDPOINT / _PREFIX
//   - REPOMESH_BLOB_GCS_BUCKET / _PREFIX
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	backend := BackendType(os.Getenv("REPOMESH_BLOB_BACKEND"))
	if backend == "" {
		backend = BackendFS
	}

	switch backend {
	case BackendFS:
		return newFileStoreFromEnv()
	case BackendS3:
		return newS3StoreFromEnv(ctx)
	case BackendGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("blobstore: unsupported backend %q", backend)
	}
}

func newFileStoreFromEnv() (Store, error) {
	dataDir := os.Getenv("REPOMESH_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	return NewFileStore(filepath.Join(dataDir, "blobs"))
}

func newS3StoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("REPOMESH_BLOB_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("REPOMESH_BLOB_S3_BUCKET is required for s3 storage")
	}

	region := os.Getenv("REPOMESH_BLOB_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	return NewS3Store(ctx, S3StoreConfig{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("REPOMESH_BLOB_S3_ENDPOINT"),
		Prefix:   os.Getenv("REPOMESH_BLOB_S3_PREFIX"),
	})
}
