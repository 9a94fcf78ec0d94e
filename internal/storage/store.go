package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the object storage behind the self-hosted media hosts. R2Client
// and FileStore implement it.
type Store interface {
	ObjectExists(ctx context.Context, key string) (bool, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) (*UploadResult, error)
	GetPublicURL(key string) string
	Delete(ctx context.Context, key string) error
}

type UploadResult struct {
	Key         string
	URL         string
	ETag        string
	Size        int64
	ContentType string
}
