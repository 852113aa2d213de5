// Package filestore is the remote folder store the job reads spreadsheets
// from and writes exports and the run log to.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hri/contact-sync/internal/config"
)

// ErrNotFound is returned when the named file does not exist.
var ErrNotFound = errors.New("file not found")

// FileInfo describes a stored file.
type FileInfo struct {
	Name     string
	Size     int64
	Modified time.Time
}

// Store reads and writes named files inside folders.
type Store interface {
	// List returns the files directly inside folder, sorted by name.
	List(ctx context.Context, folder string) ([]FileInfo, error)
	Get(ctx context.Context, folder, name string) ([]byte, error)
	// Put creates or replaces a file.
	Put(ctx context.Context, folder, name string, data []byte) error
	Exists(ctx context.Context, folder, name string) (bool, error)
}

// New builds the store selected by cfg.Type ("local" or "s3").
func New(ctx context.Context, cfg config.FileStoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocal(cfg.LocalPath)
	case "s3":
		return NewS3(ctx, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile())
	default:
		return nil, fmt.Errorf("unknown file store type %q", cfg.Type)
	}
}
