// Package archive keeps raw uploads and cleaned batch files.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rpattn/incidentetl/internal/config"
)

// Driver names a storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("archive object not found")

// Store persists batch artifacts by key. Keys use forward slashes.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Driver() Driver
}

// SourceKey is the key of the raw upload for a batch.
func SourceKey(batchID, ext string) string {
	return path.Join(batchID, "source"+strings.ToLower(ext))
}

// CleanKey is the key of the cleaned CSV for a batch.
func CleanKey(batchID string) string {
	return path.Join(batchID, "clean.csv")
}

// Open builds the store selected by cfg. The "none" driver returns a nil
// Store, which callers treat as archiving disabled.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return NewFSStore(cfg.FSRoot)
	case DriverS3:
		return NewS3Store(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			KeyPrefix: cfg.S3KeyPrefix,
		})
	case DriverMemory:
		return NewMemoryStore(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", errors.New("invalid absolute key")
	}
	clean := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", errors.New("invalid key traversal")
	}
	return clean, nil
}
