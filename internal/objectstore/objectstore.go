package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"viralforge/internal/config"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Store persists production artifacts under slash-separated keys.
type Store interface {
	// PutFile uploads the local file at src under key and returns its URI.
	PutFile(ctx context.Context, key, src string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	URI(key string) string
}

// ProductionKey builds the key for an artifact of job.
func ProductionKey(jobID string, parts ...string) string {
	elems := append([]string{"productions", jobID}, parts...)
	return path.Join(elems...)
}

// Open builds the store selected by cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", config.StorageFS:
		return NewFS(cfg.Storage.Root)
	case config.StorageS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.Storage.Bucket,
			Prefix:    cfg.Storage.Prefix,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
		}, logger)
	default:
		return nil, fmt.Errorf("objectstore: unknown backend %q", cfg.Storage.Backend)
	}
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("objectstore: empty key")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("objectstore: invalid key %q", key)
	}
	return cleaned, nil
}
