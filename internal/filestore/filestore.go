// Package filestore persists completed uploads either in a local directory
// or in an S3 compatible bucket.
package filestore

import (
	"context"

	"github.com/Tyrowin/chatroom/internal/config"
)

// Storage writes a finished file under name.
type Storage interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
}

// New picks the backend from cfg: a bucket selects S3, otherwise the local
// directory is used.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	if cfg.S3Bucket != "" {
		s, err := NewS3(ctx, S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	l, err := NewLocal(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return l, nil
}
