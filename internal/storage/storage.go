// Package storage selects and constructs a model.Backend from configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facelocker/facelocker-server/internal/config"
	"github.com/facelocker/facelocker-server/internal/model"
	"github.com/facelocker/facelocker-server/internal/storage/azure"
	"github.com/facelocker/facelocker-server/internal/storage/local"
	"github.com/facelocker/facelocker-server/internal/storage/s3"
)

// NewBackend builds the storage backend named by cfg.Backend.
func NewBackend(ctx context.Context, cfg *config.Storage) (model.Backend, error) {
	switch cfg.Backend {
	case "local":
		b, err := local.New(cfg.DatasetDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local backend: %w", err)
		}
		return b, nil

	case "s3":
		mc, err := minio.New(cfg.S3.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
			Secure: cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		b, err := s3.NewClient(ctx, mc, cfg.S3.Bucket, cfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 backend: %w", err)
		}
		return b, nil

	case "azure":
		b, err := azure.NewClient(ctx, cfg.Azure.ConnectionString, cfg.Azure.Container, cfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure backend: %w", err)
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
