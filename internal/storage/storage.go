// Package storage builds the blob store selected by configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/dtroode/sheetkeeper/internal/config"
	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/model"
	"github.com/dtroode/sheetkeeper/internal/storage/github"
	"github.com/dtroode/sheetkeeper/internal/storage/memory"
	"github.com/dtroode/sheetkeeper/internal/storage/minio"
	"github.com/dtroode/sheetkeeper/internal/storage/s3"
)

// NewBlobStore returns the store holding the table object.
func NewBlobStore(ctx context.Context, cfg *config.Config, logger *logger.Logger) (model.BlobStore, error) {
	switch cfg.StoreBackend {
	case config.BackendGitHub:
		if cfg.GitHub.Token == "" {
			logger.Warn("Storage: GITHUB_TOKEN is not set, the table can only be read")
		}
		return github.NewClient(ctx, github.Options{
			APIURL:        cfg.GitHub.APIURL,
			Owner:         cfg.GitHub.Owner,
			Repo:          cfg.GitHub.Repo,
			Branch:        cfg.GitHub.Branch,
			Path:          cfg.Table.ObjectName,
			Token:         cfg.GitHub.Token,
			Mode:          github.WriteMode(cfg.GitHub.WriteMode),
			CommitMessage: cfg.GitHub.CommitMessage,
			Timeout:       cfg.GitHub.Timeout,
		}, logger), nil
	case config.BackendMinio:
		client, err := minio.Connect(ctx, minio.Options{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Object:    cfg.Table.ObjectName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio store: %w", err)
		}
		return client, nil
	case config.BackendS3:
		client, err := s3.Connect(ctx, s3.Options{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
			Bucket:       cfg.S3.Bucket,
			Object:       cfg.Table.ObjectName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 store: %w", err)
		}
		return client, nil
	case config.BackendMemory:
		logger.Warn("Storage: using in-memory table store, data is lost on exit")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
