// Package app assembles the table store and users service from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/dtroode/sheetkeeper/internal/config"
	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/metrics"
	"github.com/dtroode/sheetkeeper/internal/model"
	"github.com/dtroode/sheetkeeper/internal/repository/table"
	"github.com/dtroode/sheetkeeper/internal/service"
	"github.com/dtroode/sheetkeeper/internal/sheet"
	"github.com/dtroode/sheetkeeper/internal/storage"
)

// Components are the parts shared by the server and the CLI.
type Components struct {
	Store model.BlobStore
	Users *service.Users
}

// Build creates the configured blob store, wraps it with metrics when m is
// not nil, and puts the table repository and users service on top.
func Build(ctx context.Context, cfg *config.Config, logger *logger.Logger, m *metrics.Metrics) (*Components, error) {
	store, err := storage.NewBlobStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize table store: %w", err)
	}
	if m != nil {
		store = metrics.InstrumentStore(store, cfg.StoreBackend, m)
	}

	repo := table.NewRepository(store, sheet.NewCodec(cfg.Table.SheetName), cfg.Table.InitOnMissing, logger)
	users := service.NewUsers(repo, service.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxElapsed:      cfg.Retry.MaxElapsed,
	}, logger)

	return &Components{Store: store, Users: users}, nil
}
