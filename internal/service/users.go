package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/model"
	"github.com/dtroode/sheetkeeper/internal/sheet"
)

// RetryPolicy bounds how often a registration is replayed after losing a
// concurrent write to the table.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	exp.MaxElapsedTime = p.MaxElapsed

	var b backoff.BackOff = exp
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}

	return backoff.WithContext(b, ctx)
}

// Users registers and authenticates users against the remote table.
// It keeps no state between calls.
type Users struct {
	tableStore model.TableStore
	retry      RetryPolicy
	logger     *logger.Logger
}

var _ model.UserService = (*Users)(nil)

func NewUsers(tableStore model.TableStore, retry RetryPolicy, logger *logger.Logger) *Users {
	return &Users{
		tableStore: tableStore,
		retry:      retry,
		logger:     logger,
	}
}

// Register appends a new user to the table. It returns model.ErrUserExists if
// the username is taken. A write that loses to a concurrent one is replayed
// from a fresh read, so the duplicate check always runs against the latest table.
func (s *Users) Register(ctx context.Context, record model.UserRecord) error {
	s.logger.Debug("Users service: starting user registration",
		"username", record.Username)

	if err := validateRegistration(record); err != nil {
		return err
	}

	attempt := 0
	op := func() error {
		attempt++

		snapshot, err := s.tableStore.Fetch(ctx)
		if errors.Is(err, model.ErrRevisionConflict) {
			return err
		}
		if err != nil {
			s.logger.Error("Users service: failed to fetch table",
				"username", record.Username,
				"error", err.Error())
			return backoff.Permanent(fmt.Errorf("failed to fetch table: %w", err))
		}

		if _, ok := snapshot.Table.Find(record.Username); ok {
			s.logger.Info("Users service: user already exists",
				"username", record.Username)
			return backoff.Permanent(model.ErrUserExists)
		}

		snapshot.Table.Append(record)

		revision, err := s.tableStore.Replace(ctx, snapshot.Table, snapshot.Revision)
		if errors.Is(err, model.ErrRevisionConflict) {
			s.logger.Warn("Users service: table changed concurrently, retrying",
				"username", record.Username,
				"base_revision", snapshot.Revision,
				"attempt", attempt)
			return err
		}
		if err != nil {
			s.logger.Error("Users service: failed to replace table",
				"username", record.Username,
				"error", err.Error())
			return backoff.Permanent(fmt.Errorf("failed to replace table: %w", err))
		}

		s.logger.Info("Users service: user registered",
			"username", record.Username,
			"revision", revision,
			"rows", snapshot.Table.Len())
		return nil
	}

	return backoff.Retry(op, s.retry.backOff(ctx))
}

// Authenticate returns the stored record of the first row matching username.
func (s *Users) Authenticate(ctx context.Context, username string) (model.UserRecord, error) {
	s.logger.Debug("Users service: starting user login",
		"username", username)

	if strings.TrimSpace(username) == "" {
		return model.UserRecord{}, fmt.Errorf("%w: username is required", model.ErrInvalidInput)
	}

	snapshot, err := s.tableStore.Fetch(ctx)
	if err != nil {
		return model.UserRecord{}, fmt.Errorf("failed to fetch table: %w", err)
	}

	record, ok := snapshot.Table.Find(username)
	if !ok {
		s.logger.Info("Users service: user not found",
			"username", username)
		return model.UserRecord{}, fmt.Errorf("user %q: %w", username, model.ErrNotFound)
	}

	return record, nil
}

// Initialize makes sure the remote table exists, creating an empty one if needed.
func (s *Users) Initialize(ctx context.Context) (model.Snapshot, error) {
	snapshot, err := s.tableStore.Fetch(ctx)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to fetch table: %w", err)
	}
	if snapshot.Revision != "" {
		return snapshot, nil
	}

	revision, err := s.tableStore.Replace(ctx, model.Table{}, "")
	if errors.Is(err, model.ErrRevisionConflict) {
		return s.tableStore.Fetch(ctx)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to create table: %w", err)
	}

	s.logger.Info("Users service: created empty table", "revision", revision)

	return model.Snapshot{Revision: revision}, nil
}

func validateRegistration(record model.UserRecord) error {
	if strings.TrimSpace(record.Username) == "" {
		return fmt.Errorf("%w: username is required", model.ErrInvalidInput)
	}
	if record.Password == "" {
		return fmt.Errorf("%w: password is required", model.ErrInvalidInput)
	}
	return sheet.ValidateRecord(record)
}
