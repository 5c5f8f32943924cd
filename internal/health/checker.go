// Package health reports whether the table store can be reached.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/sheetkeeper/internal/model"
)

var _ model.HealthChecker = (*Checker)(nil)

// Checker probes the blob store with a read. A store that answers "not
// found" is reachable and therefore healthy.
type Checker struct {
	store   model.BlobStore
	timeout time.Duration
}

func NewChecker(store model.BlobStore, timeout time.Duration) *Checker {
	return &Checker{store: store, timeout: timeout}
}

func (c *Checker) Check(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	_, err := c.store.Get(ctx)
	if err == nil || errors.Is(err, model.ErrNotFound) {
		return nil
	}

	return fmt.Errorf("table store unavailable: %w", err)
}
