// Package memory keeps the table object in process memory with the same
// conditional-write contract as the remote backends. It backs local runs and tests.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"

	"github.com/dtroode/sheetkeeper/internal/model"
)

var _ model.BlobStore = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	data     []byte
	revision string
	exists   bool
	writes   int
}

func NewStore() *Store {
	return &Store{}
}

// Get returns a copy of the stored object.
func (s *Store) Get(_ context.Context) (model.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists {
		return model.Blob{}, model.ErrNotFound
	}
	return model.Blob{Data: slices.Clone(s.data), Revision: s.revision}, nil
}

// Put stores data if the object is still at baseRevision.
func (s *Store) Put(_ context.Context, data []byte, baseRevision string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revision != baseRevision {
		return "", fmt.Errorf("%w: expected %q, current %q", model.ErrRevisionConflict, baseRevision, s.revision)
	}

	s.writes++
	sum := sha256.Sum256(append([]byte(fmt.Sprintf("%d:", s.writes)), data...))
	s.data = slices.Clone(data)
	s.revision = hex.EncodeToString(sum[:8])
	s.exists = true

	return s.revision, nil
}

// Writes returns how many puts succeeded.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
