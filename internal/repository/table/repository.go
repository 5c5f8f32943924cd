package table

import (
	"context"
	"errors"
	"fmt"

	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/model"
)

var _ model.TableStore = (*Repository)(nil)

// Repository is the record store accessor: it reads the whole user table from
// a remote blob and writes it back as one conditional replacement.
type Repository struct {
	store         model.BlobStore
	codec         model.TableCodec
	initOnMissing bool
	logger        *logger.Logger
}

func NewRepository(store model.BlobStore, codec model.TableCodec, initOnMissing bool, logger *logger.Logger) *Repository {
	return &Repository{
		store:         store,
		codec:         codec,
		initOnMissing: initOnMissing,
		logger:        logger,
	}
}

// Fetch returns the current table and the revision it was read from.
//
// A missing object yields an empty table with an empty revision; when the
// repository was built with initOnMissing the empty table is persisted first.
// An object with no bytes is an empty table at that object's revision.
// Anything else that fails to decode is reported as model.ErrMalformedTable.
func (r *Repository) Fetch(ctx context.Context) (model.Snapshot, error) {
	blob, err := r.store.Get(ctx)
	if errors.Is(err, model.ErrNotFound) {
		if !r.initOnMissing {
			return model.Snapshot{}, nil
		}
		return r.initialize(ctx)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to get table object: %w", err)
	}

	return r.decode(blob)
}

// Replace uploads table as the new content of the remote object, provided the
// object is still at baseRevision. It returns the new revision.
func (r *Repository) Replace(ctx context.Context, table model.Table, baseRevision string) (string, error) {
	data, err := r.codec.Encode(table)
	if err != nil {
		return "", fmt.Errorf("failed to encode table: %w", err)
	}

	revision, err := r.store.Put(ctx, data, baseRevision)
	if err != nil {
		return "", fmt.Errorf("failed to put table object: %w", err)
	}

	r.logger.Debug("Table repository: table replaced",
		"rows", table.Len(),
		"base_revision", baseRevision,
		"revision", revision)

	return revision, nil
}

func (r *Repository) initialize(ctx context.Context) (model.Snapshot, error) {
	revision, err := r.Replace(ctx, model.Table{}, "")
	if err == nil {
		r.logger.Info("Table repository: created empty table", "revision", revision)
		return model.Snapshot{Revision: revision}, nil
	}
	if !errors.Is(err, model.ErrRevisionConflict) {
		return model.Snapshot{}, fmt.Errorf("failed to create empty table: %w", err)
	}

	// Someone else created the object between our read and write.
	blob, err := r.store.Get(ctx)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to get table object: %w", err)
	}

	return r.decode(blob)
}

func (r *Repository) decode(blob model.Blob) (model.Snapshot, error) {
	if len(blob.Data) == 0 {
		return model.Snapshot{Revision: blob.Revision}, nil
	}

	table, err := r.codec.Decode(blob.Data)
	if err != nil {
		r.logger.Error("Table repository: stored table is unreadable",
			"revision", blob.Revision,
			"size", len(blob.Data),
			"error", err.Error())
		return model.Snapshot{}, fmt.Errorf("failed to decode table at revision %s: %w", blob.Revision, err)
	}

	return model.Snapshot{Table: table, Revision: blob.Revision}, nil
}
