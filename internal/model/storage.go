package model

import "context"

// Blob is the content of a remote object at a given revision.
type Blob struct {
	Data     []byte
	Revision string
}

// BlobStore reads and conditionally replaces the single remote object
// holding the user table.
//
// Get returns ErrNotFound when the object does not exist. Put replaces the
// object only if it is still at baseRevision (an empty baseRevision means the
// object must not exist) and returns ErrRevisionConflict otherwise.
type BlobStore interface {
	Get(ctx context.Context) (Blob, error)
	Put(ctx context.Context, data []byte, baseRevision string) (string, error)
}
