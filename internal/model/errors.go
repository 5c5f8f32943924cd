package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUserExists       = errors.New("user already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrMalformedTable   = errors.New("malformed user table")
	ErrRevisionConflict = errors.New("revision conflict")
	ErrReadOnly         = errors.New("table store is read-only")
)

// TransportError reports a failed call to the remote store.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by a TransportError in err's chain, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
