package db

import (
	"errors"
)

// The error kinds backends report. Adapters map these onto HTTP statuses;
// anything else is treated as internal. Backends wrap these with skerr so
// call sites show up in logs; use errors.Is to test for a kind.
var (
	// ErrCollectionNotFound: the user has no collection with that name.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrBsoNotFound: the addressed BSO is absent (or expired).
	ErrBsoNotFound = errors.New("bso not found")

	// ErrBatchNotFound: the batch id is unknown or the batch has expired.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrConflict: the write lost to a concurrent writer and should be
	// retried by the client.
	ErrConflict = errors.New("conflict: concurrent write")

	// ErrQuota: the write would push the user past the configured quota or
	// batch size limits.
	ErrQuota = errors.New("over quota")

	// ErrIntegrity: a precondition (timestamp/etag) failed.
	ErrIntegrity = errors.New("precondition failed")
)

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound) ||
		errors.Is(err, ErrBsoNotFound) ||
		errors.Is(err, ErrBatchNotFound)
}
