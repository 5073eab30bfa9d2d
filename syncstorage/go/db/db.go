// Package db defines the storage interface the request handlers talk to,
// the parameter and result types that cross it, and the error kinds backends
// report.
//
// Two implementations exist: sqldb (production, pooled SQL) and mockdb
// (zero-valued stub for tests).
package db

import (
	"context"

	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// UserID identifies one user. Users are created implicitly on first write.
type UserID int64

// DB is one handle checked out of a Pool. A handle services exactly one
// request: the caller opens a transaction with Begin, performs operations,
// then Commits or Rolls back, and finally Closes the handle to return the
// underlying connection. Operations are sequential within a handle.
type DB interface {
	// Begin opens a transaction. With forWrite set the transaction will
	// additionally take the collection write lock as soon as a collection is
	// known (see LockForWrite).
	Begin(ctx context.Context, forWrite bool) error

	// Commit makes the transaction's effects durable.
	Commit(ctx context.Context) error

	// Rollback discards the transaction. Safe to call after Commit; it is a
	// no-op then, which makes "defer Rollback" the standard cleanup.
	Rollback(ctx context.Context) error

	// LockForRead takes a shared lock on the (user, collection) pair.
	LockForRead(ctx context.Context, params LockCollection) error

	// LockForWrite serializes writers of the (user, collection) pair and
	// pins the transaction's authoritative modified timestamp.
	LockForWrite(ctx context.Context, params LockCollection) error

	GetCollectionTimestamps(ctx context.Context, userID UserID) (map[string]timestamp.Timestamp, error)
	GetCollectionCounts(ctx context.Context, userID UserID) (map[string]int64, error)
	GetCollectionUsage(ctx context.Context, userID UserID) (map[string]int64, error)
	GetStorageTimestamp(ctx context.Context, userID UserID) (timestamp.Timestamp, error)
	GetStorageUsage(ctx context.Context, userID UserID) (int64, error)

	// GetBsos returns a page of full BSOs matching the query.
	GetBsos(ctx context.Context, params GetBsos) (*Paginated[BSO], error)

	// GetBsoIDs returns a page of matching BSO ids only.
	GetBsoIDs(ctx context.Context, params GetBsos) (*Paginated[string], error)

	// GetBso returns one BSO, or nil if absent or expired.
	GetBso(ctx context.Context, params GetBso) (*BSO, error)

	// DeleteStorage removes everything the user owns and returns the new
	// storage timestamp.
	DeleteStorage(ctx context.Context, userID UserID) (timestamp.Timestamp, error)

	// DeleteCollection removes all BSOs of a collection. Fails with
	// ErrCollectionNotFound if the user has no such collection.
	DeleteCollection(ctx context.Context, params DeleteCollection) (timestamp.Timestamp, error)

	// DeleteBsos removes the named BSOs. Fails with ErrBsoNotFound when none
	// of the ids matched.
	DeleteBsos(ctx context.Context, params DeleteBsos) (timestamp.Timestamp, error)

	// DeleteBso removes one BSO. Fails with ErrBsoNotFound if absent.
	DeleteBso(ctx context.Context, params DeleteBso) (timestamp.Timestamp, error)

	// PutBso inserts or updates one BSO and returns its modified timestamp.
	PutBso(ctx context.Context, params PutBso) (timestamp.Timestamp, error)

	// PostBsos writes a set of BSOs, recording per-item failures rather than
	// failing the whole request.
	PostBsos(ctx context.Context, params PostBsos) (*PostBsosResult, error)

	// CreateBatch starts a staged upload and returns the new batch id.
	CreateBatch(ctx context.Context, params CreateBatch) (string, error)

	// ValidateBatch reports whether the batch exists and has not expired.
	ValidateBatch(ctx context.Context, params ValidateBatch) (bool, error)

	// AppendToBatch stages more BSOs onto an open batch. Fails with
	// ErrBatchNotFound if the batch is absent or expired.
	AppendToBatch(ctx context.Context, params AppendToBatch) error

	// GetBatch returns the batch with its staged BSOs, or nil if absent or
	// expired.
	GetBatch(ctx context.Context, params GetBatch) (*Batch, error)

	// CommitBatch applies the staged BSOs to the collection in one write
	// transaction and removes the batch record.
	CommitBatch(ctx context.Context, params CommitBatch) (timestamp.Timestamp, error)

	// ExtractResource returns the effective last-modified timestamp for
	// precondition responses: the BSO's if given and present, else the
	// collection's if given and present, else the storage timestamp, else
	// the current time.
	ExtractResource(ctx context.Context, userID UserID, collection, bso *string) (timestamp.Timestamp, error)

	// Check probes backend liveness.
	Check(ctx context.Context) (bool, error)

	// Close returns the handle's connection to the pool. Any open
	// transaction is rolled back.
	Close()
}

// Pool hands out DB handles, one per request.
type Pool interface {
	// Get blocks until a handle is available or ctx is done.
	Get(ctx context.Context) (DB, error)

	// Check probes backend liveness without holding a handle open.
	Check(ctx context.Context) (bool, error)

	// Close shuts the pool down.
	Close()
}
