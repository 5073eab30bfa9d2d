// Package mockdb is a no-op db.Pool for tests and for running the HTTP
// surface without a database. Every operation succeeds and returns zero
// values.
package mockdb

import (
	"context"

	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// Pool implements db.Pool.
type Pool struct{}

// New returns a mock pool.
func New() *Pool {
	return &Pool{}
}

// Get implements db.Pool.
func (p *Pool) Get(ctx context.Context) (db.DB, error) {
	return &DB{}, nil
}

// Check implements db.Pool.
func (p *Pool) Check(ctx context.Context) (bool, error) {
	return true, nil
}

// Close implements db.Pool.
func (p *Pool) Close() {}

// DB implements db.DB.
type DB struct{}

func (d *DB) Begin(ctx context.Context, forWrite bool) error { return nil }
func (d *DB) Commit(ctx context.Context) error               { return nil }
func (d *DB) Rollback(ctx context.Context) error             { return nil }
func (d *DB) Close()                                         {}

func (d *DB) LockForRead(ctx context.Context, params db.LockCollection) error  { return nil }
func (d *DB) LockForWrite(ctx context.Context, params db.LockCollection) error { return nil }

func (d *DB) GetCollectionTimestamps(ctx context.Context, userID db.UserID) (map[string]timestamp.Timestamp, error) {
	return map[string]timestamp.Timestamp{}, nil
}

func (d *DB) GetCollectionCounts(ctx context.Context, userID db.UserID) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (d *DB) GetCollectionUsage(ctx context.Context, userID db.UserID) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (d *DB) GetStorageTimestamp(ctx context.Context, userID db.UserID) (timestamp.Timestamp, error) {
	return 0, nil
}

func (d *DB) GetStorageUsage(ctx context.Context, userID db.UserID) (int64, error) {
	return 0, nil
}

func (d *DB) GetBsos(ctx context.Context, params db.GetBsos) (*db.Paginated[db.BSO], error) {
	return &db.Paginated[db.BSO]{Items: []db.BSO{}}, nil
}

func (d *DB) GetBsoIDs(ctx context.Context, params db.GetBsos) (*db.Paginated[string], error) {
	return &db.Paginated[string]{Items: []string{}}, nil
}

func (d *DB) GetBso(ctx context.Context, params db.GetBso) (*db.BSO, error) {
	return nil, nil
}

func (d *DB) DeleteStorage(ctx context.Context, userID db.UserID) (timestamp.Timestamp, error) {
	return 0, nil
}

func (d *DB) DeleteCollection(ctx context.Context, params db.DeleteCollection) (timestamp.Timestamp, error) {
	return 0, nil
}

func (d *DB) DeleteBsos(ctx context.Context, params db.DeleteBsos) (timestamp.Timestamp, error) {
	return 0, nil
}

func (d *DB) DeleteBso(ctx context.Context, params db.DeleteBso) (timestamp.Timestamp, error) {
	return 0, nil
}

func (d *DB) PutBso(ctx context.Context, params db.PutBso) (timestamp.Timestamp, error) {
	return 0, nil
}

// PostBsos accepts everything, echoing back the ids it was given and any
// failures the transport layer already recorded.
func (d *DB) PostBsos(ctx context.Context, params db.PostBsos) (*db.PostBsosResult, error) {
	res := &db.PostBsosResult{Success: []string{}, Failed: params.Failed}
	if res.Failed == nil {
		res.Failed = map[string]string{}
	}
	for _, b := range params.BSOs {
		res.Success = append(res.Success, b.ID)
	}
	return res, nil
}

func (d *DB) CreateBatch(ctx context.Context, params db.CreateBatch) (string, error) {
	return "0", nil
}

func (d *DB) ValidateBatch(ctx context.Context, params db.ValidateBatch) (bool, error) {
	return true, nil
}

func (d *DB) AppendToBatch(ctx context.Context, params db.AppendToBatch) error {
	return nil
}

func (d *DB) GetBatch(ctx context.Context, params db.GetBatch) (*db.Batch, error) {
	return &db.Batch{ID: params.ID, BSOs: []db.PostBso{}}, nil
}

func (d *DB) CommitBatch(ctx context.Context, params db.CommitBatch) (timestamp.Timestamp, error) {
	return 0, nil
}

func (d *DB) ExtractResource(ctx context.Context, userID db.UserID, collection, bso *string) (timestamp.Timestamp, error) {
	return 0, nil
}

func (d *DB) Check(ctx context.Context) (bool, error) {
	return true, nil
}

// Assert the interfaces are implemented.
var _ db.Pool = (*Pool)(nil)
var _ db.DB = (*DB)(nil)
