// Package sqldb is the production db.Pool implementation over a pooled
// Postgres-protocol database (CockroachDB in deployment).
//
// One DB handle serves one request. Reads and writes run inside an explicit
// transaction; writers additionally take the (user, collection) row lock via
// LockForWrite, which also pins the transaction's modified timestamp.
package sqldb

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/10allday-services/syncstorage/go/now"
	"github.com/10allday-services/syncstorage/go/skerr"
	"github.com/10allday-services/syncstorage/go/sklog"
	"github.com/10allday-services/syncstorage/syncstorage/go/config"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx, so
// statements run on the open transaction when there is one.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Pool implements db.Pool.
type Pool struct {
	pool  *pgxpool.Pool
	cfg   *config.Config
	cache *db.CollectionCache
	ts    *timestamp.Source
}

// New connects to cfg.DatabaseURL and returns a Pool. Connecting retries with
// exponential backoff so the service survives the database coming up after it
// does.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, skerr.Wrapf(err, "parsing database_url")
	}
	poolCfg.MaxConns = cfg.PoolMaxSize

	var pgPool *pgxpool.Pool
	connect := func() error {
		var err error
		pgPool, err = pgxpool.ConnectConfig(ctx, poolCfg)
		return err
	}
	boff := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10), ctx)
	if err := backoff.Retry(connect, boff); err != nil {
		return nil, skerr.Wrapf(err, "connecting to database")
	}
	return NewFromPool(ctx, pgPool, cfg), nil
}

// NewFromPool wraps an existing pgx pool. Used by tests which bring their own
// database.
func NewFromPool(ctx context.Context, pgPool *pgxpool.Pool, cfg *config.Config) *Pool {
	p := &Pool{
		pool:  pgPool,
		cfg:   cfg,
		cache: db.NewCollectionCache(),
		ts:    timestamp.NewSource(),
	}
	p.loadCollections(ctx)
	return p
}

// loadCollections warms the collection cache from the collections table.
// Best effort; misses fall back to per-name lookups.
func (p *Pool) loadCollections(ctx context.Context) {
	rows, err := p.pool.Query(ctx, "SELECT id, name FROM collections")
	if err != nil {
		sklog.Warningf("Failed to preload collections: %s", err)
		return
	}
	defer rows.Close()
	byID := map[int32]string{}
	for rows.Next() {
		var id int32
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			sklog.Warningf("Failed to preload collections: %s", err)
			return
		}
		byID[id] = name
	}
	p.cache.Fill(byID)
}

// Get implements db.Pool.
func (p *Pool) Get(ctx context.Context) (db.DB, error) {
	return &DB{pool: p}, nil
}

// Check implements db.Pool.
func (p *Pool) Check(ctx context.Context) (bool, error) {
	var one int
	if err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, skerr.Wrap(err)
	}
	return true, nil
}

// Close implements db.Pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB implements db.DB over one transaction.
type DB struct {
	pool     *Pool
	tx       pgx.Tx
	forWrite bool

	// modified is the timestamp pinned for this write transaction. All writes
	// in the transaction share it.
	modified *timestamp.Timestamp

	// pendingCollections are (name, id) pairs allocated inside this
	// transaction. They enter the shared cache only on Commit, since a
	// rollback would leave the cache pointing at rows that do not exist.
	pendingCollections map[string]int32
}

func (d *DB) q() querier {
	if d.tx != nil {
		return d.tx
	}
	return d.pool.pool
}

// nowMillis returns the current wall time in milliseconds, for expiry
// filtering. Reads use this rather than the Source so they do not advance the
// monotonic counter.
func (d *DB) nowMillis(ctx context.Context) int64 {
	return timestamp.FromTime(now.Now(ctx)).AsMilliseconds()
}

// sessionTimestamp returns the write transaction's pinned timestamp,
// allocating it on first use.
func (d *DB) sessionTimestamp(ctx context.Context) timestamp.Timestamp {
	if d.modified == nil {
		t := d.pool.ts.Now(ctx)
		d.modified = &t
	}
	return *d.modified
}

// Begin implements db.DB.
func (d *DB) Begin(ctx context.Context, forWrite bool) error {
	if d.tx != nil {
		return skerr.Fmt("transaction already open")
	}
	tx, err := d.pool.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return translateError(err)
	}
	d.tx = tx
	d.forWrite = forWrite
	d.modified = nil
	d.pendingCollections = nil
	return nil
}

// Commit implements db.DB.
func (d *DB) Commit(ctx context.Context) error {
	if d.tx == nil {
		return skerr.Fmt("no open transaction")
	}
	err := d.tx.Commit(ctx)
	d.tx = nil
	if err != nil {
		return translateError(err)
	}
	for name, id := range d.pendingCollections {
		d.pool.cache.Put(id, name)
	}
	d.pendingCollections = nil
	return nil
}

// Rollback implements db.DB.
func (d *DB) Rollback(ctx context.Context) error {
	if d.tx == nil {
		return nil
	}
	err := d.tx.Rollback(ctx)
	d.tx = nil
	d.pendingCollections = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return skerr.Wrap(err)
	}
	return nil
}

// Close implements db.DB.
func (d *DB) Close() {
	if d.tx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Rollback(ctx)
	}
}

// LockForRead implements db.DB. A collection the user has never written needs
// no lock; reads on it report not-found at the operation level.
func (d *DB) LockForRead(ctx context.Context, params db.LockCollection) error {
	id, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return nil
		}
		return skerr.Wrap(err)
	}
	var modified int64
	err = d.q().QueryRow(ctx,
		"SELECT modified FROM user_collections WHERE user_id = $1 AND collection_id = $2 FOR SHARE",
		int64(params.UserID), id).Scan(&modified)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return translateError(err)
	}
	return nil
}

// LockForWrite implements db.DB. It allocates the collection id if needed,
// takes the exclusive row lock, and pins the transaction timestamp. A
// collection already modified at or past the pinned timestamp means another
// node's clock is ahead of ours; the client must retry.
func (d *DB) LockForWrite(ctx context.Context, params db.LockCollection) error {
	id, err := d.createCollectionID(ctx, params.Collection)
	if err != nil {
		return skerr.Wrap(err)
	}
	ts := d.sessionTimestamp(ctx)
	var modified int64
	err = d.q().QueryRow(ctx,
		"SELECT modified FROM user_collections WHERE user_id = $1 AND collection_id = $2 FOR UPDATE",
		int64(params.UserID), id).Scan(&modified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return translateError(err)
	}
	if timestamp.FromMilliseconds(modified) >= ts {
		return skerr.Wrapf(db.ErrConflict, "collection %q modified at %d, write timestamp %d",
			params.Collection, modified, ts.AsMilliseconds())
	}
	return nil
}

// collectionID resolves a collection name to its global id without creating
// it. Returns db.ErrCollectionNotFound when no such collection exists.
func (d *DB) collectionID(ctx context.Context, name string) (int32, error) {
	if id, ok := d.pendingCollections[name]; ok {
		return id, nil
	}
	if id, ok := d.pool.cache.GetID(name); ok {
		return id, nil
	}
	var id int32
	err := d.q().QueryRow(ctx, "SELECT id FROM collections WHERE name = $1", name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, skerr.Wrapf(db.ErrCollectionNotFound, "%q", name)
		}
		return 0, translateError(err)
	}
	d.pool.cache.Put(id, name)
	return id, nil
}

// createCollectionID resolves a collection name, allocating a new global id
// from the sequence when the name is unknown.
func (d *DB) createCollectionID(ctx context.Context, name string) (int32, error) {
	id, err := d.collectionID(ctx, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, db.ErrCollectionNotFound) {
		return 0, skerr.Wrap(err)
	}
	err = d.q().QueryRow(ctx,
		"INSERT INTO collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id",
		name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the insert race; the row exists now.
		err = d.q().QueryRow(ctx, "SELECT id FROM collections WHERE name = $1", name).Scan(&id)
	}
	if err != nil {
		return 0, translateError(err)
	}
	if d.tx != nil {
		if d.pendingCollections == nil {
			d.pendingCollections = map[string]int32{}
		}
		d.pendingCollections[name] = id
	} else {
		d.pool.cache.Put(id, name)
	}
	return id, nil
}

// collectionName resolves an id back to a name.
func (d *DB) collectionName(ctx context.Context, id int32) (string, error) {
	if name, ok := d.pool.cache.GetName(id); ok {
		return name, nil
	}
	var name string
	err := d.q().QueryRow(ctx, "SELECT name FROM collections WHERE id = $1", id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", skerr.Wrapf(db.ErrCollectionNotFound, "id %d", id)
		}
		return "", translateError(err)
	}
	d.pool.cache.Put(id, name)
	return name, nil
}

// Check implements db.DB.
func (d *DB) Check(ctx context.Context) (bool, error) {
	var one int
	if err := d.q().QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, skerr.Wrap(err)
	}
	return true, nil
}

// translateError maps retryable database failures onto db.ErrConflict and
// wraps everything else.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// Serialization failure, deadlock, lock not available.
		case "40001", "40P01", "55P03":
			return skerr.Wrapf(db.ErrConflict, "%s (%s)", pgErr.Message, pgErr.Code)
		}
	}
	return skerr.Wrap(err)
}

// Assert the interfaces are implemented.
var _ db.Pool = (*Pool)(nil)
var _ db.DB = (*DB)(nil)
