package sqldb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/10allday-services/syncstorage/go/skerr"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// upsertBsoSQL inserts or updates one BSO. Null arguments mean "not
// provided": on update the stored value is kept, on insert the payload
// defaults to empty and the TTL to the configured maximum ($9, seconds).
const upsertBsoSQL = `
INSERT INTO bso (user_id, collection_id, id, sortindex, payload, payload_size, modified, expiry)
VALUES ($1, $2, $3, $4, COALESCE($5, ''), COALESCE($6, 0), $7, $7 + COALESCE($8::INT8, $9::INT8) * 1000)
ON CONFLICT (user_id, collection_id, id) DO UPDATE SET
	sortindex = COALESCE($4, bso.sortindex),
	payload = COALESCE($5, bso.payload),
	payload_size = COALESCE($6, bso.payload_size),
	modified = $7,
	expiry = CASE WHEN $8::INT8 IS NULL THEN bso.expiry ELSE $7 + $8::INT8 * 1000 END`

// touchCollection stamps the (user, collection) row with the transaction
// timestamp, creating it on the user's first write.
func (d *DB) touchCollection(ctx context.Context, userID db.UserID, collectionID int32, modified timestamp.Timestamp) error {
	_, err := d.q().Exec(ctx, `
INSERT INTO user_collections (user_id, collection_id, modified)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, collection_id) DO UPDATE SET modified = $3`,
		int64(userID), collectionID, modified.AsMilliseconds())
	if err != nil {
		return translateError(err)
	}
	return nil
}

// checkQuota fails with db.ErrQuota if adding addedBytes of payload would
// push the user past the configured quota. A no-op when quota is disabled.
func (d *DB) checkQuota(ctx context.Context, userID db.UserID, addedBytes int64) error {
	if !d.pool.cfg.QuotaEnabled {
		return nil
	}
	usage, err := d.GetStorageUsage(ctx, userID)
	if err != nil {
		return skerr.Wrap(err)
	}
	if usage+addedBytes > d.pool.cfg.QuotaBytesPerUser {
		return skerr.Wrapf(db.ErrQuota, "usage %d + %d exceeds %d bytes",
			usage, addedBytes, d.pool.cfg.QuotaBytesPerUser)
	}
	return nil
}

// DeleteStorage implements db.DB.
func (d *DB) DeleteStorage(ctx context.Context, userID db.UserID) (timestamp.Timestamp, error) {
	modified := d.sessionTimestamp(ctx)
	for _, stmt := range []string{
		"DELETE FROM bso WHERE user_id = $1",
		"DELETE FROM batches WHERE user_id = $1",
		"DELETE FROM user_collections WHERE user_id = $1",
	} {
		if _, err := d.q().Exec(ctx, stmt, int64(userID)); err != nil {
			return 0, translateError(err)
		}
	}
	return modified, nil
}

// DeleteCollection implements db.DB. The user_collections row is kept and
// restamped so the collection's timestamp reflects the deletion.
func (d *DB) DeleteCollection(ctx context.Context, params db.DeleteCollection) (timestamp.Timestamp, error) {
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	modified := d.sessionTimestamp(ctx)
	tag, err := d.q().Exec(ctx,
		"DELETE FROM bso WHERE user_id = $1 AND collection_id = $2",
		int64(params.UserID), collectionID)
	if err != nil {
		return 0, translateError(err)
	}
	if _, err := d.q().Exec(ctx,
		"DELETE FROM batches WHERE user_id = $1 AND collection_id = $2",
		int64(params.UserID), collectionID); err != nil {
		return 0, translateError(err)
	}
	if tag.RowsAffected() == 0 {
		var existing int64
		err := d.q().QueryRow(ctx,
			"SELECT modified FROM user_collections WHERE user_id = $1 AND collection_id = $2",
			int64(params.UserID), collectionID).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, skerr.Wrapf(db.ErrCollectionNotFound, "%q", params.Collection)
		}
		if err != nil {
			return 0, translateError(err)
		}
	}
	if err := d.touchCollection(ctx, params.UserID, collectionID, modified); err != nil {
		return 0, skerr.Wrap(err)
	}
	return modified, nil
}

// DeleteBsos implements db.DB.
func (d *DB) DeleteBsos(ctx context.Context, params db.DeleteBsos) (timestamp.Timestamp, error) {
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	modified := d.sessionTimestamp(ctx)
	tag, err := d.q().Exec(ctx,
		"DELETE FROM bso WHERE user_id = $1 AND collection_id = $2 AND id = ANY($3)",
		int64(params.UserID), collectionID, params.IDs)
	if err != nil {
		return 0, translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return 0, skerr.Wrapf(db.ErrBsoNotFound, "collection %q ids %v", params.Collection, params.IDs)
	}
	if err := d.touchCollection(ctx, params.UserID, collectionID, modified); err != nil {
		return 0, skerr.Wrap(err)
	}
	return modified, nil
}

// DeleteBso implements db.DB.
func (d *DB) DeleteBso(ctx context.Context, params db.DeleteBso) (timestamp.Timestamp, error) {
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	modified := d.sessionTimestamp(ctx)
	tag, err := d.q().Exec(ctx,
		"DELETE FROM bso WHERE user_id = $1 AND collection_id = $2 AND id = $3",
		int64(params.UserID), collectionID, params.ID)
	if err != nil {
		return 0, translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return 0, skerr.Wrapf(db.ErrBsoNotFound, "collection %q id %q", params.Collection, params.ID)
	}
	if err := d.touchCollection(ctx, params.UserID, collectionID, modified); err != nil {
		return 0, skerr.Wrap(err)
	}
	return modified, nil
}

// PutBso implements db.DB.
func (d *DB) PutBso(ctx context.Context, params db.PutBso) (timestamp.Timestamp, error) {
	collectionID, err := d.createCollectionID(ctx, params.Collection)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	var added int64
	var payloadSize *int64
	if params.Payload != nil {
		added = int64(len(*params.Payload))
		payloadSize = &added
	}
	if err := d.checkQuota(ctx, params.UserID, added); err != nil {
		return 0, skerr.Wrap(err)
	}
	modified := d.sessionTimestamp(ctx)
	_, err = d.q().Exec(ctx, upsertBsoSQL,
		int64(params.UserID), collectionID, params.ID,
		params.SortIndex, params.Payload, payloadSize,
		modified.AsMilliseconds(), params.TTL, d.pool.cfg.MaxTTLSeconds)
	if err != nil {
		return 0, translateError(err)
	}
	if err := d.touchCollection(ctx, params.UserID, collectionID, modified); err != nil {
		return 0, skerr.Wrap(err)
	}
	return modified, nil
}

// PostBsos implements db.DB.
func (d *DB) PostBsos(ctx context.Context, params db.PostBsos) (*db.PostBsosResult, error) {
	collectionID, err := d.createCollectionID(ctx, params.Collection)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var added int64
	for _, b := range params.BSOs {
		if b.Payload != nil {
			added += int64(len(*b.Payload))
		}
	}
	if err := d.checkQuota(ctx, params.UserID, added); err != nil {
		return nil, skerr.Wrap(err)
	}
	modified := d.sessionTimestamp(ctx)
	res := &db.PostBsosResult{
		Modified: modified,
		Success:  []string{},
		Failed:   params.Failed,
	}
	if res.Failed == nil {
		res.Failed = map[string]string{}
	}
	for _, b := range params.BSOs {
		var payloadSize *int64
		if b.Payload != nil {
			size := int64(len(*b.Payload))
			payloadSize = &size
		}
		_, err := d.q().Exec(ctx, upsertBsoSQL,
			int64(params.UserID), collectionID, b.ID,
			b.SortIndex, b.Payload, payloadSize,
			modified.AsMilliseconds(), b.TTL, d.pool.cfg.MaxTTLSeconds)
		if err != nil {
			// A statement error aborts the whole transaction; there is no
			// point degrading to a per-item failure.
			return nil, translateError(err)
		}
		res.Success = append(res.Success, b.ID)
	}
	if err := d.touchCollection(ctx, params.UserID, collectionID, modified); err != nil {
		return nil, skerr.Wrap(err)
	}
	return res, nil
}
