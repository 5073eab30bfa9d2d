package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v4"

	"github.com/10allday-services/syncstorage/go/skerr"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// Staged batch BSOs are stored as newline-delimited JSON in the batches.bsos
// column, so an append is a single string concatenation on the row.

func serializeBsos(bsos []db.PostBso) (string, error) {
	var sb strings.Builder
	for _, b := range bsos {
		line, err := json.Marshal(b)
		if err != nil {
			return "", skerr.Wrap(err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func parseBsos(s string) ([]db.PostBso, error) {
	var bsos []db.PostBso
	for _, line := range strings.Split(s, "\n") {
		if line == "" {
			continue
		}
		var b db.PostBso
		if err := json.Unmarshal([]byte(line), &b); err != nil {
			return nil, skerr.Wrapf(err, "corrupt staged batch line %q", line)
		}
		bsos = append(bsos, b)
	}
	return bsos, nil
}

// batchCutoff returns the modified value below which batches count as
// expired. Expired rows are ignored rather than eagerly deleted; they are
// swept out when the user's data is next deleted or the batch id reused.
func (d *DB) batchCutoff(ctx context.Context) int64 {
	return d.nowMillis(ctx) - d.pool.cfg.BatchTTLSeconds*1000
}

// CreateBatch implements db.DB. The batch id is the creation timestamp in
// milliseconds, unique per user because write timestamps never repeat.
func (d *DB) CreateBatch(ctx context.Context, params db.CreateBatch) (string, error) {
	collectionID, err := d.createCollectionID(ctx, params.Collection)
	if err != nil {
		return "", skerr.Wrap(err)
	}
	modified := d.sessionTimestamp(ctx)
	id := strconv.FormatInt(modified.AsMilliseconds(), 10)
	staged, err := serializeBsos(params.BSOs)
	if err != nil {
		return "", skerr.Wrap(err)
	}
	_, err = d.q().Exec(ctx, `
INSERT INTO batches (user_id, collection_id, id, modified, bsos)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, collection_id, id) DO UPDATE SET modified = $4, bsos = $5`,
		int64(params.UserID), collectionID, id, modified.AsMilliseconds(), staged)
	if err != nil {
		return "", translateError(err)
	}
	return id, nil
}

// ValidateBatch implements db.DB.
func (d *DB) ValidateBatch(ctx context.Context, params db.ValidateBatch) (bool, error) {
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return false, nil
		}
		return false, skerr.Wrap(err)
	}
	var exists bool
	err = d.q().QueryRow(ctx, `
SELECT EXISTS(
	SELECT 1 FROM batches
	WHERE user_id = $1 AND collection_id = $2 AND id = $3 AND modified > $4)`,
		int64(params.UserID), collectionID, params.ID, d.batchCutoff(ctx)).Scan(&exists)
	if err != nil {
		return false, translateError(err)
	}
	return exists, nil
}

// AppendToBatch implements db.DB.
func (d *DB) AppendToBatch(ctx context.Context, params db.AppendToBatch) error {
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return skerr.Wrapf(db.ErrBatchNotFound, "collection %q", params.Collection)
		}
		return skerr.Wrap(err)
	}
	staged, err := serializeBsos(params.BSOs)
	if err != nil {
		return skerr.Wrap(err)
	}
	tag, err := d.q().Exec(ctx, `
UPDATE batches SET bsos = bsos || $5
WHERE user_id = $1 AND collection_id = $2 AND id = $3 AND modified > $4`,
		int64(params.UserID), collectionID, params.ID, d.batchCutoff(ctx), staged)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return skerr.Wrapf(db.ErrBatchNotFound, "id %q", params.ID)
	}
	return nil
}

// GetBatch implements db.DB.
func (d *DB) GetBatch(ctx context.Context, params db.GetBatch) (*db.Batch, error) {
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, skerr.Wrap(err)
	}
	var modified int64
	var staged string
	err = d.q().QueryRow(ctx, `
SELECT modified, bsos FROM batches
WHERE user_id = $1 AND collection_id = $2 AND id = $3 AND modified > $4`,
		int64(params.UserID), collectionID, params.ID, d.batchCutoff(ctx)).Scan(&modified, &staged)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translateError(err)
	}
	bsos, err := parseBsos(staged)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return &db.Batch{
		ID:       params.ID,
		Modified: timestamp.FromMilliseconds(modified),
		BSOs:     bsos,
	}, nil
}

// mergeStagedBsos collapses repeated ids, keeping the latest staged version
// of each while preserving first-seen order.
func mergeStagedBsos(bsos []db.PostBso) []db.PostBso {
	index := map[string]int{}
	merged := make([]db.PostBso, 0, len(bsos))
	for _, b := range bsos {
		if i, ok := index[b.ID]; ok {
			merged[i] = b
			continue
		}
		index[b.ID] = len(merged)
		merged = append(merged, b)
	}
	return merged
}

// CommitBatch implements db.DB. The staged BSOs are merged, checked against
// the whole-batch limits, applied like a single POST, and the batch record
// dropped.
func (d *DB) CommitBatch(ctx context.Context, params db.CommitBatch) (timestamp.Timestamp, error) {
	merged := mergeStagedBsos(params.Batch.BSOs)
	if max := d.pool.cfg.MaxTotalRecords; max > 0 && len(merged) > max {
		return 0, skerr.Wrapf(db.ErrQuota, "batch has %d records, limit %d", len(merged), max)
	}
	if max := d.pool.cfg.MaxTotalBytes; max > 0 {
		var total int64
		for _, b := range merged {
			if b.Payload != nil {
				total += int64(len(*b.Payload))
			}
		}
		if total > max {
			return 0, skerr.Wrapf(db.ErrQuota, "batch has %d payload bytes, limit %d", total, max)
		}
	}
	res, err := d.PostBsos(ctx, db.PostBsos{
		UserID:     params.UserID,
		Collection: params.Collection,
		BSOs:       merged,
	})
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	if _, err := d.q().Exec(ctx,
		"DELETE FROM batches WHERE user_id = $1 AND collection_id = $2 AND id = $3",
		int64(params.UserID), collectionID, params.Batch.ID); err != nil {
		return 0, translateError(err)
	}
	return res.Modified, nil
}
