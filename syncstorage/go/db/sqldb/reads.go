package sqldb

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/10allday-services/syncstorage/go/now"
	"github.com/10allday-services/syncstorage/go/skerr"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// GetCollectionTimestamps implements db.DB.
func (d *DB) GetCollectionTimestamps(ctx context.Context, userID db.UserID) (map[string]timestamp.Timestamp, error) {
	rows, err := d.q().Query(ctx, `
SELECT c.name, uc.modified
FROM user_collections uc JOIN collections c ON c.id = uc.collection_id
WHERE uc.user_id = $1`, int64(userID))
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	ret := map[string]timestamp.Timestamp{}
	for rows.Next() {
		var name string
		var modified int64
		if err := rows.Scan(&name, &modified); err != nil {
			return nil, skerr.Wrap(err)
		}
		ret[name] = timestamp.FromMilliseconds(modified)
	}
	return ret, skerr.Wrap(rows.Err())
}

// GetCollectionCounts implements db.DB. Expired BSOs do not count.
func (d *DB) GetCollectionCounts(ctx context.Context, userID db.UserID) (map[string]int64, error) {
	return d.collectionAggregates(ctx, userID, "COUNT(*)")
}

// GetCollectionUsage implements db.DB. Usage is summed payload bytes.
func (d *DB) GetCollectionUsage(ctx context.Context, userID db.UserID) (map[string]int64, error) {
	// SUM of an INT is a DECIMAL, hence the cast.
	return d.collectionAggregates(ctx, userID, "SUM(b.payload_size)::INT8")
}

func (d *DB) collectionAggregates(ctx context.Context, userID db.UserID, agg string) (map[string]int64, error) {
	rows, err := d.q().Query(ctx, `
SELECT c.name, `+agg+`
FROM bso b JOIN collections c ON c.id = b.collection_id
WHERE b.user_id = $1 AND b.expiry > $2
GROUP BY c.name`, int64(userID), d.nowMillis(ctx))
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	ret := map[string]int64{}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, skerr.Wrap(err)
		}
		ret[name] = value
	}
	return ret, skerr.Wrap(rows.Err())
}

// GetStorageTimestamp implements db.DB. Zero means the user has no data.
func (d *DB) GetStorageTimestamp(ctx context.Context, userID db.UserID) (timestamp.Timestamp, error) {
	var modified int64
	err := d.q().QueryRow(ctx,
		"SELECT COALESCE(MAX(modified), 0) FROM user_collections WHERE user_id = $1",
		int64(userID)).Scan(&modified)
	if err != nil {
		return 0, translateError(err)
	}
	return timestamp.FromMilliseconds(modified), nil
}

// GetStorageUsage implements db.DB.
func (d *DB) GetStorageUsage(ctx context.Context, userID db.UserID) (int64, error) {
	var usage int64
	err := d.q().QueryRow(ctx,
		"SELECT COALESCE(SUM(payload_size), 0)::INT8 FROM bso WHERE user_id = $1 AND expiry > $2",
		int64(userID), d.nowMillis(ctx)).Scan(&usage)
	if err != nil {
		return 0, translateError(err)
	}
	return usage, nil
}

// bsoQuerySQL renders a collection query. It returns the SQL, its arguments,
// and the page size and starting offset used to compute the next-page token
// (limit -1 means unpaginated). The query fetches one row past the limit so
// the caller can tell whether more pages exist.
func bsoQuerySQL(sel string, userID db.UserID, collectionID int32, q db.BsoQuery, nowMS int64) (string, []interface{}, int, int, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(sel)
	sb.WriteString(" FROM bso WHERE user_id = $1 AND collection_id = $2 AND expiry > $3")
	args := []interface{}{int64(userID), collectionID, nowMS}
	next := func() string { return "$" + strconv.Itoa(len(args)+1) }

	if q.Newer != nil {
		sb.WriteString(" AND modified > " + next())
		args = append(args, q.Newer.AsMilliseconds())
	}
	if q.Older != nil {
		sb.WriteString(" AND modified < " + next())
		args = append(args, q.Older.AsMilliseconds())
	}
	if len(q.IDs) > 0 {
		sb.WriteString(" AND id = ANY(" + next() + ")")
		args = append(args, q.IDs)
	}

	// Secondary order by id keeps pagination deterministic under ties.
	switch q.Sort {
	case db.SortNewest:
		sb.WriteString(" ORDER BY modified DESC, id")
	case db.SortOldest:
		sb.WriteString(" ORDER BY modified ASC, id")
	case db.SortIndex:
		sb.WriteString(" ORDER BY sortindex DESC, id")
	default:
		sb.WriteString(" ORDER BY id")
	}

	limit := -1
	if q.Limit != nil {
		limit = *q.Limit
		sb.WriteString(" LIMIT " + next())
		args = append(args, limit+1)
	}
	offset := 0
	if q.Offset != nil {
		var err error
		offset, err = strconv.Atoi(*q.Offset)
		if err != nil || offset < 0 {
			return "", nil, 0, 0, skerr.Fmt("invalid offset token %q", *q.Offset)
		}
		sb.WriteString(" OFFSET " + next())
		args = append(args, offset)
	}
	return sb.String(), args, limit, offset, nil
}

// nextOffset trims the extra row fetched past the limit and returns the
// next-page token, if any.
func nextOffset(n int, limit, offset int) (int, *string) {
	if limit < 0 || n <= limit {
		return n, nil
	}
	token := strconv.Itoa(offset + limit)
	return limit, &token
}

// GetBsos implements db.DB.
func (d *DB) GetBsos(ctx context.Context, params db.GetBsos) (*db.Paginated[db.BSO], error) {
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	sql, args, limit, offset, err := bsoQuerySQL(
		"id, modified, payload, sortindex, expiry", params.UserID, collectionID, params.Query, d.nowMillis(ctx))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	rows, err := d.q().Query(ctx, sql, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	// Non-nil so an empty page serializes as [].
	items := []db.BSO{}
	for rows.Next() {
		var b db.BSO
		var modified int64
		var sortIndex pgtype.Int4
		if err := rows.Scan(&b.ID, &modified, &b.Payload, &sortIndex, &b.Expiry); err != nil {
			return nil, skerr.Wrap(err)
		}
		b.Modified = timestamp.FromMilliseconds(modified)
		if sortIndex.Status == pgtype.Present {
			v := sortIndex.Int
			b.SortIndex = &v
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, skerr.Wrap(err)
	}
	n, token := nextOffset(len(items), limit, offset)
	return &db.Paginated[db.BSO]{Items: items[:n], Offset: token}, nil
}

// GetBsoIDs implements db.DB.
func (d *DB) GetBsoIDs(ctx context.Context, params db.GetBsos) (*db.Paginated[string], error) {
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	sql, args, limit, offset, err := bsoQuerySQL("id", params.UserID, collectionID, params.Query, d.nowMillis(ctx))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	rows, err := d.q().Query(ctx, sql, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, skerr.Wrap(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, skerr.Wrap(err)
	}
	n, token := nextOffset(len(ids), limit, offset)
	return &db.Paginated[string]{Items: ids[:n], Offset: token}, nil
}

// GetBso implements db.DB.
func (d *DB) GetBso(ctx context.Context, params db.GetBso) (*db.BSO, error) {
	collectionID, err := d.collectionID(ctx, params.Collection)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var b db.BSO
	var modified int64
	var sortIndex pgtype.Int4
	err = d.q().QueryRow(ctx, `
SELECT id, modified, payload, sortindex, expiry
FROM bso WHERE user_id = $1 AND collection_id = $2 AND id = $3 AND expiry > $4`,
		int64(params.UserID), collectionID, params.ID, d.nowMillis(ctx)).
		Scan(&b.ID, &modified, &b.Payload, &sortIndex, &b.Expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translateError(err)
	}
	b.Modified = timestamp.FromMilliseconds(modified)
	if sortIndex.Status == pgtype.Present {
		v := sortIndex.Int
		b.SortIndex = &v
	}
	return &b, nil
}

// ExtractResource implements db.DB.
func (d *DB) ExtractResource(ctx context.Context, userID db.UserID, collection, bso *string) (timestamp.Timestamp, error) {
	if collection != nil {
		collectionID, err := d.collectionID(ctx, *collection)
		if err != nil && !errors.Is(err, db.ErrCollectionNotFound) {
			return 0, skerr.Wrap(err)
		}
		if err == nil {
			if bso != nil {
				var modified int64
				err := d.q().QueryRow(ctx,
					"SELECT modified FROM bso WHERE user_id = $1 AND collection_id = $2 AND id = $3 AND expiry > $4",
					int64(userID), collectionID, *bso, d.nowMillis(ctx)).Scan(&modified)
				if err == nil {
					return timestamp.FromMilliseconds(modified), nil
				}
				if !errors.Is(err, pgx.ErrNoRows) {
					return 0, translateError(err)
				}
			}
			var modified int64
			err = d.q().QueryRow(ctx,
				"SELECT modified FROM user_collections WHERE user_id = $1 AND collection_id = $2",
				int64(userID), collectionID).Scan(&modified)
			if err == nil {
				return timestamp.FromMilliseconds(modified), nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return 0, translateError(err)
			}
		}
	}
	ts, err := d.GetStorageTimestamp(ctx, userID)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	if ts > 0 {
		return ts, nil
	}
	return timestamp.FromTime(now.Now(ctx)), nil
}
