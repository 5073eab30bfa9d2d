package mockdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/10allday-services/syncstorage/syncstorage/go/db"
)

func TestMockDB_EveryOperationSucceeds(t *testing.T) {
	ctx := context.Background()
	p := New()
	h, err := p.Get(ctx)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Begin(ctx, true))
	require.NoError(t, h.LockForWrite(ctx, db.LockCollection{UserID: 1, Collection: "bookmarks"}))

	stamps, err := h.GetCollectionTimestamps(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, stamps)

	bso, err := h.GetBso(ctx, db.GetBso{UserID: 1, Collection: "bookmarks", ID: "a"})
	require.NoError(t, err)
	require.Nil(t, bso)

	res, err := h.PostBsos(ctx, db.PostBsos{
		UserID:     1,
		Collection: "bookmarks",
		BSOs:       []db.PostBso{{ID: "a"}, {ID: "b"}},
		Failed:     map[string]string{"c": "invalid id"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, res.Success)
	require.Equal(t, "invalid id", res.Failed["c"])

	require.NoError(t, h.Commit(ctx))
	require.NoError(t, h.Rollback(ctx))

	ok, err := p.Check(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}
