package db

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectionCache_SeededWithStandardCollections(t *testing.T) {
	c := NewCollectionCache()

	id, ok := c.GetID("bookmarks")
	require.True(t, ok)
	require.Equal(t, int32(7), id)

	name, ok := c.GetName(9)
	require.True(t, ok)
	require.Equal(t, "tabs", name)

	_, ok = c.GetID("nonesuch")
	require.False(t, ok)
}

func TestCollectionCache_PutIsVisibleInBothDirections(t *testing.T) {
	c := NewCollectionCache()
	c.Put(100, "custom")

	id, ok := c.GetID("custom")
	require.True(t, ok)
	require.Equal(t, int32(100), id)

	name, ok := c.GetName(100)
	require.True(t, ok)
	require.Equal(t, "custom", name)
}

func TestCollectionCache_ConcurrentReadersAndWriters(t *testing.T) {
	c := NewCollectionCache()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Put(int32(FirstCustomCollectionID+i), fmt.Sprintf("coll%d", i))
		}(i)
		go func(i int) {
			defer wg.Done()
			// A reader must never see one direction without the other.
			if id, ok := c.GetID(fmt.Sprintf("coll%d", i)); ok {
				name, ok := c.GetName(id)
				require.True(t, ok)
				require.Equal(t, fmt.Sprintf("coll%d", i), name)
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < 20; i++ {
		id, ok := c.GetID(fmt.Sprintf("coll%d", i))
		require.True(t, ok)
		require.Equal(t, int32(FirstCustomCollectionID+i), id)
	}
}

func TestSortingFromString(t *testing.T) {
	require.Equal(t, SortNewest, SortingFromString("newest"))
	require.Equal(t, SortOldest, SortingFromString("oldest"))
	require.Equal(t, SortIndex, SortingFromString("index"))
	require.Equal(t, SortNone, SortingFromString(""))
	require.Equal(t, SortNone, SortingFromString("bogus"))
}
