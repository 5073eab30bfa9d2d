package db

import (
	"sync"
)

// StandardCollections are the well-known collections every deployment knows
// about, bound to reserved ids. Ids below FirstCustomCollectionID are never
// handed out by the allocator.
var StandardCollections = map[int32]string{
	1:  "clients",
	2:  "crypto",
	3:  "forms",
	4:  "history",
	5:  "keys",
	6:  "meta",
	7:  "bookmarks",
	8:  "prefs",
	9:  "tabs",
	10: "passwords",
	11: "addons",
	12: "addresses",
	13: "creditcards",
}

// FirstCustomCollectionID is where the database sequence for new collection
// ids starts.
const FirstCustomCollectionID = 100

// CollectionCache is the process-wide bidirectional mapping between
// collection ids and names. Ids are global and immutable once assigned, so
// entries are only ever added. A single lock guards both directions so a
// reader can never observe half of a new pairing.
type CollectionCache struct {
	mtx    sync.RWMutex
	byName map[string]int32
	byID   map[int32]string
}

// NewCollectionCache returns a cache seeded with StandardCollections.
func NewCollectionCache() *CollectionCache {
	c := &CollectionCache{
		byName: make(map[string]int32, len(StandardCollections)),
		byID:   make(map[int32]string, len(StandardCollections)),
	}
	for id, name := range StandardCollections {
		c.byName[name] = id
		c.byID[id] = name
	}
	return c
}

// GetID returns the id for a name, if cached.
func (c *CollectionCache) GetID(name string) (int32, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	id, ok := c.byName[name]
	return id, ok
}

// GetName returns the name for an id, if cached.
func (c *CollectionCache) GetName(id int32) (string, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	name, ok := c.byID[id]
	return name, ok
}

// Put records a new (id, name) pairing. Both directions become visible
// atomically.
func (c *CollectionCache) Put(id int32, name string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.byName[name] = id
	c.byID[id] = name
}

// Fill bulk-loads pairings, e.g. from a table scan at startup.
func (c *CollectionCache) Fill(byID map[int32]string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for id, name := range byID {
		c.byName[name] = id
		c.byID[id] = name
	}
}
