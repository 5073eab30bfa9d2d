package db

import (
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// The parameter records passed across the DB interface. Every record carries
// the user id; operations on a collection carry its user-visible name.

// LockCollection names the (user, collection) pair a transaction locks.
type LockCollection struct {
	UserID     UserID
	Collection string
}

// BsoQuery is the filter/order/pagination part of a collection read.
type BsoQuery struct {
	// Newer keeps only BSOs with modified strictly greater than this.
	Newer *timestamp.Timestamp
	// Older keeps only BSOs with modified strictly less than this.
	Older *timestamp.Timestamp
	// IDs, when non-empty, restricts results to these ids.
	IDs []string
	// Limit caps the page size.
	Limit *int
	// Offset is the opaque continuation token from a previous page. Its
	// contents are chosen by the backend and must round-trip exactly.
	Offset *string
	Sort   Sorting
}

// GetBsos selects BSOs (or ids, via GetBsoIDs) from one collection.
type GetBsos struct {
	UserID     UserID
	Collection string
	Query      BsoQuery
}

// GetBso addresses a single BSO.
type GetBso struct {
	UserID     UserID
	Collection string
	ID         string
}

// DeleteCollection removes all BSOs of one collection.
type DeleteCollection struct {
	UserID     UserID
	Collection string
}

// DeleteBsos removes a set of BSOs by id.
type DeleteBsos struct {
	UserID     UserID
	Collection string
	IDs        []string
}

// DeleteBso removes one BSO.
type DeleteBso struct {
	UserID     UserID
	Collection string
	ID         string
}

// PutBso writes one BSO. Nil fields leave an existing BSO's stored values
// untouched; on insert, Payload defaults to the empty string and TTL to the
// configured maximum. TTL is relative seconds.
type PutBso struct {
	UserID     UserID
	Collection string
	ID         string
	SortIndex  *int32
	Payload    *string
	TTL        *int64
}

// PostBso is one element of a multi-BSO write or batch append. Field
// semantics match PutBso.
type PostBso struct {
	ID        string  `json:"id"`
	SortIndex *int32  `json:"sortindex,omitempty"`
	Payload   *string `json:"payload,omitempty"`
	TTL       *int64  `json:"ttl,omitempty"`
}

// PostBsos writes a set of BSOs into one collection. Failed carries ids the
// transport layer already rejected; the backend adds its own per-id
// failures to it.
type PostBsos struct {
	UserID     UserID
	Collection string
	BSOs       []PostBso
	Failed     map[string]string
}

// CreateBatch starts a staged upload, optionally with a first set of BSOs.
type CreateBatch struct {
	UserID     UserID
	Collection string
	BSOs       []PostBso
}

// ValidateBatch asks whether a batch id is live.
type ValidateBatch struct {
	UserID     UserID
	Collection string
	ID         string
}

// AppendToBatch stages more BSOs onto an open batch.
type AppendToBatch struct {
	UserID     UserID
	Collection string
	ID         string
	BSOs       []PostBso
}

// GetBatch fetches a batch with its staged BSOs.
type GetBatch struct {
	UserID     UserID
	Collection string
	ID         string
}

// CommitBatch applies a previously fetched batch.
type CommitBatch struct {
	UserID     UserID
	Collection string
	Batch      Batch
}
