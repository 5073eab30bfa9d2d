package db

import (
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// BSO is a Basic Storage Object, one record in a user's collection.
type BSO struct {
	ID        string              `json:"id"`
	Modified  timestamp.Timestamp `json:"modified"`
	Payload   string              `json:"payload"`
	SortIndex *int32              `json:"sortindex,omitempty"`

	// Expiry is the absolute expiry instant in milliseconds. Not serialized;
	// clients deal in relative TTLs only.
	Expiry int64 `json:"-"`
}

// TTL returns the remaining lifetime in whole seconds relative to the BSO's
// modified time.
func (b BSO) TTL() int64 {
	return (b.Expiry - b.Modified.AsMilliseconds()) / 1000
}

// Paginated is one page of query results. Offset carries the opaque
// continuation token of the next page and is nil on the last page.
type Paginated[T any] struct {
	Items  []T
	Offset *string
}

// Sorting is the order BSO queries return items in.
type Sorting int

const (
	SortNone Sorting = iota
	SortNewest
	SortOldest
	SortIndex
)

// SortingFromString maps the "sort" query parameter to a Sorting. Unknown
// values sort by nothing, matching the protocol's lenient parsing.
func SortingFromString(s string) Sorting {
	switch s {
	case "newest":
		return SortNewest
	case "oldest":
		return SortOldest
	case "index":
		return SortIndex
	}
	return SortNone
}

// PostBsosResult reports the outcome of a multi-BSO write: the shared
// modified timestamp, the ids written, and per-id failure reasons.
type PostBsosResult struct {
	Modified timestamp.Timestamp `json:"modified"`
	Success  []string            `json:"success"`
	Failed   map[string]string   `json:"failed"`
}

// Batch is a staged multi-request upload. ID doubles as the creation
// timestamp in milliseconds, which makes it unique per user under the
// monotonic timestamp invariant.
type Batch struct {
	ID       string
	Modified timestamp.Timestamp
	BSOs     []PostBso
}
