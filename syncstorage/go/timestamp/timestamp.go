// Package timestamp provides the modification timestamps handed out to sync
// clients.
//
// Timestamps are stored with millisecond precision but presented to clients
// as seconds with two fractional digits, e.g. "1642003200.12". A shared
// Source guarantees that successive writes in one process never observe the
// same or a regressing value, which is what makes the per-user "modified"
// ordering trustworthy.
package timestamp

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/10allday-services/syncstorage/go/now"
	"github.com/10allday-services/syncstorage/go/skerr"
)

// Timestamp is an instant in milliseconds since the Unix epoch.
type Timestamp int64

// FromMilliseconds returns the Timestamp for the given milliseconds since
// the epoch.
func FromMilliseconds(ms int64) Timestamp {
	return Timestamp(ms)
}

// FromTime converts a time.Time, truncating to millisecond precision.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixNano() / int64(time.Millisecond))
}

// FromHeader parses the decimal-seconds form clients send in headers such as
// X-If-Modified-Since. It fails on anything that is not a non-negative
// decimal number.
func FromHeader(s string) (Timestamp, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, skerr.Wrapf(err, "invalid timestamp header %q", s)
	}
	if f < 0 {
		return 0, skerr.Fmt("invalid timestamp header %q: negative", s)
	}
	// Round rather than truncate; 0.12 seconds is not representable exactly
	// as a float and may arrive as 0.119999...
	return Timestamp(math.Round(f * 1000)), nil
}

// AsMilliseconds returns the timestamp in milliseconds since the epoch.
func (t Timestamp) AsMilliseconds() int64 {
	return int64(t)
}

// AsSeconds returns the timestamp as fractional seconds since the epoch.
func (t Timestamp) AsSeconds() float64 {
	return float64(t) / 1000.0
}

// AsHeader renders the timestamp the way it appears in X-Last-Modified and
// X-Weave-Timestamp: seconds with two fractional digits.
func (t Timestamp) AsHeader() string {
	return strconv.FormatFloat(float64(t)/1000.0, 'f', 2, 64)
}

// AsTime converts back to a time.Time.
func (t Timestamp) AsTime() time.Time {
	return time.Unix(0, int64(t)*int64(time.Millisecond)).UTC()
}

// MarshalJSON renders the timestamp as the two-decimal seconds number the
// sync protocol uses in response bodies, matching AsHeader.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(t.AsHeader()), nil
}

// UnmarshalJSON parses the two-decimal seconds number form.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	parsed, err := FromHeader(string(b))
	if err != nil {
		return skerr.Wrap(err)
	}
	*t = parsed
	return nil
}

// Source hands out strictly increasing Timestamps.
//
// The wall clock is only consulted through now.Now so tests can take control
// of it; if the clock repeats or runs backwards at millisecond granularity
// the source advances one millisecond past the last value it returned.
type Source struct {
	mtx  sync.Mutex
	last Timestamp
}

// NewSource returns a Source. One Source is shared by all connections of a
// backend pool so timestamps are ordered across collections of a user.
func NewSource() *Source {
	return &Source{}
}

// Now returns a Timestamp strictly greater than any previous return value.
func (s *Source) Now(ctx context.Context) Timestamp {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	t := FromTime(now.Now(ctx))
	if t <= s.last {
		t = s.last + 1
	}
	s.last = t
	return t
}
