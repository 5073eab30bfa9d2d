package timestamp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/10allday-services/syncstorage/go/now"
)

var testTime = time.Date(2022, time.January, 12, 16, 0, 0, 120*int(time.Millisecond), time.UTC)

func TestAsHeader_TwoFractionalDigits(t *testing.T) {
	ts := FromTime(testTime)
	require.Equal(t, "1642003200.12", ts.AsHeader())
	require.Equal(t, int64(1642003200120), ts.AsMilliseconds())
}

func TestFromHeader_RoundTrip(t *testing.T) {
	ts, err := FromHeader("1642003200.12")
	require.NoError(t, err)
	require.Equal(t, "1642003200.12", ts.AsHeader())
}

func TestFromHeader_RejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "abc", "12.3.4", "-1.00", "1e999"} {
		_, err := FromHeader(bad)
		require.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestMarshalJSON_MatchesHeaderForm(t *testing.T) {
	b, err := FromTime(testTime).MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "1642003200.12", string(b))

	var parsed Timestamp
	require.NoError(t, parsed.UnmarshalJSON(b))
	require.Equal(t, FromTime(testTime), parsed)
}

func TestSource_StrictlyIncreasingOnFrozenClock(t *testing.T) {
	ctx := now.TimeTravelingContext(testTime)
	s := NewSource()
	prev := s.Now(ctx)
	for i := 0; i < 100; i++ {
		next := s.Now(ctx)
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestSource_AdvancesPastClockRegression(t *testing.T) {
	ctx := now.TimeTravelingContext(testTime)
	s := NewSource()
	first := s.Now(ctx)
	ctx.SetTime(testTime.Add(-time.Hour))
	second := s.Now(ctx)
	require.Equal(t, first+1, second)

	// Once the clock catches up again, real time wins.
	ctx.SetTime(testTime.Add(time.Hour))
	third := s.Now(ctx)
	require.Equal(t, FromTime(testTime.Add(time.Hour)), third)
}

func TestSource_FollowsAdvancingClock(t *testing.T) {
	ctx := now.TimeTravelingContext(testTime)
	s := NewSource()
	first := s.Now(ctx)
	ctx.SetTime(testTime.Add(50 * time.Millisecond))
	second := s.Now(ctx)
	require.Equal(t, first+50, second)
}

func TestSource_RealClock(t *testing.T) {
	s := NewSource()
	ctx := context.Background()
	prev := s.Now(ctx)
	for i := 0; i < 1000; i++ {
		next := s.Now(ctx)
		require.Greater(t, next, prev)
		prev = next
	}
}
