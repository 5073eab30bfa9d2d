package metrics2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetCounter_IncAndReset(t *testing.T) {
	c := GetCounter("test_counter_inc_and_reset")
	c.Reset()
	c.Inc(3)
	c.Inc(2)
	require.Equal(t, int64(5), c.Get())
	c.Dec(1)
	require.Equal(t, int64(4), c.Get())
	c.Reset()
	require.Equal(t, int64(0), c.Get())
}

func TestGetCounter_SameNameAndTagsReturnsSameMetric(t *testing.T) {
	a := GetCounter("test_counter_identity", map[string]string{"path": "a"})
	b := GetCounter("test_counter_identity", map[string]string{"path": "a"})
	other := GetCounter("test_counter_identity", map[string]string{"path": "b"})
	a.Reset()
	other.Reset()
	a.Inc(1)
	require.Equal(t, int64(1), b.Get())
	require.Equal(t, int64(0), other.Get())
}

func TestGetInt64Metric_CleansInvalidChars(t *testing.T) {
	m := GetInt64Metric("test.metric-with/bad.chars")
	m.Update(7)
	require.Equal(t, int64(7), m.Get())
}
