// Package metrics2 provides application metrics backed by Prometheus.
//
// Metrics are identified by a measurement name plus an optional set of tags;
// the package keeps a process-global default client so callers can just do
//
//	metrics2.GetCounter("request_get_bso").Inc(1)
package metrics2

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/10allday-services/syncstorage/go/sklog"
)

// Int64Metric is a metric which reports an int64 value.
type Int64Metric interface {
	// Get returns the current value of the metric.
	Get() int64

	// Update sets the current value of the metric.
	Update(v int64)
}

// Counter is a metric which can be incremented and decremented.
type Counter interface {
	// Get returns the current value of the counter.
	Get() int64

	// Inc increments the counter by the given quantity.
	Inc(i int64)

	// Dec decrements the counter by the given quantity.
	Dec(i int64)

	// Reset sets the counter to zero.
	Reset()
}

// Liveness keeps a time-since-last-successful-update metric, in seconds.
//
// It is used to keep track of periodic processes to make sure that they are
// running successfully.
type Liveness interface {
	// Get returns the seconds since the last successful update.
	Get() int64

	// Reset should be called when some work has been successfully completed.
	Reset()
}

// Timer measures elapsed time and reports a single data point on Stop.
type Timer interface {
	// Start resets the timer.
	Start()

	// Stop reports the time elapsed since Start (or creation) and returns it.
	Stop() time.Duration
}

// Client is a set of metrics.
type Client interface {
	// GetInt64Metric returns an Int64Metric with the given name and tags.
	GetInt64Metric(name string, tags ...map[string]string) Int64Metric

	// GetCounter returns a Counter with the given name and tags.
	GetCounter(name string, tags ...map[string]string) Counter

	// NewLiveness returns a Liveness with the given name and tags.
	NewLiveness(name string, tags ...map[string]string) Liveness

	// NewTimer returns a started Timer with the given name and tags.
	NewTimer(name string, tags ...map[string]string) Timer
}

var defaultClient Client = newPromClient()

// GetDefaultClient returns the default Client.
func GetDefaultClient() Client {
	return defaultClient
}

// GetInt64Metric returns an Int64Metric from the default client.
func GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return defaultClient.GetInt64Metric(name, tags...)
}

// GetCounter returns a Counter from the default client.
func GetCounter(name string, tags ...map[string]string) Counter {
	return defaultClient.GetCounter(name, tags...)
}

// NewLiveness returns a Liveness from the default client.
func NewLiveness(name string, tags ...map[string]string) Liveness {
	return defaultClient.NewLiveness(name, tags...)
}

// NewTimer returns a started Timer from the default client.
func NewTimer(name string, tags ...map[string]string) Timer {
	return defaultClient.NewTimer(name, tags...)
}

// InitPrometheus starts serving the /metrics endpoint on the given port,
// e.g. ":20000".
func InitPrometheus(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		sklog.Fatal(http.ListenAndServe(port, mux))
	}()
}
