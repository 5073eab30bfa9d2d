// Package sklogimpl defines the interface for the underlying logger used by
// sklog and holds the process-wide instance of it.
package sklogimpl

import (
	"sync/atomic"
)

// Severity identifies one logging level.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// String returns the name the severity is reported under.
func (s Severity) String() string {
	switch s {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// AllSeverities lists every severity, used when building metrics per level.
var AllSeverities = []Severity{Debug, Info, Warning, Error, Fatal}

// Logger is implemented by logging backends, e.g. stdlogging.
type Logger interface {
	// Log records one log line. depth is the number of stack frames to skip
	// when reporting the call site. If format is the empty string the args
	// are formatted as fmt.Sprint would, otherwise as fmt.Sprintf.
	Log(depth int, severity Severity, format string, args ...interface{})

	// Flush forces any buffered log lines out.
	Flush()
}

// MetricsCallback is called once per log line with the severity name, so
// callers can count log lines as metrics.
type MetricsCallback func(severity string)

var (
	logger          atomic.Value // of Logger
	metricsCallback atomic.Value // of MetricsCallback
)

// SetLogger changes the package to use the given Logger. Must be called
// before any logging happens, typically from an init function.
func SetLogger(l Logger) {
	logger.Store(l)
}

// SetMetricsCallback registers a callback invoked for every log line.
func SetMetricsCallback(cb MetricsCallback) {
	metricsCallback.Store(cb)
}

// Log passes one log line to the configured Logger.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	if cb, ok := metricsCallback.Load().(MetricsCallback); ok && cb != nil {
		cb(severity.String())
	}
	l, ok := logger.Load().(Logger)
	if !ok {
		return
	}
	l.Log(depth+1, severity, format, args...)
}

// Flush flushes the configured Logger.
func Flush() {
	if l, ok := logger.Load().(Logger); ok {
		l.Flush()
	}
}
