// Package httputils provides common utilities for HTTP servers.
package httputils

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/10allday-services/syncstorage/go/metrics2"
	"github.com/10allday-services/syncstorage/go/sklog"
)

// ReportError formats an HTTP error response and also logs the detailed error
// message. The message parameter is returned in the HTTP response. If it is
// not provided then "Unknown error" will be returned instead.
func ReportError(w http.ResponseWriter, err error, message string, code int) {
	sklog.Error(message, err)
	if err != io.ErrClosedPipe {
		httpErrMsg := message
		if message == "" {
			httpErrMsg = "Unknown error"
		}
		http.Error(w, httpErrMsg, code)
	}
}

// WriteJSON writes body as a JSON encoded HTTP response with the right
// mime-type, and logs errors if the body failed to write.
func WriteJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	var b bytes.Buffer
	if err := json.NewEncoder(&b).Encode(body); err != nil {
		ReportError(w, err, "Failed to encode JSON response.", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(b.Bytes()); err != nil {
		sklog.Errorf("Failed to write JSON response: %s", err)
	}
}

// responseProxy implements http.ResponseWriter and records the status codes.
type responseProxy struct {
	http.ResponseWriter
	wroteHeader bool
}

func (rp *responseProxy) WriteHeader(code int) {
	if !rp.wroteHeader {
		metrics2.GetCounter("http_response", map[string]string{"statuscode": strconv.Itoa(code)}).Inc(1)
		rp.ResponseWriter.WriteHeader(code)
		rp.wroteHeader = true
	}
}

// LoggingRequestResponse records parts of the request and the response to the
// logs, and counts response codes as metrics.
func LoggingRequestResponse(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				sklog.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "Server error", http.StatusInternalServerError)
			}
		}()
		begin := time.Now()
		h.ServeHTTP(&responseProxy{ResponseWriter: w}, r)
		sklog.Infof("%s %s %s", r.Method, r.URL.Path, time.Since(begin))
	})
}

// HealthzHandler responds to health checks from the load balancer.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
