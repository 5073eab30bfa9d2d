package api

import (
	"net/http"

	"github.com/10allday-services/syncstorage/go/httputils"
	"github.com/10allday-services/syncstorage/go/sklog"
)

// heartbeatHandler reports process and database health (Dockerflow).
func (a *API) heartbeatHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"version": a.version,
	}
	ok, err := a.pool.Check(r.Context())
	if err != nil {
		sklog.Errorf("Heartbeat database check: %s", err)
		status["status"] = "Err"
		status["database"] = "Unknown"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		httputils.WriteJSON(w, status)
		return
	}
	if ok {
		status["status"] = "Ok"
		status["database"] = "Ok"
	} else {
		status["status"] = "Err"
		status["database"] = "Err"
	}
	httputils.WriteJSON(w, status)
}

// lbHeartbeatHandler answers load balancer probes without touching the
// database.
func (a *API) lbHeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	httputils.HealthzHandler(w, r)
}

// versionHandler serves the running version (Dockerflow).
func (a *API) versionHandler(w http.ResponseWriter, r *http.Request) {
	httputils.WriteJSON(w, map[string]string{
		"version": a.version,
		"source":  "https://github.com/10allday-services/syncstorage",
	})
}
