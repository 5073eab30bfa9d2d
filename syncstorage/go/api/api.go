// Package api exposes the storage backend over the sync 1.5 HTTP protocol.
//
// Each handler checks a DB handle out of the pool, runs one transaction, and
// renders JSON or application/newlines. Authentication is out of scope; the
// user id in the path is taken as already validated.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/10allday-services/syncstorage/go/httputils"
	"github.com/10allday-services/syncstorage/go/metrics2"
	"github.com/10allday-services/syncstorage/go/now"
	"github.com/10allday-services/syncstorage/go/skerr"
	"github.com/10allday-services/syncstorage/syncstorage/go/config"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

const (
	headerLastModified   = "X-Last-Modified"
	headerWeaveTimestamp = "X-Weave-Timestamp"
	headerWeaveRecords   = "X-Weave-Records"
	headerWeaveNext      = "X-Weave-Next-Offset"
)

// API routes sync protocol requests onto a db.Pool.
type API struct {
	pool    db.Pool
	cfg     *config.Config
	version string
}

// New returns an API serving the given backend.
func New(pool db.Pool, cfg *config.Config, version string) *API {
	return &API{
		pool:    pool,
		cfg:     cfg,
		version: version,
	}
}

// AddHandlers registers all endpoints on r.
func (a *API) AddHandlers(r chi.Router) {
	r.Get("/__heartbeat__", a.heartbeatHandler)
	r.Get("/__lbheartbeat__", a.lbHeartbeatHandler)
	r.Get("/__version__", a.versionHandler)

	r.Route("/1.5/{uid}", func(r chi.Router) {
		r.Use(weaveTimestampMiddleware)
		r.Get("/info/collections", a.infoCollectionsHandler)
		r.Get("/info/collection_counts", a.infoCollectionCountsHandler)
		r.Get("/info/collection_usage", a.infoCollectionUsageHandler)
		r.Get("/info/quota", a.infoQuotaHandler)
		r.Get("/info/configuration", a.infoConfigurationHandler)
		r.Delete("/storage", a.deleteStorageHandler)
		r.Get("/storage/{collection}", a.getCollectionHandler)
		r.Post("/storage/{collection}", a.postCollectionHandler)
		r.Delete("/storage/{collection}", a.deleteCollectionHandler)
		r.Get("/storage/{collection}/{bso}", a.getBsoHandler)
		r.Put("/storage/{collection}/{bso}", a.putBsoHandler)
		r.Delete("/storage/{collection}/{bso}", a.deleteBsoHandler)
	})
}

// weaveTimestampMiddleware stamps every response with X-Weave-Timestamp: the
// current time, or X-Last-Modified when that is later (a write in this
// request produced it).
func weaveTimestampMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&weaveWriter{ResponseWriter: w, ctx: r.Context()}, r)
	})
}

type weaveWriter struct {
	http.ResponseWriter
	ctx         context.Context
	wroteHeader bool
}

func (w *weaveWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		ts := timestamp.FromTime(now.Now(w.ctx))
		if lm := w.Header().Get(headerLastModified); lm != "" {
			if parsed, err := timestamp.FromHeader(lm); err == nil && parsed > ts {
				ts = parsed
			}
		}
		w.Header().Set(headerWeaveTimestamp, ts.AsHeader())
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *weaveWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// incRequestCounter bumps the per-endpoint request counter.
func incRequestCounter(name string) {
	metrics2.GetCounter("syncstorage_request", map[string]string{"endpoint": name}).Inc(1)
}

// reportError maps backend error kinds onto protocol statuses. Anything
// unrecognized is an internal error.
func (a *API) reportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrConflict):
		w.Header().Set("Retry-After", "10")
		httputils.ReportError(w, err, "Concurrent write, retry later.", http.StatusServiceUnavailable)
	case errors.Is(err, db.ErrQuota):
		httputils.ReportError(w, err, "Over quota.", http.StatusForbidden)
	case errors.Is(err, db.ErrBatchNotFound):
		httputils.ReportError(w, err, "Unknown or expired batch.", http.StatusBadRequest)
	case errors.Is(err, db.ErrBsoNotFound), errors.Is(err, db.ErrCollectionNotFound):
		httputils.ReportError(w, err, "Not found.", http.StatusNotFound)
	case errors.Is(err, db.ErrIntegrity):
		httputils.ReportError(w, err, "Precondition failed.", http.StatusPreconditionFailed)
	default:
		httputils.ReportError(w, err, "Internal error.", http.StatusInternalServerError)
	}
}

// begin checks a handle out of the pool and opens a transaction, taking the
// collection lock when collection is non-empty. On failure it reports the
// error and returns ok=false. The caller must defer h.Close(), which rolls
// back anything left open.
func (a *API) begin(w http.ResponseWriter, r *http.Request, forWrite bool, collection string) (db.DB, db.UserID, bool) {
	ctx := r.Context()
	uid, err := userID(r)
	if err != nil {
		httputils.ReportError(w, err, "Invalid user id.", http.StatusBadRequest)
		return nil, 0, false
	}
	h, err := a.pool.Get(ctx)
	if err != nil {
		a.reportError(w, err)
		return nil, 0, false
	}
	if err := h.Begin(ctx, forWrite); err != nil {
		h.Close()
		a.reportError(w, err)
		return nil, 0, false
	}
	if collection != "" {
		lock := h.LockForRead
		if forWrite {
			lock = h.LockForWrite
		}
		if err := lock(ctx, db.LockCollection{UserID: uid, Collection: collection}); err != nil {
			h.Close()
			a.reportError(w, err)
			return nil, 0, false
		}
	}
	return h, uid, true
}

// commit finishes the transaction; on failure it reports and returns false.
func (a *API) commit(ctx context.Context, w http.ResponseWriter, h db.DB) bool {
	if err := h.Commit(ctx); err != nil {
		a.reportError(w, err)
		return false
	}
	return true
}

func userID(r *http.Request) (db.UserID, error) {
	raw := chi.URLParam(r, "uid")
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || uid < 0 {
		return 0, skerr.Fmt("invalid uid %q", raw)
	}
	return db.UserID(uid), nil
}

func collectionParam(r *http.Request) string {
	return chi.URLParam(r, "collection")
}

func bsoParam(r *http.Request) string {
	return chi.URLParam(r, "bso")
}
