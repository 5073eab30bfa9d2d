package api

import (
	"net/http"
	"strconv"

	"github.com/10allday-services/syncstorage/go/httputils"
)

const oneKB = 1024.0

// infoCollectionsHandler returns the name -> timestamp map of the user's
// collections.
func (a *API) infoCollectionsHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("info_collections")
	ctx := r.Context()
	h, uid, ok := a.begin(w, r, false, "")
	if !ok {
		return
	}
	defer h.Close()
	stamps, err := h.GetCollectionTimestamps(ctx, uid)
	if err != nil {
		a.reportError(w, err)
		return
	}
	lastModified, err := h.ExtractResource(ctx, uid, nil, nil)
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}
	w.Header().Set(headerLastModified, lastModified.AsHeader())
	w.Header().Set(headerWeaveRecords, strconv.Itoa(len(stamps)))
	httputils.WriteJSON(w, stamps)
}

// infoCollectionCountsHandler returns the name -> live BSO count map.
func (a *API) infoCollectionCountsHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("info_collection_counts")
	ctx := r.Context()
	h, uid, ok := a.begin(w, r, false, "")
	if !ok {
		return
	}
	defer h.Close()
	counts, err := h.GetCollectionCounts(ctx, uid)
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}
	w.Header().Set(headerWeaveRecords, strconv.Itoa(len(counts)))
	httputils.WriteJSON(w, counts)
}

// infoCollectionUsageHandler returns the name -> used KiB map.
func (a *API) infoCollectionUsageHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("info_collection_usage")
	ctx := r.Context()
	h, uid, ok := a.begin(w, r, false, "")
	if !ok {
		return
	}
	defer h.Close()
	usage, err := h.GetCollectionUsage(ctx, uid)
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}
	kib := make(map[string]float64, len(usage))
	for name, bytes := range usage {
		kib[name] = float64(bytes) / oneKB
	}
	w.Header().Set(headerWeaveRecords, strconv.Itoa(len(kib)))
	httputils.WriteJSON(w, kib)
}

// infoQuotaHandler returns [usedKiB, quota]; the quota slot is null, as the
// protocol leaves it when no hard ceiling is reported.
func (a *API) infoQuotaHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("info_quota")
	ctx := r.Context()
	h, uid, ok := a.begin(w, r, false, "")
	if !ok {
		return
	}
	defer h.Close()
	usage, err := h.GetStorageUsage(ctx, uid)
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}
	used := float64(usage) / oneKB
	httputils.WriteJSON(w, []*float64{&used, nil})
}

// infoConfigurationHandler returns the client-visible limits.
func (a *API) infoConfigurationHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("info_configuration")
	httputils.WriteJSON(w, a.cfg.Limits())
}
