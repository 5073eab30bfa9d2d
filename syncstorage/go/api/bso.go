package api

import (
	"net/http"

	"github.com/10allday-services/syncstorage/go/httputils"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// getBsoHandler returns one BSO, or 404 when it is absent or expired.
func (a *API) getBsoHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("get_bso")
	ctx := r.Context()
	collection := collectionParam(r)
	h, uid, ok := a.begin(w, r, false, collection)
	if !ok {
		return
	}
	defer h.Close()
	bso, err := h.GetBso(ctx, db.GetBso{UserID: uid, Collection: collection, ID: bsoParam(r)})
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}
	if bso == nil {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	w.Header().Set(headerLastModified, bso.Modified.AsHeader())
	httputils.WriteJSON(w, bso)
}

// putBsoHandler inserts or updates one BSO and answers with its modified
// timestamp.
func (a *API) putBsoHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("put_bso")
	ctx := r.Context()
	collection := collectionParam(r)
	params, err := a.readPutBso(w, r, bsoParam(r))
	if err != nil {
		httputils.ReportError(w, err, "Invalid request body.", http.StatusBadRequest)
		return
	}
	h, uid, ok := a.begin(w, r, true, collection)
	if !ok {
		return
	}
	defer h.Close()
	params.UserID = uid
	params.Collection = collection
	modified, err := h.PutBso(ctx, params)
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}
	w.Header().Set(headerLastModified, modified.AsHeader())
	httputils.WriteJSON(w, modified)
}

// deleteBsoHandler removes one BSO; deleting an absent BSO is a 404.
func (a *API) deleteBsoHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("delete_bso")
	ctx := r.Context()
	collection := collectionParam(r)
	h, uid, ok := a.begin(w, r, true, collection)
	if !ok {
		return
	}
	defer h.Close()
	modified, err := h.DeleteBso(ctx, db.DeleteBso{UserID: uid, Collection: collection, ID: bsoParam(r)})
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}
	httputils.WriteJSON(w, map[string]timestamp.Timestamp{"modified": modified})
}
