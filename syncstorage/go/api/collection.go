package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/10allday-services/syncstorage/go/httputils"
	"github.com/10allday-services/syncstorage/go/skerr"
	"github.com/10allday-services/syncstorage/go/sklog"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

// writeItems renders a page of collection results as a JSON array or, when
// the client asked for application/newlines, as one JSON document per line
// with embedded newlines escaped.
func writeItems[T any](w http.ResponseWriter, r *http.Request, items []T) {
	if !strings.Contains(r.Header.Get("Accept"), contentTypeNewlines) {
		httputils.WriteJSON(w, items)
		return
	}
	var sb strings.Builder
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			continue
		}
		sb.WriteString(strings.ReplaceAll(string(line), "\n", `\u000a`))
		sb.WriteByte('\n')
	}
	body := sb.String()
	w.Header().Set("Content-Type", contentTypeNewlines)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if _, err := w.Write([]byte(body)); err != nil {
		sklog.Errorf("Failed to write newlines response: %s", err)
	}
}

// getCollectionHandler lists a collection's BSOs (ids only, or full records
// with ?full). A collection the user never wrote lists as empty.
func (a *API) getCollectionHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("get_collection")
	ctx := r.Context()
	collection := collectionParam(r)
	full, query, err := parseCollectionQuery(r)
	if err != nil {
		httputils.ReportError(w, err, "Invalid query parameters.", http.StatusBadRequest)
		return
	}
	h, uid, ok := a.begin(w, r, false, collection)
	if !ok {
		return
	}
	defer h.Close()

	params := db.GetBsos{UserID: uid, Collection: collection, Query: query}
	var bsos *db.Paginated[db.BSO]
	var ids *db.Paginated[string]
	records := 0
	var offset *string
	if full {
		bsos, err = h.GetBsos(ctx, params)
		if err == nil {
			records, offset = len(bsos.Items), bsos.Offset
		}
	} else {
		ids, err = h.GetBsoIDs(ctx, params)
		if err == nil {
			records, offset = len(ids.Items), ids.Offset
		}
	}
	if err != nil {
		if !errors.Is(err, db.ErrCollectionNotFound) {
			a.reportError(w, err)
			return
		}
		// Absent collections list as empty for b/w compat. The item slices
		// must be non-nil so the body is [] rather than null.
		bsos = &db.Paginated[db.BSO]{Items: []db.BSO{}}
		ids = &db.Paginated[string]{Items: []string{}}
	}

	lastModified, err := h.ExtractResource(ctx, uid, &collection, nil)
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}

	w.Header().Set(headerLastModified, lastModified.AsHeader())
	w.Header().Set(headerWeaveRecords, strconv.Itoa(records))
	if offset != nil {
		w.Header().Set(headerWeaveNext, *offset)
	}
	if full {
		writeItems(w, r, bsos.Items)
	} else {
		writeItems(w, r, ids.Items)
	}
}

// deleteStorageHandler removes everything the user owns. The write
// transaction takes no collection lock since there is no collection.
func (a *API) deleteStorageHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("delete_all")
	ctx := r.Context()
	h, uid, ok := a.begin(w, r, true, "")
	if !ok {
		return
	}
	defer h.Close()
	modified, err := h.DeleteStorage(ctx, uid)
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}
	httputils.WriteJSON(w, modified)
}

// deleteCollectionHandler removes a whole collection, or just ?ids= from it.
// Deleting what is not there answers with the storage timestamp rather than
// an error.
func (a *API) deleteCollectionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection := collectionParam(r)
	_, query, err := parseCollectionQuery(r)
	if err != nil {
		httputils.ReportError(w, err, "Invalid query parameters.", http.StatusBadRequest)
		return
	}
	h, uid, ok := a.begin(w, r, true, collection)
	if !ok {
		return
	}
	defer h.Close()

	deleteBsos := len(query.IDs) > 0
	var modified timestamp.Timestamp
	if deleteBsos {
		incRequestCounter("delete_bsos")
		modified, err = h.DeleteBsos(ctx, db.DeleteBsos{UserID: uid, Collection: collection, IDs: query.IDs})
	} else {
		incRequestCounter("delete_collection")
		modified, err = h.DeleteCollection(ctx, db.DeleteCollection{UserID: uid, Collection: collection})
	}
	if err != nil {
		if !db.IsNotFound(err) {
			a.reportError(w, err)
			return
		}
		modified, err = h.GetStorageTimestamp(ctx, uid)
		if err != nil {
			a.reportError(w, err)
			return
		}
	}
	if !a.commit(ctx, w, h) {
		return
	}
	if deleteBsos {
		w.Header().Set(headerLastModified, modified.AsHeader())
	}
	httputils.WriteJSON(w, modified)
}

// batchResponse is the body of a batch POST reply. Batch is set while the
// batch stays open, Modified once it has been committed.
type batchResponse struct {
	Batch    string               `json:"batch,omitempty"`
	Modified *timestamp.Timestamp `json:"modified,omitempty"`
	Success  []string             `json:"success"`
	Failed   map[string]string    `json:"failed"`
}

// postCollectionHandler writes a set of BSOs, either directly or through the
// batch protocol when a batch query parameter is present.
func (a *API) postCollectionHandler(w http.ResponseWriter, r *http.Request) {
	incRequestCounter("post_collection")
	ctx := r.Context()
	collection := collectionParam(r)
	valid, failed, err := a.readPostBsos(w, r)
	if err != nil {
		httputils.ReportError(w, err, "Invalid request body.", http.StatusBadRequest)
		return
	}
	batch := parseBatchArgs(r)
	h, uid, ok := a.begin(w, r, true, collection)
	if !ok {
		return
	}
	defer h.Close()

	if !batch.present {
		result, err := h.PostBsos(ctx, db.PostBsos{
			UserID:     uid,
			Collection: collection,
			BSOs:       valid,
			Failed:     failed,
		})
		if err != nil {
			a.reportError(w, err)
			return
		}
		if !a.commit(ctx, w, h) {
			return
		}
		w.Header().Set(headerLastModified, result.Modified.AsHeader())
		httputils.WriteJSON(w, result)
		return
	}
	a.postCollectionBatch(w, r, h, uid, collection, valid, failed, batch)
}

// postCollectionBatch runs the staged-upload state machine for one POST.
func (a *API) postCollectionBatch(w http.ResponseWriter, r *http.Request, h db.DB, uid db.UserID, collection string, valid []db.PostBso, failed map[string]string, batch batchArgs) {
	incRequestCounter("post_collection_batch")
	ctx := r.Context()

	id := batch.id
	if batch.create {
		var err error
		id, err = h.CreateBatch(ctx, db.CreateBatch{UserID: uid, Collection: collection})
		if err != nil {
			a.reportError(w, err)
			return
		}
	} else {
		live, err := h.ValidateBatch(ctx, db.ValidateBatch{UserID: uid, Collection: collection, ID: id})
		if err != nil {
			a.reportError(w, err)
			return
		}
		if !live {
			a.reportError(w, skerr.Wrapf(db.ErrBatchNotFound, "id %q", id))
			return
		}
	}

	success := []string{}
	validIDs := make([]string, 0, len(valid))
	for _, b := range valid {
		validIDs = append(validIDs, b.ID)
	}
	var stageErr error
	if batch.commit && len(valid) > 0 {
		// Committing anyway, so the pending records go straight to the
		// collection instead of being staged and immediately unstaged.
		_, stageErr = h.PostBsos(ctx, db.PostBsos{UserID: uid, Collection: collection, BSOs: valid})
	} else if len(valid) > 0 {
		stageErr = h.AppendToBatch(ctx, db.AppendToBatch{UserID: uid, Collection: collection, ID: id, BSOs: valid})
	}
	if stageErr != nil {
		if errors.Is(stageErr, db.ErrConflict) || errors.Is(stageErr, db.ErrQuota) {
			a.reportError(w, stageErr)
			return
		}
		for _, bsoID := range validIDs {
			failed[bsoID] = "db error"
		}
	} else {
		success = append(success, validIDs...)
	}

	if !batch.commit {
		if !a.commit(ctx, w, h) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		httputils.WriteJSON(w, batchResponse{Batch: id, Success: success, Failed: failed})
		return
	}

	staged, err := h.GetBatch(ctx, db.GetBatch{UserID: uid, Collection: collection, ID: id})
	if err != nil {
		a.reportError(w, err)
		return
	}
	if staged == nil {
		a.reportError(w, skerr.Wrapf(db.ErrBatchNotFound, "id %q", id))
		return
	}
	modified, err := h.CommitBatch(ctx, db.CommitBatch{UserID: uid, Collection: collection, Batch: *staged})
	if err != nil {
		a.reportError(w, err)
		return
	}
	if !a.commit(ctx, w, h) {
		return
	}
	w.Header().Set(headerLastModified, modified.AsHeader())
	httputils.WriteJSON(w, batchResponse{Modified: &modified, Success: success, Failed: failed})
}
