package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/10allday-services/syncstorage/go/skerr"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/timestamp"
)

const contentTypeNewlines = "application/newlines"

// parseCollectionQuery reads the protocol's collection query parameters:
// full, ids, newer, older, sort, limit, offset.
func parseCollectionQuery(r *http.Request) (bool, db.BsoQuery, error) {
	values := r.URL.Query()
	q := db.BsoQuery{
		Sort: db.SortingFromString(values.Get("sort")),
	}
	_, full := values["full"]

	if raw := values.Get("ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if !validBsoID(id) {
				return false, q, skerr.Fmt("invalid id %q in ids", id)
			}
			q.IDs = append(q.IDs, id)
		}
	}
	if raw := values.Get("newer"); raw != "" {
		ts, err := timestamp.FromHeader(raw)
		if err != nil {
			return false, q, skerr.Wrapf(err, "invalid newer")
		}
		q.Newer = &ts
	}
	if raw := values.Get("older"); raw != "" {
		ts, err := timestamp.FromHeader(raw)
		if err != nil {
			return false, q, skerr.Wrapf(err, "invalid older")
		}
		q.Older = &ts
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return false, q, skerr.Fmt("invalid limit %q", raw)
		}
		q.Limit = &limit
	}
	if raw := values.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n < 0 {
			return false, q, skerr.Fmt("invalid offset %q", raw)
		}
		offset := raw
		q.Offset = &offset
	}
	return full, q, nil
}

// batchArgs is the batch part of a POST's query string.
type batchArgs struct {
	// present is true when the batch parameter was given at all.
	present bool
	// create is true for batch=true: start a new batch.
	create bool
	// id is the existing batch id (when create is false).
	id string
	// commit is true when the upload should be applied.
	commit bool
}

func parseBatchArgs(r *http.Request) batchArgs {
	values := r.URL.Query()
	args := batchArgs{}
	if raw, ok := values["batch"]; ok && len(raw) > 0 {
		args.present = true
		if raw[0] == "true" || raw[0] == "" {
			args.create = true
		} else {
			args.id = raw[0]
		}
	}
	switch values.Get("commit") {
	case "1", "true":
		args.commit = true
	}
	return args
}

// validBsoID accepts 1-64 printable ASCII characters, the id alphabet the
// protocol allows.
func validBsoID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

const maxSortIndex = 999999999

// validateBso returns a failure reason, or "" when the record is acceptable.
func (a *API) validateBso(b db.PostBso) string {
	if !validBsoID(b.ID) {
		return "invalid id"
	}
	if b.SortIndex != nil && (*b.SortIndex > maxSortIndex || *b.SortIndex < -maxSortIndex) {
		return "invalid sortindex"
	}
	if b.TTL != nil && *b.TTL < 0 {
		return "invalid ttl"
	}
	if b.Payload != nil && len(*b.Payload) > a.cfg.MaxPayloadBytes {
		return "payload too large"
	}
	return ""
}

// readPostBsos parses a POST body (JSON array or application/newlines) and
// splits records into acceptable ones and a per-id failure map. Errors mean
// the request as a whole is malformed or over the POST limits.
func (a *API) readPostBsos(w http.ResponseWriter, r *http.Request) ([]db.PostBso, map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxRequestBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, skerr.Wrapf(err, "reading request body")
	}

	var bsos []db.PostBso
	if strings.HasPrefix(r.Header.Get("Content-Type"), contentTypeNewlines) {
		for _, line := range strings.Split(string(body), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			var b db.PostBso
			if err := json.Unmarshal([]byte(line), &b); err != nil {
				return nil, nil, skerr.Wrapf(err, "parsing newlines body")
			}
			bsos = append(bsos, b)
		}
	} else {
		if err := json.Unmarshal(body, &bsos); err != nil {
			return nil, nil, skerr.Wrapf(err, "parsing JSON body")
		}
	}

	if len(bsos) > a.cfg.MaxPostRecords {
		return nil, nil, skerr.Fmt("too many records: %d > %d", len(bsos), a.cfg.MaxPostRecords)
	}
	var totalBytes int64
	for _, b := range bsos {
		if b.Payload != nil {
			totalBytes += int64(len(*b.Payload))
		}
	}
	if totalBytes > a.cfg.MaxPostBytes {
		return nil, nil, skerr.Fmt("post too large: %d > %d bytes", totalBytes, a.cfg.MaxPostBytes)
	}

	valid := make([]db.PostBso, 0, len(bsos))
	failed := map[string]string{}
	for _, b := range bsos {
		if reason := a.validateBso(b); reason != "" {
			failed[b.ID] = reason
			continue
		}
		valid = append(valid, b)
	}
	return valid, failed, nil
}

// bsoBody is the body of a single-BSO PUT.
type bsoBody struct {
	SortIndex *int32  `json:"sortindex"`
	Payload   *string `json:"payload"`
	TTL       *int64  `json:"ttl"`
}

// readPutBso parses and validates a PUT body.
func (a *API) readPutBso(w http.ResponseWriter, r *http.Request, id string) (db.PutBso, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxRequestBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return db.PutBso{}, skerr.Wrapf(err, "reading request body")
	}
	var b bsoBody
	if err := json.Unmarshal(body, &b); err != nil {
		return db.PutBso{}, skerr.Wrapf(err, "parsing JSON body")
	}
	post := db.PostBso{ID: id, SortIndex: b.SortIndex, Payload: b.Payload, TTL: b.TTL}
	if reason := a.validateBso(post); reason != "" {
		return db.PutBso{}, skerr.Fmt("%s", reason)
	}
	return db.PutBso{
		ID:        id,
		SortIndex: b.SortIndex,
		Payload:   b.Payload,
		TTL:       b.TTL,
	}, nil
}
