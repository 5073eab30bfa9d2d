package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/10allday-services/syncstorage/go/skerr"
	"github.com/10allday-services/syncstorage/syncstorage/go/config"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/db/mockdb"
)

func newTestServer(t *testing.T) (*API, chi.Router) {
	t.Helper()
	cfg := config.New()
	cfg.DatabaseURL = "postgresql://unused"
	a := New(mockdb.New(), cfg, "test")
	r := chi.NewRouter()
	a.AddHandlers(r)
	return a, r
}

func doRequest(t *testing.T, r chi.Router, method, url, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInfoCollections(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "GET", "/1.5/42/info/collections", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0", w.Header().Get(headerWeaveRecords))
	require.NotEmpty(t, w.Header().Get(headerWeaveTimestamp))
	require.JSONEq(t, "{}", w.Body.String())
}

func TestInfoCollections_BadUserID(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "GET", "/1.5/abc/info/collections", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInfoQuota(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "GET", "/1.5/42/info/quota", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[0, null]", w.Body.String())
}

func TestInfoConfiguration(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "GET", "/1.5/42/info/configuration", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var limits map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &limits))
	require.EqualValues(t, 100, limits["max_post_records"])
	require.EqualValues(t, 100_000, limits["max_total_records"])
}

func TestGetCollection_EmptyJSON(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "GET", "/1.5/42/storage/bookmarks?full", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0", w.Header().Get(headerWeaveRecords))
	require.Equal(t, "0.00", w.Header().Get(headerLastModified))
	require.JSONEq(t, "[]", w.Body.String())
}

// absentCollectionPool hands out handles whose collection reads report the
// collection as missing, the way the SQL backend does for a collection the
// user never wrote.
type absentCollectionPool struct {
	mockdb.Pool
}

func (p *absentCollectionPool) Get(ctx context.Context) (db.DB, error) {
	return &absentCollectionDB{}, nil
}

type absentCollectionDB struct {
	mockdb.DB
}

func (d *absentCollectionDB) GetBsos(ctx context.Context, params db.GetBsos) (*db.Paginated[db.BSO], error) {
	return nil, skerr.Wrapf(db.ErrCollectionNotFound, "%q", params.Collection)
}

func (d *absentCollectionDB) GetBsoIDs(ctx context.Context, params db.GetBsos) (*db.Paginated[string], error) {
	return nil, skerr.Wrapf(db.ErrCollectionNotFound, "%q", params.Collection)
}

func TestGetCollection_AbsentCollectionListsAsEmptyArray(t *testing.T) {
	a := New(&absentCollectionPool{}, config.New(), "test")
	r := chi.NewRouter()
	a.AddHandlers(r)

	for _, url := range []string{
		"/1.5/42/storage/nonesuch",
		"/1.5/42/storage/nonesuch?full",
	} {
		w := doRequest(t, r, "GET", url, "", "")
		require.Equal(t, http.StatusOK, w.Code, url)
		// The body must be an empty array, never null.
		require.JSONEq(t, "[]", w.Body.String(), url)
	}
}

func TestGetCollection_NewlinesReply(t *testing.T) {
	_, r := newTestServer(t)
	req := httptest.NewRequest("GET", "/1.5/42/storage/bookmarks", nil)
	req.Header.Set("Accept", contentTypeNewlines)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, contentTypeNewlines, w.Header().Get("Content-Type"))
	require.Empty(t, w.Body.String())
}

func TestGetCollection_BadQuery(t *testing.T) {
	_, r := newTestServer(t)
	for _, url := range []string{
		"/1.5/42/storage/bookmarks?newer=abc",
		"/1.5/42/storage/bookmarks?limit=-2",
		"/1.5/42/storage/bookmarks?offset=xyz",
	} {
		w := doRequest(t, r, "GET", url, "", "")
		require.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}

func TestGetBso_NotFound(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "GET", "/1.5/42/storage/bookmarks/b1", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutBso(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "PUT", "/1.5/42/storage/bookmarks/b1",
		"application/json", `{"payload": "hello", "sortindex": 3}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0.00", w.Header().Get(headerLastModified))
	require.Equal(t, "0.00", strings.TrimSpace(w.Body.String()))
}

func TestPutBso_InvalidBody(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "PUT", "/1.5/42/storage/bookmarks/b1", "application/json", "not json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, "PUT", "/1.5/42/storage/bookmarks/b1",
		"application/json", `{"ttl": -5}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPutBso_PayloadTooLarge(t *testing.T) {
	a, r := newTestServer(t)
	a.cfg.MaxPayloadBytes = 4
	w := doRequest(t, r, "PUT", "/1.5/42/storage/bookmarks/b1",
		"application/json", `{"payload": "too large for the limit"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostCollection(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "POST", "/1.5/42/storage/bookmarks",
		"application/json", `[{"id": "a", "payload": "1"}, {"id": "b"}]`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0.00", w.Header().Get(headerLastModified))
	var result struct {
		Modified json.Number       `json:"modified"`
		Success  []string          `json:"success"`
		Failed   map[string]string `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Empty(t, result.Failed)
}

func TestPostCollection_NewlinesBody(t *testing.T) {
	_, r := newTestServer(t)
	body := `{"id": "a", "payload": "1"}` + "\n" + `{"id": "b"}` + "\n"
	w := doRequest(t, r, "POST", "/1.5/42/storage/bookmarks", contentTypeNewlines, body)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPostCollection_InvalidItemsAreReported(t *testing.T) {
	a, r := newTestServer(t)
	a.cfg.MaxPayloadBytes = 4
	w := doRequest(t, r, "POST", "/1.5/42/storage/bookmarks",
		"application/json", `[{"id": "a", "payload": "way past the limit"}, {"id": ""}]`)
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Failed map[string]string `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, "payload too large", result.Failed["a"])
	require.Equal(t, "invalid id", result.Failed[""])
}

func TestPostCollection_TooManyRecords(t *testing.T) {
	a, r := newTestServer(t)
	a.cfg.MaxPostRecords = 1
	w := doRequest(t, r, "POST", "/1.5/42/storage/bookmarks",
		"application/json", `[{"id": "a"}, {"id": "b"}]`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostCollection_BatchCreate(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "POST", "/1.5/42/storage/bookmarks?batch=true",
		"application/json", `[{"id": "a", "payload": "1"}]`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var result batchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, "0", result.Batch)
	require.Equal(t, []string{"a"}, result.Success)
	require.Nil(t, result.Modified)
}

func TestPostCollection_BatchCommit(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "POST", "/1.5/42/storage/bookmarks?batch=true&commit=1",
		"application/json", `[{"id": "a", "payload": "1"}]`)
	require.Equal(t, http.StatusOK, w.Code)
	var result batchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Empty(t, result.Batch)
	require.NotNil(t, result.Modified)
	require.Equal(t, "0.00", w.Header().Get(headerLastModified))
}

func TestDeleteStorage(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "DELETE", "/1.5/42/storage", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0.00", strings.TrimSpace(w.Body.String()))
}

func TestDeleteCollection(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "DELETE", "/1.5/42/storage/bookmarks", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	// With ids the response carries X-Last-Modified.
	w = doRequest(t, r, "DELETE", "/1.5/42/storage/bookmarks?ids=a,b", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0.00", w.Header().Get(headerLastModified))
}

func TestDeleteBso(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "DELETE", "/1.5/42/storage/bookmarks/b1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"modified": 0.00}`, w.Body.String())
}

func TestHeartbeat(t *testing.T) {
	_, r := newTestServer(t)
	w := doRequest(t, r, "GET", "/__heartbeat__", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Equal(t, "Ok", status["status"])
	require.Equal(t, "Ok", status["database"])
	require.Equal(t, "test", status["version"])

	w = doRequest(t, r, "GET", "/__lbheartbeat__", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, r, "GET", "/__version__", "", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestParseBatchArgs(t *testing.T) {
	req := httptest.NewRequest("POST", "/x", nil)
	require.False(t, parseBatchArgs(req).present)

	req = httptest.NewRequest("POST", "/x?batch=true", nil)
	args := parseBatchArgs(req)
	require.True(t, args.present)
	require.True(t, args.create)
	require.False(t, args.commit)

	req = httptest.NewRequest("POST", "/x?batch=1662000000000&commit=1", nil)
	args = parseBatchArgs(req)
	require.True(t, args.present)
	require.False(t, args.create)
	require.Equal(t, "1662000000000", args.id)
	require.True(t, args.commit)
}

func TestValidBsoID(t *testing.T) {
	require.True(t, validBsoID("abc-123"))
	require.True(t, validBsoID(strings.Repeat("x", 64)))
	require.False(t, validBsoID(""))
	require.False(t, validBsoID(strings.Repeat("x", 65)))
	require.False(t, validBsoID("has\nnewline"))
}

func TestParseCollectionQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/x?full&ids=a,%20b&newer=1642003200.12&limit=5&offset=10&sort=newest", nil)
	full, q, err := parseCollectionQuery(req)
	require.NoError(t, err)
	require.True(t, full)
	require.Equal(t, []string{"a", "b"}, q.IDs)
	require.Equal(t, int64(1642003200120), q.Newer.AsMilliseconds())
	require.Equal(t, 5, *q.Limit)
	require.Equal(t, "10", *q.Offset)
	require.Equal(t, db.SortNewest, q.Sort)
}
