package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/vecview/internal/catalog"
	"github.com/Yates-Labs/vecview/internal/console"
	"github.com/Yates-Labs/vecview/internal/export"
	"github.com/Yates-Labs/vecview/internal/inspect"
	"github.com/Yates-Labs/vecview/internal/vectordb"
	"github.com/Yates-Labs/vecview/internal/vectordb/vectordbtest"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, client vectordb.Client) *httptest.Server {
	t.Helper()
	logger := discard()
	c := console.New(client,
		catalog.New(client, catalog.Config{}, logger),
		inspect.New(client, inspect.Config{}, logger),
		console.WithLogger(logger))
	ts := httptest.NewServer(New(c, WithLogger(logger)).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func fixture(t *testing.T) *vectordbtest.FaultyClient {
	t.Helper()
	inner := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"c1": vectordbtest.FileChunks("report.pdf", 2),
		"c2": vectordbtest.FileChunks("report.pdf", 1),
		"c3": vectordbtest.FileChunks("notes/today.md", 3),
	})
	_, err := inner.DB().CreateCollection("empty", nil, nil)
	require.NoError(t, err)
	return vectordbtest.NewFaultyClient(inner)
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	resp, body := do(t, http.MethodGet, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestListCollections(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/collections")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string][]string](t, body)
	assert.Equal(t, []string{"c1", "c2", "c3", "empty"}, got["collections"])
}

func TestCollectionView(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/collections/c1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[console.View](t, body)
	assert.Equal(t, "c1", view.Collection)
	require.NotNil(t, view.Info)
	assert.Equal(t, 2, view.Info.Count)
	assert.Contains(t, view.Text, "Filename: report.pdf")

	resp, body = do(t, http.MethodGet, ts.URL+"/api/collections/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode[errorResponse](t, body).Error, "not found")

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/collections/empty")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCollectionRaw(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/collections/c3/raw")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "notes/today.md part 0\nnotes/today.md part 1\nnotes/today.md part 2")
}

func TestCollectionExport(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/collections/c1/export?format=csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "index,id,start_index,content\n"), string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/api/collections/c1/export")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]export.SegmentExport](t, body), 2)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/collections/c1/export?format=xml")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchWithoutEmbedder(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/collections/c1/search?q=hello")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/collections/c1/search?q=hello&k=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFiles(t *testing.T) {
	client := fixture(t)
	ts := newTestServer(t, client)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/files")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	files := decode[filesResponse](t, body)
	assert.Equal(t, []string{"notes/today.md", "report.pdf"}, files.Filenames)
	assert.Equal(t, []string{"c1", "c2"}, files.Files[1].Collections)
	assert.False(t, files.Summary.Cached)
	assert.Equal(t, 4, files.Summary.Collections)
	assert.Equal(t, 3, files.Summary.Mappings, "empty collection has no filename")

	resp, body = do(t, http.MethodGet, ts.URL+"/api/files")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "file list loaded (cached)", decode[filesResponse](t, body).Summary.Message)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/files?refresh=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[filesResponse](t, body).Summary.Cached)
	assert.EqualValues(t, 2, client.ListCalls.Load())
}

func TestFileView(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	// The catalog is loaded on first use.
	resp, body := do(t, http.MethodGet, ts.URL+"/api/files/notes/today.md")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[fileResponse](t, body)
	assert.Equal(t, []string{"c3"}, got.Collections)
	require.NotNil(t, got.View)
	assert.Equal(t, "c3", got.View.Collection)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/files/unknown.txt")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/files/")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteFile(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	resp, body := do(t, http.MethodDelete, ts.URL+"/api/files/report.pdf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[deleteResponse](t, body)
	assert.Equal(t, []string{"c1", "c2"}, got.Deleted)
	assert.Equal(t, "deleted 2/2 collections", got.Message)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/files/report.pdf")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/collections")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"c3", "empty"}, decode[map[string][]string](t, body)["collections"])
}

func TestDeleteFilePartialFailure(t *testing.T) {
	client := fixture(t)
	client.FailDelete("c2", errors.New("locked"))
	ts := newTestServer(t, client)

	resp, body := do(t, http.MethodDelete, ts.URL+"/api/files/report.pdf")
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	got := decode[deleteResponse](t, body)
	assert.Equal(t, []string{"c2"}, got.Failed)
	assert.Equal(t, "deleted 1/2 collections", got.Message)
}

func TestProgressAndReload(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	do(t, http.MethodGet, ts.URL+"/api/files")
	resp, body := do(t, http.MethodGet, ts.URL+"/api/progress")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	progress := decode[catalog.Progress](t, body)
	assert.Equal(t, 4, progress.Total)
	assert.Equal(t, progress.Total, progress.Current)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/reload")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	do(t, http.MethodGet, ts.URL+"/healthz")
	resp, body := do(t, http.MethodGet, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `vecview_requests_total{method="GET",route="GET /healthz",status="2xx"}`)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, fixture(t))

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/collections")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	client := fixture(t)
	logger := discard()
	c := console.New(client,
		catalog.New(client, catalog.Config{}, logger),
		inspect.New(client, inspect.Config{}, logger))
	s := New(c, WithLogger(logger), WithShutdownTimeout(time.Second))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(inspect.ErrInvalidCollection))
	assert.Equal(t, http.StatusNotFound, statusFor(vectordb.ErrCollectionNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(inspect.ErrEmptyCollection))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
