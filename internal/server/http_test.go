package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/config"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/metrics"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/storage"
)

const (
	indexBody   = "<html><body>index</body></html>"
	messageBody = "<html><body><form method=\"post\"></form></body></html>"
	errorBody   = "<html><body>not found</body></html>"
)

type fakeForwarder struct {
	mu       sync.Mutex
	payloads []string
	err      error
}

func (f *fakeForwarder) Forward(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, string(payload))
	return nil
}

func (f *fakeForwarder) forwarded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.payloads...)
}

// writeSite creates a static root with the three pages and a few assets
func writeSite(t *testing.T) config.StaticConfig {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, "src")

	files := map[string]string{
		"src/index.html":     indexBody,
		"src/message.html":   messageBody,
		"src/error.html":     errorBody,
		"src/style.css":      "body { color: black; }",
		"src/img/logo.png":   "\x89PNG",
		"src/notes.unknown1": "plain",
		"secret.txt":         "outside the root",
	}
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	return config.StaticConfig{
		Root:      root,
		Index:     "index.html",
		Message:   "message.html",
		ErrorPage: "error.html",
	}
}

func newTestHTTPServer(t *testing.T, static config.StaticConfig, fwd Forwarder, m *metrics.Metrics) *HTTPServer {
	t.Helper()
	return NewHTTPServer(config.Default().HTTP, static, fwd, testLogger(), m)
}

func TestHTTPServerGet(t *testing.T) {
	h := newTestHTTPServer(t, writeSite(t), &fakeForwarder{}, testMetrics())

	tests := []struct {
		name        string
		path        string
		status      int
		contentType string
		body        string
	}{
		{"index", "/", http.StatusOK, "text/html", indexBody},
		{"message form", "/message", http.StatusOK, "text/html", messageBody},
		{"stylesheet", "/style.css", http.StatusOK, "text/css", "body { color: black; }"},
		{"nested image", "/img/logo.png", http.StatusOK, "image/png", "\x89PNG"},
		{"unknown extension", "/notes.unknown1", http.StatusOK, "text/plain", "plain"},
		{"query string ignored", "/?lang=uk", http.StatusOK, "text/html", indexBody},
		{"missing file", "/missing.png", http.StatusNotFound, "text/html", errorBody},
		{"directory", "/img", http.StatusNotFound, "text/html", errorBody},
		{"escape attempt", "/../secret.txt", http.StatusNotFound, "text/html", errorBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, tt.status, rec.Code)
			require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), tt.contentType),
				"content type %q", rec.Header().Get("Content-Type"))
			require.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestHTTPServerMissingResourceLeavesBodyEmpty(t *testing.T) {
	static := writeSite(t)
	require.NoError(t, os.Remove(filepath.Join(static.Root, static.Index)))
	require.NoError(t, os.Remove(filepath.Join(static.Root, static.ErrorPage)))

	h := newTestHTTPServer(t, static, &fakeForwarder{}, testMetrics())

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope.js", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestHTTPServerPostRedirects(t *testing.T) {
	fwd := &fakeForwarder{}
	m := testMetrics()
	h := newTestHTTPServer(t, writeSite(t), fwd, m)

	for _, path := range []string{"/", "/message", "/any/path"} {
		body := "username=Krabaton&message=Hello+from+" + strings.ReplaceAll(path, "/", "")
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()

		h.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code, path)
		require.Equal(t, "/", rec.Header().Get("Location"))
	}

	require.Len(t, fwd.forwarded(), 3)
	require.Equal(t, "username=Krabaton&message=Hello+from+", fwd.forwarded()[0])
	require.Equal(t, float64(3), testutil.ToFloat64(m.Forwarded))
}

func TestHTTPServerPostRedirectsWhenForwardFails(t *testing.T) {
	fwd := &fakeForwarder{err: errors.New("network unreachable")}
	m := testMetrics()
	h := newTestHTTPServer(t, writeSite(t), fwd, m)

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader("a=1")))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ForwardErrors))
}

func TestHTTPServerPostShortBody(t *testing.T) {
	fwd := &fakeForwarder{}
	m := testMetrics()
	h := newTestHTTPServer(t, writeSite(t), fwd, m)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=1"))
	req.ContentLength = 100
	rec := httptest.NewRecorder()

	h.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Empty(t, fwd.forwarded())
	require.Equal(t, float64(1), testutil.ToFloat64(m.ForwardErrors))
}

func TestHTTPServerPostUnknownLength(t *testing.T) {
	fwd := &fakeForwarder{}
	cfg := config.Default().HTTP
	cfg.MaxBodySize = 8
	h := NewHTTPServer(cfg, writeSite(t), fwd, testLogger(), testMetrics())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=1&b=2&c=3"))
	req.ContentLength = -1
	rec := httptest.NewRecorder()

	h.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, []string{"a=1&b=2&"}, fwd.forwarded())
}

func TestHTTPServerRejectsOtherMethods(t *testing.T) {
	h := newTestHTTPServer(t, writeSite(t), &fakeForwarder{}, testMetrics())

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader("a=1")))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPServerRecordsMetrics(t *testing.T) {
	m := testMetrics()
	h := newTestHTTPServer(t, writeSite(t), &fakeForwarder{}, m)

	h.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	h.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/", "200")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/*", "404")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.HTTPErrors.WithLabelValues("GET", "/*", "client_error")))
}

// TestEndToEnd posts a form through a real front-end, a real datagram and
// the relay into an in-memory store.
func TestEndToEnd(t *testing.T) {
	conn := &memoryConnector{}
	writer := storage.NewWriter(conn, config.Default().Storage, testLogger())
	r := startRelay(t, 1024, writer, testMetrics())

	h := newTestHTTPServer(t, writeSite(t), NewUDPForwarder(r.addr), testMetrics())
	site := httptest.NewServer(h.Handler())
	defer site.Close()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Post(site.URL+"/message", "application/x-www-form-urlencoded",
		strings.NewReader("username=%D0%9E%D0%BB%D1%8F&message=Hello+world%21"))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	require.Eventually(t, func() bool { return len(conn.documents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	doc := conn.documents()[0].Map()
	require.Equal(t, "Оля", doc["username"])
	require.Equal(t, "Hello world!", doc["message"])
	require.NotEmpty(t, doc["date"])
}

func TestEndToEndStoreOutage(t *testing.T) {
	conn := &memoryConnector{err: errors.New("server selection error: no reachable servers")}
	writer := storage.NewWriter(conn, config.Default().Storage, testLogger())
	relayMetrics := testMetrics()
	r := startRelay(t, 1024, writer, relayMetrics)

	h := newTestHTTPServer(t, writeSite(t), NewUDPForwarder(r.addr), testMetrics())
	site := httptest.NewServer(h.Handler())
	defer site.Close()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	post := func(body string) {
		t.Helper()
		resp, err := client.Post(site.URL+"/message", "application/x-www-form-urlencoded", strings.NewReader(body))
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		require.Equal(t, http.StatusFound, resp.StatusCode)
		require.Equal(t, "/", resp.Header.Get("Location"))
	}

	// The visitor is redirected even though the message is lost
	post("username=Ann&message=lost")
	require.Eventually(t, func() bool { return testutil.ToFloat64(relayMetrics.StoreErrors) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Empty(t, conn.documents())

	// The relay keeps serving once the store is back
	conn.mu.Lock()
	conn.err = nil
	conn.mu.Unlock()

	post("username=Ann&message=kept")
	require.Eventually(t, func() bool { return len(conn.documents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "kept", conn.documents()[0].Map()["message"])
}

func TestMetricsServerHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordForwarded()

	ms := NewMetricsServer("127.0.0.1:0", reg, testLogger())
	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "formrelay_forwarded_total 1")
}

func TestHTTPServerServeStopsOnCancel(t *testing.T) {
	cfg := config.HTTPConfig{Address: "127.0.0.1", Port: 0, MaxBodySize: 1024}
	h := NewHTTPServer(cfg, writeSite(t), &fakeForwarder{}, testLogger(), testMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.Serve(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("HTTP server did not stop after cancel")
	}
}
