package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/config"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/metrics"
)

const (
	htmlContentType    = "text/html"
	defaultContentType = "text/plain"
	shutdownTimeout    = 10 * time.Second
)

// ErrNotFound is returned when a path does not name a file under the static root
var ErrNotFound = errors.New("resource not found")

// HTTPServer serves the site and forwards submitted forms to the relay
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	static      config.StaticConfig
	maxBodySize int64
	forwarder   Forwarder
	metrics     *metrics.Metrics
}

// NewHTTPServer creates the front-end server
func NewHTTPServer(cfg config.HTTPConfig, static config.StaticConfig, forwarder Forwarder,
	logger *slog.Logger, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:      logger.With(slog.String("component", "http")),
		static:      static,
		maxBodySize: cfg.MaxBodySize,
		forwarder:   forwarder,
		metrics:     m,
	}

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      h.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the request router
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// routes configures the route table
func (h *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.withMetrics)

	r.Get("/", h.handleIndex)
	r.Get("/message", h.handleMessage)
	r.Get("/*", h.handleStatic)
	r.Post("/*", h.handleSubmit)

	return r
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, route, errorType)
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Serve listens until ctx is cancelled, then shuts down gracefully
func (h *HTTPServer) Serve(ctx context.Context) error {
	h.logger.Info("Http server started", slog.String("address", h.server.Addr))
	defer h.logger.Info("Http server stopped")

	return serveHTTP(ctx, h.server, h.logger)
}

// serveHTTP runs srv and shuts it down when ctx ends
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("HTTP server error", slog.String("error", err.Error()))
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (h *HTTPServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.sendFile(w, filepath.Join(h.static.Root, h.static.Index), htmlContentType, http.StatusOK)
}

func (h *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	h.sendFile(w, filepath.Join(h.static.Root, h.static.Message), htmlContentType, http.StatusOK)
}

// handleStatic serves a file under the static root, or the error page with 404
func (h *HTTPServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	file, err := h.resolveStatic(r.URL.Path)
	if err != nil {
		h.logger.Debug("Static resource not found", slog.String("path", r.URL.Path))
		h.sendFile(w, filepath.Join(h.static.Root, h.static.ErrorPage), htmlContentType, http.StatusNotFound)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(file))
	if contentType == "" {
		contentType = defaultContentType
	}
	h.sendFile(w, file, contentType, http.StatusOK)
}

// resolveStatic maps a URL path to a regular file under the static root.
// Cleaning against "/" keeps ".." from leaving the root.
func (h *HTTPServer) resolveStatic(urlPath string) (string, error) {
	rel := path.Clean("/" + urlPath)
	file := filepath.Join(h.static.Root, filepath.FromSlash(rel))

	info, err := os.Stat(file)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rel, ErrNotFound)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", rel, ErrNotFound)
	}

	return file, nil
}

// sendFile writes the status line first and streams the file afterwards.
// A file that cannot be opened is logged and leaves the body empty.
func (h *HTTPServer) sendFile(w http.ResponseWriter, file, contentType string, status int) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)

	f, err := os.Open(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			h.logger.Error("Resource file not found", slog.String("file", file))
		} else {
			h.logger.Error("Failed to open resource file",
				slog.String("file", file),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		h.logger.Error("Failed to send resource file",
			slog.String("file", file),
			slog.String("error", err.Error()),
		)
	}
}

// handleSubmit forwards the body to the relay and always redirects to "/".
// The client gets no signal about whether the message was stored.
func (h *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	payload, err := h.readBody(r)
	if err != nil {
		h.metrics.RecordForwardError()
		h.logger.Warn("Failed to read form body",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
	} else if err := h.forwarder.Forward(r.Context(), payload); err != nil {
		h.metrics.RecordForwardError()
		h.logger.Error("Failed to forward form body",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Int("size", len(payload)),
			slog.String("error", err.Error()),
		)
	} else {
		h.metrics.RecordForwarded()
		h.logger.Debug("Form body forwarded",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Int("size", len(payload)),
		)
	}

	w.Header().Set("Location", "/")
	w.WriteHeader(http.StatusFound)
}

// readBody reads exactly Content-Length bytes. Without a declared length
// the body is read up to maxBodySize.
func (h *HTTPServer) readBody(r *http.Request) ([]byte, error) {
	if r.ContentLength < 0 {
		return io.ReadAll(io.LimitReader(r.Body, h.maxBodySize))
	}

	if r.ContentLength > MaxDatagramSize {
		return nil, fmt.Errorf("body of %d bytes exceeds datagram limit", r.ContentLength)
	}

	body := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		return nil, fmt.Errorf("failed to read %d byte body: %w", r.ContentLength, err)
	}
	return body, nil
}
