package transport

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/graymedia/mediaserver/internal/upnp"
)

// HTTP methods used by GENA.
const (
	methodSubscribe   = "SUBSCRIBE"
	methodUnsubscribe = "UNSUBSCRIBE"
	methodNotify      = "NOTIFY"
)

// maxRequestBodySize limits SOAP request bodies (1 MB).
const maxRequestBodySize = 1 << 20

const xmlContentType = `text/xml; charset="utf-8"`

// buildRouter wires description, document, control and event routes. The
// paths themselves come from the registered description, so every route
// is a catch-all resolved against the device's tables.
func (t *HTTP) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(t.loggingMiddleware)
	r.Use(t.recoveryMiddleware)
	r.Use(t.serverHeaderMiddleware)

	r.Get(upnp.DescriptionPath, t.handleDescription)
	r.Get("/*", t.handleDocument)
	r.Post("/*", t.handleControl)
	r.Method(methodSubscribe, "/*", http.HandlerFunc(t.handleSubscribe))
	r.Method(methodUnsubscribe, "/*", http.HandlerFunc(t.handleUnsubscribe))

	return r
}

func (t *HTTP) handleDescription(w http.ResponseWriter, r *http.Request) {
	dev := t.current()
	if dev == nil {
		http.NotFound(w, r)
		return
	}
	writeXML(w, http.StatusOK, dev.description)
}

func (t *HTTP) handleDocument(w http.ResponseWriter, r *http.Request) {
	dev := t.current()
	if dev == nil {
		http.NotFound(w, r)
		return
	}
	doc, ok := dev.documents[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeXML(w, http.StatusOK, doc)
}

// loggingMiddleware logs each request with method, path, status and duration.
func (t *HTTP) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		t.logger.Debug("upnp http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// recoveryMiddleware turns handler panics into 500 responses.
func (t *HTTP) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				t.logger.Error("panic recovered in upnp handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (t *HTTP) serverHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", t.opts.ServerHeader)
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeXML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", xmlContentType)
	w.WriteHeader(status)
	//nolint:errcheck // client went away, nothing to do
	w.Write(body)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
