package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"pkt.systems/pslog"
	"pkt.systems/webtabs/internal/metrics"
)

const requestIDHeader = "X-Request-Id"

// statusWriter remembers the status and body size written by a handler.
// Flush is forwarded so the event stream keeps working through it.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// routeFunc maps a request to a low-cardinality route label.
type routeFunc func(*http.Request) string

// withRequestLogging binds a per-request logger to the request context,
// so handlers logging through logx.Ctx carry the request id, and records
// one log line and one metric observation per request.
func withRequestLogging(next http.Handler, route routeFunc, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		log := pslog.Ctx(r.Context()).With("request", id, "remote", clientIP(r))
		r = r.WithContext(pslog.ContextWithLogger(r.Context(), log))

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		elapsed := time.Since(start)
		label := r.URL.Path
		if route != nil {
			label = route(r)
		}
		m.ObserveRequest(r.Method, label, sw.status, elapsed)
		log.Info("http request", "method", r.Method, "path", redactedPath(r.URL), "status", sw.status, "bytes", sw.size, "duration_ms", elapsed.Milliseconds())
		log.Debug("http request agent", "ua", r.UserAgent())
	})
}

// redactedPath renders path and query with the access token masked.
func redactedPath(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	q := u.Query()
	if q.Has(tokenQueryParam) {
		q.Set(tokenQueryParam, "redacted")
	}
	return u.Path + "?" + q.Encode()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
