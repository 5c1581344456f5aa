package metrics

import (
	"net/http"
	"time"
)

// Instrument wraps an http.HandlerFunc with in-flight
// and duration instrumentation. It's applied once at the outermost layer of
// the router, ahead of per-route middleware.
func Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		Metrics.HTTPRequestsInFlight.Inc()
		defer Metrics.HTTPRequestsInFlight.Dec()

		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		Metrics.HTTPRequestDurationSec.WithLabelValues(route, r.Method, statusLabel(rw.status)).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.ResponseWriter.WriteHeader(code)
	w.wroteHeader = true
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
