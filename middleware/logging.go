package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/log"
)

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

// LogRequest logs every request via package log's logfmt writer, recovering
// panics into a classified 500 instead of taking the process down.
func LogRequest() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			defer func() {
				if rec := recover(); rec != nil {
					apierrors.WriteKind(wrapped, "", apierrors.KindInternal, "internal server error")
					log.LogNoJobID("panic recovered in http handler", "panic", rec, "trace", string(debug.Stack()))
				}
			}()

			next(wrapped, r, ps)

			log.LogNoJobID("http request",
				"remote", r.RemoteAddr,
				"proto", r.Proto,
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"duration", time.Since(start).String(),
				"status", wrapped.status,
			)
		}
	}
}
