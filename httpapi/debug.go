package httpapi

import (
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipcut/clipcut-api/config"
	"github.com/clipcut/clipcut-api/log"
)

// NewDebugMux serves the internal liveness/metrics/profiling surface on a
// port never exposed to the public router.
func NewDebugMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// ListenAndServeDebug runs the debug mux on addr until the process exits.
func ListenAndServeDebug(addr string) error {
	log.LogNoJobID("starting debug listener", "version", config.Version, "addr", addr)
	return http.ListenAndServe(addr, NewDebugMux())
}
