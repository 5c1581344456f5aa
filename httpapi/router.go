package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/clipcut/clipcut-api/config"
	"github.com/clipcut/clipcut-api/metrics"
	"github.com/clipcut/clipcut-api/middleware"
)

// NewRouter wires every endpoint behind the cross-cutting middleware chain:
// CORS, request logging, prometheus instrumentation, principal enforcement.
func NewRouter(cli config.Cli, h *Handlers) *httprouter.Router {
	router := httprouter.New()

	withCORS := middleware.AllowCORS()
	withLogging := middleware.LogRequest()
	withAuth := middleware.RequirePrincipal(cli.APIToken)

	wrap := func(route string, handle httprouter.Handle) httprouter.Handle {
		decorated := withAuth(handle)
		decorated = withLogging(decorated)
		decorated = withCORS(decorated)
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			metrics.Instrument(route, func(w http.ResponseWriter, r *http.Request) {
				decorated(w, r, ps)
			})(w, r)
		}
	}

	router.GET("/ok", withCORS(h.Ok()))

	router.POST("/upload/init", wrap("/upload/init", h.UploadInit()))
	router.POST("/upload/chunk/:id", wrap("/upload/chunk", h.UploadChunk()))
	router.POST("/upload/complete/:id", wrap("/upload/complete", h.UploadComplete()))
	router.POST("/upload/abort/:id", wrap("/upload/abort", h.UploadAbort()))

	router.POST("/jobs", wrap("/jobs", h.SubmitJob()))
	router.GET("/jobs", wrap("/jobs", h.ListJobs()))
	router.GET("/jobs/:id", wrap("/jobs/:id", h.GetJob()))
	router.POST("/jobs/:id/cancel", wrap("/jobs/:id/cancel", h.CancelJob()))
	router.GET("/jobs/:id/events", wrap("/jobs/:id/events", h.JobEvents()))
	router.GET("/jobs/:id/artifacts/:artifactId/download", wrap("/jobs/:id/artifacts/:artifactId/download", h.DownloadArtifact(false)))
	router.GET("/jobs/:id/artifacts/:artifactId/thumbnail", wrap("/jobs/:id/artifacts/:artifactId/thumbnail", h.DownloadArtifact(true)))

	return router
}
