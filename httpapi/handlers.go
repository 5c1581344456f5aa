// Package httpapi implements the HTTP surface: the core endpoints (chunked
// upload init/chunk/complete/abort, job submit/status/events/cancel/list)
// plus a liveness/debug surface. Requests are validated via gojsonschema
// ahead of every handler that expects a JSON body.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/blob"
	"github.com/clipcut/clipcut-api/eventbus"
	"github.com/clipcut/clipcut-api/jobstore"
	"github.com/clipcut/clipcut-api/scheduler"
	"github.com/clipcut/clipcut-api/upload"
)

const rfc3339Millis = "2006-01-02T15:04:05.000Z07:00"

// writeJSON writes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Handlers bundles every component the HTTP surface fronts.
type Handlers struct {
	Assembler *upload.Assembler
	Scheduler *scheduler.Scheduler
	DB        *jobstore.DB
	Blobs     *blob.Store
	Bus       *eventbus.Bus
}

// Ok is the liveness probe.
func (h *Handlers) Ok() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// hasJSONContentType is checked before every handler that expects a JSON
// body.
func hasJSONContentType(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return false
	}
	for _, v := range strings.Split(contentType, ",") {
		t, _, err := mime.ParseMediaType(v)
		if err != nil {
			break
		}
		if t == "application/json" {
			return true
		}
	}
	return false
}

// decodeValidated validates req's body against the named compiled schema,
// then unmarshals it into out.
func decodeValidated(r *http.Request, schemaName string, out interface{}) *apierrors.Error {
	if !hasJSONContentType(r) {
		return apierrors.New(apierrors.KindRejectedType, "requires application/json content type")
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return apierrors.Wrap(apierrors.KindUnreadable, "reading request body", err)
	}

	schema, ok := inputSchemasCompiled[schemaName]
	if !ok {
		return apierrors.New(apierrors.KindInternal, "unknown request schema "+schemaName)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, "validating request payload", err)
	}
	if !result.Valid() {
		return apierrors.New(apierrors.KindInvalidParameters, fmt.Sprintf("%s", result.Errors()))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return apierrors.Wrap(apierrors.KindInvalidParameters, "decoding request body", err)
	}
	return nil
}
