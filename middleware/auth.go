// Package middleware wraps httprouter.Handle with the cross-cutting
// concerns every route needs: principal extraction, request logging, CORS.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/clipcut/clipcut-api/apierrors"
)

type contextKey string

const principalContextKey contextKey = "principal-id"

// RequirePrincipal extracts the verified principal id an upstream auth
// proxy is expected to attach: this core never validates credentials
// itself. A single shared apiToken gate is kept as an optional
// defense-in-depth check (a deployment without a fronting proxy can still
// require a shared bearer secret), but the per-request identity always
// comes from the principal header.
func RequirePrincipal(apiToken string) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			if apiToken != "" {
				authHeader := r.Header.Get("Authorization")
				token := strings.TrimPrefix(authHeader, "Bearer ")
				if authHeader == "" || token != apiToken {
					apierrors.WriteKind(w, "", apierrors.KindForbidden, "invalid or missing bearer token")
					return
				}
			}

			principalID := r.Header.Get("X-Principal-Id")
			if principalID == "" {
				apierrors.WriteKind(w, "", apierrors.KindForbidden, "missing verified principal id")
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principalID)
			next(w, r.WithContext(ctx), ps)
		}
	}
}

// Principal returns the principal id attached by RequirePrincipal. Handlers
// downstream of that middleware can call this unconditionally.
func Principal(r *http.Request) string {
	v, _ := r.Context().Value(principalContextKey).(string)
	return v
}
