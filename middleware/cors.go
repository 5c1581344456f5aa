package middleware

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// AllowCORS reflects the request's Origin, allows credentials, and
// short-circuits preflight OPTIONS requests before they reach a route
// handler.
func AllowCORS() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			originDomain := r.Header.Get("Origin")
			if originDomain == "" {
				originDomain = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", originDomain)
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, DELETE, OPTIONS")

			if r.Method == http.MethodOptions {
				w.Header().Set("allow", "GET, HEAD, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("content-length", "0")
				w.WriteHeader(http.StatusOK)
				return
			}

			next(w, r, ps)
		}
	}
}
