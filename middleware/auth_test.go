package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func okHandler(t *testing.T) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(Principal(r)))
	}
}

func TestRequirePrincipalRejectsMissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rr := httptest.NewRecorder()

	h := RequirePrincipal("")(okHandler(t))
	h(rr, req, nil)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequirePrincipalPassesThroughWithHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("X-Principal-Id", "alice")
	rr := httptest.NewRecorder()

	h := RequirePrincipal("")(okHandler(t))
	h(rr, req, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "alice", rr.Body.String())
}

func TestRequirePrincipalEnforcesSharedTokenWhenConfigured(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("X-Principal-Id", "alice")
	rr := httptest.NewRecorder()

	h := RequirePrincipal("secret")(okHandler(t))
	h(rr, req, nil)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequirePrincipalAcceptsMatchingSharedToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("X-Principal-Id", "alice")
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()

	h := RequirePrincipal("secret")(okHandler(t))
	h(rr, req, nil)

	require.Equal(t, http.StatusOK, rr.Code)
}
