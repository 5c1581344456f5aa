package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func TestAllowCORSReflectsOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Origin", "https://clips.example.com")
	rr := httptest.NewRecorder()

	called := false
	h := AllowCORS()(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) { called = true })
	h(rr, req, nil)

	require.True(t, called)
	require.Equal(t, "https://clips.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestAllowCORSShortCircuitsPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	rr := httptest.NewRecorder()

	called := false
	h := AllowCORS()(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) { called = true })
	h(rr, req, nil)

	require.False(t, called)
	require.Equal(t, http.StatusOK, rr.Code)
}
