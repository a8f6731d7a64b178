package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serveCORS(origins []string, method, origin string, preflight bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/cart", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rr := httptest.NewRecorder()
	CORS(origins)(okHandler).ServeHTTP(rr, req)
	return rr
}

func TestCORS_Wildcard(t *testing.T) {
	rr := serveCORS([]string{"*"}, http.MethodGet, "https://shop.example.com", false)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS_AllowedOrigin(t *testing.T) {
	rr := serveCORS([]string{"https://shop.example.com", " https://admin.example.com"}, http.MethodGet, "https://admin.example.com", false)

	assert.Equal(t, "https://admin.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))
}

func TestCORS_RejectedOrigin(t *testing.T) {
	rr := serveCORS([]string{"https://shop.example.com"}, http.MethodGet, "https://evil.example.com", false)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS_Preflight_Returns204(t *testing.T) {
	rr := serveCORS([]string{"*"}, http.MethodOptions, "https://shop.example.com", true)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), SessionIDHeader)
	assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
	assert.Equal(t, "3600", rr.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_PlainOptions_PassesThrough(t *testing.T) {
	rr := serveCORS([]string{"*"}, http.MethodOptions, "", false)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNoStore_SetsHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	NoStore(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}
