package sundaerest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

func TestMiddlewares(t *testing.T) {
	var logged bool
	router := Middlewares(sundaecli.NewService("test"), chi.NewRouter())
	router.Get("/api/thing", func(w http.ResponseWriter, req *http.Request) {
		logged = zerolog.Ctx(req.Context()).GetLevel() != zerolog.Disabled
		JSON(w, req, http.StatusOK, map[string]int{"a": 1})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
	req.Header.Set("Origin", "https://example.com")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, logged)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "require-corp", w.Header().Get("cross-origin-embedder-policy"))
	assert.JSONEq(t, `{"a":1}`, w.Body.String())
}

func TestGraphiQLSkipsEmbedPolicy(t *testing.T) {
	router := Middlewares(sundaecli.NewService("test"), chi.NewRouter())
	router.Get("/graphql", func(w http.ResponseWriter, req *http.Request) {})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	assert.Equal(t, "", w.Header().Get("cross-origin-embedder-policy"))
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusNotFound, errors.New("nope"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"nope"}`, w.Body.String())
}

func TestCacheControl(t *testing.T) {
	handler := CacheControl(func(w http.ResponseWriter, req *http.Request) {}, 30)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "max-age=30", w.Header().Get("Cache-Control"))
}
