package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServeDocs(t *testing.T) {
	rec := httptest.NewRecorder()
	ServeDocs("/docs/openapi.yaml")(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `url: "/docs/openapi.yaml"`)
}

func TestServeSpec(t *testing.T) {
	rec := httptest.NewRecorder()
	ServeSpec([]byte("openapi: 3.0.3\n"))(rec, httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil))

	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "openapi: 3.0.3\n", rec.Body.String())
}
