package js

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrowserLibEmbedded(t *testing.T) {
	assert.NotEmpty(t, BrowserLibString)
	assert.Contains(t, BrowserLibString, "response_id")
	assert.True(t, strings.HasPrefix(BrowserLibETag, `"`) && strings.HasSuffix(BrowserLibETag, `"`))
}

func TestHandler(t *testing.T) {
	h := Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ipc/ipc.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, BrowserLibETag, rec.Header().Get("ETag"))
	assert.Equal(t, BrowserLibSizeString, rec.Header().Get("Content-Length"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Equal(t, BrowserLibString, rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ipc/ipc.js", nil)
	req.Header.Set("If-None-Match", BrowserLibETag)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/ipc/ipc.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
