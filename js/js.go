// Package js embeds the browser client library served by the websocket server.
package js

import (
	"crypto/sha1"
	_ "embed"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
)

//go:embed ipc.js
var BrowserLibString string

var (
	BrowserLibSizeString = strconv.Itoa(len(BrowserLibString))
	BrowserLibSHA1Base64 = sha1Base64(BrowserLibString)
	BrowserLibETag       = "\"" + BrowserLibSHA1Base64 + "\""
)

func sha1Base64(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Handler serves the browser library, answering conditional requests with 304
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("ETag", BrowserLibETag)
		if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, BrowserLibETag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		h.Set("Content-Type", "application/javascript; charset=utf-8")
		h.Set("Content-Length", BrowserLibSizeString)
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write([]byte(BrowserLibString))
		}
	})
}
