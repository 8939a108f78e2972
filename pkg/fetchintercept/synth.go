package fetchintercept

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// offlineJSON is the structured fallback body for critical API paths.
// The shape is part of the page contract and must not change.
const offlineJSON = `{"success":false,"message":"Offline - Data not available","offline":true}`

func synthesize(status int, contentType string, body []byte) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("X-Offline-Fallback", "true")
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// synthUnavailable is the generic 503 returned when neither tier nor
// network can answer.
func synthUnavailable() *http.Response {
	offlineFallbacksTotal.WithLabelValues("generic").Inc()
	return synthesize(http.StatusServiceUnavailable, "text/plain; charset=utf-8",
		[]byte("Service unavailable - offline"))
}

// synthOfflineJSON is the structured 503 for critical API paths.
func synthOfflineJSON() *http.Response {
	offlineFallbacksTotal.WithLabelValues("critical_json").Inc()
	return synthesize(http.StatusServiceUnavailable, "application/json; charset=utf-8",
		[]byte(offlineJSON))
}
