// Package tier implements named, versioned cache tiers holding captured
// HTTP responses keyed by request identity.
package tier

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Identity is the storage key of a captured response: method plus absolute
// URL. Request headers never participate in the key.
type Identity struct {
	Method string
	URL    string
}

// NewIdentity derives the identity of a request.
func NewIdentity(req *http.Request) Identity {
	return Identity{Method: req.Method, URL: req.URL.String()}
}

// String renders the identity in its canonical storage form.
func (id Identity) String() string {
	return id.Method + " " + id.URL
}

// Cacheable reports whether this identity may ever be stored.
// Only GET identities are cacheable.
func (id Identity) Cacheable() bool {
	return id.Method == http.MethodGet
}

// Snapshot is a captured HTTP response.
type Snapshot struct {
	// StatusCode is the HTTP status of the captured response.
	StatusCode int `json:"status_code"`

	// Header holds the captured response headers.
	Header http.Header `json:"header"`

	// Body is the full response body.
	Body []byte `json:"body"`

	// CapturedAt is when the response was captured.
	CapturedAt time.Time `json:"captured_at"`
}

// FromResponse captures a snapshot from an HTTP response.
// The response body is consumed and restored for the caller.
func FromResponse(resp *http.Response) (*Snapshot, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Snapshot{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		CapturedAt: time.Now(),
	}, nil
}

// Response reconstructs an HTTP response from the snapshot.
func (s *Snapshot) Response() *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    s.StatusCode,
		Status:        fmt.Sprintf("%d %s", s.StatusCode, http.StatusText(s.StatusCode)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
	}
}

// Age returns how long ago the snapshot was captured.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.CapturedAt)
}
