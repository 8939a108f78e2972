package tier

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewIdentity(t *testing.T) {
	req := httptest.NewRequest("GET", "http://app.local/api/quotes?symbol=X", nil)
	id := NewIdentity(req)

	if id.Method != "GET" {
		t.Errorf("Method = %q, want GET", id.Method)
	}
	if id.URL != "http://app.local/api/quotes?symbol=X" {
		t.Errorf("URL = %q", id.URL)
	}
	if id.String() != "GET http://app.local/api/quotes?symbol=X" {
		t.Errorf("String() = %q", id.String())
	}
}

func TestIdentityCacheable(t *testing.T) {
	if !(Identity{Method: "GET", URL: "/x"}).Cacheable() {
		t.Error("GET identity should be cacheable")
	}
	for _, method := range []string{"POST", "PUT", "DELETE", "PATCH", "HEAD"} {
		if (Identity{Method: method, URL: "/x"}).Cacheable() {
			t.Errorf("%s identity should not be cacheable", method)
		}
	}
}

func TestFromResponseRestoresBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}

	snap, err := FromResponse(resp)
	if err != nil {
		t.Fatalf("FromResponse() error: %v", err)
	}

	if string(snap.Body) != `{"ok":true}` {
		t.Errorf("snapshot body = %q", snap.Body)
	}
	if snap.CapturedAt.IsZero() {
		t.Error("CapturedAt not set")
	}

	// The caller must still be able to read the original body.
	rest, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read restored body: %v", err)
	}
	if string(rest) != `{"ok":true}` {
		t.Errorf("restored body = %q", rest)
	}
}

func TestSnapshotResponse(t *testing.T) {
	snap := &Snapshot{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte("<html></html>"),
	}

	resp := snap.Response()
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/html" {
		t.Errorf("Content-Type = %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<html></html>" {
		t.Errorf("body = %q", body)
	}
	if resp.ContentLength != int64(len(snap.Body)) {
		t.Errorf("ContentLength = %d, want %d", resp.ContentLength, len(snap.Body))
	}
}
