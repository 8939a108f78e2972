package policy

import (
	"net/http/httptest"
	"testing"
)

func testClassifier() *Classifier {
	return New([]string{".js", ".css", ".png", ".woff2"}, "/api/")
}

func TestClassify(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name   string
		method string
		path   string
		accept string
		want   Decision
	}{
		{"script bundle", "GET", "/static/js/main.js", "", CacheFirst},
		{"stylesheet", "GET", "/static/css/main.css", "", CacheFirst},
		{"icon", "GET", "/icons/icon-192.png", "", CacheFirst},
		{"font", "GET", "/fonts/inter.woff2", "", CacheFirst},
		{"api endpoint", "GET", "/api/portfolio", "", NetworkFirst},
		{"api with html accept", "GET", "/api/quotes", "text/html", NetworkFirst},
		{"navigation", "GET", "/dashboard", "text/html,application/xhtml+xml", StaleWhileRevalidate},
		{"default", "GET", "/unknown", "application/json", NetworkFirst},
		{"no accept header", "GET", "/unknown", "", NetworkFirst},
		{"post passthrough", "POST", "/api/orders", "", Passthrough},
		{"put passthrough", "PUT", "/api/watchlist/1", "", Passthrough},
		{"delete passthrough", "DELETE", "/api/watchlist/1", "", Passthrough},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://app.local"+tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if got := c.Classify(req); got != tt.want {
				t.Errorf("Classify(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestClassifyStaticBeatsAPI(t *testing.T) {
	// A script under the API namespace is still a static asset;
	// extension matching runs first.
	c := testClassifier()
	req := httptest.NewRequest("GET", "http://app.local/api/docs/client.js", nil)
	if got := c.Classify(req); got != CacheFirst {
		t.Errorf("Classify() = %v, want CacheFirst (extension wins over prefix)", got)
	}
}
