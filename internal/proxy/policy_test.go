package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
)

func TestClassifierVolatilePaths(t *testing.T) {
	cl := NewClassifier("/config.json", []string{"/dict"})

	cases := []struct {
		path string
		want string
	}{
		{"/config.json", PolicyNetworkFirst},
		{"/dict", PolicyNetworkFirst},
		{"/dict/pl.json", PolicyNetworkFirst},
		{"/dict/sub/words.txt", PolicyNetworkFirst},
		{"/dictionary.html", PolicyCacheFirst},
		{"/", PolicyCacheFirst},
		{"/index.html", PolicyCacheFirst},
		{"/app.js", PolicyCacheFirst},
	}
	for _, tc := range cases {
		if got := cl.Classify(tc.path); got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.path, got, tc.want)
		}
	}
}

func TestClassifierConfigResource(t *testing.T) {
	cl := NewClassifier("/config.json", nil)
	if !cl.IsConfigResource("/config.json") {
		t.Fatalf("config resource should match")
	}
	if cl.IsConfigResource("/config.json.bak") {
		t.Fatalf("suffix path should not match")
	}
}

func TestNormalizeRequestPath(t *testing.T) {
	cases := map[string]string{
		"":               "/",
		"/":              "/",
		"/a/../b":        "/b",
		"a/b":            "/a/b",
		"/dict//pl.json": "/dict/pl.json",
	}
	for raw, want := range cases {
		if got := normalizeRequestPath(raw); got != want {
			t.Fatalf("normalizeRequestPath(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestStaticLocatorIgnoresQuery(t *testing.T) {
	a := staticLocator("v1", "/app.js")
	if a.Path != "/app.js" || a.Method != http.MethodGet || a.Generation != "v1" {
		t.Fatalf("unexpected locator: %+v", a)
	}
}

func TestVolatileLocatorFoldsQuery(t *testing.T) {
	bare := volatileLocator("v1", "/dict/pl.json", nil)
	if bare.Path != "/dict/pl.json" {
		t.Fatalf("bare locator should keep the path: %+v", bare)
	}

	withQuery := volatileLocator("v1", "/dict/pl.json", []byte("page=2"))
	if !strings.HasPrefix(withQuery.Path, "/dict/pl.json/__qs/") {
		t.Fatalf("query should fold into a __qs segment: %+v", withQuery)
	}

	other := volatileLocator("v1", "/dict/pl.json", []byte("page=3"))
	if other.Path == withQuery.Path {
		t.Fatalf("different queries must not collide")
	}
}

func TestIsNavigationDetection(t *testing.T) {
	cases := []struct {
		name    string
		method  string
		headers map[string]string
		want    bool
	}{
		{"sec-fetch-mode", http.MethodGet, map[string]string{"Sec-Fetch-Mode": "navigate"}, true},
		{"accept-html", http.MethodGet, map[string]string{"Accept": "text/html,application/xhtml+xml"}, true},
		{"plain-asset", http.MethodGet, map[string]string{"Accept": "application/json"}, false},
		{"post-form", http.MethodPost, map[string]string{"Accept": "text/html"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			var got bool
			app.All("/*", func(c fiber.Ctx) error {
				got = isNavigation(c)
				return c.SendString("ok")
			})

			req := httptest.NewRequest(tc.method, "http://play.local/page", nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test error: %v", err)
			}
			resp.Body.Close()

			if got != tc.want {
				t.Fatalf("isNavigation = %v, want %v", got, tc.want)
			}
		})
	}
}
