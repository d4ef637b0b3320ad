package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shell-gate/shell-gate/internal/cache"
	"github.com/shell-gate/shell-gate/internal/config"
	"github.com/shell-gate/shell-gate/internal/proxy"
	"github.com/shell-gate/shell-gate/internal/server"
)

const gatewayDomain = "play.local"

// gateway bundles the full request pipeline for tests: config, store,
// classifier, handler and the Fiber app driving them.
type gateway struct {
	app   *fiber.App
	store cache.Store
	cfg   *config.Config
}

// newGateway wires the stack the same way main.run does, minus lifecycle.
func newGateway(t *testing.T, upstreamURL, generation string) *gateway {
	t.Helper()

	cfg := &config.Config{
		ListenPort:     5000,
		Domain:         gatewayDomain,
		Upstream:       upstreamURL,
		Generation:     generation,
		StoragePath:    t.TempDir(),
		FreshPaths:     []string{"/dict"},
		ConfigResource: "/config.json",
	}

	origin, err := server.NewOrigin(cfg)
	if err != nil {
		t.Fatalf("origin error: %v", err)
	}

	store, err := cache.NewStore(cfg.StoragePath)
	if err != nil {
		t.Fatalf("store error: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client := server.NewUpstreamClient(cfg)
	classifier := proxy.NewClassifier(cfg.ConfigResource, cfg.FreshPaths)
	handler := proxy.NewHandler(client, logger, store, origin, classifier)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Origin:     origin,
		Gateway:    handler,
		ListenPort: cfg.ListenPort,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	return &gateway{app: app, store: store, cfg: cfg}
}

func (g *gateway) request(t *testing.T, method, target string, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Host = gatewayDomain
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := g.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body error: %v", err)
	}
	return string(body)
}

// upstreamStub is an origin double that counts hits per path and records the
// cache directives the gateway sends.
type upstreamStub struct {
	*httptest.Server

	mu               sync.Mutex
	bodies           map[string]string
	hits             map[string]int
	lastCacheControl string
}

func newUpstreamStub(bodies map[string]string) *upstreamStub {
	stub := &upstreamStub{
		bodies: bodies,
		hits:   make(map[string]int),
	}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.hits[r.URL.Path]++
		stub.lastCacheControl = r.Header.Get("Cache-Control")
		body, ok := stub.bodies[r.URL.Path]
		stub.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, body)
	}))
	return stub
}

func (s *upstreamStub) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *upstreamStub) cacheControl() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCacheControl
}
