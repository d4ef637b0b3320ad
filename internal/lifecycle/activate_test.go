package lifecycle

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/shell-gate/shell-gate/internal/cache"
)

func TestActivatorDropsStaleGenerations(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	ctx := context.Background()

	for _, gen := range []string{"v1", "v2", "v3"} {
		locator := cache.Locator{Generation: gen, Method: http.MethodGet, Path: "/index.html"}
		if _, err := store.Put(ctx, locator, cache.Metadata{}, bytes.NewReader([]byte(gen)), cache.PutOptions{}); err != nil {
			t.Fatalf("put %s error: %v", gen, err)
		}
	}

	activator := NewActivator(store, discardLogger())
	if err := activator.Run(ctx, "v2"); err != nil {
		t.Fatalf("activate error: %v", err)
	}

	names, err := store.Generations(ctx)
	if err != nil {
		t.Fatalf("generations error: %v", err)
	}
	if len(names) != 1 || names[0] != "v2" {
		t.Fatalf("expected only v2 to survive, got %v", names)
	}
}

func TestActivatorKeepsCurrentWhenAlone(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	ctx := context.Background()

	locator := cache.Locator{Generation: "v1", Method: http.MethodGet, Path: "/"}
	if _, err := store.Put(ctx, locator, cache.Metadata{}, bytes.NewReader([]byte("shell")), cache.PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	activator := NewActivator(store, discardLogger())
	if err := activator.Run(ctx, "v1"); err != nil {
		t.Fatalf("activate error: %v", err)
	}

	if _, err := store.Get(ctx, locator); err != nil {
		t.Fatalf("current generation must survive activation: %v", err)
	}
}
