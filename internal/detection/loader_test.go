package detection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func newModelServer(t *testing.T, requestCount *int64, failSet string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestCount != nil {
			atomic.AddInt64(requestCount, 1)
		}

		name := strings.TrimPrefix(r.URL.Path, "/")
		if failSet != "" && strings.HasPrefix(name, failSet) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		if strings.HasSuffix(name, "-weights_manifest.json") {
			base := strings.TrimSuffix(name, "-weights_manifest.json")
			w.Write([]byte(`[{"paths":["` + base + `-shard1"]}]`))
			return
		}
		w.Write([]byte("weights"))
	}))
}

func TestLoadModels(t *testing.T) {
	server := newModelServer(t, nil, "")
	defer server.Close()

	loader, err := NewModelLoader(server.URL, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}

	if loader.ModelsLoaded() {
		t.Error("expected models not loaded before LoadModels")
	}

	if err := loader.LoadModels(context.Background()); err != nil {
		t.Fatalf("LoadModels failed: %v", err)
	}

	if !loader.ModelsLoaded() {
		t.Error("expected models loaded after successful LoadModels")
	}
	if loader.IsLoading() {
		t.Error("expected isLoading=false after load completes")
	}
}

func TestLoadModelsIdempotent(t *testing.T) {
	var requests int64
	server := newModelServer(t, &requests, "")
	defer server.Close()

	loader, err := NewModelLoader(server.URL, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}

	if err := loader.LoadModels(context.Background()); err != nil {
		t.Fatalf("first LoadModels failed: %v", err)
	}
	after := atomic.LoadInt64(&requests)

	if err := loader.LoadModels(context.Background()); err != nil {
		t.Fatalf("second LoadModels failed: %v", err)
	}
	if got := atomic.LoadInt64(&requests); got != after {
		t.Errorf("second LoadModels re-fetched assets: %d requests before, %d after", after, got)
	}
}

func TestLoadModelsConcurrent(t *testing.T) {
	var requests int64
	server := newModelServer(t, &requests, "")
	defer server.Close()

	loader, err := NewModelLoader(server.URL, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = loader.LoadModels(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("concurrent LoadModels %d failed: %v", i, err)
		}
	}

	// 3 manifests + 3 shards regardless of how many callers raced.
	if got := atomic.LoadInt64(&requests); got != 6 {
		t.Errorf("expected exactly 6 asset fetches, got %d", got)
	}
	if !loader.ModelsLoaded() {
		t.Error("expected models loaded")
	}
}

func TestLoadModelsAllOrNothing(t *testing.T) {
	// The third set failing must fail the whole load even though the first
	// two fetched fine.
	server := newModelServer(t, nil, "face_expression")
	defer server.Close()

	loader, err := NewModelLoader(server.URL, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}

	err = loader.LoadModels(context.Background())
	if err == nil {
		t.Fatal("expected LoadModels to fail when one model set is missing")
	}
	if !strings.Contains(err.Error(), "failed to load expression models") {
		t.Errorf("expected wrapped load error, got: %v", err)
	}
	if loader.ModelsLoaded() {
		t.Error("failed load must not mark models as loaded")
	}
	if loader.IsLoading() {
		t.Error("expected isLoading=false after failed load")
	}
}

func TestLoadModelsRetryAfterFailure(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if strings.HasSuffix(r.URL.Path, "-weights_manifest.json") {
			w.Write([]byte(`[{"paths":[]}]`))
			return
		}
		w.Write([]byte("weights"))
	}))
	defer server.Close()

	loader, err := NewModelLoader(server.URL, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}

	if err := loader.LoadModels(context.Background()); err == nil {
		t.Fatal("expected first load to fail")
	}

	// No internal retry loop: the loader stays unloaded until the caller
	// invokes LoadModels again.
	fail.Store(false)
	if err := loader.LoadModels(context.Background()); err != nil {
		t.Fatalf("explicit retry failed: %v", err)
	}
	if !loader.ModelsLoaded() {
		t.Error("expected models loaded after retry")
	}
}
