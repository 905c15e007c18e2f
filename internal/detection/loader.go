package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// modelNames are the three artifact sets required before detection is
// possible. Absence of any one fails the whole load as a unit.
var modelNames = []string{
	"tiny_face_detector",
	"face_landmark_68",
	"face_expression",
}

type weightsManifest []struct {
	Paths []string `json:"paths"`
}

// ModelLoader fetches and caches the expression model artifacts from a fixed
// base URL. LoadModels is idempotent: once the models are loaded, or while a
// load is in flight, further calls do not re-trigger the fetch. A failed load
// leaves the loader unloaded; the caller must retry explicitly.
type ModelLoader struct {
	baseURL  string
	cacheDir string
	client   *http.Client

	mu      sync.Mutex
	loaded  bool
	loading bool
	waiters []chan error
}

func NewModelLoader(baseURL, cacheDir string) (*ModelLoader, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("model base URL is required")
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model cache directory: %w", err)
	}

	return &ModelLoader{
		baseURL:  baseURL,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// ModelsLoaded reports whether all three artifact sets are available.
func (l *ModelLoader) ModelsLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// IsLoading reports whether a load is currently in flight.
func (l *ModelLoader) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// ModelDir returns the directory holding the cached artifacts.
func (l *ModelLoader) ModelDir() string {
	return l.cacheDir
}

// LoadModels fetches the three model sets. Concurrent callers share a single
// underlying fetch and all observe its outcome.
func (l *ModelLoader) LoadModels(ctx context.Context) error {
	l.mu.Lock()
	if l.loaded {
		l.mu.Unlock()
		return nil
	}
	if l.loading {
		done := make(chan error, 1)
		l.waiters = append(l.waiters, done)
		l.mu.Unlock()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.loading = true
	l.mu.Unlock()

	err := l.fetchAll(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load expression models: %w", err)
	}

	l.mu.Lock()
	l.loading = false
	l.loaded = err == nil
	waiters := l.waiters
	l.waiters = nil
	l.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}

	if err == nil {
		log.Printf("Expression models loaded from %s", l.baseURL)
	}
	return err
}

func (l *ModelLoader) fetchAll(ctx context.Context) error {
	for _, name := range modelNames {
		if err := l.fetchModelSet(ctx, name); err != nil {
			return fmt.Errorf("model set %s: %w", name, err)
		}
	}
	return nil
}

func (l *ModelLoader) fetchModelSet(ctx context.Context, name string) error {
	manifestFile := name + "_model-weights_manifest.json"
	data, err := l.fetchFile(ctx, manifestFile)
	if err != nil {
		return err
	}

	var manifest weightsManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("invalid manifest %s: %w", manifestFile, err)
	}

	for _, group := range manifest {
		for _, shard := range group.Paths {
			if _, err := l.fetchFile(ctx, shard); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *ModelLoader) fetchFile(ctx context.Context, name string) ([]byte, error) {
	fileURL, err := url.JoinPath(l.baseURL, name)
	if err != nil {
		return nil, fmt.Errorf("bad artifact path %s: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", name, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	dest := filepath.Join(l.cacheDir, filepath.Base(name))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return nil, fmt.Errorf("caching %s: %w", name, err)
	}

	return data, nil
}
