package detection

import (
	"context"
	"errors"
	"testing"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/models"
)

type mockInference struct {
	expressions models.ExpressionVector
	found       bool
	err         error
}

func (m *mockInference) Classify(ctx context.Context, frame []byte) (models.ExpressionVector, bool, error) {
	return m.expressions, m.found, m.err
}

func loadedLoader(t *testing.T) *ModelLoader {
	t.Helper()
	server := newModelServer(t, nil, "")
	t.Cleanup(server.Close)

	loader, err := NewModelLoader(server.URL, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	if err := loader.LoadModels(context.Background()); err != nil {
		t.Fatalf("LoadModels failed: %v", err)
	}
	return loader
}

func TestDetectExpressionsRequiresLoadedModels(t *testing.T) {
	server := newModelServer(t, nil, "")
	defer server.Close()

	loader, err := NewModelLoader(server.URL, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}

	detector := NewExpressionDetector(loader, &mockInference{found: true})

	_, err = detector.DetectExpressions(context.Background(), []byte("frame"))
	if !errors.Is(err, ErrModelsNotLoaded) {
		t.Errorf("expected ErrModelsNotLoaded, got %v", err)
	}
}

func TestDetectExpressionsNoFace(t *testing.T) {
	detector := NewExpressionDetector(loadedLoader(t), &mockInference{found: false})

	result, err := detector.DetectExpressions(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("no-face must not be an error, got %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result when no face is found, got %+v", result)
	}
}

func TestDetectExpressionsSuccess(t *testing.T) {
	detector := NewExpressionDetector(loadedLoader(t), &mockInference{
		found: true,
		expressions: models.ExpressionVector{
			models.ExpressionHappy:   0.7,
			models.ExpressionNeutral: 0.3,
		},
	})

	result, err := detector.DetectExpressions(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}

	if len(result.Expressions) != len(models.ExpressionKeys) {
		t.Errorf("expected full seven-key vector, got %d keys", len(result.Expressions))
	}
	if result.Expressions[models.ExpressionHappy] != 0.7 {
		t.Errorf("expected happy=0.7, got %f", result.Expressions[models.ExpressionHappy])
	}
	if result.Expressions[models.ExpressionAngry] != 0 {
		t.Errorf("expected absent keys to be zero-filled, got %f", result.Expressions[models.ExpressionAngry])
	}
}

func TestDetectExpressionsClampsProbabilities(t *testing.T) {
	detector := NewExpressionDetector(loadedLoader(t), &mockInference{
		found: true,
		expressions: models.ExpressionVector{
			models.ExpressionHappy: 1.3,
			models.ExpressionSad:   -0.2,
		},
	})

	result, err := detector.DetectExpressions(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Expressions[models.ExpressionHappy]; got != 1 {
		t.Errorf("expected happy clamped to 1, got %f", got)
	}
	if got := result.Expressions[models.ExpressionSad]; got != 0 {
		t.Errorf("expected sad clamped to 0, got %f", got)
	}
}

func TestDetectExpressionsInferenceError(t *testing.T) {
	detector := NewExpressionDetector(loadedLoader(t), &mockInference{
		err: errors.New("sidecar down"),
	})

	result, err := detector.DetectExpressions(context.Background(), []byte("frame"))
	if err == nil {
		t.Fatal("expected inference error to propagate")
	}
	if result != nil {
		t.Errorf("expected nil result on error, got %+v", result)
	}
}

func TestDetectExpressionsEmptyFrame(t *testing.T) {
	detector := NewExpressionDetector(loadedLoader(t), &mockInference{found: true})

	if _, err := detector.DetectExpressions(context.Background(), nil); err == nil {
		t.Error("expected error for empty frame")
	}
}
