package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/models"
)

// ErrModelsNotLoaded is a contract violation: detection was attempted before
// a successful LoadModels. It indicates a programming error, not a runtime
// condition, and should be caught by tests rather than user-facing error UI.
var ErrModelsNotLoaded = errors.New("models not loaded: call LoadModels first")

// Inference is the black-box expression classifier. Implementations score a
// single video frame; found is false when no face is present in the frame.
type Inference interface {
	Classify(ctx context.Context, frame []byte) (expressions models.ExpressionVector, found bool, err error)
}

// DetectionResult carries the expression probabilities extracted from one
// frame.
type DetectionResult struct {
	Expressions models.ExpressionVector `json:"expressions"`
	DetectedAt  time.Time               `json:"detected_at"`
}

// ExpressionDetector runs the loaded expression model against video frames.
type ExpressionDetector struct {
	loader *ModelLoader
	engine Inference
}

func NewExpressionDetector(loader *ModelLoader, engine Inference) *ExpressionDetector {
	return &ExpressionDetector{loader: loader, engine: engine}
}

// DetectExpressions extracts a seven-key expression vector from a video
// frame. A nil result with a nil error means no face was found, which is a
// normal, retryable outcome; callers must branch on it distinctly from an
// error.
func (d *ExpressionDetector) DetectExpressions(ctx context.Context, frame []byte) (*DetectionResult, error) {
	if !d.loader.ModelsLoaded() {
		return nil, ErrModelsNotLoaded
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	expressions, found, err := d.engine.Classify(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("expression inference failed: %w", err)
	}
	if !found {
		return nil, nil
	}

	return &DetectionResult{
		Expressions: clampVector(expressions),
		DetectedAt:  time.Now(),
	}, nil
}

// clampVector forces every probability into [0,1] and fills absent keys with
// zero so downstream consumers always see the full seven-key vector.
func clampVector(in models.ExpressionVector) models.ExpressionVector {
	out := make(models.ExpressionVector, len(models.ExpressionKeys))
	for _, key := range models.ExpressionKeys {
		v := in[key]
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[key] = v
	}
	return out
}
