package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/models"
)

// HTTPInference talks to a local expression-classifier sidecar. The sidecar
// accepts a raw JPEG frame on POST /classify and answers with the seven
// expression scores, or face_found=false when the frame has no face.
type HTTPInference struct {
	baseURL string
	client  *http.Client
}

type classifyResponse struct {
	FaceFound   bool                          `json:"face_found"`
	Expressions map[models.Expression]float64 `json:"expressions"`
}

func NewHTTPInference(baseURL string) *HTTPInference {
	return &HTTPInference{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPInference) Classify(ctx context.Context, frame []byte) (models.ExpressionVector, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/classify", bytes.NewReader(frame))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("classify %s: %s", resp.Status, string(body))
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("classify decode: %w", err)
	}
	if !out.FaceFound {
		return nil, false, nil
	}

	return models.ExpressionVector(out.Expressions), true, nil
}
