package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/database"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/detection"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/models"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/scheduler"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/storage"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/stress"
)

// Detector matches the expression detector's surface so handlers can be
// tested with a mock engine.
type Detector interface {
	DetectExpressions(ctx context.Context, frame []byte) (*detection.DetectionResult, error)
}

// FrameSource extracts a scoreable frame from a stored clip.
type FrameSource interface {
	MidFrame(clipPath string, size int) ([]byte, error)
}

type App struct {
	Repo          *database.StressRepository
	Scheduler     *scheduler.Service
	Loader        *detection.ModelLoader
	Detector      Detector
	Frames        FrameSource
	Storage       storage.Storage
	MaxUploadSize int64
	FrameSize     int
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := app.Repo.GetConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read config")
		return
	}
	last, err := app.Repo.GetLastTestTimestamp()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"models_loaded":       app.Loader.ModelsLoaded(),
		"is_loading":          app.Loader.IsLoading(),
		"armed":               app.Scheduler.Armed(),
		"last_test_timestamp": last,
		"config":              cfg,
	})
}

func (app *App) LoadModelsHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Loader.LoadModels(r.Context()); err != nil {
		log.Printf("Model load failed: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to load stress detection models. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"models_loaded": true})
}

func (app *App) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := app.Repo.GetConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (app *App) UpdateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var cfg models.MonitoringConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config payload")
		return
	}

	if err := app.Repo.UpdateConfig(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (app *App) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := app.Repo.GetHistory()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	if history == nil {
		history = []models.StressHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (app *App) LastResultHandler(w http.ResponseWriter, r *http.Request) {
	result, err := app.Repo.GetLastResult()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read last result")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "No stress test recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RecordResultHandler is the hand-back point for a capture flow that ran
// detection client-side: it persists the verdict and the scheduler re-arms.
func (app *App) RecordResultHandler(w http.ResponseWriter, r *http.Request) {
	var result models.StressResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid result payload")
		return
	}
	if result.DominantExpression == "" {
		writeError(w, http.StatusBadRequest, "dominant_expression is required")
		return
	}

	if err := app.Scheduler.RecordTestResult(result); err != nil {
		log.Printf("Failed to record result: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to record result")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// SkipHandler reports a dismissed capture flow. Nothing is recorded; the
// scheduler backs off one full interval.
func (app *App) SkipHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Scheduler.SkipTest(); err != nil {
		log.Printf("Failed to skip test: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to skip test")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
}

// RequestsStreamHandler bridges the scheduler's test-requested signal to the
// dashboard over SSE. The capture UI owns exactly one connection to it.
func (app *App) RequestsStreamHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientGone := r.Context().Done()

	for {
		select {
		case <-app.Scheduler.Requests():
			if _, err := w.Write([]byte("event: test-requested\ndata: {}\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}

// AnalyzeClipHandler runs the full server-side pipeline on an uploaded
// capture clip: store, grab a mid-clip frame, detect expressions, classify
// stress, record the result. A frame without a face is a retryable outcome:
// it is reported in the response body and never advances the schedule.
func (app *App) AnalyzeClipHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Clip too large")
		return
	}

	file, header, err := r.FormFile("clip")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to get clip")
		return
	}
	defer file.Close()

	filename, err := app.Storage.SaveClip(file, storage.ClipInfo{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save clip")
		return
	}
	defer func() {
		if err := app.Storage.DeleteClip(filename); err != nil {
			log.Printf("Failed to delete clip %s: %v", filename, err)
		}
	}()

	clipPath, err := app.Storage.ClipPath(filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to locate clip")
		return
	}

	frame, err := app.Frames.MidFrame(clipPath, app.FrameSize)
	if err != nil {
		log.Printf("Frame extraction failed for %s: %v", filename, err)
		writeError(w, http.StatusUnprocessableEntity, "Recording was empty or unreadable. Please try again.")
		return
	}

	detected, err := app.Detector.DetectExpressions(r.Context(), frame)
	if err != nil {
		if errors.Is(err, detection.ErrModelsNotLoaded) {
			writeError(w, http.StatusConflict, "Stress detection models are not loaded yet")
			return
		}
		log.Printf("Detection failed for %s: %v", filename, err)
		writeError(w, http.StatusBadGateway, "Expression detection failed. Please try again.")
		return
	}
	if detected == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"face_detected": false,
			"message":       "No face detected. Please try again.",
		})
		return
	}

	result := stress.AnalyzeStress(detected.Expressions)
	if err := app.Scheduler.RecordTestResult(result); err != nil {
		log.Printf("Failed to record analyzed result: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to record result")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"face_detected": true,
		"result":        result,
	})
}
