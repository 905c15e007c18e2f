package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/capture"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/detection"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/stress"
)

func main() {
	var clipPath = flag.String("clip", "", "Path to the capture clip to analyze")
	var record = flag.Bool("record", false, "Capture a fresh clip from the camera instead of reading one from disk")
	var input = flag.String("input", "/dev/video0", "Camera device to record from (with -record)")
	var format = flag.String("format", "v4l2", "ffmpeg input format for the camera (with -record)")
	var durationMs = flag.Int64("duration", 0, "Clip length in milliseconds (with -record; 0 uses the default)")
	flag.Parse()

	if *clipPath == "" && !*record {
		log.Fatal("Please provide a clip path with -clip, or use -record to capture one")
	}

	modelBaseURL := getEnv("MODEL_BASE_URL", "http://localhost:8081/models")
	modelCacheDir := getEnv("MODEL_CACHE_DIR", "./models")
	inferenceURL := getEnv("INFERENCE_URL", "http://localhost:8082")

	loader, err := detection.NewModelLoader(modelBaseURL, modelCacheDir)
	if err != nil {
		log.Fatal("Failed to initialize model loader:", err)
	}

	ctx := context.Background()

	fmt.Println("Loading expression models...")
	if err := loader.LoadModels(ctx); err != nil {
		log.Fatal("Failed to load models:", err)
	}

	clip := *clipPath
	if *record {
		recorder, err := capture.NewRecorder()
		if err != nil {
			log.Fatal("Failed to initialize recorder:", err)
		}
		defer recorder.Cleanup()

		if err := recorder.Setup(capture.Stream{Input: *input, Format: *format}); err != nil {
			log.Fatal("Failed to set up recorder:", err)
		}

		fmt.Printf("Recording from %s (%s)...\n", *input, recorder.MimeType())
		recording, err := recorder.StartRecording(ctx, capture.RecordingOptions{DurationMs: *durationMs})
		if err != nil {
			log.Fatal("Recording failed:", err)
		}
		defer recording.Release()

		fmt.Printf("Captured %d bytes over %dms\n", recording.Size, recording.DurationMs)
		clip = recording.Path
	}

	frames, err := capture.NewFrameGrabber()
	if err != nil {
		log.Fatal("Failed to initialize frame grabber:", err)
	}
	defer frames.Cleanup()

	fmt.Printf("Extracting frame from %s\n", clip)
	frame, err := frames.MidFrame(clip, 512)
	if err != nil {
		log.Fatal("Failed to extract frame:", err)
	}

	detector := detection.NewExpressionDetector(loader, detection.NewHTTPInference(inferenceURL))

	detected, err := detector.DetectExpressions(ctx, frame)
	if err != nil {
		log.Fatal("Detection failed:", err)
	}
	if detected == nil {
		fmt.Println("No face detected in the clip. Try again with a clearer capture.")
		return
	}

	result := stress.AnalyzeStress(detected.Expressions)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal("Failed to encode result:", err)
	}
	fmt.Println(string(out))

	if result.IsStressed {
		fmt.Printf("\nVerdict: stressed (dominant: %s)\n", result.DominantExpression)
	} else {
		fmt.Printf("\nVerdict: not stressed (dominant: %s)\n", result.DominantExpression)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
