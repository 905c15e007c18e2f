package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ahmedMshaban/AuraFlow-sub001/internal/api"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/capture"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/database"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/detection"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/scheduler"
	"github.com/ahmedMshaban/AuraFlow-sub001/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	maxUploadSize := os.Getenv("MAX_UPLOAD_SIZE")
	if maxUploadSize == "" {
		maxUploadSize = "52428800"
	}
	maxSize, err := strconv.ParseInt(maxUploadSize, 10, 64)
	if err != nil {
		log.Fatal("Invalid MAX_UPLOAD_SIZE:", err)
	}

	clipDir := os.Getenv("CLIP_DIR")
	if clipDir == "" {
		clipDir = "./clips"
	}

	// Database configuration
	dbType := os.Getenv("DB_TYPE")
	if dbType == "" {
		dbType = "sqlite"
	}

	var dbConfig database.Config
	dbConfig.Type = dbType

	if dbType == "postgres" {
		dbConfig.Host = os.Getenv("DB_HOST")
		if dbConfig.Host == "" {
			dbConfig.Host = "localhost"
		}

		dbPortStr := os.Getenv("DB_PORT")
		if dbPortStr == "" {
			dbPortStr = "5432"
		}
		dbPort, err := strconv.Atoi(dbPortStr)
		if err != nil {
			log.Fatal("Invalid DB_PORT:", err)
		}
		dbConfig.Port = dbPort

		dbConfig.User = os.Getenv("DB_USER")
		if dbConfig.User == "" {
			dbConfig.User = "auraflow"
		}

		dbConfig.Password = os.Getenv("DB_PASSWORD")
		if dbConfig.Password == "" {
			dbConfig.Password = "auraflow_dev"
		}

		dbConfig.Name = os.Getenv("DB_NAME")
		if dbConfig.Name == "" {
			dbConfig.Name = "auraflow"
		}
	} else {
		dbConfig.SQLitePath = os.Getenv("DB_PATH")
		if dbConfig.SQLitePath == "" {
			dbConfig.SQLitePath = "./auraflow.db"
		}
	}

	modelBaseURL := os.Getenv("MODEL_BASE_URL")
	if modelBaseURL == "" {
		modelBaseURL = "http://localhost:8081/models"
	}

	modelCacheDir := os.Getenv("MODEL_CACHE_DIR")
	if modelCacheDir == "" {
		modelCacheDir = "./models"
	}

	inferenceURL := os.Getenv("INFERENCE_URL")
	if inferenceURL == "" {
		inferenceURL = "http://localhost:8082"
	}

	frameSize := 512
	if frameSizeStr := os.Getenv("FRAME_SIZE"); frameSizeStr != "" {
		if parsed, err := strconv.Atoi(frameSizeStr); err == nil {
			frameSize = parsed
		}
	}

	localStorage, err := storage.NewLocalStorage(clipDir)
	if err != nil {
		log.Fatal("Failed to initialize clip storage:", err)
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	repo := database.NewStressRepository(db)

	loader, err := detection.NewModelLoader(modelBaseURL, modelCacheDir)
	if err != nil {
		log.Fatal("Failed to initialize model loader:", err)
	}

	detector := detection.NewExpressionDetector(loader, detection.NewHTTPInference(inferenceURL))

	frames, err := capture.NewFrameGrabber()
	if err != nil {
		log.Fatal("Failed to initialize frame grabber:", err)
	}
	defer frames.Cleanup()

	service := scheduler.New(repo)
	if err := service.Initialize(); err != nil {
		log.Fatal("Failed to initialize scheduler:", err)
	}
	defer service.Close()

	app := &api.App{
		Repo:          repo,
		Scheduler:     service,
		Loader:        loader,
		Detector:      detector,
		Frames:        frames,
		Storage:       localStorage,
		MaxUploadSize: maxSize,
		FrameSize:     frameSize,
	}

	router := api.NewRouter(app)

	log.Printf("Stress monitor starting on port %s", port)
	log.Printf("Clip directory: %s", clipDir)
	log.Printf("Database type: %s", dbType)
	if dbType == "postgres" {
		log.Printf("Database connection: %s@%s:%d/%s", dbConfig.User, dbConfig.Host, dbConfig.Port, dbConfig.Name)
	} else {
		log.Printf("Database path: %s", dbConfig.SQLitePath)
	}
	log.Printf("Model base URL: %s", modelBaseURL)
	log.Printf("Inference sidecar: %s", inferenceURL)

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal(err)
	}
}
