package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/Brownie44l1/digitscope/internal/config"
	"github.com/Brownie44l1/digitscope/internal/container"
	"github.com/Brownie44l1/digitscope/internal/handlers"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app, err := container.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := app.Engine.Warmup(ctx); err != nil {
		// not fatal: the engine retries the load on the next request
		log.Printf("Model warmup failed: %v", err)
	}
	cancel()

	handler := handlers.NewHandler(app, cfg.MaxUploadBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", enableCORS(handler.Health))
	mux.HandleFunc("/predict", enableCORS(handler.Predict))
	mux.HandleFunc("/predict/image", enableCORS(handler.PredictFromImage))
	mux.HandleFunc("/explain", enableCORS(handler.Explain))

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Backend: %s, model: %s", cfg.Backend, cfg.ModelPath)
	log.Printf("Occlusion: tile %d, %d inferences per explanation, %d workers",
		app.Analyzer.TileSize(), app.Analyzer.Calls(), cfg.Workers)
	log.Println("Endpoints:")
	log.Println("  GET  /health        - Health check")
	log.Println("  POST /predict       - Predict from a 28x28 grid or RGBA canvas")
	log.Println("  POST /predict/image - Predict from image upload")
	log.Println("  POST /explain       - Occlusion heatmap for image upload")

	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
