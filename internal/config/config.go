package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	BackendORT  = "ort"
	BackendBorn = "born"
)

type Config struct {
	Port           string
	ModelPath      string
	Backend        string
	ORTLibraryPath string
	TileSize       int
	Workers        int
	MaxUploadBytes int64
	TelegramToken  string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:           stringOr(getenv("PORT"), "8080"),
		ModelPath:      stringOr(getenv("MODEL_PATH"), "models/mnist_dnn.onnx"),
		Backend:        stringOr(getenv("MODEL_BACKEND"), BackendORT),
		ORTLibraryPath: getenv("ORT_LIBRARY_PATH"),
		TelegramToken:  getenv("TELEGRAM_TOKEN"),
	}

	switch cfg.Backend {
	case BackendORT, BackendBorn:
	default:
		return nil, fmt.Errorf("MODEL_BACKEND: unknown backend %q", cfg.Backend)
	}

	var err error
	if cfg.TileSize, err = intOr(getenv, "TILE_SIZE", 4); err != nil {
		return nil, err
	}
	if cfg.Workers, err = intOr(getenv, "OCCLUSION_WORKERS", 1); err != nil {
		return nil, err
	}
	mb, err := intOr(getenv, "MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(mb) << 20

	return cfg, nil
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: expected a positive integer, got %q", key, v)
	}
	return n, nil
}
