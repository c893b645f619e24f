package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/Brownie44l1/digitscope/internal/heatmap"
	"github.com/Brownie44l1/digitscope/internal/model"
	"github.com/Brownie44l1/digitscope/internal/occlusion"
	"github.com/Brownie44l1/digitscope/internal/raster"
	"github.com/Brownie44l1/digitscope/internal/task"
)

// Service is the part of the container the handlers need.
type Service interface {
	Infer(ctx context.Context, g *model.Grid) (model.Probabilities, error)
	Explain(ctx context.Context, key string, g *model.Grid) (*occlusion.Result, error)
	Loaded() bool
}

type Handler struct {
	service   Service
	maxUpload int64
}

func NewHandler(service Service, maxUpload int64) *Handler {
	return &Handler{
		service:   service,
		maxUpload: maxUpload,
	}
}

type healthResponse struct {
	Status      string         `json:"status"`
	ModelLoaded bool           `json:"model_loaded"`
	Contract    model.Metadata `json:"contract"`
}

type ExplainResponse struct {
	*model.PredictionResponse
	Target int            `json:"target"`
	Heat   []float64      `json:"heat"`
	Cols   int            `json:"cols"`
	Rows   int            `json:"rows"`
	Cells  []heatmap.Cell `json:"cells"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:      "healthy",
		ModelLoaded: h.service.Loaded(),
		Contract:    model.Contract(),
	})
}

// Predict accepts either a ready 784-value grid or a raw RGBA canvas.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	grid, err := gridFromRequest(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	probs, err := h.service.Infer(r.Context(), grid)
	if err != nil {
		writeError(w, "Prediction", err)
		return
	}

	writeJSON(w, model.NewPredictionResponse(probs))
}

func gridFromRequest(req *model.PredictionRequest) (*model.Grid, error) {
	if len(req.Grid) > 0 {
		if len(req.Grid) != model.GridLen {
			return nil, fmt.Errorf("Expected %d values, got %d", model.GridLen, len(req.Grid))
		}
		var g model.Grid
		for i, v := range req.Grid {
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("Grid value %d out of range [0,1]: %v", i, v)
			}
			g[i] = v
		}
		return &g, nil
	}

	canvas, err := raster.NewCanvas(req.Width, req.Height, req.Pixels)
	if err != nil {
		return nil, fmt.Errorf("Invalid canvas: %v", err)
	}
	return raster.Rasterize(canvas.Image()), nil
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	img, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	probs, err := h.service.Infer(r.Context(), raster.Rasterize(img))
	if err != nil {
		writeError(w, "Prediction", err)
		return
	}

	writeJSON(w, model.NewPredictionResponse(probs))
}

// Explain runs the occlusion sweep on an uploaded drawing. The optional
// "canvas" field identifies the drawing surface: a newer request for the same
// canvas makes an unfinished one fail with 409. format=png returns the
// drawing with the heatmap painted over it, format=overlay only the heatmap.
// width and height set the canvas size for the overlay and the JSON cells.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	img, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	if v := r.FormValue("width"); v != "" {
		if width, ok = positive(v); !ok {
			http.Error(w, "Invalid width", http.StatusBadRequest)
			return
		}
	}
	if v := r.FormValue("height"); v != "" {
		if height, ok = positive(v); !ok {
			http.Error(w, "Invalid height", http.StatusBadRequest)
			return
		}
	}

	result, err := h.service.Explain(r.Context(), r.FormValue("canvas"), raster.Rasterize(img))
	if err != nil {
		writeError(w, "Explanation", err)
		return
	}

	if r.FormValue("format") == "png" {
		// The composite is painted at the upload's own size.
		bounds := img.Bounds()
		width, height = bounds.Dx(), bounds.Dy()
	}

	cells, err := heatmap.Project(result.Heat, result.TileSize, width, height)
	if err != nil {
		writeError(w, "Explanation", err)
		return
	}

	switch r.FormValue("format") {
	case "png":
		writePNG(w, heatmap.Compose(img, cells))
	case "overlay":
		writePNG(w, heatmap.Overlay(width, height, cells))
	default:
		writeJSON(w, ExplainResponse{
			PredictionResponse: model.NewPredictionResponse(result.Baseline),
			Target:             result.Target,
			Heat:               result.Heat,
			Cols:               result.Cols,
			Rows:               result.Rows,
			Cells:              cells,
		})
	}
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*image.RGBA, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	img, format, err := raster.Decode(file)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: PNG, JPEG, BMP, TIFF, WebP", http.StatusBadRequest)
		return nil, false
	}

	log.Printf("Received %s (%s, %dx%d, %d bytes)", header.Filename, format, img.Bounds().Dx(), img.Bounds().Dy(), header.Size)
	return img, true
}

func positive(v string) (int, bool) {
	n, err := strconv.Atoi(v)
	return n, err == nil && n > 0
}

func writeError(w http.ResponseWriter, op string, err error) {
	log.Printf("%s error: %v", op, err)
	switch {
	case errors.Is(err, task.ErrSuperseded):
		http.Error(w, "Superseded by a newer request", http.StatusConflict)
	case errors.Is(err, model.ErrModelUnavailable):
		http.Error(w, "Model unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Encode response: %v", err)
	}
}

func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		log.Printf("Encode png: %v", err)
	}
}
