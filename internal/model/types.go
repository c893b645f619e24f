package model

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	GridSize   = 28
	GridLen    = GridSize * GridSize
	NumClasses = 10

	InputName  = "input"
	OutputName = "logits"
)

var (
	InputShape  = []int64{1, 1, GridSize, GridSize}
	OutputShape = []int64{1, NumClasses}
)

// Grid is a row-major 28x28 intensity image, 1 = ink, 0 = background.
type Grid [GridLen]float32

func (g *Grid) At(x, y int) float32 {
	return g[y*GridSize+x]
}

// Probabilities is a softmax distribution over the digit classes.
type Probabilities [NumClasses]float64

// Argmax returns the first class attaining the maximum probability.
func (p Probabilities) Argmax() int {
	return floats.MaxIdx(p[:])
}

type ClassScore struct {
	Class       int     `json:"class"`
	Probability float64 `json:"probability"`
}

// Top returns the k most likely classes, highest first. Ties keep class order.
func (p Probabilities) Top(k int) []ClassScore {
	if k > len(p) {
		k = len(p)
	}
	if k <= 0 {
		return nil
	}
	scores := make([]ClassScore, len(p))
	for i, v := range p {
		scores[i] = ClassScore{Class: i, Probability: v}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Probability > scores[j].Probability
	})
	return scores[:k]
}

type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// Contract describes the tensor names and shapes every model artifact must expose.
func Contract() Metadata {
	classes := make([]string, NumClasses)
	for i := range classes {
		classes[i] = string(rune('0' + i))
	}
	return Metadata{
		InputName:   InputName,
		OutputName:  OutputName,
		InputShape:  append([]int64(nil), InputShape...),
		OutputShape: append([]int64(nil), OutputShape...),
		Classes:     classes,
		ImageSize:   GridSize,
	}
}

type PredictionRequest struct {
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
	Pixels []byte    `json:"pixels,omitempty"`
	Grid   []float32 `json:"grid,omitempty"`
}

type PredictionResponse struct {
	Class         int           `json:"class"`
	Confidence    float64       `json:"confidence"`
	Probabilities Probabilities `json:"probabilities"`
	Top           []ClassScore  `json:"top"`
}

func NewPredictionResponse(p Probabilities) *PredictionResponse {
	class := p.Argmax()
	return &PredictionResponse{
		Class:         class,
		Confidence:    p[class],
		Probabilities: p,
		Top:           p.Top(3),
	}
}
