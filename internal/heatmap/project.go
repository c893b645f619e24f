// Package heatmap maps an occlusion sensitivity grid onto output pixels.
package heatmap

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/digitscope/internal/model"
)

var ErrGridShape = errors.New("sensitivity grid does not match tile size")

// Cell is one overlay rectangle in output coordinates with its opacity.
type Cell struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Alpha  float64 `json:"alpha"`
}

// Project scales each tile of heat, a square row-major grid of
// (28/tileSize)^2 values, to a width x height output. Cells come back in the
// same order as heat.
func Project(heat []float64, tileSize, width, height int) ([]Cell, error) {
	if tileSize <= 0 || model.GridSize%tileSize != 0 {
		return nil, fmt.Errorf("%w: tile size %d", ErrGridShape, tileSize)
	}
	n := model.GridSize / tileSize
	if len(heat) != n*n {
		return nil, fmt.Errorf("%w: %d values for a %dx%d grid", ErrGridShape, len(heat), n, n)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", width, height)
	}

	scaleX := float64(width) / model.GridSize
	scaleY := float64(height) / model.GridSize
	cellW := float64(tileSize) * scaleX
	cellH := float64(tileSize) * scaleY

	cells := make([]Cell, 0, len(heat))
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			cells = append(cells, Cell{
				X:      float64(c*tileSize) * scaleX,
				Y:      float64(r*tileSize) * scaleY,
				Width:  cellW,
				Height: cellH,
				Alpha:  heat[r*n+c],
			})
		}
	}
	return cells, nil
}
