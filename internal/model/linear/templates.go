package linear

import "github.com/Brownie44l1/digitscope/internal/model"

// Fill sets every cell in [x0,x1)×[y0,y1) to v.
func Fill(g *model.Grid, x0, y0, x1, y1 int, v float32) {
	for y := max(y0, 0); y < min(y1, model.GridSize); y++ {
		for x := max(x0, 0); x < min(x1, model.GridSize); x++ {
			g[y*model.GridSize+x] = v
		}
	}
}

// One is a centred vertical stroke, 3 cells wide and 20 tall.
func One() *model.Grid {
	var g model.Grid
	Fill(&g, 13, 4, 16, 24, 1)
	return &g
}

// Zero is a rectangular ring inside the 20x20 digit box.
func Zero() *model.Grid {
	var g model.Grid
	Fill(&g, 8, 4, 20, 24, 1)
	Fill(&g, 11, 7, 17, 21, 0)
	return &g
}

// Seven is a top bar with a stroke down the right side.
func Seven() *model.Grid {
	var g model.Grid
	Fill(&g, 8, 4, 20, 7, 1)
	Fill(&g, 17, 7, 20, 24, 1)
	return &g
}

// Digits is a template classifier for 0, 1 and 7.
func Digits() *Model {
	return FromTemplates(map[int]*model.Grid{
		0: Zero(),
		1: One(),
		7: Seven(),
	}, 12)
}
