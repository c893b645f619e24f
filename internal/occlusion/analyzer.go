// Package occlusion scores how much each tile of a digit grid supports the
// model's prediction: every tile is erased in turn and the drop in the
// predicted class probability is recorded.
package occlusion

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/Brownie44l1/digitscope/internal/model"
)

const DefaultTileSize = 4

var ErrInvalidTileSize = errors.New("tile size must divide the grid size")

// Inferer is satisfied by *model.Engine.
type Inferer interface {
	Infer(ctx context.Context, g *model.Grid) (model.Probabilities, error)
}

type Analyzer struct {
	inferer  Inferer
	tileSize int
	workers  int
}

type Option func(*Analyzer)

func WithTileSize(n int) Option {
	return func(a *Analyzer) {
		a.tileSize = n
	}
}

// WithWorkers runs up to n perturbed inferences at once. Only useful when the
// inference session accepts concurrent calls.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		a.workers = n
	}
}

func NewAnalyzer(inferer Inferer, opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		inferer:  inferer,
		tileSize: DefaultTileSize,
		workers:  1,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := ValidateTileSize(a.tileSize); err != nil {
		return nil, err
	}
	if a.workers < 1 {
		a.workers = 1
	}
	return a, nil
}

func ValidateTileSize(n int) error {
	if n <= 0 || n > model.GridSize || model.GridSize%n != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTileSize, n)
	}
	return nil
}

func (a *Analyzer) TileSize() int {
	return a.tileSize
}

// Result is a Cols x Rows sensitivity map in row-major order. Heat values are
// in [0,1]; the most important tile scores exactly 1 unless no tile lowered
// the target probability, in which case every value is 0.
type Result struct {
	Heat     []float64           `json:"heat"`
	Cols     int                 `json:"cols"`
	Rows     int                 `json:"rows"`
	TileSize int                 `json:"tile_size"`
	Target   int                 `json:"target"`
	Baseline model.Probabilities `json:"baseline"`
}

// Calls is the number of inferences Analyze performs.
func (a *Analyzer) Calls() int {
	n := model.GridSize / a.tileSize
	return 1 + n*n
}

// Analyze runs the baseline inference, then one inference per erased tile.
// Cancelling ctx stops issuing new inferences; an in-flight one is allowed
// to finish. Any failure aborts the whole sweep.
func (a *Analyzer) Analyze(ctx context.Context, g *model.Grid) (*Result, error) {
	baseline, err := a.inferer.Infer(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}

	n := model.GridSize / a.tileSize
	res := &Result{
		Heat:     make([]float64, n*n),
		Cols:     n,
		Rows:     n,
		TileSize: a.tileSize,
		Target:   baseline.Argmax(),
		Baseline: baseline,
	}
	base := baseline[res.Target]

	score := func(ctx context.Context, tile int) error {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}
		perturbed := a.erase(g, tile%n, tile/n)
		p, err := a.inferer.Infer(ctx, perturbed)
		if err != nil {
			return fmt.Errorf("tile %d: %w", tile, err)
		}
		res.Heat[tile] = max(0, base-p[res.Target])
		return nil
	}

	if a.workers == 1 {
		for tile := range res.Heat {
			if err := score(ctx, tile); err != nil {
				return nil, err
			}
		}
	} else {
		// The first failing tile cancels the others.
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(a.workers)
		for tile := range res.Heat {
			if egCtx.Err() != nil {
				break
			}
			eg.Go(func() error {
				return score(egCtx, tile)
			})
		}
		if err := eg.Wait(); err != nil {
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}

	// The peak tile ends up at exactly 1.
	if peak := floats.Max(res.Heat); peak > 0 {
		for i := range res.Heat {
			res.Heat[i] /= peak
		}
	}
	return res, nil
}

// erase returns a copy of g with tile (tx, ty) set to background.
func (a *Analyzer) erase(g *model.Grid, tx, ty int) *model.Grid {
	perturbed := *g
	for y := ty * a.tileSize; y < (ty+1)*a.tileSize; y++ {
		row := perturbed[y*model.GridSize:]
		for x := tx * a.tileSize; x < (tx+1)*a.tileSize; x++ {
			row[x] = 0
		}
	}
	return &perturbed
}
