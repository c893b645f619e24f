package occlusion

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/digitscope/internal/model"
	"github.com/Brownie44l1/digitscope/internal/model/linear"
)

type recorder struct {
	next Inferer

	mu    sync.Mutex
	grids []model.Grid
}

func (r *recorder) Infer(ctx context.Context, g *model.Grid) (model.Probabilities, error) {
	r.mu.Lock()
	r.grids = append(r.grids, *g)
	r.mu.Unlock()
	return r.next.Infer(ctx, g)
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.grids)
}

type inferFunc func(ctx context.Context, g *model.Grid) (model.Probabilities, error)

func (f inferFunc) Infer(ctx context.Context, g *model.Grid) (model.Probabilities, error) {
	return f(ctx, g)
}

func digitsEngine() *model.Engine {
	return model.NewEngine(linear.NewBackend(linear.Digits()), "mem",
		model.WithLogger(log.New(io.Discard, "", 0)))
}

func randomGrid(seed int64) *model.Grid {
	rng := rand.New(rand.NewSource(seed))
	var g model.Grid
	for i := range g {
		if rng.Intn(4) == 0 {
			g[i] = rng.Float32()
		}
	}
	return &g
}

func TestAnalyzeShapeAndCallCount(t *testing.T) {
	inputs := map[string]*model.Grid{
		"blank":  {},
		"one":    linear.One(),
		"zero":   linear.Zero(),
		"random": randomGrid(3),
	}
	for name, g := range inputs {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{next: digitsEngine()}
			a, err := NewAnalyzer(rec)
			require.NoError(t, err)

			res, err := a.Analyze(context.Background(), g)
			require.NoError(t, err)
			require.Len(t, res.Heat, 49)
			require.Equal(t, 7, res.Cols)
			require.Equal(t, 7, res.Rows)
			require.Equal(t, 4, res.TileSize)
			require.Equal(t, 50, rec.calls())
			require.Equal(t, a.Calls(), rec.calls())

			// baseline is the unmodified grid and comes first
			require.Equal(t, *g, rec.grids[0])

			var peak float64
			for _, v := range res.Heat {
				require.GreaterOrEqual(t, v, 0.0)
				require.LessOrEqual(t, v, 1.0)
				peak = max(peak, v)
			}
			require.True(t, peak == 1 || peak == 0, "peak %v", peak)
		})
	}
}

func TestAnalyzeBlankGridIsAllZero(t *testing.T) {
	a, err := NewAnalyzer(digitsEngine())
	require.NoError(t, err)

	res, err := a.Analyze(context.Background(), &model.Grid{})
	require.NoError(t, err)
	require.Equal(t, make([]float64, 49), res.Heat)
}

func TestAnalyzeHighlightsStroke(t *testing.T) {
	a, err := NewAnalyzer(digitsEngine())
	require.NoError(t, err)

	g := linear.One()
	before := *g
	res, err := a.Analyze(context.Background(), g)
	require.NoError(t, err)
	require.Equal(t, before, *g, "input grid must not be modified")
	require.Equal(t, 1, res.Target)

	// The stroke occupies columns 13-15 and rows 4-23: tile column 3, rows 1-5.
	var hitMax bool
	for row := 0; row < res.Rows; row++ {
		for col := 0; col < res.Cols; col++ {
			v := res.Heat[row*res.Cols+col]
			if col == 3 && row >= 1 && row <= 5 {
				require.Greater(t, v, 0.5, "tile %d,%d", col, row)
				hitMax = hitMax || v == 1
				continue
			}
			require.Zero(t, v, "tile %d,%d", col, row)
		}
	}
	require.True(t, hitMax)
}

func TestAnalyzeKeepsBaselineTargetAndClampsGains(t *testing.T) {
	var calls int
	inferer := inferFunc(func(_ context.Context, g *model.Grid) (model.Probabilities, error) {
		calls++
		if calls == 1 {
			return model.Probabilities{0.1, 0.6, 0.3}, nil
		}
		switch {
		case g[0] == 0:
			// first tile erased: class 2 takes over, class 1 drops
			return model.Probabilities{0.1, 0.2, 0.7}, nil
		case g[27] == 0:
			// last tile of the first row erased: target gains confidence
			return model.Probabilities{0, 0.9, 0.1}, nil
		}
		return model.Probabilities{0.1, 0.5, 0.4}, nil
	})

	var g model.Grid
	for i := range g {
		g[i] = 1
	}

	a, err := NewAnalyzer(inferer, WithTileSize(14))
	require.NoError(t, err)
	res, err := a.Analyze(context.Background(), &g)
	require.NoError(t, err)

	require.Equal(t, 1, res.Target)
	require.Equal(t, 5, calls)
	// raw drops: 0.4, 0 (clamped from -0.3), 0.1, 0.1
	require.InDeltaSlice(t, []float64{1, 0, 0.25, 0.25}, res.Heat, 1e-9)
}

func TestAnalyzeWorkersMatchSequential(t *testing.T) {
	engine := digitsEngine()
	g := randomGrid(11)

	seq, err := NewAnalyzer(engine)
	require.NoError(t, err)
	want, err := seq.Analyze(context.Background(), g)
	require.NoError(t, err)

	par, err := NewAnalyzer(engine, WithWorkers(6))
	require.NoError(t, err)
	got, err := par.Analyze(context.Background(), g)
	require.NoError(t, err)

	require.Equal(t, want, got)
}

func TestAnalyzeFailureAbortsSweep(t *testing.T) {
	boom := errors.New("engine fault")
	for _, workers := range []int{1, 4} {
		var mu sync.Mutex
		var calls int
		inferer := inferFunc(func(_ context.Context, _ *model.Grid) (model.Probabilities, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 10 {
				return model.Probabilities{}, boom
			}
			return model.Probabilities{1}, nil
		})

		a, err := NewAnalyzer(inferer, WithWorkers(workers))
		require.NoError(t, err)
		res, err := a.Analyze(context.Background(), linear.One())
		require.ErrorIs(t, err, boom)
		require.Nil(t, res)
	}
}

func TestAnalyzeBaselineFailure(t *testing.T) {
	a, err := NewAnalyzer(inferFunc(func(context.Context, *model.Grid) (model.Probabilities, error) {
		return model.Probabilities{}, model.ErrModelUnavailable
	}))
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), linear.One())
	require.ErrorIs(t, err, model.ErrModelUnavailable)
}

func TestAnalyzeStopsWhenCancelled(t *testing.T) {
	superseded := errors.New("superseded")
	for _, workers := range []int{1, 3} {
		ctx, cancel := context.WithCancelCause(context.Background())
		var mu sync.Mutex
		var calls int
		inferer := inferFunc(func(_ context.Context, _ *model.Grid) (model.Probabilities, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 3 {
				cancel(superseded)
			}
			return model.Probabilities{1}, nil
		})

		a, err := NewAnalyzer(inferer, WithWorkers(workers))
		require.NoError(t, err)
		res, err := a.Analyze(ctx, linear.One())
		require.ErrorIs(t, err, superseded)
		require.Nil(t, res)

		mu.Lock()
		require.Less(t, calls, 50)
		mu.Unlock()
	}
}

func TestTileSizes(t *testing.T) {
	for _, bad := range []int{0, -4, 3, 5, 29} {
		_, err := NewAnalyzer(digitsEngine(), WithTileSize(bad))
		require.ErrorIs(t, err, ErrInvalidTileSize, "tile %d", bad)
	}

	for tile, cells := range map[int]int{1: 784, 7: 16, 14: 4, 28: 1} {
		a, err := NewAnalyzer(digitsEngine(), WithTileSize(tile))
		require.NoError(t, err)
		res, err := a.Analyze(context.Background(), linear.Seven())
		require.NoError(t, err)
		require.Len(t, res.Heat, cells)
		require.Equal(t, 1+cells, a.Calls())
	}
}
