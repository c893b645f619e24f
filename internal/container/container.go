package container

import (
	"context"
	"fmt"

	"github.com/Brownie44l1/digitscope/internal/config"
	"github.com/Brownie44l1/digitscope/internal/model"
	"github.com/Brownie44l1/digitscope/internal/model/born"
	"github.com/Brownie44l1/digitscope/internal/model/ort"
	"github.com/Brownie44l1/digitscope/internal/occlusion"
	"github.com/Brownie44l1/digitscope/internal/task"
)

type Container struct {
	Engine   *model.Engine
	Analyzer *occlusion.Analyzer
	Sweeps   *task.Tracker[*occlusion.Result]
}

// Backend picks the inference backend named in the config.
func Backend(cfg *config.Config) (model.Backend, error) {
	switch cfg.Backend {
	case config.BackendORT:
		return ort.NewBackend(cfg.ORTLibraryPath), nil
	case config.BackendBorn:
		return born.NewBackend(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func New(cfg *config.Config) (*Container, error) {
	backend, err := Backend(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithBackend(backend, cfg.ModelPath, cfg.TileSize, cfg.Workers)
}

func NewWithBackend(backend model.Backend, modelPath string, tileSize, workers int) (*Container, error) {
	engine := model.NewEngine(backend, modelPath)
	analyzer, err := occlusion.NewAnalyzer(engine,
		occlusion.WithTileSize(tileSize),
		occlusion.WithWorkers(workers))
	if err != nil {
		return nil, err
	}

	return &Container{
		Engine:   engine,
		Analyzer: analyzer,
		Sweeps:   task.NewTracker[*occlusion.Result](),
	}, nil
}

func (c *Container) Infer(ctx context.Context, g *model.Grid) (model.Probabilities, error) {
	return c.Engine.Infer(ctx, g)
}

func (c *Container) Loaded() bool {
	return c.Engine.Loaded()
}

// Explain runs an occlusion sweep for g. A sweep submitted under the same
// non-empty key cancels the previous one with task.ErrSuperseded.
func (c *Container) Explain(ctx context.Context, key string, g *model.Grid) (*occlusion.Result, error) {
	t := c.Sweeps.Submit(ctx, key, func(ctx context.Context) (*occlusion.Result, error) {
		return c.Analyzer.Analyze(ctx, g)
	})
	return t.Wait(ctx)
}

func (c *Container) Close() error {
	return c.Engine.Close()
}
