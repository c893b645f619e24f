// Package linear is a dependency-free backend computing logits = W·x + b. It
// is deterministic and safe for concurrent use, which makes it the stub model
// for tests and offline demos.
package linear

import (
	"fmt"

	"github.com/Brownie44l1/digitscope/internal/model"
)

type Model struct {
	Weights [model.NumClasses][]float32
	Bias    [model.NumClasses]float32
}

// Backend hands out the same in-memory model for every path. Set Err to make
// LoadModel fail.
type Backend struct {
	Model *Model
	Err   error
}

func NewBackend(m *Model) *Backend {
	return &Backend{Model: m}
}

func (b *Backend) LoadModel(path string) (model.Session, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	if b.Model == nil {
		return nil, fmt.Errorf("no linear model configured for %q", path)
	}
	return b.Model, nil
}

// FromTemplates builds a model whose class score is the dot product between
// the normalized input and the normalized template of that class, scaled by
// gain. Missing templates score a constant zero.
func FromTemplates(templates map[int]*model.Grid, gain float32) *Model {
	m := &Model{}
	for class := 0; class < model.NumClasses; class++ {
		w := make([]float32, model.GridLen)
		if t, ok := templates[class]; ok {
			norm := model.Normalize(t)
			var energy float32
			for _, v := range norm {
				energy += v * v
			}
			if energy > 0 {
				for i, v := range norm {
					w[i] = gain * v / energy
				}
			}
		}
		m.Weights[class] = w
	}
	return m
}

func (m *Model) RunForward(input []float32, shape []int64) ([]float32, error) {
	size := int64(1)
	for _, d := range shape {
		size *= d
	}
	if int(size) != len(input) || len(input) != model.GridLen {
		return nil, fmt.Errorf("input shape %v does not match %d values", shape, len(input))
	}

	logits := make([]float32, model.NumClasses)
	for class, w := range m.Weights {
		if len(w) != len(input) {
			return nil, fmt.Errorf("class %d has %d weights, want %d", class, len(w), len(input))
		}
		sum := m.Bias[class]
		for i, x := range input {
			sum += w[i] * x
		}
		logits[class] = sum
	}
	return logits, nil
}

func (m *Model) Concurrent() bool {
	return true
}

var (
	_ model.Backend           = (*Backend)(nil)
	_ model.ConcurrentSession = (*Model)(nil)
)
