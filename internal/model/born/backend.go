// Package born runs ONNX models with the pure-Go Born CPU backend, for hosts
// that cannot ship the ONNX Runtime shared library.
package born

import (
	"fmt"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/onnx"
	"github.com/born-ml/born/tensor"

	"github.com/Brownie44l1/digitscope/internal/model"
)

type Backend struct {
	cpu *cpu.Backend
}

func NewBackend() *Backend {
	return &Backend{cpu: cpu.New()}
}

func (b *Backend) LoadModel(path string) (model.Session, error) {
	m, err := onnx.Load(path, b.cpu)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := checkContract(m); err != nil {
		return nil, err
	}
	return &Session{model: m}, nil
}

func checkContract(m onnx.Model) error {
	if !contains(m.InputNames(), model.InputName) {
		return fmt.Errorf("model inputs %v do not include %q", m.InputNames(), model.InputName)
	}
	if !contains(m.OutputNames(), model.OutputName) {
		return fmt.Errorf("model outputs %v do not include %q", m.OutputNames(), model.OutputName)
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

type Session struct {
	model onnx.Model
}

func (s *Session) RunForward(input []float32, shape []int64) ([]float32, error) {
	dims := make(tensor.Shape, len(shape))
	size := 1
	for i, d := range shape {
		dims[i] = int(d)
		size *= int(d)
	}
	if size != len(input) {
		return nil, fmt.Errorf("input has %d values, shape %v expects %d", len(input), shape, size)
	}

	raw, err := tensor.NewRaw(dims, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	copy(raw.AsFloat32(), input)

	outputs, err := s.model.ForwardNamed(map[string]*tensor.RawTensor{model.InputName: raw})
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	out, ok := outputs[model.OutputName]
	if !ok {
		return nil, fmt.Errorf("model produced no %q output", model.OutputName)
	}
	if out.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%q has dtype %v, want float32", model.OutputName, out.DType())
	}

	data := out.AsFloat32()
	logits := make([]float32, len(data))
	copy(logits, data)
	return logits, nil
}

var _ model.Backend = (*Backend)(nil)
