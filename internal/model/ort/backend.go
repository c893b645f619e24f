// Package ort runs models through the ONNX Runtime shared library.
package ort

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/digitscope/internal/model"
)

// Backend initializes the ONNX Runtime environment on first load. LibraryPath
// may be empty to use the platform default.
type Backend struct {
	LibraryPath string

	mu sync.Mutex
}

func NewBackend(libraryPath string) *Backend {
	return &Backend{LibraryPath: libraryPath}
}

func (b *Backend) init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if b.LibraryPath != "" {
		ort.SetSharedLibraryPath(b.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

func (b *Backend) LoadModel(path string) (model.Session, error) {
	if err := b.init(); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(model.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(model.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{model.InputName}, []string{model.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Close tears down the ONNX Runtime environment. Call it once at process exit
// after every session is closed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Session binds one input and one output tensor to the model. The tensors are
// shared between runs, so a Session serves one RunForward at a time.
type Session struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func (s *Session) RunForward(input []float32, shape []int64) ([]float32, error) {
	data := s.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("input has %d values, tensor %v expects %d", len(input), shape, len(data))
	}
	copy(data, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}

	out := s.outputTensor.GetData()
	logits := make([]float32, len(out))
	copy(logits, out)
	return logits, nil
}

func (s *Session) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.session != nil {
		keep(s.session.Destroy())
	}
	if s.inputTensor != nil {
		keep(s.inputTensor.Destroy())
	}
	if s.outputTensor != nil {
		keep(s.outputTensor.Destroy())
	}
	return firstErr
}

var _ model.Backend = (*Backend)(nil)
