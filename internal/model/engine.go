package model

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
)

// Engine owns the single cached model session. Create one per process and
// share it by pointer.
type Engine struct {
	backend   Backend
	modelPath string
	logger    *log.Logger

	// Infer and Warmup hold mu shared, Close holds it exclusively.
	mu      sync.RWMutex
	session atomic.Pointer[sessionRef]
	initSem chan struct{}
	runSem  chan struct{}
}

type sessionRef struct {
	Session
	concurrent bool
}

type EngineOption func(*Engine)

func WithLogger(l *log.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

func NewEngine(backend Backend, modelPath string, opts ...EngineOption) *Engine {
	e := &Engine{
		backend:   backend,
		modelPath: modelPath,
		logger:    log.Default(),
		initSem:   make(chan struct{}, 1),
		runSem:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Warmup loads the model if it is not loaded yet.
func (e *Engine) Warmup(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.acquire(ctx)
	return err
}

// Loaded reports whether a session is cached.
func (e *Engine) Loaded() bool {
	return e.session.Load() != nil
}

func (e *Engine) acquire(ctx context.Context) (*sessionRef, error) {
	if ref := e.session.Load(); ref != nil {
		return ref, nil
	}

	select {
	case e.initSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.initSem }()

	// Another caller may have finished loading while we waited.
	if ref := e.session.Load(); ref != nil {
		return ref, nil
	}

	e.logger.Printf("Loading model from: %s", e.modelPath)
	sess, err := e.backend.LoadModel(e.modelPath)
	if err != nil {
		e.logger.Printf("Model load failed: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	ref := &sessionRef{Session: sess}
	if c, ok := sess.(ConcurrentSession); ok {
		ref.concurrent = c.Concurrent()
	}
	e.session.Store(ref)
	e.logger.Printf("Model loaded: %s", e.modelPath)
	return ref, nil
}

// Infer normalizes the grid, runs the forward pass and returns the softmax of
// the logits.
func (e *Engine) Infer(ctx context.Context, g *Grid) (Probabilities, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ref, err := e.acquire(ctx)
	if err != nil {
		return Probabilities{}, err
	}

	input := Normalize(g)

	if !ref.concurrent {
		select {
		case e.runSem <- struct{}{}:
		case <-ctx.Done():
			return Probabilities{}, ctx.Err()
		}
		defer func() { <-e.runSem }()
	}

	logits, err := ref.RunForward(input, InputShape)
	if err != nil {
		e.logger.Printf("Forward pass failed: %v", err)
		return Probabilities{}, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}
	if len(logits) != NumClasses {
		return Probabilities{}, fmt.Errorf("%w: expected %d logits, got %d", ErrInferenceFailed, NumClasses, len(logits))
	}
	for i, v := range logits {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Probabilities{}, fmt.Errorf("%w: logit %d is %v", ErrInferenceFailed, i, v)
		}
	}

	return probabilities(logits), nil
}

// Close waits for running loads and forward passes to return, then releases
// the cached session and the backend, if they hold native resources. A
// LoadModel that never returns blocks Close as well. The engine can load
// again afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if ref := e.session.Swap(nil); ref != nil {
		if c, ok := ref.Session.(closer); ok {
			err = c.Close()
		}
	}
	if c, ok := e.backend.(closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
