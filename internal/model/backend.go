package model

import "errors"

var (
	// ErrModelUnavailable means the model artifact could not be loaded. The
	// engine keeps no session afterwards, so the next call retries the load.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInferenceFailed means a forward pass failed. The cached session is
	// kept and stays usable.
	ErrInferenceFailed = errors.New("inference failed")
)

// Backend loads a model artifact into a runnable session.
type Backend interface {
	LoadModel(path string) (Session, error)
}

// Session runs a forward pass on a tensor bound to InputName and returns the
// OutputName scores.
type Session interface {
	RunForward(input []float32, shape []int64) ([]float32, error)
}

// ConcurrentSession is implemented by sessions that accept overlapping
// RunForward calls. Sessions without it are used by one call at a time.
type ConcurrentSession interface {
	Concurrent() bool
}

type closer interface {
	Close() error
}
