// Package task runs work in the background with explicit completion and
// cancellation, and lets a newer request for the same key supersede an older
// one.
package task

import (
	"context"
	"errors"
	"sync"
)

var ErrSuperseded = errors.New("superseded by a newer request")

// Task is the pending result of a function started with Go.
type Task[T any] struct {
	done   chan struct{}
	cancel context.CancelCauseFunc
	val    T
	err    error
}

// Go starts fn with a context derived from ctx. Cancelling the task cancels
// that context; fn decides how quickly to stop.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancelCause(ctx)
	t := &Task[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(t.done)
		defer cancel(nil)
		t.val, t.err = fn(ctx)
		if t.err != nil && ctx.Err() != nil {
			t.err = context.Cause(ctx)
		}
	}()
	return t
}

func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Cancel asks the task to stop with the given cause. It does not wait.
func (t *Task[T]) Cancel(cause error) {
	t.cancel(cause)
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Tracker keeps the latest task per key.
type Tracker[T any] struct {
	mu      sync.Mutex
	current map[string]*Task[T]
}

func NewTracker[T any]() *Tracker[T] {
	return &Tracker[T]{current: make(map[string]*Task[T])}
}

// Submit cancels the task previously submitted for key with ErrSuperseded,
// then starts fn. An empty key never supersedes anything.
func (tr *Tracker[T]) Submit(ctx context.Context, key string, fn func(context.Context) (T, error)) *Task[T] {
	if key == "" {
		return Go(ctx, fn)
	}

	tr.mu.Lock()
	if prev := tr.current[key]; prev != nil {
		prev.Cancel(ErrSuperseded)
	}
	t := Go(ctx, fn)
	tr.current[key] = t
	tr.mu.Unlock()

	go func() {
		<-t.done
		tr.mu.Lock()
		if tr.current[key] == t {
			delete(tr.current, key)
		}
		tr.mu.Unlock()
	}()
	return t
}

// Len reports how many keys have a running task.
func (tr *Tracker[T]) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.current)
}
