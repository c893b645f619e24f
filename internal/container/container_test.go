package container_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/digitscope/internal/container"
	"github.com/Brownie44l1/digitscope/internal/model"
	"github.com/Brownie44l1/digitscope/internal/model/linear"
	"github.com/Brownie44l1/digitscope/internal/occlusion"
	"github.com/Brownie44l1/digitscope/internal/task"
)

// gatedSession blocks its first forward pass until a later one starts, so
// the first sweep is still running when the second is submitted.
type gatedSession struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedSession) RunForward(input []float32, shape []int64) ([]float32, error) {
	if s.calls.Add(1) == 1 {
		close(s.entered)
		<-s.release
	} else {
		s.once.Do(func() { close(s.release) })
	}
	return make([]float32, model.NumClasses), nil
}

func (s *gatedSession) Concurrent() bool { return true }

type sessionBackend struct {
	session model.Session
}

func (b sessionBackend) LoadModel(string) (model.Session, error) {
	return b.session, nil
}

func TestExplainSupersedesSameKey(t *testing.T) {
	sess := &gatedSession{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	app, err := container.NewWithBackend(sessionBackend{session: sess}, "mem", 14, 1)
	require.NoError(t, err)
	defer app.Close()

	first := make(chan error, 1)
	go func() {
		_, err := app.Explain(context.Background(), "canvas-1", linear.One())
		first <- err
	}()
	<-sess.entered

	res, err := app.Explain(context.Background(), "canvas-1", linear.Seven())
	require.NoError(t, err)
	require.Len(t, res.Heat, 4)

	require.ErrorIs(t, <-first, task.ErrSuperseded)
	require.Eventually(t, func() bool { return app.Sweeps.Len() == 0 }, time.Second, time.Millisecond)
	require.EqualValues(t, 1+5, sess.calls.Load())
}

func TestExplainDifferentKeysRunIndependently(t *testing.T) {
	app, err := container.NewWithBackend(linear.NewBackend(linear.Digits()), "mem", occlusion.DefaultTileSize, 2)
	require.NoError(t, err)
	defer app.Close()

	var wg sync.WaitGroup
	results := make([]*occlusion.Result, 2)
	errs := make([]error, 2)
	for i, key := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = app.Explain(context.Background(), key, linear.One())
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, 1, results[i].Target)
	}
}
