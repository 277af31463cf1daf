package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/golang/glog"
)

// Runner runs Runnables in goroutines sharing one context and collects
// their errors. Cancellation is not reported as an error.
type Runner struct {
	ctx   context.Context
	wg    sync.WaitGroup
	lock  sync.Mutex
	errs  AggregatedError
	count int
}

// NewRunnerWith creates a runner with a specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{ctx: ctx}
}

// Go spawns Runnables.
func (r *Runner) Go(runnables ...Runnable) *Runner {
	for _, runnable := range runnables {
		name := strconv.Itoa(r.count)
		if named, ok := runnable.(Named); ok {
			name = named.Name()
		}
		r.count++
		r.wg.Add(1)
		go r.run(name, runnable)
	}
	return r
}

func (r *Runner) run(name string, runnable Runnable) {
	defer r.wg.Done()
	glog.V(4).Infof("Runner[%s] started", name)
	err := runnable.Run(r.ctx)
	glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	r.lock.Lock()
	r.errs.Add(fmt.Errorf("%s: %w", name, err))
	r.lock.Unlock()
}

// Wait blocks until every spawned Runnable returns.
func (r *Runner) Wait() error {
	r.wg.Wait()
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.errs.Aggregate()
}

// RunWithContextCancel runs fn which doesn't accept a context. When ctx
// is done first, onCancel must make fn return, e.g. by closing the
// stream fn reads from, and ctx.Err() is returned.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	if onCancel != nil {
		onCancel()
	}
	<-done
	return ctx.Err()
}

// RunWithContextCloser runs fn and closes closer exactly once, either
// on cancel or after fn returns.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var once sync.Once
	closeIt := func() { once.Do(func() { closer.Close() }) }
	defer closeIt()
	return RunWithContextCancel(ctx, closeIt, fn)
}
