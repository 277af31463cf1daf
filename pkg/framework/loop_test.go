package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMsg struct {
	val int
}

func (m *testMsg) NewMessage() Message { return &testMsg{} }

func collect(c Cycle, take bool) (vals []int) {
	c.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
		if m, ok := mc.CurrentMessage().(*testMsg); ok {
			vals = append(vals, m.val)
			if take {
				mc.MessageTaken()
			}
		}
	}))
	return
}

func TestLoopPriorityOrder(t *testing.T) {
	var order []int
	l := NewLoop()
	for _, lv := range []int{PrLvPostProc, PrLvOutput, PrLvScan, PrLvResolve, PrLvLink} {
		lv := lv
		l.AddTask(lv, TaskFunc(func(c Cycle) error {
			require.Equal(t, lv, c.PriorityLevel())
			order = append(order, lv)
			return nil
		}))
	}
	l.RunCycle(context.Background())
	require.Equal(t, []int{PrLvScan, PrLvLink, PrLvResolve, PrLvOutput, PrLvPostProc}, order)
}

func TestLoopMessages(t *testing.T) {
	var seen [][]int
	l := NewLoop()
	l.AddTask(PrLvScan, TaskFunc(func(c Cycle) error {
		c.Messages().AddMessages(&testMsg{val: 100 + int(c.Seq())})
		return nil
	}))
	l.AddTask(PrLvResolve, TaskFunc(func(c Cycle) error {
		seen = append(seen, collect(c, false))
		return nil
	}))
	l.AddTask(PrLvOutput, TaskFunc(func(c Cycle) error {
		// only takes even values.
		c.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			if m := mc.CurrentMessage().(*testMsg); m.val%2 == 0 {
				mc.MessageTaken()
			}
		}))
		return nil
	}))
	l.AddTask(PrLvPostProc, TaskFunc(func(c Cycle) error {
		seen = append(seen, collect(c, true))
		return nil
	}))

	l.PostMessage(&testMsg{val: 1})
	l.PostMessage(&testMsg{val: 2})
	l.RunCycle(context.Background())
	l.RunCycle(context.Background())

	require.Equal(t, [][]int{
		{1, 2, 101},
		{1, 101},
		// untaken messages do not survive a cycle.
		{102},
		{},
	}, normalize(seen))
}

func normalize(vals [][]int) [][]int {
	for n, v := range vals {
		if v == nil {
			vals[n] = []int{}
		}
	}
	return vals
}

func TestStopProcessing(t *testing.T) {
	l := NewLoop()
	var first, all []int
	l.AddTask(PrLvNormal, TaskFunc(func(c Cycle) error {
		c.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			first = append(first, mc.CurrentMessage().(*testMsg).val)
			mc.MessageTaken()
			mc.StopProcessing()
		}))
		all = collect(c, false)
		return nil
	}))
	for i := 1; i <= 3; i++ {
		l.PostMessage(&testMsg{val: i})
	}
	l.RunCycle(context.Background())
	require.Equal(t, []int{1}, first)
	require.Equal(t, []int{2, 3}, all)
}

func TestPostRunHooks(t *testing.T) {
	l := NewLoop()
	var calls []string
	l.AddTask(PrLvNormal, TaskFunc(func(c Cycle) error {
		calls = append(calls, "task")
		if c.Seq() == 1 {
			c.PostRun(TaskFunc(func(Cycle) error {
				calls = append(calls, "post")
				return nil
			}))
		}
		return nil
	}))
	l.PreRunAt(PrLvNormal, TaskFunc(func(Cycle) error {
		calls = append(calls, "pre")
		return errors.New("logged only")
	}))
	l.RunCycle(context.Background())
	l.RunCycle(context.Background())
	require.Equal(t, []string{"pre", "task", "post", "task"}, calls)
}

func TestCycleClock(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewLoop()
	l.Clock = ClockFunc(func() time.Time { return now })
	var seen time.Time
	l.AddTask(PrLvTop, TaskFunc(func(c Cycle) error {
		seen = c.Time()
		require.Same(t, c, CycleFrom(c.Context()))
		return nil
	}))
	l.RunCycle(context.Background())
	require.Equal(t, now, seen)
}

type postingRunner struct{}

func (r *postingRunner) Run(ctx context.Context) error {
	ctl := LoopCtlFrom(ctx)
	ctl.PostMessage(&testMsg{val: 42})
	ctl.TriggerNext()
	<-ctx.Done()
	return ctx.Err()
}

func TestLoopRun(t *testing.T) {
	l := NewLoop()
	l.Interval = time.Hour
	gotCh := make(chan int, 1)
	l.AddRunnable(&postingRunner{})
	l.AddTask(PrLvNormal, TaskFunc(func(c Cycle) error {
		for _, v := range collect(c, true) {
			select {
			case gotCh <- v:
			default:
			}
		}
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	select {
	case v := <-gotCh:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Aggregate())
	errA, errB := errors.New("a"), errors.New("b")
	errs.Add(nil, errA)
	require.Equal(t, "a", errs.Aggregate().Error())
	errs.Add(errB)
	err := errs.Aggregate()
	assert.Equal(t, "2 errors:\n  a\n  b", err.Error())
	assert.ErrorIs(t, err, errB)
}

type closeRecorder struct {
	closed  int
	onClose func()
}

func (c *closeRecorder) Close() error {
	c.closed++
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	var c closeRecorder
	err := RunWithContextCloser(context.Background(), &c, func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, c.closed)

	ctx, cancel := context.WithCancel(context.Background())
	blockCh := make(chan struct{})
	c2 := closeRecorder{onClose: func() { close(blockCh) }}
	go cancel()
	err = RunWithContextCloser(ctx, &c2, func() error {
		<-blockCh
		return errors.New("closed")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, c2.closed)
}

type failingRunner struct{ err error }

func (r *failingRunner) Name() string { return "failing" }

func (r *failingRunner) Run(context.Context) error { return r.err }

func TestRunnerCollectsErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	errBoom := errors.New("boom")
	runner := NewRunnerWith(ctx).Go(
		&failingRunner{err: errBoom},
		&failingRunner{err: context.Canceled},
		&failingRunner{},
	)
	err := runner.Wait()
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "failing: boom", err.Error())
}
