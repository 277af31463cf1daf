package joystick

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/input"
)

type fakeButtonEvent struct {
	index   int
	pressed bool
}

func (e *fakeButtonEvent) IsInit() bool  { return false }
func (e *fakeButtonEvent) Index() int    { return e.index }
func (e *fakeButtonEvent) Pressed() bool { return e.pressed }

type fakeAxisEvent struct {
	index, value int
}

func (e *fakeAxisEvent) IsInit() bool { return false }
func (e *fakeAxisEvent) Index() int   { return e.index }
func (e *fakeAxisEvent) Value() int   { return e.value }

func button(index int, pressed bool) Event {
	return &fakeButtonEvent{index: index, pressed: pressed}
}

func axis(index, value int) Event {
	return &fakeAxisEvent{index: index, value: value}
}

func newSource() *Source {
	return &Source{
		Mapping: DefaultMapping(),
		Keys:    input.NewStateMatrix(4, 6),
		Motion:  &input.MotionAccumulator{},
		Steps:   &input.StepCounter{},
	}
}

func TestButtonsMapToMatrix(t *testing.T) {
	s := newSource()
	levels := make([]bool, 24)

	s.Apply(button(7, true))
	require.NoError(t, s.Keys.Scan(levels))
	assert.True(t, levels[7])

	s.Apply(button(7, false))
	s.Apply(button(99, true))
	require.NoError(t, s.Keys.Scan(levels))
	assert.NotContains(t, levels, true)
}

func TestAxesMovePointer(t *testing.T) {
	s := newSource()
	s.Apply(axis(0, 8192))
	s.Apply(axis(1, -4096))
	s.Tick()
	s.Tick()
	dx, dy, err := s.Motion.ReadMotion()
	require.NoError(t, err)
	assert.Equal(t, 4, dx)
	assert.Equal(t, -2, dy)

	s.Apply(axis(0, 100))
	s.Apply(axis(1, 0))
	s.Tick()
	dx, dy, _ = s.Motion.ReadMotion()
	assert.Zero(t, dx)
	assert.Zero(t, dy)
}

func TestEncoderAxisTurnsOncePerPush(t *testing.T) {
	s := newSource()
	s.Apply(axis(3, 20000))
	s.Apply(axis(3, 30000))
	steps, _ := s.Steps.ReadSteps()
	assert.Equal(t, input.DefaultResolution, steps)

	s.Apply(axis(3, 0))
	s.Apply(axis(3, -20000))
	steps, _ = s.Steps.ReadSteps()
	assert.Equal(t, -input.DefaultResolution, steps)
}

type fakeDevice struct {
	events chan Event
}

func (d *fakeDevice) Close() error {
	defer func() { recover() }()
	close(d.events)
	return nil
}

func (d *fakeDevice) Name() string     { return "fake" }
func (d *fakeDevice) AxisCount() int   { return 4 }
func (d *fakeDevice) ButtonCount() int { return 12 }

func (d *fakeDevice) ReadEvent() (Event, error) {
	ev, ok := <-d.events
	if !ok {
		return nil, io.EOF
	}
	return ev, nil
}

func TestRunPostsEvents(t *testing.T) {
	dev := &fakeDevice{events: make(chan Event, 4)}
	s := newSource()
	s.Device = dev
	loop := fx.NewLoop()
	loop.Add(s)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- s.Run(loop.Context(ctx)) }()

	dev.events <- button(2, true)
	levels := make([]bool, 24)
	require.Eventually(t, func() bool {
		loop.RunCycle(ctx)
		s.Keys.Scan(levels)
		return levels[2]
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Run didn't stop")
	}
}
