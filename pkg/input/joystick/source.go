package joystick

import (
	"context"

	"github.com/golang/glog"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/input"
)

// Default mapping parameters.
const (
	DefaultAxisScale        = 4096
	DefaultEncoderThreshold = 16384
)

// Mapping maps joystick controls to keyboard hardware. Buttons are
// matrix positions in row major order, the first two axes move the
// pointer and EncoderAxis turns the encoder when pushed past the
// threshold.
type Mapping struct {
	// AxisScale divides axis values into motion per cycle.
	AxisScale int
	// EncoderAxis is the axis index turning the encoder, negative to disable.
	EncoderAxis      int
	EncoderThreshold int
	// StepsPerTurn is fed to the encoder for one push, usually the resolution.
	StepsPerTurn int
}

// DefaultMapping uses the right stick X axis as the encoder.
func DefaultMapping() Mapping {
	return Mapping{
		AxisScale:        DefaultAxisScale,
		EncoderAxis:      3,
		EncoderThreshold: DefaultEncoderThreshold,
		StepsPerTurn:     input.DefaultResolution,
	}
}

// Source feeds joystick events into simulated hardware.
type Source struct {
	Device  Device
	Mapping Mapping
	Keys    *input.StateMatrix
	Motion  *input.MotionAccumulator
	Steps   *input.StepCounter

	axes       [2]int
	encoderPos int
}

// Name implements Named.
func (s *Source) Name() string {
	return "joystick " + s.Device.Name()
}

// Apply applies one event.
func (s *Source) Apply(ev Event) {
	switch e := ev.(type) {
	case ButtonEvent:
		if s.Keys == nil {
			return
		}
		rows, cols := s.Keys.Size()
		if index := e.Index(); index < rows*cols {
			s.Keys.Set(index/cols, index%cols, e.Pressed())
		}
	case AxisEvent:
		s.applyAxis(e.Index(), e.Value())
	}
}

func (s *Source) applyAxis(index, value int) {
	if index == s.Mapping.EncoderAxis {
		pos := 0
		switch {
		case value >= s.Mapping.EncoderThreshold:
			pos = 1
		case value <= -s.Mapping.EncoderThreshold:
			pos = -1
		}
		if pos != 0 && pos != s.encoderPos && s.Steps != nil {
			s.Steps.Add(pos * s.Mapping.StepsPerTurn)
		}
		s.encoderPos = pos
		return
	}
	if index < len(s.axes) {
		s.axes[index] = value
	}
}

// Tick moves the pointer by the current deflection of the stick.
func (s *Source) Tick() {
	scale := s.Mapping.AxisScale
	if scale <= 0 || s.Motion == nil {
		return
	}
	if dx, dy := s.axes[0]/scale, s.axes[1]/scale; dx != 0 || dy != 0 {
		s.Motion.Move(dx, dy)
	}
}

// Message carries a joystick event into the loop.
type Message struct {
	Event Event
}

// NewMessage implements Message.
func (m *Message) NewMessage() fx.Message { return &Message{} }

// Control implements Task.
func (s *Source) Control(c fx.Cycle) error {
	c.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		if msg, ok := mc.CurrentMessage().(*Message); ok {
			mc.MessageTaken()
			s.Apply(msg.Event)
		}
	}))
	s.Tick()
	return nil
}

// AddToLoop implements LoopAdder. It runs before the scan so the
// aggregator sees the new state in the same cycle.
func (s *Source) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvScan-1, s)
}

// Run implements Runnable, reading events until the device fails.
func (s *Source) Run(ctx context.Context) error {
	ctl := fx.LoopCtlFrom(ctx)
	return fx.RunWithContextCloser(ctx, s.Device, func() error {
		for {
			ev, err := s.Device.ReadEvent()
			if err != nil {
				return err
			}
			if glog.V(4) {
				glog.Infof("joystick %T %d", ev, ev.Index())
			}
			ctl.PostMessage(&Message{Event: ev})
			ctl.TriggerNext()
		}
	})
}
