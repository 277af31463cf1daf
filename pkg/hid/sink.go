package hid

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang/glog"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/keycode"
	"github.com/robotalks/roba/pkg/keymap"
)

// Defaults of Sink.
const (
	DefaultQueueSize  = 32
	DefaultMaxRetries = 8
)

var (
	// ErrRetryExhausted indicates a report dropped after too many retries.
	ErrRetryExhausted = errors.New("hid report retries exhausted")
	// ErrQueueOverflow indicates a report dropped because the queue is full.
	ErrQueueOverflow = errors.New("hid report queue overflow")
)

// SystemHandler handles codes of the system page (bootloader, reboot,
// user codes) which never reach the host.
type SystemHandler interface {
	HandleSystem(keycode.Code)
}

// SystemHandlerFunc is the func form of SystemHandler.
type SystemHandlerFunc func(keycode.Code)

// HandleSystem implements SystemHandler.
func (f SystemHandlerFunc) HandleSystem(code keycode.Code) {
	f(code)
}

// Stats are counters of a Sink.
type Stats struct {
	Sent     uint64
	Retries  uint64
	Dropped  uint64
	Overflow uint64
}

// NewBackOff creates the default retry backoff. It never sleeps; the
// sink only uses it to schedule the next attempt.
func NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 8 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.Multiplier = 2
	return b
}

// Sink is the host output task. It folds CodeEvent and MotionEvent
// messages into report state, emits one report per distinct state and
// retries them on the transport across cycles.
type Sink struct {
	Transport  Transport
	System     SystemHandler
	QueueSize  int
	MaxRetries int
	BackOff    backoff.BackOff

	keyboard KeyboardState
	consumer ConsumerState
	mouse    MouseState

	batch         map[keycode.Code]bool
	keyboardDirty bool
	consumerDirty bool
	mouseDirty    bool

	queue       []Report
	attempts    int
	nextAttempt time.Time

	sent, retries, dropped, overflow atomic.Uint64
}

// NewSink creates a Sink.
func NewSink(transport Transport) *Sink {
	return &Sink{
		Transport:  transport,
		QueueSize:  DefaultQueueSize,
		MaxRetries: DefaultMaxRetries,
		BackOff:    NewBackOff(),
		batch:      make(map[keycode.Code]bool),
	}
}

// Stats reads the counters, safe from any goroutine.
func (s *Sink) Stats() Stats {
	return Stats{
		Sent:     s.sent.Load(),
		Retries:  s.retries.Load(),
		Dropped:  s.dropped.Load(),
		Overflow: s.overflow.Load(),
	}
}

// Pending gets the number of queued reports.
func (s *Sink) Pending() int {
	return len(s.queue)
}

// Control implements Task.
func (s *Sink) Control(c fx.Cycle) error {
	c.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		switch ev := mc.CurrentMessage().(type) {
		case *keymap.CodeEvent:
			mc.MessageTaken()
			s.HandleCode(ev.Code, ev.Pressed)
		case *keymap.MotionEvent:
			mc.MessageTaken()
			s.HandleMotion(ev.DX, ev.DY)
		}
	}))
	s.Flush()
	s.Send(c.Time())
	return nil
}

// AddToLoop implements LoopAdder.
func (s *Sink) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvOutput, s)
}

// HandleCode applies a press or release to the pending batch. A code
// changing twice within a batch flushes the batch first, so every
// transition reaches the host.
func (s *Sink) HandleCode(code keycode.Code, pressed bool) {
	if code == keycode.No {
		return
	}
	if code.Page() == keycode.PageSystem {
		if pressed {
			if s.System != nil {
				s.System.HandleSystem(code)
			} else {
				glog.Warningf("system code %s unhandled", code)
			}
		}
		return
	}
	if s.batch[code] {
		s.Flush()
	}
	if s.batch == nil {
		s.batch = make(map[keycode.Code]bool)
	}
	s.batch[code] = true
	switch code.Page() {
	case keycode.PageKeyboard:
		if pressed {
			s.keyboard.Press(code)
		} else {
			s.keyboard.Release(code)
		}
		s.keyboardDirty = true
	case keycode.PageConsumer:
		if pressed {
			s.consumer.Press(code)
		} else {
			s.consumer.Release(code)
		}
		s.consumerDirty = true
	case keycode.PageMouse:
		if pressed {
			s.mouse.Press(code)
		} else {
			s.mouse.Release(code)
		}
		s.mouseDirty = true
	}
}

// HandleMotion accumulates pointer motion into the pending batch.
func (s *Sink) HandleMotion(dx, dy int) {
	s.mouse.Move(dx, dy)
	s.mouseDirty = s.mouseDirty || s.mouse.HasMotion()
}

// Flush queues reports for every state changed in the pending batch.
func (s *Sink) Flush() {
	if s.keyboardDirty {
		s.enqueue(Report{ID: ReportKeyboard, Data: s.keyboard.Report()})
	}
	if s.consumerDirty {
		s.enqueue(Report{ID: ReportConsumer, Data: s.consumer.Report()})
	}
	if s.mouseDirty {
		s.enqueue(Report{ID: ReportMouse, Data: s.mouse.Report()})
		for s.mouse.HasMotion() {
			s.enqueue(Report{ID: ReportMouse, Data: s.mouse.Report()})
		}
	}
	s.keyboardDirty, s.consumerDirty, s.mouseDirty = false, false, false
	clear(s.batch)
}

func (s *Sink) enqueue(r Report) {
	size := s.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	if len(s.queue) >= size {
		glog.Warningf("drop %s: %v", s.queue[0], ErrQueueOverflow)
		s.overflow.Add(1)
		s.queue = s.queue[1:]
		s.resetRetry()
	}
	s.queue = append(s.queue, r)
}

func (s *Sink) backOff() backoff.BackOff {
	if s.BackOff == nil {
		s.BackOff = NewBackOff()
	}
	return s.BackOff
}

func (s *Sink) resetRetry() {
	s.attempts = 0
	s.nextAttempt = time.Time{}
	s.backOff().Reset()
}

// Send delivers queued reports in order until the transport refuses
// one; the refused report is retried at a later cycle.
func (s *Sink) Send(now time.Time) {
	for len(s.queue) > 0 {
		if now.Before(s.nextAttempt) {
			return
		}
		report := s.queue[0]
		err := s.Transport.SendReport(report)
		if err == nil {
			s.queue = s.queue[1:]
			s.sent.Add(1)
			if s.attempts > 0 {
				s.resetRetry()
			}
			glog.V(2).Infof("report %s", report)
			continue
		}
		if !errors.Is(err, ErrNotReady) {
			glog.Warningf("send %s: %v", report, err)
		}
		s.attempts++
		maxRetries := s.MaxRetries
		if maxRetries <= 0 {
			maxRetries = DefaultMaxRetries
		}
		wait := s.backOff().NextBackOff()
		if s.attempts > maxRetries || wait == backoff.Stop {
			glog.Warningf("drop %s: %v: %v", report, ErrRetryExhausted, err)
			s.dropped.Add(1)
			s.queue = s.queue[1:]
			s.resetRetry()
			return
		}
		s.retries.Add(1)
		s.nextAttempt = now.Add(wait)
		return
	}
}
