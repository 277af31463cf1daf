// Package indicator drives the connection LEDs.
package indicator

import (
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/status"
)

// DefaultBlink is how long an LED stays on after a connection change.
const DefaultBlink = 500 * time.Millisecond

// LED is an on/off light. Implementations handle active-low wiring.
type LED interface {
	SetLED(on bool) error
}

// LEDFunc is the func form of LED.
type LEDFunc func(bool) error

// SetLED implements LED.
func (f LEDFunc) SetLED(on bool) error {
	return f(on)
}

// Blinker turns an LED on and off again after a while, without
// blocking the loop.
type Blinker struct {
	LED LED

	on    bool
	until time.Time
}

// Blink turns the LED on until now+d.
func (b *Blinker) Blink(now time.Time, d time.Duration) {
	b.until = now.Add(d)
	b.set(true)
}

// Update turns the LED off once expired.
func (b *Blinker) Update(now time.Time) {
	if b.on && !now.Before(b.until) {
		b.set(false)
	}
}

// Off turns the LED off now.
func (b *Blinker) Off() {
	if b.on {
		b.set(false)
	}
}

// On tells if the LED is on.
func (b *Blinker) On() bool {
	return b.on
}

func (b *Blinker) set(on bool) {
	if b.LED == nil {
		return
	}
	b.on = on
	if err := b.LED.SetLED(on); err != nil {
		glog.Warningf("set LED: %v", err)
	}
}

// Indicator blinks Connected when Flag clears and Disconnected when it
// is raised.
type Indicator struct {
	Name         string
	Flag         status.Flag
	Connected    Blinker
	Disconnected Blinker
	Duration     time.Duration
}

// New creates an Indicator for a disconnect flag.
func New(name string, flag status.Flag, connected, disconnected LED) *Indicator {
	return &Indicator{
		Name:         name,
		Flag:         flag,
		Connected:    Blinker{LED: connected},
		Disconnected: Blinker{LED: disconnected},
		Duration:     DefaultBlink,
	}
}

// Control implements Task.
func (ind *Indicator) Control(c fx.Cycle) error {
	c.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		changed, ok := mc.CurrentMessage().(*status.Changed)
		if !ok {
			return
		}
		// the initial state counts as disconnected
		switch {
		case changed.FlagCleared(ind.Flag):
			glog.Infof("%s connected", ind.Name)
			ind.Disconnected.Off()
			ind.Connected.Blink(c.Time(), ind.Duration)
		case changed.Previous != nil && changed.FlagRaised(ind.Flag):
			glog.Infof("%s disconnected", ind.Name)
			ind.Connected.Off()
			ind.Disconnected.Blink(c.Time(), ind.Duration)
		}
	}))
	ind.Connected.Update(c.Time())
	ind.Disconnected.Update(c.Time())
	return nil
}

// AddToLoop implements LoopAdder.
func (ind *Indicator) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvIdle, ind)
}

// MemoryLED records its state; used by the simulator and tests.
type MemoryLED struct {
	Name string

	on      bool
	changes int
	lock    sync.Mutex
}

// SetLED implements LED.
func (l *MemoryLED) SetLED(on bool) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.on != on {
		l.changes++
		glog.V(2).Infof("LED %s: %v", l.Name, on)
	}
	l.on = on
	return nil
}

// State gets whether it's on and how many times it changed.
func (l *MemoryLED) State() (on bool, changes int) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.on, l.changes
}
