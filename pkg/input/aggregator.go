package input

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/roba/pkg/framework"
)

// DefaultResolution is the number of quadrature steps per detent.
const DefaultResolution = 4

// Aggregator polls local sources once per cycle, merges pushed events
// and emits them in timestamp order as cycle messages.
type Aggregator struct {
	Matrix     Matrix
	Encoders   []EncoderReader
	Pointer    PointerSensor
	Resolution int

	debouncer *Debouncer
	levels    []bool
	steps     []int
	lastTime  time.Time

	inbox     []Event
	inboxLock sync.Mutex
}

// NewAggregator creates an Aggregator. matrix may be nil.
func NewAggregator(matrix Matrix, debounce time.Duration) *Aggregator {
	a := &Aggregator{Matrix: matrix, Resolution: DefaultResolution}
	if matrix != nil {
		rows, cols := matrix.Size()
		a.debouncer = NewDebouncer(rows, cols, debounce)
		a.levels = make([]bool, rows*cols)
	}
	return a
}

// Debouncer exposes the key debouncer (nil without a matrix).
func (a *Aggregator) Debouncer() *Debouncer {
	return a.debouncer
}

// Push injects already debounced events, e.g. from the split link.
// It's safe to call from any goroutine.
func (a *Aggregator) Push(events ...Event) {
	a.inboxLock.Lock()
	a.inbox = append(a.inbox, events...)
	a.inboxLock.Unlock()
}

// Poll scans all sources at now and returns the ordered events.
func (a *Aggregator) Poll(now time.Time) ([]Event, error) {
	a.inboxLock.Lock()
	events := a.inbox
	a.inbox = nil
	a.inboxLock.Unlock()

	var errs fx.AggregatedError
	if a.Matrix != nil {
		if err := a.Matrix.Scan(a.levels); err != nil {
			errs.Add(fmt.Errorf("matrix scan: %w", err))
		} else {
			a.debouncer.Update(now, a.levels, func(row, col int, pressed bool) {
				events = append(events, &KeyEvent{Row: row, Col: col, Pressed: pressed, Time: now})
			})
		}
	}
	if len(a.steps) < len(a.Encoders) {
		a.steps = append(a.steps, make([]int, len(a.Encoders)-len(a.steps))...)
	}
	for n, enc := range a.Encoders {
		steps, err := enc.ReadSteps()
		if err != nil {
			errs.Add(fmt.Errorf("encoder %d: %w", n, err))
			continue
		}
		events = a.appendDetents(events, n, steps, now)
	}
	if a.Pointer != nil {
		if dx, dy, err := a.Pointer.ReadMotion(); err != nil {
			errs.Add(fmt.Errorf("pointer: %w", err))
		} else if dx != 0 || dy != 0 {
			events = append(events, &PointerEvent{DX: dx, DY: dy, Time: now})
		}
	}
	return a.order(events), errs.Aggregate()
}

func (a *Aggregator) appendDetents(events []Event, index, steps int, now time.Time) []Event {
	resolution := a.Resolution
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	a.steps[index] += steps
	for a.steps[index] >= resolution {
		a.steps[index] -= resolution
		events = append(events, &EncoderEvent{Index: index, Direction: Clockwise, Time: now})
	}
	for a.steps[index] <= -resolution {
		a.steps[index] += resolution
		events = append(events, &EncoderEvent{Index: index, Direction: CounterClockwise, Time: now})
	}
	return events
}

// order sorts by time (stable), clamps time to be non-decreasing across
// cycles and merges adjacent pointer motion.
func (a *Aggregator) order(events []Event) []Event {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventTime().Before(events[j].EventTime())
	})
	out := events[:0]
	for _, ev := range events {
		if ev.EventTime().Before(a.lastTime) {
			ev = ev.at(a.lastTime)
		}
		a.lastTime = ev.EventTime()
		if p, ok := ev.(*PointerEvent); ok && len(out) > 0 {
			if prev, ok := out[len(out)-1].(*PointerEvent); ok {
				merged := *prev
				merged.DX += p.DX
				merged.DY += p.DY
				out[len(out)-1] = &merged
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}

// Control implements Task.
func (a *Aggregator) Control(c fx.Cycle) error {
	events, err := a.Poll(c.Time())
	for _, ev := range events {
		glog.V(2).Infof("input %s", ev)
		c.Messages().AddMessages(ev)
	}
	return err
}

// AddToLoop implements LoopAdder.
func (a *Aggregator) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvScan, a)
}
