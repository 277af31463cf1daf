package keymap

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/input"
	"github.com/robotalks/roba/pkg/keycode"
)

// DefaultTappingTerm is the default time a LayerTap key must be held to
// act as a layer hold.
const DefaultTappingTerm = 200 * time.Millisecond

// CodeEvent is a resolved usage press or release.
type CodeEvent struct {
	Code    keycode.Code
	Pressed bool
	Time    time.Time
}

// NewMessage implements Message.
func (e *CodeEvent) NewMessage() fx.Message { return &CodeEvent{} }

// String implements fmt.Stringer.
func (e *CodeEvent) String() string {
	if e.Pressed {
		return fmt.Sprintf("%s down", e.Code)
	}
	return fmt.Sprintf("%s up", e.Code)
}

// MotionEvent is resolved pointer motion.
type MotionEvent struct {
	DX, DY int
	Time   time.Time
}

// NewMessage implements Message.
func (e *MotionEvent) NewMessage() fx.Message { return &MotionEvent{} }

type position struct {
	row, col int
}

type pressedKey struct {
	action     Action
	activation Activation
}

type pendingTap struct {
	pos   position
	tap   LayerTap
	since time.Time
}

// Resolver turns input events into CodeEvent/MotionEvent messages.
// It is the only writer of the layer stack.
type Resolver struct {
	Keymap      *Keymap
	TappingTerm time.Duration

	stack     LayerStack
	pressed   map[position]*pressedKey
	pending   *pendingTap
	snapshots SnapshotPublisher
	dirty     bool
	out       []fx.Message
}

// NewResolver creates a Resolver.
func NewResolver(km *Keymap) *Resolver {
	return &Resolver{
		Keymap:      km,
		TappingTerm: DefaultTappingTerm,
		pressed:     make(map[position]*pressedKey),
		dirty:       true,
	}
}

// Snapshots gives read access to published layer state.
func (r *Resolver) Snapshots() *SnapshotPublisher {
	return &r.snapshots
}

// Stack exposes the layer stack to the owner of the resolver.
func (r *Resolver) Stack() *LayerStack {
	return &r.stack
}

// Control implements Task.
func (r *Resolver) Control(c fx.Cycle) error {
	c.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		if ev, ok := mc.CurrentMessage().(input.Event); ok {
			mc.MessageTaken()
			r.Resolve(ev)
		}
	}))
	r.Tick(c.Time())
	out := r.Flush()
	c.Messages().AddMessages(out...)
	if r.dirty {
		r.dirty = false
		r.snapshots.Publish(&Snapshot{Active: r.stack.Active(), Seq: c.Seq()})
	}
	return nil
}

// AddToLoop implements LoopAdder.
func (r *Resolver) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvResolve, r)
}

// Flush returns resolved messages since last Flush.
func (r *Resolver) Flush() []fx.Message {
	out := r.out
	r.out = nil
	return out
}

func (r *Resolver) emit(code keycode.Code, pressed bool, t time.Time) {
	r.out = append(r.out, &CodeEvent{Code: code, Pressed: pressed, Time: t})
}

func (r *Resolver) tap(codes []keycode.Code, t time.Time) {
	for _, code := range codes {
		r.emit(code, true, t)
		r.emit(code, false, t)
	}
}

// Resolve resolves one input event.
func (r *Resolver) Resolve(ev input.Event) {
	switch e := ev.(type) {
	case *input.KeyEvent:
		r.resolveKey(e)
	case *input.EncoderEvent:
		r.resolveEncoder(e)
	case *input.PointerEvent:
		r.out = append(r.out, &MotionEvent{DX: e.DX, DY: e.DY, Time: e.Time})
	}
}

// Tick promotes a pending LayerTap to a hold once the tapping term passed.
func (r *Resolver) Tick(now time.Time) {
	if r.pending != nil && now.Sub(r.pending.since) >= r.TappingTerm {
		r.holdPending()
	}
}

func (r *Resolver) holdPending() {
	p := r.pending
	r.pending = nil
	if key := r.pressed[p.pos]; key != nil {
		key.activation = r.stack.Push(p.tap.Layer)
		r.dirty = true
	}
}

func (r *Resolver) resolveKey(e *input.KeyEvent) {
	pos := position{row: e.Row, col: e.Col}
	if !e.Pressed {
		r.releaseKey(pos, e.Time)
		return
	}
	if r.pending != nil {
		if r.pending.pos == pos {
			return
		}
		// another key while a LayerTap is undecided: it's a hold.
		r.holdPending()
	}
	if _, exists := r.pressed[pos]; exists {
		return
	}
	action := r.Keymap.Lookup(r.stack.Active(), e.Row, e.Col)
	key := &pressedKey{action: action}
	r.pressed[pos] = key
	switch a := action.(type) {
	case Keycode:
		r.emit(a.Code, true, e.Time)
	case LayerHold:
		key.activation = r.stack.Push(a.Layer)
		r.dirty = true
	case LayerToggle:
		r.stack.Toggle(a.Layer)
		r.dirty = true
	case LayerTap:
		r.pending = &pendingTap{pos: pos, tap: a, since: e.Time}
	case Macro:
		r.tap(a.Sequence, e.Time)
	case NoAction, Transparent:
	default:
		glog.Errorf("unhandled action %T at (%d,%d)", action, e.Row, e.Col)
	}
}

func (r *Resolver) releaseKey(pos position, t time.Time) {
	key := r.pressed[pos]
	if key == nil {
		return
	}
	delete(r.pressed, pos)
	switch a := key.action.(type) {
	case Keycode:
		r.emit(a.Code, false, t)
	case LayerHold:
		r.stack.Pop(key.activation)
		r.dirty = true
	case LayerTap:
		if p := r.pending; p != nil && p.pos == pos {
			r.pending = nil
			if t.Sub(p.since) < r.TappingTerm {
				r.tap([]keycode.Code{a.Code}, t)
				return
			}
		}
		if key.activation != 0 {
			r.stack.Pop(key.activation)
			r.dirty = true
		}
	}
}

func (r *Resolver) resolveEncoder(e *input.EncoderEvent) {
	action := r.Keymap.LookupEncoder(r.stack.Active(), e.Index, e.Direction == input.Clockwise)
	switch a := action.(type) {
	case Keycode:
		r.tap([]keycode.Code{a.Code}, e.Time)
	case Macro:
		r.tap(a.Sequence, e.Time)
	case LayerToggle:
		r.stack.Toggle(a.Layer)
		r.dirty = true
	}
}
