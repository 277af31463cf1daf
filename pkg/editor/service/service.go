// Package service serves editor commands on the keyboard: the keymap
// accessor, the layer state and the keyboard status.
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/msgs"
	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/keymap"
	"github.com/robotalks/roba/pkg/status"
)

// Service handles editor commands and sends change events.
type Service struct {
	Keymap *keymap.Keymap
	// Store persists accepted writes, optional.
	Store *keymap.Store
	// Layers provides the layer state, optional.
	Layers *keymap.SnapshotPublisher
	// Status provides the keyboard status, optional.
	Status *status.Tracker
	// Reload reloads the keymap from its source after KeymapReset.
	Reload func(context.Context) error
	// Registrar receives change events, optional.
	Registrar editor.Registrar

	changesLock sync.Mutex
	changes     []keymap.Change
	lastLayers  []int
}

// New creates a Service and starts watching the keymap for changes.
func New(km *keymap.Keymap) *Service {
	s := &Service{Keymap: km}
	km.Watch(s.keymapChanged)
	return s
}

// AddToLoop implements LoopAdder.
func (s *Service) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvPostProc, s)
}

// Control implements Task.
func (s *Service) Control(c fx.Cycle) error {
	ctx := c.Context()
	var events []fx.Message
	c.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		switch msg := mc.CurrentMessage().(type) {
		case *editor.CommandMsg:
			reply := s.Handle(ctx, msg.Command.Msg())
			if reply == nil {
				return
			}
			mc.MessageTaken()
			if err := msg.Command.Done(reply); err != nil {
				glog.Warningf("editor reply: %v", err)
			}
		case *status.Changed:
			events = append(events, statusChanged(msg.Status))
		}
	}))
	if s.Registrar == nil {
		return nil
	}
	events = append(events, s.takeKeymapEvents()...)
	if ev := s.layerEvent(); ev != nil {
		events = append(events, ev)
	}
	var errs fx.AggregatedError
	for _, ev := range events {
		errs.Add(s.Registrar.SendEvent(ctx, ev))
	}
	if err := errs.Aggregate(); err != nil {
		glog.V(2).Infof("editor events: %v", err)
	}
	return nil
}

// Handle executes a command and returns the reply, or nil if the
// command isn't for the Service.
func (s *Service) Handle(ctx context.Context, cmd fx.Message) fx.Message {
	switch m := cmd.(type) {
	case *msgs.KeymapInfoQuery:
		return s.info()
	case *msgs.KeymapGet:
		action, err := s.Keymap.Get(int(m.Layer), int(m.Row), int(m.Col))
		if err != nil {
			return msgs.NewCommandErr(err)
		}
		return &msgs.KeymapEntry{Layer: m.Layer, Row: m.Row, Col: m.Col, Action: action.String()}
	case *msgs.KeymapSet:
		action, err := parseAction(m.Action)
		if err != nil {
			return msgs.NewCommandErr(err)
		}
		if err = s.Keymap.Set(int(m.Layer), int(m.Row), int(m.Col), action); err != nil {
			return msgs.NewCommandErr(err)
		}
		return s.persist(ctx, keymap.Change{Layer: int(m.Layer), Row: int(m.Row), Col: int(m.Col), Encoder: -1, Action: action})
	case *msgs.EncoderGet:
		actions, err := s.Keymap.Encoder(int(m.Layer), int(m.Index))
		if err != nil {
			return msgs.NewCommandErr(err)
		}
		return &msgs.EncoderEntry{
			Layer:            m.Layer,
			Index:            m.Index,
			Clockwise:        actions.Clockwise.String(),
			CounterClockwise: actions.CounterClockwise.String(),
		}
	case *msgs.EncoderSet:
		var actions keymap.EncoderActions
		var err error
		if actions.Clockwise, err = parseAction(m.Clockwise); err != nil {
			return msgs.NewCommandErr(err)
		}
		if actions.CounterClockwise, err = parseAction(m.CounterClockwise); err != nil {
			return msgs.NewCommandErr(err)
		}
		if err = s.Keymap.SetEncoder(int(m.Layer), int(m.Index), actions); err != nil {
			return msgs.NewCommandErr(err)
		}
		return s.persist(ctx, keymap.Change{Layer: int(m.Layer), Row: -1, Col: -1, Encoder: int(m.Index), Encoders: actions})
	case *msgs.KeymapReset:
		return s.reset(ctx)
	case *msgs.LayerStateQuery:
		if s.Layers == nil {
			return msgs.NewCommandErr(msgs.ErrUnsupportedCommand)
		}
		snapshot := s.Layers.Snapshot()
		return &msgs.LayerState{Active: layerIDs(snapshot.Active), Cycle: snapshot.Seq}
	case *msgs.StatusQuery:
		if s.Status == nil {
			return msgs.NewCommandErr(msgs.ErrUnsupportedCommand)
		}
		st := s.Status.Status()
		if st == nil {
			st = &status.Status{Role: s.Status.Role}
		}
		return statusReply(st)
	}
	return nil
}

func parseAction(text string) (keymap.Action, error) {
	action, err := keymap.ParseAction(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", msgs.ErrInvalidAction, err)
	}
	return action, nil
}

func (s *Service) info() *msgs.KeymapInfo {
	rows, cols := s.Keymap.Size()
	info := &msgs.KeymapInfo{
		Layers:   uint32(s.Keymap.Layers()),
		Rows:     uint32(rows),
		Cols:     uint32(cols),
		Encoders: uint32(s.Keymap.Encoders()),
		Revision: s.Keymap.Revision(),
	}
	for layer := 0; layer < s.Keymap.Layers(); layer++ {
		info.LayerNames = append(info.LayerNames, s.Keymap.LayerName(layer))
	}
	return info
}

func (s *Service) persist(ctx context.Context, change keymap.Change) fx.Message {
	if s.Store != nil {
		if err := s.Store.SaveChange(ctx, change); err != nil {
			glog.Errorf("persist keymap change: %v", err)
			return msgs.NewCommandErr(err)
		}
	}
	return msgs.NewCommandOK()
}

func (s *Service) reset(ctx context.Context) fx.Message {
	if s.Store == nil && s.Reload == nil {
		return msgs.NewCommandErr(msgs.ErrUnsupportedCommand)
	}
	if s.Store != nil {
		if err := s.Store.Reset(ctx); err != nil {
			return msgs.NewCommandErr(err)
		}
	}
	if s.Reload != nil {
		if err := s.Reload(ctx); err != nil {
			return msgs.NewCommandErr(err)
		}
	}
	return msgs.NewCommandOK()
}

func (s *Service) keymapChanged(change keymap.Change) {
	s.changesLock.Lock()
	s.changes = append(s.changes, change)
	s.changesLock.Unlock()
}

func (s *Service) takeKeymapEvents() []fx.Message {
	s.changesLock.Lock()
	changes := s.changes
	s.changes = nil
	s.changesLock.Unlock()
	if len(changes) == 0 {
		return nil
	}
	revision := s.Keymap.Revision()
	events := make([]fx.Message, 0, len(changes))
	for _, c := range changes {
		ev := &msgs.KeymapChanged{
			Layer:    uint32(c.Layer),
			Row:      int32(c.Row),
			Col:      int32(c.Col),
			Encoder:  int32(c.Encoder),
			Revision: revision,
		}
		if c.Encoder < 0 {
			ev.Action = c.Action.String()
		} else {
			ev.Action = c.Encoders.Clockwise.String() + "/" + c.Encoders.CounterClockwise.String()
		}
		events = append(events, ev)
	}
	return events
}

func (s *Service) layerEvent() fx.Message {
	if s.Layers == nil {
		return nil
	}
	snapshot := s.Layers.Snapshot()
	if s.lastLayers != nil && slices.Equal(s.lastLayers, snapshot.Active) {
		return nil
	}
	s.lastLayers = snapshot.Active
	return &msgs.LayerStateChanged{Active: layerIDs(snapshot.Active), Cycle: snapshot.Seq}
}

func layerIDs(active []int) []uint32 {
	ids := make([]uint32, len(active))
	for n, layer := range active {
		ids[n] = uint32(layer)
	}
	return ids
}

func statusReply(st *status.Status) *msgs.StatusReply {
	return &msgs.StatusReply{
		Role:     st.Role,
		Cycle:    st.Seq,
		Flags:    st.FlagNames(),
		Layers:   layerIDs(st.Layers),
		Counters: st.Counters,
	}
}

func statusChanged(st *status.Status) *msgs.StatusChanged {
	r := statusReply(st)
	return &msgs.StatusChanged{
		Role:     r.Role,
		Cycle:    r.Cycle,
		Flags:    r.Flags,
		Layers:   r.Layers,
		Counters: r.Counters,
	}
}
