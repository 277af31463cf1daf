// Package monitor publishes the keyboard status and layer state to an
// MQTT broker as retained JSON documents.
package monitor

import (
	"slices"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/editor"
	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/keymap"
	"github.com/robotalks/roba/pkg/status"
)

// Topic suffixes under the keyboard name.
const (
	TopicStatus = "status"
	TopicLayers = "layers"
)

// DefaultMinInterval limits how often layer state is published.
const DefaultMinInterval = 20 * time.Millisecond

// Publisher publishes JSON documents.
type Publisher interface {
	PubJSON(topic string, v interface{}, retain bool) (paho.Token, error)
}

// StatusReport is the published form of a status.
type StatusReport struct {
	Role     string            `json:"role"`
	Cycle    uint64            `json:"cycle"`
	Time     time.Time         `json:"time"`
	Flags    []string          `json:"flags"`
	Layers   []int             `json:"layers,omitempty"`
	Counters map[string]uint64 `json:"counters,omitempty"`
}

// LayerReport is the published form of the layer state.
type LayerReport struct {
	Active []int     `json:"active"`
	Top    int       `json:"top"`
	Cycle  uint64    `json:"cycle"`
	Time   time.Time `json:"time"`
}

// ReportOf converts a status.
func ReportOf(s *status.Status) *StatusReport {
	flags := s.FlagNames()
	if flags == nil {
		flags = []string{}
	}
	return &StatusReport{
		Role:     s.Role,
		Cycle:    s.Seq,
		Time:     s.Time,
		Flags:    flags,
		Layers:   s.Layers,
		Counters: s.Counters,
	}
}

// Monitor is the task publishing reports.
type Monitor struct {
	Ref         editor.KeyboardRef
	Publisher   Publisher
	Layers      *keymap.SnapshotPublisher
	MinInterval time.Duration

	lastLayers  []int
	lastPublish time.Time
	failures    uint64
}

// New creates a Monitor.
func New(ref editor.KeyboardRef, pub Publisher) *Monitor {
	return &Monitor{Ref: ref, Publisher: pub, MinInterval: DefaultMinInterval}
}

// Failures counts publishing errors.
func (m *Monitor) Failures() uint64 {
	return m.failures
}

// AddToLoop implements LoopAdder.
func (m *Monitor) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvPostProc, m)
}

// Control implements Task.
func (m *Monitor) Control(c fx.Cycle) error {
	c.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		if changed, ok := mc.CurrentMessage().(*status.Changed); ok {
			m.publish(TopicStatus, ReportOf(changed.Status))
		}
	}))
	if m.Layers == nil || c.Time().Sub(m.lastPublish) < m.MinInterval {
		return nil
	}
	snapshot := m.Layers.Snapshot()
	if m.lastLayers != nil && slices.Equal(m.lastLayers, snapshot.Active) {
		return nil
	}
	m.lastLayers, m.lastPublish = snapshot.Active, c.Time()
	m.publish(TopicLayers, &LayerReport{
		Active: snapshot.Active,
		Top:    snapshot.Top(),
		Cycle:  snapshot.Seq,
		Time:   c.Time(),
	})
	return nil
}

func (m *Monitor) publish(topic string, v interface{}) {
	// the token isn't waited for, publishing must not block the loop.
	if _, err := m.Publisher.PubJSON(m.Ref.Name()+"/"+topic, v, true); err != nil {
		m.failures++
		glog.Warningf("monitor publish %s: %v", topic, err)
	}
}
