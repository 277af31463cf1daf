package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/roba/pkg/editor"
	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/keymap"
	"github.com/robotalks/roba/pkg/status"
)

type published struct {
	topic   string
	payload []byte
	retain  bool
}

type fakePublisher struct {
	items []published
}

func (p *fakePublisher) PubJSON(topic string, v interface{}, retain bool) (paho.Token, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	p.items = append(p.items, published{topic: topic, payload: data, retain: retain})
	return nil, nil
}

func (p *fakePublisher) topics() []string {
	var topics []string
	for _, item := range p.items {
		topics = append(topics, item.topic)
	}
	return topics
}

func TestMonitorPublishes(t *testing.T) {
	t0 := time.Unix(100, 0)
	now := t0
	pub := &fakePublisher{}
	var layers keymap.SnapshotPublisher
	offline := true
	tracker := status.NewTracker("central", status.SourceFunc(func(s *status.Status) {
		s.Set(status.PeripheralOffline, offline)
	}))
	tracker.Interval = time.Millisecond

	mon := New(editor.KeyboardRef{Type: "roba", ID: "kb1"}, pub)
	mon.Layers = &layers

	loop := fx.NewLoop()
	loop.Clock = fx.ClockFunc(func() time.Time { return now })
	loop.Add(tracker, mon)

	ctx := context.Background()
	loop.RunCycle(ctx)
	assert.Equal(t, []string{"roba/kb1/status", "roba/kb1/layers"}, pub.topics())
	var report StatusReport
	require.NoError(t, json.Unmarshal(pub.items[0].payload, &report))
	assert.Equal(t, []string{"peripheral-offline"}, report.Flags)
	assert.True(t, pub.items[0].retain)

	// nothing changed
	now = now.Add(50 * time.Millisecond)
	loop.RunCycle(ctx)
	assert.Len(t, pub.items, 2)

	layers.Publish(&keymap.Snapshot{Active: []int{7, 0}, Seq: 3})
	offline = false
	now = now.Add(50 * time.Millisecond)
	loop.RunCycle(ctx)
	require.Len(t, pub.items, 4)
	require.NoError(t, json.Unmarshal(pub.items[2].payload, &report))
	assert.Equal(t, []string{}, report.Flags)
	var layerReport LayerReport
	require.NoError(t, json.Unmarshal(pub.items[3].payload, &layerReport))
	assert.Equal(t, []int{7, 0}, layerReport.Active)
	assert.Equal(t, 7, layerReport.Top)
}

func TestMonitorLimitsLayerRate(t *testing.T) {
	now := time.Unix(100, 0)
	pub := &fakePublisher{}
	var layers keymap.SnapshotPublisher
	mon := New(editor.KeyboardRef{Type: "roba", ID: "kb1"}, pub)
	mon.Layers = &layers

	loop := fx.NewLoop()
	loop.Clock = fx.ClockFunc(func() time.Time { return now })
	loop.Add(mon)
	ctx := context.Background()

	loop.RunCycle(ctx)
	require.Len(t, pub.items, 1)
	layers.Publish(&keymap.Snapshot{Active: []int{1, 0}})
	now = now.Add(time.Millisecond)
	loop.RunCycle(ctx)
	assert.Len(t, pub.items, 1)
	now = now.Add(DefaultMinInterval)
	loop.RunCycle(ctx)
	assert.Len(t, pub.items, 2)
}
