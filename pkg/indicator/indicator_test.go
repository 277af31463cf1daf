package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/status"
)

func TestIndicatorBlinks(t *testing.T) {
	now := time.Unix(500, 0)
	blue, red := &MemoryLED{Name: "blue"}, &MemoryLED{Name: "red"}
	ind := New("split", status.PeripheralOffline, blue, red)
	l := fx.NewLoop()
	l.Clock = fx.ClockFunc(func() time.Time { return now })
	l.Add(ind)

	prev := &status.Status{Flags: status.PeripheralOffline}
	post := func(flags status.Flag, p *status.Status) *status.Status {
		s := &status.Status{Flags: flags}
		l.PostMessage(&status.Changed{Status: s, Previous: p})
		return s
	}
	step := func(d time.Duration) {
		now = now.Add(d)
		l.RunCycle(context.Background())
	}

	// initially offline: nothing happens
	post(status.PeripheralOffline, nil)
	step(0)
	on, changes := red.State()
	assert.False(t, on)
	assert.Zero(t, changes)

	prev = post(0, prev)
	step(time.Millisecond)
	on, _ = blue.State()
	assert.True(t, on)
	step(499 * time.Millisecond)
	on, _ = blue.State()
	assert.True(t, on)
	step(time.Millisecond)
	on, changes = blue.State()
	assert.False(t, on)
	assert.Equal(t, 2, changes)

	post(status.PeripheralOffline|status.HostNotReady, prev)
	step(time.Millisecond)
	on, _ = red.State()
	assert.True(t, on)
	step(DefaultBlink)
	on, _ = red.State()
	assert.False(t, on)
}

func TestIndicatorInitiallyConnected(t *testing.T) {
	now := time.Unix(500, 0)
	blue := &MemoryLED{}
	ind := New("host", status.HostNotReady, blue, nil)
	l := fx.NewLoop()
	l.Clock = fx.ClockFunc(func() time.Time { return now })
	l.Add(ind)
	l.PostMessage(&status.Changed{Status: &status.Status{}})
	l.RunCycle(context.Background())
	on, _ := blue.State()
	assert.True(t, on)
	assert.False(t, ind.Disconnected.On())
}
