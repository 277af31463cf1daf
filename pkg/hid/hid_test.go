package hid

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/keycode"
	"github.com/robotalks/roba/pkg/keymap"
)

var t0 = time.Unix(2000, 0)

func kbd(mods byte, keys ...byte) Report {
	data := make([]byte, 8)
	data[0] = mods
	copy(data[2:], keys)
	return Report{ID: ReportKeyboard, Data: data}
}

func TestKeyboardReport(t *testing.T) {
	var s KeyboardState
	s.Press(keycode.A)
	s.Press(keycode.LShift)
	s.Press(keycode.A)
	assert.Equal(t, []byte{0x02, 0, 0x04, 0, 0, 0, 0, 0}, s.Report())
	for c := keycode.B; c <= keycode.G; c++ {
		s.Press(c)
	}
	assert.Equal(t, []byte{0x02, 0, 1, 1, 1, 1, 1, 1}, s.Report())
	for c := keycode.A; c <= keycode.G; c++ {
		s.Release(c)
	}
	s.Release(keycode.LShift)
	assert.Equal(t, make([]byte, 8), s.Report())

	s.Press(keycode.KbVolumeUp)
	assert.Equal(t, []byte{0, 0, 0x80, 0, 0, 0, 0, 0}, s.Report())
	s.Release(keycode.KbVolumeUp)
}

func TestMouseReportSplitsMotion(t *testing.T) {
	var s MouseState
	s.Press(keycode.MouseBtn2)
	s.Move(200, -3)
	assert.Equal(t, []byte{0x02, 127, 0xfd, 0}, s.Report())
	require.True(t, s.HasMotion())
	assert.Equal(t, []byte{0x02, 73, 0, 0}, s.Report())
	assert.False(t, s.HasMotion())
}

func TestSinkBatching(t *testing.T) {
	rec := &RecorderTransport{}
	s := NewSink(rec)

	s.HandleCode(keycode.A, true)
	s.HandleCode(keycode.B, true)
	s.Flush()
	s.Send(t0)
	assert.Equal(t, []Report{kbd(0, 0x04, 0x05)}, rec.Reports())

	s.HandleCode(keycode.A, false)
	s.HandleCode(keycode.B, false)
	s.Flush()
	s.Send(t0)
	assert.Equal(t, []Report{kbd(0)}, rec.Reports())

	// the same code twice in a cycle splits the batch
	g := byte(keycode.G.Usage())
	for _, pressed := range []bool{true, false, true, false} {
		s.HandleCode(keycode.G, pressed)
	}
	s.Flush()
	s.Send(t0)
	assert.Equal(t, []Report{kbd(0, g), kbd(0), kbd(0, g), kbd(0)}, rec.Reports())
	assert.Equal(t, uint64(6), s.Stats().Sent)
}

func TestSinkConsumerMouseAndSystem(t *testing.T) {
	rec := &RecorderTransport{}
	var system []keycode.Code
	s := NewSink(rec)
	s.System = SystemHandlerFunc(func(c keycode.Code) { system = append(system, c) })

	s.HandleCode(keycode.VolUp, true)
	s.HandleCode(keycode.Bootloader, true)
	s.HandleMotion(0, 0)
	s.HandleMotion(5, 6)
	s.Flush()
	s.HandleCode(keycode.VolUp, false)
	s.HandleCode(keycode.Bootloader, false)
	s.Flush()
	s.Send(t0)
	assert.Equal(t, []Report{
		{ID: ReportConsumer, Data: []byte{0xe9, 0x00}},
		{ID: ReportMouse, Data: []byte{0, 5, 6, 0}},
		{ID: ReportConsumer, Data: []byte{0, 0}},
	}, rec.Reports())
	assert.Equal(t, []keycode.Code{keycode.Bootloader}, system)
}

func TestSinkRetry(t *testing.T) {
	rec := &RecorderTransport{}
	rec.SetReady(false)
	s := NewSink(rec)
	s.BackOff = &backoff.ConstantBackOff{Interval: 10 * time.Millisecond}
	s.MaxRetries = 3

	s.HandleCode(keycode.A, true)
	s.Flush()
	s.Send(t0)
	assert.Equal(t, 1, s.Pending())
	rec.SetReady(true)
	s.Send(t0.Add(5 * time.Millisecond))
	assert.Empty(t, rec.Reports())
	s.Send(t0.Add(10 * time.Millisecond))
	assert.Equal(t, []Report{kbd(0, 0x04)}, rec.Reports())
	assert.Equal(t, Stats{Sent: 1, Retries: 1}, s.Stats())
}

func TestSinkRetryExhausted(t *testing.T) {
	rec := &RecorderTransport{}
	rec.SetReady(false)
	s := NewSink(rec)
	s.BackOff = &backoff.ConstantBackOff{Interval: 10 * time.Millisecond}
	s.MaxRetries = 2

	s.HandleCode(keycode.A, true)
	s.Flush()
	for n := 0; n < 3; n++ {
		s.Send(t0.Add(time.Duration(n) * 10 * time.Millisecond))
	}
	assert.Zero(t, s.Pending())
	assert.Equal(t, Stats{Retries: 2, Dropped: 1}, s.Stats())

	// the next report is tried without waiting
	rec.SetReady(true)
	s.HandleCode(keycode.A, false)
	s.Flush()
	s.Send(t0.Add(21 * time.Millisecond))
	assert.Equal(t, []Report{kbd(0)}, rec.Reports())
}

func TestSinkQueueOverflow(t *testing.T) {
	rec := &RecorderTransport{}
	rec.SetReady(false)
	s := NewSink(rec)
	s.QueueSize = 2
	for _, code := range []keycode.Code{keycode.A, keycode.B, keycode.C} {
		s.HandleCode(code, true)
		s.Flush()
	}
	assert.Equal(t, 2, s.Pending())
	assert.Equal(t, uint64(1), s.Stats().Overflow)
	rec.SetReady(true)
	s.BackOff.Reset()
	s.Send(t0.Add(time.Second))
	assert.Equal(t, []Report{kbd(0, 0x04, 0x05), kbd(0, 0x04, 0x05, 0x06)}, rec.Reports())
}

func TestSinkInLoop(t *testing.T) {
	rec := &RecorderTransport{}
	l := fx.NewLoop()
	l.Clock = fx.ClockFunc(func() time.Time { return t0 })
	l.Add(NewSink(rec))
	l.PostMessage(&keymap.CodeEvent{Code: keycode.LCtrl, Pressed: true, Time: t0})
	l.PostMessage(&keymap.CodeEvent{Code: keycode.C, Pressed: true, Time: t0})
	l.PostMessage(&keymap.MotionEvent{DX: -1, DY: 1, Time: t0})
	l.RunCycle(context.Background())
	assert.Equal(t, []Report{
		kbd(0x01, 0x06),
		{ID: ReportMouse, Data: []byte{0, 0xff, 1, 0}},
	}, rec.Reports())
	l.RunCycle(context.Background())
	assert.Empty(t, rec.Reports())
}

func TestWriterTransport(t *testing.T) {
	var buf bytes.Buffer
	tr := &WriterTransport{Writer: &buf, WithID: true}
	require.NoError(t, tr.SendReport(Report{ID: ReportConsumer, Data: []byte{0xe9, 0}}))
	assert.Equal(t, []byte{2, 0xe9, 0}, buf.Bytes())
	require.ErrorIs(t, (&WriterTransport{}).SendReport(Report{}), ErrNotReady)
}
