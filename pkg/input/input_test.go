package input

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1700000000, 0)

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

func TestDebounceSuppressesBounce(t *testing.T) {
	d := NewDebouncer(1, 1, 5*time.Millisecond)
	var got []int
	scan := func(at int, level bool) {
		d.Update(ms(at), []bool{level}, func(row, col int, pressed bool) {
			require.Equal(t, 0, row)
			require.Equal(t, 0, col)
			got = append(got, at)
		})
	}
	// bounce: flips back within the window.
	scan(0, true)
	scan(1, false)
	scan(2, true)
	scan(3, false)
	scan(10, false)
	require.Empty(t, got)
	require.False(t, d.Pressed(0, 0))

	// settles pressed at 20, accepted at 25.
	for at := 20; at <= 30; at++ {
		scan(at, true)
	}
	require.Equal(t, []int{25}, got)
	require.True(t, d.Pressed(0, 0))
	require.False(t, d.Pressed(5, 5))
}

func TestDebounceProperty(t *testing.T) {
	const window = 5
	rnd := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		d := NewDebouncer(1, 2, window*time.Millisecond)
		var accepted [2][]int
		raw := [2]bool{}
		rawSince := [2]int{}
		for at := 0; at < 500; at++ {
			for k := range raw {
				if rnd.Intn(4) == 0 {
					raw[k] = !raw[k]
					rawSince[k] = at
				}
			}
			d.Update(ms(at), raw[:], func(row, col int, pressed bool) {
				accepted[col] = append(accepted[col], at)
				// only accepted once stable for the whole window.
				require.GreaterOrEqual(t, at-rawSince[col], window)
				require.Equal(t, raw[col], pressed)
			})
		}
		for _, times := range accepted {
			for i := 1; i < len(times); i++ {
				require.Greater(t, times[i]-times[i-1], window)
			}
		}
	}
}

func TestAggregatorMatrix(t *testing.T) {
	m := NewStateMatrix(2, 3)
	a := NewAggregator(m, 0)
	m.Set(1, 2, true)
	m.Set(0, 1, true)
	m.Set(9, 9, true)
	events, err := a.Poll(ms(0))
	require.NoError(t, err)
	require.Equal(t, []Event{
		&KeyEvent{Row: 0, Col: 1, Pressed: true, Time: ms(0)},
		&KeyEvent{Row: 1, Col: 2, Pressed: true, Time: ms(0)},
	}, events)

	m.Set(0, 1, false)
	events, err = a.Poll(ms(1))
	require.NoError(t, err)
	require.Equal(t, []Event{&KeyEvent{Row: 0, Col: 1, Time: ms(1)}}, events)
}

func TestAggregatorEncoder(t *testing.T) {
	var enc StepCounter
	a := NewAggregator(nil, 0)
	a.Encoders = []EncoderReader{&enc}

	enc.Add(3)
	events, err := a.Poll(ms(0))
	require.NoError(t, err)
	require.Empty(t, events)

	enc.Add(6)
	events, err = a.Poll(ms(1))
	require.NoError(t, err)
	require.Equal(t, []Event{
		&EncoderEvent{Direction: Clockwise, Time: ms(1)},
		&EncoderEvent{Direction: Clockwise, Time: ms(1)},
	}, events)

	// one step left over, needs 5 back for one ccw detent.
	enc.Add(-5)
	events, err = a.Poll(ms(2))
	require.NoError(t, err)
	require.Equal(t, []Event{&EncoderEvent{Direction: CounterClockwise, Time: ms(2)}}, events)
}

func TestAggregatorPointer(t *testing.T) {
	var sensor MotionAccumulator
	a := NewAggregator(nil, 0)
	a.Pointer = &sensor

	events, err := a.Poll(ms(0))
	require.NoError(t, err)
	require.Empty(t, events, "zero motion produces no event")

	sensor.Move(3, -1)
	sensor.Move(2, 4)
	a.Push(&PointerEvent{DX: 1, DY: 1, Time: ms(1)})
	events, err = a.Poll(ms(1))
	require.NoError(t, err)
	require.Equal(t, []Event{&PointerEvent{DX: 6, DY: 4, Time: ms(1)}}, events)
}

func TestAggregatorOrdering(t *testing.T) {
	m := NewStateMatrix(1, 2)
	a := NewAggregator(m, 0)

	m.Set(0, 0, true)
	events, err := a.Poll(ms(10))
	require.NoError(t, err)
	require.Len(t, events, 1)

	// pushed events are stable sorted by time and never go back in time.
	late := &KeyEvent{Row: 5, Col: 0, Pressed: true, Time: ms(12)}
	stale := &KeyEvent{Row: 5, Col: 1, Pressed: true, Time: ms(3)}
	a.Push(late, stale)
	m.Set(0, 1, true)
	events, err = a.Poll(ms(11))
	require.NoError(t, err)
	require.Equal(t, []Event{
		&KeyEvent{Row: 5, Col: 1, Pressed: true, Time: ms(10)},
		&KeyEvent{Row: 0, Col: 1, Pressed: true, Time: ms(11)},
		&KeyEvent{Row: 5, Col: 0, Pressed: true, Time: ms(12)},
	}, events)
	assert.Equal(t, ms(3), stale.Time, "pushed event itself is not modified")

	events, err = a.Poll(ms(11))
	require.NoError(t, err)
	require.Empty(t, events)
}

type failingMatrix struct{}

func (failingMatrix) Size() (int, int)  { return 1, 1 }
func (failingMatrix) Scan([]bool) error { return errors.New("bus") }

func TestAggregatorScanError(t *testing.T) {
	a := NewAggregator(failingMatrix{}, 0)
	a.Push(&EncoderEvent{Index: 1, Direction: Clockwise, Time: ms(0)})
	events, err := a.Poll(ms(0))
	require.Error(t, err)
	require.Len(t, events, 1, "other sources are still served")
}
