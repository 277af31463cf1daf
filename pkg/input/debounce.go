package input

import "time"

// DefaultDebounce is the default debounce window.
const DefaultDebounce = 5 * time.Millisecond

type keyState struct {
	stable   bool
	raw      bool
	rawSince time.Time
}

// Debouncer accepts a raw transition only after the raw level has been
// stable for Window. Flips shorter than Window are never reported.
type Debouncer struct {
	Window time.Duration

	rows, cols int
	keys       []keyState
}

// NewDebouncer creates a Debouncer for a rows x cols matrix.
func NewDebouncer(rows, cols int, window time.Duration) *Debouncer {
	return &Debouncer{
		Window: window,
		rows:   rows,
		cols:   cols,
		keys:   make([]keyState, rows*cols),
	}
}

// Update feeds one scan (row major, rows*cols levels) taken at now and
// calls emit for every accepted transition in position order.
func (d *Debouncer) Update(now time.Time, levels []bool, emit func(row, col int, pressed bool)) {
	for i := range d.keys {
		if i >= len(levels) {
			break
		}
		k := &d.keys[i]
		if levels[i] != k.raw {
			k.raw, k.rawSince = levels[i], now
		}
		if k.raw != k.stable && now.Sub(k.rawSince) >= d.Window {
			k.stable = k.raw
			emit(i/d.cols, i%d.cols, k.stable)
		}
	}
}

// Pressed reports the debounced state of a key.
func (d *Debouncer) Pressed(row, col int) bool {
	if row < 0 || row >= d.rows || col < 0 || col >= d.cols {
		return false
	}
	return d.keys[row*d.cols+col].stable
}
