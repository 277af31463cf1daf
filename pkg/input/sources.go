package input

import "sync"

// Matrix is a key matrix scanned by the aggregator.
type Matrix interface {
	Size() (rows, cols int)
	// Scan fills levels (row major, rows*cols) with raw key levels.
	Scan(levels []bool) error
}

// EncoderReader reads quadrature steps accumulated since the last read.
// Positive is clockwise.
type EncoderReader interface {
	ReadSteps() (int, error)
}

// PointerSensor reads motion accumulated since the last read.
type PointerSensor interface {
	ReadMotion() (dx, dy int, err error)
}

// StateMatrix is an in-memory Matrix driven by Set.
type StateMatrix struct {
	rows, cols int
	levels     []bool
	lock       sync.Mutex
}

// NewStateMatrix creates a StateMatrix.
func NewStateMatrix(rows, cols int) *StateMatrix {
	return &StateMatrix{rows: rows, cols: cols, levels: make([]bool, rows*cols)}
}

// Size implements Matrix.
func (m *StateMatrix) Size() (int, int) {
	return m.rows, m.cols
}

// Set sets the raw level of a key. Out of range positions are ignored.
func (m *StateMatrix) Set(row, col int, level bool) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		return
	}
	m.lock.Lock()
	m.levels[row*m.cols+col] = level
	m.lock.Unlock()
}

// Scan implements Matrix.
func (m *StateMatrix) Scan(levels []bool) error {
	m.lock.Lock()
	copy(levels, m.levels)
	m.lock.Unlock()
	return nil
}

// StepCounter is an in-memory EncoderReader.
type StepCounter struct {
	steps int
	lock  sync.Mutex
}

// Add adds quadrature steps.
func (c *StepCounter) Add(steps int) {
	c.lock.Lock()
	c.steps += steps
	c.lock.Unlock()
}

// ReadSteps implements EncoderReader.
func (c *StepCounter) ReadSteps() (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	steps := c.steps
	c.steps = 0
	return steps, nil
}

// MotionAccumulator is an in-memory PointerSensor.
type MotionAccumulator struct {
	dx, dy int
	lock   sync.Mutex
}

// Move adds motion.
func (m *MotionAccumulator) Move(dx, dy int) {
	m.lock.Lock()
	m.dx += dx
	m.dy += dy
	m.lock.Unlock()
}

// ReadMotion implements PointerSensor.
func (m *MotionAccumulator) ReadMotion() (int, int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	dx, dy := m.dx, m.dy
	m.dx, m.dy = 0, 0
	return dx, dy, nil
}
