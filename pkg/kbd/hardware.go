package kbd

import (
	"errors"
	"sync"

	"github.com/robotalks/roba/pkg/hid"
	"github.com/robotalks/roba/pkg/indicator"
	"github.com/robotalks/roba/pkg/input"
	"github.com/robotalks/roba/pkg/keycode"
	"github.com/robotalks/roba/pkg/role"
)

// Hardware is what a half is built on. On the device these are drivers;
// on the host the simulated parts below.
type Hardware struct {
	Matrix    input.Matrix
	Encoders  []input.EncoderReader
	Pointer   input.PointerSensor
	Transport hid.Transport
	// RolePin is the wired role detection pin, optional.
	RolePin role.Pin
	// BlueLED shows connected, RedLED disconnected.
	BlueLED, RedLED indicator.LED
	System          hid.SystemHandler
	Battery         Battery
}

// ErrBatteryDisabled is returned reading a battery not enabled.
var ErrBatteryDisabled = errors.New("battery measurement disabled")

// Battery measures the supply voltage. The measuring circuit is off
// until Enable is called.
type Battery interface {
	Enable() error
	Millivolts() (int, error)
}

// RoleSource gets the role source of the detection pin, nil without one.
func (h *Hardware) RoleSource() role.Source {
	if h.RolePin == nil {
		return nil
	}
	return &role.PinSource{Pin: h.RolePin, CentralLevel: true}
}

// SimHardware is a Hardware driven programmatically.
type SimHardware struct {
	Hardware
	Keys      *input.StateMatrix
	Steps     []*input.StepCounter
	Motion    *input.MotionAccumulator
	Reports   *hid.RecorderTransport
	Blue, Red *indicator.MemoryLED
	Power     *SimBattery
	// SystemKeys records handled system keycodes.
	SystemKeys []keycode.Code
}

// NewSimHardware creates simulated hardware matching the matrix config.
func NewSimHardware(conf *MatrixConfig) *SimHardware {
	sim := &SimHardware{
		Keys:    input.NewStateMatrix(conf.Rows, conf.Cols),
		Motion:  &input.MotionAccumulator{},
		Reports: &hid.RecorderTransport{},
		Blue:    &indicator.MemoryLED{Name: "blue"},
		Red:     &indicator.MemoryLED{Name: "red"},
		Power:   &SimBattery{mv: 4000},
	}
	sim.Matrix = sim.Keys
	sim.Pointer = sim.Motion
	sim.Transport = sim.Reports
	sim.BlueLED, sim.RedLED = sim.Blue, sim.Red
	sim.Battery = sim.Power
	for n := 0; n < conf.Encoders; n++ {
		counter := &input.StepCounter{}
		sim.Steps = append(sim.Steps, counter)
		sim.Encoders = append(sim.Encoders, counter)
	}
	sim.Hardware.System = hid.SystemHandlerFunc(func(code keycode.Code) {
		sim.SystemKeys = append(sim.SystemKeys, code)
	})
	return sim
}

// SimBattery is a Battery with a settable voltage.
type SimBattery struct {
	lock    sync.Mutex
	mv      int
	enabled bool
}

// Set sets the voltage in millivolts.
func (b *SimBattery) Set(mv int) {
	b.lock.Lock()
	b.mv = mv
	b.lock.Unlock()
}

// Enabled tells if Enable was called.
func (b *SimBattery) Enabled() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.enabled
}

// Enable implements Battery.
func (b *SimBattery) Enable() error {
	b.lock.Lock()
	b.enabled = true
	b.lock.Unlock()
	return nil
}

// Millivolts implements Battery.
func (b *SimBattery) Millivolts() (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.enabled {
		return 0, ErrBatteryDisabled
	}
	return b.mv, nil
}
