package kbd

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/hid"
	"github.com/robotalks/roba/pkg/keycode"
	"github.com/robotalks/roba/pkg/role"
	"github.com/robotalks/roba/pkg/status"
)

func simConfig() *Config {
	conf := NewConfig()
	conf.Editor.MQTTBrokerURL = ""
	conf.Editor.ListenURL = ""
	conf.Monitor = false
	return conf
}

type simClock struct {
	now time.Time
}

func (c *simClock) Now() time.Time { return c.now }

func (c *simClock) run(k *Keyboard, d time.Duration) {
	for end := c.now.Add(d); c.now.Before(end); c.now = c.now.Add(time.Millisecond) {
		k.Loop.RunCycle(context.Background())
	}
}

func keyPressed(reports []hid.Report, code keycode.Code) bool {
	for _, r := range reports {
		if r.ID == hid.ReportKeyboard && slices.Contains(r.Data[2:], byte(code.Usage())) {
			return true
		}
	}
	return false
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyboard.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
role = "peripheral"

[matrix]
rows = 4
cols = 5
debounce = "8ms"

[split]
url = "tcp://localhost:7600"
ack-timeout = "20ms"

[keymap]
tapping-term = "150ms"

[editor]
id = "left"
mqtt = ""

[labels]
model = "roBa"
`), 0644))

	conf, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "peripheral", conf.Role)
	assert.Equal(t, 5, conf.Matrix.Cols)
	assert.Equal(t, 8*time.Millisecond, conf.Matrix.Debounce)
	assert.Equal(t, "tcp://localhost:7600", conf.Split.URL)
	assert.Equal(t, 20*time.Millisecond, conf.Split.AckTimeout)
	assert.Equal(t, Default().Split.Capacity, conf.Split.Capacity)
	assert.Equal(t, 150*time.Millisecond, conf.Keymap.TappingTerm)
	assert.Equal(t, "left", conf.Editor.ID)
	assert.Empty(t, conf.Editor.MQTTBrokerURL)
	assert.Equal(t, "roBa", conf.Labels["model"])

	t.Setenv("ROBA_SPLIT_URL", "pipe:from-env")
	conf, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "pipe:from-env", conf.Split.URL)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, conf.Validate())
	conf.Role = "middle"
	assert.ErrorIs(t, conf.Validate(), ErrInvalidConfig)
	conf = NewConfig()
	conf.Matrix.Rows = 0
	assert.ErrorIs(t, conf.Validate(), ErrInvalidConfig)
}

func TestRoleSources(t *testing.T) {
	conf := NewConfig()
	conf.Role = "peripheral"
	t.Setenv(role.EnvVar, "")
	hw := &Hardware{RolePin: role.PinFunc(func() (bool, error) { return true, nil })}
	r, err := role.Resolve(conf.RoleSources(hw.RoleSource())...)
	require.NoError(t, err)
	assert.Equal(t, role.Peripheral, r)

	conf.Role = ""
	r, err = role.Resolve(conf.RoleSources(hw.RoleSource())...)
	require.NoError(t, err)
	assert.Equal(t, role.Central, r)

	_, err = role.Resolve(conf.RoleSources((&Hardware{}).RoleSource())...)
	assert.ErrorIs(t, err, role.ErrRoleUndetermined)
}

func TestPeripheralRequiresSplit(t *testing.T) {
	conf := simConfig()
	hw := NewSimHardware(&conf.Matrix)
	_, err := New(conf, role.Peripheral, &hw.Hardware)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStandaloneCentral(t *testing.T) {
	conf := simConfig()
	conf.Matrix.Cols = 11
	hw := NewSimHardware(&conf.Matrix)
	k, err := New(conf, role.Central, &hw.Hardware)
	require.NoError(t, err)
	defer k.Close()
	clock := &simClock{now: time.Unix(1000, 0)}
	k.Loop.Clock = clock

	hw.Keys.Set(0, 0, true)
	clock.run(k, 10*time.Millisecond)
	assert.True(t, keyPressed(hw.Reports.Reports(), keycode.Q))
	hw.Keys.Set(0, 0, false)
	clock.run(k, 10*time.Millisecond)
	reports := hw.Reports.Reports()
	require.NotEmpty(t, reports)
	assert.Equal(t, make([]byte, 8), reports[len(reports)-1].Data)

	s := k.Tracker.Status()
	require.NotNil(t, s)
	assert.Equal(t, []int{0}, s.Layers)
	assert.False(t, s.Has(status.PeripheralOffline))
	assert.False(t, s.Has(status.HostNotReady))

	// hold LT(7,T) and press the key which is Bootloader on layer 7
	hw.Keys.Set(0, 4, true)
	clock.run(k, k.Resolver.TappingTerm+20*time.Millisecond)
	assert.Equal(t, []int{7, 0}, k.Resolver.Snapshots().Snapshot().Active)
	hw.Keys.Set(0, 0, true)
	clock.run(k, 10*time.Millisecond)
	assert.Equal(t, []keycode.Code{keycode.Bootloader}, hw.SystemKeys)
	assert.False(t, keyPressed(hw.Reports.Reports(), keycode.T))

	// indicator blinks blue on the initial host state
	_, changes := hw.Blue.State()
	assert.NotZero(t, changes)
}

func TestHostNotReady(t *testing.T) {
	conf := simConfig()
	conf.Matrix.Cols = 11
	hw := NewSimHardware(&conf.Matrix)
	k, err := New(conf, role.Central, &hw.Hardware)
	require.NoError(t, err)
	defer k.Close()
	clock := &simClock{now: time.Unix(1000, 0)}
	k.Loop.Clock = clock

	hw.Reports.SetReady(false)
	hw.Keys.Set(1, 0, true)
	clock.run(k, 30*time.Millisecond)
	assert.True(t, k.Tracker.Status().Has(status.HostNotReady))

	hw.Reports.SetReady(true)
	clock.run(k, time.Second)
	assert.False(t, k.Tracker.Status().Has(status.HostNotReady))
	assert.True(t, keyPressed(hw.Reports.Reports(), keycode.A))
}

func TestBatteryStatus(t *testing.T) {
	conf := simConfig()
	conf.Matrix.Cols = 11
	hw := NewSimHardware(&conf.Matrix)
	k, err := New(conf, role.Central, &hw.Hardware)
	require.NoError(t, err)
	defer k.Close()
	assert.True(t, hw.Power.Enabled())
	clock := &simClock{now: time.Unix(1000, 0)}
	k.Loop.Clock = clock

	clock.run(k, 20*time.Millisecond)
	s := k.Tracker.Status()
	assert.Equal(t, uint64(4000), s.Counters["battery.mv"])
	assert.False(t, s.Has(status.BatteryLow))

	hw.Power.Set(3300)
	clock.run(k, 20*time.Millisecond)
	s = k.Tracker.Status()
	assert.Equal(t, uint64(3300), s.Counters["battery.mv"])
	assert.True(t, s.Has(status.BatteryLow))
	assert.Contains(t, s.FlagNames(), "battery-low")

	_, err = (&SimBattery{}).Millivolts()
	assert.ErrorIs(t, err, ErrBatteryDisabled)
}

func TestSplitHalves(t *testing.T) {
	url := "pipe:kbd-split-test"

	centralConf := simConfig()
	centralConf.Matrix.Cols = 6
	centralConf.Split.URL = url
	centralHW := NewSimHardware(&centralConf.Matrix)
	central, err := New(centralConf, role.Central, &centralHW.Hardware)
	require.NoError(t, err)
	defer central.Close()

	peripheralConf := simConfig()
	peripheralConf.Matrix.Cols = 5
	peripheralConf.Split.URL = url
	peripheralHW := NewSimHardware(&peripheralConf.Matrix)
	peripheral, err := New(peripheralConf, role.Peripheral, &peripheralHW.Hardware)
	require.NoError(t, err)
	defer peripheral.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, k := range []*Keyboard{central, peripheral} {
		wg.Add(1)
		go func(k *Keyboard) {
			defer wg.Done()
			k.Run(ctx)
		}(k)
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(t, func() bool {
		return central.Central.Online() && peripheral.Peripheral.Connected()
	}, 5*time.Second, 10*time.Millisecond)

	// (0,1) on the peripheral is (0,7) on the central: U
	peripheralHW.Keys.Set(0, 1, true)
	var reports []hid.Report
	require.Eventually(t, func() bool {
		reports = append(reports, centralHW.Reports.Reports()...)
		return keyPressed(reports, keycode.U)
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		s := central.Tracker.Status()
		return s != nil && !s.Has(status.PeripheralOffline)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMeta(t *testing.T) {
	conf := simConfig()
	conf.Labels = map[string]string{"model": "roBa"}
	hw := NewSimHardware(&conf.Matrix)
	k, err := New(conf, role.Central, &hw.Hardware)
	require.NoError(t, err)
	defer k.Close()
	meta := k.Meta()
	assert.Equal(t, "central", meta.Role)
	assert.Equal(t, 8, meta.Layers)
	assert.Equal(t, 4, meta.Rows)
	assert.Equal(t, 11, meta.Cols)
	assert.Equal(t, "base", meta.Labels["layer.0"])
	assert.Equal(t, "roBa", meta.Labels["model"])
}

var _ fx.Clock = (*simClock)(nil)
