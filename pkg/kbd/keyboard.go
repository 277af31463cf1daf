package kbd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/carrier"
	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/env/keyboard"
	"github.com/robotalks/roba/pkg/editor/service"
	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/hid"
	"github.com/robotalks/roba/pkg/indicator"
	"github.com/robotalks/roba/pkg/input"
	"github.com/robotalks/roba/pkg/keycode"
	"github.com/robotalks/roba/pkg/keymap"
	"github.com/robotalks/roba/pkg/monitor"
	"github.com/robotalks/roba/pkg/role"
	"github.com/robotalks/roba/pkg/split"
	"github.com/robotalks/roba/pkg/status"
)

// Keyboard is an assembled keyboard half.
type Keyboard struct {
	Config   *Config
	Role     role.Role
	Hardware *Hardware
	Loop     *fx.Loop

	Aggregator *input.Aggregator
	Tracker    *status.Tracker
	Indicator  *indicator.Indicator

	// peripheral
	Peripheral *split.Peripheral
	Dialer     *carrier.Dialer

	// central
	Central  *split.Central
	Acceptor *carrier.Acceptor
	Keymap   *keymap.Keymap
	Resolver *keymap.Resolver
	Store    *keymap.Store
	Watcher  *keymap.Watcher
	Sink     *hid.Sink
	Editor   *keyboard.Env
	Service  *service.Service
	Monitor  *monitor.Monitor

	closers      []io.Closer
	reloadFailed atomic.Bool
	lastDropped  uint64
	lastOverflow uint64
}

// New assembles a keyboard half of role r on hw.
func New(conf *Config, r role.Role, hw *Hardware) (*Keyboard, error) {
	k := &Keyboard{Config: conf, Role: r, Hardware: hw, Loop: fx.NewLoop()}
	if conf.Interval > 0 {
		k.Loop.Interval = conf.Interval
	}
	k.Aggregator = input.NewAggregator(hw.Matrix, conf.Matrix.Debounce)
	k.Aggregator.Encoders = hw.Encoders
	k.Aggregator.Pointer = hw.Pointer
	if conf.Matrix.Resolution > 0 {
		k.Aggregator.Resolution = conf.Matrix.Resolution
	}
	k.Tracker = status.NewTracker(r.String(), status.SourceFunc(k.collectStatus))
	if conf.StatusInterval > 0 {
		k.Tracker.Interval = conf.StatusInterval
	}
	if hw.Battery != nil {
		if err := hw.Battery.Enable(); err != nil {
			glog.Warningf("battery: %v", err)
		}
	}

	var err error
	switch r {
	case role.Peripheral:
		err = k.setupPeripheral()
	case role.Central:
		err = k.setupCentral()
	default:
		err = role.ErrRoleUndetermined
	}
	if err != nil {
		k.Close()
		return nil, err
	}
	return k, nil
}

func (k *Keyboard) setupPeripheral() error {
	conf := &k.Config.Split
	if conf.URL == "" {
		return fmt.Errorf("%w: peripheral requires a split URL", ErrInvalidConfig)
	}
	k.Peripheral = split.NewPeripheral()
	k.Peripheral.Capacity = conf.Capacity
	if conf.AckTimeout > 0 {
		k.Peripheral.AckTimeout = conf.AckTimeout
	}
	if conf.HeartbeatInterval > 0 {
		k.Peripheral.HeartbeatInterval = conf.HeartbeatInterval
	}
	k.Dialer = &carrier.Dialer{URL: conf.URL, Session: k.Peripheral}
	k.Indicator = indicator.New("split", status.CentralOffline, k.Hardware.BlueLED, k.Hardware.RedLED)

	k.Loop.Add(k.Aggregator, k.Peripheral, k.Tracker, k.Indicator)
	k.Loop.AddRunnable(k.Dialer)
	return nil
}

func (k *Keyboard) setupCentral() error {
	if err := k.setupKeymap(); err != nil {
		return err
	}
	if err := k.setupOutput(); err != nil {
		return err
	}
	if conf := &k.Config.Split; conf.URL != "" {
		k.Central = split.NewCentral(k.Aggregator)
		k.Central.RowOffset, k.Central.ColOffset = conf.RowOffset, conf.ColOffset
		if conf.OfflineAfter > 0 {
			k.Central.OfflineAfter = conf.OfflineAfter
		}
		k.Acceptor = &carrier.Acceptor{URL: conf.URL, Session: k.Central}
		if err := k.Acceptor.Listen(); err != nil {
			return fmt.Errorf("listen split %s: %w", conf.URL, err)
		}
		glog.Infof("split: waiting for peripheral on %s", k.Acceptor.Addr())
	}
	k.Indicator = indicator.New("host", status.HostNotReady, k.Hardware.BlueLED, k.Hardware.RedLED)
	if err := k.setupEditor(); err != nil {
		return err
	}

	k.Loop.Add(k.Aggregator)
	if k.Central != nil {
		k.Loop.Add(k.Central)
		k.Loop.AddRunnable(k.Acceptor)
	}
	k.Loop.Add(k.Resolver, k.Sink, k.Tracker)
	if k.Service != nil {
		k.Loop.Add(k.Service)
	}
	if k.Monitor != nil {
		k.Loop.Add(k.Monitor)
	}
	k.Loop.Add(k.Indicator)
	if k.Editor != nil {
		k.Loop.Add(k.Editor)
	}
	if k.Watcher != nil && k.Config.Keymap.Watch {
		k.Loop.AddRunnable(k.Watcher)
	}
	return nil
}

func (k *Keyboard) setupKeymap() error {
	conf := &k.Config.Keymap
	if conf.File != "" {
		km, err := keymap.LoadFile(conf.File)
		if err != nil {
			return err
		}
		k.Keymap = km
	} else {
		k.Keymap = keymap.Default()
	}
	if conf.Store != "" {
		store, err := keymap.OpenStore(conf.Store)
		if err != nil {
			return err
		}
		k.closers = append(k.closers, store)
		k.Store = store
		if err := store.ApplyTo(context.Background(), k.Keymap); err != nil {
			glog.Warningf("keymap overrides: %v", err)
		}
	}
	if conf.File != "" {
		k.Watcher = &keymap.Watcher{
			Path:     conf.File,
			Keymap:   k.Keymap,
			Store:    k.Store,
			OnReload: k.keymapReloaded,
		}
	}
	k.Resolver = keymap.NewResolver(k.Keymap)
	if conf.TappingTerm > 0 {
		k.Resolver.TappingTerm = conf.TappingTerm
	}
	return nil
}

func (k *Keyboard) setupOutput() error {
	conf := &k.Config.HID
	transport := k.Hardware.Transport
	if conf.Device != "" {
		f, err := os.OpenFile(conf.Device, os.O_WRONLY, 0)
		if err != nil {
			return fmt.Errorf("open hid device: %w", err)
		}
		k.closers = append(k.closers, f)
		transport = &hid.WriterTransport{Writer: f, WithID: conf.WithID}
	}
	if transport == nil {
		return fmt.Errorf("%w: no hid transport", ErrInvalidConfig)
	}
	k.Sink = hid.NewSink(transport)
	if conf.QueueSize > 0 {
		k.Sink.QueueSize = conf.QueueSize
	}
	if conf.MaxRetries > 0 {
		k.Sink.MaxRetries = conf.MaxRetries
	}
	k.Sink.System = hid.SystemHandlerFunc(k.handleSystem)
	return nil
}

func (k *Keyboard) setupEditor() error {
	conf := k.Config.Editor
	if conf == nil || !conf.Enabled() {
		return nil
	}
	env, err := conf.NewEnv(k.Meta())
	if err != nil {
		return err
	}
	k.Editor = env
	k.Service = service.New(k.Keymap)
	k.Service.Store = k.Store
	k.Service.Layers = k.Resolver.Snapshots()
	k.Service.Status = k.Tracker
	k.Service.Reload = k.reloadKeymap
	k.Service.Registrar = env.Registrar
	if k.Config.Monitor && env.MQTT != nil {
		k.Monitor = monitor.New(conf.Ref(), env.MQTT.Queue)
		k.Monitor.Layers = k.Resolver.Snapshots()
	}
	return nil
}

// Meta describes the keymap to editors.
func (k *Keyboard) Meta() editor.KeyboardMeta {
	rows, cols := k.Keymap.Size()
	meta := editor.KeyboardMeta{
		Role:     k.Role.String(),
		Layers:   k.Keymap.Layers(),
		Rows:     rows,
		Cols:     cols,
		Encoders: k.Keymap.Encoders(),
		Labels:   make(map[string]string),
	}
	for key, val := range k.Config.Labels {
		meta.Labels[key] = val
	}
	for layer := 0; layer < meta.Layers; layer++ {
		if name := k.Keymap.LayerName(layer); name != "" {
			meta.Labels["layer."+strconv.Itoa(layer)] = name
		}
	}
	return meta
}

func (k *Keyboard) reloadKeymap(ctx context.Context) error {
	var err error
	if k.Watcher != nil {
		err = k.Watcher.Reload(ctx)
	} else {
		err = k.Keymap.Apply(keymap.Default())
	}
	k.keymapReloaded(err)
	return err
}

func (k *Keyboard) keymapReloaded(err error) {
	k.reloadFailed.Store(err != nil)
}

func (k *Keyboard) handleSystem(code keycode.Code) {
	glog.Infof("system key %s", code)
	if k.Hardware.System != nil {
		k.Hardware.System.HandleSystem(code)
	}
}

func (k *Keyboard) collectStatus(s *status.Status) {
	if k.Central != nil {
		stats := k.Central.Stats()
		s.Set(status.PeripheralOffline, !stats.Online)
		s.Count("split.delivered", stats.Delivered)
		s.Count("split.duplicates", stats.Duplicates)
		s.Count("split.gaps", stats.Gaps)
		s.Count("split.out_of_order", stats.OutOfOrder)
	}
	if k.Peripheral != nil {
		stats := k.Peripheral.Stats()
		s.Set(status.CentralOffline, !stats.Connected)
		s.Set(status.SplitOverflow, stats.Overflow > k.lastOverflow)
		k.lastOverflow = stats.Overflow
		s.Count("split.sent", stats.Sent)
		s.Count("split.retransmits", stats.Retransmits)
		s.Count("split.overflow", stats.Overflow)
		s.Count("split.pending", uint64(stats.Pending))
	}
	if k.Sink != nil {
		stats := k.Sink.Stats()
		s.Set(status.HostNotReady, k.Sink.Pending() > 0)
		s.Set(status.ReportDropped, stats.Dropped > k.lastDropped)
		k.lastDropped = stats.Dropped
		s.Count("hid.sent", stats.Sent)
		s.Count("hid.retries", stats.Retries)
		s.Count("hid.dropped", stats.Dropped)
	}
	if k.Resolver != nil {
		s.Layers = k.Resolver.Snapshots().Snapshot().Active
	}
	s.Set(status.KeymapReloadFailed, k.reloadFailed.Load())
	if k.Hardware.Battery != nil {
		mv, err := k.Hardware.Battery.Millivolts()
		if err != nil {
			glog.V(2).Infof("battery: %v", err)
			return
		}
		s.Count("battery.mv", uint64(mv))
		s.Set(status.BatteryLow, k.Config.BatteryLow > 0 && mv < k.Config.BatteryLow)
	}
}

// Run runs the loop until ctx is done.
func (k *Keyboard) Run(ctx context.Context) error {
	glog.Infof("keyboard %s running", k.Role)
	return k.Loop.Run(ctx)
}

// Close releases opened devices and databases.
func (k *Keyboard) Close() error {
	var errs fx.AggregatedError
	for n := len(k.closers) - 1; n >= 0; n-- {
		errs.Add(k.closers[n].Close())
	}
	k.closers = nil
	return errs.Aggregate()
}
