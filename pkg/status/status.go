// Package status collects the health of the keyboard into snapshots.
package status

import (
	"slices"
	"strings"
	"sync/atomic"
	"time"

	fx "github.com/robotalks/roba/pkg/framework"
)

// Flag is a condition worth surfacing to the user.
type Flag uint32

// Flags.
const (
	PeripheralOffline Flag = 1 << iota
	CentralOffline
	HostNotReady
	SplitOverflow
	ReportDropped
	KeymapReloadFailed
	BatteryLow
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{PeripheralOffline, "peripheral-offline"},
	{CentralOffline, "central-offline"},
	{HostNotReady, "host-not-ready"},
	{SplitOverflow, "split-overflow"},
	{ReportDropped, "report-dropped"},
	{KeymapReloadFailed, "keymap-reload-failed"},
	{BatteryLow, "battery-low"},
}

// Names lists the names of set flags.
func (f Flag) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f Flag) String() string {
	if f == 0 {
		return "ok"
	}
	return strings.Join(f.Names(), "|")
}

// Status is an immutable snapshot once published.
type Status struct {
	Role     string            `json:"role"`
	Seq      uint64            `json:"seq"`
	Time     time.Time         `json:"time"`
	Flags    Flag              `json:"flags"`
	Layers   []int             `json:"layers,omitempty"`
	Counters map[string]uint64 `json:"counters,omitempty"`
}

// Set sets or clears a flag.
func (s *Status) Set(flag Flag, on bool) {
	if on {
		s.Flags |= flag
	} else {
		s.Flags &^= flag
	}
}

// Has tells if a flag is set.
func (s *Status) Has(flag Flag) bool {
	return s.Flags&flag != 0
}

// Count records a counter.
func (s *Status) Count(name string, value uint64) {
	if s.Counters == nil {
		s.Counters = make(map[string]uint64)
	}
	s.Counters[name] = value
}

// FlagNames lists set flags, used by JSON consumers.
func (s *Status) FlagNames() []string {
	return s.Flags.Names()
}

// Source contributes to a Status.
type Source interface {
	CollectStatus(*Status)
}

// SourceFunc is the func form of Source.
type SourceFunc func(*Status)

// CollectStatus implements Source.
func (f SourceFunc) CollectStatus(s *Status) {
	f(s)
}

// Changed is emitted when flags or active layers change.
type Changed struct {
	Status   *Status
	Previous *Status
}

// NewMessage implements Message.
func (m *Changed) NewMessage() fx.Message { return &Changed{} }

// FlagRaised tells if flag went from clear (or unknown) to set.
func (m *Changed) FlagRaised(flag Flag) bool {
	return m.Status.Has(flag) && (m.Previous == nil || !m.Previous.Has(flag))
}

// FlagCleared tells if flag went from set to clear. An unknown previous
// state counts as set.
func (m *Changed) FlagCleared(flag Flag) bool {
	return !m.Status.Has(flag) && (m.Previous == nil || m.Previous.Has(flag))
}

// DefaultInterval is how often the Tracker collects.
const DefaultInterval = 10 * time.Millisecond

// Tracker collects Status from sources periodically.
type Tracker struct {
	Role     string
	Sources  []Source
	Interval time.Duration

	current atomic.Pointer[Status]
	last    time.Time
}

// NewTracker creates a Tracker.
func NewTracker(role string, sources ...Source) *Tracker {
	return &Tracker{Role: role, Sources: sources, Interval: DefaultInterval}
}

// Add adds sources.
func (t *Tracker) Add(sources ...Source) *Tracker {
	t.Sources = append(t.Sources, sources...)
	return t
}

// Status gets the latest published status, nil before the first cycle.
func (t *Tracker) Status() *Status {
	return t.current.Load()
}

// Collect builds a new Status and publishes it. It returns the Changed
// message if flags or layers differ from the previous status.
func (t *Tracker) Collect(seq uint64, now time.Time) *Changed {
	s := &Status{Role: t.Role, Seq: seq, Time: now}
	for _, src := range t.Sources {
		src.CollectStatus(s)
	}
	prev := t.current.Swap(s)
	if prev != nil && prev.Flags == s.Flags && slices.Equal(prev.Layers, s.Layers) {
		return nil
	}
	return &Changed{Status: s, Previous: prev}
}

// Control implements Task.
func (t *Tracker) Control(c fx.Cycle) error {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if !t.last.IsZero() && c.Time().Sub(t.last) < interval {
		return nil
	}
	t.last = c.Time()
	if changed := t.Collect(c.Seq(), c.Time()); changed != nil {
		c.Messages().AddMessages(changed)
	}
	return nil
}

// AddToLoop implements LoopAdder.
func (t *Tracker) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvPostProc, t)
}
