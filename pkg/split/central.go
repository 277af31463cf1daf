package split

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/input"
	"github.com/robotalks/roba/pkg/link"
)

// Pusher accepts events from the peripheral, usually the central's
// input.Aggregator.
type Pusher interface {
	Push(...input.Event)
}

// PeerStatus is emitted by the Central task when the peripheral goes
// online or offline.
type PeerStatus struct {
	Online bool
	Since  time.Time
}

// NewMessage implements Message.
func (m *PeerStatus) NewMessage() fx.Message { return &PeerStatus{} }

func (m *PeerStatus) String() string {
	if m.Online {
		return "peripheral online"
	}
	return "peripheral offline"
}

// CentralStats are counters of a Central. Gaps counts sequences skipped
// because the peripheral dropped them on overflow; OutOfOrder counts
// events refused because an earlier one is missing.
type CentralStats struct {
	Delivered  uint64
	Duplicates uint64
	OutOfOrder uint64
	Gaps       uint64
	Online     bool
}

// Central is the receiving side. As a carrier Session it delivers
// events in order exactly once and acknowledges them cumulatively; as
// a Task it watches liveness of the peripheral.
type Central struct {
	Target       Pusher
	RowOffset    int
	ColOffset    int
	OfflineAfter time.Duration

	boot      uint32
	delivered uint32
	lastSeen  time.Time
	connected bool
	lock      sync.Mutex

	online atomic.Bool

	deliveredCount, duplicates, outOfOrder, gaps atomic.Uint64
}

// NewCentral creates a Central delivering to target.
func NewCentral(target Pusher) *Central {
	return &Central{Target: target, OfflineAfter: DefaultOfflineAfter}
}

// Online tells if the peripheral is considered online.
func (c *Central) Online() bool {
	return c.online.Load()
}

// Stats gets a snapshot of counters.
func (c *Central) Stats() CentralStats {
	return CentralStats{
		Delivered:  c.deliveredCount.Load(),
		Duplicates: c.duplicates.Load(),
		OutOfOrder: c.outOfOrder.Load(),
		Gaps:       c.gaps.Load(),
		Online:     c.online.Load(),
	}
}

// skipTo moves past sequences below base, which the peripheral no
// longer holds. Must be called with lock held.
func (c *Central) skipTo(base uint32) {
	if base <= c.delivered+1 {
		return
	}
	c.gaps.Add(1)
	glog.Warningf("split: events %d..%d dropped by peripheral", c.delivered+1, base-1)
	c.delivered = base - 1
}

// Receive handles one event and returns the cumulative ack. Only the
// event right after the last delivered one is delivered: duplicates are
// acknowledged again and events after a missing one are refused, so the
// peripheral retransmits from the first unacknowledged event.
func (c *Central) Receive(e *Event, now time.Time) (*Ack, error) {
	c.lock.Lock()
	c.lastSeen = now
	if e.Boot != c.boot {
		if c.boot != 0 {
			glog.Infof("split: peripheral restarted")
		}
		c.boot, c.delivered = e.Boot, 0
	}
	c.skipTo(e.Base)
	ack := &Ack{Boot: c.boot, Seq: c.delivered}
	switch {
	case e.Seq <= c.delivered:
		c.lock.Unlock()
		c.duplicates.Add(1)
		return ack, nil
	case e.Seq != c.delivered+1:
		c.lock.Unlock()
		c.outOfOrder.Add(1)
		glog.V(2).Infof("split: event %d refused, expecting %d", e.Seq, ack.Seq+1)
		return ack, nil
	}
	c.delivered = e.Seq
	ack.Seq = e.Seq
	c.lock.Unlock()

	ev, err := e.Input(now, c.RowOffset, c.ColOffset)
	if err != nil {
		return ack, fmt.Errorf("event %d: %w", e.Seq, err)
	}
	c.deliveredCount.Add(1)
	if c.Target != nil {
		c.Target.Push(ev)
	}
	return ack, nil
}

// Heartbeat handles a heartbeat and returns the ack to reply.
func (c *Central) Heartbeat(hb *Heartbeat, now time.Time) *Ack {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.lastSeen = now
	if hb.Boot != c.boot {
		return nil
	}
	c.skipTo(hb.Base)
	return &Ack{Boot: c.boot, Seq: c.delivered}
}

func (c *Central) setConnected(connected bool, now time.Time) {
	c.lock.Lock()
	c.connected = connected
	if connected {
		c.lastSeen = now
	}
	c.lock.Unlock()
}

// RunSession implements carrier.Session.
func (c *Central) RunSession(ctx context.Context, rwc io.ReadWriteCloser) error {
	lnk := link.New(rwc)
	lnk.Handler = link.HandlePacketFunc(func(ctx context.Context, pkt *link.Packet) {
		now := time.Now()
		var ack *Ack
		switch pkt.Code {
		case CodeEvent:
			var e Event
			if err := Decode(pkt, &e); err != nil {
				glog.Warningf("split: bad event: %v", err)
				return
			}
			var err error
			if ack, err = c.Receive(&e, now); err != nil {
				glog.Warningf("split: %v", err)
			}
		case CodeHeartbeat:
			var hb Heartbeat
			if err := Decode(pkt, &hb); err != nil {
				glog.Warningf("split: bad heartbeat: %v", err)
				return
			}
			ack = c.Heartbeat(&hb, now)
		}
		if ack == nil {
			return
		}
		pkt, err := Encode(CodeAck, ack)
		if err == nil {
			err = lnk.Send(pkt)
		}
		if err != nil {
			glog.V(2).Infof("split: ack: %v", err)
		}
	})
	lnk.Notifier = link.StateChangedFunc(func(ctx context.Context, state link.SyncState) {
		c.setConnected(state.IsReady(), time.Now())
	})
	defer c.setConnected(false, time.Time{})
	return fx.RunWithContextCloser(ctx, rwc, func() error {
		return lnk.Run(ctx)
	})
}

// Check updates the online state at now and reports a transition.
func (c *Central) Check(now time.Time) (online, changed bool) {
	offlineAfter := c.OfflineAfter
	if offlineAfter <= 0 {
		offlineAfter = DefaultOfflineAfter
	}
	c.lock.Lock()
	online = c.connected && now.Sub(c.lastSeen) < offlineAfter
	c.lock.Unlock()
	changed = c.online.Swap(online) != online
	return
}

// Control implements Task.
func (c *Central) Control(cycle fx.Cycle) error {
	if online, changed := c.Check(cycle.Time()); changed {
		status := &PeerStatus{Online: online, Since: cycle.Time()}
		if online {
			glog.Info("split: peripheral online")
		} else {
			glog.Warning("split: peripheral offline")
		}
		cycle.Messages().AddMessages(status)
	}
	return nil
}

// AddToLoop implements LoopAdder.
func (c *Central) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvLink, c)
}
