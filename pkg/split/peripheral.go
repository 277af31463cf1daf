package split

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/input"
	"github.com/robotalks/roba/pkg/link"
)

// PeripheralStats are counters of a Peripheral.
type PeripheralStats struct {
	Sent        uint64
	Retransmits uint64
	Acked       uint64
	Overflow    uint64
	Pending     int
	Connected   bool
}

// Peripheral is the sending side. As a Task it takes the input events
// of each cycle, numbers and buffers them; as a carrier Session it
// transmits buffered events until they are acknowledged.
type Peripheral struct {
	Capacity          int
	AckTimeout        time.Duration
	HeartbeatInterval time.Duration

	boot     uint32
	buffer   []*Event
	nextSeq  uint32
	sentUpTo uint32
	progress time.Time
	lock     sync.Mutex

	notifyCh  chan struct{}
	connected atomic.Bool

	sent, retransmits, acked, overflow atomic.Uint64
}

// NewPeripheral creates a Peripheral.
func NewPeripheral() *Peripheral {
	return &Peripheral{
		Capacity:          DefaultCapacity,
		AckTimeout:        DefaultAckTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		boot:              newBootID(),
		nextSeq:           1,
		notifyCh:          make(chan struct{}, 1),
	}
}

// Stats gets a snapshot of counters.
func (p *Peripheral) Stats() PeripheralStats {
	p.lock.Lock()
	pending := len(p.buffer)
	p.lock.Unlock()
	return PeripheralStats{
		Sent:        p.sent.Load(),
		Retransmits: p.retransmits.Load(),
		Acked:       p.acked.Load(),
		Overflow:    p.overflow.Load(),
		Pending:     pending,
		Connected:   p.connected.Load(),
	}
}

// Connected tells if the link to the central is up.
func (p *Peripheral) Connected() bool {
	return p.connected.Load()
}

// Pending lists unacknowledged events in order.
func (p *Peripheral) Pending() []*Event {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]*Event(nil), p.buffer...)
}

// Enqueue numbers an event and buffers it until acknowledged. When
// the buffer is full the oldest event is dropped and ErrBufferOverflow
// returned; the new event is buffered anyway.
func (p *Peripheral) Enqueue(ev input.Event) error {
	e, err := EventFrom(ev)
	if err != nil {
		return err
	}
	capacity := p.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p.lock.Lock()
	e.Boot, e.Seq = p.boot, p.nextSeq
	p.nextSeq++
	if len(p.buffer) >= capacity {
		p.buffer = p.buffer[1:]
		err = ErrBufferOverflow
	}
	p.buffer = append(p.buffer, e)
	p.lock.Unlock()
	if err != nil {
		p.overflow.Add(1)
	}
	p.notify()
	return err
}

func (p *Peripheral) notify() {
	select {
	case p.notifyCh <- struct{}{}:
	default:
	}
}

// Control implements Task.
func (p *Peripheral) Control(c fx.Cycle) error {
	var errs fx.AggregatedError
	c.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		if ev, ok := mc.CurrentMessage().(input.Event); ok {
			mc.MessageTaken()
			if err := p.Enqueue(ev); err != nil {
				glog.Warningf("split: %v", err)
				if err != ErrBufferOverflow {
					errs.Add(err)
				}
			}
		}
	}))
	return errs.Aggregate()
}

// AddToLoop implements LoopAdder.
func (p *Peripheral) AddToLoop(l *fx.Loop) {
	l.AddTask(fx.PrLvLink, p)
}

// HandleAck removes acknowledged events.
func (p *Peripheral) HandleAck(ack *Ack) {
	if ack.Boot != p.boot {
		return
	}
	p.lock.Lock()
	n := 0
	for n < len(p.buffer) && p.buffer[n].Seq <= ack.Seq {
		n++
	}
	p.buffer = p.buffer[n:]
	if n > 0 {
		p.progress = time.Now()
	}
	p.lock.Unlock()
	p.acked.Add(uint64(n))
}

// RunSession implements carrier.Session.
func (p *Peripheral) RunSession(ctx context.Context, rwc io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lnk := link.New(rwc)
	lnk.Handler = link.HandlePacketFunc(func(ctx context.Context, pkt *link.Packet) {
		if pkt.Code != CodeAck {
			return
		}
		var ack Ack
		if err := Decode(pkt, &ack); err != nil {
			glog.Warningf("split: bad ack: %v", err)
			return
		}
		p.HandleAck(&ack)
	})
	lnk.Notifier = link.StateChangedFunc(func(ctx context.Context, state link.SyncState) {
		if !state.IsReady() {
			p.connected.Store(false)
			return
		}
		if !p.connected.Load() {
			glog.Infof("split: central connected")
			p.lock.Lock()
			// resend everything unacknowledged on a fresh link
			p.sentUpTo = 0
			p.lock.Unlock()
			p.connected.Store(true)
			p.notify()
		}
	})
	defer p.connected.Store(false)
	go p.sendLoop(ctx, lnk)
	return fx.RunWithContextCloser(ctx, rwc, func() error {
		return lnk.Run(ctx)
	})
}

func (p *Peripheral) sendLoop(ctx context.Context, lnk *link.Link) {
	tick := p.AckTimeout / 2
	if tick <= 0 {
		tick = DefaultAckTimeout / 2
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	var lastSend time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.notifyCh:
		case <-ticker.C:
		}
		if !p.connected.Load() {
			continue
		}
		now := time.Now()
		sent, err := p.transmit(lnk, now)
		if err != nil {
			glog.V(2).Infof("split: send: %v", err)
			continue
		}
		if sent {
			lastSend = now
			continue
		}
		interval := p.HeartbeatInterval
		if interval <= 0 {
			interval = DefaultHeartbeatInterval
		}
		if now.Sub(lastSend) >= interval {
			if p.heartbeat(lnk) == nil {
				lastSend = now
			}
		}
	}
}

func (p *Peripheral) heartbeat(lnk *link.Link) error {
	p.lock.Lock()
	hb := &Heartbeat{Boot: p.boot, Seq: p.nextSeq - 1, Base: p.baseLocked()}
	p.lock.Unlock()
	pkt, err := Encode(CodeHeartbeat, hb)
	if err != nil {
		return err
	}
	return lnk.Send(pkt)
}

func (p *Peripheral) baseLocked() uint32 {
	if len(p.buffer) > 0 {
		return p.buffer[0].Seq
	}
	return p.nextSeq
}

// transmit sends events not yet sent on this link, or all unacknowledged
// ones once AckTimeout passed without progress.
func (p *Peripheral) transmit(lnk *link.Link, now time.Time) (bool, error) {
	ackTimeout := p.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	p.lock.Lock()
	if len(p.buffer) > 0 && p.sentUpTo >= p.buffer[0].Seq && now.Sub(p.progress) >= ackTimeout {
		p.sentUpTo = p.buffer[0].Seq - 1
		p.retransmits.Add(1)
		glog.V(2).Infof("split: ack timeout, retransmit from %d", p.buffer[0].Seq)
	}
	var events []Event
	base := p.baseLocked()
	for _, e := range p.buffer {
		if e.Seq > p.sentUpTo {
			sending := *e
			sending.Base = base
			events = append(events, sending)
		}
	}
	p.lock.Unlock()

	for i := range events {
		e := &events[i]
		pkt, err := Encode(CodeEvent, e)
		if err != nil {
			return false, err
		}
		if err := lnk.Send(pkt); err != nil {
			if err == link.ErrNotReady {
				err = ErrDisconnected
			}
			return false, err
		}
		p.sent.Add(1)
		p.lock.Lock()
		if e.Seq > p.sentUpTo {
			p.sentUpTo = e.Seq
		}
		// the ack timeout counts from when the oldest pending event
		// was last sent, later events don't postpone it
		if e.Seq == e.Base {
			p.progress = now
		}
		p.lock.Unlock()
	}
	return len(events) > 0, nil
}
