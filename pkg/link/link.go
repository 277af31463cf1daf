package link

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// DefaultTimeout is the default sync timeout.
const DefaultTimeout = 100 * time.Millisecond

// PacketHandler is called when a packet is received.
type PacketHandler interface {
	HandlePacket(context.Context, *Packet)
}

// HandlePacketFunc is func type of PacketHandler.
type HandlePacketFunc func(context.Context, *Packet)

// HandlePacket implements PacketHandler.
func (f HandlePacketFunc) HandlePacket(ctx context.Context, pkt *Packet) {
	f(ctx, pkt)
}

// StateNotifier is called when the link state changed.
type StateNotifier interface {
	StateChanged(context.Context, SyncState)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, SyncState)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state SyncState) {
	f(ctx, state)
}

// Stats are counters of a Link.
type Stats struct {
	Sent        uint64
	Received    uint64
	Resyncs     uint64
	BadChecksum uint64
}

// Link sends and receives packets over a byte stream.
type Link struct {
	Stream   io.ReadWriter
	Handler  PacketHandler
	Notifier StateNotifier
	Timeout  time.Duration

	seq   PacketSeq
	state SyncState
	lock  sync.RWMutex

	syncTimer <-chan time.Time
	parser    Parser

	sent, received, resyncs, badChecksum atomic.Uint64
}

// New creates a Link over a stream.
func New(stream io.ReadWriter) *Link {
	return &Link{
		Stream:  stream,
		Timeout: DefaultTimeout,
		seq:     NewPacketSeq(),
	}
}

// State gets the state.
func (l *Link) State() SyncState {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.state
}

// Stats gets a snapshot of counters.
func (l *Link) Stats() Stats {
	return Stats{
		Sent:        l.sent.Load(),
		Received:    l.received.Load(),
		Resyncs:     l.resyncs.Load(),
		BadChecksum: l.badChecksum.Load(),
	}
}

// Send sends a packet. The sequence number is assigned by the link.
func (l *Link) Send(pkt *Packet) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if !l.state.IsReady() {
		return ErrNotReady
	}
	pkt.Seq = l.seq
	if _, err := pkt.WriteTo(l.Stream); err != nil {
		return err
	}
	l.seq = l.seq.Next()
	l.sent.Add(1)
	return nil
}

// Run processes the link until the stream fails or ctx is done.
// The stream must be closed by the caller to unblock a pending Read.
func (l *Link) Run(ctx context.Context) error {
	if err := l.applyParseResult(ctx, l.parser.Reset()); err != nil {
		return err
	}
	byteCh, errCh := make(chan byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.readLoop(subCtx, byteCh, errCh)
	for {
		var err error
		select {
		case b := <-byteCh:
			err = l.applyParseResult(ctx, l.parser.Parse(b))
		case err = <-errCh:
		case <-ctx.Done():
			err = ctx.Err()
		case <-l.syncTimer:
			err = l.applyParseResult(ctx, l.parser.Timeout())
		}
		if err != nil {
			l.setState(ctx, SyncStateSyncing)
			return err
		}
	}
}

func (l *Link) readLoop(ctx context.Context, byteCh chan byte, errCh chan error) {
	buf := make([]byte, 1)
	for {
		if _, err := l.Stream.Read(buf); err != nil {
			errCh <- err
			return
		}
		select {
		case byteCh <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Link) setState(ctx context.Context, state SyncState) {
	l.lock.Lock()
	changed := l.state != state
	l.state = state
	l.lock.Unlock()
	if changed && l.Notifier != nil {
		l.Notifier.StateChanged(ctx, state)
	}
}

func (l *Link) applyParseResult(ctx context.Context, pr ParseResult) (err error) {
	var notifier StateNotifier
	l.lock.Lock()
	if l.state != pr.State {
		glog.V(4).Infof("link state %s -> %s", l.state, pr.State)
		l.state = pr.State
		notifier = l.Notifier
	}
	if pr.Sync != 0 {
		_, err = l.Stream.Write([]byte{pr.Sync, byte(l.seq)})
	}
	l.lock.Unlock()
	if err != nil {
		return
	}
	if pr.Sync == syncREQ {
		l.resyncs.Add(1)
	}
	if pr.BadChecksum {
		l.badChecksum.Add(1)
		glog.V(2).Info("link packet checksum mismatch")
	}

	switch pr.WhatAboutTimer() {
	case TimerRestart:
		timeout := l.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		l.syncTimer = time.After(timeout)
	case TimerStop:
		l.syncTimer = nil
	}

	if notifier != nil {
		notifier.StateChanged(ctx, pr.State)
	}
	if pr.Packet != nil {
		l.received.Add(1)
		if h := l.Handler; h != nil {
			h.HandlePacket(ctx, pr.Packet)
		}
	}
	return
}
