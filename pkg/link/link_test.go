package link

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/roba/pkg/carrier"
)

type linkTestPeer struct {
	link     *Link
	packetCh chan *Packet
	lock     sync.Mutex
	states   []SyncState
}

func newLinkTestPeer(stream io.ReadWriter) *linkTestPeer {
	p := &linkTestPeer{link: New(stream), packetCh: make(chan *Packet, 16)}
	p.link.Handler = HandlePacketFunc(func(ctx context.Context, pkt *Packet) {
		p.packetCh <- pkt
	})
	p.link.Notifier = StateChangedFunc(func(ctx context.Context, state SyncState) {
		p.lock.Lock()
		p.states = append(p.states, state)
		p.lock.Unlock()
	})
	return p
}

func (p *linkTestPeer) stateChanges() []SyncState {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]SyncState(nil), p.states...)
}

func (p *linkTestPeer) expectPacket(t *testing.T, code byte, data []byte) *Packet {
	select {
	case pkt := <-p.packetCh:
		require.Equal(t, code, pkt.Code)
		require.Equal(t, data, pkt.Data)
		return pkt
	case <-time.After(time.Second):
		t.Fatal("packet timeout")
	}
	return nil
}

func TestLinkPair(t *testing.T) {
	s1, s2 := carrier.Pipe()
	a, b := newLinkTestPeer(s1), newLinkTestPeer(s2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.link.Run(ctx)
	go b.link.Run(ctx)

	require.Eventually(t, func() bool {
		return a.link.State().IsReady() && b.link.State().IsReady()
	}, time.Second, time.Millisecond)

	require.NoError(t, a.link.Send(&Packet{Code: 1, Data: []byte{1}}))
	require.NoError(t, a.link.Send(&Packet{Code: 2}))
	require.NoError(t, a.link.Send(&Packet{Code: 0x83, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}}))
	require.NoError(t, b.link.Send(&Packet{Code: 4, Data: []byte{4}}))

	p1 := b.expectPacket(t, 1, []byte{1})
	p2 := b.expectPacket(t, 2, nil)
	b.expectPacket(t, 0x83, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	a.expectPacket(t, 4, []byte{4})
	require.Equal(t, p1.Seq.Next(), p2.Seq)

	require.Eventually(t, func() bool {
		return b.link.Stats().Received == 3 && a.link.Stats().Sent == 3
	}, time.Second, time.Millisecond)
}

func TestLinkSendNotReady(t *testing.T) {
	s1, _ := carrier.Pipe()
	l := New(s1)
	require.ErrorIs(t, l.Send(&Packet{Code: 1}), ErrNotReady)
}

type byteStream struct {
	readCh  chan byte
	writeCh chan byte
}

func newByteStream() *byteStream {
	return &byteStream{readCh: make(chan byte, 64), writeCh: make(chan byte, 64)}
}

func (s *byteStream) Read(p []byte) (int, error) {
	b, ok := <-s.readCh
	if !ok {
		return 0, io.EOF
	}
	p[0] = b
	return 1, nil
}

func (s *byteStream) Write(p []byte) (int, error) {
	for _, b := range p {
		s.writeCh <- b
	}
	return len(p), nil
}

func (s *byteStream) inject(p ...byte) {
	for _, b := range p {
		s.readCh <- b
	}
}

func (s *byteStream) expectWritten(t *testing.T, expect ...byte) {
	for n, b := range expect {
		select {
		case actual := <-s.writeCh:
			require.Equalf(t, b, actual, "written[%d] mismatch", n)
		case <-time.After(time.Second):
			t.Fatalf("written[%d] timeout", n)
		}
	}
}

func TestLinkSyncSequence(t *testing.T) {
	stream := newByteStream()
	peer := newLinkTestPeer(stream)
	peer.link.seq = PacketSeq(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- peer.link.Run(ctx) }()

	stream.expectWritten(t, syncREQ, 0x01)
	stream.inject(syncACK, 0x01)
	require.Eventually(t, func() bool { return len(peer.stateChanges()) == 2 }, time.Second, time.Millisecond)
	require.True(t, peer.link.State().IsReady())
	require.Equal(t, []SyncState{SyncStateReceiving, SyncStateReady}, peer.stateChanges())

	stream.inject(wire(1, 0x02)...)
	stream.inject(wire(2, 0x82, 3)...)
	peer.expectPacket(t, 0x02, nil)
	peer.expectPacket(t, 0x82, []byte{3})

	require.NoError(t, peer.link.Send(&Packet{Code: 0x02, Data: []byte{9}}))
	stream.expectWritten(t, wire(1, 0x02, 9)...)

	// sequence error triggers a resync request carrying our next seq.
	stream.inject(7)
	stream.expectWritten(t, syncREQ, 0x02)
	require.ErrorIs(t, peer.link.Send(&Packet{Code: 1}), ErrNotReady)
	require.EqualValues(t, 2, peer.link.Stats().Resyncs)

	close(stream.readCh)
	require.ErrorIs(t, <-errCh, io.EOF)
	require.False(t, peer.link.State().IsReady())
}

func TestLinkSyncTimeout(t *testing.T) {
	stream := newByteStream()
	peer := newLinkTestPeer(stream)
	peer.link.seq = PacketSeq(5)
	peer.link.Timeout = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go peer.link.Run(ctx)
	stream.expectWritten(t, syncREQ, 0x05)
	// no answer, sync request is repeated.
	stream.expectWritten(t, syncREQ, 0x05)
}
