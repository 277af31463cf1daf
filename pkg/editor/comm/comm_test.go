package comm

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/roba/pkg/carrier"
	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/comm/stream"
	"github.com/robotalks/roba/pkg/editor/msgs"
	fx "github.com/robotalks/roba/pkg/framework"
)

type chanPacketRW struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newChanRW(inSize int) *chanPacketRW {
	return &chanPacketRW{
		in:   make(chan []byte, inSize),
		out:  make(chan []byte, 1),
		done: make(chan struct{}),
	}
}

func (rw *chanPacketRW) ReadPacket() ([]byte, error) {
	select {
	case pkt, ok := <-rw.in:
		if !ok {
			return nil, io.EOF
		}
		return pkt, nil
	case <-rw.done:
		return nil, io.EOF
	}
}

func (rw *chanPacketRW) Close() error {
	rw.once.Do(func() { close(rw.done) })
	return nil
}

func (rw *chanPacketRW) WritePacket(pkt []byte) error {
	rw.out <- pkt
	return nil
}

func startKeyboard(t *testing.T, rw PacketReadWriter, tasks ...fx.LoopAdder) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	loop := fx.NewLoop()
	loop.Add(NewRegistrar(rw))
	loop.Add(tasks...)
	go loop.Run(ctx)
	t.Cleanup(cancel)
	return cancel
}

func TestUnsupportedCommands(t *testing.T) {
	kbdEnd, editorEnd := carrier.Pipe()
	startKeyboard(t, stream.New(kbdEnd), &UnsupportedCommands{})

	conn := NewConn(stream.New(editorEnd))
	go conn.Run(context.Background())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := editor.Wait(ctx, conn.DoCommand(&msgs.KeymapGet{}))
	assert.ErrorIs(t, err, msgs.ErrUnsupportedCommand)
}

func TestConnUnknownCommandReply(t *testing.T) {
	rw := newChanRW(1)
	pipe := NewPipe(rw)
	go pipe.Run(context.Background())
	defer close(rw.in)

	data, err := (&msgs.Typed{TypeId: msgs.GroupCustom | 1, Sequence: 7}).Encode()
	require.NoError(t, err)
	rw.in <- data

	select {
	case pkt := <-rw.out:
		typed, err := msgs.DecodeTyped(pkt)
		require.NoError(t, err)
		assert.EqualValues(t, 7, typed.Sequence)
		assert.Equal(t, msgs.CommandErrTypeID, typed.TypeId)
	case <-time.After(time.Second):
		t.Fatal("no reply for unknown command")
	}
}

func TestConnExpiration(t *testing.T) {
	rw := newChanRW(0)
	conn := NewConn(rw)
	f := conn.DoCommand(&msgs.StatusQuery{})
	<-rw.out

	conn.PurgeExpired(time.Now())
	select {
	case <-f.ResultChan():
		t.Fatal("command expired too early")
	default:
	}
	conn.PurgeExpired(time.Now().Add(DefaultCommandExpiration))
	res := <-f.ResultChan()
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestConnEvents(t *testing.T) {
	rw := newChanRW(1)
	conn := NewConn(rw)
	events := make(chan fx.Message, 1)
	conn.Events = func(msg fx.Message) { events <- msg }
	go conn.Run(context.Background())
	defer close(rw.in)

	typed, err := msgs.TypedFrom(&msgs.LayerStateChanged{Active: []uint32{1, 0}})
	require.NoError(t, err)
	data, err := typed.Encode()
	require.NoError(t, err)
	rw.in <- data

	select {
	case msg := <-events:
		assert.Equal(t, []uint32{1, 0}, msg.(*msgs.LayerStateChanged).Active)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSessionsBroadcast(t *testing.T) {
	var sessions Sessions
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := fx.NewLoop()
	ctx = loop.Context(ctx)

	var outs []chan []byte
	for n := 0; n < 2; n++ {
		rw := newChanRW(0)
		outs = append(outs, rw.out)
		go sessions.Serve(ctx, rw)
	}
	require.Eventually(t, func() bool { return sessions.Len() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, sessions.SendEvent(ctx, &msgs.LayerStateChanged{Active: []uint32{0}}))
	for _, out := range outs {
		typed, err := msgs.DecodeTyped(<-out)
		require.NoError(t, err)
		assert.Equal(t, msgs.LayerStateChangedTypeID, typed.TypeId)
	}
	cancel()
	require.Eventually(t, func() bool { return sessions.Len() == 0 }, time.Second, time.Millisecond)
}
