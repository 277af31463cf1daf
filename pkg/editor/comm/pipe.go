package comm

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/editor/msgs"
	fx "github.com/robotalks/roba/pkg/framework"
)

// Pipe carries typed editor messages over a PacketReadWriter. Received
// messages go to Handler from the goroutine running the pipe.
type Pipe struct {
	ReadWriter PacketReadWriter
	Handler    msgs.TypedMsgHandler

	sendLock sync.Mutex
}

// NewPipe creates a Pipe with given PacketReadWriter.
func NewPipe(rw PacketReadWriter) *Pipe {
	return &Pipe{ReadWriter: rw}
}

// SendCommandMsg sends a command or a reply paired by seq.
func (p *Pipe) SendCommandMsg(msg fx.Message, seq uint32) error {
	return p.send(msg, "a command", (*msgs.Typed).IsCommand, func(t *msgs.Typed) { t.Sequence = seq })
}

// SendEventMsg sends an event.
func (p *Pipe) SendEventMsg(msg fx.Message) error {
	return p.send(msg, "an event", (*msgs.Typed).IsEvent, nil)
}

func (p *Pipe) send(msg fx.Message, kind string, is func(*msgs.Typed) bool, prepare func(*msgs.Typed)) error {
	typed, err := msgs.TypedFrom(msg)
	if err != nil {
		return err
	}
	if !is(typed) {
		return fmt.Errorf("message %T is not %s", msg, kind)
	}
	if prepare != nil {
		prepare(typed)
	}
	return p.SendTyped(typed)
}

// SendTyped writes an already wrapped message.
func (p *Pipe) SendTyped(typed *msgs.Typed) error {
	pkt, err := typed.Encode()
	if err != nil {
		return err
	}
	p.sendLock.Lock()
	defer p.sendLock.Unlock()
	return p.ReadWriter.WritePacket(pkt)
}

// Run implements Runnable. It returns on the first read, framing or
// handler error and closes the pipe.
func (p *Pipe) Run(ctx context.Context) error {
	defer p.Close()
	for {
		pkt, err := p.ReadWriter.ReadPacket()
		if err != nil {
			return err
		}
		if err = p.receive(ctx, pkt); err != nil {
			return err
		}
	}
}

func (p *Pipe) receive(ctx context.Context, pkt []byte) error {
	typed, err := msgs.DecodeTyped(pkt)
	if err != nil {
		return err
	}
	msg, err := typed.Decode()
	if err == nil {
		if p.Handler == nil {
			return nil
		}
		return p.Handler.HandleTypedMsg(ctx, msg, typed)
	}
	glog.V(2).Infof("undecodable message: %v", err)
	// unknown events and replies are dropped, unknown commands still
	// get an answer so the sender doesn't wait forever.
	if !typed.IsCommand() || typed.IsReply() {
		return nil
	}
	return p.SendCommandMsg(msgs.NewCommandErr(err), typed.Sequence)
}

// Close closes the underlying ReadWriter if it's closable.
func (p *Pipe) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// AddToLoop implements LoopAdder.
func (p *Pipe) AddToLoop(loop *fx.Loop) {
	switch rw := p.ReadWriter.(type) {
	case fx.LoopAdder:
		loop.Add(rw)
	case fx.Runnable:
		loop.AddRunnable(rw)
	}
	loop.AddRunnable(p)
}
