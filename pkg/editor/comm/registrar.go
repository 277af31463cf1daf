package comm

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/msgs"
	fx "github.com/robotalks/roba/pkg/framework"
)

// Registrar is the keyboard end of a Pipe. Commands from the editor are
// posted to the loop as editor.CommandMsg and answered through Done.
type Registrar struct {
	pipe Pipe
}

// NewRegistrar creates a Registrar on a PacketReadWriter.
func NewRegistrar(rw PacketReadWriter) *Registrar {
	r := &Registrar{}
	r.Init(rw)
	return r
}

// Init binds the Registrar to rw, for Registrars embedded by value.
func (r *Registrar) Init(rw PacketReadWriter) {
	r.pipe.ReadWriter = rw
	r.pipe.Handler = msgs.HandleTypedMsgFunc(r.received)
}

func (r *Registrar) received(ctx context.Context, msg fx.Message, typed *msgs.Typed) error {
	if typed.IsReply() {
		// keyboards don't send commands.
		glog.V(2).Infof("stray reply %08x seq %d", typed.TypeId, typed.Sequence)
		return nil
	}
	if typed.IsCommand() {
		msg = &editor.CommandMsg{Command: &command{seq: typed.Sequence, msg: msg, pipe: &r.pipe}}
	}
	loopCtl := fx.LoopCtlFrom(ctx)
	loopCtl.PostMessage(msg)
	loopCtl.TriggerNext()
	return nil
}

// SendEvent implements editor.Registrar.
func (r *Registrar) SendEvent(ctx context.Context, msg fx.Message) error {
	return r.pipe.SendEventMsg(msg)
}

// Run runs the pipe until the carrier ends.
func (r *Registrar) Run(ctx context.Context) error {
	return r.pipe.Run(ctx)
}

// AddToLoop implements LoopAdder.
func (r *Registrar) AddToLoop(loop *fx.Loop) {
	loop.Add(&r.pipe)
}

type command struct {
	seq  uint32
	msg  fx.Message
	pipe *Pipe
}

func (c *command) Msg() fx.Message { return c.msg }

func (c *command) Done(reply fx.Message) error {
	return c.pipe.SendCommandMsg(reply, c.seq)
}

// RegistrarMux fans events out to every Registrar of a keyboard.
type RegistrarMux struct {
	Registrars []editor.Registrar
}

// Add adds more registrars.
func (r *RegistrarMux) Add(regs ...editor.Registrar) {
	r.Registrars = append(r.Registrars, regs...)
}

// SendEvent implements editor.Registrar. A failing registrar doesn't
// keep the event from the others.
func (r *RegistrarMux) SendEvent(ctx context.Context, msg fx.Message) error {
	var errs fx.AggregatedError
	for _, reg := range r.Registrars {
		errs.Add(reg.SendEvent(ctx, msg))
	}
	return errs.Aggregate()
}

// AddToLoop implements LoopAdder.
func (r *RegistrarMux) AddToLoop(l *fx.Loop) {
	for _, reg := range r.Registrars {
		if adder, ok := reg.(fx.LoopAdder); ok {
			l.Add(adder)
		}
	}
}

// UnsupportedCommands answers commands no task took in the cycle.
type UnsupportedCommands struct{}

// Control implements Task.
func (c *UnsupportedCommands) Control(cycle fx.Cycle) error {
	cycle.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		cmdMsg, ok := mc.CurrentMessage().(*editor.CommandMsg)
		if !ok {
			return
		}
		mc.MessageTaken()
		if err := cmdMsg.Command.Done(msgs.NewCommandErr(msgs.ErrUnsupportedCommand)); err != nil {
			glog.Warningf("reply unsupported %T: %v", cmdMsg.Command.Msg(), err)
		}
	}))
	return nil
}

// AddToLoop implements LoopAdder.
func (c *UnsupportedCommands) AddToLoop(loop *fx.Loop) {
	loop.AddTask(fx.PrLvIdle, c)
}
