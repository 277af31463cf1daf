package comm

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/msgs"
	fx "github.com/robotalks/roba/pkg/framework"
)

// Conn provides base implementation for editor.Conn using Pipe.
type Conn struct {
	Expiration time.Duration
	// Events receives events from the keyboard when set, otherwise
	// events are posted to the loop.
	Events func(fx.Message)

	pipe     Pipe
	seq      uint32
	commands list.List
	seqMap   map[uint32]*commandFuture
	lock     sync.Mutex
}

// DefaultCommandExpiration is the default expiration expecting a result.
const DefaultCommandExpiration = 1 * time.Second

// NewConn creates a Conn on a PacketReadWriter.
func NewConn(rw PacketReadWriter) *Conn {
	c := &Conn{}
	c.Init(rw)
	return c
}

// Init initializes Conn with defaults.
func (c *Conn) Init(rw PacketReadWriter) {
	c.Expiration = DefaultCommandExpiration
	c.pipe.ReadWriter = rw
	c.pipe.Handler = msgs.HandleTypedMsgFunc(c.handleTypedMsg)
	c.seqMap = make(map[uint32]*commandFuture)
}

// DoCommand implements editor.Conn.
func (c *Conn) DoCommand(msg fx.Message) editor.CommandFuture {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.seq++
	if c.seq == 0 {
		c.seq++
	}
	f := &commandFuture{
		seq:      c.seq,
		expireAt: time.Now().Add(c.Expiration),
		result:   make(chan editor.Result, 1),
	}
	if err := c.pipe.SendCommandMsg(msg, f.seq); err != nil {
		f.result <- editor.Result{Err: err}
		close(f.result)
		return f
	}
	f.elem = c.commands.PushBack(f)
	c.seqMap[f.seq] = f
	return f
}

// Run runs the pipe until the carrier ends.
func (c *Conn) Run(ctx context.Context) error {
	return c.pipe.Run(ctx)
}

// Close closes the underlying carrier.
func (c *Conn) Close() error {
	return c.pipe.Close()
}

// AddToLoop implements LoopAdder.
func (c *Conn) AddToLoop(l *fx.Loop) {
	l.Add(&c.pipe)
	l.AddTask(fx.PrLvIdle, fx.TaskFunc(c.purgeExpired))
}

func (c *Conn) handleTypedMsg(ctx context.Context, msg fx.Message, typed *msgs.Typed) error {
	if typed.IsEvent() {
		if fn := c.Events; fn != nil {
			fn(msg)
			return nil
		}
		loopCtl := fx.LoopCtlFrom(ctx)
		loopCtl.PostMessage(msg)
		loopCtl.TriggerNext()
		return nil
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	f := c.seqMap[typed.Sequence]
	if f == nil {
		return nil
	}
	c.commands.Remove(f.elem)
	delete(c.seqMap, typed.Sequence)
	result := editor.Result{Msg: msg}
	if cmdErr, ok := msg.(*msgs.CommandErr); ok {
		result.Err = cmdErr
	}
	f.result <- result
	close(f.result)
	return nil
}

func (c *Conn) purgeExpired(cycle fx.Cycle) error {
	c.PurgeExpired(cycle.Time())
	return nil
}

// PurgeExpired fails commands without a reply by now.
func (c *Conn) PurgeExpired(now time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for c.commands.Len() > 0 {
		elem := c.commands.Front()
		f := elem.Value.(*commandFuture)
		if f.expireAt.After(now) {
			break
		}
		c.commands.Remove(elem)
		delete(c.seqMap, f.seq)
		f.result <- editor.Result{Err: context.DeadlineExceeded}
		close(f.result)
	}
}

type commandFuture struct {
	seq      uint32
	expireAt time.Time
	elem     *list.Element
	result   chan editor.Result
}

func (c *commandFuture) ResultChan() <-chan editor.Result {
	return c.result
}
