package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the default cycle cadence (1 kHz scan).
const DefaultInterval = time.Millisecond

// Loop runs prioritized tasks cooperatively, one cycle per tick.
type Loop struct {
	Interval time.Duration
	Clock    Clock

	tasks [PriorityLevels]taskList

	runners []Runnable

	messages messageList
	lock     sync.Mutex
	seq      uint64

	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopCtl struct {
	*Loop
}

type cycle struct {
	loopCtl
	ctx           context.Context
	time          time.Time
	seq           uint64
	priorityLevel int
	messages      messageList
}

type messageList struct {
	head *messageItem
	tail *messageItem
}

type messageItem struct {
	msg  Message
	next *messageItem
}

func (l *messageList) append(item *messageItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
}

func (l *messageList) splice(src *messageList) {
	l.head, l.tail = src.head, src.tail
	src.head, src.tail = nil, nil
}

func (l *messageList) concat(lst *messageList) {
	if lst.head == nil {
		return
	}
	if l.head == nil {
		l.head = lst.head
	} else {
		l.tail.next = lst.head
	}
	l.tail = lst.tail
}

type taskList struct {
	preHooks  []Task
	tasks     []Task
	postHooks []Task
	lock      sync.Mutex
}

var (
	loopCtxKey = &Loop{}
)

// LoopCtlFrom gets LoopControl from context passed to Runnables.
func LoopCtlFrom(ctx context.Context) LoopControl {
	return ctx.Value(loopCtxKey).(LoopControl)
}

// CycleFrom gets the Cycle from a context created inside a cycle.
func CycleFrom(ctx context.Context) Cycle {
	return ctx.Value(loopCtxKey).(Cycle)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval, Clock: SystemClock}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddTask registers tasks to the loop.
func (l *Loop) AddTask(priorityLevel int, tasks ...Task) *Loop {
	lst := &l.tasks[priorityLevel]
	lst.tasks = append(lst.tasks, tasks...)
	for _, task := range tasks {
		if runner, ok := task.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}

	runner := NewRunnerWith(l.Context(ctx))
	runner.Go(l.runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.RunCycle(ctx)
		case <-l.wakeUpCh:
			l.RunCycle(ctx)
		}
	}
}

// Context derives the context handed to Runnables of this loop.
func (l *Loop) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, loopCtxKey, &loopCtl{l})
}

// PreRunAt implements LoopControl.
func (l *Loop) PreRunAt(priorityLevel int, hooks ...Task) {
	lst := &l.tasks[priorityLevel]
	lst.lock.Lock()
	lst.preHooks = append(lst.preHooks, hooks...)
	lst.lock.Unlock()
}

// PostRunAt implements LoopControl.
func (l *Loop) PostRunAt(priorityLevel int, hooks ...Task) {
	lst := &l.tasks[priorityLevel]
	lst.lock.Lock()
	lst.postHooks = append(lst.postHooks, hooks...)
	lst.lock.Unlock()
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages.append(&messageItem{msg: msg})
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	if l.wakeUpCh == nil {
		return
	}
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// RunCycle runs a single cycle over all priority levels.
// Run calls it on every tick; tests call it directly.
func (l *Loop) RunCycle(ctx context.Context) {
	clock := l.Clock
	if clock == nil {
		clock = SystemClock
	}
	c := &cycle{loopCtl: loopCtl{l}, time: clock.Now()}
	l.lock.Lock()
	l.seq++
	c.seq = l.seq
	c.messages.splice(&l.messages)
	l.lock.Unlock()
	c.ctx = context.WithValue(ctx, loopCtxKey, c)
	for i := 0; i < PriorityLevels; i++ {
		c.priorityLevel = i
		l.tasks[i].run(c)
	}
}

func (c *cycle) Context() context.Context {
	return c.ctx
}

func (c *cycle) Time() time.Time {
	return c.time
}

func (c *cycle) Seq() uint64 {
	return c.seq
}

func (c *cycle) PriorityLevel() int {
	return c.priorityLevel
}

func (c *cycle) Messages() MessageStore {
	return c
}

func (c *cycle) PostRun(hooks ...Task) {
	c.PostRunAt(c.priorityLevel, hooks...)
}

type messageContext struct {
	cycle *cycle
	item  *messageItem
	taken bool
	stop  bool
}

func (m *messageContext) CurrentMessage() Message     { return m.item.msg }
func (m *messageContext) MessageTaken()               { m.taken = true }
func (m *messageContext) StopProcessing()             { m.stop = true }
func (m *messageContext) AddMessages(msgs ...Message) { m.cycle.AddMessages(msgs...) }

func (c *cycle) ProcessMessages(proc MessageProcessor) {
	var msgs, remains messageList
	msgs.splice(&c.messages)
	for msgs.head != nil {
		mctx := &messageContext{cycle: c, item: msgs.head}
		msgs.head = msgs.head.next
		mctx.item.next = nil
		proc.ProcessMessage(mctx)
		if !mctx.taken {
			remains.append(mctx.item)
		}
		if mctx.stop {
			if msgs.head == nil {
				msgs.tail = nil
			}
			remains.concat(&msgs)
			break
		}
	}
	remains.concat(&c.messages)
	c.messages = remains
}

func (c *cycle) AddMessages(msgs ...Message) {
	for _, msg := range msgs {
		c.messages.append(&messageItem{msg: msg})
	}
}

func (t *taskList) run(c *cycle) {
	t.lock.Lock()
	tasks := t.preHooks
	t.preHooks = nil
	t.lock.Unlock()
	runTasks(c, tasks)
	runTasks(c, t.tasks)
	t.lock.Lock()
	tasks, t.postHooks = t.postHooks, nil
	t.lock.Unlock()
	runTasks(c, tasks)
}

func runTasks(c *cycle, tasks []Task) {
	for _, task := range tasks {
		if err := task.Control(c); err != nil {
			glog.Errorf("task error at level %d: %v", c.priorityLevel, err)
		}
	}
}
