package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
// Blocking I/O (carriers, brokers) lives in Runnables, never in Tasks.
type Runnable interface {
	Run(context.Context) error
}

// Message defines the abstract message flowing through a cycle.
type Message interface {
	// NewMessage creates an empty message.
	NewMessage() Message
}

// Task is one cooperatively scheduled unit of work. Control is invoked
// once per cycle and must return after a bounded amount of work.
type Task interface {
	Control(Cycle) error
}

// TaskFunc is the func form of Task.
type TaskFunc func(Cycle) error

// Control implements Task.
func (f TaskFunc) Control(c Cycle) error {
	return f(c)
}

// Clock provides the time for a cycle.
type Clock interface {
	Now() time.Time
}

// ClockFunc is the func form of Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// TimeSource provides the time of the current cycle.
type TimeSource interface {
	Time() time.Time
}

// Cycle provides the context of the current loop iteration.
type Cycle interface {
	TimeSource
	// Context retrieves context.Context.
	Context() context.Context
	// PriorityLevel gets the current priority level.
	PriorityLevel() int
	// Seq is the number of the cycle, starting from 1.
	Seq() uint64
	// Messages retrieves all messages collected when
	// this cycle starts, plus those added by earlier tasks.
	Messages() MessageStore
	// PostRun injects post-run one-shot hooks at current
	// priority level. If called in post-run hooks, new hooks
	// are installed for next cycle.
	PostRun(hooks ...Task)

	LoopControl
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 16

// Predefined priority levels.
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1

	// PrLvScan is where inputs are polled and debounced.
	PrLvScan = PrLvHigh
	// PrLvLink is where split link traffic is handled.
	PrLvLink = PrLvHigh + 2
	// PrLvResolve is where input events are resolved into actions.
	PrLvResolve = PrLvNormal
	// PrLvOutput is where resolved actions become host reports.
	PrLvOutput = PrLvLow
	// PrLvPostProc is for status, indicators and publishing.
	PrLvPostProc = PrLvIdle - 1
)

// LoopControl exposes access to the loop from outside a cycle.
type LoopControl interface {
	// PreRunAt injects one-shot pre-run task hooks at
	// specified priority level.
	PreRunAt(priorityLevel int, tasks ...Task)
	// PostRunAt injects one-shot post-run task hooks at
	// specified priority level.
	PostRunAt(priorityLevel int, tasks ...Task)
	// PostMessage enqueues the message for the next cycle.
	PostMessage(Message)
	// TriggerNext schedules the next cycle to be executed
	// immediately after the current one.
	TriggerNext()
}

// MessageStore provides read/write access to a list of messages.
type MessageStore interface {
	// ProcessMessages uses a processor to process all messages.
	ProcessMessages(MessageProcessor)

	MessageAppender
}

// MessageAppender appends message to store.
type MessageAppender interface {
	// AddMessages appends messages to the store of the current cycle,
	// visible to tasks at the same or lower priority.
	AddMessages(msgs ...Message)
}

// MessageProcessor is used by MessageStore to process messages.
type MessageProcessor interface {
	ProcessMessage(MessageProcessingContext)
}

// ProcessMessageFunc is the func form of MessageProcessor.
type ProcessMessageFunc func(MessageProcessingContext)

// ProcessMessage implements MessageProcessor.
func (f ProcessMessageFunc) ProcessMessage(mc MessageProcessingContext) {
	f(mc)
}

// MessageProcessingContext provides context for current message.
type MessageProcessingContext interface {
	// CurrentMessage gets the current message being processed.
	CurrentMessage() Message
	// MessageTaken indicates the message has been processed and
	// should be removed from store.
	MessageTaken()
	// StopProcessing indicates no need to examine further messages.
	StopProcessing()

	MessageAppender
}
