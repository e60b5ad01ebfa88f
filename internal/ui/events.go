package ui

import "sync/atomic"

// EventKind tags a task event's shape (spec.md §4.15).
type EventKind string

const (
	EventTaskStarted       EventKind = "TaskStarted"
	EventTaskProgress      EventKind = "TaskProgress"
	EventTaskOutput        EventKind = "TaskOutput"
	EventTaskStepStarted   EventKind = "TaskStepStarted"
	EventTaskStepCompleted EventKind = "TaskStepCompleted"
	EventTaskStepFailed    EventKind = "TaskStepFailed"
	EventTaskCompleted     EventKind = "TaskCompleted"
	EventTaskFailed        EventKind = "TaskFailed"
	EventToolCallStarted   EventKind = "ToolCallStarted"
	EventToolCallCompleted EventKind = "ToolCallCompleted"
	EventSystemMessage     EventKind = "SystemMessage"
)

// TaskProgress is an EventTaskProgress's payload (spec.md §4.15:
// "TaskProgress{stage, current, total?}").
type TaskProgress struct {
	Stage   string
	Current int
	Total   *int
	Message string
}

// Event is one tagged task event, carrying the task id every variant
// requires for per-task ordering (spec.md §4.15).
type Event struct {
	Kind     EventKind
	TaskID   string
	Output   string
	Progress TaskProgress
	StepID   string
	StepType string
	Error    string
	Level    string
	Message  string
}

// EventChannel is the spec.md §4.15 multi-producer, single-consumer
// typed event channel. Send is non-blocking; on a full buffer the event
// is dropped and Dropped is incremented rather than blocking the
// producer (spec.md §4.15: "Events are best-effort: send is non-blocking,
// receiver drops on overflow with an audit counter").
//
// Grounded on original `crates/merlin-routing/src/{ui,user_interface}`
// (UiEvent enum / UiChannel sender this type mirrors); the teacher itself
// has no task-event channel to ground on, only the standalone indexing
// ui.ProgressEvent this package already carries for `internal/ui`'s
// original teacher purpose.
type EventChannel struct {
	events  chan Event
	dropped atomic.Int64
}

// NewEventChannel constructs an EventChannel with the given buffer size.
func NewEventChannel(buffer int) *EventChannel {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventChannel{events: make(chan Event, buffer)}
}

// Events returns the consumer-side receive channel.
func (c *EventChannel) Events() <-chan Event { return c.events }

// Dropped reports how many events have been discarded due to a full
// buffer.
func (c *EventChannel) Dropped() int64 { return c.dropped.Load() }

// Close signals the consumer that no further events will be sent. Callers
// own the channel's lifetime (spec.md §4.15 doesn't scope this — the
// channel outlives any single ProcessRequest call, since a long-running
// session may drive many requests over one channel); a CLI session that
// owns exactly one channel per process calls this once at shutdown.
func (c *EventChannel) Close() { close(c.events) }

// Sender is a cloneable handle producers hold to emit events (spec.md
// §4.15: "Producers: any core component holding a cloneable sender").
// Copying a Sender by value is the documented clone operation since the
// underlying channel and counter are reference types.
type Sender struct {
	ch      chan Event
	dropped *atomic.Int64
}

// Sender returns a new cloneable Sender bound to this EventChannel.
func (c *EventChannel) Sender() Sender {
	return Sender{ch: c.events, dropped: &c.dropped}
}

// Send emits e without blocking. A full channel drops the event and
// increments the audit counter.
func (s Sender) Send(e Event) {
	if s.ch == nil {
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}
