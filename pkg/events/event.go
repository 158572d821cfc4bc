// Package events defines the engine's lifecycle event stream (§4.3, §6):
// the typed events a TUI, log consumer, or remote listener observes while
// a workflow runs.
package events

import (
	"sync"
	"time"
)

// EventType is the stable discriminator for an ExecutionEvent.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"

	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"

	EventValidationStarted   EventType = "validation_started"
	EventValidationCompleted EventType = "validation_completed"
	EventPreflightStarted    EventType = "preflight_started"
	EventPreflightCompleted  EventType = "preflight_completed"

	EventLoopIterationStarted   EventType = "loop_iteration_started"
	EventLoopIterationCompleted EventType = "loop_iteration_completed"
)

// ExecutionEvent is a single lifecycle event. Every event carries a name
// and a timestamp. Step and loop-iteration events also carry a hierarchical
// step path; workflow, preflight and validation events carry the workflow
// name and no step path of their own (a subworkflow's are given the
// subworkflow step's path by Prefixed). The remaining fields are populated
// according to Type.
type ExecutionEvent struct {
	Type EventType `json:"type"`

	// WorkflowName/StepName identify the subject; StepPath is the
	// "/"-joined hierarchical identifier from §4.3.
	WorkflowName string `json:"workflow_name,omitempty"`
	StepName     string `json:"step_name,omitempty"`
	StepType     string `json:"step_type,omitempty"`
	StepPath     string `json:"step_path,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	TotalSteps int `json:"total_steps,omitempty"`

	Success    bool  `json:"success,omitempty"`
	DurationMS int64 `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`

	// Loop iteration fields (§4.9).
	IterationIndex   int    `json:"iteration_index,omitempty"`
	TotalIterations  int    `json:"total_iterations,omitempty"`
	ItemLabel        string `json:"item_label,omitempty"`
	ParentStepName   string `json:"parent_step_name,omitempty"`
}

// Listener observes the execution event stream in real time.
type Listener interface {
	StartListening(events <-chan ExecutionEvent)
	StopListening()
}

// NoopListener drains and discards every event sent on its channel.
type NoopListener struct{}

func (NoopListener) StartListening(events <-chan ExecutionEvent) {
	go func() {
		for range events {
		}
	}()
}

func (NoopListener) StopListening() {}

// Recorder is a concurrency-safe in-memory event log, e.g. the source of a
// loop step's own `events` output field (§4.9) and of the remote server's
// event snapshot.
type Recorder struct {
	mu     sync.Mutex
	events []ExecutionEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(e ExecutionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []ExecutionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ExecutionEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Sink is the callback shape the executor and control-flow handlers emit
// through (§4.3 step 3/5). A nil Sink is allowed for headless runs: the
// engine drops events sent to it, and Prefixed returns it unchanged.
type Sink func(ExecutionEvent)

// Chan adapts a channel into a Sink. Each event is a blocking send on ch,
// so the channel needs a receiver (or buffer room) for as long as events
// are emitted.
func Chan(ch chan<- ExecutionEvent) Sink {
	return func(e ExecutionEvent) { ch <- e }
}

// RecorderSink adapts a Recorder into a Sink.
func RecorderSink(r *Recorder) Sink {
	return func(e ExecutionEvent) { r.Record(e) }
}

// Prefixed wraps a Sink so every event's StepPath gains a "<prefix>/"
// prefix — used by the subworkflow handler (§4.10) to place a nested
// workflow's events under the subworkflow step's path.
func Prefixed(sink Sink, prefix string) Sink {
	if prefix == "" || sink == nil {
		return sink
	}
	return func(e ExecutionEvent) {
		if e.StepPath == "" {
			e.StepPath = prefix
		} else {
			e.StepPath = prefix + "/" + e.StepPath
		}
		sink(e)
	}
}
