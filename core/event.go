package core

import "time"

// EventType categorizes stream events.
type EventType string

const (
	EventStart    EventType = "start"
	EventDecision EventType = "decision"
	EventAction   EventType = "action"
	EventFinish   EventType = "finish"
	EventError    EventType = "error"
)

// StreamEvent is one progress report on a run's event stream. A run emits
// exactly one Start, one event per executed node (Decision for the
// supervisor, Action for a worker), and one Finish or Error.
type StreamEvent struct {
	Type                EventType `json:"type"`
	Time                time.Time `json:"time"`
	Agent               string    `json:"agent,omitempty"`
	Data                string    `json:"data,omitempty"`
	Decision            string    `json:"decision,omitempty"`
	Reasoning           string    `json:"reasoning,omitempty"`
	Output              string    `json:"output,omitempty"`
	Error               string    `json:"error,omitempty"`
	IterationCount      int       `json:"iteration_count,omitempty"`
	FinalIterationCount int       `json:"final_iteration_count,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// NewStartEvent announces the beginning of a run.
func NewStartEvent(query string) StreamEvent {
	return StreamEvent{
		Type: EventStart,
		Time: time.Now().UTC(),
		Data: "Workflow started: " + query,
	}
}

// NewDecisionEvent reports the supervisor's routing decision after its delta
// has been merged into state.
func NewDecisionEvent(state WorkflowState) StreamEvent {
	return StreamEvent{
		Type:           EventDecision,
		Time:           time.Now().UTC(),
		Agent:          "Supervisor",
		Decision:       state.NextAgent,
		Reasoning:      state.Reasoning,
		IterationCount: state.IterationCount,
		LastError:      state.LastError,
	}
}

// NewActionEvent reports a worker's contribution; Output carries the content
// of the newest message after the worker's delta was merged and the window
// policy applied.
func NewActionEvent(agent string, state WorkflowState) StreamEvent {
	return StreamEvent{
		Type:           EventAction,
		Time:           time.Now().UTC(),
		Agent:          agent,
		Output:         state.LastMessage().Content,
		IterationCount: state.IterationCount,
		LastError:      state.LastError,
	}
}

// NewFinishEvent closes a run that reached FINISH.
func NewFinishEvent(state WorkflowState) StreamEvent {
	return StreamEvent{
		Type:                EventFinish,
		Time:                time.Now().UTC(),
		Data:                "Workflow completed successfully",
		FinalIterationCount: state.IterationCount,
	}
}

// NewErrorEvent closes a run that failed inside the engine itself.
func NewErrorEvent(msg string) StreamEvent {
	return StreamEvent{
		Type:  EventError,
		Time:  time.Now().UTC(),
		Error: msg,
	}
}
