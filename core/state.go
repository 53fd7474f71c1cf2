package core

// Finish is the terminal routing target. Routing NextAgent to Finish ends
// the workflow.
const Finish = "FINISH"

// WorkflowState is the single state container threaded through every node of
// a run. Each run owns its own state value; nodes never mutate it in place,
// they return a Delta that the engine merges into the next state value.
type WorkflowState struct {
	Messages       []Message      `json:"messages"`
	NextAgent      string         `json:"next_agent"`
	IterationCount int            `json:"iteration_count"`
	LastError      string         `json:"last_error,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	RawData        map[string]any `json:"raw_data,omitempty"`
}

// NewInitialState creates the state for a fresh run: the user query as the
// only message, all other fields zero.
func NewInitialState(query string) WorkflowState {
	return WorkflowState{Messages: []Message{NewHumanMessage(query)}}
}

// Delta is the partial state update returned by a node. Nil pointer fields
// leave the corresponding state field untouched. Messages, when non-nil,
// replaces the whole message list (nodes append to a copy of the current
// list and return the result). RawData is only applied when SetRawData is
// true, so a node can distinguish "no update" from "clear".
type Delta struct {
	Messages       []Message
	NextAgent      *string
	IterationCount *int
	LastError      *string
	Reasoning      *string
	RawData        map[string]any
	SetRawData     bool
}

// Merge applies delta to state field by field and returns the next state
// value. The inputs are not modified.
func Merge(state WorkflowState, delta Delta) WorkflowState {
	next := state
	if delta.Messages != nil {
		next.Messages = delta.Messages
	}
	if delta.NextAgent != nil {
		next.NextAgent = *delta.NextAgent
	}
	if delta.IterationCount != nil {
		next.IterationCount = *delta.IterationCount
	}
	if delta.LastError != nil {
		next.LastError = *delta.LastError
	}
	if delta.Reasoning != nil {
		next.Reasoning = *delta.Reasoning
	}
	if delta.SetRawData {
		next.RawData = delta.RawData
	}
	return next
}

// String returns a pointer to s, for use in Delta fields.
func String(s string) *string { return &s }

// Int returns a pointer to i, for use in Delta fields.
func Int(i int) *int { return &i }

// LastMessage returns the most recent message, or a zero Message when the
// timeline is empty.
func (s WorkflowState) LastMessage() Message {
	if len(s.Messages) == 0 {
		return Message{}
	}
	return s.Messages[len(s.Messages)-1]
}

// LatestHumanQuery returns the content of the most recent human message,
// falling back to the last message of any role.
func (s WorkflowState) LatestHumanQuery() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleHuman {
			return s.Messages[i].Content
		}
	}
	return s.LastMessage().Content
}
