package core

// Role identifies the author category of a message.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
	RoleTool  Role = "tool"
)

// ToolCall is a tool invocation requested by the model. Args holds the
// already-decoded argument object.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one entry in the conversation timeline. Messages are value
// types and are never mutated after construction; state updates append new
// messages instead.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// NewHumanMessage creates a message authored by the end user.
func NewHumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// NewAIMessage creates an assistant-authored message.
func NewAIMessage(content string) Message {
	return Message{Role: RoleAI, Content: content}
}

// NewToolMessage creates a tool-result message keyed to the call that
// produced it.
func NewToolMessage(content, toolCallID string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// HasToolCalls reports whether the message requests tool invocations.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
