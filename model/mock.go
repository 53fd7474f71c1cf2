package model

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/tshapedconsultant/datateam/core"
)

// MockBackend is a scripted Backend for tests and offline demos. Responses
// are consumed in FIFO order; once the script is exhausted it falls back to
// a canned reply. It records every request it receives.
type MockBackend struct {
	mu       sync.Mutex
	steps    []mockStep
	requests []Request
}

type mockStep struct {
	message    core.Message
	structured json.RawMessage
	err        error
}

// NewMockBackend creates an empty mock; use the Enqueue helpers to script it.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// EnqueueText scripts a plain assistant text response.
func (m *MockBackend) EnqueueText(text string) {
	m.enqueue(mockStep{message: core.NewAIMessage(text)})
}

// EnqueueMessage scripts an arbitrary assistant message.
func (m *MockBackend) EnqueueMessage(msg core.Message) {
	m.enqueue(mockStep{message: msg})
}

// EnqueueToolCall scripts an assistant turn requesting a single tool call
// and returns the generated call id.
func (m *MockBackend) EnqueueToolCall(name string, args map[string]any) string {
	id := "call_" + uuid.NewString()
	m.enqueue(mockStep{message: core.Message{
		Role:      core.RoleAI,
		ToolCalls: []core.ToolCall{{ID: id, Name: name, Args: args}},
	}})
	return id
}

// EnqueueStructured scripts a structured (schema-constrained) response.
func (m *MockBackend) EnqueueStructured(raw string) {
	m.enqueue(mockStep{structured: json.RawMessage(raw)})
}

// EnqueueError scripts a backend failure.
func (m *MockBackend) EnqueueError(err error) {
	m.enqueue(mockStep{err: err})
}

func (m *MockBackend) enqueue(step mockStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
}

// Requests returns a copy of all requests received so far.
func (m *MockBackend) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Complete implements Backend.
func (m *MockBackend) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.steps) == 0 {
		m.mu.Unlock()
		if req.Schema != nil {
			return Response{Structured: json.RawMessage(`{}`)}, nil
		}
		return Response{Message: core.NewAIMessage("mock response")}, nil
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()

	if step.err != nil {
		return Response{}, step.err
	}
	if step.structured != nil {
		return Response{Structured: step.structured}, nil
	}
	return Response{Message: step.message}, nil
}

// Info implements Backend.
func (m *MockBackend) Info() Info {
	return Info{Name: "mock", Provider: "mock", SupportsTools: true}
}
