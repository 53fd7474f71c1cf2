// Package model defines the backend abstraction the agents drive: a single
// synchronous Complete call covering plain generation, tool calling and
// schema-constrained structured output. Provider adapters live in the
// subpackages; MockBackend serves tests and offline demos.
package model

import (
	"context"
	"encoding/json"

	"github.com/tshapedconsultant/datateam/core"
)

// ToolDefinition declares a callable function to the model. Parameters is a
// JSON-schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ResponseSchema asks the backend for a structured response conforming to
// the given JSON-schema object instead of free text.
type ResponseSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is the normalized backend input produced by agents.
type Request struct {
	Instructions string
	Messages     []core.Message
	Tools        []ToolDefinition
	Schema       *ResponseSchema
}

// Response is the backend output. Message carries the assistant turn
// (possibly with tool calls); Structured is set instead when the request
// carried a Schema.
type Response struct {
	Message    core.Message
	Structured json.RawMessage
}

// Info describes a backend implementation.
type Info struct {
	Name          string
	Provider      string
	SupportsTools bool
}

// Backend is the minimal interface agents use to generate responses.
type Backend interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Info() Info
}
