// Package agent implements the roles of the data team: the Worker executor
// protocol shared by all specialists, the Supervisor router, and the
// concrete Data_Analyst and Business_Strategist constructors.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/logging"
	"github.com/tshapedconsultant/datateam/model"
	"github.com/tshapedconsultant/datateam/tool"
)

// StructuredOutput makes a worker request schema-constrained responses and
// serialize them into a prefixed envelope ("STRATEGY: {json}").
type StructuredOutput struct {
	Prefix string
	Schema model.ResponseSchema
}

// WorkerOptions configure a Worker.
type WorkerOptions struct {
	// Tools available to the worker. The first tool is the target of a
	// forced invocation when RequireTool is set.
	Tools []tool.Tool
	// RequireTool makes a declined tool call non-optional: the worker
	// synthesizes an invocation of its first tool instead.
	RequireTool bool
	// FallbackArgs builds the arguments for a forced invocation from the
	// user query.
	FallbackArgs func(query string) map[string]any
	// Structured switches the worker to schema-constrained output.
	Structured *StructuredOutput
	// Marker is the sentinel prefix that signals this worker's deliverable
	// is present (scanned by the supervisor's completion detection).
	Marker string
	// ExtractsData tells the engine to scan this worker's messages for a
	// "DATA: {...}" payload.
	ExtractsData bool
	// PreservePrefix forces the final response to retain the Marker prefix
	// when the tool result carried one but the follow-up model turn
	// dropped it.
	PreservePrefix bool

	Logger logging.Logger
}

// Worker is a specialist agent driven by the supervisor. Invoke runs the
// full executor protocol: model call, tool dispatch, follow-up model call.
type Worker struct {
	name         string
	instructions string
	backend      model.Backend
	tools        []tool.Tool
	toolIndex    map[string]tool.Tool
	opts         WorkerOptions
	logger       logging.Logger
}

// NewWorker creates a worker with the given role name and system
// instructions.
func NewWorker(name, instructions string, backend model.Backend, optFns ...func(o *WorkerOptions)) *Worker {
	opts := WorkerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	index := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		index[t.Name()] = t
	}
	return &Worker{
		name:         name,
		instructions: instructions,
		backend:      backend,
		tools:        opts.Tools,
		toolIndex:    index,
		opts:         opts,
		logger:       opts.Logger,
	}
}

// Name returns the worker's routing name.
func (w *Worker) Name() string { return w.name }

// Marker returns the worker's completion sentinel ("" when it has none).
func (w *Worker) Marker() string { return w.opts.Marker }

// ExtractsData reports whether the engine should mine this worker's output
// for a structured DATA payload.
func (w *Worker) ExtractsData() bool { return w.opts.ExtractsData }

// Invoke runs the worker against the current state and returns the messages
// it contributes. It never returns an error: any unrecoverable failure is
// reported as a single "ERROR: ..." assistant message so the supervisor can
// route around it.
func (w *Worker) Invoke(ctx context.Context, state core.WorkflowState) []core.Message {
	messages, err := w.invoke(ctx, state)
	if err != nil {
		w.logger.Error("worker.invoke.failed", "agent", w.name, "error", err.Error())
		return []core.Message{core.NewAIMessage(
			fmt.Sprintf("ERROR: %s encountered an error: %v", w.name, err),
		)}
	}
	return messages
}

func (w *Worker) invoke(ctx context.Context, state core.WorkflowState) ([]core.Message, error) {
	if w.opts.Structured != nil {
		return w.invokeStructured(ctx, state)
	}

	resp, err := w.backend.Complete(ctx, model.Request{
		Instructions: w.instructions,
		Messages:     state.Messages,
		Tools:        w.toolDefinitions(),
	})
	if err != nil {
		return nil, err
	}
	result := resp.Message

	if !result.HasToolCalls() {
		if w.opts.RequireTool && len(w.tools) > 0 {
			w.logger.Info("worker.forcing_tool", "agent", w.name, "tool", w.tools[0].Name())
			return w.invokeForced(ctx, state, result)
		}
		return []core.Message{result}, nil
	}

	messages := []core.Message{result}
	toolMessages := w.executeToolCalls(ctx, state, result.ToolCalls)
	messages = append(messages, toolMessages...)

	// One follow-up model turn to interpret the tool results. If that turn
	// wants yet more tools, stop here; the supervisor will route back if
	// anything is missing.
	followup, err := w.backend.Complete(ctx, model.Request{
		Instructions: w.instructions,
		Messages:     concat(state.Messages, messages),
		Tools:        w.toolDefinitions(),
	})
	if err != nil {
		return nil, err
	}
	final := followup.Message
	if w.opts.PreservePrefix {
		final = w.preserveMarker(final, toolMessages)
	}
	if final.HasToolCalls() {
		w.logger.Warn("worker.tool_recursion_stopped", "agent", w.name)
		return messages, nil
	}
	return append(messages, final), nil
}

// invokeForced synthesizes the tool invocation a RequireTool worker declined
// to make, then runs the follow-up model turn over the synthetic result.
func (w *Worker) invokeForced(ctx context.Context, state core.WorkflowState, result core.Message) ([]core.Message, error) {
	target := w.tools[0]
	query := state.LatestHumanQuery()

	args := map[string]any{}
	if w.opts.FallbackArgs != nil {
		args = w.opts.FallbackArgs(query)
	}

	out, err := target.Call(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", target.Name(), err)
	}
	toolMsg := core.NewToolMessage(out, forcedCallID)
	messages := []core.Message{result, toolMsg}

	followup, err := w.backend.Complete(ctx, model.Request{
		Instructions: w.instructions,
		Messages:     concat(state.Messages, messages),
		Tools:        w.toolDefinitions(),
	})
	if err != nil {
		return nil, err
	}
	final := followup.Message
	if w.opts.PreservePrefix {
		final = w.preserveMarker(final, []core.Message{toolMsg})
	}
	if final.HasToolCalls() {
		w.logger.Warn("worker.tool_recursion_stopped", "agent", w.name)
		return messages, nil
	}
	return append(messages, final), nil
}

// forcedCallID keys synthetic tool results produced by invokeForced.
const forcedCallID = "forced_call"

// invokeStructured asks the backend for a schema-constrained response and
// serializes it into the worker's prefixed envelope.
func (w *Worker) invokeStructured(ctx context.Context, state core.WorkflowState) ([]core.Message, error) {
	resp, err := w.backend.Complete(ctx, model.Request{
		Instructions: w.instructions,
		Messages:     state.Messages,
		Schema:       &w.opts.Structured.Schema,
	})
	if err != nil {
		return nil, err
	}
	content, err := core.BuildEnvelope(w.opts.Structured.Prefix, resp.Structured)
	if err != nil {
		return nil, err
	}
	return []core.Message{core.NewAIMessage(content)}, nil
}

// executeToolCalls dispatches the model's tool calls in order. Failures and
// unknown tools become error-carrying tool messages keyed by the call id so
// the follow-up turn can see them.
func (w *Worker) executeToolCalls(ctx context.Context, state core.WorkflowState, calls []core.ToolCall) []core.Message {
	query := state.LatestHumanQuery()
	out := make([]core.Message, 0, len(calls))
	for _, call := range calls {
		target, ok := w.toolIndex[call.Name]
		if !ok {
			w.logger.Warn("worker.tool_not_found", "agent", w.name, "tool", call.Name)
			out = append(out, core.NewToolMessage(
				fmt.Sprintf("ERROR: Tool %s not available", call.Name), call.ID))
			continue
		}

		args := make(map[string]any, len(call.Args)+1)
		for k, v := range call.Args {
			args[k] = v
		}
		if declaresUserQuery(target) {
			args["user_query"] = query
		}

		result, err := target.Call(ctx, args)
		if err != nil {
			w.logger.Error("worker.tool_failed", "agent", w.name, "tool", call.Name, "error", err.Error())
			out = append(out, core.NewToolMessage(
				fmt.Sprintf("ERROR: Tool execution failed: %v", err), call.ID))
			continue
		}
		out = append(out, core.NewToolMessage(result, call.ID))
	}
	return out
}

// preserveMarker restores the worker's sentinel prefix: when a tool result
// carried the marker but the follow-up turn dropped it, the final content is
// rebuilt from the tool result's marker section.
func (w *Worker) preserveMarker(final core.Message, toolMessages []core.Message) core.Message {
	marker := w.opts.Marker
	if marker == "" || strings.Contains(final.Content, marker) {
		return final
	}
	for _, msg := range toolMessages {
		idx := strings.Index(msg.Content, marker)
		if idx < 0 {
			continue
		}
		section := msg.Content[idx+len(marker):]
		if cut := strings.Index(section, "|"); cut >= 0 {
			section = section[:cut]
		}
		final.Content = marker + " " + strings.TrimSpace(section)
		w.logger.Info("worker.marker_preserved", "agent", w.name, "marker", marker)
		break
	}
	return final
}

func (w *Worker) toolDefinitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(w.tools))
	for _, t := range w.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// declaresUserQuery reports whether the tool's schema accepts a user_query
// argument.
func declaresUserQuery(t tool.Tool) bool {
	params := t.Parameters()
	if params == nil {
		return false
	}
	properties, ok := params["properties"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = properties["user_query"]
	return ok
}

func concat(a, b []core.Message) []core.Message {
	out := make([]core.Message, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
