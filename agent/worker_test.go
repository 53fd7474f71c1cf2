package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/model"
	"github.com/tshapedconsultant/datateam/tool"
)

// recordingTool captures the arguments of every call and returns a fixed
// result.
func recordingTool(name, result string, calls *[]map[string]any) tool.Tool {
	return tool.NewFunctionTool(
		name,
		"test tool",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code":       map[string]any{"type": "string"},
				"user_query": map[string]any{"type": "string"},
			},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			*calls = append(*calls, args)
			return result, nil
		},
	)
}

func TestWorkerPlainResponse(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueText("plain answer")
	worker := NewWorker("Echo", "echo things", backend)

	msgs := worker.Invoke(context.Background(), core.NewInitialState("hello"))

	require.Len(t, msgs, 1)
	assert.Equal(t, "plain answer", msgs[0].Content)
	assert.Equal(t, core.RoleAI, msgs[0].Role)
}

func TestWorkerToolCallFlow(t *testing.T) {
	var calls []map[string]any
	analysis := recordingTool("execute_python_analysis", "ANALYSIS: fine. | DATA: {\"x\": 1}", &calls)

	backend := model.NewMockBackend()
	callID := backend.EnqueueToolCall("execute_python_analysis", map[string]any{"code": "df.head()"})
	backend.EnqueueText("ANALYSIS: fine.")

	worker := NewWorker(DataAnalystName, "analyze", backend, func(o *WorkerOptions) {
		o.Tools = []tool.Tool{analysis}
	})

	state := core.NewInitialState("analyze my data")
	msgs := worker.Invoke(context.Background(), state)

	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].HasToolCalls())
	assert.Equal(t, core.RoleTool, msgs[1].Role)
	assert.Equal(t, callID, msgs[1].ToolCallID)
	assert.Equal(t, "ANALYSIS: fine.", msgs[2].Content)

	require.Len(t, calls, 1)
	assert.Equal(t, "df.head()", calls[0]["code"])
	assert.Equal(t, "analyze my data", calls[0]["user_query"], "user query is injected when the schema declares it")

	// The follow-up request must include the tool result in its history.
	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
}

func TestWorkerToolNotFound(t *testing.T) {
	backend := model.NewMockBackend()
	callID := backend.EnqueueToolCall("missing_tool", nil)
	backend.EnqueueText("done without tool")

	worker := NewWorker("Echo", "echo", backend)

	msgs := worker.Invoke(context.Background(), core.NewInitialState("q"))

	require.Len(t, msgs, 3)
	assert.Equal(t, "ERROR: Tool missing_tool not available", msgs[1].Content)
	assert.Equal(t, callID, msgs[1].ToolCallID)
}

func TestWorkerToolExecutionFailure(t *testing.T) {
	failing := tool.NewFunctionTool(
		"flaky",
		"always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("backend down")
		},
	)

	backend := model.NewMockBackend()
	backend.EnqueueToolCall("flaky", nil)
	backend.EnqueueText("acknowledged the failure")

	worker := NewWorker("Echo", "echo", backend, func(o *WorkerOptions) {
		o.Tools = []tool.Tool{failing}
	})

	msgs := worker.Invoke(context.Background(), core.NewInitialState("q"))

	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[1].Content, "ERROR: Tool execution failed:")
	assert.Contains(t, msgs[1].Content, "backend down")
}

func TestWorkerStopsToolRecursion(t *testing.T) {
	var calls []map[string]any
	analysis := recordingTool("execute_python_analysis", "ANALYSIS: done.", &calls)

	backend := model.NewMockBackend()
	backend.EnqueueToolCall("execute_python_analysis", map[string]any{"code": "a"})
	// Follow-up turn asks for tools again: it must be dropped, not executed.
	backend.EnqueueToolCall("execute_python_analysis", map[string]any{"code": "b"})

	worker := NewWorker(DataAnalystName, "analyze", backend, func(o *WorkerOptions) {
		o.Tools = []tool.Tool{analysis}
	})

	msgs := worker.Invoke(context.Background(), core.NewInitialState("q"))

	require.Len(t, msgs, 2, "assistant turn + tool result, no final message")
	assert.Len(t, calls, 1, "second round of tool calls is not executed")
}

func TestWorkerForcedToolInvocation(t *testing.T) {
	var calls []map[string]any
	analysis := recordingTool("execute_python_analysis", "ANALYSIS: margins look healthy. | DATA: {\"m\": 24.5}", &calls)

	backend := model.NewMockBackend()
	backend.EnqueueText("I would analyze margins if asked.") // declined tool call
	backend.EnqueueText("ANALYSIS: margins look healthy.")

	worker := NewDataAnalyst(backend, analysis, nil)

	state := core.NewInitialState("What are our profit margins?")
	msgs := worker.Invoke(context.Background(), state)

	require.Len(t, msgs, 3)
	assert.Equal(t, core.RoleTool, msgs[1].Role)
	assert.Equal(t, "forced_call", msgs[1].ToolCallID)
	assert.Contains(t, msgs[2].Content, "ANALYSIS:")

	require.Len(t, calls, 1)
	code, _ := calls[0]["code"].(string)
	assert.Contains(t, code, "# Analysis for: What are our profit margins?")
	assert.Contains(t, code, "# Calculate profit margins")
	assert.Equal(t, "What are our profit margins?", calls[0]["user_query"])
}

func TestWorkerBackendFailure(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueError(errors.New("rate limited"))

	worker := NewWorker(DataAnalystName, "analyze", backend)

	msgs := worker.Invoke(context.Background(), core.NewInitialState("q"))

	require.Len(t, msgs, 1)
	assert.Equal(t, core.RoleAI, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "ERROR: Data_Analyst encountered an error:")
	assert.Contains(t, msgs[0].Content, "rate limited")
}

func TestWorkerStructuredOutput(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(`{"actions": [{"action": "Expand", "rating": 9, "rationale": "growth"}], "summary": "go"}`)

	worker := NewBusinessStrategist(backend, nil)

	msgs := worker.Invoke(context.Background(), core.NewInitialState("q"))

	require.Len(t, msgs, 1)
	payload, ok := core.ExtractEnvelope(msgs[0].Content, core.StrategyPrefix)
	require.True(t, ok)
	assert.Equal(t, "go", payload["summary"])

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Schema)
	assert.Equal(t, "business_strategy", reqs[0].Schema.Name)
}

func TestWorkerPreservesMarkerPrefix(t *testing.T) {
	var calls []map[string]any
	analysis := recordingTool("execute_python_analysis",
		"ANALYSIS: Avg Margin = 24.5%. | DATA: {\"values\": [24.5]}", &calls)

	backend := model.NewMockBackend()
	backend.EnqueueToolCall("execute_python_analysis", map[string]any{"code": "m"})
	backend.EnqueueText("The margins are around 24.5 percent.") // prefix dropped

	worker := NewDataAnalyst(backend, analysis, nil)

	msgs := worker.Invoke(context.Background(), core.NewInitialState("margins?"))

	require.Len(t, msgs, 3)
	assert.Equal(t, "ANALYSIS: Avg Margin = 24.5%.", msgs[2].Content)
}
