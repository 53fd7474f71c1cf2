package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshapedconsultant/datateam/agent"
	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/model"
	"github.com/tshapedconsultant/datateam/tool"
)

// newTestEngine wires a full team over the given backend, with the real
// analysis tool pipeline replaced by a fixed-output tool.
func newTestEngine(backend model.Backend, optFns ...func(o *Options)) *Engine {
	analysis := tool.NewFunctionTool(
		"execute_python_analysis",
		"test analysis",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code":       map[string]any{"type": "string"},
				"user_query": map[string]any{"type": "string"},
			},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			return `ANALYSIS: Total Sales = $5.1M. | DATA: {"labels": ["Total Sales"], "values": [5.1]}`, nil
		},
	)

	analyst := agent.NewDataAnalyst(backend, analysis, nil)
	strategist := agent.NewBusinessStrategist(backend, nil)
	supervisor := agent.NewSupervisor(backend, []string{analyst.Name(), strategist.Name()})
	return New(supervisor, []*agent.Worker{analyst, strategist}, optFns...)
}

func routeTo(next string) string {
	return fmt.Sprintf(`{"next": %q, "reasoning": "routing to %s"}`, next, next)
}

func collect(t *testing.T, events <-chan core.StreamEvent) []core.StreamEvent {
	t.Helper()
	var out []core.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestEngineHappyPath(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(routeTo(agent.DataAnalystName))
	backend.EnqueueToolCall("execute_python_analysis", map[string]any{"code": "sales analysis"})
	backend.EnqueueText("ANALYSIS: Total Sales = $5.1M.")
	backend.EnqueueStructured(routeTo(agent.BusinessStrategistName))
	backend.EnqueueStructured(`{"actions": [{"action": "Expand", "rating": 9, "rationale": "growth"}], "summary": "scale up"}`)

	eng := newTestEngine(backend)
	events := collect(t, eng.RunStream(context.Background(), "How are sales?"))

	require.Len(t, events, 7)
	assert.Equal(t, core.EventStart, events[0].Type)
	assert.Equal(t, core.EventDecision, events[1].Type)
	assert.Equal(t, agent.DataAnalystName, events[1].Decision)
	assert.Equal(t, core.EventAction, events[2].Type)
	assert.Equal(t, agent.DataAnalystName, events[2].Agent)
	assert.Contains(t, events[2].Output, "ANALYSIS:")
	assert.Equal(t, core.EventDecision, events[3].Type)
	assert.Equal(t, agent.BusinessStrategistName, events[3].Decision)
	assert.Equal(t, core.EventAction, events[4].Type)
	assert.Contains(t, events[4].Output, "STRATEGY:")
	assert.Equal(t, core.EventDecision, events[5].Type)
	assert.Equal(t, core.Finish, events[5].Decision)
	assert.Contains(t, events[5].Reasoning, "completed successfully")
	assert.Equal(t, core.EventFinish, events[6].Type)
	assert.Equal(t, 2, events[6].FinalIterationCount)

	// Completion was detected by marker scan: the backend served exactly the
	// five scripted responses, no third routing request.
	assert.Len(t, backend.Requests(), 5)
}

func TestEngineIterationMonotonicity(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(routeTo(agent.DataAnalystName))
	backend.EnqueueToolCall("execute_python_analysis", map[string]any{"code": "a"})
	backend.EnqueueText("ANALYSIS: done.")
	backend.EnqueueStructured(routeTo(agent.BusinessStrategistName))
	backend.EnqueueStructured(`{"actions": [], "summary": "s"}`)

	eng := newTestEngine(backend)
	events := collect(t, eng.RunStream(context.Background(), "q"))

	prev := 0
	for _, ev := range events {
		if ev.Type != core.EventDecision && ev.Type != core.EventAction {
			continue
		}
		assert.GreaterOrEqual(t, ev.IterationCount, prev, "iteration count never decreases")
		prev = ev.IterationCount
	}
	assert.Equal(t, 2, prev)
}

func TestEngineIterationCapBoundary(t *testing.T) {
	backend := model.NewMockBackend()
	eng := newTestEngine(backend, func(o *Options) {
		o.Config = Config{MaxIterations: 0, MessageWindow: 8, CompletionWindow: 5}
	})

	events := collect(t, eng.RunStream(context.Background(), "q"))

	require.Len(t, events, 3)
	assert.Equal(t, core.EventDecision, events[1].Type)
	assert.Equal(t, core.Finish, events[1].Decision)
	assert.Equal(t, "Maximum iterations reached. Terminating workflow.", events[1].Reasoning)
	assert.Empty(t, events[1].LastError, "cap termination is not an error")
	assert.Equal(t, core.EventFinish, events[2].Type)
	assert.Empty(t, backend.Requests(), "cap fires before any routing request")
}

func TestEngineFirstDecisionNotCompletionForced(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(routeTo(agent.DataAnalystName))
	eng := newTestEngine(backend)

	delta := eng.supervisorNode(context.Background(), core.NewInitialState("analyze sales"))

	require.NotNil(t, delta.NextAgent)
	assert.Equal(t, agent.DataAnalystName, *delta.NextAgent)
	assert.Len(t, backend.Requests(), 1, "fresh state consults the router")
}

func TestEngineCompletionDetection(t *testing.T) {
	backend := model.NewMockBackend()
	eng := newTestEngine(backend)

	state := core.WorkflowState{Messages: []core.Message{
		core.NewHumanMessage("q"),
		core.NewAIMessage("ANALYSIS: Total Sales = $5.1M."),
		core.NewAIMessage(`STRATEGY: {"summary": "scale"}`),
	}}

	delta := eng.supervisorNode(context.Background(), state)

	require.NotNil(t, delta.NextAgent)
	assert.Equal(t, core.Finish, *delta.NextAgent)
	assert.Contains(t, *delta.Reasoning, "completed successfully")
	assert.Empty(t, backend.Requests(), "completion is detected without consulting the backend")
}

func TestEngineCompletionIgnoresMarkersOutsideWindow(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(routeTo(agent.BusinessStrategistName))
	eng := newTestEngine(backend)

	// The ANALYSIS marker sits 6 messages back, outside the 5-message scan.
	messages := []core.Message{core.NewAIMessage("ANALYSIS: old result.")}
	for i := 0; i < 4; i++ {
		messages = append(messages, core.NewAIMessage(fmt.Sprintf("filler %d", i)))
	}
	messages = append(messages, core.NewAIMessage(`STRATEGY: {"summary": "s"}`))
	state := core.WorkflowState{Messages: messages}

	delta := eng.supervisorNode(context.Background(), state)

	require.NotNil(t, delta.NextAgent)
	assert.NotContains(t, *delta.Reasoning, "completed successfully")
	assert.Len(t, backend.Requests(), 1, "stale markers do not trigger completion")
}

func TestEngineLoopDetection(t *testing.T) {
	backend := model.NewMockBackend()
	eng := newTestEngine(backend)

	trace := "[Supervisor] Routing to Data_Analyst. Reasoning: needs analysis"
	state := core.WorkflowState{Messages: []core.Message{
		core.NewHumanMessage("q"),
		core.NewAIMessage(trace),
		core.NewAIMessage("working on it"),
		core.NewAIMessage(trace),
	}}

	delta := eng.supervisorNode(context.Background(), state)

	require.NotNil(t, delta.NextAgent)
	assert.Equal(t, core.Finish, *delta.NextAgent)
	assert.Contains(t, *delta.Reasoning, "Prevented infinite loop: Data_Analyst")
	require.NotNil(t, delta.LastError)
	assert.Empty(t, *delta.LastError, "loop prevention is not an error")
	assert.Empty(t, backend.Requests())
}

func TestEngineLoopAllowedWhenMarkerPresent(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(routeTo(core.Finish))
	eng := newTestEngine(backend)

	trace := "[Supervisor] Routing to Data_Analyst. Reasoning: needs analysis"
	state := core.WorkflowState{Messages: []core.Message{
		core.NewAIMessage(trace),
		core.NewAIMessage("ANALYSIS: delivered."),
		core.NewAIMessage(trace),
	}}

	delta := eng.supervisorNode(context.Background(), state)

	require.NotNil(t, delta.NextAgent)
	assert.Equal(t, core.Finish, *delta.NextAgent)
	assert.Len(t, backend.Requests(), 1, "a delivered worker defers to the router")
}

func TestEngineRedundancyGuard(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(routeTo(agent.BusinessStrategistName))
	eng := newTestEngine(backend)

	state := core.WorkflowState{Messages: []core.Message{
		core.NewHumanMessage("q"),
		core.NewAIMessage(`STRATEGY: {"summary": "done already"}`),
	}}

	delta := eng.supervisorNode(context.Background(), state)

	require.NotNil(t, delta.NextAgent)
	assert.Equal(t, core.Finish, *delta.NextAgent)
	assert.Contains(t, *delta.Reasoning, "Business_Strategist already completed its task")
}

func TestEngineWorkerNodeDelta(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueToolCall("execute_python_analysis", map[string]any{"code": "sales"})
	backend.EnqueueText("ANALYSIS: Total Sales = $5.1M.")
	eng := newTestEngine(backend)

	state := core.NewInitialState("how are sales?")
	delta := eng.workerNode(context.Background(), eng.workers[agent.DataAnalystName], state)

	require.NotNil(t, delta.IterationCount)
	assert.Equal(t, 1, *delta.IterationCount)
	require.NotNil(t, delta.NextAgent)
	assert.Empty(t, *delta.NextAgent, "worker clears routing")
	require.True(t, delta.SetRawData)
	assert.Equal(t, []any{5.1}, delta.RawData["values"])
	assert.Greater(t, len(delta.Messages), len(state.Messages))
}

func TestEngineWorkerErrorPreservesRawData(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueError(assert.AnError)
	eng := newTestEngine(backend)

	state := core.NewInitialState("q")
	state.RawData = map[string]any{"kept": true}

	delta := eng.workerNode(context.Background(), eng.workers[agent.DataAnalystName], state)

	require.NotNil(t, delta.LastError)
	assert.Contains(t, *delta.LastError, "ERROR: Data_Analyst encountered an error:")
	assert.False(t, delta.SetRawData, "prior raw data survives a failed run")
	require.NotNil(t, delta.IterationCount)
	assert.Equal(t, 1, *delta.IterationCount, "failures still consume an iteration")

	next := core.Merge(state, delta)
	assert.Equal(t, map[string]any{"kept": true}, next.RawData)
}

func TestEngineWindowTruncation(t *testing.T) {
	eng := newTestEngine(model.NewMockBackend(), func(o *Options) {
		o.Config = Config{MaxIterations: 10, MessageWindow: 3, CompletionWindow: 5}
	})

	var messages []core.Message
	for i := 0; i < 6; i++ {
		messages = append(messages, core.NewAIMessage(fmt.Sprintf("m%d", i)))
	}

	windowed := eng.applyWindow(core.WorkflowState{Messages: messages})

	require.Len(t, windowed.Messages, 3)
	assert.Equal(t, "m3", windowed.Messages[0].Content)
	assert.Equal(t, "m5", windowed.Messages[2].Content)
}

func TestEngineCancellation(t *testing.T) {
	backend := model.NewMockBackend()
	eng := newTestEngine(backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(t, eng.RunStream(ctx, "q"))

	assert.Empty(t, events, "no events after cancellation is observed")
}

func TestEngineRunCollectsEvents(t *testing.T) {
	backend := model.NewMockBackend()
	backend.EnqueueStructured(routeTo(core.Finish))
	eng := newTestEngine(backend)

	events, err := eng.Run(context.Background(), "q")

	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventStart, events[0].Type)
	assert.Equal(t, core.EventFinish, events[len(events)-1].Type)
}
