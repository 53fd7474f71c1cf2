// Package engine implements the supervisor-worker orchestration state
// machine: the driving loop that alternates supervisor routing and worker
// execution over a single WorkflowState, with termination guards (iteration
// cap, completion detection, loop prevention, redundancy), message
// windowing, and event streaming.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tshapedconsultant/datateam/agent"
	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/logging"
)

// Config holds the orchestration limits.
type Config struct {
	// MaxIterations is the hard cap on worker executions per run.
	MaxIterations int
	// MessageWindow is the number of trailing messages kept in state after
	// every merge.
	MessageWindow int
	// CompletionWindow is the number of trailing messages the supervisor
	// node scans for completion markers and routing traces.
	CompletionWindow int
}

// DefaultConfig mirrors the production defaults.
var DefaultConfig = Config{
	MaxIterations:    10,
	MessageWindow:    8,
	CompletionWindow: 5,
}

// Options configure engine construction.
type Options struct {
	Config Config
	Logger logging.Logger
}

// Engine drives one workflow: supervisor decides, a worker acts, control
// returns to the supervisor, until a FINISH decision or a guard fires. The
// worker registry is fixed at construction.
type Engine struct {
	supervisor *agent.Supervisor
	workers    map[string]*agent.Worker
	order      []string
	config     Config
	logger     logging.Logger
}

// New creates an engine over the given supervisor and workers.
func New(supervisor *agent.Supervisor, workers []*agent.Worker, optFns ...func(o *Options)) *Engine {
	opts := Options{Config: DefaultConfig, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	registry := make(map[string]*agent.Worker, len(workers))
	order := make([]string, 0, len(workers))
	for _, w := range workers {
		registry[w.Name()] = w
		order = append(order, w.Name())
	}
	return &Engine{
		supervisor: supervisor,
		workers:    registry,
		order:      order,
		config:     opts.Config,
		logger:     opts.Logger,
	}
}

const eventBuffer = 16

// RunStream executes the workflow for the given query and streams progress
// events. The channel carries exactly one Start, one event per executed
// node, and one terminal Finish or Error, then closes. Cancelling ctx stops
// the run promptly; no further events are sent after cancellation is
// observed.
func (e *Engine) RunStream(ctx context.Context, query string) <-chan core.StreamEvent {
	events := make(chan core.StreamEvent, eventBuffer)

	go func() {
		defer close(events)

		runID := uuid.NewString()
		e.logger.Info("workflow.start", "run_id", runID, "query", query)

		if !e.emit(ctx, events, core.NewStartEvent(query)) {
			return
		}

		state, outcome := e.drive(ctx, events, core.NewInitialState(query), runID)
		switch outcome {
		case outcomeDone:
			e.logger.Info("workflow.finish", "run_id", runID, "iterations", state.IterationCount)
			e.emit(ctx, events, core.NewFinishEvent(state))
		case outcomeCancelled:
			e.logger.Info("workflow.cancelled", "run_id", runID)
		case outcomeFailed:
			// Error event already emitted by drive.
		}
	}()

	return events
}

// Run executes the workflow synchronously and collects all events. It
// returns ctx.Err() when the run was cut short by cancellation.
func (e *Engine) Run(ctx context.Context, query string) ([]core.StreamEvent, error) {
	var collected []core.StreamEvent
	for ev := range e.RunStream(ctx, query) {
		collected = append(collected, ev)
	}
	if err := ctx.Err(); err != nil {
		return collected, err
	}
	return collected, nil
}

type runOutcome int

const (
	outcomeDone runOutcome = iota
	outcomeCancelled
	outcomeFailed
)

// drive runs the supervisor/worker loop to completion. Panics in the loop
// itself are contained and reported as a single Error event.
func (e *Engine) drive(ctx context.Context, events chan<- core.StreamEvent, state core.WorkflowState, runID string) (final core.WorkflowState, outcome runOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("workflow.panic", "run_id", runID, "panic", fmt.Sprintf("%v", r))
			e.emit(ctx, events, core.NewErrorEvent(fmt.Sprintf("Workflow runtime error: %v", r)))
			final, outcome = state, outcomeFailed
		}
	}()

	for {
		if ctx.Err() != nil {
			return state, outcomeCancelled
		}

		state = e.applyWindow(core.Merge(state, e.supervisorNode(ctx, state)))
		if !e.emit(ctx, events, core.NewDecisionEvent(state)) {
			return state, outcomeCancelled
		}
		e.logger.Debug("workflow.decision", "run_id", runID,
			"next", state.NextAgent, "iteration", state.IterationCount)

		worker, ok := e.workers[state.NextAgent]
		if !ok {
			// FINISH or an unregistered target: either way the run ends.
			if state.NextAgent != core.Finish {
				e.logger.Warn("workflow.unknown_target", "run_id", runID, "target", state.NextAgent)
			}
			return state, outcomeDone
		}

		state = e.applyWindow(core.Merge(state, e.workerNode(ctx, worker, state)))
		if !e.emit(ctx, events, core.NewActionEvent(worker.Name(), state)) {
			return state, outcomeCancelled
		}
		e.logger.Debug("workflow.action", "run_id", runID,
			"agent", worker.Name(), "iteration", state.IterationCount)
	}
}

// supervisorNode produces the routing delta. Guard order: hard iteration
// cap, completion detection, loop detection, model decision, redundancy
// guard, trace append.
func (e *Engine) supervisorNode(ctx context.Context, state core.WorkflowState) core.Delta {
	if state.IterationCount >= e.config.MaxIterations {
		e.logger.Warn("workflow.max_iterations", "max", e.config.MaxIterations)
		return finishDelta("Maximum iterations reached. Terminating workflow.")
	}

	recent := tail(state.Messages, e.config.CompletionWindow)
	contents := joinContents(recent)

	if e.allMarkersPresent(contents) {
		return finishDelta("All agent deliverables completed successfully. Terminating workflow.")
	}

	if repeated, ok := e.detectLoop(recent, contents); ok {
		e.logger.Warn("workflow.loop_detected", "agent", repeated)
		return finishDelta(fmt.Sprintf(
			"Prevented infinite loop: %s was called multiple times without completing its task.", repeated))
	}

	next, reasoning := e.supervisor.Decide(ctx, state)

	if worker, ok := e.workers[next]; ok && markerPresent(worker, contents) {
		e.logger.Info("workflow.redundant_routing", "agent", next)
		return finishDelta(fmt.Sprintf("%s already completed its task. Task is finished.", next))
	}

	trace := core.NewAIMessage(fmt.Sprintf("[Supervisor] Routing to %s. Reasoning: %s", next, reasoning))
	messages := append(append([]core.Message{}, state.Messages...), trace)
	return core.Delta{
		Messages:  messages,
		NextAgent: core.String(next),
		Reasoning: core.String(reasoning),
		LastError: core.String(""),
	}
}

// workerNode invokes a worker and folds its contribution into a delta:
// messages appended, iteration incremented, routing cleared, and (for
// data-extracting workers) the structured DATA payload mined from the new
// messages.
func (e *Engine) workerNode(ctx context.Context, worker *agent.Worker, state core.WorkflowState) core.Delta {
	contributed := worker.Invoke(ctx, state)

	delta := core.Delta{
		Messages:       concat(state.Messages, contributed),
		IterationCount: core.Int(state.IterationCount + 1),
		NextAgent:      core.String(""),
		LastError:      core.String(""),
	}

	if len(contributed) == 1 && contributed[0].Role == core.RoleAI &&
		strings.HasPrefix(contributed[0].Content, "ERROR:") {
		delta.LastError = core.String(contributed[0].Content)
	}

	if worker.ExtractsData() {
		for _, msg := range contributed {
			if payload, ok := core.ExtractEnvelope(msg.Content, core.DataPrefix); ok {
				delta.RawData = payload
				delta.SetRawData = true
				break
			}
		}
	}
	return delta
}

// allMarkersPresent reports whether every marker-bearing worker's sentinel
// appears in the recent contents.
func (e *Engine) allMarkersPresent(contents string) bool {
	seen := false
	for _, name := range e.order {
		worker := e.workers[name]
		if worker.Marker() == "" {
			continue
		}
		seen = true
		if !strings.Contains(contents, worker.Marker()) {
			return false
		}
	}
	return seen
}

// detectLoop inspects the recent routing traces: two consecutive routings to
// the same worker that still has not produced its marker indicate a loop.
func (e *Engine) detectLoop(recent []core.Message, contents string) (string, bool) {
	var routings []string
	for _, msg := range recent {
		if !strings.Contains(msg.Content, "[Supervisor]") {
			continue
		}
		_, after, found := strings.Cut(msg.Content, "Routing to")
		if !found {
			continue
		}
		name, _, _ := strings.Cut(after, ".")
		routings = append(routings, strings.TrimSpace(name))
	}
	if len(routings) < 2 {
		return "", false
	}

	last := routings[len(routings)-1]
	if last != routings[len(routings)-2] || last == core.Finish {
		return "", false
	}
	worker, ok := e.workers[last]
	if !ok {
		return "", false
	}
	if markerPresent(worker, contents) {
		// The repeated worker delivered; let the supervisor decide.
		return "", false
	}
	return last, true
}

func markerPresent(worker *agent.Worker, contents string) bool {
	return worker.Marker() != "" && strings.Contains(contents, worker.Marker())
}

// applyWindow truncates the message list to the trailing MessageWindow
// entries.
func (e *Engine) applyWindow(state core.WorkflowState) core.WorkflowState {
	if e.config.MessageWindow > 0 && len(state.Messages) > e.config.MessageWindow {
		state.Messages = tail(state.Messages, e.config.MessageWindow)
	}
	return state
}

// emit sends an event unless ctx is done; it reports whether the event was
// delivered.
func (e *Engine) emit(ctx context.Context, events chan<- core.StreamEvent, ev core.StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case events <- ev:
		return true
	}
}

func finishDelta(reasoning string) core.Delta {
	return core.Delta{
		NextAgent: core.String(core.Finish),
		Reasoning: core.String(reasoning),
		LastError: core.String(""),
	}
}

func tail(messages []core.Message, n int) []core.Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

func joinContents(messages []core.Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, " ")
}

func concat(a, b []core.Message) []core.Message {
	out := make([]core.Message, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
