package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/logging"
	"github.com/tshapedconsultant/datateam/model"
)

// RouteDecision is the structured output schema for routing decisions.
type RouteDecision struct {
	Next      string `json:"next"`
	Reasoning string `json:"reasoning"`
}

// SupervisorOptions configure the Supervisor.
type SupervisorOptions struct {
	// Instructions override the default routing system prompt.
	Instructions string
	// RetiredAliases maps agent names that no longer exist to their
	// replacements; matches are rewritten before validation.
	RetiredAliases map[string]string

	Logger logging.Logger
}

// Supervisor is the routing brain of the workflow. Decide never propagates
// an error: every failure collapses to a FINISH decision with the failure as
// its reasoning.
type Supervisor struct {
	backend     model.Backend
	validAgents map[string]struct{}
	opts        SupervisorOptions
	logger      logging.Logger
}

// NewSupervisor creates a supervisor routing between the given worker names
// (FINISH is always a valid target and need not be listed).
func NewSupervisor(backend model.Backend, workers []string, optFns ...func(o *SupervisorOptions)) *Supervisor {
	opts := SupervisorOptions{
		Instructions:   defaultSupervisorInstructions,
		RetiredAliases: map[string]string{"Visualizer": BusinessStrategistName},
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	valid := make(map[string]struct{}, len(workers)+1)
	for _, name := range workers {
		valid[name] = struct{}{}
	}
	valid[core.Finish] = struct{}{}
	return &Supervisor{
		backend:     backend,
		validAgents: valid,
		opts:        opts,
		logger:      opts.Logger,
	}
}

// Decide makes a routing decision for the current state and returns the next
// agent name (a registered worker or FINISH) plus the reasoning behind it.
func (s *Supervisor) Decide(ctx context.Context, state core.WorkflowState) (string, string) {
	resp, err := s.backend.Complete(ctx, model.Request{
		Instructions: s.opts.Instructions,
		Messages:     state.Messages,
		Schema:       routeSchema(),
	})
	if err != nil {
		s.logger.Error("supervisor.decide.failed", "error", err.Error())
		return core.Finish, fmt.Sprintf("Supervisor error: %v", err)
	}

	var decision RouteDecision
	if err := json.Unmarshal(resp.Structured, &decision); err != nil {
		s.logger.Error("supervisor.decide.invalid_payload", "error", err.Error())
		return core.Finish, fmt.Sprintf("Supervisor error: %v", err)
	}

	next := decision.Next
	reasoning := decision.Reasoning
	for alias, replacement := range s.opts.RetiredAliases {
		if next == alias || strings.Contains(strings.ToLower(next), strings.ToLower(alias)) {
			s.logger.Warn("supervisor.retired_alias", "alias", next, "replacement", replacement)
			next = replacement
			reasoning = strings.ReplaceAll(reasoning, alias, replacement)
			reasoning = strings.ReplaceAll(reasoning, strings.ToLower(alias), replacement)
			break
		}
	}

	if _, ok := s.validAgents[next]; !ok {
		s.logger.Warn("supervisor.invalid_routing", "agent", next)
		return core.Finish, fmt.Sprintf("Invalid routing '%s' detected. Forcing termination.", next)
	}
	return next, reasoning
}

func routeSchema() *model.ResponseSchema {
	return &model.ResponseSchema{
		Name:        "route",
		Description: "Routing decision for the next workflow step",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"next": map[string]any{
					"type": "string",
					"description": "Next agent to route to. MUST be one of: Data_Analyst, " +
						"Business_Strategist, or FINISH. NEVER use Visualizer - it has been " +
						"replaced by Business_Strategist.",
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": "Brief explanation for the routing decision",
				},
			},
			"required": []string{"next", "reasoning"},
		},
	}
}

const defaultSupervisorInstructions = `You are the Supervisor (router) for a multi-agent data analysis team.
Your job is to decide which agent should handle the next task.

AVAILABLE AGENTS:
- Data_Analyst: Performs data analysis and calculations
- Business_Strategist: Provides strategic recommendations based on analysis (replaced Visualizer)
- FINISH: Terminates the workflow

ROUTING RULES:
1. If the user asks for calculations, metrics, Python code, statistical analysis,
   or any numeric/data analysis => Route to Data_Analyst
2. If data has already been analyzed (you see "ANALYSIS:" in recent messages) => Route to Business_Strategist
3. **CRITICAL**: If strategic recommendations have already been generated (you see "STRATEGY:"
   in recent messages), the strategy task is COMPLETE => Route to FINISH
4. If both analysis AND strategy are complete, or if the same agent has been
   called multiple times with similar outputs => Route to FINISH
5. If the task is complete, all questions are answered, and no further action
   is needed => Route to FINISH
6. If you're unsure whether data has been analyzed, route to Data_Analyst first
   to ensure we have the necessary analysis before strategy recommendations

**IMPORTANT**: Visualizer no longer exists. It has been replaced by Business_Strategist.
NEVER route to "Visualizer" - always use "Business_Strategist" instead.

COMPLETION CRITERIA:
- Analysis is complete when you see "ANALYSIS:" in the messages
- Strategy is complete when you see "STRATEGY:" in the messages
- If both are present, the workflow is COMPLETE => FINISH
- If the same agent produces the same output multiple times => FINISH

Always provide clear reasoning for your decision. Be decisive and follow the rules.
When in doubt about completion, choose FINISH to avoid infinite loops.`
