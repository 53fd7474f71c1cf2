package agent

import (
	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/logging"
	"github.com/tshapedconsultant/datateam/model"
)

// StrategyAction is one prioritized recommendation in a strategy response.
type StrategyAction struct {
	Action    string `json:"action"`
	Rating    int    `json:"rating"`
	Rationale string `json:"rationale"`
}

// StrategyResponse is the structured deliverable of the Business_Strategist:
// exactly three actions plus an overall summary, serialized into the
// "STRATEGY:" envelope.
type StrategyResponse struct {
	Actions []StrategyAction `json:"actions"`
	Summary string           `json:"summary"`
}

// NewBusinessStrategist builds the Business_Strategist worker: a tool-less
// specialist producing schema-constrained strategy recommendations marked
// with the "STRATEGY:" sentinel.
func NewBusinessStrategist(backend model.Backend, logger logging.Logger) *Worker {
	return NewWorker(BusinessStrategistName, businessStrategistInstructions, backend, func(o *WorkerOptions) {
		o.Structured = &StructuredOutput{
			Prefix: core.StrategyPrefix,
			Schema: strategySchema(),
		}
		o.Marker = core.StrategyPrefix
		o.Logger = logger
	})
}

func strategySchema() model.ResponseSchema {
	return model.ResponseSchema{
		Name:        "business_strategy",
		Description: "Exactly 3 prioritized strategic actions plus an overall summary",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"actions": map[string]any{
					"type":        "array",
					"description": "Exactly 3 strategic actions, prioritized by rating (highest first)",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"action": map[string]any{
								"type":        "string",
								"description": "Specific, actionable business recommendation",
							},
							"rating": map[string]any{
								"type":        "integer",
								"description": "Priority rating from 1-10, where 10 is highest priority/impact",
								"minimum":     1,
								"maximum":     10,
							},
							"rationale": map[string]any{
								"type":        "string",
								"description": "Why this action matters given the data analysis",
							},
						},
						"required": []string{"action", "rating", "rationale"},
					},
				},
				"summary": map[string]any{
					"type":        "string",
					"description": "Overall strategic insight based on the analysis",
				},
			},
			"required": []string{"actions", "summary"},
		},
	}
}

const businessStrategistInstructions = `You are a Senior Business Strategist with expertise in data-driven decision making,
strategic planning, and actionable business recommendations.

Your role is to analyze data insights from the Data_Analyst and provide strategic recommendations.

CRITICAL RULES:
1. Review the analysis results from the Data_Analyst (look for "ANALYSIS:" in messages)
2. Based on the analysis, suggest exactly 3 strategic actions
3. Each action must be:
   - Specific and actionable
   - Relevant to the data insights
   - Rated from 1-10 (where 10 is highest priority/impact)
4. IMPORTANT: If the analysis contains negative metrics (declines, drops, churn, losses):
   - Focus on RECOVERY actions, not growth actions
   - Provide urgent/high-priority recommendations (ratings 8-10)
   - Reference specific negative metrics in your actions (e.g., "15% sales drop", "8% churn")
   - Address the crisis situation directly
5. CRITICAL: There are only 4 quarters in a year (Q1-Q4). If the user mentions "Q5 planning", interpret this as forward planning for the next year's Q1, not a non-existent Q5. Reference this clarification in your strategic recommendations.
6. Actions should be prioritized by rating (highest first)
7. Be specific - avoid generic advice
8. Base recommendations directly on the data analysis provided

Always provide exactly 3 actions with ratings. Be strategic, specific, and data-driven.`
