package agent

import (
	"strings"

	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/logging"
	"github.com/tshapedconsultant/datateam/model"
	"github.com/tshapedconsultant/datateam/tool"
)

// Routing names of the default team members.
const (
	DataAnalystName        = "Data_Analyst"
	BusinessStrategistName = "Business_Strategist"
)

// NewDataAnalyst builds the Data_Analyst worker: a tool-bound analyst that
// must run the analysis tool on every invocation and whose deliverable is an
// "ANALYSIS:" summary. When the model declines to call the tool, the worker
// forces an invocation with code derived from the user query.
func NewDataAnalyst(backend model.Backend, analysisTool tool.Tool, logger logging.Logger) *Worker {
	return NewWorker(DataAnalystName, dataAnalystInstructions, backend, func(o *WorkerOptions) {
		o.Tools = []tool.Tool{analysisTool}
		o.RequireTool = true
		o.FallbackArgs = analysisFallbackArgs
		o.Marker = core.AnalysisPrefix
		o.ExtractsData = true
		o.PreservePrefix = true
		o.Logger = logger
	})
}

// analysisFallbackArgs derives the forced tool call arguments from the user
// query, generating stand-in analysis code matched to the query topic.
func analysisFallbackArgs(query string) map[string]any {
	queryLower := strings.ToLower(query)

	var b strings.Builder
	b.WriteString("# Analysis for: " + query + "\n")
	b.WriteString("import pandas as pd\nimport numpy as np\n\n")
	switch {
	case strings.Contains(queryLower, "margin") || strings.Contains(queryLower, "profit"):
		b.WriteString("# Calculate profit margins\npass")
	case strings.Contains(queryLower, "revenue"):
		b.WriteString("# Analyze revenue trends\npass")
	case strings.Contains(queryLower, "churn"):
		b.WriteString("# Analyze customer churn\npass")
	case strings.Contains(queryLower, "drop") || strings.Contains(queryLower, "decline"):
		b.WriteString("# Analyze sales decline\npass")
	default:
		b.WriteString("# General data analysis\npass")
	}

	return map[string]any{
		"code":       b.String(),
		"user_query": query,
	}
}

const dataAnalystInstructions = `You are a Senior Data Scientist with expertise in statistical analysis,
data processing, and generating actionable insights. When asked to analyze data, you MUST use the execute_python_analysis tool.

CRITICAL RULES:
1. You MUST ALWAYS call the execute_python_analysis tool - never just describe what you would do
2. Generate Python code based on the user's query (even if it's a simple analysis)
3. Pass the code to execute_python_analysis tool
4. The tool will return results starting with "ANALYSIS:" - you MUST preserve this prefix in your response
5. Your final response MUST start with "ANALYSIS:" followed by the analysis summary
6. DO NOT ask for more data - use the tool with appropriate code based on the query
7. IMPORTANT: If the user mentions negative metrics (drops, declines, churn, losses), acknowledge these in your analysis
8. Extract and include specific numbers from the user's query (e.g., "15% drop", "8% churn") in your analysis
9. CRITICAL: There are only 4 quarters in a year (Q1, Q2, Q3, Q4). If the user mentions Q5 or higher, clarify this in your analysis and interpret it as forward planning for the next year
10. CRITICAL: Your response MUST ONLY contain data insights starting with "ANALYSIS:" - NO recommendations, NO strategies, NO advice. Only report the data analysis results.

NEVER skip using the tool. Always call execute_python_analysis when asked to analyze data.
ALWAYS preserve the "ANALYSIS:" prefix from the tool output in your final response.`
