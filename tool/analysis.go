package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tshapedconsultant/datateam/code"
	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/logging"
)

// Tool names used in function call declarations.
const (
	AnalysisToolName = "execute_python_analysis"
	ChartToolName    = "generate_chart_config"
)

// ChartConfigPrefix marks the envelope emitted by the chart config tool.
const ChartConfigPrefix = "CHART_CONFIG:"

// AnalysisToolOptions configure the analysis tool.
type AnalysisToolOptions struct {
	Executor code.Executor
	Logger   logging.Logger
}

// NewAnalysisTool builds the execute_python_analysis tool: a safety-gated
// code execution entry point. Code failing the validator is never executed;
// the tool reports the violation as its textual result so the conversation
// records it without aborting the workflow.
func NewAnalysisTool(validator code.Validator, optFns ...func(o *AnalysisToolOptions)) *FunctionTool {
	opts := AnalysisToolOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Executor == nil {
		opts.Executor = code.NewDemoExecutor(func(o *code.DemoExecutorOptions) {
			o.Logger = opts.Logger
		})
	}
	executor := opts.Executor
	logger := opts.Logger

	return NewFunctionTool(
		AnalysisToolName,
		"Execute Python code for data analysis in a safe, controlled environment. "+
			"Returns analysis results in format: 'ANALYSIS: <summary> | DATA: <json>'.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python code string to execute for analysis",
				},
				"user_query": map[string]any{
					"type":        "string",
					"description": "Original user query for context",
				},
			},
			"required": []string{"code"},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			codeText, _ := args["code"].(string)
			query, _ := args["user_query"].(string)

			if !validator.IsSafe(codeText) {
				logger.Error("analysis.security_violation", "tool", AnalysisToolName)
				return "ERROR: Security violation detected. Execution blocked.", nil
			}

			out, err := executor.Execute(ctx, codeText, query)
			if err != nil {
				logger.Error("analysis.runtime_failure", "error", err.Error())
				return fmt.Sprintf("ERROR: Runtime failure during analysis: %v", err), nil
			}
			return out, nil
		},
		func(o *FunctionToolOptions) { o.Logger = logger },
	)
}

// ChartToolOptions configure the chart config tool.
type ChartToolOptions struct {
	Logger logging.Logger
}

// NewChartConfigTool builds the generate_chart_config tool. It extracts the
// structured "DATA: {...}" payload from an analysis summary (with a
// text-extraction fallback for plain summaries) and emits a renderer-ready
// chart configuration as "CHART_CONFIG: {json}".
func NewChartConfigTool(optFns ...func(o *ChartToolOptions)) *FunctionTool {
	opts := ChartToolOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := opts.Logger

	return NewFunctionToolFromStruct(
		ChartToolName,
		"Generate a chart configuration (JSON) from structured data analysis results. "+
			"Extracts the 'DATA: {...}' section when present.",
		chartConfigArgs{},
		func(ctx context.Context, args map[string]any) (string, error) {
			summary, _ := args["data_summary"].(string)
			query, _ := args["user_query"].(string)

			config, err := buildChartConfig(summary, query)
			if err != nil {
				logger.Error("chart.config_failure", "error", err.Error())
				return fmt.Sprintf("ERROR: Failed to generate chart config: %v", err), nil
			}
			return config, nil
		},
		func(o *FunctionToolOptions) { o.Logger = logger },
	)
}

// chartConfigArgs declares the chart tool's parameter schema. user_query is
// optional; the worker injects it when the model omits it.
type chartConfigArgs struct {
	DataSummary string `json:"data_summary" description:"Analysis results, may include a 'DATA: {...}' section"`
	UserQuery   string `json:"user_query,omitempty" description:"User query to help pick chart type and labels"`
}

var (
	quarterValuePattern = regexp.MustCompile(`(?i)q([12])[^=]*=\s*\$?([\d.]+)\s*([km]?)`)
	growthPattern       = regexp.MustCompile(`\([+\-]?([\d.]+)%\)`)
	namedValuePattern   = regexp.MustCompile(`(?i)(\w+)\s*=\s*\$?([\d.]+)\s*([km]?)`)
	numberPattern       = regexp.MustCompile(`[\d.]+`)
)

func buildChartConfig(summary, query string) (string, error) {
	var labels, values []any
	var growth any

	if payload, ok := core.ExtractEnvelope(summary, core.DataPrefix); ok {
		labels, _ = payload["labels"].([]any)
		values, _ = payload["values"].([]any)
		growth = payload["growth_percentage"]
	} else {
		labels, values, growth = extractFromText(summary)
	}
	if len(labels) == 0 || len(values) == 0 {
		labels = []any{"Category 1", "Category 2"}
		values = []any{100, 200}
	}

	queryLower := strings.ToLower(query)
	summaryLower := strings.ToLower(summary)

	config := map[string]any{
		"type":   chartType(queryLower, summaryLower),
		"title":  chartTitle(queryLower),
		"xlabel": chartXLabel(queryLower, summaryLower),
		"ylabel": chartYLabel(queryLower, summaryLower, summary),
		"data": map[string]any{
			"labels": labels,
			"values": values,
		},
		"style": map[string]any{
			"palette":    []any{"#003366", "#FF9900", "#4F4F4F", "#00CC66", "#CC0000"},
			"font":       "Helvetica",
			"background": "white",
			"grid":       true,
			"legend":     false,
		},
	}
	if growth != nil {
		config["meta"] = map[string]any{"growth_percentage": growth}
	}

	raw, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return "", err
	}
	return ChartConfigPrefix + " " + string(raw), nil
}

// extractFromText recovers labels and values from a plain-text summary when
// no structured DATA payload is present.
func extractFromText(summary string) (labels []any, values []any, growth any) {
	summaryLower := strings.ToLower(summary)

	if strings.Contains(summaryLower, "q1") && strings.Contains(summaryLower, "q2") {
		quarters := map[string]bool{}
		for _, m := range quarterValuePattern.FindAllStringSubmatch(summary, -1) {
			q := "Q" + m[1]
			if quarters[q] {
				continue
			}
			quarters[q] = true
			if v, err := strconv.ParseFloat(m[2], 64); err == nil {
				labels = append(labels, q)
				values = append(values, v)
			}
		}
	}

	if m := growthPattern.FindStringSubmatch(summary); m != nil {
		if g, err := strconv.ParseFloat(m[1], 64); err == nil {
			growth = g
		}
	}

	if len(labels) == 0 || len(values) == 0 {
		labels, values = nil, nil
		for _, m := range namedValuePattern.FindAllStringSubmatch(summary, -1) {
			if v, err := strconv.ParseFloat(m[2], 64); err == nil {
				labels = append(labels, m[1])
				values = append(values, v)
			}
		}
	}

	if len(values) == 0 {
		for i, m := range numberPattern.FindAllString(summary, 5) {
			if v, err := strconv.ParseFloat(m, 64); err == nil {
				values = append(values, v)
				labels = append(labels, fmt.Sprintf("Data Point %d", i+1))
			}
		}
	}
	return labels, values, growth
}

func chartType(queryLower, summaryLower string) string {
	switch {
	case strings.Contains(queryLower, "trend") || strings.Contains(summaryLower, "trend") ||
		strings.Contains(queryLower, "time") || strings.Contains(summaryLower, "time"):
		return "line"
	case strings.Contains(queryLower, "distribution") || strings.Contains(summaryLower, "distribution") ||
		strings.Contains(queryLower, "histogram"):
		return "histogram"
	case strings.Contains(queryLower, "correlation") || strings.Contains(queryLower, "scatter"):
		return "scatter"
	case strings.Contains(queryLower, "pie"):
		return "pie"
	default:
		return "bar"
	}
}

func chartYLabel(queryLower, summaryLower, summary string) string {
	switch {
	case strings.Contains(queryLower, "revenue") || strings.Contains(summaryLower, "revenue"):
		return "Revenue (Millions USD)"
	case strings.Contains(queryLower, "sales") || strings.Contains(summaryLower, "sales"):
		return "Sales (Millions USD)"
	case strings.Contains(queryLower, "margin") || strings.Contains(summaryLower, "margin") ||
		strings.Contains(summary, "%"):
		return "Percentage (%)"
	case strings.Contains(summary, "$"):
		return "Amount (USD)"
	default:
		return "Value"
	}
}

func chartXLabel(queryLower, summaryLower string) string {
	switch {
	case strings.Contains(summaryLower, "q1") || strings.Contains(summaryLower, "q2") ||
		strings.Contains(queryLower, "quarter"):
		return "Quarter"
	case strings.Contains(queryLower, "month") || strings.Contains(summaryLower, "month"):
		return "Month"
	case strings.Contains(queryLower, "region") || strings.Contains(summaryLower, "region"):
		return "Region"
	default:
		return "Category"
	}
}

func chartTitle(queryLower string) string {
	switch {
	case strings.Contains(queryLower, "revenue"):
		return "Revenue Analysis"
	case strings.Contains(queryLower, "sales"):
		return "Sales Analysis"
	case strings.Contains(queryLower, "margin"):
		return "Profit Margin Analysis"
	default:
		return "Data Analysis Visualization"
	}
}
