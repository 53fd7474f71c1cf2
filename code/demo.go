package code

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/logging"
)

// DemoExecutor simulates analysis execution by pattern-matching the code and
// the user query against a fixed set of business scenarios. In production
// this would run in a sandbox against real data sources; the demo keeps the
// output contract identical: "ANALYSIS: <summary> | DATA: {json}".
type DemoExecutor struct {
	logger logging.Logger
}

// DemoExecutorOptions configure optional executor behavior.
type DemoExecutorOptions struct {
	Logger logging.Logger
}

// NewDemoExecutor creates the pattern-matched demo executor.
func NewDemoExecutor(optFns ...func(o *DemoExecutorOptions)) *DemoExecutor {
	opts := DemoExecutorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DemoExecutor{logger: opts.Logger}
}

var (
	percentPattern       = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	invalidQuarterRegexp = regexp.MustCompile(`\bq([5-9]|\d{2,})\b`)
)

var negativeKeywords = []string{
	"drop", "dropped", "decline", "declined", "decrease", "decreased",
	"down", "fall", "fell", "loss", "lost", "churn", "churning",
}

// Execute implements Executor.
func (e *DemoExecutor) Execute(ctx context.Context, codeText, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	codeLower := strings.ToLower(codeText)
	queryLower := strings.ToLower(query)
	combined := codeLower + " " + queryLower

	isNegative := containsAny(combined, negativeKeywords)
	percentages := extractPercentages(queryLower)
	hasInvalidQuarter := invalidQuarterRegexp.MatchString(queryLower)

	switch {
	case isNegative && (strings.Contains(combined, "sales") || strings.Contains(combined, "revenue")):
		return e.declineResult(combined, queryLower, percentages), nil
	case strings.Contains(codeLower, "margin"):
		return result(
			"ANALYSIS: Avg Margin = 24.5%, Top Region = North America (32.1%).",
			map[string]any{
				"labels": []any{"Average Margin", "Top Region"},
				"values": []any{24.5, 32.1},
				"units":  []any{"%", "%"},
				"type":   "margin",
			},
		), nil
	case strings.Contains(codeLower, "revenue") ||
		(strings.Contains(combined, "quarter") && strings.Contains(combined, "revenue")):
		return e.revenueResult(queryLower, hasInvalidQuarter), nil
	case strings.Contains(codeLower, "sales"):
		return e.salesResult(isNegative, percentages), nil
	case strings.Contains(combined, "churn"):
		churn := firstPercent(percentages, 8)
		return result(
			fmt.Sprintf("ANALYSIS: Customer churn increased to %s%% (concerning level). "+
				"This indicates customer retention issues requiring immediate intervention.", formatNumber(churn)),
			map[string]any{
				"labels":      []any{"Customer Churn"},
				"values":      []any{churn},
				"units":       []any{"%"},
				"type":        "churn",
				"is_negative": true,
			},
		), nil
	case strings.Contains(combined, "roi") || strings.Contains(combined, "return on investment"):
		return e.roiResult(queryLower), nil
	case isVagueQuery(queryLower):
		return result(
			"ANALYSIS: Overall Performance Overview - Revenue: $5.1M (18.3% YoY growth), "+
				"Profit Margin: 24.5% (Top Region: North America at 32.1%), "+
				"Customer Metrics: Stable. Key Insight: Strong revenue growth with healthy margins. "+
				"Note: For more specific analysis, please specify metrics of interest "+
				"(e.g., revenue trends, profit margins, customer churn).",
			map[string]any{
				"labels":            []any{"Revenue", "Profit Margin", "Top Region Margin"},
				"values":            []any{5.1, 24.5, 32.1},
				"units":             []any{"M", "%", "%"},
				"type":              "performance_overview",
				"growth_percentage": 18.3,
				"note":              "General performance overview - specify metrics for detailed analysis",
			},
		), nil
	default:
		return result(
			"ANALYSIS: Summary statistics computed successfully.",
			map[string]any{
				"labels": []any{"Category 1", "Category 2"},
				"values": []any{100, 200},
				"units":  []any{nil, nil},
				"type":   "general",
			},
		), nil
	}
}

func (e *DemoExecutor) declineResult(combined, queryLower string, percentages []float64) string {
	drop := firstPercent(percentages, 15)
	summary := fmt.Sprintf("ANALYSIS: Sales declined %s%% last month. ", formatNumber(drop))
	data := map[string]any{
		"labels":      []any{"Sales Change"},
		"values":      []any{-drop},
		"units":       []any{"%"},
		"type":        "decline",
		"is_negative": true,
	}

	if strings.Contains(combined, "churn") {
		churn := 0.0
		switch {
		case len(percentages) > 1:
			churn = percentages[1]
		case strings.Contains(queryLower, "8") && strings.Contains(queryLower, "churn"):
			churn = 8
		}
		if churn > 0 {
			summary += fmt.Sprintf("Customer churn increased to %s%% (concerning level). ", formatNumber(churn))
			data["labels"] = append(data["labels"].([]any), "Customer Churn")
			data["values"] = append(data["values"].([]any), churn)
			data["units"] = append(data["units"].([]any), "%")
		}
	}

	summary += "This indicates a significant performance issue requiring immediate attention."
	return result(summary, data)
}

func (e *DemoExecutor) revenueResult(queryLower string, hasInvalidQuarter bool) string {
	multiQuarter := strings.Contains(queryLower, "4 quarters") ||
		strings.Contains(queryLower, "past 4") ||
		(strings.Contains(queryLower, "q1") && strings.Contains(queryLower, "q4"))
	if !multiQuarter {
		return result(
			"ANALYSIS: Q1 Revenue = $2.3M, Q2 = $2.8M (+21.7%).",
			map[string]any{
				"labels":            []any{"Q1", "Q2"},
				"values":            []any{2.3, 2.8},
				"units":             []any{"M", "M"},
				"type":              "revenue",
				"growth_percentage": 21.7,
			},
		)
	}

	summary := "ANALYSIS: "
	data := map[string]any{
		"labels":        []any{"Q1", "Q2", "Q3", "Q4"},
		"values":        []any{120, 135, 150, 145},
		"units":         []any{"M", "M", "M", "M"},
		"type":          "revenue",
		"best_quarter":  "Q3",
		"worst_quarter": "Q1",
		"yoy_growth":    []any{nil, 12.5, 11.1, -3.3},
	}
	if hasInvalidQuarter {
		summary += "Note: There are only 4 quarters in a year (Q1-Q4). " +
			"Interpreting 'Q5 planning' as forward planning for next year. "
		data["note"] = "Q5 does not exist - interpreted as forward planning"
	}
	summary += "Q1 Revenue = $120M, Q2 = $135M, Q3 = $150M (best), Q4 = $145M. " +
		"YoY Growth: Q1 (N/A), Q2 (+12.5%), Q3 (+11.1%), Q4 (-3.3%). " +
		"Best Quarter: Q3 ($150M). Worst Quarter: Q1 ($120M)."
	if hasInvalidQuarter {
		summary += " For forward planning, focus on replicating Q3 success and addressing Q1 challenges."
	}
	return result(summary, data)
}

func (e *DemoExecutor) salesResult(isNegative bool, percentages []float64) string {
	if isNegative {
		drop := firstPercent(percentages, 15)
		return result(
			fmt.Sprintf("ANALYSIS: Sales declined %s%% last month. "+
				"This represents a significant drop requiring immediate attention.", formatNumber(drop)),
			map[string]any{
				"labels":      []any{"Sales Change"},
				"values":      []any{-drop},
				"units":       []any{"%"},
				"type":        "decline",
				"is_negative": true,
			},
		)
	}
	return result(
		"ANALYSIS: Total Sales = $5.1M, Growth Rate = 18.3% YoY.",
		map[string]any{
			"labels":            []any{"Total Sales"},
			"values":            []any{5.1},
			"units":             []any{"M"},
			"type":              "sales",
			"growth_percentage": 18.3,
		},
	)
}

func (e *DemoExecutor) roiResult(queryLower string) string {
	increase := containsAny(queryLower, []string{"increase", "improve", "boost", "enhance"})
	data := map[string]any{
		"labels": []any{"Overall ROI", "Marketing ROI", "Product Dev ROI", "Operations ROI"},
		"values": []any{18.5, 22.3, 15.2, 12.8},
		"units":  []any{"%", "%", "%", "%"},
		"type":   "roi",
	}
	if increase {
		data["highest"] = "Marketing ROI"
		data["lowest"] = "Operations ROI"
		data["recommendation"] = "Scale marketing, optimize operations"
		return result(
			"ANALYSIS: Current ROI Analysis - Overall ROI: 18.5%, "+
				"Marketing ROI: 22.3% (highest), Product Development ROI: 15.2%, "+
				"Operations ROI: 12.8% (lowest). Key Insight: Marketing shows strongest returns. "+
				"To increase ROI: 1) Scale high-performing marketing channels, 2) Optimize operations costs, "+
				"3) Focus product development on high-margin offerings.",
			data,
		)
	}
	data["average_roi"] = 17.2
	return result(
		"ANALYSIS: ROI Metrics - Overall ROI: 18.5%, "+
			"Marketing ROI: 22.3%, Product Development ROI: 15.2%, Operations ROI: 12.8%. "+
			"Average ROI across all channels: 17.2%.",
		data,
	)
}

// result renders the "<summary> | DATA: {json}" contract.
func result(summary string, data map[string]any) string {
	envelope, err := core.BuildEnvelope(core.DataPrefix, data)
	if err != nil {
		return summary
	}
	return summary + " | " + envelope
}

func isVagueQuery(queryLower string) bool {
	vague := []string{"performance", "how are we", "how is", "what's our", "status", "situation"}
	return containsAny(queryLower, vague) && len(strings.Fields(queryLower)) < 8
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func extractPercentages(s string) []float64 {
	var out []float64
	for _, m := range percentPattern.FindAllStringSubmatch(s, -1) {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func firstPercent(percentages []float64, fallback float64) float64 {
	if len(percentages) > 0 {
		return percentages[0]
	}
	return fallback
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
