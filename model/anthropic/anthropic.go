// Package anthropic implements model.Backend on the Anthropic Messages API.
// Structured output is requested through a forced tool choice: the response
// schema is exposed as a single tool the model must call, and the tool input
// is returned as the structured payload.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/tshapedconsultant/datateam/core"
	"github.com/tshapedconsultant/datateam/model"
)

// Options configures the Anthropic backend (model id, temperature, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Backend wraps the Anthropic Messages API behind model.Backend.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// New creates an Anthropic backend using the official client. Without an
// explicit APIKey option the client reads ANTHROPIC_API_KEY from the
// environment.
func New(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewFromClient creates an Anthropic backend from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.1,
		MaxTokens:   4096,
	}
}

// Complete implements model.Backend.
func (b *Backend) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       b.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   b.opts.MaxTokens,
		Temperature: anthropic.Float(b.opts.Temperature),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	if req.Schema != nil {
		params.Tools = append(params.Tools, schemaTool(req.Schema))
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Schema.Name},
		}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return model.Response{}, fmt.Errorf("anthropic api error: %w", err)
	}

	if req.Schema != nil {
		return extractStructured(resp, req.Schema.Name)
	}

	msg := core.Message{Role: core.RoleAI}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args, err := decodeToolInput(toolBlock.Input)
			if err != nil {
				return model.Response{}, fmt.Errorf("anthropic tool input: %w", err)
			}
			msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
				ID:   toolBlock.ID,
				Name: toolBlock.Name,
				Args: args,
			})
		}
	}
	return model.Response{Message: msg}, nil
}

// extractStructured pulls the forced tool call's input out of the response.
func extractStructured(resp *anthropic.Message, name string) (model.Response, error) {
	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		toolBlock := block.AsToolUse()
		if toolBlock.Name != name {
			continue
		}
		raw, err := json.Marshal(toolBlock.Input)
		if err != nil {
			return model.Response{}, fmt.Errorf("anthropic structured response: %w", err)
		}
		return model.Response{Structured: raw}, nil
	}
	return model.Response{}, fmt.Errorf("anthropic api error: structured response %q missing", name)
}

// decodeToolInput normalizes the SDK's tool input payload into an argument
// map.
func decodeToolInput(input any) (map[string]any, error) {
	args := map[string]any{}
	if input == nil {
		return args, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// buildMessages converts the normalized history to Anthropic message params.
// Tool results become user-role tool_result blocks per the Messages API.
func buildMessages(messages []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleAI:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		default:
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}
	return out
}

func buildTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema(def.Parameters), def.Name)
	}
	return tools
}

func schemaTool(schema *model.ResponseSchema) anthropic.ToolUnionParam {
	return anthropic.ToolUnionParamOfTool(inputSchema(schema.Parameters), schema.Name)
}

func inputSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}
	if params == nil {
		return schema
	}
	if properties, ok := params["properties"]; ok {
		schema.Properties = properties
	}
	switch required := params["required"].(type) {
	case []string:
		schema.Required = required
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

// Info returns metadata describing this backend.
func (b *Backend) Info() model.Info {
	return model.Info{
		Name:          string(b.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
