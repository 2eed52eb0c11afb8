// Package anthropic adapts the Anthropic Messages API (streaming and
// non-streaming, with tool calling) to the model.Provider contract.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/model"
)

// Options configures the Anthropic provider (model id, max tokens, API key).
// Extend via functional options to preserve stability.
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
	APIKey    string
}

// Provider wraps the Anthropic Messages API behind the model.Provider
// interface.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Provider = (*Provider)(nil)

// New creates an Anthropic provider using the official client. The API key is
// read from the environment unless overridden via Options.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates an Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// WithModel overrides the default model id.
func WithModel(m anthropic.Model) func(o *Options) {
	return func(o *Options) { o.Model = m }
}

// WithMaxTokens overrides the per-turn output token limit.
func WithMaxTokens(n int64) func(o *Options) {
	return func(o *Options) { o.MaxTokens = n }
}

// WithAPIKey sets an explicit API key.
func WithAPIKey(key string) func(o *Options) {
	return func(o *Options) { o.APIKey = key }
}

// DefaultModel implements model.Provider.
func (p *Provider) DefaultModel() string { return string(p.opts.Model) }

// Complete implements non-streaming generation.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params := p.buildParams(req)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAPIError("anthropic api error", err)
	}
	return responseFromMessage(msg), nil
}

// Stream implements streaming generation. Vendor events are normalized into
// the model stream vocabulary; the accumulated message yields the
// authoritative done snapshot.
func (p *Provider) Stream(ctx context.Context, req model.Request) (<-chan model.StreamEvent, <-chan error) {
	out := make(chan model.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := p.buildParams(req)
		stream := p.client.Messages.NewStreaming(ctx, params)

		send := func(ev model.StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		msg := anthropic.Message{}
		callIDByIndex := make(map[int64]string)

		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				errCh <- &core.ProviderError{Message: "anthropic stream accumulation failed", Err: err}
				return
			}

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if variant.ContentBlock.Type != "tool_use" {
					continue
				}
				callIDByIndex[variant.Index] = variant.ContentBlock.ID
				if !send(model.ToolCallStart(variant.ContentBlock.ID, variant.ContentBlock.Name)) {
					return
				}

			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text == "" {
						continue
					}
					if !send(model.TextDelta(delta.Text)) {
						return
					}
				case anthropic.InputJSONDelta:
					callID, tracked := callIDByIndex[variant.Index]
					if !tracked || delta.PartialJSON == "" {
						continue
					}
					if !send(model.ToolCallDelta(callID, delta.PartialJSON)) {
						return
					}
				}

			case anthropic.ContentBlockStopEvent:
				if callID, tracked := callIDByIndex[variant.Index]; tracked {
					if !send(model.ToolCallStop(callID)) {
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- classifyAPIError("anthropic streaming error", err)
			return
		}

		send(model.Done(*responseFromMessage(&msg)))
	}()

	return out, errCh
}

// classifyAPIError maps vendor HTTP failures onto the typed error taxonomy.
// Credential rejections and rate limits get their own types; everything else
// stays a ProviderError.
func classifyAPIError(msg string, err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", core.ErrAuthenticationFailed, err)
		case http.StatusTooManyRequests:
			return &core.RateLimitedError{RetryAfter: retryAfter(apierr.Response)}
		}
	}
	return &core.ProviderError{Message: msg, Err: err}
}

// retryAfter reads the Retry-After header when the vendor supplied one.
// Only the delay-seconds form is honored.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// buildParams assembles the vendor request from the normalized one.
func (p *Provider) buildParams(req model.Request) anthropic.MessageNewParams {
	modelID := p.opts.Model
	if req.Model != "" {
		modelID = anthropic.Model(req.Model)
	}
	maxTokens := p.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     modelID,
		MaxTokens: maxTokens,
		Messages:  buildMessages(req.Messages),
	}
	if system := collectSystemText(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

// collectSystemText joins system-role message content; Anthropic takes the
// system prompt as a top-level parameter, not a message.
func collectSystemText(messages []core.Message) string {
	var system string
	for _, m := range messages {
		if m.Role != core.RoleSystem || m.Content == "" {
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += m.Content
	}
	return system
}

// buildMessages converts the transcript into Anthropic message params. Tool
// results become tool_result blocks inside user messages; consecutive results
// are batched into one user message to keep roles alternating.
func buildMessages(messages []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) == 0 {
			return
		}
		out = append(out, anthropic.NewUserMessage(pendingResults...))
		pendingResults = nil
	}

	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			continue

		case core.RoleUser:
			flushResults()
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}

		case core.RoleAssistant:
			flushResults()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				var input any
				if call.Arguments != "" {
					if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
						input = call.Arguments
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case core.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
		}
	}
	flushResults()
	return out
}

// buildTools converts normalized tool definitions to Anthropic tool params.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if t.InputSchema != nil {
			if properties, exists := t.InputSchema["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := t.InputSchema["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					for _, r := range req {
						if s, ok := r.(string); ok {
							inputSchema.Required = append(inputSchema.Required, s)
						}
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, t.Name)
	}
	return out
}

// responseFromMessage converts a complete vendor message into the normalized
// response, tool-call snapshot included.
func responseFromMessage(msg *anthropic.Message) *model.Response {
	resp := &model.Response{
		FinishReason: mapStopReason(msg.StopReason),
		Usage: &core.TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if raw, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(raw)
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}
	return resp
}

func mapStopReason(reason anthropic.StopReason) model.FinishReason {
	switch reason {
	case anthropic.StopReasonToolUse:
		return model.FinishToolUse
	case anthropic.StopReasonMaxTokens:
		return model.FinishMaxTokens
	case anthropic.StopReasonStopSequence:
		return model.FinishStopSequence
	default:
		return model.FinishStop
	}
}
