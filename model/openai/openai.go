// Package openai adapts the OpenAI Chat Completions API (streaming and
// non-streaming, with function/tool calling) to the model.Provider contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/model"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// keyed by the chunk's tool call index.
type aggCall struct{ id, name, args string }

// Options configures the OpenAI provider. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal.
type Options struct {
	Model               string
	MaxCompletionTokens int64
	APIKey              string
}

// Provider wraps the OpenAI Chat Completions API behind the model.Provider
// interface.
type Provider struct {
	client *openai.Client
	opts   Options
}

var _ model.Provider = (*Provider)(nil)

// New creates an OpenAI provider using the official client. The API key is
// read from the environment unless overridden via Options.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates an OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// WithModel overrides the default model id.
func WithModel(m string) func(o *Options) {
	return func(o *Options) { o.Model = m }
}

// WithMaxCompletionTokens overrides the per-turn output token limit.
func WithMaxCompletionTokens(n int64) func(o *Options) {
	return func(o *Options) { o.MaxCompletionTokens = n }
}

// WithAPIKey sets an explicit API key.
func WithAPIKey(key string) func(o *Options) {
	return func(o *Options) { o.APIKey = key }
}

// DefaultModel implements model.Provider.
func (p *Provider) DefaultModel() string { return p.opts.Model }

// Complete implements non-streaming generation.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params := p.buildParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyAPIError("openai api error", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &core.InvalidResponseError{Message: "openai returned no choices"}
	}

	choice := resp.Choices[0]
	out := &model.Response{
		Content:      choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: &core.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Stream implements streaming generation. Chunk deltas are normalized into
// the model stream vocabulary; aggregated tool calls form the authoritative
// done snapshot.
func (p *Provider) Stream(ctx context.Context, req model.Request) (<-chan model.StreamEvent, <-chan error) {
	out := make(chan model.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := p.buildParams(req)
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)

		send := func(ev model.StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		toolAgg := make(map[int64]*aggCall)
		var order []int64
		var content string
		var usage *core.TokenUsage
		var finishReason string

		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = &core.TokenUsage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				}
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					content += choice.Delta.Content
					if !send(model.TextDelta(choice.Delta.Content)) {
						return
					}
				}

				for _, tc := range choice.Delta.ToolCalls {
					ac, tracked := toolAgg[tc.Index]
					if !tracked {
						ac = &aggCall{}
						toolAgg[tc.Index] = ac
						order = append(order, tc.Index)
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" && ac.name == "" {
						ac.name = tc.Function.Name
						if !send(model.ToolCallStart(ac.id, ac.name)) {
							return
						}
					}
					if tc.Function.Arguments != "" {
						ac.args += tc.Function.Arguments
						if !send(model.ToolCallDelta(ac.id, tc.Function.Arguments)) {
							return
						}
					}
				}

				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
					for _, idx := range order {
						if !send(model.ToolCallStop(toolAgg[idx].id)) {
							return
						}
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			errCh <- classifyAPIError("openai streaming error", err)
			return
		}

		resp := model.Response{
			Content:      content,
			FinishReason: mapFinishReason(finishReason),
			Usage:        usage,
		}
		for _, idx := range order {
			ac := toolAgg[idx]
			resp.ToolCalls = append(resp.ToolCalls, core.ToolCall{
				ID:        ac.id,
				Name:      ac.name,
				Arguments: ac.args,
			})
		}
		send(model.Done(resp))
	}()

	return out, errCh
}

// classifyAPIError maps vendor HTTP failures onto the typed error taxonomy.
// Credential rejections and rate limits get their own types; everything else
// stays a ProviderError.
func classifyAPIError(msg string, err error) error {
	var apierr *openai.Error
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

// buildParams assembles the vendor request including tool definitions.
func (p *Provider) buildParams(req model.Request) openai.ChatCompletionNewParams {
	modelID := p.opts.Model
	if req.Model != "" {
		modelID = req.Model
	}
	maxTokens := p.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Messages),
		Model:               modelID,
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  t.InputSchema,
				},
			}
		}
		params.Tools = tools
	}
	return params
}

// buildMessages converts the transcript into chat completion messages. Tool
// results map directly onto the API's tool role keyed by call id.
func buildMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))

		case core.RoleUser:
			out = append(out, openai.UserMessage(m.Content))

		case core.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, call := range m.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   call.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				}
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCalls,
			}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})

		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func mapFinishReason(reason string) model.FinishReason {
	switch reason {
	case "tool_calls", "function_call":
		return model.FinishToolUse
	case "length":
		return model.FinishMaxTokens
	default:
		return model.FinishStop
	}
}
