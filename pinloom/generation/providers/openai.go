package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"
	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

// ErrEmptyResponse is returned when the endpoint answers without choices.
var ErrEmptyResponse = errors.New("empty response from model")

// NewClient builds an openai-go client for any OpenAI-compatible endpoint.
// Retries are off unless llm.max_retries opts in.
func NewClient(cfg config.LLMConfig) openai.Client {
	opts := []option.RequestOption{
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return openai.NewClient(opts...)
}

// OpenAIProvider implements ports.Provider over the chat completions API.
type OpenAIProvider struct {
	client       openai.Client
	defaultModel string
	logger       zerolog.Logger
}

// NewOpenAIProvider creates a provider. defaultModel is used when the call
// options leave the model empty.
func NewOpenAIProvider(client openai.Client, defaultModel string, logger zerolog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		client:       client,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Complete runs one non-streaming chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	params, err := p.buildParams(in, opts)
	if err != nil {
		return ports.Completion{}, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.Completion{}, ErrEmptyResponse
	}

	msg := resp.Choices[0].Message
	completion := ports.Completion{
		Text: msg.Content,
		Usage: &ports.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		completion.ToolCalls = append(completion.ToolCalls, ports.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}

	p.logger.Debug().
		Str("model", string(params.Model)).
		Int("tool_calls", len(completion.ToolCalls)).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat completion")

	return completion, nil
}

func (p *OpenAIProvider) buildParams(in ports.PromptInput, opts ports.Options) (openai.ChatCompletionNewParams, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return openai.ChatCompletionNewParams{}, errors.New("no model configured")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages)+1)
	if strings.TrimSpace(in.System) != "" {
		messages = append(messages, openai.SystemMessage(in.System))
	}
	for _, m := range in.Messages {
		messages = append(messages, toMessageParam(m))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if opts.MaxNewTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxNewTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(opts.Temperature))
	}

	if len(in.Tools) > 0 {
		tools, err := toToolParams(in.Tools)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.Tools = tools
		if opts.ToolChoice != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(opts.ToolChoice),
			}
		}
	}

	return params, nil
}

func toMessageParam(m ports.PromptMessage) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case "system":
		return openai.SystemMessage(m.Content)
	case "assistant":
		if len(m.ToolCalls) == 0 {
			return openai.AssistantMessage(m.Content)
		}
		calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			args := string(tc.Args)
			if args == "" {
				args = "{}"
			}
			calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: args,
					},
				},
			})
		}
		assistant := &openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
		if m.Content != "" {
			assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: openai.String(m.Content),
			}
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: assistant}
	case "tool":
		return openai.ToolMessage(m.Content, m.ToolCallID)
	default:
		if m.ImageURL == "" {
			return openai.UserMessage(m.Content)
		}
		return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(m.Content),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: m.ImageURL}),
		})
	}
}

func toToolParams(specs []ports.ToolSpec) ([]openai.ChatCompletionToolUnionParam, error) {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var parameters openai.FunctionParameters
		if len(spec.JSONSchema) > 0 {
			if err := json.Unmarshal(spec.JSONSchema, &parameters); err != nil {
				return nil, fmt.Errorf("invalid schema for tool %s: %w", spec.Name, err)
			}
		}
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  parameters,
		}))
	}
	return tools, nil
}

var _ ports.Provider = (*OpenAIProvider)(nil)
