package harnessports

import (
	"context"
)

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role       string     // "system", "user", "assistant", "tool"
	Content    string
	ImageURL   string     // optional image part for vision-capable models (user role only)
	ToolCallID string     // set on "tool" messages, links the result to its invocation
	ToolCalls  []ToolCall // set on "assistant" messages that requested tools
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // high-level system instructions
	Messages []PromptMessage   // ordered chat history (already windowed and sanitized)
	Tools    []ToolSpec        // tool declarations available to the model
	Meta     map[string]string // lightweight metadata for tracing
}

// Options controls sampling, limits, model selection and tool preferences.
type Options struct {
	Model        string // empty selects the provider default
	MaxNewTokens int
	Temperature  float32
	// ToolChoice: "auto" | "none" | "required"
	ToolChoice string
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *Usage // optional usage information
}

// Provider is the abstraction for chat completion backends.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
