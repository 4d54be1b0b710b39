package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"
	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

const toolCallResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "planner",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [{
        "id": "call_abc",
        "type": "function",
        "function": {"name": "search_images", "arguments": "{\"query\":\"desk\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
}`

const textResponse = `{
  "id": "chatcmpl-2",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "vision",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "cat, sofa"}}],
  "usage": {"prompt_tokens": 40, "completion_tokens": 4, "total_tokens": 44}
}`

type capturedRequest struct {
	Path string
	Auth string
	Body map[string]any
}

type recorder struct {
	mu       sync.Mutex
	requests []capturedRequest
}

func (r *recorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.requests...)
}

func newChatServer(t *testing.T, response string, status int) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, capturedRequest{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: body})
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestProvider(srvURL string) *OpenAIProvider {
	client := NewClient(config.LLMConfig{BaseURL: srvURL + "/v1", APIKey: "sk-test"})
	return NewOpenAIProvider(client, "default-model", zerolog.Nop())
}

func TestOpenAIProvider_ToolCalls(t *testing.T) {
	srv, captured := newChatServer(t, toolCallResponse, http.StatusOK)
	provider := newTestProvider(srv.URL)

	completion, err := provider.Complete(context.Background(), ports.PromptInput{
		System: "be helpful",
		Messages: []ports.PromptMessage{
			{Role: "user", Content: "earlier"},
			{Role: "assistant", Content: "reply"},
			{Role: "user", Content: "find desks"},
		},
		Tools: []ports.ToolSpec{{
			Name:        "search_images",
			Description: "search photos",
			JSONSchema:  []byte(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
		}},
	}, ports.Options{Model: "planner", MaxNewTokens: 256, Temperature: 0.5, ToolChoice: "auto"})
	require.NoError(t, err)

	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, "call_abc", completion.ToolCalls[0].ID)
	assert.Equal(t, "search_images", completion.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"desk"}`, string(completion.ToolCalls[0].Args))
	require.NotNil(t, completion.Usage)
	assert.Equal(t, 15, completion.Usage.TotalTokens)

	requests := captured.all()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "/v1/chat/completions", req.Path)
	assert.Equal(t, "Bearer sk-test", req.Auth)
	assert.Equal(t, "planner", req.Body["model"])
	assert.Equal(t, "auto", req.Body["tool_choice"])
	assert.EqualValues(t, 256, req.Body["max_tokens"])

	messages, ok := req.Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])

	tools, ok := req.Body["tools"].([]any)
	require.True(t, ok)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "search_images", fn["name"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])
}

func TestOpenAIProvider_ImageAndToolMessages(t *testing.T) {
	srv, captured := newChatServer(t, textResponse, http.StatusOK)
	provider := newTestProvider(srv.URL)

	completion, err := provider.Complete(context.Background(), ports.PromptInput{
		Messages: []ports.PromptMessage{
			{Role: "user", Content: "describe", ImageURL: "https://example.com/cat.jpg"},
			{Role: "assistant", ToolCalls: []ports.ToolCall{{ID: "c1", Name: "search_images", Args: json.RawMessage(`{"query":"cat"}`)}}},
			{Role: "tool", Content: `{"photos":[]}`, ToolCallID: "c1"},
		},
	}, ports.Options{ToolChoice: "none"})
	require.NoError(t, err)
	assert.Equal(t, "cat, sofa", completion.Text)
	assert.Empty(t, completion.ToolCalls)

	requests := captured.all()
	require.Len(t, requests, 1)
	body := requests[0].Body
	assert.Equal(t, "default-model", body["model"])
	assert.NotContains(t, body, "tool_choice")
	assert.NotContains(t, body, "tools")

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)

	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "https://example.com/cat.jpg", image["image_url"].(map[string]any)["url"])

	assistant := messages[1].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].(map[string]any)["id"])

	tool := messages[2].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "c1", tool["tool_call_id"])
	assert.Equal(t, `{"photos":[]}`, tool["content"])
}

func TestOpenAIProvider_Errors(t *testing.T) {
	srv, _ := newChatServer(t, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, http.StatusUnauthorized)
	_, err := newTestProvider(srv.URL).Complete(context.Background(), ports.PromptInput{
		Messages: []ports.PromptMessage{{Role: "user", Content: "hi"}},
	}, ports.Options{})
	assert.ErrorContains(t, err, "chat completion failed")

	empty, _ := newChatServer(t, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, http.StatusOK)
	_, err = newTestProvider(empty.URL).Complete(context.Background(), ports.PromptInput{
		Messages: []ports.PromptMessage{{Role: "user", Content: "hi"}},
	}, ports.Options{})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	noModel := NewOpenAIProvider(NewClient(config.LLMConfig{BaseURL: empty.URL}), "", zerolog.Nop())
	_, err = noModel.Complete(context.Background(), ports.PromptInput{}, ports.Options{})
	assert.ErrorContains(t, err, "no model configured")
}
