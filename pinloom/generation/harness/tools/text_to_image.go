package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

const TextToImageToolName = "text_to_image"

// maxImageBytes bounds a single generated image read from a provider.
const maxImageBytes = 20 << 20

// TextToImageArgs are the model-supplied arguments of the text-to-image tool.
type TextToImageArgs struct {
	Query string `json:"query"`
}

// TextToImageConfig configures the Hugging Face inference backed generator.
type TextToImageConfig struct {
	BaseURL        string
	Token          string
	Model          string
	InferenceSteps int
	HTTPClient     *http.Client
}

// TextToImageTool generates one image from a text description.
type TextToImageTool struct {
	client  *http.Client
	baseURL string
	token   string
	model   string
	steps   int
}

type hfTextToImageRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters hfTextToImageParam `json:"parameters"`
}

type hfTextToImageParam struct {
	NumInferenceSteps int `json:"num_inference_steps"`
}

// NewTextToImageTool creates the text-to-image tool.
func NewTextToImageTool(cfg TextToImageConfig) *TextToImageTool {
	steps := cfg.InferenceSteps
	if steps <= 0 {
		steps = 5
	}
	model := cfg.Model
	if model == "" {
		model = "black-forest-labs/FLUX.1-schnell"
	}
	return &TextToImageTool{
		client:  defaultHTTPClient(cfg.HTTPClient),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		model:   model,
		steps:   steps,
	}
}

func (t *TextToImageTool) Name() string { return TextToImageToolName }

func (t *TextToImageTool) Description() string {
	return "Generate a brand new image from a detailed text description. Use it when the user has not supplied a reference image."
}

func (t *TextToImageTool) Kind() ports.ToolKind { return ports.KindTextToImage }

// Invoke generates the image and returns it as a data URI.
func (t *TextToImageTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var params TextToImageArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	params.Query = strings.TrimSpace(params.Query)
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	body, err := json.Marshal(hfTextToImageRequest{
		Inputs:     params.Query,
		Parameters: hfTextToImageParam{NumInferenceSteps: t.steps},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/models/"+t.model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("text to image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newProviderError(TextToImageToolName, resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		// The inference API answers some failures (model loading) with 200 + JSON.
		return nil, newProviderError(TextToImageToolName, resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read generated image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("provider returned an empty image")
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("generated image exceeds %d bytes", maxImageBytes)
	}

	return &GeneratedImage{Format: EncodeDataURI(contentType, data)}, nil
}

var _ ports.Tool = (*TextToImageTool)(nil)
