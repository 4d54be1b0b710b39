package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/openai/openai-go/v3"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

const (
	ImageToImageToolName = "image_to_image"

	// DefaultStrength keeps the subject recognizable while allowing the edit.
	DefaultStrength = 0.35
)

// ErrNoImageReturned is returned when the provider answered without an image.
var ErrNoImageReturned = errors.New("provider returned no image")

// ImageToImageArgs are the arguments of the image-to-image tool after normalization.
type ImageToImageArgs struct {
	Prompt   string   `json:"prompt"`
	URL      string   `json:"url"`
	Strength *float64 `json:"strength,omitempty"`
}

// ImageToImageConfig configures the OpenRouter backed image editor.
type ImageToImageConfig struct {
	Model string
}

// ImageToImageTool edits or reimagines a reference image following a prompt.
// Requests go through an OpenAI-compatible chat completions endpoint that
// supports image output modalities.
type ImageToImageTool struct {
	client openai.Client
	model  string
}

type imageEditRequest struct {
	Model      string             `json:"model"`
	Messages   []imageEditMessage `json:"messages"`
	Modalities []string           `json:"modalities"`
}

type imageEditMessage struct {
	Role    string          `json:"role"`
	Content []imageEditPart `json:"content"`
}

type imageEditPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *imageURLField `json:"image_url,omitempty"`
}

type imageURLField struct {
	URL string `json:"url"`
}

type imageEditResponse struct {
	Choices []struct {
		Message struct {
			Content string           `json:"content"`
			Images  []imageEditImage `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

// imageEditImage covers the shapes providers use for an output image.
type imageEditImage struct {
	URL         string        `json:"url"`
	ImageURL    imageURLField `json:"image_url"`
	ImageFormat struct {
		Format string `json:"format"`
	} `json:"image_format"`
}

// NewImageToImageTool creates the image-to-image tool on top of a configured client.
func NewImageToImageTool(client openai.Client, cfg ImageToImageConfig) *ImageToImageTool {
	model := cfg.Model
	if model == "" {
		model = "black-forest-labs/flux.2-flex"
	}
	return &ImageToImageTool{client: client, model: model}
}

func (t *ImageToImageTool) Name() string { return ImageToImageToolName }

func (t *ImageToImageTool) Description() string {
	return "Edit or transform the image the user attached, following a prompt. Use it whenever the user supplied a reference image and wants a changed version of it."
}

func (t *ImageToImageTool) Kind() ports.ToolKind { return ports.KindImageToImage }

// Invoke sends the prompt and reference image and returns the generated image.
func (t *ImageToImageTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var params ImageToImageArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	params.Prompt = strings.TrimSpace(params.Prompt)
	if params.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if strings.TrimSpace(params.URL) == "" {
		return nil, fmt.Errorf("a reference image url is required")
	}

	strength := DefaultStrength
	if params.Strength != nil {
		strength = ClampStrength(*params.Strength)
	}

	body := imageEditRequest{
		Model: t.model,
		Messages: []imageEditMessage{{
			Role: "user",
			Content: []imageEditPart{
				{Type: "text", Text: editInstruction(params.Prompt, strength)},
				{Type: "image_url", ImageURL: &imageURLField{URL: params.URL}},
			},
		}},
		Modalities: []string{"image"},
	}

	var res imageEditResponse
	if err := t.client.Post(ctx, "chat/completions", body, &res); err != nil {
		return nil, fmt.Errorf("image to image request failed: %w", err)
	}

	for _, choice := range res.Choices {
		for _, img := range choice.Message.Images {
			if format := img.payload(); format != "" {
				return &GeneratedImage{Format: format}, nil
			}
		}
	}

	return nil, ErrNoImageReturned
}

// payload resolves the image: the nested format field first, then a url that
// already is a data URI or a hosted image, then raw base64 in either url field.
func (i imageEditImage) payload() string {
	if f := strings.TrimSpace(i.ImageFormat.Format); f != "" {
		return asDataURI(f)
	}
	for _, u := range []string{i.URL, i.ImageURL.URL} {
		if strings.HasPrefix(u, "data:") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://") {
			return u
		}
	}
	for _, u := range []string{i.URL, i.ImageURL.URL} {
		if u = strings.TrimSpace(u); u != "" {
			return asDataURI(u)
		}
	}
	return ""
}

func asDataURI(payload string) string {
	if strings.HasPrefix(payload, "data:") {
		return payload
	}
	return "data:image/png;base64," + payload
}

// ClampStrength bounds strength to [0,1]. NaN counts as unset.
func ClampStrength(s float64) float64 {
	switch {
	case math.IsNaN(s):
		return DefaultStrength
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

func editInstruction(prompt string, strength float64) string {
	return fmt.Sprintf("%s\n\nEdit strength: %.2f on a 0 to 1 scale. Near 0 keeps the reference image and its subject unchanged apart from the request; near 1 allows a free reinterpretation.", prompt, strength)
}

var _ ports.Tool = (*ImageToImageTool)(nil)
