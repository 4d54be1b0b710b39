package harness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

const (
	defaultVisionTimeout = 20 * time.Second
	visionMaxTokens      = 256
	visionCachePrefix    = "vision:"
)

const visionInstruction = "Describe this image as a comma-separated list of tags only. " +
	"Cover the main subject, distinguishing physical attributes, hair, clothing, " +
	"facial expression and the background. The tags must let someone who cannot " +
	"see the image recreate the same subject. Do not write sentences."

// VisionPreprocessor describes a reference image so the text-only planning
// call can reason about the subject. It is best-effort: every failure
// degrades to an empty description.
type VisionPreprocessor struct {
	provider ports.Provider
	cache    ports.Cache
	model    string
	timeout  time.Duration
	ttl      int
	logger   zerolog.Logger
}

// NewVisionPreprocessor creates a preprocessor. cache may be nil.
func NewVisionPreprocessor(provider ports.Provider, cache ports.Cache, model string, timeout time.Duration, ttlSeconds int, logger zerolog.Logger) *VisionPreprocessor {
	if timeout <= 0 {
		timeout = defaultVisionTimeout
	}
	return &VisionPreprocessor{
		provider: provider,
		cache:    cache,
		model:    model,
		timeout:  timeout,
		ttl:      ttlSeconds,
		logger:   logger,
	}
}

// Describe returns comma-separated tags for the image, or "" on any failure.
func (v *VisionPreprocessor) Describe(ctx context.Context, imageURL string) string {
	imageURL = strings.TrimSpace(imageURL)
	if v == nil || v.provider == nil || imageURL == "" {
		return ""
	}

	key := visionCacheKey(imageURL)
	if v.cache != nil {
		if cached, ok := v.cache.Get(ctx, key); ok {
			return string(cached)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	completion, err := v.provider.Complete(ctx, ports.PromptInput{
		Messages: []ports.PromptMessage{{
			Role:     "user",
			Content:  visionInstruction,
			ImageURL: imageURL,
		}},
		Meta: map[string]string{"stage": "vision"},
	}, ports.Options{
		Model:        v.model,
		MaxNewTokens: visionMaxTokens,
		ToolChoice:   "none",
	})
	if err != nil {
		v.logger.Warn().Err(err).Msg("reference image description failed")
		return ""
	}

	description := strings.TrimSpace(ScrubOutput(completion.Text))
	if description == "" {
		return ""
	}

	if v.cache != nil {
		if err := v.cache.Set(ctx, key, []byte(description), v.ttl); err != nil {
			v.logger.Debug().Err(err).Msg("failed to cache image description")
		}
	}
	return description
}

// AnnotatePrompt builds the user turn for planning: the description as a
// bracketed prefix and the attachment marker as a suffix.
func AnnotatePrompt(prompt, description string, hasImage bool) string {
	var b strings.Builder
	if description != "" {
		b.WriteString("[REFERENCE IMAGE DESCRIPTION: ")
		b.WriteString(description)
		b.WriteString("]\n\n")
	}
	b.WriteString(strings.TrimSpace(prompt))
	if hasImage {
		b.WriteString("\n\n")
		b.WriteString(ImageAttachedMarker)
	}
	return b.String()
}

func visionCacheKey(imageURL string) string {
	sum := sha256.Sum256([]byte(imageURL))
	return visionCachePrefix + hex.EncodeToString(sum[:])
}
