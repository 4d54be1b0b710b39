package harness

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"
	"github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
	"github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/tools"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // Optional, for chat history
	logger zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
}

// CreateOrchestrator creates a fully wired Orchestrator from config. The
// provider is injected separately so tests can stub it.
func (f *Factory) CreateOrchestrator(provider ports.Provider, toolset ...ports.Tool) (*Orchestrator, error) {
	guardrails := f.CreateGuardrails()

	registry, err := f.CreateRegistry(guardrails, toolset...)
	if err != nil {
		return nil, err
	}

	cache := f.createCache()
	hc := f.cfg.Harness

	return NewOrchestrator(Components{
		Provider:   provider,
		Registry:   registry,
		Guardrails: guardrails,
		Vision:     NewVisionPreprocessor(provider, cache, f.cfg.LLM.VisionModel, hc.VisionTimeout, hc.CacheTTLSeconds, f.logger),
		Store:      f.createStore(),
		Limiter:    f.createRateLimiter(),
		Tracer:     f.createTracer(),
	}, f.CreatePolicy(), f.logger)
}

// CreateTools builds the image tools from the tools config section.
func (f *Factory) CreateTools(client openai.Client, httpClient *http.Client) []ports.Tool {
	tc := f.cfg.Tools
	return []ports.Tool{
		tools.NewPexelsSearchTool(tools.PexelsConfig{
			BaseURL:    tc.PexelsBaseURL,
			APIKey:     tc.PexelsAPIKey,
			PerPage:    tc.PexelsPerPage,
			HTTPClient: httpClient,
		}),
		tools.NewTextToImageTool(tools.TextToImageConfig{
			BaseURL:        tc.HFBaseURL,
			Token:          tc.HFToken,
			Model:          tc.HFModel,
			InferenceSteps: tc.HFInferenceSteps,
			HTTPClient:     httpClient,
		}),
		tools.NewImageToImageTool(client, tools.ImageToImageConfig{
			Model: tc.ImageEditModel,
		}),
	}
}

// CreateRegistry registers the tools the guardrails allow.
func (f *Factory) CreateRegistry(guardrails *Guardrails, toolset ...ports.Tool) (*Registry, error) {
	allowed := make([]ports.Tool, 0, len(toolset))
	for _, tool := range toolset {
		if !guardrails.Allowed(tool.Name()) {
			f.logger.Info().Str("tool", tool.Name()).Msg("tool not in allowlist, skipping")
			continue
		}
		allowed = append(allowed, tool)
	}
	return NewRegistry(allowed...)
}

// createCache creates a cache adapter from config.
func (f *Factory) createCache() ports.Cache {
	if !f.cfg.Harness.CacheEnabled {
		return &noOpCache{}
	}

	return adapters.NewLRUCache(f.cfg.Harness.CacheCapacity)
}

// createRateLimiter creates a rate limiter adapter from config.
func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return noOpRateLimiter{}
	}

	return adapters.NewTokenBucket(f.cfg.Harness.RateLimitCapacity, f.cfg.Harness.RateLimitRefillRate)
}

// createTracer creates a tracer adapter from config.
func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return noOpTracer{}
	}

	return adapters.NewZerologTracer(f.logger)
}

// createStore creates a chat history adapter from config.
func (f *Factory) createStore() ports.HistoryStore {
	if f.db == nil {
		return noOpStore{}
	}

	return adapters.NewSQLHistoryStore(f.db)
}

// CreateGuardrails creates guardrails from config.
func (f *Factory) CreateGuardrails() *Guardrails {
	return NewGuardrails(f.cfg.Harness.AllowedTools...)
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	hc := f.cfg.Harness
	policy := &Policy{
		ContextTurns:     hc.ContextTurns,
		ProviderTimeout:  hc.ProviderTimeout,
		ToolTimeout:      hc.ToolTimeout,
		ToolConcurrency:  hc.ToolConcurrency,
		ValidateToolArgs: hc.ValidateToolArgs,
		PlannerModel:     f.cfg.LLM.PlannerModel,
		MaxNewTokens:     f.cfg.LLM.MaxNewTokens,
		Temperature:      f.cfg.LLM.Temperature,
	}

	// Validate and clamp policy values
	if policy.ContextTurns < 1 {
		policy.ContextTurns = DefaultContextTurns
		f.logger.Warn().Int("context_turns", hc.ContextTurns).Msg("ContextTurns reset to default")
	}
	if policy.ContextTurns > 50 {
		policy.ContextTurns = 50
		f.logger.Warn().Int("context_turns", hc.ContextTurns).Msg("ContextTurns clamped to maximum of 50")
	}

	if policy.ToolConcurrency < 1 {
		policy.ToolConcurrency = 1
		f.logger.Warn().Int("tool_concurrency", hc.ToolConcurrency).Msg("ToolConcurrency clamped to minimum of 1")
	}
	if policy.ToolConcurrency > 16 {
		policy.ToolConcurrency = 16
		f.logger.Warn().Int("tool_concurrency", hc.ToolConcurrency).Msg("ToolConcurrency clamped to maximum of 16")
	}

	if policy.ToolTimeout < time.Second {
		policy.ToolTimeout = defaultToolTimeout
		f.logger.Warn().Dur("tool_timeout", hc.ToolTimeout).Msg("ToolTimeout reset to default")
	}
	if policy.ProviderTimeout < time.Second {
		policy.ProviderTimeout = DefaultPolicy().ProviderTimeout
		f.logger.Warn().Dur("provider_timeout", hc.ProviderTimeout).Msg("ProviderTimeout reset to default")
	}

	if policy.MaxNewTokens < 1 {
		policy.MaxNewTokens = DefaultPolicy().MaxNewTokens
	}

	return policy
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpStore implements HistoryStore interface with no-op behavior.
type noOpStore struct{}

func (noOpStore) Append(ctx context.Context, turn ports.Turn) error { return nil }

func (noOpStore) Recent(ctx context.Context, userID string, k int) ([]ports.Turn, error) {
	return nil, nil
}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache        = (*noOpCache)(nil)
	_ ports.RateLimiter  = noOpRateLimiter{}
	_ ports.Tracer       = noOpTracer{}
	_ ports.HistoryStore = noOpStore{}
)
