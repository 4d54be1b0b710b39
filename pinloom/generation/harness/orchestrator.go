package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

// State is a step of one orchestration run.
type State int

const (
	StatePlanning State = iota
	StateToolsRequested
	StateExecuting
	StateSummarizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateToolsRequested:
		return "tools_requested"
	case StateExecuting:
		return "executing"
	case StateSummarizing:
		return "summarizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// ChatRequest is one user utterance with its optional reference image.
type ChatRequest struct {
	UserID   string
	Prompt   string
	ImageURL string       // URL or data URI attached to this turn
	History  []ports.Turn // caller-supplied history; nil loads it from the store
}

// ChatResponse is the final output of the orchestrator.
type ChatResponse struct {
	Result string     `json:"result"`
	Data   *Artifacts `json:"data,omitempty"`
}

// Policy controls orchestration behavior.
type Policy struct {
	ContextTurns     int           // sanitized history turns in the window
	ProviderTimeout  time.Duration // planning and summarizing calls
	ToolTimeout      time.Duration // per tool invocation
	ToolConcurrency  int           // max concurrent tool executions
	ValidateToolArgs bool          // check normalized args against the schema
	PlannerModel     string
	MaxNewTokens     int
	Temperature      float32
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		ContextTurns:     DefaultContextTurns,
		ProviderTimeout:  60 * time.Second,
		ToolTimeout:      defaultToolTimeout,
		ToolConcurrency:  defaultToolConcurrency,
		ValidateToolArgs: true,
		MaxNewTokens:     1024,
		Temperature:      0.7,
	}
}

// Components are the collaborators of an Orchestrator. Provider and Registry
// are required; nil optional ports fall back to no-op implementations.
type Components struct {
	Provider   ports.Provider
	Registry   *Registry
	Guardrails *Guardrails
	Vision     *VisionPreprocessor
	Store      ports.HistoryStore
	Limiter    ports.RateLimiter
	Tracer     ports.Tracer
}

// Orchestrator drives PLANNING, EXECUTING and SUMMARIZING for one request.
type Orchestrator struct {
	provider ports.Provider
	registry *Registry
	executor *Executor
	vision   *VisionPreprocessor
	builder  *PromptBuilder
	parser   *OutputParser
	store    ports.HistoryStore
	limiter  ports.RateLimiter
	tracer   ports.Tracer
	policy   *Policy
	logger   zerolog.Logger
}

// NewOrchestrator creates an orchestrator with dependencies.
func NewOrchestrator(c Components, policy *Policy, logger zerolog.Logger) (*Orchestrator, error) {
	if c.Provider == nil {
		return nil, errors.New("orchestrator requires a provider")
	}
	if c.Registry == nil {
		return nil, errors.New("orchestrator requires a tool registry")
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	p := *policy
	if p.ProviderTimeout <= 0 {
		p.ProviderTimeout = DefaultPolicy().ProviderTimeout
	}
	if c.Guardrails == nil {
		c.Guardrails = NewGuardrails()
	}
	if c.Store == nil {
		c.Store = noOpStore{}
	}
	if c.Limiter == nil {
		c.Limiter = noOpRateLimiter{}
	}
	if c.Tracer == nil {
		c.Tracer = noOpTracer{}
	}

	return &Orchestrator{
		provider: c.Provider,
		registry: c.Registry,
		executor: NewExecutor(c.Registry, c.Guardrails, &p, logger),
		vision:   c.Vision,
		builder:  NewPromptBuilder(),
		parser:   NewOutputParser(c.Registry.Names()...),
		store:    c.Store,
		limiter:  c.Limiter,
		tracer:   c.Tracer,
		policy:   &p,
		logger:   logger,
	}, nil
}

// Registry returns the tool registry the orchestrator offers to the model.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Run turns one request into zero or more tool executions, a scrubbed reply
// and the artifacts bundle.
func (o *Orchestrator) Run(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	imageURL := strings.TrimSpace(req.ImageURL)

	release, err := o.limiter.Acquire(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	defer release()

	ctx, finish := o.tracer.StartSpan(ctx, "chat", map[string]any{
		"user_id":   req.UserID,
		"has_image": imageURL != "",
	})
	defer func() { finish(err) }()

	window := SanitizeHistory(o.history(ctx, req), o.policy.ContextTurns)

	var description string
	if imageURL != "" {
		description = o.vision.Describe(ctx, imageURL)
	}
	userTurn := AnnotatePrompt(prompt, description, imageURL != "")

	// PLANNING
	o.transition(ctx, StatePlanning, nil)
	planned, err := o.complete(ctx, o.builder.Planning(window, userTurn, o.registry.Specs(), map[string]string{
		"stage":   StatePlanning.String(),
		"user_id": req.UserID,
	}), "auto")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
	}
	planned.ToolCalls = o.resolveToolCalls(planned)

	o.persist(ctx, ports.Turn{UserID: req.UserID, Role: "user", Content: userRecord(prompt, imageURL)})

	if len(planned.ToolCalls) == 0 {
		o.transition(ctx, StateDone, map[string]any{"tools": 0})
		result := ScrubOutput(planned.Text)
		o.persist(ctx, ports.Turn{UserID: req.UserID, Role: "assistant", Content: result})
		return &ChatResponse{Result: result}, nil
	}

	o.transition(ctx, StateToolsRequested, map[string]any{"tools": len(planned.ToolCalls)})

	// EXECUTING
	o.transition(ctx, StateExecuting, nil)
	results := o.executor.Execute(ctx, planned.ToolCalls, imageURL)
	artifacts := Bundle(results)

	// SUMMARIZING
	o.transition(ctx, StateSummarizing, map[string]any{"failed": countFailed(results)})
	summary, err := o.complete(ctx, o.builder.Summarizing(window, userTurn, planned, results, map[string]string{
		"stage":   StateSummarizing.String(),
		"user_id": req.UserID,
	}), "none")
	if err != nil {
		return nil, &PartialResultError{
			Stage:     StateSummarizing,
			Artifacts: artifacts,
			Err:       fmt.Errorf("%w: %w", ErrSummarizing, err),
		}
	}

	result := ScrubOutput(summary.Text)
	o.transition(ctx, StateDone, map[string]any{
		"photos":    len(artifacts.PexelsPhotos),
		"generated": len(artifacts.GeneratedImages),
	})
	o.persist(ctx, ports.Turn{UserID: req.UserID, Role: "assistant", Content: result})

	return &ChatResponse{Result: result, Data: artifacts}, nil
}

func (o *Orchestrator) complete(ctx context.Context, in ports.PromptInput, toolChoice string) (ports.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, o.policy.ProviderTimeout)
	defer cancel()

	ctx, finish := o.tracer.StartSpan(ctx, "provider_call", map[string]any{
		"stage":    in.Meta["stage"],
		"messages": len(in.Messages),
	})
	completion, err := o.provider.Complete(ctx, in, ports.Options{
		Model:        o.policy.PlannerModel,
		MaxNewTokens: o.policy.MaxNewTokens,
		Temperature:  o.policy.Temperature,
		ToolChoice:   toolChoice,
	})
	finish(err)

	return completion, err
}

// resolveToolCalls prefers structured calls, falls back to calls written
// inline, and gives every call an ID.
func (o *Orchestrator) resolveToolCalls(c ports.Completion) []ports.ToolCall {
	calls := c.ToolCalls
	if len(calls) == 0 {
		calls = o.parser.ParseToolCalls(c.Text)
	}
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.NewString()
		}
		if len(calls[i].Args) == 0 {
			calls[i].Args = json.RawMessage("{}")
		}
	}
	return calls
}

func (o *Orchestrator) history(ctx context.Context, req *ChatRequest) []ports.Turn {
	if req.History != nil {
		return req.History
	}
	turns, err := o.store.Recent(ctx, req.UserID, o.policy.ContextTurns)
	if err != nil {
		o.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("failed to load chat history")
		return nil
	}
	return turns
}

// persist appends a turn. Failures are logged and never reach the caller.
func (o *Orchestrator) persist(ctx context.Context, turn ports.Turn) {
	turn.Content = StripDataURIs(turn.Content)
	if err := o.store.Append(ctx, turn); err != nil {
		o.logger.Warn().Err(err).Str("user_id", turn.UserID).Str("role", turn.Role).Msg("failed to persist chat turn")
	}
}

func (o *Orchestrator) transition(ctx context.Context, s State, attrs map[string]any) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["state"] = s.String()
	o.tracer.Event(ctx, "state_transition", attrs)
}

// userRecord is the persisted form of the user turn: the prompt, or a JSON
// object pairing it with the reference image when one was attached.
func userRecord(prompt, imageURL string) string {
	if imageURL == "" {
		return prompt
	}
	b, err := json.Marshal(struct {
		Prompt string `json:"prompt"`
		URL    string `json:"url"`
	}{Prompt: prompt, URL: StripDataURIs(imageURL)})
	if err != nil {
		return prompt
	}
	return string(b)
}

func countFailed(results []ToolResult) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}
