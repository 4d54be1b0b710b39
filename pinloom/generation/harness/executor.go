package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

const (
	defaultToolTimeout     = 90 * time.Second
	defaultToolConcurrency = 4
)

// Executor fans tool invocations out concurrently and joins on all of them.
// A failing, panicking or unknown tool only fails its own result.
type Executor struct {
	registry    *Registry
	guards      *Guardrails
	validate    bool
	timeout     time.Duration
	concurrency int
	logger      zerolog.Logger
}

// NewExecutor creates an executor over an immutable registry.
func NewExecutor(registry *Registry, guards *Guardrails, policy *Policy, logger zerolog.Logger) *Executor {
	if guards == nil {
		guards = NewGuardrails()
	}
	e := &Executor{
		registry:    registry,
		guards:      guards,
		timeout:     defaultToolTimeout,
		concurrency: defaultToolConcurrency,
		logger:      logger,
	}
	if policy != nil {
		e.validate = policy.ValidateToolArgs
		if policy.ToolTimeout > 0 {
			e.timeout = policy.ToolTimeout
		}
		if policy.ToolConcurrency > 0 {
			e.concurrency = policy.ToolConcurrency
		}
	}
	return e
}

// Execute runs every call and returns exactly one result per call, in call
// order with matching IDs. referenceURL is the caller's attached image.
func (e *Executor) Execute(ctx context.Context, calls []ports.ToolCall, referenceURL string) []ToolResult {
	results := make([]ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	p := pool.New().WithMaxGoroutines(e.concurrency)
	for i, call := range calls {
		p.Go(func() {
			results[i] = e.invoke(ctx, call, referenceURL)
		})
	}
	p.Wait()

	return results
}

func (e *Executor) invoke(ctx context.Context, call ports.ToolCall, referenceURL string) ToolResult {
	res := ToolResult{ID: call.ID, Name: call.Name, Args: call.Args}
	defer func() {
		if res.Err != nil {
			e.logger.Warn().Err(res.Err).Str("tool", call.Name).Str("call_id", call.ID).Msg("tool invocation failed")
		}
	}()

	tool, ok := e.registry.Lookup(call.Name)
	if !ok || !e.guards.Allowed(call.Name) {
		res.Err = fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
		Clean(&res)
		return res
	}
	res.Kind = tool.Kind()

	args, err := e.registry.NormalizeArgs(tool, call.Args, referenceURL)
	if err != nil {
		res.Err = err
		Clean(&res)
		return res
	}
	res.Args = args

	if e.validate {
		normalized := ports.ToolCall{ID: call.ID, Name: call.Name, Args: args}
		if err := e.guards.ValidateToolCall(normalized, e.registry.Schema(call.Name)); err != nil {
			res.Err = err
			Clean(&res)
			return res
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var (
		out     any
		catcher panics.Catcher
	)
	catcher.Try(func() {
		out, err = tool.Invoke(callCtx, args)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		err = fmt.Errorf("tool %s panicked: %w", call.Name, recovered.AsError())
	}

	res.Full, res.Err = out, err
	Clean(&res)
	return res
}
