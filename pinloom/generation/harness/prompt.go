package harness

import (
	"strings"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

const persona = "You are Pinloom, a creative assistant for an image board. " +
	"You help people find photos, generate new images from a description and " +
	"edit images they upload."

const antiLeakRules = `Rules you must always follow:
- Never write base64 data, data URIs or markdown image syntax such as ![alt](...).
- Never repeat image URLs that come from tool results; the interface displays images itself.
- Never mention tool names, function names or parameter names.`

const plannerRules = `Decide whether a tool is needed:
- To find existing photos, search for them with short English keywords.
- To create a new image from a description, generate it with a detailed visual description.
- When the user attached an image (marked ` + ImageAttachedMarker + `) and wants it changed, edit that image. ` +
	`Keep strength around 0.3-0.4 when the subject must stay recognizable and use 0.7-0.8 for a new art style.
- Use the reference image description, if present, to keep the subject's identity in your prompts.
- For plain conversation, answer directly without tools.`

const summarizerRules = `The requested tools have already run and their results follow.
Do not call any tool. Write a short, friendly reply describing what was found or created.
If a tool reported an error, say briefly that this part did not work.`

// PromptBuilder assembles provider inputs for the planning and summarizing calls.
type PromptBuilder struct {
	plannerSystem    string
	summarizerSystem string
}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		plannerSystem:    strings.Join([]string{persona, plannerRules, antiLeakRules}, "\n\n"),
		summarizerSystem: strings.Join([]string{persona, summarizerRules, antiLeakRules}, "\n\n"),
	}
}

// PlannerSystem returns the system prompt of the planning call.
func (b *PromptBuilder) PlannerSystem() string { return b.plannerSystem }

// SummarizerSystem returns the system prompt of the summarizing call.
func (b *PromptBuilder) SummarizerSystem() string { return b.summarizerSystem }

// Planning builds the planning input: window, then the annotated user turn.
func (b *PromptBuilder) Planning(window []ports.PromptMessage, userTurn string, specs []ports.ToolSpec, meta map[string]string) ports.PromptInput {
	messages := make([]ports.PromptMessage, 0, len(window)+1)
	messages = append(messages, normalizeMessages(window)...)
	messages = append(messages, ports.PromptMessage{Role: "user", Content: norm(userTurn)})

	return ports.PromptInput{
		System:   b.plannerSystem,
		Messages: messages,
		Tools:    specs,
		Meta:     meta,
	}
}

// Summarizing builds the summarizing input. The assistant message echoes the
// planned calls so each tool message can be matched to its call.
func (b *PromptBuilder) Summarizing(window []ports.PromptMessage, userTurn string, planned ports.Completion, results []ToolResult, meta map[string]string) ports.PromptInput {
	messages := make([]ports.PromptMessage, 0, len(window)+2+len(results))
	messages = append(messages, normalizeMessages(window)...)
	messages = append(messages,
		ports.PromptMessage{Role: "user", Content: norm(userTurn)},
		ports.PromptMessage{
			Role:      "assistant",
			Content:   StripDataURIs(norm(planned.Text)),
			ToolCalls: planned.ToolCalls,
		},
	)
	for _, r := range results {
		messages = append(messages, ports.PromptMessage{
			Role:       "tool",
			Content:    CleanedJSON(r),
			ToolCallID: r.ID,
		})
	}

	return ports.PromptInput{
		System:   b.summarizerSystem,
		Messages: messages,
		Meta:     meta,
	}
}

// Normalize newlines and trim whitespace to reduce prompt diffs.
func norm(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

func normalizeMessages(in []ports.PromptMessage) []ports.PromptMessage {
	out := make([]ports.PromptMessage, len(in))
	for i, m := range in {
		m.Content = norm(m.Content)
		out[i] = m
	}
	return out
}
