package harness

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
	"github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/tools"
)

// kindBehavior is the per-kind entry of the registry's lookup table.
type kindBehavior struct {
	// primaryArg names the argument that carries the user's intent.
	primaryArg string
	// parameters builds the function-calling schema of the kind.
	parameters func() map[string]any
	// normalize adjusts decoded args in place before validation.
	normalize func(args map[string]any, referenceURL string)
}

var kindTable = map[ports.ToolKind]kindBehavior{
	ports.KindImageSearch: {
		primaryArg: "query",
		parameters: func() map[string]any {
			return objectSchema(map[string]any{
				"query": stringProp("English keywords and adjectives describing the photos to find."),
			}, "query")
		},
	},
	ports.KindTextToImage: {
		primaryArg: "query",
		parameters: func() map[string]any {
			return objectSchema(map[string]any{
				"query": stringProp("Detailed visual description of the image to generate: subject, style, lighting, composition."),
			}, "query")
		},
	},
	ports.KindImageToImage: {
		primaryArg: "prompt",
		parameters: func() map[string]any {
			return objectSchema(map[string]any{
				"prompt": stringProp("What to change or produce from the reference image."),
				"url":    stringProp("Reference image. Leave empty to use the image the user attached."),
				"strength": map[string]any{
					"type":    "number",
					"minimum": 0.0,
					"maximum": 1.0,
					"default": tools.DefaultStrength,
					"description": "How far the result may move away from the reference image, 0.0 to 1.0. " +
						"Use 0.3-0.4 for edits that must keep the subject recognizable (background swap, outfit change, lighting). " +
						"Use 0.7-0.8 for creative reinterpretations such as a new art style.",
				},
			}, "prompt")
		},
		normalize: normalizeImageToImage,
	},
}

// Registry is the immutable set of tools offered to the model. Build it once
// at startup and share it by pointer.
type Registry struct {
	tools   map[string]ports.Tool
	order   []string
	specs   []ports.ToolSpec
	schemas map[string][]byte
}

// NewRegistry validates the tools and generates their function-calling schemas.
func NewRegistry(toolset ...ports.Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]ports.Tool, len(toolset)),
		schemas: make(map[string][]byte, len(toolset)),
	}

	for _, tool := range toolset {
		name := tool.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		behavior, ok := kindTable[tool.Kind()]
		if !ok {
			return nil, fmt.Errorf("tool %q has unsupported kind %s", name, tool.Kind())
		}

		schema, err := json.Marshal(behavior.parameters())
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema for %q: %w", name, err)
		}

		r.tools[name] = tool
		r.order = append(r.order, name)
		r.schemas[name] = schema
		r.specs = append(r.specs, ports.ToolSpec{
			Name:        name,
			Description: tool.Description(),
			JSONSchema:  schema,
		})
	}

	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (ports.Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names lists the registered tools in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Specs returns the schemas handed to the planning call.
func (r *Registry) Specs() []ports.ToolSpec {
	return append([]ports.ToolSpec(nil), r.specs...)
}

// Schema returns the generated JSON schema of a tool.
func (r *Registry) Schema(name string) []byte {
	return r.schemas[name]
}

// Len reports the number of tools.
func (r *Registry) Len() int { return len(r.order) }

// NormalizeArgs applies the kind's normalizer to raw model arguments.
// referenceURL is the image the caller attached to the current turn, if any.
func (r *Registry) NormalizeArgs(tool ports.Tool, raw json.RawMessage, referenceURL string) (json.RawMessage, error) {
	args := map[string]any{}
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return nil, fmt.Errorf("%w: arguments are not a JSON object: %v", ErrInvalidArguments, err)
		}
	}

	behavior := kindTable[tool.Kind()]
	if s, ok := args[behavior.primaryArg].(string); ok {
		args[behavior.primaryArg] = strings.TrimSpace(s)
	}
	if behavior.normalize != nil {
		behavior.normalize(args, referenceURL)
	}

	out, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	return out, nil
}

// PrimaryArg returns the intent-carrying argument (prompt or query) of a call.
func PrimaryArg(kind ports.ToolKind, args json.RawMessage) string {
	var decoded map[string]any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return ""
	}
	if s, ok := decoded[kindTable[kind].primaryArg].(string); ok && s != "" {
		return s
	}
	for _, key := range promptFields {
		if s, ok := decoded[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// normalizeImageToImage injects the caller's reference image when the model
// left it out and coerces strength into [0,1].
func normalizeImageToImage(args map[string]any, referenceURL string) {
	if u, _ := args["url"].(string); strings.TrimSpace(u) == "" && referenceURL != "" {
		args["url"] = referenceURL
	}

	strength := tools.DefaultStrength
	switch v := args["strength"].(type) {
	case float64:
		strength = tools.ClampStrength(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			strength = tools.ClampStrength(f)
		}
	}
	args["strength"] = strength
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}
