package harness

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

// Placeholders substituted for image payloads.
const (
	ImageDataPlaceholder = "[IMAGE_DATA_REMOVED]"
	ImageAttachedMarker  = "[IMAGE_ATTACHED]"
)

var (
	// dataURIPattern matches base64 data URIs in any case, with optional MIME
	// parameters (charset, name) and JSON-escaped slashes.
	dataURIPattern = regexp.MustCompile(`(?i)data:[a-z]+\\?/[\w.+-]+(?:;[\w.+-]+=[^;,\s]*)*;base64,(?:[a-z0-9+/=_-]|\\/)*`)

	// Alt text may hold one level of balanced brackets. markdownImage covers
	// inline and reference images.
	dataURIMarkdownImage = regexp.MustCompile(`(?i)!\[(?:[^\[\]]|\[[^\]]*\])*\]\(\s*<?data:[^)]*\)`)
	markdownImage        = regexp.MustCompile(`!\[(?:[^\[\]]|\[[^\]]*\])*\]\s*(?:\([^)]*\)|\[[^\]]*\])`)
)

// ContainsDataURI reports whether s carries a base64 data URI.
func ContainsDataURI(s string) bool {
	return dataURIPattern.MatchString(s)
}

// ContainsMarkdownImage reports whether s carries markdown image syntax.
func ContainsMarkdownImage(s string) bool {
	return markdownImage.MatchString(s)
}

// StripDataURIs replaces every data URI in s with the placeholder.
func StripDataURIs(s string) string {
	if !dataURIPattern.MatchString(s) {
		return s
	}
	return dataURIPattern.ReplaceAllLiteralString(s, ImageDataPlaceholder)
}

// ScrubOutput removes image payloads from model-authored text: markdown images
// pointing at data URIs, then every other markdown image, then residual data
// URIs. It runs to a fixed point since a removal can join fragments into new
// matches; every pass after the first only shortens the text.
func ScrubOutput(text string) string {
	for {
		next := dataURIMarkdownImage.ReplaceAllLiteralString(text, "")
		next = markdownImage.ReplaceAllLiteralString(next, "")
		next = StripDataURIs(next)
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(text)
}

// Guardrails gates tool calls before execution.
type Guardrails struct {
	allowlist     map[string]bool // empty allows every registered tool
	jsonValidator *JSONValidator
}

// NewGuardrails creates guardrails allowing the given tool names.
func NewGuardrails(allowed ...string) *Guardrails {
	g := &Guardrails{
		allowlist:     make(map[string]bool),
		jsonValidator: NewJSONValidator(),
	}
	for _, name := range allowed {
		g.AddAllowedTool(name)
	}
	return g
}

// AddAllowedTool adds a tool to the allowlist.
func (g *Guardrails) AddAllowedTool(name string) {
	g.allowlist[name] = true
}

// Allowed reports whether a tool may be exposed and executed.
func (g *Guardrails) Allowed(name string) bool {
	return len(g.allowlist) == 0 || g.allowlist[name]
}

// ValidateToolCall checks that a call is allowed and its args satisfy schema.
func (g *Guardrails) ValidateToolCall(call ports.ToolCall, schema []byte) error {
	if call.Name == "" {
		return fmt.Errorf("%w: tool name cannot be empty", ErrInvalidArguments)
	}
	if !g.Allowed(call.Name) {
		return fmt.Errorf("tool %s is not in allowlist", call.Name)
	}
	if err := g.jsonValidator.Validate(call.Args, schema); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// JSONValidator handles JSON schema validation.
type JSONValidator struct{}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

// Validate checks if JSON data conforms to a schema.
func (v *JSONValidator) Validate(data json.RawMessage, schema []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("data is not valid JSON")
	}
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
