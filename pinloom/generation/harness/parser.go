package harness

import (
	"encoding/json"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

var (
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyPattern   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// OutputParser recovers tool calls that a model wrote into its text instead
// of the structured tool_calls field. Only registered tool names are accepted.
type OutputParser struct {
	// Regex patterns for different tool call formats
	toolCallPatterns []*regexp.Regexp
	known            map[string]bool
}

// NewOutputParser creates a parser that recognizes the given tool names.
func NewOutputParser(names ...string) *OutputParser {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	return &OutputParser{
		toolCallPatterns: []*regexp.Regexp{
			// Llama format: <function=tool>{"arg": "value"}</function>
			regexp.MustCompile(`<function=(\w+)>\s*(\{.*?\})\s*</function>`),
			// JSON format: {"name": "tool", "arguments": {...}}
			regexp.MustCompile(`\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"(?:arguments|parameters)"\s*:\s*(\{.*?\})\s*\}`),
			// Function call format: tool_name({"arg": "value"})
			regexp.MustCompile(`(\w+)\s*\(\s*(\{.*?\})\s*\)`),
		},
		known: known,
	}
}

// ParseToolCalls extracts tool calls from a model response text. IDs are left
// empty for the caller to assign.
func (p *OutputParser) ParseToolCalls(text string) []ports.ToolCall {
	var calls []ports.ToolCall
	seen := make(map[string]bool)

	for _, pattern := range p.toolCallPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			if len(match) < 3 {
				continue
			}
			name := strings.TrimSpace(match[1])
			if !p.known[name] {
				continue
			}

			argsStr := strings.TrimSpace(match[2])
			if !json.Valid([]byte(argsStr)) {
				argsStr = fixJSON(argsStr)
				if !json.Valid([]byte(argsStr)) {
					continue
				}
			}

			key := name + argsStr
			if seen[key] {
				continue
			}
			seen[key] = true

			calls = append(calls, ports.ToolCall{
				Name: name,
				Args: json.RawMessage(argsStr),
			})
		}
	}

	return calls
}

// fixJSON repairs trailing commas and unquoted keys.
func fixJSON(s string) string {
	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	return unquotedKeyPattern.ReplaceAllString(s, `$1"$2":`)
}
