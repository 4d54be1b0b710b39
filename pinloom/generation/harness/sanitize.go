package harness

import (
	"encoding/json"
	"strings"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

// DefaultContextTurns is the number of history turns sent to the model.
const DefaultContextTurns = 4

var (
	imageFields  = []string{"url", "image"}
	promptFields = []string{"prompt", "query", "text"}
)

// SanitizeHistory turns raw history into the model context window: the last n
// turns with image payloads replaced by markers. The result is only for
// prompts and must never be persisted.
func SanitizeHistory(turns []ports.Turn, n int) []ports.PromptMessage {
	if n <= 0 {
		n = DefaultContextTurns
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	window := make([]ports.PromptMessage, 0, len(turns))
	for _, turn := range turns {
		content := turn.Content
		if collapsed, ok := collapseImageTurn(content); ok {
			content = collapsed
		}
		// Always runs: unparsable or partially escaped JSON can still carry payloads.
		content = StripDataURIs(content)

		window = append(window, ports.PromptMessage{
			Role:    historyRole(turn.Role),
			Content: content,
		})
	}

	return window
}

// historyRole maps stored roles onto what can be replayed. Tool turns lose the
// assistant message that requested them once windowed, so they replay as
// assistant text; anything unrecognized replays as user text.
func historyRole(role string) string {
	switch strings.ToLower(role) {
	case "assistant", "tool":
		return "assistant"
	default:
		return "user"
	}
}

// collapseImageTurn rewrites a JSON object carrying an image reference into
// its prompt text followed by the attachment marker.
func collapseImageTurn(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return "", false
	}

	if !hasImageField(obj) {
		return "", false
	}

	prompt := ""
	for _, field := range promptFields {
		if s, ok := obj[field].(string); ok && strings.TrimSpace(s) != "" {
			prompt = strings.TrimSpace(s)
			break
		}
	}

	if prompt == "" {
		return ImageAttachedMarker, true
	}
	return prompt + "\n\n" + ImageAttachedMarker, true
}

func hasImageField(obj map[string]any) bool {
	for _, field := range imageFields {
		switch v := obj[field].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return true
			}
		case map[string]any:
			if len(v) > 0 {
				return true
			}
		}
	}
	return false
}
