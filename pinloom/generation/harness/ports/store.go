package harnessports

import (
	"context"
	"time"
)

// Turn is one persisted message of a user's conversation.
type Turn struct {
	UserID     string
	Role       string // "user" | "assistant" | "tool"
	Content    string // text, or a JSON object for turns that carried an image
	ToolCallID string
	CreatedAt  time.Time // server-side timestamp
}

// HistoryStore is the append-only chat history. Turns are never updated or deleted.
type HistoryStore interface {
	Append(ctx context.Context, turn Turn) error
	Recent(ctx context.Context, userID string, k int) ([]Turn, error) // last-k turns, oldest first
}
