package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

// SQLHistoryStore implements HistoryStore on the chat_history table. It works
// with both the libsql and sqlite drivers.
type SQLHistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLHistoryStore creates a new chat history store.
func NewSQLHistoryStore(db *sql.DB) *SQLHistoryStore {
	return &SQLHistoryStore{
		db:  db,
		now: time.Now,
	}
}

// Append inserts a turn. Existing turns are never touched.
func (s *SQLHistoryStore) Append(ctx context.Context, turn ports.Turn) error {
	if turn.UserID == "" {
		return fmt.Errorf("failed to save turn: empty user id")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	var toolCallID sql.NullString
	if turn.ToolCallID != "" {
		toolCallID = sql.NullString{String: turn.ToolCallID, Valid: true}
	}

	query := `
		INSERT INTO chat_history (id, user_id, role, context, tool_call_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), turn.UserID, turn.Role, turn.Content, toolCallID, turn.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}

	return nil
}

// Recent loads the last k turns for a user, oldest first.
func (s *SQLHistoryStore) Recent(ctx context.Context, userID string, k int) ([]ports.Turn, error) {
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT role, context, tool_call_id, created_at FROM chat_history
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var (
			turn       = ports.Turn{UserID: userID}
			toolCallID sql.NullString
			createdAt  int64
		)
		if err := rows.Scan(&turn.Role, &turn.Content, &toolCallID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.ToolCallID = toolCallID.String
		turn.CreatedAt = time.Unix(0, createdAt).UTC()

		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	// Reverse to get chronological order (oldest first)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

// Ensure SQLHistoryStore implements the HistoryStore interface.
var _ ports.HistoryStore = (*SQLHistoryStore)(nil)
