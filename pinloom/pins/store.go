package pins

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultListLimit = 100

// Store persists pins in the pins table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a pin store.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: time.Now,
	}
}

// Create validates and inserts a pin owned by userID.
func (s *Store) Create(ctx context.Context, userID string, in NewPin) (*Pin, error) {
	if userID == "" {
		return nil, fmt.Errorf("failed to create pin: empty user id")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	pin := &Pin{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		ImageURL:       strings.TrimSpace(in.ImageURL),
		FileID:         strings.TrimSpace(in.FileID),
		Hashtags:       normalizeHashtags(in.Hashtags),
		Transformation: in.transformation(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	hashtags, err := json.Marshal(pin.Hashtags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hashtags: %w", err)
	}

	query := `
		INSERT INTO pins (id, user_id, title, description, image_url, file_id, hashtags,
			height, width, quality, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		pin.ID, pin.UserID, pin.Title, pin.Description, pin.ImageURL, pin.FileID, string(hashtags),
		pin.Transformation.Height, pin.Transformation.Width, pin.Transformation.Quality,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create pin: %w", err)
	}

	return pin, nil
}

// List returns up to limit pins, newest first. limit <= 0 uses the default.
func (s *Store) List(ctx context.Context, limit int) ([]Pin, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := selectPins + ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pins: %w", err)
	}
	defer rows.Close()

	pins := []Pin{}
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		pins = append(pins, *pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pins: %w", err)
	}

	return pins, nil
}

// Get returns one pin or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Pin, error) {
	row := s.db.QueryRowContext(ctx, selectPins+` WHERE id = ?`, id)
	pin, err := scanPin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return pin, err
}

// Delete removes a pin owned by userID.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	pin, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if pin.UserID != userID {
		return ErrForbidden
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM pins WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("failed to delete pin: %w", err)
	}
	return nil
}

const selectPins = `
	SELECT id, user_id, title, description, image_url, file_id, hashtags,
		height, width, quality, created_at, updated_at
	FROM pins`

type scanner interface {
	Scan(dest ...any) error
}

func scanPin(row scanner) (*Pin, error) {
	var (
		pin                  Pin
		hashtags             string
		createdAt, updatedAt int64
	)
	err := row.Scan(&pin.ID, &pin.UserID, &pin.Title, &pin.Description, &pin.ImageURL, &pin.FileID, &hashtags,
		&pin.Transformation.Height, &pin.Transformation.Width, &pin.Transformation.Quality, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pin: %w", err)
	}

	if err := json.Unmarshal([]byte(hashtags), &pin.Hashtags); err != nil || pin.Hashtags == nil {
		pin.Hashtags = []string{}
	}
	pin.CreatedAt = time.Unix(0, createdAt).UTC()
	pin.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &pin, nil
}
