// Package pins stores the image board feed.
package pins

import (
	"errors"
	"strings"
	"time"
)

// Default rendition of a pin.
const (
	DefaultWidth   = 1000
	DefaultHeight  = 1500
	DefaultQuality = 100
)

var (
	// ErrNotFound is returned when no pin has the requested id.
	ErrNotFound = errors.New("pin not found")
	// ErrForbidden is returned when a user changes a pin they do not own.
	ErrForbidden = errors.New("pin belongs to another user")
	// ErrMissingFields rejects pins without title, description or image url.
	ErrMissingFields = errors.New("missing required fields")
)

// Transformation is the rendition requested from the image host.
type Transformation struct {
	Height  int `json:"height"`
	Width   int `json:"width"`
	Quality int `json:"quality"`
}

// Pin is one image on the board.
type Pin struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	ImageURL       string         `json:"imageUrl"`
	FileID         string         `json:"fileId,omitempty"`
	Hashtags       []string       `json:"hashtags"`
	Transformation Transformation `json:"transformation"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// NewPin is the client payload for creating a pin.
type NewPin struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	ImageURL       string          `json:"imageUrl"`
	FileID         string          `json:"fileId"`
	Hashtags       []string        `json:"hashtags"`
	Transformation *Transformation `json:"transformation,omitempty"`
}

// Validate checks the required fields.
func (n NewPin) Validate() error {
	if strings.TrimSpace(n.Title) == "" || strings.TrimSpace(n.Description) == "" || strings.TrimSpace(n.ImageURL) == "" {
		return ErrMissingFields
	}
	return nil
}

// transformation applies the fixed rendition size; only quality is client
// controlled, within [1,100].
func (n NewPin) transformation() Transformation {
	t := Transformation{Height: DefaultHeight, Width: DefaultWidth, Quality: DefaultQuality}
	if n.Transformation != nil && n.Transformation.Quality >= 1 && n.Transformation.Quality <= 100 {
		t.Quality = n.Transformation.Quality
	}
	return t
}

func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
