package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness"
	"github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
	"github.com/ZanzyTHEbar/pinloom/pinloom/pins"
)

type chatInput struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url,omitempty"`
}

type historyTurn struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type chatCreateRequest struct {
	Input   chatInput     `json:"input"`
	History []historyTurn `json:"history"`
}

type errorBody struct {
	Error string             `json:"error"`
	Data  *harness.Artifacts `json:"data,omitempty"`
}

func (s *Server) handleChatCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var body chatCreateRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req := &harness.ChatRequest{
		UserID:   userID,
		Prompt:   body.Input.Prompt,
		ImageURL: body.Input.URL,
	}
	if body.History != nil {
		req.History = make([]ports.Turn, 0, len(body.History))
		for _, h := range body.History {
			req.History = append(req.History, ports.Turn{
				UserID:     userID,
				Role:       h.Role,
				Content:    h.Content,
				ToolCallID: h.ToolCallID,
			})
		}
	}

	resp, err := s.chat.Run(r.Context(), req)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		partial   *harness.PartialResultError
		rateLimit *adapters.RateLimitError
	)
	switch {
	case errors.Is(err, harness.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, "Prompt is required")
	case errors.Is(err, harness.ErrRateLimited):
		if errors.As(err, &rateLimit) && rateLimit.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateLimit.RetryAfter.Seconds()))))
		}
		writeError(w, http.StatusTooManyRequests, "Too many requests")
	case errors.As(err, &partial):
		s.logger.Error().Err(err).Str("stage", partial.Stage.String()).Msg("chat failed after tools ran")
		body := errorBody{Error: "Failed to summarize results"}
		if !partial.Artifacts.Empty() {
			body.Data = partial.Artifacts
		}
		writeJSON(w, http.StatusInternalServerError, body)
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("chat failed")
		writeError(w, http.StatusInternalServerError, "Failed to process chat")
	}
}

func (s *Server) listPins(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.pins.List(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch pins")
		writeError(w, http.StatusInternalServerError, "Failed to fetch pins")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createPin(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var in pins.NewPin
	if !decodeBody(w, r, &in) {
		return
	}

	pin, err := s.pins.Create(r.Context(), userID, in)
	switch {
	case errors.Is(err, pins.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Missing required fields")
	case err != nil:
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create pin")
		writeError(w, http.StatusInternalServerError, "Failed to create pin")
	default:
		s.logger.Info().Str("user_id", userID).Str("pin_id", pin.ID).Msg("saved new pin")
		writeJSON(w, http.StatusCreated, pin)
	}
}

func (s *Server) getPin(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	pin, err := s.pins.Get(r.Context(), id)
	switch {
	case errors.Is(err, pins.ErrNotFound):
		writeError(w, http.StatusNotFound, "Image not found")
	case err != nil:
		s.logger.Error().Err(err).Str("pin_id", id).Msg("failed to fetch pin")
		writeError(w, http.StatusInternalServerError, "Failed to fetch pin")
	default:
		writeJSON(w, http.StatusOK, pin)
	}
}

func (s *Server) deletePin(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	err := s.pins.Delete(r.Context(), userID, id)
	switch {
	case errors.Is(err, pins.ErrNotFound):
		writeError(w, http.StatusNotFound, "Image not found")
	case errors.Is(err, pins.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case err != nil:
		s.logger.Error().Err(err).Str("pin_id", id).Msg("failed to delete pin")
		writeError(w, http.StatusInternalServerError, "Failed to delete image")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Image deleted successfully"})
	}
}

// decodeBody writes the error response itself and reports whether v was filled.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "Invalid request body")
	return false
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorBody{Error: message})
}
