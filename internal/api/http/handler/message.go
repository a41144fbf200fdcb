package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dtroode/secret-relay/internal/logger"
	"github.com/dtroode/secret-relay/internal/model"
)

const errMissingFields = "Missing userId or message"

var validate = validator.New()

// Relay is the message service behind the HTTP API.
type Relay interface {
	Submit(ctx context.Context, userID, plaintext string, ttl time.Duration) (model.SubmitResult, error)
	Fetch(ctx context.Context, userID string) ([]model.FetchedMessage, error)
}

type submitRequest struct {
	UserID        string   `json:"userId" validate:"required"`
	Message       string   `json:"message" validate:"required"`
	ExpiryMinutes *float64 `json:"expiryMinutes" validate:"omitempty,gt=0"`
}

type submitResponse struct {
	Success   bool      `json:"success"`
	MessageID int       `json:"message_id"`
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type fetchedMessage struct {
	Content   *string   `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Message serves the submit and fetch endpoints.
type Message struct {
	relay  Relay
	logger *logger.Logger
}

func NewMessage(relay Relay, logger *logger.Logger) *Message {
	return &Message{relay: relay, logger: logger}
}

// ttlFromMinutes converts a positive minute count to a duration. Values that
// round down to zero or do not fit in a time.Duration are rejected.
func ttlFromMinutes(m float64) (time.Duration, error) {
	if m > math.MaxInt64/float64(time.Minute) {
		return 0, model.NewValidationError("expiryMinutes", "too large")
	}
	ttl := time.Duration(m * float64(time.Minute))
	if ttl <= 0 {
		return 0, model.NewValidationError("expiryMinutes", "must be positive")
	}
	return ttl, nil
}

// Submit handles POST /messages.
func (h *Message) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "ExpiryMinutes" {
			handleError(w, r, h.logger, model.NewValidationError("expiryMinutes", "must be positive"))
			return
		}
		writeError(w, http.StatusBadRequest, errMissingFields)
		return
	}

	var ttl time.Duration
	if req.ExpiryMinutes != nil {
		var err error
		if ttl, err = ttlFromMinutes(*req.ExpiryMinutes); err != nil {
			handleError(w, r, h.logger, err)
			return
		}
	}

	res, err := h.relay.Submit(r.Context(), req.UserID, req.Message, ttl)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Success:   true,
		MessageID: res.Index,
		ID:        res.ID.String(),
		ExpiresAt: res.ExpiresAt,
	})
}

// Fetch handles GET /messages/{userID}.
func (h *Message) Fetch(w http.ResponseWriter, r *http.Request) {
	messages, err := h.relay.Fetch(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	out := make([]fetchedMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, fetchedMessage{Content: m.Content, Timestamp: m.Timestamp})
	}

	writeJSON(w, http.StatusOK, out)
}
