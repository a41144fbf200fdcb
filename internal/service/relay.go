package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dtroode/secret-relay/internal/logger"
	"github.com/dtroode/secret-relay/internal/model"
)

var validate = validator.New()

type submitParams struct {
	UserID    string `validate:"required"`
	Plaintext string `validate:"required"`
}

type fetchParams struct {
	UserID string `validate:"required"`
}

// Relay encrypts submitted messages into the store and decrypts them back
// for readers.
type Relay struct {
	keys       model.KeyDeriver
	cipher     model.Cipher
	store      model.MessageStore
	logger     *logger.Logger
	defaultTTL time.Duration
	maxTTL     time.Duration
}

func NewRelay(
	keys model.KeyDeriver,
	cipher model.Cipher,
	store model.MessageStore,
	logger *logger.Logger,
	defaultTTL time.Duration,
	maxTTL time.Duration,
) *Relay {
	return &Relay{
		keys:       keys,
		cipher:     cipher,
		store:      store,
		logger:     logger,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
	}
}

// Submit encrypts plaintext under the key of userID and stores it for ttl.
// A zero ttl means the default ttl.
func (s *Relay) Submit(ctx context.Context, userID, plaintext string, ttl time.Duration) (model.SubmitResult, error) {
	if err := validateParams(submitParams{UserID: userID, Plaintext: plaintext}); err != nil {
		return model.SubmitResult{}, err
	}

	ttl, err := s.resolveTTL(ttl)
	if err != nil {
		return model.SubmitResult{}, err
	}

	blob, err := s.cipher.Encrypt([]byte(plaintext), s.keys.DeriveKey(userID))
	if err != nil {
		return model.SubmitResult{}, fmt.Errorf("failed to encrypt message: %w", err)
	}

	msg, err := s.store.Store(ctx, userID, blob, ttl)
	if err != nil {
		return model.SubmitResult{}, fmt.Errorf("failed to store message: %w", err)
	}

	return model.SubmitResult{
		ID:        msg.ID,
		Index:     msg.Position,
		CreatedAt: msg.InsertedAt,
		ExpiresAt: msg.ExpiresAt,
	}, nil
}

// Fetch returns every live message of userID in insertion order. A message
// that fails to decrypt is returned with nil Content.
func (s *Relay) Fetch(ctx context.Context, userID string) ([]model.FetchedMessage, error) {
	if err := validateParams(fetchParams{UserID: userID}); err != nil {
		return nil, err
	}

	messages, err := s.store.FetchValid(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	key := s.keys.DeriveKey(userID)
	out := make([]model.FetchedMessage, 0, len(messages))

	for _, msg := range messages {
		fetched := model.FetchedMessage{
			ID:        msg.ID,
			Timestamp: msg.InsertedAt,
		}

		plaintext, err := s.cipher.Decrypt(msg.Blob, key)
		if err != nil {
			s.logger.Warn("failed to decrypt message",
				"user_id", userID,
				"message_id", msg.ID.String(),
				"error", err)
		} else {
			content := string(plaintext)
			fetched.Content = &content
		}

		out = append(out, fetched)
	}

	return out, nil
}

func (s *Relay) resolveTTL(ttl time.Duration) (time.Duration, error) {
	switch {
	case ttl == 0:
		return s.defaultTTL, nil
	case ttl < 0:
		return 0, model.NewValidationError("ttl", "must be positive")
	case s.maxTTL > 0 && ttl > s.maxTTL:
		return 0, model.NewValidationError("ttl", fmt.Sprintf("must not exceed %s", s.maxTTL))
	}
	return ttl, nil
}

// validateParams runs struct validation and reports the first failing
// field as a model.ValidationError.
func validateParams(params any) error {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return model.NewValidationError(fieldName(verrs[0].Field()), verrs[0].Tag())
	}

	return fmt.Errorf("failed to validate params: %w", err)
}

func fieldName(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
