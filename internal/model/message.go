package model

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMessageTTL is used when a submit request does not carry a TTL.
const DefaultMessageTTL = time.Minute * 10

// Blob is an encrypted message: IV followed by padded ciphertext.
type Blob []byte

// String returns the base64 wire form of the blob.
func (b Blob) String() string {
	return base64.StdEncoding.EncodeToString(b)
}

// ParseBlob decodes the base64 wire form of a blob.
func ParseBlob(s string) (Blob, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode blob: %w", err)
	}
	return Blob(raw), nil
}

// MessageStore keeps per-user ordered buckets of expiring messages.
//
// Both operations evict expired messages of the user before doing anything
// else, so an expired message is never returned.
type MessageStore interface {
	Store(ctx context.Context, userID string, blob Blob, ttl time.Duration) (Message, error)
	FetchValid(ctx context.Context, userID string) ([]Message, error)
}

// Message represents a stored encrypted message.
type Message struct {
	ID         uuid.UUID
	UserID     string
	Position   int
	Blob       Blob
	InsertedAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the message is no longer retrievable at now.
func (m Message) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// SubmitResult describes a freshly stored message.
type SubmitResult struct {
	ID        uuid.UUID
	Index     int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// FetchedMessage is a decrypted message returned to readers.
// Content is nil when the message could not be decrypted.
type FetchedMessage struct {
	ID        uuid.UUID
	Content   *string
	Timestamp time.Time
}
