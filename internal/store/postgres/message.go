// Package postgres implements model.MessageStore on PostgreSQL.
//
// Every call runs in its own transaction holding a transaction-scoped
// advisory lock derived from the user ID, which serialises operations on one
// user without blocking other users. Expired rows of the user are deleted at
// the start of each call.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/secret-relay/internal/model"
)

var _ model.MessageStore = (*MessageRepository)(nil)

const (
	lockUserQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	deleteExpiredForUserQuery = `DELETE FROM messages WHERE user_id = $1 AND expires_at <= $2`

	countForUserQuery = `SELECT count(*) FROM messages WHERE user_id = $1`

	insertMessageQuery = `
		INSERT INTO messages (id, user_id, blob, inserted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	selectForUserQuery = `
		SELECT id, blob, inserted_at, expires_at
		FROM messages
		WHERE user_id = $1
		ORDER BY seq`

	deleteExpiredQuery = `DELETE FROM messages WHERE expires_at <= $1`
)

// MessageRepository stores messages in the messages table.
type MessageRepository struct {
	db         *Connection
	clock      model.Clock
	maxPerUser int
}

// NewMessageRepository creates a MessageRepository. maxPerUser of 0 means
// no per-user cap.
func NewMessageRepository(db *Connection, clock model.Clock, maxPerUser int) *MessageRepository {
	return &MessageRepository{
		db:         db,
		clock:      clock,
		maxPerUser: maxPerUser,
	}
}

func (r *MessageRepository) Store(ctx context.Context, userID string, blob model.Blob, ttl time.Duration) (model.Message, error) {
	var msg model.Message

	err := r.inUserTx(ctx, userID, func(tx pgx.Tx, now time.Time) error {
		var live int
		if err := tx.QueryRow(ctx, countForUserQuery, userID).Scan(&live); err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}

		if r.maxPerUser > 0 && live >= r.maxPerUser {
			return model.ErrStoreCapacity
		}

		msg = model.Message{
			ID:         uuid.New(),
			UserID:     userID,
			Position:   live,
			Blob:       blob,
			InsertedAt: now,
			ExpiresAt:  now.Add(ttl),
		}

		_, err := tx.Exec(ctx, insertMessageQuery, msg.ID, msg.UserID, []byte(msg.Blob), msg.InsertedAt, msg.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		return nil
	})
	if err != nil {
		return model.Message{}, err
	}

	return msg, nil
}

func (r *MessageRepository) FetchValid(ctx context.Context, userID string) ([]model.Message, error) {
	messages := []model.Message{}

	err := r.inUserTx(ctx, userID, func(tx pgx.Tx, _ time.Time) error {
		rows, err := tx.Query(ctx, selectForUserQuery, userID)
		if err != nil {
			return fmt.Errorf("failed to query messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			msg := model.Message{UserID: userID, Position: len(messages)}
			var blob []byte
			if err := rows.Scan(&msg.ID, &blob, &msg.InsertedAt, &msg.ExpiresAt); err != nil {
				return fmt.Errorf("failed to scan message: %w", err)
			}
			msg.Blob = blob
			msg.InsertedAt = msg.InsertedAt.UTC()
			msg.ExpiresAt = msg.ExpiresAt.UTC()
			messages = append(messages, msg)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// Sweep deletes expired messages of all users.
func (r *MessageRepository) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, deleteExpiredQuery, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired messages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// inUserTx runs fn in a transaction holding the advisory lock of userID,
// after the user's expired messages have been deleted.
func (r *MessageRepository) inUserTx(ctx context.Context, userID string, fn func(tx pgx.Tx, now time.Time) error) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockUserQuery, userID); err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}

		now := r.clock.Now()
		if _, err := tx.Exec(ctx, deleteExpiredForUserQuery, userID, now); err != nil {
			return fmt.Errorf("failed to evict expired messages: %w", err)
		}

		return fn(tx, now)
	})
}
