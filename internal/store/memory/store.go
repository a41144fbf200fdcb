// Package memory implements model.MessageStore on per-user in-memory buckets.
//
// Eviction is lazy: expired messages are dropped only when their user is
// accessed (or when Sweep runs). A user that is never accessed again keeps
// its expired messages in memory until the next Sweep; without a sweeper
// that is until process exit.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/secret-relay/internal/model"
)

var _ model.MessageStore = (*Store)(nil)

// Store keeps one bucket per user. Each bucket has its own lock, so
// operations on different users never wait for each other.
type Store struct {
	buckets    sync.Map
	clock      model.Clock
	maxPerUser int
}

type bucket struct {
	mu       sync.Mutex
	messages []model.Message
	// set by Sweep once the bucket is unlinked from the table
	removed bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source.
func WithClock(clock model.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithMaxPerUser caps the number of live messages per user. 0 disables the cap.
func WithMaxPerUser(n int) Option {
	return func(s *Store) {
		s.maxPerUser = n
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{clock: model.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store appends blob to the bucket of userID with expiry now+ttl, then drops
// expired messages from the front of the bucket. The front scan stops at the
// first live message; a short-ttl message queued behind a longer-lived one
// is removed by the next FetchValid. Position is the number of live messages
// ahead of the new one; when the cap is reached the whole bucket is evicted
// before the check is repeated.
func (s *Store) Store(ctx context.Context, userID string, blob model.Blob, ttl time.Duration) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}

	b := s.lock(userID)
	defer b.mu.Unlock()

	now := s.clock.Now()
	b.evictFront(now)

	if s.maxPerUser > 0 && len(b.messages) >= s.maxPerUser {
		// expired stragglers behind a live message do not count
		b.evictAll(now)
		if len(b.messages) >= s.maxPerUser {
			return model.Message{}, model.ErrStoreCapacity
		}
	}

	msg := model.Message{
		ID:         uuid.New(),
		UserID:     userID,
		Position:   b.live(now),
		Blob:       slices.Clone(blob),
		InsertedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	b.messages = append(b.messages, msg)
	b.evictFront(now)

	return msg, nil
}

// FetchValid drops every expired message of userID and returns the rest in
// insertion order. The removal is permanent.
func (s *Store) FetchValid(ctx context.Context, userID string) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, ok := s.lockExisting(userID)
	if !ok {
		return []model.Message{}, nil
	}
	defer b.mu.Unlock()

	b.evictAll(s.clock.Now())

	return slices.Clone(b.messages), nil
}

// Sweep evicts expired messages of every user and forgets empty buckets.
// It returns the number of evicted messages.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	evicted := 0
	var err error

	s.buckets.Range(func(key, value any) bool {
		if err = ctx.Err(); err != nil {
			return false
		}

		b := value.(*bucket)
		b.mu.Lock()
		evicted += b.evictAll(now)
		if len(b.messages) == 0 {
			b.removed = true
			s.buckets.CompareAndDelete(key, b)
		}
		b.mu.Unlock()

		return true
	})

	return evicted, err
}

// Len returns the number of messages currently held for userID, expired or not.
func (s *Store) Len(userID string) int {
	b, ok := s.lockExisting(userID)
	if !ok {
		return 0
	}
	defer b.mu.Unlock()

	return len(b.messages)
}

// Users returns the number of buckets in the table.
func (s *Store) Users() int {
	n := 0
	s.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// lock returns the locked, live bucket of userID, creating it if needed.
func (s *Store) lock(userID string) *bucket {
	for {
		v, _ := s.buckets.LoadOrStore(userID, &bucket{})
		b := v.(*bucket)
		b.mu.Lock()
		if !b.removed {
			return b
		}
		// lost a race with Sweep, which already unlinked this bucket
		b.mu.Unlock()
	}
}

// lockExisting returns the locked, live bucket of userID if there is one.
func (s *Store) lockExisting(userID string) (*bucket, bool) {
	for {
		v, ok := s.buckets.Load(userID)
		if !ok {
			return nil, false
		}
		b := v.(*bucket)
		b.mu.Lock()
		if !b.removed {
			return b, true
		}
		b.mu.Unlock()
	}
}

func (b *bucket) evictFront(now time.Time) int {
	n := 0
	for n < len(b.messages) && b.messages[n].Expired(now) {
		n++
	}
	b.drop(n)
	return n
}

func (b *bucket) evictAll(now time.Time) int {
	before := len(b.messages)
	b.messages = slices.DeleteFunc(b.messages, func(m model.Message) bool {
		return m.Expired(now)
	})
	if len(b.messages) == 0 {
		b.messages = nil
	}
	return before - len(b.messages)
}

// live counts messages not expired at now, without evicting them.
func (b *bucket) live(now time.Time) int {
	n := 0
	for _, m := range b.messages {
		if !m.Expired(now) {
			n++
		}
	}
	return n
}

func (b *bucket) drop(n int) {
	if n == 0 {
		return
	}
	if n == len(b.messages) {
		b.messages = nil
		return
	}
	clear(b.messages[:n])
	b.messages = b.messages[n:]
}
