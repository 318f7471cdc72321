// Package session persists visitor usage state in redis behind a small
// get/put interface. The core never owns a session past a single request.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lovebomb-backend/internal/models"
)

var ErrNotFound = errors.New("session not found")

const sessionTTL = 30 * 24 * time.Hour

type Store struct {
	client     *redis.Client
	maxPrompts int
}

func NewStore(client *redis.Client, maxPrompts int) *Store {
	return &Store{client: client, maxPrompts: maxPrompts}
}

func (s *Store) MaxPrompts() int {
	return s.maxPrompts
}

// Remaining is how many free prompts are left; unlocked sessions report -1
// (unlimited).
func (s *Store) Remaining(sess *models.Session) int {
	if sess.IsUnlocked {
		return -1
	}
	remaining := s.maxPrompts - sess.PromptCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GateTripped reports whether the next prompt requires the unlock flow.
func (s *Store) GateTripped(sess *models.Session) bool {
	return !sess.IsUnlocked && sess.PromptCount >= s.maxPrompts
}

func (s *Store) Create(ctx context.Context) (*models.Session, error) {
	sess := &models.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess := &models.Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return sess, nil
}

func (s *Store) Put(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, key(sess.ID), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Increment bumps the prompt counter and returns the updated session.
func (s *Store) Increment(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.PromptCount++
	if err := s.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Unlock marks the session unlocked, recording the linked handle.
func (s *Store) Unlock(ctx context.Context, id, handle string) (*models.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.IsUnlocked = true
	if handle != "" {
		sess.Handle = &handle
	}
	if err := s.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func key(id string) string {
	return "session:" + id
}
