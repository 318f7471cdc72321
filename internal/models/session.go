package models

import "time"

// Session is the externally persisted usage state for one visitor. The core
// reads and increments it through the session store; it never owns a copy
// past a single request.
type Session struct {
	ID          string    `json:"id"`
	PromptCount int       `json:"prompt_count"`
	IsUnlocked  bool      `json:"is_unlocked"`
	Handle      *string   `json:"handle,omitempty"` // linked external handle, if any
	CreatedAt   time.Time `json:"created_at"`
}

// SessionInfo is the GET /api/v1/session response.
type SessionInfo struct {
	PromptCount int  `json:"promptCount"`
	MaxPrompts  int  `json:"maxPrompts"`
	IsUnlocked  bool `json:"isUnlocked"`
	Remaining   int  `json:"remaining"`
}

type UnlockRequest struct {
	Handle string `json:"handle"`
}
