package models

import (
	"time"

	"github.com/google/uuid"
)

// SharePayload is the compact card encoded into share links. Field names are
// part of the link format and must round-trip byte-exact through base64.
type SharePayload struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Confidence  int             `json:"confidence"`
	Prediction  SharePrediction `json:"prediction"`
}

type SharePrediction struct {
	Outcome     string `json:"outcome"`
	Probability int    `json:"probability"`
	Level       string `json:"level"`
}

// ShareCard is a persisted share, addressable by short id.
type ShareCard struct {
	ID        string       `json:"id"`
	Payload   SharePayload `json:"payload"`
	CreatedAt time.Time    `json:"created_at"`
}

// Conversation groups persisted turns for transcript export and sharing.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
