package services

import (
	"context"

	"lovebomb-backend/internal/models"
)

// Analyst produces one assistant turn for a conversation history as a
// sequence of stream events: text deltas carrying the embedded tag grammar,
// plus structured equilibrium/analysis events once those are fully formed.
// The done event is not emitted here; session counters belong to the
// handler.
type Analyst interface {
	Stream(ctx context.Context, history []models.ChatMessage, emit func(models.StreamEvent) error) error
}
