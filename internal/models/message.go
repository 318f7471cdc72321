package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Phase is the conversation stage signalled by the analyst inside the stream.
// It is monotonically non-decreasing within one assistant message.
type Phase string

const (
	PhaseIntake    Phase = "INTAKE"
	PhaseBuilding  Phase = "BUILDING"
	PhaseDiagnosis Phase = "DIAGNOSIS"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseIntake, PhaseBuilding, PhaseDiagnosis:
		return true
	}
	return false
}

// Rank orders phases so a later phase is never downgraded by a stray tag.
func (p Phase) Rank() int {
	switch p {
	case PhaseIntake:
		return 1
	case PhaseBuilding:
		return 2
	case PhaseDiagnosis:
		return 3
	}
	return 0
}

// Message is one turn in a conversation. Assistant content grows append-only
// while its stream is open and is immutable once the done event arrives.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	Phase          Phase           `json:"phase,omitempty"`
	Equilibrium    *Equilibrium    `json:"equilibrium,omitempty"`
	FormalAnalysis *FormalAnalysis `json:"formal_analysis,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// SetPhase records a detected phase, never downgrading one already set.
func (m *Message) SetPhase(p Phase) {
	if p.Rank() > m.Phase.Rank() {
		m.Phase = p
	}
}

// ChatMessage is the wire form of a turn sent to the chat endpoint.
// The system role is excluded; the server injects its own instructions.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Messages       []ChatMessage `json:"messages"`
	ConversationID *uuid.UUID    `json:"conversation_id,omitempty"`
}
