package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"lovebomb-backend/internal/analytics"
	"lovebomb-backend/internal/models"
	"lovebomb-backend/internal/parser"
	"lovebomb-backend/internal/session"
)

// GateError signals that the session exhausted its free prompts and must
// complete the unlock flow before the next turn.
type GateError struct {
	PromptCount int
}

func (e *GateError) Error() string {
	return fmt.Sprintf("gate required after %d prompts", e.PromptCount)
}

var ErrInvalidRequest = errors.New("invalid chat request")

// ChatService runs one conversation turn end to end: gate check, counter
// bump, analyst stream, optional persistence, final done event. Transports
// (NDJSON over HTTP, websocket) differ only in how they deliver events, so
// they share this core and pass their own emit.
type ChatService struct {
	analyst  Analyst
	store    *session.Store
	convRepo ConversationStore
	tracker  analytics.Tracker
}

// ConversationStore is the slice of the repository the chat flow needs.
// nil disables persistence entirely (stateless deployments).
type ConversationStore interface {
	Create(ctx context.Context, sessionID, title string) (*models.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, msg *models.Message) error
}

func NewChatService(analyst Analyst, store *session.Store, convRepo ConversationStore, tracker analytics.Tracker) *ChatService {
	if tracker == nil {
		tracker = analytics.Default()
	}
	return &ChatService{
		analyst:  analyst,
		store:    store,
		convRepo: convRepo,
		tracker:  tracker,
	}
}

// TurnResult reports what one completed turn produced.
type TurnResult struct {
	ConversationID *uuid.UUID
	Session        *models.Session
}

// Run executes one turn for the session, sending every stream event through
// emit, the done event included. The error return covers failures before and
// during the stream; once the analyst finishes, persistence problems are
// logged rather than surfaced, since the client already has the content.
func (s *ChatService) Run(ctx context.Context, sess *models.Session, req *models.ChatRequest, emit func(models.StreamEvent) error) (*TurnResult, error) {
	last, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	// Re-read the session so the gate check sees current counters; the
	// caller's copy can be stale on long-lived connections.
	if fresh, err := s.store.Get(ctx, sess.ID); err == nil {
		sess = fresh
	}

	if s.store.GateTripped(sess) {
		s.tracker.Track(analytics.EventGateShown, map[string]any{"sessionId": sess.ID})
		return nil, &GateError{PromptCount: sess.PromptCount}
	}

	sess, err = s.store.Increment(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count prompt: %w", err)
	}
	s.tracker.Track(analytics.EventMessageSent, map[string]any{
		"sessionId":   sess.ID,
		"promptCount": sess.PromptCount,
	})

	convID := s.persistUserTurn(ctx, sess.ID, req, last)

	assistant := models.NewMessage(models.RoleAssistant, "")
	streamErr := s.analyst.Stream(ctx, req.Messages, func(ev models.StreamEvent) error {
		switch ev.Type {
		case models.EventText:
			assistant.Content += ev.Content
		case models.EventEquilibrium:
			if eq, err := ev.Equilibrium(); err == nil {
				assistant.Equilibrium = eq
			}
		case models.EventAnalysis:
			if fa, err := ev.Analysis(); err == nil {
				assistant.FormalAnalysis = fa
			}
		}
		return emit(ev)
	})
	if streamErr != nil {
		return nil, streamErr
	}

	assistant.SetPhase(parser.Parse(assistant.Content).Phase)

	if convID != nil {
		if err := s.convRepo.AppendMessage(ctx, *convID, assistant); err != nil {
			log.Printf("failed to persist assistant turn for conversation %s: %v", convID, err)
		}
	}

	if err := emit(models.DoneEvent(sess.PromptCount, sess.IsUnlocked)); err != nil {
		return nil, err
	}
	return &TurnResult{ConversationID: convID, Session: sess}, nil
}

func validateRequest(req *models.ChatRequest) (*models.ChatMessage, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrInvalidRequest)
	}
	last := &req.Messages[len(req.Messages)-1]
	if last.Role != string(models.RoleUser) {
		return nil, fmt.Errorf("%w: last message must be from the user", ErrInvalidRequest)
	}
	if strings.TrimSpace(last.Content) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidRequest)
	}
	return last, nil
}

// persistUserTurn stores the incoming user message, creating the
// conversation on first use. Persistence is best-effort; a database outage
// must not block the stream.
func (s *ChatService) persistUserTurn(ctx context.Context, sessionID string, req *models.ChatRequest, last *models.ChatMessage) *uuid.UUID {
	if s.convRepo == nil {
		return nil
	}

	convID := req.ConversationID
	if convID != nil {
		conv, err := s.convRepo.GetByID(ctx, *convID)
		if err != nil || conv.SessionID != sessionID {
			log.Printf("conversation %s rejected for session %s: %v", convID, sessionID, err)
			convID = nil
		}
	}
	if convID == nil {
		conv, err := s.convRepo.Create(ctx, sessionID, conversationTitle(last.Content))
		if err != nil {
			log.Printf("failed to create conversation: %v", err)
			return nil
		}
		convID = &conv.ID
	}

	userMsg := models.NewMessage(models.RoleUser, last.Content)
	if err := s.convRepo.AppendMessage(ctx, *convID, userMsg); err != nil {
		log.Printf("failed to persist user turn for conversation %s: %v", convID, err)
	}
	return convID
}

func conversationTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if runes := []rune(title); len(runes) > 60 {
		title = string(runes[:57]) + "..."
	}
	return title
}
