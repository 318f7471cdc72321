package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"lovebomb-backend/internal/models"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, sessionID, title string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:        uuid.New(),
		SessionID: sessionID,
		Title:     title,
	}

	query := `
		INSERT INTO conversations (id, session_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := r.pool.QueryRow(ctx, query, conv.ID, conv.SessionID, conv.Title).Scan(&conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	query := `SELECT id, session_id, title, created_at FROM conversations WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(&conv.ID, &conv.SessionID, &conv.Title, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendMessage persists one finished turn. Structured attachments travel
// as JSONB so the transcript can be rebuilt exactly.
func (r *ConversationRepo) AppendMessage(ctx context.Context, conversationID uuid.UUID, msg *models.Message) error {
	var equilibrium, analysis []byte
	var err error
	if msg.Equilibrium != nil {
		if equilibrium, err = json.Marshal(msg.Equilibrium); err != nil {
			return fmt.Errorf("failed to encode equilibrium: %w", err)
		}
	}
	if msg.FormalAnalysis != nil {
		if analysis, err = json.Marshal(msg.FormalAnalysis); err != nil {
			return fmt.Errorf("failed to encode analysis: %w", err)
		}
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, content, phase, equilibrium, formal_analysis, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.pool.Exec(ctx, query,
		msg.ID, conversationID, string(msg.Role), msg.Content, string(msg.Phase),
		equilibrium, analysis, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT id, role, content, phase, equilibrium, formal_analysis, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var role, phase string
		var equilibrium, analysis []byte

		if err := rows.Scan(&msg.ID, &role, &msg.Content, &phase, &equilibrium, &analysis, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = models.Role(role)
		msg.Phase = models.Phase(phase)
		if len(equilibrium) > 0 {
			msg.Equilibrium = &models.Equilibrium{}
			if err := json.Unmarshal(equilibrium, msg.Equilibrium); err != nil {
				return nil, fmt.Errorf("failed to decode equilibrium: %w", err)
			}
		}
		if len(analysis) > 0 {
			msg.FormalAnalysis = &models.FormalAnalysis{}
			if err := json.Unmarshal(analysis, msg.FormalAnalysis); err != nil {
				return nil, fmt.Errorf("failed to decode analysis: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
