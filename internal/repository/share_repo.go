package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lithammer/shortuuid/v4"

	"lovebomb-backend/internal/models"
)

type ShareRepo struct {
	pool *pgxpool.Pool
}

func NewShareRepo(pool *pgxpool.Pool) *ShareRepo {
	return &ShareRepo{pool: pool}
}

// Create persists a share card under a short id suitable for URLs.
func (r *ShareRepo) Create(ctx context.Context, payload models.SharePayload) (*models.ShareCard, error) {
	card := &models.ShareCard{
		ID:      shortuuid.New(),
		Payload: payload,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode share payload: %w", err)
	}

	query := `
		INSERT INTO share_cards (id, payload)
		VALUES ($1, $2)
		RETURNING created_at`

	if err := r.pool.QueryRow(ctx, query, card.ID, data).Scan(&card.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create share card: %w", err)
	}
	return card, nil
}

func (r *ShareRepo) GetByID(ctx context.Context, id string) (*models.ShareCard, error) {
	card := &models.ShareCard{ID: id}
	var data []byte

	query := `SELECT payload, created_at FROM share_cards WHERE id = $1`
	if err := r.pool.QueryRow(ctx, query, id).Scan(&data, &card.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &card.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode share payload: %w", err)
	}
	return card, nil
}
