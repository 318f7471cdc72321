// Package worker renders share card images in the background. Cards are
// queued in redis when a share is created so the PNG is usually cached by
// the time a crawler fetches the link preview.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"lovebomb-backend/internal/ogimage"
	"lovebomb-backend/internal/repository"
)

const (
	renderQueue  = "queue:card-render"
	cardCacheTTL = 7 * 24 * time.Hour
	maxRetries   = 3
)

// CardKey is the redis key holding the rendered PNG for a share.
func CardKey(shareID string) string {
	return "card:" + shareID
}

type renderJob struct {
	ShareID    string `json:"share_id"`
	RetryCount int    `json:"retry_count"`
}

type Pool struct {
	redis       *redis.Client
	shareRepo   *repository.ShareRepo
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, shareRepo *repository.ShareRepo, workerCount int) *Pool {
	return &Pool{
		redis:       redisClient,
		shareRepo:   shareRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d card render workers", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

// EnqueueRender queues a card render. Failures are logged, not returned;
// the image endpoint renders on demand when the cache misses.
func (p *Pool) EnqueueRender(ctx context.Context, shareID string) {
	data, _ := json.Marshal(renderJob{ShareID: shareID})
	if err := p.redis.LPush(ctx, renderQueue, string(data)).Err(); err != nil {
		log.Printf("failed to enqueue card render for share %s: %v", shareID, err)
	}
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Card worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, 30*time.Second, renderQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var job renderJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Card worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Skip if another worker already holds this share
		lockKey := fmt.Sprintf("card_lock:%s", job.ShareID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		if err := p.renderCard(ctx, job.ShareID); err != nil {
			p.handleFailure(ctx, &job, err)
		}

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) renderCard(ctx context.Context, shareID string) error {
	card, err := p.shareRepo.GetByID(ctx, shareID)
	if err != nil {
		return fmt.Errorf("failed to load share %s: %w", shareID, err)
	}

	var buf bytes.Buffer
	if err := ogimage.Render(&buf, card.Payload); err != nil {
		return fmt.Errorf("failed to render card %s: %w", shareID, err)
	}

	if err := p.redis.Set(ctx, CardKey(shareID), buf.Bytes(), cardCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache card %s: %w", shareID, err)
	}

	log.Printf("Rendered share card %s (%d bytes)", shareID, buf.Len())
	return nil
}

func (p *Pool) handleFailure(ctx context.Context, job *renderJob, err error) {
	job.RetryCount++
	if job.RetryCount >= maxRetries {
		log.Printf("Card render for share %s failed permanently: %v", job.ShareID, err)
		return
	}

	log.Printf("Card render for share %s failed (attempt %d): %v — retrying", job.ShareID, job.RetryCount, err)
	jobBytes, _ := json.Marshal(job)
	backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
	time.AfterFunc(backoff, func() {
		p.redis.LPush(context.Background(), renderQueue, string(jobBytes))
	})
}
