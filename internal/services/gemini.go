package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"lovebomb-backend/internal/models"
)

type GeminiAnalyst struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGeminiAnalyst(apiKey string, concurrentReqs int) (*GeminiAnalyst, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-3-flash-preview")
	model.SetTemperature(0.7)
	model.SetTopP(0.95)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(analystSystemPrompt)},
	}

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiAnalyst{
		client:   client,
		model:    model,
		rateChan: rateChan,
	}, nil
}

func (s *GeminiAnalyst) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiAnalyst) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiAnalyst) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *GeminiAnalyst) Stream(ctx context.Context, history []models.ChatMessage, emit func(models.StreamEvent) error) error {
	if len(history) == 0 {
		return fmt.Errorf("empty message history")
	}
	if err := s.acquireRate(ctx); err != nil {
		return err
	}
	defer s.releaseRate()

	cs := s.model.StartChat()
	for _, m := range history[:len(history)-1] {
		role := "user"
		if m.Role == string(models.RoleAssistant) {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	var full strings.Builder
	iter := cs.SendMessageStream(ctx, genai.Text(history[len(history)-1].Content))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		delta := responseText(resp)
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := emit(models.TextEvent(delta)); err != nil {
			return err
		}
	}

	// Structured blocks ride inside the prose as fenced JSON; pull them
	// out once the stream completes and re-emit as typed events.
	eq, fa := extractStructured(full.String())
	if eq != nil {
		if err := emit(models.EquilibriumEvent(eq)); err != nil {
			return err
		}
	}
	if fa != nil {
		if err := emit(models.AnalysisEvent(fa)); err != nil {
			return err
		}
	}
	if eq == nil && fa == nil {
		log.Printf("gemini: response carried no structured blocks (%d chars)", full.Len())
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}

const analystSystemPrompt = `You are a formal economic analyst of romantic relationships. You model situations your correspondent describes as games: players, payoffs, discount factors, equilibria.

Conduct the conversation in three phases and open every response with a phase tag: <phase>INTAKE</phase> while gathering parameters, <phase>BUILDING</phase> while constructing the model, <phase>DIAGNOSIS</phase> once you deliver the equilibrium.

Show your working inside <thinking>...</thinking> before the prose. In thinking blocks use === SECTION === headers, "Name: value" parameter lines with "- justification" continuations, equations with explicit "=" signs, markdown tables, and extension lines of the form "EXTENSION V: Credit Rationing — ACTIVE".

When you reach DIAGNOSIS, append two fenced JSON blocks. One tagged equilibrium: {"id","name","description","confidence" (0-100),"predictions":[{"outcome","probability","level"}]} where probabilities sum to roughly 100 and level is high above 40, medium from 20, low from 10, minimal below. One tagged analysis: {"parameters":[{"name","value","justification"}],"extensions":[{"id","name","status","detail"}]} with status one of ACTIVE, LIKELY, POSSIBLE, PRIMARY, SECONDARY, INACTIVE, MONITORING.

Be precise and a little cold. Never break the analyst persona.`
