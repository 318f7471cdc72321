// Package chat implements the client-side session engine for the analysis
// conversation: the ordered message log, the in-flight request lifecycle,
// retry/backoff, gating, and the error taxonomy surfaced to the UI.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"lovebomb-backend/internal/analytics"
	"lovebomb-backend/internal/models"
	"lovebomb-backend/internal/parser"
	"lovebomb-backend/internal/stream"
)

// DefaultGreeting opens every conversation; Reset restores the log to it.
const DefaultGreeting = "Tell me about your relationship situation. I will build a formal economic model of it."

const defaultMaxRetries = 3

// Config wires the engine to its transport and collaborators.
type Config struct {
	// ChatURL is the streaming chat endpoint.
	ChatURL string
	// SessionURL is the session info endpoint, fetched at startup.
	SessionURL string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Timeout bounds one whole turn, headers through done. Zero disables.
	Timeout time.Duration
	// Backoff returns the delay before retry attempt n (1-based). The
	// default is 1s, 2s, 4s.
	Backoff func(attempt int) time.Duration
	// Greeting overrides DefaultGreeting when non-empty.
	Greeting string
	// OnUpdate fires after every applied state change, on the engine's
	// calling goroutine. Optional.
	OnUpdate func()
	// OnGateRequired fires when the server trips the free-message gate.
	// Optional.
	OnGateRequired func(promptCount int)
	// Tracker receives product events; nil means the process default.
	Tracker analytics.Tracker
}

// Engine owns all mutable conversation state. All exported methods are safe
// for concurrent use, but state mutation remains single-owner: nothing
// outside the engine writes the log, flags or counters.
type Engine struct {
	cfg Config

	mu          sync.Mutex
	messages    []*models.Message
	loading     bool
	chatErr     *models.ChatError
	promptCount int
	maxPrompts  int
	isUnlocked  bool
	gateShown   bool

	// pendingRetry is the one-slot replay payload, overwritten on each new
	// send and cleared on success or cancel.
	pendingRetry string
	retryCount   int

	cancel     context.CancelFunc
	generation uint64
}

func NewEngine(cfg Config) *Engine {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Backoff == nil {
		cfg.Backoff = func(attempt int) time.Duration {
			return time.Duration(1<<(attempt-1)) * time.Second
		}
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.Tracker == nil {
		cfg.Tracker = analytics.Default()
	}
	e := &Engine{cfg: cfg}
	e.messages = []*models.Message{models.NewMessage(models.RoleSystem, cfg.Greeting)}
	return e
}

// Messages returns a snapshot of the log in order.
func (e *Engine) Messages() []*models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

func (e *Engine) IsLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

func (e *Engine) Err() *models.ChatError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chatErr
}

func (e *Engine) PromptCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.promptCount
}

func (e *Engine) IsUnlocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isUnlocked
}

// GateRequired reports whether the unlock flow should be showing.
func (e *Engine) GateRequired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gateShown
}

func (e *Engine) RetryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retryCount
}

// DismissError clears the active error without any other side effect.
func (e *Engine) DismissError() {
	e.mu.Lock()
	e.chatErr = nil
	e.mu.Unlock()
	e.notify()
}

// LoadSession fetches authoritative counters at startup.
func (e *Engine) LoadSession(ctx context.Context) error {
	if e.cfg.SessionURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.SessionURL, nil)
	if err != nil {
		return err
	}
	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("session fetch failed: %w", err)
	}
	defer resp.Body.Close()

	var info models.SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("session fetch failed: %w", err)
	}

	e.mu.Lock()
	e.promptCount = info.PromptCount
	e.maxPrompts = info.MaxPrompts
	e.isUnlocked = info.IsUnlocked
	e.mu.Unlock()
	e.notify()
	return nil
}

// SendMessage appends a user turn and streams the assistant reply into the
// log. Any prior in-flight request is cancelled first; exactly one request
// is live at a time. The call blocks until the turn settles.
func (e *Engine) SendMessage(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("message is empty")
	}
	return e.send(ctx, content, true)
}

// Retry replays the last failed send exactly once. It is a no-op unless an
// error is active and a replay payload exists.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	if e.chatErr == nil || e.pendingRetry == "" {
		e.mu.Unlock()
		return nil
	}
	content := e.pendingRetry
	e.chatErr = nil
	e.mu.Unlock()
	return e.send(ctx, content, false)
}

// Cancel aborts the in-flight request and any pending backoff timer. It is
// not an error and keeps partial content already rendered.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.pendingRetry = ""
	e.mu.Unlock()
}

// Reset restores the initial greeting-only log and clears error, loading
// and retry state. The external session cookie is untouched; that belongs
// to the session store.
func (e *Engine) Reset() {
	e.Cancel()
	e.mu.Lock()
	e.messages = []*models.Message{models.NewMessage(models.RoleSystem, e.cfg.Greeting)}
	e.chatErr = nil
	e.loading = false
	e.retryCount = 0
	e.gateShown = false
	e.mu.Unlock()
	e.notify()
}

// Unlock is the gate machine's onUnlock hand-back: the chat resumes idle
// with unlimited sends.
func (e *Engine) Unlock() {
	e.mu.Lock()
	e.isUnlocked = true
	e.gateShown = false
	e.mu.Unlock()
	e.cfg.Tracker.Track(analytics.EventGateUnlocked, nil)
	e.notify()
}

func (e *Engine) notify() {
	if e.cfg.OnUpdate != nil {
		e.cfg.OnUpdate()
	}
}

func (e *Engine) send(ctx context.Context, content string, appendUser bool) error {
	ctx, gen := e.begin(ctx)
	defer e.settle(gen)

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	e.mu.Lock()
	if appendUser {
		e.messages = append(e.messages, models.NewMessage(models.RoleUser, content))
	}
	e.pendingRetry = content
	history := e.historyLocked()
	e.mu.Unlock()
	e.notify()

	e.cfg.Tracker.Track(analytics.EventMessageSent, map[string]any{"length": len(content)})

	for attempt := 0; ; attempt++ {
		done, err := e.attemptTurn(ctx, history)
		if done {
			return err
		}
		// Server error: retry with backoff, replaying the same payload.
		if attempt >= defaultMaxRetries {
			return e.fail(models.APIChatError(""))
		}
		e.mu.Lock()
		e.retryCount = attempt + 1
		e.mu.Unlock()
		if err := sleep(ctx, e.cfg.Backoff(attempt+1)); err != nil {
			return e.abandon(ctx, err)
		}
	}
}

// attemptTurn runs one request/stream cycle. done=false means a retryable
// server error; done=true settles the turn with err (nil on success, gate,
// or swallowed cancellation).
func (e *Engine) attemptTurn(ctx context.Context, history []models.ChatMessage) (bool, error) {
	placeholder := e.openPlaceholder()

	body, _ := json.Marshal(models.ChatRequest{Messages: history})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.ChatURL, bytes.NewReader(body))
	if err != nil {
		e.removePlaceholder(placeholder)
		return true, e.fail(models.APIChatError(err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		e.removePlaceholder(placeholder)
		return true, e.abandon(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		e.removePlaceholder(placeholder)
		return true, e.handleGate(resp)

	case resp.StatusCode == http.StatusTooManyRequests:
		e.removePlaceholder(placeholder)
		return true, e.handleRateLimit(resp)

	case resp.StatusCode >= 500:
		e.removePlaceholder(placeholder)
		return false, nil

	case resp.StatusCode != http.StatusOK:
		e.removePlaceholder(placeholder)
		var payload struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&payload)
		return true, e.fail(models.APIChatError(payload.Message))
	}

	if err := e.consumeStream(resp, placeholder); err != nil {
		// A cancelled turn keeps whatever already rendered; any other
		// failure removes the broken placeholder from the log.
		if !errors.Is(ctx.Err(), context.Canceled) {
			e.removePlaceholder(placeholder)
		}
		return true, e.abandon(ctx, err)
	}

	e.mu.Lock()
	e.pendingRetry = ""
	e.retryCount = 0
	e.mu.Unlock()
	e.notify()
	return true, nil
}

func (e *Engine) consumeStream(resp *http.Response, msg *models.Message) error {
	decoder := stream.NewDecoder(resp.Body)
	return decoder.All(func(event models.StreamEvent) error {
		switch event.Type {
		case models.EventText:
			e.mu.Lock()
			msg.Content += event.Content
			res := parser.ParseWithPhase(msg.Content, msg.Phase)
			msg.SetPhase(res.Phase)
			e.mu.Unlock()

		case models.EventEquilibrium:
			if eq, err := event.Equilibrium(); err == nil {
				e.mu.Lock()
				msg.Equilibrium = eq
				e.mu.Unlock()
			}

		case models.EventAnalysis:
			if fa, err := event.Analysis(); err == nil {
				e.mu.Lock()
				msg.FormalAnalysis = fa
				e.mu.Unlock()
			}

		case models.EventDone:
			e.mu.Lock()
			e.promptCount = event.PromptCount
			e.isUnlocked = event.IsUnlocked
			e.mu.Unlock()
		}
		e.notify()
		return nil
	})
}

func (e *Engine) handleGate(resp *http.Response) error {
	var gate models.GateRequiredResponse
	json.NewDecoder(resp.Body).Decode(&gate)

	e.mu.Lock()
	e.gateShown = true
	if gate.PromptCount > 0 {
		e.promptCount = gate.PromptCount
	}
	e.pendingRetry = ""
	e.mu.Unlock()

	e.cfg.Tracker.Track(analytics.EventGateShown, map[string]any{"promptCount": gate.PromptCount})
	if e.cfg.OnGateRequired != nil {
		e.cfg.OnGateRequired(gate.PromptCount)
	}
	e.notify()
	return nil
}

func (e *Engine) handleRateLimit(resp *http.Response) error {
	var rl models.RateLimitResponse
	json.NewDecoder(resp.Body).Decode(&rl)
	if rl.RetryAfter <= 0 {
		rl.RetryAfter = 60
	}
	return e.fail(models.RateLimitedError(time.Duration(rl.RetryAfter) * time.Second))
}

// abandon settles a transport-level failure: cancellation is swallowed,
// deadline surfaces as timeout, anything else as network error.
func (e *Engine) abandon(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return e.fail(models.TimeoutChatError())
	default:
		return e.fail(models.NetworkChatError())
	}
}

// fail records the error, replacing any previous one, and returns it.
func (e *Engine) fail(cerr *models.ChatError) error {
	e.mu.Lock()
	e.chatErr = cerr
	e.mu.Unlock()
	e.cfg.Tracker.Track(analytics.EventChatError, map[string]any{"kind": string(cerr.Kind)})
	e.notify()
	return cerr
}

// begin cancels any prior in-flight request and installs this turn's
// cancellation token. The returned generation lets settle ignore turns that
// were already superseded by a newer send.
func (e *Engine) begin(ctx context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	e.generation++
	gen := e.generation
	e.loading = true
	e.chatErr = nil
	e.mu.Unlock()
	e.notify()
	return ctx, gen
}

func (e *Engine) settle(gen uint64) {
	e.mu.Lock()
	if gen == e.generation {
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.loading = false
	}
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) openPlaceholder() *models.Message {
	msg := models.NewMessage(models.RoleAssistant, "")
	e.mu.Lock()
	e.messages = append(e.messages, msg)
	e.mu.Unlock()
	e.notify()
	return msg
}

func (e *Engine) removePlaceholder(msg *models.Message) {
	e.mu.Lock()
	for i, m := range e.messages {
		if m == msg {
			e.messages = append(e.messages[:i], e.messages[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	e.notify()
}

// historyLocked builds the outbound context: every non-system turn, skipping
// empty placeholders. Caller holds e.mu.
func (e *Engine) historyLocked() []models.ChatMessage {
	var history []models.ChatMessage
	for _, m := range e.messages {
		if m.Role == models.RoleSystem || (m.Role == models.RoleAssistant && m.Content == "") {
			continue
		}
		history = append(history, models.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return history
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
