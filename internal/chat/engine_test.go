package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lovebomb-backend/internal/models"
)

func noBackoff(int) time.Duration { return time.Millisecond }

func streamHandler(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			w.Write([]byte(line + "\n"))
		}
	}
}

func newTestEngine(t *testing.T, handler http.Handler) (*Engine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	engine := NewEngine(Config{
		ChatURL: srv.URL + "/api/v1/chat",
		Backoff: noBackoff,
	})
	return engine, srv
}

func TestSendMessageAppliesStream(t *testing.T) {
	engine, _ := newTestEngine(t, streamHandler(
		`{"type":"text","content":"<phase>INTAKE</phase>Hello "}`,
		`{"type":"text","content":"world"}`,
		`{"type":"done","promptCount":3,"isUnlocked":false}`,
	))

	require.NoError(t, engine.SendMessage(context.Background(), "hi"))

	msgs := engine.Messages()
	require.Len(t, msgs, 3) // greeting, user, assistant
	assistant := msgs[2]
	assert.Equal(t, models.RoleAssistant, assistant.Role)
	assert.Equal(t, "<phase>INTAKE</phase>Hello world", assistant.Content)
	assert.Equal(t, models.PhaseIntake, assistant.Phase)
	assert.Equal(t, 3, engine.PromptCount())
	assert.False(t, engine.IsLoading())
	assert.Nil(t, engine.Err())
}

func TestSendMessageAttachesStructuredEvents(t *testing.T) {
	engine, _ := newTestEngine(t, streamHandler(
		`{"type":"text","content":"<phase>DIAGNOSIS</phase>Verdict."}`,
		`{"type":"equilibrium","data":{"id":"eq-1","name":"Attrition","confidence":77,"predictions":[]}}`,
		`{"type":"analysis","data":{"parameters":[],"extensions":[{"id":"EXT-V","name":"Credit Rationing","status":"ACTIVE","detail":"d"}]}}`,
		`{"type":"done","promptCount":1,"isUnlocked":false}`,
	))

	require.NoError(t, engine.SendMessage(context.Background(), "verdict please"))

	assistant := engine.Messages()[2]
	require.NotNil(t, assistant.Equilibrium)
	assert.Equal(t, "eq-1", assistant.Equilibrium.ID)
	require.NotNil(t, assistant.FormalAnalysis)
	require.Len(t, assistant.FormalAnalysis.Extensions, 1)
	assert.Equal(t, models.PhaseDiagnosis, assistant.Phase)
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	engine, _ := newTestEngine(t, streamHandler(`{"type":"done"}`))
	assert.Error(t, engine.SendMessage(context.Background(), "   "))
	assert.Len(t, engine.Messages(), 1)
}

func TestGateRequiredIsNotAnError(t *testing.T) {
	var gatePrompts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(models.GateRequiredResponse{Error: "gate_required", PromptCount: 5})
	}))
	t.Cleanup(srv.Close)

	engine := NewEngine(Config{
		ChatURL: srv.URL,
		Backoff: noBackoff,
		OnGateRequired: func(promptCount int) {
			gatePrompts = promptCount
		},
	})

	require.NoError(t, engine.SendMessage(context.Background(), "one more"))

	assert.True(t, engine.GateRequired())
	assert.Equal(t, 5, gatePrompts)
	assert.Nil(t, engine.Err())
	// Placeholder discarded: greeting + user only.
	require.Len(t, engine.Messages(), 2)
	assert.Equal(t, models.RoleUser, engine.Messages()[1].Role)
}

func TestRateLimitedNoAutoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(models.RateLimitResponse{RetryAfter: 7})
	}))
	t.Cleanup(srv.Close)

	engine := NewEngine(Config{ChatURL: srv.URL, Backoff: noBackoff})
	err := engine.SendMessage(context.Background(), "hi")
	require.Error(t, err)

	cerr := engine.Err()
	require.NotNil(t, cerr)
	assert.Equal(t, models.ErrRateLimited, cerr.Kind)
	assert.Equal(t, 7*time.Second, cerr.RetryAfter)
	assert.Contains(t, cerr.Message, "7")
	assert.False(t, cerr.Retryable())
	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, engine.Messages(), 2)
}

func TestServerErrorRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		streamHandler(
			`{"type":"text","content":"recovered"}`,
			`{"type":"done","promptCount":2,"isUnlocked":false}`,
		).ServeHTTP(w, r)
	})
	engine, _ := newTestEngine(t, handler)

	require.NoError(t, engine.SendMessage(context.Background(), "hi"))

	assert.Equal(t, int32(2), calls.Load())
	// Exactly one assistant message, no duplicate placeholders.
	var assistants int
	for _, m := range engine.Messages() {
		if m.Role == models.RoleAssistant {
			assistants++
		}
	}
	assert.Equal(t, 1, assistants)
	assert.Equal(t, 0, engine.RetryCount())
	assert.Nil(t, engine.Err())
}

func TestServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	engine := NewEngine(Config{ChatURL: srv.URL, Backoff: noBackoff})
	err := engine.SendMessage(context.Background(), "hi")
	require.Error(t, err)

	assert.Equal(t, int32(4), calls.Load()) // initial + 3 retries
	require.NotNil(t, engine.Err())
	assert.Equal(t, models.ErrAPI, engine.Err().Kind)
	require.Len(t, engine.Messages(), 2)
}

func TestOtherStatusFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "bad input"})
	}))
	t.Cleanup(srv.Close)

	engine := NewEngine(Config{ChatURL: srv.URL, Backoff: noBackoff})
	err := engine.SendMessage(context.Background(), "hi")
	require.Error(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, models.ErrAPI, engine.Err().Kind)
	assert.Contains(t, engine.Err().Message, "bad input")
}

func TestNetworkErrorSurfaced(t *testing.T) {
	engine := NewEngine(Config{ChatURL: "http://127.0.0.1:1/chat", Backoff: noBackoff})
	err := engine.SendMessage(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, models.ErrNetwork, engine.Err().Kind)
	assert.True(t, engine.Err().Retryable())
}

func TestTimeoutSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	engine := NewEngine(Config{ChatURL: srv.URL, Backoff: noBackoff, Timeout: 20 * time.Millisecond})
	err := engine.SendMessage(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, models.ErrTimeout, engine.Err().Kind)
}

func TestRetryReplaysOnce(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 4 { // initial + 3 auto retries all fail
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req models.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		// Manual retry must replay the same content without duplicating
		// the user message.
		if len(req.Messages) != 1 || req.Messages[0].Content != "original" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		streamHandler(`{"type":"text","content":"ok"}`, `{"type":"done","promptCount":1}`).ServeHTTP(w, r)
	})
	engine, _ := newTestEngine(t, handler)

	require.Error(t, engine.SendMessage(context.Background(), "original"))
	require.NoError(t, engine.Retry(context.Background()))

	assert.Nil(t, engine.Err())
	msgs := engine.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "original", msgs[1].Content)
	assert.Equal(t, "ok", msgs[2].Content)

	// Retry with no active error is a no-op.
	before := calls.Load()
	require.NoError(t, engine.Retry(context.Background()))
	assert.Equal(t, before, calls.Load())
}

func TestCancelIsSilent(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"type":"text","content":"partial "}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	t.Cleanup(srv.Close)
	defer close(release)

	engine := NewEngine(Config{ChatURL: srv.URL, Backoff: noBackoff})

	done := make(chan error, 1)
	go func() { done <- engine.SendMessage(context.Background(), "hi") }()

	require.Eventually(t, func() bool {
		msgs := engine.Messages()
		return len(msgs) == 3 && msgs[2].Content != ""
	}, time.Second, 5*time.Millisecond)

	engine.Cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send did not return after cancel")
	}

	// Partial content stays; no error surfaced.
	assert.Nil(t, engine.Err())
	msgs := engine.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "partial ", msgs[2].Content)
}

func TestResetRestoresGreeting(t *testing.T) {
	engine, _ := newTestEngine(t, streamHandler(
		`{"type":"text","content":"x"}`, `{"type":"done","promptCount":1}`,
	))
	require.NoError(t, engine.SendMessage(context.Background(), "hi"))
	require.Len(t, engine.Messages(), 3)

	engine.Reset()

	msgs := engine.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.Nil(t, engine.Err())
	assert.False(t, engine.IsLoading())
}

func TestLoadSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.SessionInfo{PromptCount: 2, MaxPrompts: 5, IsUnlocked: false, Remaining: 3})
	}))
	t.Cleanup(srv.Close)

	engine := NewEngine(Config{ChatURL: srv.URL, SessionURL: srv.URL + "/api/v1/session"})
	require.NoError(t, engine.LoadSession(context.Background()))
	assert.Equal(t, 2, engine.PromptCount())
	assert.False(t, engine.IsUnlocked())
}

func TestUnlockResumesChat(t *testing.T) {
	engine, _ := newTestEngine(t, streamHandler(`{"type":"done"}`))
	engine.mu.Lock()
	engine.gateShown = true
	engine.mu.Unlock()

	engine.Unlock()
	assert.True(t, engine.IsUnlocked())
	assert.False(t, engine.GateRequired())
}
