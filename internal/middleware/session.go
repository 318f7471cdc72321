package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"lovebomb-backend/internal/models"
	"lovebomb-backend/internal/session"
)

type contextKey string

const SessionKey contextKey = "session"

// SessionAuth resolves the visitor's session from the signed cookie,
// minting a fresh session (and cookie) on first visit or when the cookie
// fails verification.
type SessionAuth struct {
	store  *session.Store
	codec  *session.CookieCodec
	secure bool
}

func NewSessionAuth(store *session.Store, codec *session.CookieCodec, secure bool) *SessionAuth {
	return &SessionAuth{store: store, codec: codec, secure: secure}
}

func (s *SessionAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sess *models.Session

		if sid, ok := s.codec.Read(r); ok {
			found, err := s.store.Get(r.Context(), sid)
			switch {
			case err == nil:
				sess = found
			case !errors.Is(err, session.ErrNotFound):
				writeError(w, http.StatusInternalServerError, "SESSION_ERROR", "Failed to load session", r)
				return
			}
		}

		if sess == nil {
			created, err := s.store.Create(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SESSION_ERROR", "Failed to create session", r)
				return
			}
			if err := s.codec.Issue(w, created.ID, s.secure); err != nil {
				writeError(w, http.StatusInternalServerError, "SESSION_ERROR", "Failed to issue session cookie", r)
				return
			}
			sess = created
		}

		ctx := context.WithValue(r.Context(), SessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession extracts the resolved session from the request context.
func GetSession(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(SessionKey).(*models.Session)
	return sess
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
