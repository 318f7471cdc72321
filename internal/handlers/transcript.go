package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lovebomb-backend/internal/middleware"
	"lovebomb-backend/internal/models"
	"lovebomb-backend/internal/parser"
	"lovebomb-backend/internal/repository"
)

type TranscriptHandler struct {
	convRepo *repository.ConversationRepo
}

func NewTranscriptHandler(convRepo *repository.ConversationRepo) *TranscriptHandler {
	return &TranscriptHandler{convRepo: convRepo}
}

// Export handles GET /api/v1/conversations/{id}/transcript.md. Only the
// session that owns the conversation may export it.
func (h *TranscriptHandler) Export(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "No session", r))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_REQUEST", "Invalid conversation id", r))
		return
	}

	conv, err := h.convRepo.GetByID(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && conv.SessionID != sess.ID) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Conversation not found", r))
		return
	}
	if err != nil {
		log.Printf("failed to load conversation %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("TRANSCRIPT_FAILED", "Failed to load conversation", r))
		return
	}

	messages, err := h.convRepo.ListMessages(r.Context(), conv.ID)
	if err != nil {
		log.Printf("failed to list messages for conversation %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("TRANSCRIPT_FAILED", "Failed to load messages", r))
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "transcript-"+conv.ID.String()+".md"))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(renderTranscript(conv, messages)))
}

func renderTranscript(conv *models.Conversation, messages []*models.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", conv.Title)
	fmt.Fprintf(&sb, "_Exported from lovebomb.works on %s_\n\n", conv.CreatedAt.Format("2006-01-02"))

	for _, msg := range messages {
		if msg.Role == models.RoleUser {
			sb.WriteString("## You\n\n")
			sb.WriteString(strings.TrimSpace(msg.Content))
			sb.WriteString("\n\n")
			continue
		}

		if msg.Phase != "" {
			fmt.Fprintf(&sb, "## The Analyst (%s)\n\n", msg.Phase)
		} else {
			sb.WriteString("## The Analyst\n\n")
		}

		// Stored assistant content carries the raw tag grammar; parse it
		// so the export reads like the rendered conversation.
		parsed := parser.ParseWithPhase(msg.Content, msg.Phase)
		if parsed.HasThinking {
			sb.WriteString("### Working\n\n")
			for _, line := range strings.Split(strings.TrimSpace(parsed.ThinkingContent), "\n") {
				fmt.Fprintf(&sb, "> %s\n", line)
			}
			sb.WriteString("\n")
		}
		sb.WriteString(strings.TrimSpace(parsed.MainContent))
		sb.WriteString("\n\n")

		if msg.Equilibrium != nil {
			renderEquilibrium(&sb, msg.Equilibrium)
		}
		if !msg.FormalAnalysis.IsEmpty() {
			renderAnalysis(&sb, msg.FormalAnalysis)
		}
	}
	return sb.String()
}

func renderEquilibrium(sb *strings.Builder, eq *models.Equilibrium) {
	fmt.Fprintf(sb, "### Equilibrium: %s\n\n", eq.Name)
	fmt.Fprintf(sb, "%s\n\n", eq.Description)
	fmt.Fprintf(sb, "Confidence: %d%%\n\n", eq.Confidence)
	for _, p := range eq.Predictions {
		fmt.Fprintf(sb, "- %s — %d%% (%s)\n", p.Outcome, p.Probability, p.Level)
	}
	sb.WriteString("\n")
}

func renderAnalysis(sb *strings.Builder, fa *models.FormalAnalysis) {
	if len(fa.Parameters) > 0 {
		sb.WriteString("### Parameters\n\n")
		sb.WriteString("| Parameter | Value | Justification |\n")
		sb.WriteString("|-----------|-------|---------------|\n")
		for _, p := range fa.Parameters {
			fmt.Fprintf(sb, "| %s | %s | %s |\n", p.Name, p.Value, p.Justification)
		}
		sb.WriteString("\n")
	}
	if len(fa.Extensions) > 0 {
		sb.WriteString("### Extensions\n\n")
		for _, ext := range fa.Extensions {
			fmt.Fprintf(sb, "- **%s: %s** (%s) %s\n", ext.ID, ext.Name, ext.Status, ext.Detail)
		}
		sb.WriteString("\n")
	}
}
