package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/minhokim/voicerag/backend/internal/model/chat"
	chatservice "github.com/minhokim/voicerag/backend/internal/service/chat"
	"github.com/minhokim/voicerag/backend/internal/service/rag"
	"github.com/minhokim/voicerag/backend/pkg/utils"
)

// Handler exposes the chat entry point and the session transcript surface.
type Handler struct {
	orchestrator *rag.Orchestrator
	sessions     *chatservice.Service
}

// New creates the chat handler. orchestrator may be nil when no completion
// model is configured.
func New(orchestrator *rag.Orchestrator, sessions *chatservice.Service) *Handler {
	return &Handler{orchestrator: orchestrator, sessions: sessions}
}

// RegisterRoutes wires the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/{sessionID}/history", h.handleHistory)
	r.Delete("/chat/{sessionID}", h.handleClear)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "chat_unavailable", "chat model not configured")
		return
	}

	var payload struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if payload.SessionID == "" || strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "bad_request", "sessionId and message are required")
		return
	}

	answer, err := h.orchestrator.Chat(r.Context(), payload.SessionID, payload.Message)
	if err != nil {
		status, code := statusForTurnError(err)
		utils.RespondError(w, status, code, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"sessionId": payload.SessionID,
		"answer":    answer,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	history, err := h.sessions.History(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	views := make([]chatmodel.MessageView, 0, len(history))
	for _, msg := range history {
		views = append(views, chatmodel.ViewOf(msg))
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  views,
	})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.Clear(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// Tool failures never surface here: the orchestrator folds them into
// failure-marker tool messages and the turn still produces an answer.
func statusForTurnError(err error) (int, string) {
	switch {
	case errors.Is(err, chatservice.ErrSessionBusy):
		return http.StatusConflict, "session_busy"
	case errors.Is(err, rag.ErrCompletionFailure):
		return http.StatusBadGateway, "completion_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
