package knowledge

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	knowledgeservice "github.com/minhokim/voicerag/backend/internal/service/knowledge"
	"github.com/minhokim/voicerag/backend/pkg/utils"
)

// Handler exposes the administrative knowledge-update surface.
type Handler struct {
	svc *knowledgeservice.Service
}

// New creates the knowledge handler.
func New(svc *knowledgeservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the knowledge routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/knowledge/documents", h.handleAddDocuments)
	r.Post("/knowledge/persist", h.handlePersist)
	r.Get("/knowledge/search", h.handleSearch)
}

func (h *Handler) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Documents []string `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if err := h.svc.AddDocuments(r.Context(), payload.Documents); err != nil {
		// A persistence failure means the in-memory index already holds the
		// documents; the caller retries via /knowledge/persist only.
		if errors.Is(err, knowledgeservice.ErrPersistenceFailure) {
			utils.RespondError(w, http.StatusBadGateway, "persistence_failure", err.Error())
			return
		}
		utils.RespondError(w, http.StatusBadGateway, "ingest_failure", err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]any{
		"status": "added",
		"count":  len(payload.Documents),
	})
}

func (h *Handler) handlePersist(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Persist(r.Context()); err != nil {
		utils.RespondError(w, http.StatusBadGateway, "persistence_failure", err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "persisted"})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		utils.RespondError(w, http.StatusBadRequest, "bad_request", "q query parameter is required")
		return
	}

	contents, err := h.svc.RetrieveRelevant(r.Context(), query, 5)
	if err != nil {
		utils.RespondError(w, http.StatusBadGateway, "index_unavailable", err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"results": contents})
}
