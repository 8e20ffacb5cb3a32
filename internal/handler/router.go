package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chathandler "github.com/minhokim/voicerag/backend/internal/handler/chat"
	knowledgehandler "github.com/minhokim/voicerag/backend/internal/handler/knowledge"
	voicehandler "github.com/minhokim/voicerag/backend/internal/handler/voice"
	middlewarePkg "github.com/minhokim/voicerag/backend/internal/middleware"
	chatservice "github.com/minhokim/voicerag/backend/internal/service/chat"
	knowledgeservice "github.com/minhokim/voicerag/backend/internal/service/knowledge"
	"github.com/minhokim/voicerag/backend/internal/service/rag"
	"github.com/minhokim/voicerag/backend/internal/service/speech"
	"github.com/minhokim/voicerag/backend/pkg/utils"
)

// Deps carries the services the router wires into handlers. Orchestrator,
// Transcriber and Synthesizer may be nil when the corresponding collaborator
// is not configured; the affected routes then report unavailability.
type Deps struct {
	Sessions     *chatservice.Service
	Orchestrator *rag.Orchestrator
	Knowledge    *knowledgeservice.Service
	Transcriber  speech.Transcriber
	Synthesizer  speech.Synthesizer
	Language     string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chathandler.New(deps.Orchestrator, deps.Sessions)
	knowledgeHandler := knowledgehandler.New(deps.Knowledge)

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		chatHandler.RegisterRoutes(api)
		knowledgeHandler.RegisterRoutes(api)

		if deps.Transcriber != nil && deps.Orchestrator != nil {
			voiceHandler := voicehandler.New(deps.Transcriber, deps.Orchestrator, deps.Synthesizer, deps.Language)
			voiceHandler.RegisterRoutes(api)
		}
	})

	return r
}
