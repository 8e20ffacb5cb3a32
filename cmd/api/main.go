package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/minhokim/voicerag/backend/internal/config"
	"github.com/minhokim/voicerag/backend/internal/handler"
	chatservice "github.com/minhokim/voicerag/backend/internal/service/chat"
	knowledgeservice "github.com/minhokim/voicerag/backend/internal/service/knowledge"
	"github.com/minhokim/voicerag/backend/internal/service/rag"
	"github.com/minhokim/voicerag/backend/internal/service/speech"
	"github.com/minhokim/voicerag/backend/internal/store/docstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}
	store := docstore.New(cfg.Store.Path, cfg.RAG.RetrieveTopK)
	if err := store.Open(ctx); err != nil {
		log.Fatalf("failed to open document store: %v", err)
	}
	defer store.Close()
	log.Printf("document store ready with %d document(s)", store.Len())

	sessions := chatservice.NewService()

	var orchestrator *rag.Orchestrator
	var knowledgeSvc *knowledgeservice.Service
	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Fatalf("failed to create chat model: %v", err)
		}

		invoker := rag.NewInvoker(rag.NewRetrieveTool(store, cfg.RAG.RetrieveTopK))
		window, err := rag.NewWindow(cfg.RAG.TokenizerModel, cfg.RAG.TokenBudget)
		if err != nil {
			log.Fatalf("failed to create history window: %v", err)
		}

		orchestrator, err = rag.NewOrchestrator(chatModel, invoker, sessions, window)
		if err != nil {
			log.Fatalf("failed to create orchestrator: %v", err)
		}
		knowledgeSvc = knowledgeservice.NewService(store, store, store, chatModel)
		log.Println("chat orchestrator initialized successfully")
	} else {
		knowledgeSvc = knowledgeservice.NewService(store, store, store, nil)
		log.Println("model credentials not configured, chat endpoint disabled")
	}

	var transcriber speech.Transcriber
	var synthesizer speech.Synthesizer
	if cfg.Speech.Enabled {
		clientCfg := speech.ClientConfig{
			BaseURL:  cfg.Speech.BaseURL,
			APIKey:   cfg.Speech.APIKey,
			ASRModel: cfg.Speech.ASRModel,
			TTSModel: cfg.Speech.TTSModel,
			TTSVoice: cfg.Speech.TTSVoice,
			Timeout:  cfg.Speech.Timeout,
		}
		transcriber = speech.NewHTTPTranscriber(clientCfg)
		synthesizer = speech.NewHTTPSynthesizer(clientCfg)
		log.Println("speech providers initialized successfully")
	} else {
		log.Println("speech credentials not configured, voice endpoint disabled")
	}

	router := handler.NewRouter(handler.Deps{
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Knowledge:    knowledgeSvc,
		Transcriber:  transcriber,
		Synthesizer:  synthesizer,
		Language:     cfg.Speech.Language,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voicerag backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
