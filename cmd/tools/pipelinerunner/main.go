package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/minhokim/voicerag/backend/internal/config"
	chatservice "github.com/minhokim/voicerag/backend/internal/service/chat"
	"github.com/minhokim/voicerag/backend/internal/service/pipeline"
	"github.com/minhokim/voicerag/backend/internal/service/rag"
	"github.com/minhokim/voicerag/backend/internal/service/speech"
	"github.com/minhokim/voicerag/backend/internal/store/docstore"
)

// pipelinerunner walks a directory of audio files and runs each one through
// the full transcribe -> chat -> synthesize pipeline.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env, using system environment: %v", err)
	}

	dir := flag.String("dir", "./voice_data", "directory containing input audio files")
	out := flag.String("out", "./batch_output", "directory for synthesized responses (empty to skip synthesis)")
	ext := flag.String("ext", ".wav,.mp3,.m4a", "comma-separated audio extensions to pick up")
	concurrency := flag.Int("concurrency", 2, "number of files processed in parallel")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall batch timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if !cfg.AI.Enabled() {
		log.Fatal("model credentials not configured, set ARK_API_KEY and ARK_MODEL")
	}
	if !cfg.Speech.Enabled {
		log.Fatal("speech credentials not configured, set SPEECH_API_KEY")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := docstore.New(cfg.Store.Path, cfg.RAG.RetrieveTopK)
	if err := store.Open(ctx); err != nil {
		log.Fatalf("failed to open document store: %v", err)
	}
	defer store.Close()

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatalf("failed to create chat model: %v", err)
	}

	invoker := rag.NewInvoker(rag.NewRetrieveTool(store, cfg.RAG.RetrieveTopK))
	window, err := rag.NewWindow(cfg.RAG.TokenizerModel, cfg.RAG.TokenBudget)
	if err != nil {
		log.Fatalf("failed to create history window: %v", err)
	}
	orchestrator, err := rag.NewOrchestrator(chatModel, invoker, chatservice.NewService(), window)
	if err != nil {
		log.Fatalf("failed to create orchestrator: %v", err)
	}

	clientCfg := speech.ClientConfig{
		BaseURL:  cfg.Speech.BaseURL,
		APIKey:   cfg.Speech.APIKey,
		ASRModel: cfg.Speech.ASRModel,
		TTSModel: cfg.Speech.TTSModel,
		TTSVoice: cfg.Speech.TTSVoice,
		Timeout:  cfg.Speech.Timeout,
	}
	var synthesizer speech.Synthesizer
	if *out != "" {
		synthesizer = speech.NewHTTPSynthesizer(clientCfg)
	}

	driver := pipeline.NewDriver(speech.NewHTTPTranscriber(clientCfg), orchestrator, synthesizer, cfg.Speech.Language)

	files, err := collectAudioFiles(*dir, *ext)
	if err != nil {
		log.Fatalf("failed to scan %s: %v", *dir, err)
	}
	if len(files) == 0 {
		log.Fatalf("no audio files found in %s", *dir)
	}
	log.Printf("processing %d file(s) from %s", len(files), *dir)

	start := time.Now()
	results, err := driver.ProcessBatch(ctx, files, *out, *concurrency)
	if err != nil {
		log.Printf("batch finished with error: %v", err)
	}

	for _, res := range results {
		line, _ := json.Marshal(res)
		fmt.Println(string(line))
	}
	log.Printf("done in %s", time.Since(start).Round(time.Millisecond))
	if err != nil {
		os.Exit(1)
	}
}

func collectAudioFiles(dir, extList string) ([]string, error) {
	allowed := make(map[string]bool)
	for _, e := range strings.Split(extList, ",") {
		e = strings.TrimSpace(strings.ToLower(e))
		if e != "" {
			allowed[e] = true
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if allowed[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
