package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/minhokim/voicerag/backend/internal/service/speech"
)

// Responder produces an answer for one user turn. Satisfied by the RAG
// orchestrator.
type Responder interface {
	Chat(ctx context.Context, sessionID, userText string) (string, error)
}

// Result captures one file's trip through the pipeline.
type Result struct {
	InputFile    string `json:"inputFile"`
	InputText    string `json:"inputText"`
	ResponseText string `json:"responseText"`
	OutputAudio  string `json:"outputAudio,omitempty"`
}

// Driver feeds transcribed audio into the orchestrator and routes the answer
// to synthesis. It performs no retries; retry policy belongs to the caller.
type Driver struct {
	transcriber speech.Transcriber
	responder   Responder
	synthesizer speech.Synthesizer
	language    string
}

// NewDriver wires the three pipeline stages. synthesizer may be nil to skip
// audio output.
func NewDriver(transcriber speech.Transcriber, responder Responder, synthesizer speech.Synthesizer, language string) *Driver {
	return &Driver{
		transcriber: transcriber,
		responder:   responder,
		synthesizer: synthesizer,
		language:    language,
	}
}

// ProcessAudioFile runs one audio file through transcribe, chat and
// synthesize. outputPath may be empty to skip the synthesis stage.
func (d *Driver) ProcessAudioFile(ctx context.Context, sessionID, audioPath, outputPath string) (Result, error) {
	result := Result{InputFile: audioPath}

	f, err := os.Open(audioPath)
	if err != nil {
		return result, fmt.Errorf("%w: %v", speech.ErrTranscriptionFailure, err)
	}
	defer f.Close()

	inputText, err := d.transcriber.Transcribe(ctx, f, filepath.Base(audioPath), d.language)
	if err != nil {
		return result, err
	}
	result.InputText = inputText
	log.Printf("[pipeline] session=%s recognized %q", sessionID, inputText)

	responseText, err := d.responder.Chat(ctx, sessionID, inputText)
	if err != nil {
		return result, err
	}
	result.ResponseText = responseText

	if d.synthesizer == nil || outputPath == "" {
		return result, nil
	}

	audio, err := d.synthesizer.Synthesize(ctx, responseText)
	if err != nil {
		return result, err
	}
	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		return result, fmt.Errorf("%w: write %s: %v", speech.ErrSynthesisFailure, outputPath, err)
	}
	result.OutputAudio = outputPath
	return result, nil
}

// ProcessBatch runs the pipeline over many files with bounded concurrency.
// Each file gets its own session so turns parallelize; results keep input
// order. The first error cancels the remaining files.
func (d *Driver) ProcessBatch(ctx context.Context, audioFiles []string, outputDir string, concurrency int) ([]Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return nil, err
		}
	}

	results := make([]Result, len(audioFiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, audioPath := range audioFiles {
		g.Go(func() error {
			outputPath := ""
			if outputDir != "" {
				outputPath = filepath.Join(outputDir, fmt.Sprintf("response_%d.mp3", i+1))
			}
			res, err := d.ProcessAudioFile(gctx, uuid.NewString(), audioPath, outputPath)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
