package speech

import (
	"context"
	"errors"
	"io"
)

// Boundary failures surfaced unchanged to the pipeline driver.
var (
	ErrTranscriptionFailure = errors.New("transcription failed")
	ErrSynthesisFailure     = errors.New("synthesis failed")
)

// Transcriber converts spoken audio into text. language is a hint and may be
// empty.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error)
}

// Synthesizer converts text into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
