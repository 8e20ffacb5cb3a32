package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ClientConfig holds the connection settings shared by the HTTP speech
// providers. The endpoints follow the OpenAI-compatible audio API shape.
type ClientConfig struct {
	BaseURL  string
	APIKey   string
	ASRModel string
	TTSModel string
	TTSVoice string
	Timeout  time.Duration
}

func (c ClientConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// HTTPTranscriber implements Transcriber against a hosted transcription
// endpoint.
type HTTPTranscriber struct {
	cfg    ClientConfig
	client *http.Client
}

// NewHTTPTranscriber creates a transcription client.
func NewHTTPTranscriber(cfg ClientConfig) *HTTPTranscriber {
	return &HTTPTranscriber{cfg: cfg, client: cfg.httpClient()}
}

// Transcribe uploads the audio as a multipart form and returns the
// recognized text.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailure, err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailure, err)
	}
	_ = writer.WriteField("model", t.cfg.ASRModel)
	if language != "" {
		_ = writer.WriteField("language", language)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrTranscriptionFailure, resp.StatusCode, detail)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTranscriptionFailure, err)
	}
	return payload.Text, nil
}

// HTTPSynthesizer implements Synthesizer against a hosted speech endpoint.
type HTTPSynthesizer struct {
	cfg    ClientConfig
	client *http.Client
}

// NewHTTPSynthesizer creates a synthesis client.
func NewHTTPSynthesizer(cfg ClientConfig) *HTTPSynthesizer {
	return &HTTPSynthesizer{cfg: cfg, client: cfg.httpClient()}
}

// Synthesize converts text into audio bytes.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload := map[string]any{
		"model": s.cfg.TTSModel,
		"voice": s.cfg.TTSVoice,
		"input": text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSynthesisFailure, resp.StatusCode, detail)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", ErrSynthesisFailure, err)
	}
	return audio, nil
}
