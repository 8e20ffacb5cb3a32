package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/minhokim/voicerag/backend/internal/service/pipeline"
	"github.com/minhokim/voicerag/backend/internal/service/speech"
)

// Handler drives voice turns over a websocket: audio chunks in, transcript
// and answer events out, synthesized audio back when synthesis is enabled.
type Handler struct {
	transcriber speech.Transcriber
	responder   pipeline.Responder
	synthesizer speech.Synthesizer
	language    string
	upgrader    websocket.Upgrader
}

// New creates the voice websocket handler. synthesizer may be nil; the
// answer is then delivered as text only.
func New(transcriber speech.Transcriber, responder pipeline.Responder, synthesizer speech.Synthesizer, language string) *Handler {
	return &Handler{
		transcriber: transcriber,
		responder:   responder,
		synthesizer: synthesizer,
		language:    language,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes wires the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type audioChunk struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

type outboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text,omitempty"`
	Audio     []byte `json:"audio,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[voice] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[voice] new connection for session=%s", sessionID)

	var buffer bytes.Buffer
	format := "wav"
	language := h.language

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[voice] session=%s read error: %v", sessionID, err)
			}
			return
		}

		if inbound.Type != "audio" {
			h.send(conn, outboundMessage{Type: "error", SessionID: sessionID, Error: "unsupported message type"})
			continue
		}

		var chunk audioChunk
		if err := json.Unmarshal(inbound.Data, &chunk); err != nil {
			h.send(conn, outboundMessage{Type: "error", SessionID: sessionID, Error: "invalid audio payload"})
			continue
		}

		buffer.Write(chunk.AudioData)
		if chunk.Format != "" {
			format = chunk.Format
		}
		if chunk.Language != "" {
			language = chunk.Language
		}
		if !chunk.IsFinal {
			continue
		}

		h.processTurn(r.Context(), conn, sessionID, &buffer, format, language)
		buffer.Reset()
	}
}

func (h *Handler) processTurn(ctx context.Context, conn *websocket.Conn, sessionID string, audio *bytes.Buffer, format, language string) {
	transcript, err := h.transcriber.Transcribe(ctx, bytes.NewReader(audio.Bytes()), "turn."+format, language)
	if err != nil {
		h.send(conn, outboundMessage{Type: "error", SessionID: sessionID, Error: err.Error()})
		return
	}
	h.send(conn, outboundMessage{Type: "transcript", SessionID: sessionID, Text: transcript})

	answer, err := h.responder.Chat(ctx, sessionID, transcript)
	if err != nil {
		h.send(conn, outboundMessage{Type: "error", SessionID: sessionID, Error: err.Error()})
		return
	}
	h.send(conn, outboundMessage{Type: "answer", SessionID: sessionID, Text: answer})

	if h.synthesizer == nil {
		return
	}
	audioOut, err := h.synthesizer.Synthesize(ctx, answer)
	if err != nil {
		h.send(conn, outboundMessage{Type: "error", SessionID: sessionID, Error: err.Error()})
		return
	}
	h.send(conn, outboundMessage{Type: "audio", SessionID: sessionID, Audio: audioOut})
}

func (h *Handler) send(conn *websocket.Conn, msg outboundMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[voice] write failed: %v", err)
	}
}
