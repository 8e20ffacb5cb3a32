package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	chatservice "github.com/minhokim/voicerag/backend/internal/service/chat"
	"github.com/minhokim/voicerag/backend/internal/service/rag"
)

type stubModel struct {
	reply *schema.Message
	err   error
}

func (s *stubModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return s.reply, s.err
}

func (s *stubModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (s *stubModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return s, nil
}

// seqModel replays canned replies in call order.
type seqModel struct {
	replies []*schema.Message
}

func (s *seqModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *seqModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (s *seqModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return s, nil
}

type emptyRetriever struct{}

func (emptyRetriever) Retrieve(context.Context, string, ...retriever.Option) ([]*schema.Document, error) {
	return nil, nil
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, string, ...retriever.Option) ([]*schema.Document, error) {
	return nil, errors.New("index offline")
}

func setupRouter(t *testing.T, m *stubModel) (*chi.Mux, *chatservice.Service) {
	t.Helper()

	sessions := chatservice.NewService()
	var handler *Handler
	if m == nil {
		handler = New(nil, sessions)
	} else {
		invoker := rag.NewInvoker(rag.NewRetrieveTool(emptyRetriever{}, 2))
		orch, err := rag.NewOrchestrator(m, invoker, sessions, nil)
		if err != nil {
			t.Fatalf("NewOrchestrator err: %v", err)
		}
		handler = New(orch, sessions)
	}

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, sessions
}

func postChat(r http.Handler, body map[string]string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestChatReturnsAnswer(t *testing.T) {
	r, _ := setupRouter(t, &stubModel{reply: schema.AssistantMessage("hello", nil)})

	resp := postChat(r, map[string]string{"sessionId": "s1", "message": "hi"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["answer"] != "hello" {
		t.Fatalf("unexpected answer %q", body["answer"])
	}
}

func TestChatMissingFields(t *testing.T) {
	r, _ := setupRouter(t, &stubModel{reply: schema.AssistantMessage("hello", nil)})

	resp := postChat(r, map[string]string{"sessionId": "s1"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestChatUnavailableWithoutModel(t *testing.T) {
	r, _ := setupRouter(t, nil)

	resp := postChat(r, map[string]string{"sessionId": "s1", "message": "hi"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestChatCompletionFailureMapsToBadGateway(t *testing.T) {
	r, sessions := setupRouter(t, &stubModel{err: errors.New("quota exceeded")})

	resp := postChat(r, map[string]string{"sessionId": "s1", "message": "hi"})
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}

	var body map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body["code"] != "completion_failure" {
		t.Fatalf("unexpected failure code %q", body["code"])
	}

	history, err := sessions.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected only the user message after failure, got %d", len(history))
	}
}

func TestChatAnswersThroughToolFailure(t *testing.T) {
	sessions := chatservice.NewService()
	m := &seqModel{replies: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{{
			ID:   "call-1",
			Type: "function",
			Function: schema.FunctionCall{
				Name:      rag.RetrieveToolName,
				Arguments: `{"query":"anything"}`,
			},
		}}),
		schema.AssistantMessage("I don't have supporting context for that.", nil),
	}}
	invoker := rag.NewInvoker(rag.NewRetrieveTool(failingRetriever{}, 2))
	orch, err := rag.NewOrchestrator(m, invoker, sessions, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator err: %v", err)
	}

	r := chi.NewRouter()
	New(orch, sessions).RegisterRoutes(r)

	// The failed retrieval is folded into the turn; the caller still gets an
	// answer, not an error status.
	resp := postChat(r, map[string]string{"sessionId": "s1", "message": "hi"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["answer"] == "" {
		t.Fatal("expected a non-empty answer after tool failure")
	}
}

func TestChatSessionBusyMapsToConflict(t *testing.T) {
	r, sessions := setupRouter(t, &stubModel{reply: schema.AssistantMessage("hello", nil)})

	if err := sessions.BeginTurn(context.Background(), "s1"); err != nil {
		t.Fatalf("BeginTurn err: %v", err)
	}

	resp := postChat(r, map[string]string{"sessionId": "s1", "message": "hi"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestHistoryAndClear(t *testing.T) {
	r, _ := setupRouter(t, &stubModel{reply: schema.AssistantMessage("hello", nil)})

	if resp := postChat(r, map[string]string{"sessionId": "s1", "message": "hi"}); resp.Code != http.StatusOK {
		t.Fatalf("chat failed: %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/chat/s1/history", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(body.Messages) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(body.Messages))
	}
	if body.Messages[0].Role != "user" || body.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %+v", body.Messages)
	}

	req = httptest.NewRequest(http.MethodDelete, "/chat/s1", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on clear, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/chat/s1/history", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode history after clear: %v", err)
	}
	if len(body.Messages) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(body.Messages))
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	r, _ := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/missing/history", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
