package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// ErrPersistenceFailure means ingestion succeeded but the durable write did
// not. A retry only needs Persist, not a full re-ingest.
var ErrPersistenceFailure = errors.New("knowledge persistence failed")

// Persister flushes previously ingested documents to durable storage.
type Persister interface {
	Persist(ctx context.Context) error
}

// Service handles administrative knowledge updates outside the turn loop,
// plus the direct retrieval/answer helpers that bypass the orchestrator.
type Service struct {
	indexer   indexer.Indexer
	retriever retriever.Retriever
	persister Persister
	chatModel model.BaseChatModel
}

// NewService wires the knowledge service. chatModel may be nil, in which case
// GenerateAnswer is unavailable.
func NewService(idx indexer.Indexer, ret retriever.Retriever, persister Persister, chatModel model.BaseChatModel) *Service {
	return &Service{indexer: idx, retriever: ret, persister: persister, chatModel: chatModel}
}

// AddDocuments wraps each content string as a document with empty metadata,
// ingests the batch, then persists the index. Empty input is a no-op success.
func (s *Service) AddDocuments(ctx context.Context, contents []string) error {
	if len(contents) == 0 {
		return nil
	}

	docs := make([]*schema.Document, 0, len(contents))
	for _, content := range contents {
		docs = append(docs, &schema.Document{Content: content, MetaData: map[string]any{}})
	}

	if _, err := s.indexer.Store(ctx, docs); err != nil {
		return fmt.Errorf("ingest documents: %w", err)
	}

	if err := s.persister.Persist(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	log.Printf("[knowledge] added %d document(s)", len(docs))
	return nil
}

// Persist retries the durable write after a partial AddDocuments failure.
func (s *Service) Persist(ctx context.Context) error {
	if err := s.persister.Persist(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return nil
}

// RetrieveRelevant returns the contents of the topK documents most relevant
// to the query.
func (s *Service) RetrieveRelevant(ctx context.Context, query string, topK int) ([]string, error) {
	docs, err := s.retriever.Retrieve(ctx, query, retriever.WithTopK(topK))
	if err != nil {
		return nil, err
	}
	contents := make([]string, 0, len(docs))
	for _, doc := range docs {
		contents = append(contents, doc.Content)
	}
	return contents, nil
}

// GenerateAnswer runs a single-shot completion against caller-supplied
// context documents, outside any session.
func (s *Service) GenerateAnswer(ctx context.Context, query string, contextDocs []string) (string, error) {
	if s.chatModel == nil {
		return "", errors.New("chat model unavailable")
	}

	system := "You are a helpful assistant. Answer using the context below:\n\n" +
		strings.Join(contextDocs, "\n\n")

	reply, err := s.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(query),
	})
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}
