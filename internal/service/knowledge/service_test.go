package knowledge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	knowledge "github.com/minhokim/voicerag/backend/internal/service/knowledge"
)

type fakeIndex struct {
	stored     []*schema.Document
	storeErr   error
	persistErr error
	persists   int
}

func (f *fakeIndex) Store(_ context.Context, docs []*schema.Document, _ ...indexer.Option) ([]string, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	f.stored = append(f.stored, docs...)
	ids := make([]string, len(docs))
	return ids, nil
}

func (f *fakeIndex) Persist(context.Context) error {
	f.persists++
	return f.persistErr
}

func (f *fakeIndex) Retrieve(_ context.Context, _ string, _ ...retriever.Option) ([]*schema.Document, error) {
	return f.stored, nil
}

func TestAddDocumentsEmptyIsNoOp(t *testing.T) {
	idx := &fakeIndex{}
	svc := knowledge.NewService(idx, idx, idx, nil)

	if err := svc.AddDocuments(context.Background(), nil); err != nil {
		t.Fatalf("empty AddDocuments err: %v", err)
	}
	if len(idx.stored) != 0 || idx.persists != 0 {
		t.Fatal("empty input must not touch the index")
	}
}

func TestAddDocumentsWrapsWithEmptyMetadata(t *testing.T) {
	idx := &fakeIndex{}
	svc := knowledge.NewService(idx, idx, idx, nil)

	if err := svc.AddDocuments(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("AddDocuments err: %v", err)
	}
	if len(idx.stored) != 2 {
		t.Fatalf("expected 2 stored documents, got %d", len(idx.stored))
	}
	for _, doc := range idx.stored {
		if doc.MetaData == nil || len(doc.MetaData) != 0 {
			t.Fatalf("expected empty metadata, got %v", doc.MetaData)
		}
	}
	if idx.persists != 1 {
		t.Fatalf("expected 1 persist, got %d", idx.persists)
	}
}

func TestAddDocumentsPersistenceFailureIsDistinct(t *testing.T) {
	idx := &fakeIndex{persistErr: errors.New("disk full")}
	svc := knowledge.NewService(idx, idx, idx, nil)

	err := svc.AddDocuments(context.Background(), []string{"a"})
	if !errors.Is(err, knowledge.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	// Ingestion already happened; a retry persists without re-ingesting.
	if len(idx.stored) != 1 {
		t.Fatalf("expected document ingested despite persistence failure, got %d", len(idx.stored))
	}

	idx.persistErr = nil
	if err := svc.Persist(context.Background()); err != nil {
		t.Fatalf("Persist retry err: %v", err)
	}
	if len(idx.stored) != 1 {
		t.Fatalf("retry re-ingested: %d documents", len(idx.stored))
	}
}

func TestAddDocumentsIngestFailureIsNotPersistence(t *testing.T) {
	idx := &fakeIndex{storeErr: errors.New("index unavailable")}
	svc := knowledge.NewService(idx, idx, idx, nil)

	err := svc.AddDocuments(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, knowledge.ErrPersistenceFailure) {
		t.Fatalf("ingest failure misreported as persistence failure: %v", err)
	}
}

func TestRetrieveRelevantReturnsContents(t *testing.T) {
	idx := &fakeIndex{stored: []*schema.Document{
		{Content: "first"},
		{Content: "second"},
	}}
	svc := knowledge.NewService(idx, idx, idx, nil)

	contents, err := svc.RetrieveRelevant(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("RetrieveRelevant err: %v", err)
	}
	if len(contents) != 2 || contents[0] != "first" || contents[1] != "second" {
		t.Fatalf("unexpected contents: %v", contents)
	}
}

func TestGenerateAnswerWithoutModel(t *testing.T) {
	idx := &fakeIndex{}
	svc := knowledge.NewService(idx, idx, idx, nil)

	if _, err := svc.GenerateAnswer(context.Background(), "q", nil); err == nil {
		t.Fatal("expected error without a chat model")
	}
}
