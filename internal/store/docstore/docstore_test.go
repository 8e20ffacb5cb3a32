package docstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/minhokim/voicerag/backend/internal/store/docstore"
)

func openStore(t *testing.T) *docstore.Store {
	t.Helper()

	store := docstore.New(filepath.Join(t.TempDir(), "documents.db"), 2)
	if err := store.Open(context.Background()); err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreAndRetrieve(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	docs := []*schema.Document{
		{Content: "A refund is available within 30 days of purchase.", MetaData: map[string]any{"src": "policy.md"}},
		{Content: "Shipping takes five business days.", MetaData: map[string]any{"src": "shipping.md"}},
		{Content: "Our refund desk is open on weekdays.", MetaData: map[string]any{"src": "hours.md"}},
	}
	ids, err := store.Store(ctx, docs)
	if err != nil {
		t.Fatalf("Store err: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}

	results, err := store.Retrieve(ctx, "refund policy")
	if err != nil {
		t.Fatalf("Retrieve err: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results with default k, got %d", len(results))
	}
	for _, doc := range results {
		if doc.MetaData["src"] == "shipping.md" {
			t.Fatalf("irrelevant document ranked into top results: %v", doc.MetaData)
		}
	}
}

func TestRetrieveIsDeterministic(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Store(ctx, []*schema.Document{
		{Content: "alpha beta", MetaData: map[string]any{}},
		{Content: "alpha beta", MetaData: map[string]any{}},
		{Content: "alpha", MetaData: map[string]any{}},
	}); err != nil {
		t.Fatalf("Store err: %v", err)
	}

	first, err := store.Retrieve(ctx, "alpha", retriever.WithTopK(3))
	if err != nil {
		t.Fatalf("Retrieve err: %v", err)
	}
	second, err := store.Retrieve(ctx, "alpha", retriever.WithTopK(3))
	if err != nil {
		t.Fatalf("Retrieve err: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("result count changed between identical queries: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("ordering changed between identical queries at index %d", i)
		}
	}
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "documents.db")
	ctx := context.Background()

	store := docstore.New(path, 2)
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if _, err := store.Store(ctx, []*schema.Document{
		{Content: "persisted knowledge", MetaData: map[string]any{"src": "a"}},
	}); err != nil {
		t.Fatalf("Store err: %v", err)
	}
	if err := store.Persist(ctx); err != nil {
		t.Fatalf("Persist err: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}

	reloaded := docstore.New(path, 2)
	if err := reloaded.Open(ctx); err != nil {
		t.Fatalf("reopen err: %v", err)
	}
	defer reloaded.Close()

	if reloaded.Len() != 1 {
		t.Fatalf("expected 1 document after reload, got %d", reloaded.Len())
	}
	results, err := reloaded.Retrieve(ctx, "persisted knowledge")
	if err != nil {
		t.Fatalf("Retrieve err: %v", err)
	}
	if len(results) != 1 || results[0].MetaData["src"] != "a" {
		t.Fatalf("reloaded document lost content or metadata: %+v", results)
	}
}

func TestPersistWithoutOpenFails(t *testing.T) {
	store := docstore.New(filepath.Join(t.TempDir(), "documents.db"), 2)
	ctx := context.Background()

	if _, err := store.Store(ctx, []*schema.Document{{Content: "x", MetaData: map[string]any{}}}); err != nil {
		t.Fatalf("Store err: %v", err)
	}
	if err := store.Persist(ctx); err == nil {
		t.Fatal("expected Persist to fail before Open")
	}

	// Ingest survived; a later Open and Persist completes the write.
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open err: %v", err)
	}
	defer store.Close()
	if err := store.Persist(ctx); err != nil {
		t.Fatalf("Persist after Open err: %v", err)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	store := openStore(t)

	results, err := store.Retrieve(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Retrieve err: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for empty query, got %d", len(results))
	}
}
