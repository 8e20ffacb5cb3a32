package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is a document index with an in-memory retrieval snapshot and a
// sqlite durable copy. Ingestion (Store) and persistence (Persist) are
// separate steps so callers can tell an ingest failure from a persistence
// failure and retry only the missing half.
//
// It implements both the eino indexer and retriever contracts. Ranking is
// deterministic per snapshot: term-frequency scoring with insertion order as
// the tiebreak.
type Store struct {
	path     string
	defaultK int

	mu      sync.RWMutex
	db      *sql.DB
	docs    []*schema.Document
	pending []*schema.Document
}

// New creates a store backed by the sqlite file at path. defaultK is the
// result count used when a retrieve call carries no TopK option.
func New(path string, defaultK int) *Store {
	if defaultK < 1 {
		defaultK = 2
	}
	return &Store{path: path, defaultK: defaultK}
}

// Open initializes the sqlite database and loads the persisted documents
// into the in-memory snapshot.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}

	schemaSQL := `
CREATE TABLE IF NOT EXISTS documents (
  doc_id TEXT PRIMARY KEY,
  content TEXT NOT NULL,
  metadata TEXT NOT NULL DEFAULT '{}',
  seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_seq ON documents(seq);
`
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return err
	}

	rows, err := db.QueryContext(ctx, `SELECT doc_id, content, metadata FROM documents ORDER BY seq`)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer rows.Close()

	var docs []*schema.Document
	for rows.Next() {
		var id, content, metaRaw string
		if err := rows.Scan(&id, &content, &metaRaw); err != nil {
			_ = db.Close()
			return err
		}
		meta := map[string]any{}
		if metaRaw != "" {
			if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
				_ = db.Close()
				return fmt.Errorf("decode metadata for %s: %w", id, err)
			}
		}
		docs = append(docs, &schema.Document{ID: id, Content: content, MetaData: meta})
	}
	if err := rows.Err(); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	// Documents ingested before Open stay queued behind the persisted ones.
	s.docs = append(docs, s.docs...)
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Store adds documents to the in-memory snapshot and queues them for
// persistence. It implements indexer.Indexer.
func (s *Store) Store(_ context.Context, docs []*schema.Document, _ ...indexer.Option) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		if doc.MetaData == nil {
			doc.MetaData = map[string]any{}
		}
		s.docs = append(s.docs, doc)
		s.pending = append(s.pending, doc)
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// Persist writes all queued documents to sqlite in one transaction. On
// success the queue is cleared; on failure the queue is kept so a retry
// persists without re-ingesting.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}
	if s.db == nil {
		return fmt.Errorf("docstore not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	base := len(s.docs) - len(s.pending)
	for i, doc := range s.pending {
		metaRaw, err := json.Marshal(doc.MetaData)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode metadata for %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents(doc_id, content, metadata, seq) VALUES(?, ?, ?, ?)
			 ON CONFLICT(doc_id) DO UPDATE SET content=excluded.content, metadata=excluded.metadata`,
			doc.ID, doc.Content, string(metaRaw), base+i,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.pending = nil
	return nil
}

// Retrieve ranks documents against the query. It implements
// retriever.Retriever; a TopK option overrides the deployment default.
func (s *Store) Retrieve(_ context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	options := retriever.GetCommonOptions(&retriever.Options{}, opts...)
	k := s.defaultK
	if options.TopK != nil && *options.TopK > 0 {
		k = *options.TopK
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   *schema.Document
		score float64
		seq   int
	}

	var matches []scored
	for i, doc := range s.docs {
		score := scoreDoc(terms, doc.Content)
		if score > 0 {
			matches = append(matches, scored{doc: doc, score: score, seq: i})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].score != matches[b].score {
			return matches[a].score > matches[b].score
		}
		return matches[a].seq < matches[b].seq
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	out := make([]*schema.Document, len(matches))
	for i, m := range matches {
		out[i] = m.doc
	}
	return out, nil
}

// Len reports how many documents are in the snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func scoreDoc(terms []string, content string) float64 {
	docTerms := tokenize(content)
	if len(docTerms) == 0 {
		return 0
	}
	freq := make(map[string]int, len(docTerms))
	for _, t := range docTerms {
		freq[t]++
	}
	score := 0.0
	for _, t := range terms {
		score += float64(freq[t])
	}
	return score / float64(len(docTerms))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
