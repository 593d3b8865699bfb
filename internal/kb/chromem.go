package kb

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/ai"
	"github.com/opsarka/samradar/internal/errs"
)

// StoreConfig configures the embedded vector store.
type StoreConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string
	// Collection is the collection name.
	Collection string
	// Compress enables gzip compression of persisted data.
	Compress bool
}

func (c *StoreConfig) applyDefaults() {
	if c.Collection == "" {
		c.Collection = "capabilities"
	}
}

// Document is one capability document loaded into the store.
type Document struct {
	ID       string
	Title    string
	Source   string
	Location string
	Text     string
}

// Store implements Retriever on top of chromem-go, an embedded vector
// database, with embeddings produced by the configured embedder.
type Store struct {
	db     *chromem.DB
	col    *chromem.Collection
	cfg    StoreConfig
	embed  chromem.EmbeddingFunc
	logger *zap.Logger
}

// NewStore opens (or creates) the collection at cfg.Path.
func NewStore(cfg StoreConfig, embedder ai.Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	var db *chromem.DB
	var err error
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open knowledge base at %s: %w", cfg.Path, err)
		}
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	col, err := db.GetOrCreateCollection(cfg.Collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", cfg.Collection, err)
	}

	return &Store{db: db, col: col, cfg: cfg, embed: embedFunc, logger: logger}, nil
}

// Count reports the number of indexed documents.
func (s *Store) Count() int {
	return s.col.Count()
}

// Reset drops and recreates the collection. Destructive; callers confirm
// before invoking.
func (s *Store) Reset() error {
	if err := s.db.DeleteCollection(s.cfg.Collection); err != nil {
		return fmt.Errorf("delete collection %s: %w", s.cfg.Collection, err)
	}
	col, err := s.db.GetOrCreateCollection(s.cfg.Collection, nil, s.embed)
	if err != nil {
		return fmt.Errorf("recreate collection %s: %w", s.cfg.Collection, err)
	}
	s.col = col
	return nil
}

// Add indexes the documents, embedding their text.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	converted := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		converted = append(converted, chromem.Document{
			ID:      d.ID,
			Content: d.Text,
			Metadata: map[string]string{
				"title":    d.Title,
				"source":   d.Source,
				"location": d.Location,
			},
		})
	}

	if err := s.col.AddDocuments(ctx, converted, runtime.NumCPU()); err != nil {
		return errs.Transient("index knowledge base documents", err)
	}

	s.logger.Debug("indexed knowledge base documents", zap.Int("count", len(docs)))
	return nil
}

// Retrieve answers a free-text query with up to limit normalized snippets.
func (s *Store) Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error) {
	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	results, err := s.col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, errs.Transient("query knowledge base", err)
	}

	snippets := make([]Snippet, 0, len(results))
	for i, r := range results {
		score := float64(r.Similarity)
		snippets = append(snippets, Snippet{
			Index:    i,
			Title:    r.Metadata["title"],
			Snippet:  Truncate(r.Content),
			Source:   r.Metadata["source"],
			Metadata: r.Metadata,
			Location: r.Metadata["location"],
			Score:    &score,
		})
	}

	return snippets, nil
}
