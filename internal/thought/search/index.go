// Package search provides full-text lookup over emitted thoughts using an
// in-memory Bleve index. The index is bounded and forgets the oldest
// thoughts first.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/thought"
)

var ErrEmptyQuery = errors.New("empty search query")

// Config holds configuration for the thought index
type Config struct {
	MaxDocs   int `yaml:"max_docs"`
	Fuzziness int `yaml:"fuzziness"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxDocs:   1000,
		Fuzziness: 1,
	}
}

// Query narrows a search. Text is required.
type Query struct {
	Text    string
	Type    thought.Type
	Emotion string
	Limit   int
}

// Hit is one matching thought.
type Hit struct {
	Thought thought.Thought `json:"thought"`
	Score   float64         `json:"score"`
}

// Index is a thought.Recorder that makes thoughts searchable.
type Index struct {
	index  bleve.Index
	config Config
	logger *zap.Logger

	mu    sync.RWMutex
	docs  map[string]thought.Thought
	order []string
}

// New creates an empty in-memory index.
func New(cfg Config, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxDocs <= 0 {
		cfg.MaxDocs = def.MaxDocs
	}
	if cfg.Fuzziness < 0 || cfg.Fuzziness > 2 {
		cfg.Fuzziness = def.Fuzziness
	}

	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &Index{
		index:  idx,
		config: cfg,
		logger: logger.Named("search"),
		docs:   make(map[string]thought.Thought),
	}, nil
}

func buildMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = false
	doc.AddFieldMappingsAt("content", content)

	for _, field := range []string{"type", "emotion"} {
		kw := bleve.NewTextFieldMapping()
		kw.Analyzer = keyword.Name
		kw.Store = false
		kw.IncludeInAll = false
		doc.AddFieldMappingsAt(field, kw)
	}

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// AddThought indexes t. Indexing failures are logged and dropped.
func (i *Index) AddThought(_ context.Context, t thought.Thought) {
	if err := i.add(t); err != nil {
		i.logger.Warn("Failed to index thought", zap.String("thought_id", t.ID), zap.Error(err))
	}
}

func (i *Index) add(t thought.Thought) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	err := i.index.Index(t.ID, map[string]interface{}{
		"content": t.Content,
		"type":    string(t.Type),
		"emotion": t.Emotion,
	})
	if err != nil {
		return err
	}
	if _, ok := i.docs[t.ID]; !ok {
		i.order = append(i.order, t.ID)
	}
	i.docs[t.ID] = t

	for len(i.order) > i.config.MaxDocs {
		oldest := i.order[0]
		i.order = i.order[1:]
		delete(i.docs, oldest)
		if err := i.index.Delete(oldest); err != nil {
			return fmt.Errorf("evict %s: %w", oldest, err)
		}
	}
	return nil
}

// Rebuild indexes ts in order, e.g. after the journal is restored.
func (i *Index) Rebuild(ts []thought.Thought) {
	for _, t := range ts {
		if err := i.add(t); err != nil {
			i.logger.Warn("Failed to reindex thought", zap.String("thought_id", t.ID), zap.Error(err))
		}
	}
	i.logger.Info("Thought index rebuilt", zap.Int("docs", i.Len()))
}

// Search returns matching thoughts, best first.
func (i *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	match := query.NewMatchQuery(text)
	match.SetField("content")
	match.SetFuzziness(i.config.Fuzziness)

	conjuncts := []query.Query{match}
	if q.Type != "" {
		tq := query.NewTermQuery(string(q.Type))
		tq.SetField("type")
		conjuncts = append(conjuncts, tq)
	}
	if q.Emotion != "" {
		eq := query.NewTermQuery(q.Emotion)
		eq.SetField("emotion")
		conjuncts = append(conjuncts, eq)
	}
	var final query.Query = match
	if len(conjuncts) > 1 {
		final = query.NewConjunctionQuery(conjuncts)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	res, err := i.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(final, limit, 0, false))
	if err != nil {
		return nil, fmt.Errorf("search thoughts: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		t, ok := i.docs[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Thought: t, Score: h.Score})
	}
	return hits, nil
}

// Len is the number of indexed thoughts.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.order)
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}
