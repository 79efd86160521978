// Package archive keeps the notes of finished research runs searchable.
// Notes are chunked, embedded and stored in a vector store tagged with the
// run and task they came from.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/research-assistant/pkg/research"
	"github.com/mikeboe/research-assistant/pkg/splitter"
	"github.com/mikeboe/research-assistant/pkg/vectorstore"
)

var ErrEmptyQuery = errors.New("query must not be empty")

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Store interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]any) ([]vectorstore.SearchResult, error)
	DeleteByMetadata(ctx context.Context, filter map[string]any) (int64, error)
}

// Hit is one archived chunk matching a search.
type Hit struct {
	RunID   string  `json:"run_id"`
	TaskID  int     `json:"task_id"`
	Title   string  `json:"title"`
	Topic   string  `json:"topic"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type Archive struct {
	splitter *splitter.NoteSplitter
	embedder Embedder
	store    Store
	logger   *slog.Logger
}

func New(sp *splitter.NoteSplitter, embedder Embedder, store Store, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{splitter: sp, embedder: embedder, store: store, logger: logger}
}

// IndexRun replaces the archived chunks of runID with the given notes and
// returns the number of chunks stored.
func (a *Archive) IndexRun(ctx context.Context, runID, topic string, notes []research.Note) (int, error) {
	var (
		texts []string
		metas []map[string]any
	)
	for _, n := range notes {
		heading := fmt.Sprintf("### Task %d: %s", n.TaskID, n.Task.Title)
		chunks, err := a.splitter.SplitNote(heading, n.Content)
		if err != nil {
			return 0, fmt.Errorf("task %d: %w", n.TaskID, err)
		}
		for i, c := range chunks {
			texts = append(texts, c)
			metas = append(metas, map[string]any{
				"run_id":  runID,
				"task_id": n.TaskID,
				"title":   n.Task.Title,
				"topic":   topic,
				"chunk":   i,
			})
		}
	}

	removed, err := a.store.DeleteByMetadata(ctx, map[string]any{"run_id": runID})
	if err != nil {
		return 0, fmt.Errorf("failed to clear previous chunks: %w", err)
	}
	if removed > 0 {
		a.logger.Info("Replaced archived chunks", "run_id", runID, "removed", removed)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := a.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed notes: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	docs := make([]vectorstore.Document, len(texts))
	for i := range texts {
		docs[i] = vectorstore.Document{Content: texts[i], Metadata: metas[i], Embedding: vectors[i]}
	}
	if err := a.store.AddDocuments(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to store notes: %w", err)
	}

	a.logger.Info("Archived run notes", "run_id", runID, "notes", len(notes), "chunks", len(docs))
	return len(docs), nil
}

// Filter narrows a note search. Zero fields match everything; set fields
// must all hold. Any of TaskIDs may match.
type Filter struct {
	RunID        string `json:"run_id,omitempty"`
	Topic        string `json:"topic,omitempty"`
	TaskIDs      []int  `json:"task_ids,omitempty"`
	ExcludeRunID string `json:"exclude_run_id,omitempty"`
}

// metadata translates f into the vector store filter grammar.
func (f Filter) metadata() map[string]any {
	var conds []any
	if f.RunID != "" {
		conds = append(conds, map[string]any{"run_id": f.RunID})
	}
	if f.Topic != "" {
		conds = append(conds, map[string]any{"topic": f.Topic})
	}
	switch len(f.TaskIDs) {
	case 0:
	case 1:
		conds = append(conds, map[string]any{"task_id": f.TaskIDs[0]})
	default:
		anyOf := make([]any, len(f.TaskIDs))
		for i, id := range f.TaskIDs {
			anyOf[i] = map[string]any{"task_id": id}
		}
		conds = append(conds, map[string]any{"$or": anyOf})
	}
	if f.ExcludeRunID != "" {
		conds = append(conds, map[string]any{"$not": map[string]any{"run_id": f.ExcludeRunID}})
	}

	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0].(map[string]any)
	default:
		return map[string]any{"$and": conds}
	}
}

// Search returns the k chunks closest to query that match filter.
func (a *Archive) Search(ctx context.Context, query string, k int, filter Filter) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = 5
	}

	vec, err := a.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := a.store.SimilaritySearch(ctx, vec, k, filter.metadata())
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, toHit(r))
	}
	return hits, nil
}

func toHit(r vectorstore.SearchResult) Hit {
	m := r.Document.Metadata
	h := Hit{Content: r.Document.Content, Score: r.Score}
	h.RunID, _ = m["run_id"].(string)
	h.Title, _ = m["title"].(string)
	h.Topic, _ = m["topic"].(string)
	switch id := m["task_id"].(type) {
	case float64:
		h.TaskID = int(id)
	case int:
		h.TaskID = id
	}
	return h
}
