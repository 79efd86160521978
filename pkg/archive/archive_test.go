package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-assistant/pkg/research"
	"github.com/mikeboe/research-assistant/pkg/splitter"
	"github.com/mikeboe/research-assistant/pkg/vectorstore"
)

type fakeEmbedder struct {
	err     error
	queries []string
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	return []float32{float32(len(text)), 1}, f.err
}

type fakeStore struct {
	docs        []vectorstore.Document
	deleted     []map[string]any
	lastFilter  map[string]any
	lastTopK    int
	searchReply []vectorstore.SearchResult
}

func (s *fakeStore) AddDocuments(_ context.Context, docs []vectorstore.Document) error {
	s.docs = append(s.docs, docs...)
	return nil
}

func (s *fakeStore) SimilaritySearch(_ context.Context, _ []float32, topK int, filter map[string]any) ([]vectorstore.SearchResult, error) {
	s.lastTopK = topK
	s.lastFilter = filter
	return s.searchReply, nil
}

func (s *fakeStore) DeleteByMetadata(_ context.Context, filter map[string]any) (int64, error) {
	s.deleted = append(s.deleted, filter)
	return 0, nil
}

func notesFixture() []research.Note {
	tasks := []research.ResearchTask{
		{ID: 1, Title: "Survey", Query: "gnn survey", Summary: "GNNs generalise CNNs."},
		{ID: 2, Title: "Benchmarks", Query: "gnn benchmark", Summary: strings.Repeat("OGB leaderboards compare models. ", 20)},
	}
	notes := make([]research.Note, len(tasks))
	for i, task := range tasks {
		notes[i] = research.Note{TaskID: task.ID, Content: research.FormatNote(task), Task: task}
	}
	return notes
}

func newTestArchive(emb Embedder, store Store) *Archive {
	return New(splitter.NewNoteSplitter(200, 20), emb, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIndexRunStoresTaggedChunks(t *testing.T) {
	store := &fakeStore{}
	a := newTestArchive(&fakeEmbedder{}, store)

	n, err := a.IndexRun(context.Background(), "run-1", "GNN", notesFixture())
	require.NoError(t, err)
	require.Equal(t, len(store.docs), n)
	require.Greater(t, n, 2, "the long note should be split into several chunks")

	assert.Equal(t, []map[string]any{{"run_id": "run-1"}}, store.deleted)
	seen := map[int]bool{}
	for _, d := range store.docs {
		assert.Equal(t, "run-1", d.Metadata["run_id"])
		assert.Equal(t, "GNN", d.Metadata["topic"])
		taskID := d.Metadata["task_id"].(int)
		seen[taskID] = true
		assert.Contains(t, d.Content, "### Task")
		assert.NotEmpty(t, d.Embedding)
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, seen)
}

func TestIndexRunEmbeddingFailure(t *testing.T) {
	store := &fakeStore{}
	boom := errors.New("quota exceeded")
	a := newTestArchive(&fakeEmbedder{err: boom}, store)

	_, err := a.IndexRun(context.Background(), "run-1", "GNN", notesFixture())
	require.ErrorIs(t, err, boom)
	assert.Empty(t, store.docs)
}

func TestIndexRunWithoutNotes(t *testing.T) {
	store := &fakeStore{}
	a := newTestArchive(&fakeEmbedder{}, store)

	n, err := a.IndexRun(context.Background(), "run-1", "GNN", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.docs)
}

func TestSearchMapsHits(t *testing.T) {
	store := &fakeStore{searchReply: []vectorstore.SearchResult{{
		Document: vectorstore.Document{
			Content:  "### Task 2: Benchmarks\nOGB leaderboards compare models.",
			Metadata: map[string]any{"run_id": "run-1", "task_id": float64(2), "title": "Benchmarks", "topic": "GNN"},
		},
		Score: 0.87,
	}}}
	emb := &fakeEmbedder{}
	a := newTestArchive(emb, store)

	hits, err := a.Search(context.Background(), "  benchmarks ", 0, Filter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, Hit{
		RunID: "run-1", TaskID: 2, Title: "Benchmarks", Topic: "GNN",
		Content: "### Task 2: Benchmarks\nOGB leaderboards compare models.", Score: 0.87,
	}, hits[0])
	assert.Equal(t, []string{"benchmarks"}, emb.queries)
	assert.Equal(t, 5, store.lastTopK)
	assert.Equal(t, map[string]any{"run_id": "run-1"}, store.lastFilter)
}

func TestSearchWithoutRunFilter(t *testing.T) {
	store := &fakeStore{}
	a := newTestArchive(&fakeEmbedder{}, store)

	hits, err := a.Search(context.Background(), "gnn", 3, Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Nil(t, store.lastFilter)
	assert.Equal(t, 3, store.lastTopK)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	a := newTestArchive(&fakeEmbedder{}, &fakeStore{})
	_, err := a.Search(context.Background(), "   ", 3, Filter{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestFilterMetadata(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   map[string]any
	}{
		{name: "empty", filter: Filter{}, want: nil},
		{name: "single task", filter: Filter{TaskIDs: []int{3}}, want: map[string]any{"task_id": 3}},
		{
			name:   "any of several tasks",
			filter: Filter{TaskIDs: []int{1, 2}},
			want:   map[string]any{"$or": []any{map[string]any{"task_id": 1}, map[string]any{"task_id": 2}}},
		},
		{
			name:   "run topic and exclusion",
			filter: Filter{RunID: "run-1", Topic: "GNN", ExcludeRunID: "run-0"},
			want: map[string]any{"$and": []any{
				map[string]any{"run_id": "run-1"},
				map[string]any{"topic": "GNN"},
				map[string]any{"$not": map[string]any{"run_id": "run-0"}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.metadata())
		})
	}
}

func TestSearchPassesTaskFilter(t *testing.T) {
	store := &fakeStore{}
	a := newTestArchive(&fakeEmbedder{}, store)

	_, err := a.Search(context.Background(), "gnn", 3, Filter{RunID: "run-1", TaskIDs: []int{2, 4}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"$and": []any{
		map[string]any{"run_id": "run-1"},
		map[string]any{"$or": []any{map[string]any{"task_id": 2}, map[string]any{"task_id": 4}}},
	}}, store.lastFilter)
}
