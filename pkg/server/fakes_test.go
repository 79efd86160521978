package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/research-assistant/pkg/archive"
	"github.com/mikeboe/research-assistant/pkg/database"
	"github.com/mikeboe/research-assistant/pkg/research"
)

const sampleReport = "## Abstract\n\n...\n\n## Literature Review\n\n...\n\n## Gap Analysis\n\n...\n\n## References\n\n..."

type stubGenerator struct {
	summaryErr error
}

func (g *stubGenerator) GenerateStructured(_ context.Context, _, _ string, _ map[string]any, out any) error {
	raw, _ := json.Marshal(map[string]any{"tasks": []research.ResearchTask{
		{ID: 1, Title: "Related work", Intent: "Map prior work", Query: "gnn survey"},
		{ID: 2, Title: "Methods", Intent: "Core methods", Query: "message passing"},
		{ID: 3, Title: "Benchmarks", Intent: "Compare results", Query: "ogb benchmark"},
	}})
	return json.Unmarshal(raw, out)
}

func (g *stubGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Report structure") {
		return sampleReport, nil
	}
	if g.summaryErr != nil {
		return "", g.summaryErr
	}
	return "Summary of the retrieved papers.", nil
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, query string, _ int) (string, error) {
	return "Title: Paper on " + query + "\nPDF Link: http://arxiv.org/pdf/2301.00001v1\n", nil
}

// memStore is an in-memory RunStore.
type memStore struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*database.Run
	order    []uuid.UUID
	statuses map[uuid.UUID][]string
	logs     map[uuid.UUID][]database.LogEntry
}

func newMemStore() *memStore {
	return &memStore{
		runs:     map[uuid.UUID]*database.Run{},
		statuses: map[uuid.UUID][]string{},
		logs:     map[uuid.UUID][]database.LogEntry{},
	}
}

func (m *memStore) CreateRun(_ context.Context, topic string) (*database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	run := &database.Run{ID: uuid.New(), Topic: topic, Status: database.StatusPending, Tasks: []research.ResearchTask{}, CreatedAt: now, UpdatedAt: now}
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	cp := *run
	return &cp, nil
}

func (m *memStore) UpdateRunStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id].Status = status
	m.statuses[id] = append(m.statuses[id], status)
	return nil
}

func (m *memStore) CompleteRun(_ context.Context, id uuid.UUID, tasks []research.ResearchTask, report string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	r.Status = string(research.PhaseDone)
	r.Tasks = slices.Clone(tasks)
	r.Report = report
	return nil
}

func (m *memStore) FailRun(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	r.Status = string(research.PhaseFailed)
	r.Error = reason
	return nil
}

func (m *memStore) GetRun(_ context.Context, id uuid.UUID) (*database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, database.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListRuns(_ context.Context, limit int) ([]database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.Run{}
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.runs[m.order[i]])
	}
	return out, nil
}

func (m *memStore) AppendLog(_ context.Context, runID uuid.UUID, at time.Time, level, message string, metadata json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.logs[runID]
	m.logs[runID] = append(entries, database.LogEntry{
		ID: int64(len(entries) + 1), Timestamp: at, Level: level, Message: message, Metadata: metadata,
	})
	return nil
}

func (m *memStore) ListLogs(_ context.Context, runID uuid.UUID) ([]database.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.logs[runID]), nil
}

func (m *memStore) run(id uuid.UUID) database.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.runs[id]
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed map[string][]research.Note
	hits    []archive.Hit
	queries []string
	filters []archive.Filter
}

func (f *fakeIndex) IndexRun(_ context.Context, runID, _ string, notes []research.Note) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[string][]research.Note{}
	}
	f.indexed[runID] = notes
	return len(notes), nil
}

func (f *fakeIndex) Search(_ context.Context, query string, _ int, filter archive.Filter) ([]archive.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(query) == "" {
		return nil, archive.ErrEmptyQuery
	}
	f.queries = append(f.queries, query)
	f.filters = append(f.filters, filter)
	return f.hits, nil
}

var errBackend = errors.New("model backend unreachable")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
