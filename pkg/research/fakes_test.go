package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var errGeneration = errors.New("model backend unreachable")

// fakeGenerator answers planning with a fixed task list and derives text
// answers from the prompt.
type fakeGenerator struct {
	mu            sync.Mutex
	tasks         []ResearchTask
	structuredErr error
	summaryErr    error
	reportErr     error
	blankReport   bool

	structuredCalls   int
	summaryCalls      int
	reportCalls       int
	summariesAtReport int
	prompts           []string
}

func (f *fakeGenerator) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error {
	f.mu.Lock()
	f.structuredCalls++
	f.mu.Unlock()
	if f.structuredErr != nil {
		return f.structuredErr
	}
	raw, err := json.Marshal(map[string]any{"tasks": f.tasks})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)

	if strings.Contains(prompt, "Report structure") {
		f.reportCalls++
		f.summariesAtReport = f.summaryCalls
		if f.reportErr != nil {
			return "", f.reportErr
		}
		if f.blankReport {
			return " \n", nil
		}
		var b strings.Builder
		for _, s := range ReportSections {
			fmt.Fprintf(&b, "## %s\n\n...\n\n", s)
		}
		return b.String(), nil
	}

	f.summaryCalls++
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	if strings.Contains(prompt, NoPapersFound) {
		return "No relevant papers were found for this task.", nil
	}
	return "Summary of the retrieved papers.", nil
}

// fakeSearcher returns canned results and records queries.
type fakeSearcher struct {
	mu      sync.Mutex
	result  string
	err     error
	queries []string
}

func (s *fakeSearcher) Search(ctx context.Context, query string, maxResults int) (string, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

func gnnTasks() []ResearchTask {
	return []ResearchTask{
		{ID: 1, Title: "Related work on GNNs in drug discovery", Intent: "Map prior work", Query: "graph neural networks drug discovery survey"},
		{ID: 2, Title: "Message passing methodology", Intent: "Understand core methods", Query: "message passing neural network molecular property"},
		{ID: 3, Title: "Benchmarks", Intent: "Compare evaluation results", Query: "MoleculeNet benchmark graph neural network"},
		{ID: 4, Title: "Generative models", Intent: "Explore molecule generation", Query: "graph generative model molecule design"},
	}
}

const arxivResult = `Title: A Survey on GNNs for Drug Discovery
Authors: A. Author
Published: 2023-01-01
PDF Link: http://arxiv.org/pdf/2301.00001v1
Summary: We survey ...
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
