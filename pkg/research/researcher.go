package research

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mikeboe/research-assistant/pkg/graph"
)

const (
	// NoPapersFound is the search result used when nothing could be retrieved.
	NoPapersFound = "No papers found."

	// SourceMarker is recorded when retrieved text contains links but none
	// could be extracted as a plain URL.
	SourceMarker = "arXiv sources (see report details)"

	// ToolStartEvent is emitted on the graph trace before each search.
	ToolStartEvent = "tool_start"

	defaultMaxResults = 3

	summaryPromptTemplate = `You are an academic researcher. Based on the retrieved paper abstracts below, write a concise academic review for the task "%s".

Retrieved content:
%s

Requirements:
1. Cite the core conclusions and data.
2. Use Markdown formatting.
3. If there is no content, state that nothing was found.`
)

var linkRegex = regexp.MustCompile(`https?://[^\s)\]>"]+`)

// ToolCall is the payload of a ToolStartEvent.
type ToolCall struct {
	TaskID int    `json:"task_id"`
	Tool   string `json:"tool"`
	Query  string `json:"query"`
}

// Researcher researches a single task. It is invoked once per task and only
// ever returns a note, never a modified task list.
type Researcher struct {
	Generator  Generator
	Searcher   Searcher
	MaxResults int
	Logger     *slog.Logger
}

// Research is the branch node of the workflow graph.
func (r *Researcher) Research(ctx context.Context, task ResearchTask) (AgentState, error) {
	logger := r.logger().With("task_id", task.ID)
	task.Status = TaskStatusInProgress

	retrieved := r.search(ctx, logger, task)
	if err := ctx.Err(); err != nil {
		return AgentState{}, err
	}
	sources := extractSources(retrieved)

	summary, err := r.Generator.GenerateText(ctx, fmt.Sprintf(summaryPromptTemplate, task.Title, retrieved))
	if err != nil {
		return AgentState{}, fmt.Errorf("summarizing task %d: %w", task.ID, err)
	}

	task.Status = TaskStatusCompleted
	task.Summary = summary
	task.Sources = sources
	logger.Info("Task researched", "sources", len(sources))

	return AgentState{Notes: []Note{{
		TaskID:  task.ID,
		Content: FormatNote(task),
		Task:    task,
	}}}, nil
}

func (r *Researcher) search(ctx context.Context, logger *slog.Logger, task ResearchTask) string {
	maxResults := r.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	graph.Emit(ctx, ToolStartEvent, ToolCall{TaskID: task.ID, Tool: "search_arxiv", Query: task.Query})
	logger.Info("Searching literature", "query", task.Query, "max_results", maxResults)

	text, err := r.Searcher.Search(ctx, task.Query, maxResults)
	if err != nil {
		logger.Warn("Search failed", "query", task.Query, "error", err)
		return NoPapersFound
	}
	if strings.TrimSpace(text) == "" {
		return NoPapersFound
	}
	return text
}

func (r *Researcher) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// FormatNote renders the note block the reporter reads.
func FormatNote(task ResearchTask) string {
	return fmt.Sprintf("### Task %d: %s\n**Intent**: %s\n**Summary**: \n%s\n**Sources**: [%s]\n---\n",
		task.ID, task.Title, task.Intent, task.Summary, strings.Join(task.Sources, ", "))
}

func extractSources(text string) []string {
	sources := []string{}
	if !strings.Contains(text, "http") {
		return sources
	}
	seen := make(map[string]bool)
	for _, link := range linkRegex.FindAllString(text, -1) {
		if !seen[link] {
			seen[link] = true
			sources = append(sources, link)
		}
	}
	if len(sources) == 0 {
		sources = append(sources, SourceMarker)
	}
	return sources
}
