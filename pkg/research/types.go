package research

import (
	"context"
	"slices"
)

// Config holds runtime configuration of the workflow.
type Config struct {
	SearchMaxResults   int
	MaxParallel        int
	EmitTaskCompletion bool
}

// TaskStatus represents the lifecycle of a research task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// ResearchTask is one unit of literature research decided by the planner.
type ResearchTask struct {
	ID      int        `json:"id"`
	Title   string     `json:"title"`
	Intent  string     `json:"intent"`
	Query   string     `json:"query"`
	Status  TaskStatus `json:"status"`
	Summary string     `json:"summary,omitempty"`
	Sources []string   `json:"sources"`
}

// Note is the single contribution of one researcher branch. Content is the
// self-describing text block handed to the reporter; Task is the completed
// copy of the task so consumers can correlate without parsing Content.
type Note struct {
	TaskID  int          `json:"task_id"`
	Content string       `json:"content"`
	Task    ResearchTask `json:"task"`
}

// AgentState is the run-scoped aggregate shared by all stages.
type AgentState struct {
	Topic       string         `json:"topic"`
	Tasks       []ResearchTask `json:"tasks"`
	Notes       []Note         `json:"notes"`
	FinalReport string         `json:"final_report,omitempty"`
}

// MergeState is the reducer of the workflow graph. Notes are concatenated in
// arrival order; every other field is replaced only when the update sets it.
func MergeState(state, update AgentState) AgentState {
	if update.Topic != "" && state.Topic == "" {
		state.Topic = update.Topic
	}
	if update.Tasks != nil {
		state.Tasks = slices.Clone(update.Tasks)
	}
	if len(update.Notes) > 0 {
		state.Notes = slices.Concat(state.Notes, update.Notes)
	}
	if update.FinalReport != "" {
		state.FinalReport = update.FinalReport
	}
	return state
}

// TaskBoard returns the planned tasks with the status, summary and sources
// reported by the notes collected so far. Tasks without a note are returned
// unchanged.
func (s AgentState) TaskBoard() []ResearchTask {
	done := make(map[int]ResearchTask, len(s.Notes))
	for _, n := range s.Notes {
		done[n.TaskID] = n.Task
	}
	board := make([]ResearchTask, len(s.Tasks))
	for i, t := range s.Tasks {
		if completed, ok := done[t.ID]; ok {
			board[i] = completed
			continue
		}
		board[i] = t
	}
	return board
}

// Generator is the language-model capability used by the stages.
type Generator interface {
	// GenerateStructured decodes a JSON answer that follows schema into out.
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Searcher is the literature-search capability used by the researcher.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (string, error)
}
