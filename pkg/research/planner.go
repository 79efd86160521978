package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// MaxTasks is the upper bound of tasks kept from a plan.
	MaxTasks = 5

	plannerSystemPrompt = `You are a senior research advisor.
Break the user's research topic down into 3 to 5 concrete academic research tasks.
The tasks must cover: existing related work, the core methodology, and benchmark comparisons.
Every task must contain a specific arXiv search query in the "query" field.`
)

var ErrEmptyTopic = errors.New("research topic is empty")

// Planner decomposes a topic into research tasks.
type Planner struct {
	Generator Generator
	Logger    *slog.Logger
}

// PlanSchema is the JSON schema requested from the generator.
func PlanSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tasks": map[string]any{
				"type":        "array",
				"description": "3 to 5 research tasks covering related work, methodology and benchmarks",
				"minItems":    3,
				"maxItems":    MaxTasks,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":     map[string]any{"type": "integer"},
						"title":  map[string]any{"type": "string"},
						"intent": map[string]any{"type": "string", "description": "Why this task is needed"},
						"query":  map[string]any{"type": "string", "description": "arXiv search query"},
					},
					"required": []string{"id", "title", "intent", "query"},
				},
			},
		},
		"required": []string{"tasks"},
	}
}

type planResponse struct {
	Tasks []ResearchTask `json:"tasks"`
}

// FallbackTask is the single task used when structured planning fails.
func FallbackTask(topic string) ResearchTask {
	return ResearchTask{
		ID:      1,
		Title:   "Literature survey",
		Intent:  "Understand the background of the topic",
		Query:   topic,
		Status:  TaskStatusPending,
		Sources: []string{},
	}
}

// Plan returns between 1 and MaxTasks tasks. Any generation failure degrades
// to FallbackTask; only a cancelled context is reported as an error.
func (p *Planner) Plan(ctx context.Context, topic string) ([]ResearchTask, error) {
	var resp planResponse
	err := p.Generator.GenerateStructured(ctx, plannerSystemPrompt, "Research topic: "+topic, PlanSchema(), &resp)
	if err == nil {
		if tasks := normalizeTasks(resp.Tasks); len(tasks) > 0 {
			p.logger().Info("Generated research plan", "topic", topic, "tasks", len(tasks))
			return tasks, nil
		}
		err = errors.New("plan contains no usable tasks")
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	p.logger().Warn("Planning degraded, using fallback task", "topic", topic, "error", err)
	return []ResearchTask{FallbackTask(topic)}, nil
}

// Run is the graph node: it sets the task list on the state.
func (p *Planner) Run(ctx context.Context, state AgentState) (AgentState, error) {
	if strings.TrimSpace(state.Topic) == "" {
		return AgentState{}, ErrEmptyTopic
	}
	tasks, err := p.Plan(ctx, state.Topic)
	if err != nil {
		return AgentState{}, fmt.Errorf("planning: %w", err)
	}
	return AgentState{Tasks: tasks}, nil
}

func (p *Planner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// normalizeTasks drops tasks without a query, keeps at most MaxTasks and
// renumbers them 1..n so ids are unique and ascending.
func normalizeTasks(in []ResearchTask) []ResearchTask {
	out := make([]ResearchTask, 0, min(len(in), MaxTasks))
	for _, t := range in {
		if len(out) == MaxTasks {
			break
		}
		t.Query = strings.TrimSpace(t.Query)
		if t.Query == "" {
			continue
		}
		if strings.TrimSpace(t.Title) == "" {
			t.Title = t.Query
		}
		t.ID = len(out) + 1
		t.Status = TaskStatusPending
		t.Summary = ""
		t.Sources = []string{}
		out = append(out, t)
	}
	return out
}
