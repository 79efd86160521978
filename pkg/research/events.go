package research

import (
	"context"
	"fmt"
	"iter"

	"github.com/mikeboe/research-assistant/pkg/graph"
)

// EventType discriminates progress events.
type EventType string

const (
	EventStatus      EventType = "status"
	EventTodoList    EventType = "todo_list"
	EventTaskStatus  EventType = "task_status"
	EventFinalReport EventType = "final_report"
	EventDone        EventType = "done"
	EventError       EventType = "error"
)

// ProgressEvent is a transport-agnostic progress notification. Only the
// fields of its Type are set.
type ProgressEvent struct {
	Type    EventType      `json:"type"`
	Message string         `json:"message,omitempty"`
	Tasks   []ResearchTask `json:"tasks,omitempty"`
	TaskID  int            `json:"task_id,omitempty"`
	Status  TaskStatus     `json:"status,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Sources []string       `json:"sources,omitempty"`
	Report  string         `json:"report,omitempty"`
}

func statusEvent(msg string) ProgressEvent {
	return ProgressEvent{Type: EventStatus, Message: msg}
}

// eventAdapter maps execution trace entries to progress events.
type eventAdapter struct {
	emitCompletion bool
}

func (a eventAdapter) translate(ev Trace) []ProgressEvent {
	switch {
	case ev.Kind == graph.NodeEnd && ev.Node == NodePlanner:
		tasks := ev.Output.Tasks
		return []ProgressEvent{
			{Type: EventTodoList, Tasks: tasks},
			statusEvent(fmt.Sprintf("Generated %d research tasks, starting parallel search...", len(tasks))),
		}

	case ev.Kind == graph.NodeStart && ev.Node == NodeResearcher:
		return []ProgressEvent{{Type: EventTaskStatus, TaskID: ev.Input.ID, Status: TaskStatusInProgress}}

	case ev.Kind == graph.CustomKind && ev.Name == ToolStartEvent:
		call, _ := ev.Payload.(ToolCall)
		return []ProgressEvent{statusEvent(fmt.Sprintf("Searching arXiv for related papers: %s", call.Query))}

	case ev.Kind == graph.NodeEnd && ev.Node == NodeResearcher && a.emitCompletion:
		var out []ProgressEvent
		for _, n := range ev.Output.Notes {
			out = append(out, ProgressEvent{
				Type:    EventTaskStatus,
				TaskID:  n.TaskID,
				Status:  TaskStatusCompleted,
				Summary: n.Task.Summary,
				Sources: n.Task.Sources,
			})
		}
		return out

	case ev.Kind == graph.NodeEnd && ev.Node == NodeReporter:
		if ev.Output.FinalReport == "" {
			return nil
		}
		return []ProgressEvent{{Type: EventFinalReport, Report: ev.Output.FinalReport}}
	}
	return nil
}

// Stream runs the workflow lazily when iterated and yields its progress
// events. A successful run ends with a done event. A failed run yields an
// error event together with the error and ends without final_report or done.
// Stopping the iteration cancels the run.
func (e *ResearchEngine) Stream(ctx context.Context, topic string) iter.Seq2[ProgressEvent, error] {
	return func(yield func(ProgressEvent, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if !yield(statusEvent("Planning the research path..."), nil) {
			return
		}

		traces := make(chan Trace, 32)
		result := make(chan error, 1)
		go func() {
			_, err := e.Run(ctx, topic, func(ev Trace) {
				select {
				case traces <- ev:
				case <-ctx.Done():
				}
			})
			result <- err
		}()

		adapter := eventAdapter{emitCompletion: e.Config.EmitTaskCompletion}
		emit := func(ev Trace) bool {
			for _, pe := range adapter.translate(ev) {
				if !yield(pe, nil) {
					return false
				}
			}
			return true
		}

		for {
			select {
			case ev := <-traces:
				if !emit(ev) {
					return
				}
			case err := <-result:
				// Every trace send completed before Run returned.
				for drained := false; !drained; {
					select {
					case ev := <-traces:
						if !emit(ev) {
							return
						}
					default:
						drained = true
					}
				}
				if err != nil {
					yield(ProgressEvent{Type: EventError, Message: err.Error()}, err)
					return
				}
				yield(ProgressEvent{Type: EventDone}, nil)
				return
			}
		}
	}
}
