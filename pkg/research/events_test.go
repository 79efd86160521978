package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, e *ResearchEngine, topic string) ([]ProgressEvent, error) {
	t.Helper()
	var events []ProgressEvent
	var streamErr error
	for ev, err := range e.Stream(context.Background(), topic) {
		events = append(events, ev)
		if err != nil {
			streamErr = err
		}
	}
	return events, streamErr
}

func eventsOfType(events []ProgressEvent, typ EventType) []ProgressEvent {
	var out []ProgressEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func indexOf(events []ProgressEvent, typ EventType) int {
	for i, ev := range events {
		if ev.Type == typ {
			return i
		}
	}
	return -1
}

func TestStreamEventSequence(t *testing.T) {
	e := newTestEngine(t, Config{}, &fakeGenerator{tasks: gnnTasks()}, &fakeSearcher{result: arxivResult})

	events, err := collect(t, e, "graph neural networks for drug discovery")
	require.NoError(t, err)
	require.NotEmpty(t, events)

	assert.Equal(t, EventStatus, events[0].Type)
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	todo := eventsOfType(events, EventTodoList)
	require.Len(t, todo, 1)
	assert.Len(t, todo[0].Tasks, len(gnnTasks()))

	started := eventsOfType(events, EventTaskStatus)
	require.Len(t, started, len(gnnTasks()))
	ids := make([]int, 0, len(started))
	for _, ev := range started {
		assert.Equal(t, TaskStatusInProgress, ev.Status)
		ids = append(ids, ev.TaskID)
	}
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, ids)

	reports := eventsOfType(events, EventFinalReport)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Report, "Gap Analysis")

	todoAt := indexOf(events, EventTodoList)
	reportAt := indexOf(events, EventFinalReport)
	for i, ev := range events {
		if ev.Type == EventTaskStatus {
			assert.Greater(t, i, todoAt)
			assert.Less(t, i, reportAt)
		}
	}
	assert.Equal(t, len(events)-2, reportAt)

	// one status per search plus the initial and post-planning notices
	assert.Len(t, eventsOfType(events, EventStatus), 2+len(gnnTasks()))
}

func TestStreamEmitsCompletionWhenEnabled(t *testing.T) {
	e := newTestEngine(t, Config{EmitTaskCompletion: true}, &fakeGenerator{tasks: gnnTasks()}, &fakeSearcher{result: arxivResult})

	events, err := collect(t, e, "topic")
	require.NoError(t, err)

	var completed []ProgressEvent
	for _, ev := range eventsOfType(events, EventTaskStatus) {
		if ev.Status == TaskStatusCompleted {
			completed = append(completed, ev)
		}
	}
	require.Len(t, completed, len(gnnTasks()))
	for _, ev := range completed {
		assert.NotEmpty(t, ev.Summary)
		assert.NotEmpty(t, ev.Sources)
	}
}

func TestStreamFailureEndsWithErrorEvent(t *testing.T) {
	e := newTestEngine(t, Config{}, &fakeGenerator{tasks: gnnTasks(), reportErr: errGeneration}, &fakeSearcher{result: arxivResult})

	events, err := collect(t, e, "topic")
	require.ErrorIs(t, err, errGeneration)

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Message, errGeneration.Error())
	assert.Empty(t, eventsOfType(events, EventFinalReport))
	assert.Empty(t, eventsOfType(events, EventDone))
}

func TestStreamBlankReportIsAFailure(t *testing.T) {
	e := newTestEngine(t, Config{}, &fakeGenerator{tasks: gnnTasks(), blankReport: true}, &fakeSearcher{result: arxivResult})

	events, err := collect(t, e, "topic")
	require.ErrorIs(t, err, ErrEmptyReport)
	assert.Equal(t, EventError, events[len(events)-1].Type)
	assert.Empty(t, eventsOfType(events, EventDone))
}

func TestStreamStopsRunWhenConsumerLeaves(t *testing.T) {
	gen := &fakeGenerator{tasks: gnnTasks()}
	e := newTestEngine(t, Config{}, gen, blockingSearcher{})

	seen := 0
	for ev := range e.Stream(context.Background(), "topic") {
		seen++
		if ev.Type == EventTodoList {
			break
		}
	}
	assert.Equal(t, 2, seen)
	assert.Equal(t, 0, gen.reportCalls)
	// goleak in TestMain verifies the abandoned branches exit.
}

func TestStreamIsLazy(t *testing.T) {
	gen := &fakeGenerator{tasks: gnnTasks()}
	e := newTestEngine(t, Config{}, gen, &fakeSearcher{result: arxivResult})

	seq := e.Stream(context.Background(), "topic")
	assert.Equal(t, 0, gen.structuredCalls, "nothing runs before iteration")

	for range seq {
	}
	assert.Equal(t, 1, gen.structuredCalls)
}
