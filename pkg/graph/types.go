package graph

import "context"

// NodeFunc executes a state node and returns a partial update.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// BranchFunc executes one fan-out branch. It only sees its own input.
type BranchFunc[S, B any] func(ctx context.Context, input B) (S, error)

// Router decides the branch inputs of a fan-out from the current state.
type Router[S, B any] func(state S) []B

// Reducer folds an update into the state. It is called under a lock when
// branches complete, so it never runs concurrently with itself.
type Reducer[S any] func(state, update S) S

// EventKind identifies an entry of the execution trace.
type EventKind string

const (
	NodeStart  EventKind = "node_start"
	NodeEnd    EventKind = "node_end"
	NodeError  EventKind = "node_error"
	CustomKind EventKind = "custom"
)

// NoBranch is the Branch index of events produced by state nodes.
const NoBranch = -1

// Event is one entry of the execution trace handed to observers.
//
// Input is set for branch nodes, Output for NodeEnd, Err for NodeError,
// Name and Payload for events emitted by nodes through Emit.
type Event[S, B any] struct {
	Kind    EventKind
	Node    string
	Branch  int
	Input   B
	Output  S
	Err     error
	Name    string
	Payload any
}

// Observer receives trace events. Branch events arrive from several
// goroutines, so observers must be safe for concurrent use.
type Observer[S, B any] func(Event[S, B])

// Option configures a Runnable at compile time.
type Option func(*runnableOptions)

type runnableOptions struct {
	maxParallel int
	metrics     *Metrics
}

// WithMaxParallel bounds the number of branches running at once. Zero means
// no bound.
func WithMaxParallel(n int) Option {
	return func(o *runnableOptions) { o.maxParallel = n }
}

// WithMetrics reports node activity to m instead of the default registry.
func WithMetrics(m *Metrics) Option {
	return func(o *runnableOptions) { o.metrics = m }
}

type emitterKey struct{}

type emitter func(name string, payload any)

// Emit publishes a custom trace event from inside a running node. It is a
// no-op when ctx does not belong to a graph run.
func Emit(ctx context.Context, name string, payload any) {
	if fn, ok := ctx.Value(emitterKey{}).(emitter); ok && fn != nil {
		fn(name, payload)
	}
}
