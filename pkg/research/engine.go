package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mikeboe/research-assistant/pkg/graph"
)

// Node names of the workflow graph.
const (
	NodePlanner    = "planner"
	NodeResearcher = "researcher"
	NodeReporter   = "reporter"
)

// Trace is one entry of the workflow execution trace.
type Trace = graph.Event[AgentState, ResearchTask]

// Observer receives the execution trace of a run.
type Observer = graph.Observer[AgentState, ResearchTask]

// Phase is the state of a run.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePlanning    Phase = "planning"
	PhaseResearching Phase = "researching"
	PhaseReporting   Phase = "reporting"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

var phaseOrder = map[Phase]int{
	PhaseIdle:        0,
	PhasePlanning:    1,
	PhaseResearching: 2,
	PhaseReporting:   3,
	PhaseDone:        4,
	PhaseFailed:      4,
}

// ResearchEngine runs the planner → researchers → reporter workflow.
type ResearchEngine struct {
	Config  Config
	Logger  *slog.Logger
	OnPhase func(Phase)

	planner    *Planner
	researcher *Researcher
	reporter   *Reporter
	graph      *graph.Runnable[AgentState, ResearchTask]
}

// EngineOption customises a ResearchEngine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger       *slog.Logger
	onPhase      func(Phase)
	graphOptions []graph.Option
}

// WithLogger routes stage and engine logs to logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = logger }
}

// WithPhaseHook is called on every phase transition of every run.
func WithPhaseHook(fn func(Phase)) EngineOption {
	return func(o *engineOptions) { o.onPhase = fn }
}

// WithGraphOptions passes options to the compiled graph.
func WithGraphOptions(opts ...graph.Option) EngineOption {
	return func(o *engineOptions) { o.graphOptions = append(o.graphOptions, opts...) }
}

// NewEngine builds and compiles the workflow graph around the injected
// capabilities.
func NewEngine(cfg Config, gen Generator, search Searcher, opts ...EngineOption) (*ResearchEngine, error) {
	if gen == nil || search == nil {
		return nil, fmt.Errorf("generator and searcher are required")
	}
	o := engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	e := &ResearchEngine{
		Config:     cfg,
		Logger:     o.logger,
		OnPhase:    o.onPhase,
		planner:    &Planner{Generator: gen, Logger: o.logger},
		researcher: &Researcher{Generator: gen, Searcher: search, MaxResults: cfg.SearchMaxResults, Logger: o.logger},
		reporter:   &Reporter{Generator: gen, Logger: o.logger},
	}

	g := graph.New[AgentState, ResearchTask](MergeState)
	g.AddNode(NodePlanner, e.planner.Run)
	g.AddBranchNode(NodeResearcher, e.researcher.Research)
	g.AddNode(NodeReporter, e.reporter.Run)
	g.SetEntryPoint(NodePlanner)
	g.AddFanOut(NodePlanner, NodeResearcher, routeToResearchers)
	g.AddEdge(NodeResearcher, NodeReporter)
	g.AddEdge(NodeReporter, graph.END)

	graphOpts := append([]graph.Option{graph.WithMaxParallel(cfg.MaxParallel)}, o.graphOptions...)
	compiled, err := g.Compile(graphOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow graph: %w", err)
	}
	e.graph = compiled
	return e, nil
}

// routeToResearchers dispatches one researcher branch per planned task.
func routeToResearchers(state AgentState) []ResearchTask {
	return state.Tasks
}

// Run executes one complete workflow for topic. Observers receive the raw
// execution trace and must be safe for concurrent use.
func (e *ResearchEngine) Run(ctx context.Context, topic string, observers ...Observer) (AgentState, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return AgentState{}, ErrEmptyTopic
	}
	e.Logger.Info("Starting research run", "topic", topic)

	tracker := newPhaseTracker(e.Logger, e.OnPhase)
	observers = append([]Observer{tracker.observe}, observers...)

	final, err := e.graph.Invoke(ctx, AgentState{Topic: topic, Tasks: []ResearchTask{}, Notes: []Note{}}, observers...)
	if err != nil {
		tracker.set(PhaseFailed)
		e.Logger.Error("Research run failed", "topic", topic, "error", err)
		return final, err
	}
	tracker.set(PhaseDone)
	e.Logger.Info("Research run completed", "topic", topic, "tasks", len(final.Tasks), "notes", len(final.Notes))
	return final, nil
}

// phaseTracker derives the run state machine from the trace. Transitions
// only move forward.
type phaseTracker struct {
	mu      sync.Mutex
	phase   Phase
	logger  *slog.Logger
	onPhase func(Phase)
}

func newPhaseTracker(logger *slog.Logger, onPhase func(Phase)) *phaseTracker {
	return &phaseTracker{phase: PhaseIdle, logger: logger, onPhase: onPhase}
}

func (t *phaseTracker) observe(ev Trace) {
	switch {
	case ev.Kind == graph.NodeStart && ev.Node == NodePlanner:
		t.set(PhasePlanning)
	case ev.Kind == graph.NodeEnd && ev.Node == NodePlanner:
		t.set(PhaseResearching)
	case ev.Kind == graph.NodeStart && ev.Node == NodeReporter:
		t.set(PhaseReporting)
	}
}

func (t *phaseTracker) set(next Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == PhaseDone || t.phase == PhaseFailed || phaseOrder[next] <= phaseOrder[t.phase] {
		return
	}
	t.logger.Debug("Phase transition", "from", t.phase, "to", next)
	t.phase = next
	if t.onPhase != nil {
		t.onPhase(next)
	}
}

// Phase returns the current phase.
func (t *phaseTracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}
