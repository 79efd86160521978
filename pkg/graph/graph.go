// Package graph runs a directed graph of stages over a shared state value.
//
// A graph has two kinds of nodes. State nodes receive the whole state and
// return a partial update. Branch nodes are reached through a fan-out edge:
// a router inspects the state after the source node ran and returns one
// branch input per parallel invocation, so the number of branches is decided
// at run time. Every update, sequential or concurrent, is folded into the
// state by the graph's Reducer. All branches of a fan-out are joined before
// the edge leaving the branch node is followed.
package graph

import (
	"errors"
	"fmt"
)

// END is the name of the virtual terminal node.
const END = "__end__"

var (
	ErrNoEntryPoint  = errors.New("graph: entry point not set")
	ErrUnknownNode   = errors.New("graph: unknown node")
	ErrDuplicateNode = errors.New("graph: duplicate node")
	ErrMissingEdge   = errors.New("graph: node has no outgoing edge")
)

// StateGraph is the mutable builder. Compile it into a Runnable before use.
type StateGraph[S, B any] struct {
	nodes    map[string]NodeFunc[S]
	branches map[string]BranchFunc[S, B]
	edges    map[string]string
	fanOuts  map[string]fanOut[S, B]
	entry    string
	reducer  Reducer[S]
	err      error
}

type fanOut[S, B any] struct {
	target string
	route  Router[S, B]
}

// New creates an empty graph whose updates are merged with reducer.
func New[S, B any](reducer Reducer[S]) *StateGraph[S, B] {
	return &StateGraph[S, B]{
		nodes:    make(map[string]NodeFunc[S]),
		branches: make(map[string]BranchFunc[S, B]),
		edges:    make(map[string]string),
		fanOuts:  make(map[string]fanOut[S, B]),
		reducer:  reducer,
	}
}

func (g *StateGraph[S, B]) has(name string) bool {
	_, isNode := g.nodes[name]
	_, isBranch := g.branches[name]
	return isNode || isBranch
}

// AddNode registers a state node.
func (g *StateGraph[S, B]) AddNode(name string, fn NodeFunc[S]) {
	if g.has(name) || name == END {
		g.err = errors.Join(g.err, fmt.Errorf("%w: %s", ErrDuplicateNode, name))
		return
	}
	g.nodes[name] = fn
}

// AddBranchNode registers a node that is only reachable through AddFanOut.
func (g *StateGraph[S, B]) AddBranchNode(name string, fn BranchFunc[S, B]) {
	if g.has(name) || name == END {
		g.err = errors.Join(g.err, fmt.Errorf("%w: %s", ErrDuplicateNode, name))
		return
	}
	g.branches[name] = fn
}

// AddEdge connects from to to. Use END as the target to terminate.
func (g *StateGraph[S, B]) AddEdge(from, to string) {
	g.edges[from] = to
}

// AddFanOut makes from dispatch route(state) parallel invocations of the
// branch node target once from has completed.
func (g *StateGraph[S, B]) AddFanOut(from, target string, route Router[S, B]) {
	g.fanOuts[from] = fanOut[S, B]{target: target, route: route}
}

// SetEntryPoint sets the first node to execute.
func (g *StateGraph[S, B]) SetEntryPoint(name string) {
	g.entry = name
}

// Compile validates the topology and returns an executable graph.
func (g *StateGraph[S, B]) Compile(opts ...Option) (*Runnable[S, B], error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.reducer == nil {
		return nil, errors.New("graph: reducer is required")
	}
	if g.entry == "" {
		return nil, ErrNoEntryPoint
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrUnknownNode, g.entry)
	}

	for name := range g.nodes {
		to, hasEdge := g.edges[name]
		fo, hasFanOut := g.fanOuts[name]
		switch {
		case hasEdge && hasFanOut:
			return nil, fmt.Errorf("graph: node %s has both an edge and a fan-out", name)
		case hasFanOut:
			if _, ok := g.branches[fo.target]; !ok {
				return nil, fmt.Errorf("%w: fan-out target %s is not a branch node", ErrUnknownNode, fo.target)
			}
			if fo.route == nil {
				return nil, fmt.Errorf("graph: fan-out from %s has no router", name)
			}
		case hasEdge:
			if to != END && !g.has(to) {
				return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownNode, name, to)
			}
			if _, ok := g.branches[to]; ok {
				return nil, fmt.Errorf("graph: branch node %s must be reached through a fan-out", to)
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrMissingEdge, name)
		}
	}
	for name := range g.branches {
		to, ok := g.edges[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingEdge, name)
		}
		if _, isState := g.nodes[to]; !isState && to != END {
			return nil, fmt.Errorf("graph: branch node %s must join into a state node, got %s", name, to)
		}
		if _, ok := g.fanOuts[name]; ok {
			return nil, fmt.Errorf("graph: branch node %s cannot fan out", name)
		}
	}
	for from := range g.edges {
		if !g.has(from) {
			return nil, fmt.Errorf("%w: edge source %s", ErrUnknownNode, from)
		}
	}

	r := &Runnable[S, B]{
		nodes:    g.nodes,
		branches: g.branches,
		edges:    g.edges,
		fanOuts:  g.fanOuts,
		entry:    g.entry,
		reducer:  g.reducer,
	}
	for _, opt := range opts {
		opt(&r.opts)
	}
	if r.opts.metrics == nil {
		r.opts.metrics = defaultMetrics()
	}
	return r, nil
}
