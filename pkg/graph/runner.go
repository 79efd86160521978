package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runnable is a compiled, immutable graph. It is safe to Invoke concurrently.
type Runnable[S, B any] struct {
	nodes    map[string]NodeFunc[S]
	branches map[string]BranchFunc[S, B]
	edges    map[string]string
	fanOuts  map[string]fanOut[S, B]
	entry    string
	reducer  Reducer[S]
	opts     runnableOptions
}

// Invoke runs the graph from the entry point until END and returns the final
// state. The first node or branch error aborts the run; in-flight branches
// are cancelled through their context and are not waited for once ctx is done.
func (r *Runnable[S, B]) Invoke(ctx context.Context, initial S, observers ...Observer[S, B]) (S, error) {
	m := r.opts.metrics
	m.runsActive.Inc()
	defer m.runsActive.Dec()

	notify := func(ev Event[S, B]) {
		for _, obs := range observers {
			obs(ev)
		}
	}

	state := initial
	current := r.entry
	for current != END {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		fn := r.nodes[current]
		update, err := runNode(ctx, r, current, NoBranch, *new(B), notify, func(ctx context.Context) (S, error) {
			return fn(ctx, state)
		})
		if err != nil {
			return state, err
		}
		state = r.reducer(state, update)

		fo, ok := r.fanOuts[current]
		if !ok {
			current = r.edges[current]
			continue
		}

		state, err = r.scatter(ctx, state, fo, notify)
		if err != nil {
			return state, err
		}
		current = r.edges[fo.target]
	}
	return state, nil
}

// scatter runs one branch per routed input and merges every update into
// state as it arrives. It returns after all branches finished or as soon as
// ctx is done; no branch is started after cancellation.
func (r *Runnable[S, B]) scatter(ctx context.Context, state S, fo fanOut[S, B], notify func(Event[S, B])) (S, error) {
	inputs := fo.route(state)
	r.opts.metrics.branches.WithLabelValues(fo.target).Add(float64(len(inputs)))
	if len(inputs) == 0 {
		return state, nil
	}

	fn := r.branches[fo.target]
	g, gctx := errgroup.WithContext(ctx)
	if r.opts.maxParallel > 0 {
		g.SetLimit(r.opts.maxParallel)
	}

	var mu sync.Mutex
	merged := state
	branch := func(i int, in B) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		update, err := runNode(gctx, r, fo.target, i, in, notify, func(ctx context.Context) (S, error) {
			return fn(ctx, in)
		})
		if err != nil {
			return err
		}
		mu.Lock()
		merged = r.reducer(merged, update)
		mu.Unlock()
		return nil
	}

	// g.Go blocks while the group is at its limit, so launching happens off
	// the caller's goroutine and stops once the run is cancelled.
	joined := make(chan error, 1)
	go func() {
		for i, in := range inputs {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error { return branch(i, in) })
		}
		joined <- g.Wait()
	}()

	select {
	case err := <-joined:
		if err != nil {
			return state, err
		}
	case <-ctx.Done():
		return state, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return merged, nil
}

func runNode[S, B any](
	ctx context.Context,
	r *Runnable[S, B],
	name string,
	branch int,
	input B,
	notify func(Event[S, B]),
	call func(context.Context) (S, error),
) (S, error) {
	nodeCtx := context.WithValue(ctx, emitterKey{}, emitter(func(evName string, payload any) {
		notify(Event[S, B]{Kind: CustomKind, Node: name, Branch: branch, Input: input, Name: evName, Payload: payload})
	}))

	notify(Event[S, B]{Kind: NodeStart, Node: name, Branch: branch, Input: input})
	start := time.Now()

	out, err := call(nodeCtx)
	if err != nil {
		r.opts.metrics.observe(name, "error", time.Since(start))
		notify(Event[S, B]{Kind: NodeError, Node: name, Branch: branch, Input: input, Err: err})
		var zero S
		return zero, fmt.Errorf("node %s: %w", name, err)
	}

	r.opts.metrics.observe(name, "ok", time.Since(start))
	notify(Event[S, B]{Kind: NodeEnd, Node: name, Branch: branch, Input: input, Output: out})
	return out, nil
}
